// Package simplify talks to the text simplification backend. The backend owns
// all language processing; this package only moves requests and responses
// and caches results.
package simplify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrSimplifyFailed wraps every failed simplification, whatever the cause.
var ErrSimplifyFailed = errors.New("simplification failed")

// ErrEmptyInput is returned when the text to simplify is blank.
var ErrEmptyInput = errors.New("empty input")

// Request is the body sent to the backend.
type Request struct {
	Text string `json:"text"`
}

// Metrics are opaque quality scores computed by the backend.
type Metrics struct {
	Readability    float64 `json:"readability"`
	Complexity     float64 `json:"complexity"`
	FrequencyScore float64 `json:"frequencyScore"`
	Bert           float64 `json:"bert"`
	Berts          float64 `json:"berts"`
}

// Response mirrors the backend reply. Keywords map section names to the
// keywords found in them. Trace is kept raw because its shape is owned by
// the backend.
type Response struct {
	Original   string              `json:"original"`
	Simplified string              `json:"simplified"`
	Baseline   string              `json:"baseline"`
	Keywords   map[string][]string `json:"keywords"`
	Trace      json.RawMessage     `json:"trace,omitempty"`
	Metrics    Metrics             `json:"metrics"`
}

// Provider turns source text into a simplified Response.
type Provider interface {
	Simplify(ctx context.Context, text string) (*Response, error)
}

func checkInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return nil
}
