package simplify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/teisimplify/internal/backend"
	"github.com/hyperifyio/teisimplify/internal/cache"
)

// DefaultPath is the backend route that accepts simplification requests.
const DefaultPath = "/simplify"

// HTTPProvider posts text to the simplification service.
type HTTPProvider struct {
	BaseURL string
	// Path overrides DefaultPath.
	Path   string
	Client *backend.Client
	// Cache, when set, stores raw responses keyed by endpoint and text.
	Cache cache.Store
}

func (p *HTTPProvider) endpoint() string {
	path := p.Path
	if path == "" {
		path = DefaultPath
	}
	return backend.JoinURL(p.BaseURL, path)
}

// Simplify sends text verbatim. Non-2xx replies, transport failures and
// undecodable bodies all wrap ErrSimplifyFailed; an {"error": ...} body from
// the service is included in the message.
func (p *HTTPProvider) Simplify(ctx context.Context, text string) (*Response, error) {
	if err := checkInput(text); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		return nil, fmt.Errorf("%w: backend URL not configured", ErrSimplifyFailed)
	}
	url := p.endpoint()
	key := cache.KeyFrom("simplify", url, text)
	if p.Cache != nil {
		if raw, ok, _ := p.Cache.Get(ctx, key); ok {
			var out Response
			if err := json.Unmarshal(raw, &out); err == nil {
				log.Debug().Str("url", url).Msg("simplify cache hit")
				return &out, nil
			}
		}
	}

	payload, err := json.Marshal(Request{Text: text})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrSimplifyFailed, err)
	}
	client := p.Client
	if client == nil {
		client = &backend.Client{MaxAttempts: 1}
	}
	body, status, err := client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSimplifyFailed, err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: status %d%s", ErrSimplifyFailed, status, errorDetail(body))
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSimplifyFailed, err)
	}
	if p.Cache != nil {
		if err := p.Cache.Save(ctx, key, body); err != nil {
			log.Warn().Err(err).Msg("simplify cache save failed")
		}
	}
	return &out, nil
}

// errorDetail extracts the service's {"error": "..."} message, if any.
func errorDetail(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || strings.TrimSpace(e.Error) == "" {
		return ""
	}
	return ": " + e.Error
}
