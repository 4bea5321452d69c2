package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/hyperifyio/teisimplify/internal/simplify"
)

// runManifest captures run details that aid reproducibility.
type runManifest struct {
	Input       string            `json:"input"`
	InputSHA256 string            `json:"input_sha256"`
	InputChars  int               `json:"input_chars"`
	Provider    string            `json:"provider"`
	Backend     string            `json:"backend"`
	Model       string            `json:"model,omitempty"`
	Scope       string            `json:"scope"`
	Clean       bool              `json:"clean"`
	Sections    []string          `json:"sections,omitempty"`
	Keywords    int               `json:"keywords"`
	Metrics     *simplify.Metrics `json:"metrics,omitempty"`
	Cache       bool              `json:"cache"`
	Version     string            `json:"version"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// computeSHA256Hex returns a lowercase hex-encoded SHA-256 of the given text.
func computeSHA256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func buildManifest(cfg Config, input, text, provider string, resp *simplify.Response, now time.Time) runManifest {
	m := runManifest{
		Input:       input,
		InputSHA256: computeSHA256Hex(text),
		InputChars:  len(text),
		Provider:    provider,
		Scope:       cfg.Scope,
		Clean:       cfg.Clean,
		Cache:       cfg.CacheDir != "",
		Version:     BuildVersion,
		GeneratedAt: now.UTC(),
	}
	if m.Scope == "" {
		m.Scope = "own"
	}
	switch provider {
	case "llm":
		m.Backend = cfg.LLMBaseURL
		m.Model = cfg.LLMModel
	case "http":
		m.Backend = cfg.SimplifyURL
	}
	if resp != nil {
		for name, kws := range resp.Keywords {
			m.Sections = append(m.Sections, name)
			m.Keywords += len(kws)
		}
		sort.Strings(m.Sections)
		metrics := resp.Metrics
		m.Metrics = &metrics
	}
	return m
}

// deriveManifestSidecarPath returns a sidecar JSON path next to the output.
func deriveManifestSidecarPath(outputPath string) string {
	return outputPath + ".manifest.json"
}

func writeManifest(path string, m runManifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
