package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	// Input: a .txt, .pdf or TEI .xml file, or inline text.
	InputPath  string
	Text       string
	OutputPath string
	// Format is "text" (default) or "json".
	Format string
	// Manifest writes a JSON sidecar next to OutputPath.
	Manifest bool

	// Server mode
	Serve bool
	Addr  string

	// Backends
	SimplifyURL string
	ExtractURL  string
	ExtractPath string
	// Provider selects "http" or "llm". Empty picks http when SimplifyURL is
	// set and llm when an LLM model is set.
	Provider string

	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	LLMFocus   []string
	// LLMMaxTokens is reserved for the model reply when sizing prompts.
	LLMMaxTokens int

	// Backend client
	UserAgent     string
	Timeout       time.Duration
	MaxAttempts   int
	MaxConcurrent int
	RateLimit     float64

	// Extraction
	Clean       bool
	Scope       string
	MaxPDFBytes int64
	MaxPDFPages int

	// Display
	Highlight bool
	Language  string
	Mode      string

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	CacheMemoryTTL   time.Duration

	Verbose bool
}
