package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/teisimplify/internal/session"
	"github.com/hyperifyio/teisimplify/internal/tei"
)

// Defaults shared by flag parsing and file config overlay.
const (
	DefaultAddr      = ":8080"
	DefaultCacheDir  = ".teisimplify-cache"
	DefaultFormat    = "text"
	DefaultTimeout   = 120 * time.Second
	DefaultAttempts  = 2
	DefaultUserAgent = "teisimplify/1.0 (+https://github.com/hyperifyio/teisimplify)"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Input    string `yaml:"input" json:"input"`
	Output   string `yaml:"output" json:"output"`
	Format   string `yaml:"format" json:"format"`
	Manifest bool   `yaml:"manifest" json:"manifest"`

	Server struct {
		Addr string `yaml:"addr" json:"addr"`
	} `yaml:"server" json:"server"`

	Simplify struct {
		URL      string `yaml:"url" json:"url"`
		Provider string `yaml:"provider" json:"provider"`
	} `yaml:"simplify" json:"simplify"`

	Extract struct {
		URL      string `yaml:"url" json:"url"`
		Path     string `yaml:"path" json:"path"`
		Clean    bool   `yaml:"clean" json:"clean"`
		Scope    string `yaml:"scope" json:"scope"`
		MaxBytes int64  `yaml:"maxBytes" json:"maxBytes"`
		MaxPages int    `yaml:"maxPages" json:"maxPages"`
	} `yaml:"extract" json:"extract"`

	LLM struct {
		BaseURL   string   `yaml:"base" json:"base"`
		Model     string   `yaml:"model" json:"model"`
		APIKey    string   `yaml:"key" json:"key"`
		Focus     []string `yaml:"focus" json:"focus"`
		MaxTokens int      `yaml:"maxTokens" json:"maxTokens"`
	} `yaml:"llm" json:"llm"`

	HTTP struct {
		UserAgent     string        `yaml:"userAgent" json:"userAgent"`
		Timeout       time.Duration `yaml:"timeout" json:"timeout"`
		MaxAttempts   int           `yaml:"maxAttempts" json:"maxAttempts"`
		MaxConcurrent int           `yaml:"maxConcurrent" json:"maxConcurrent"`
		RateLimit     float64       `yaml:"rateLimit" json:"rateLimit"`
	} `yaml:"http" json:"http"`

	Display struct {
		Highlight bool   `yaml:"highlight" json:"highlight"`
		Language  string `yaml:"language" json:"language"`
		Mode      string `yaml:"mode" json:"mode"`
	} `yaml:"display" json:"display"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
		MemoryTTL   time.Duration `yaml:"memoryTTL" json:"memoryTTL"`
	} `yaml:"cache" json:"cache"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from fc into cfg for any fields that are
// still zero or at their flag default, so explicit flags win.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setStr := func(dst *string, def, v string) {
		if (*dst == "" || *dst == def) && v != "" {
			*dst = v
		}
	}
	setBool := func(dst *bool, v bool) {
		if !*dst && v {
			*dst = true
		}
	}

	setStr(&cfg.InputPath, "", fc.Input)
	setStr(&cfg.OutputPath, "", fc.Output)
	setStr(&cfg.Format, DefaultFormat, fc.Format)
	setBool(&cfg.Manifest, fc.Manifest)
	setStr(&cfg.Addr, DefaultAddr, fc.Server.Addr)

	setStr(&cfg.SimplifyURL, "", fc.Simplify.URL)
	setStr(&cfg.Provider, "", fc.Simplify.Provider)
	setStr(&cfg.ExtractURL, "", fc.Extract.URL)
	setStr(&cfg.ExtractPath, "", fc.Extract.Path)
	setBool(&cfg.Clean, fc.Extract.Clean)
	setStr(&cfg.Scope, "", fc.Extract.Scope)
	if cfg.MaxPDFBytes == 0 && fc.Extract.MaxBytes > 0 {
		cfg.MaxPDFBytes = fc.Extract.MaxBytes
	}
	if cfg.MaxPDFPages == 0 && fc.Extract.MaxPages > 0 {
		cfg.MaxPDFPages = fc.Extract.MaxPages
	}

	setStr(&cfg.LLMBaseURL, "", fc.LLM.BaseURL)
	setStr(&cfg.LLMModel, "", fc.LLM.Model)
	setStr(&cfg.LLMAPIKey, "", fc.LLM.APIKey)
	if len(cfg.LLMFocus) == 0 && len(fc.LLM.Focus) > 0 {
		cfg.LLMFocus = append([]string{}, fc.LLM.Focus...)
	}
	if cfg.LLMMaxTokens == 0 && fc.LLM.MaxTokens > 0 {
		cfg.LLMMaxTokens = fc.LLM.MaxTokens
	}

	setStr(&cfg.UserAgent, DefaultUserAgent, fc.HTTP.UserAgent)
	if (cfg.Timeout == 0 || cfg.Timeout == DefaultTimeout) && fc.HTTP.Timeout > 0 {
		cfg.Timeout = fc.HTTP.Timeout
	}
	if (cfg.MaxAttempts == 0 || cfg.MaxAttempts == DefaultAttempts) && fc.HTTP.MaxAttempts > 0 {
		cfg.MaxAttempts = fc.HTTP.MaxAttempts
	}
	if cfg.MaxConcurrent == 0 && fc.HTTP.MaxConcurrent > 0 {
		cfg.MaxConcurrent = fc.HTTP.MaxConcurrent
	}
	if cfg.RateLimit == 0 && fc.HTTP.RateLimit > 0 {
		cfg.RateLimit = fc.HTTP.RateLimit
	}

	setBool(&cfg.Highlight, fc.Display.Highlight)
	setStr(&cfg.Language, session.DefaultLanguage, fc.Display.Language)
	setStr(&cfg.Mode, string(session.ModeBasic), fc.Display.Mode)

	setStr(&cfg.CacheDir, DefaultCacheDir, fc.Cache.Dir)
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	setBool(&cfg.CacheClear, fc.Cache.Clear)
	setBool(&cfg.CacheStrictPerms, fc.Cache.StrictPerms)
	if cfg.CacheMemoryTTL == 0 && fc.Cache.MemoryTTL > 0 {
		cfg.CacheMemoryTTL = fc.Cache.MemoryTTL
	}
	setBool(&cfg.Verbose, fc.Verbose)
}

// ErrInvalidConfig marks configuration rejected by ValidateConfig.
var ErrInvalidConfig = errors.New("invalid config")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// ValidateConfig performs minimal schema validation for required settings.
func ValidateConfig(cfg Config) error {
	if !cfg.Serve && strings.TrimSpace(cfg.InputPath) == "" && strings.TrimSpace(cfg.Text) == "" {
		return invalidf("an input file or inline text is required")
	}
	if cfg.Serve && strings.TrimSpace(cfg.Addr) == "" {
		return invalidf("server address is required")
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "http", "llm":
	default:
		return invalidf("unknown provider %q (want http or llm)", cfg.Provider)
	}
	if strings.EqualFold(cfg.Provider, "llm") && strings.TrimSpace(cfg.LLMModel) == "" {
		return invalidf("llm.model is required for the llm provider (or set LLM_MODEL)")
	}
	if strings.EqualFold(cfg.Provider, "http") && strings.TrimSpace(cfg.SimplifyURL) == "" {
		return invalidf("simplify.url is required for the http provider")
	}
	switch strings.ToLower(cfg.Format) {
	case "", "text", "json":
	default:
		return invalidf("unknown format %q (want text or json)", cfg.Format)
	}
	if _, err := tei.ParseScope(cfg.Scope); err != nil {
		return invalidf("%v", err)
	}
	if cfg.Mode != "" {
		if _, err := session.ParseMode(cfg.Mode); err != nil {
			return invalidf("%v", err)
		}
	}
	if cfg.MaxAttempts < 0 || cfg.MaxConcurrent < 0 || cfg.RateLimit < 0 || cfg.MaxPDFBytes < 0 || cfg.MaxPDFPages < 0 || cfg.LLMMaxTokens < 0 {
		return invalidf("negative limits are not allowed")
	}
	return nil
}
