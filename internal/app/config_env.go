package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envPrefix namespaces every application variable. LLM_* keep their
// conventional unprefixed names.
const envPrefix = "TEISIMPLIFY_"

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// envBinding ties one variable to one Config field. apply writes the parsed
// value when force is set or the field is still zero.
type envBinding struct {
	key   string
	apply func(cfg *Config, v string, force bool)
}

func strField(get func(*Config) *string) func(*Config, string, bool) {
	return func(cfg *Config, v string, force bool) {
		if dst := get(cfg); force || *dst == "" {
			*dst = v
		}
	}
}

func boolField(get func(*Config) *bool) func(*Config, string, bool) {
	return func(cfg *Config, v string, force bool) {
		b, ok := parseBool(v)
		if !ok {
			return
		}
		// Without force only a truthy value may change an unset flag.
		if dst := get(cfg); force || b {
			*dst = b
		}
	}
}

func intField(get func(*Config) *int) func(*Config, string, bool) {
	return func(cfg *Config, v string, force bool) {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return
		}
		if dst := get(cfg); force || *dst == 0 {
			*dst = n
		}
	}
}

func durationField(get func(*Config) *time.Duration) func(*Config, string, bool) {
	return func(cfg *Config, v string, force bool) {
		d, err := time.ParseDuration(v)
		if err != nil {
			return
		}
		if dst := get(cfg); force || *dst == 0 {
			*dst = d
		}
	}
}

var envBindings = []envBinding{
	{"LLM_BASE_URL", strField(func(c *Config) *string { return &c.LLMBaseURL })},
	{"LLM_MODEL", strField(func(c *Config) *string { return &c.LLMModel })},
	{"LLM_API_KEY", strField(func(c *Config) *string { return &c.LLMAPIKey })},
	{"LLM_FOCUS", func(c *Config, v string, force bool) {
		if force || len(c.LLMFocus) == 0 {
			c.LLMFocus = splitList(v)
		}
	}},
	{"LLM_MAX_TOKENS", intField(func(c *Config) *int { return &c.LLMMaxTokens })},
	{envPrefix + "SIMPLIFY_URL", strField(func(c *Config) *string { return &c.SimplifyURL })},
	{envPrefix + "PROVIDER", strField(func(c *Config) *string { return &c.Provider })},
	{envPrefix + "EXTRACT_URL", strField(func(c *Config) *string { return &c.ExtractURL })},
	{envPrefix + "EXTRACT_PATH", strField(func(c *Config) *string { return &c.ExtractPath })},
	{envPrefix + "ADDR", strField(func(c *Config) *string { return &c.Addr })},
	{envPrefix + "SCOPE", strField(func(c *Config) *string { return &c.Scope })},
	{envPrefix + "LANGUAGE", strField(func(c *Config) *string { return &c.Language })},
	{envPrefix + "MODE", strField(func(c *Config) *string { return &c.Mode })},
	{envPrefix + "USER_AGENT", strField(func(c *Config) *string { return &c.UserAgent })},
	{envPrefix + "CACHE_DIR", strField(func(c *Config) *string { return &c.CacheDir })},
	{envPrefix + "CACHE_MAX_AGE", durationField(func(c *Config) *time.Duration { return &c.CacheMaxAge })},
	{envPrefix + "CACHE_MEMORY_TTL", durationField(func(c *Config) *time.Duration { return &c.CacheMemoryTTL })},
	{envPrefix + "TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.Timeout })},
	{envPrefix + "MAX_ATTEMPTS", intField(func(c *Config) *int { return &c.MaxAttempts })},
	{envPrefix + "MAX_CONCURRENT", intField(func(c *Config) *int { return &c.MaxConcurrent })},
	{envPrefix + "MAX_PDF_PAGES", intField(func(c *Config) *int { return &c.MaxPDFPages })},
	{envPrefix + "RATE_LIMIT", func(c *Config, v string, force bool) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return
		}
		if force || c.RateLimit == 0 {
			c.RateLimit = f
		}
	}},
	{envPrefix + "CLEAN", boolField(func(c *Config) *bool { return &c.Clean })},
	{envPrefix + "HIGHLIGHT", boolField(func(c *Config) *bool { return &c.Highlight })},
	{envPrefix + "CACHE_CLEAR", boolField(func(c *Config) *bool { return &c.CacheClear })},
	{envPrefix + "CACHE_STRICT_PERMS", boolField(func(c *Config) *bool { return &c.CacheStrictPerms })},
	{envPrefix + "VERBOSE", boolField(func(c *Config) *bool { return &c.Verbose })},
}

func applyEnv(cfg *Config, force bool) {
	if cfg == nil {
		return
	}
	for _, b := range envBindings {
		if v := strings.TrimSpace(os.Getenv(b.key)); v != "" {
			b.apply(cfg, v, force)
		}
	}
}

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	applyEnv(cfg, false)
}

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file so env beats file while flags, applied
// last, stay highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	applyEnv(cfg, true)
}
