package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Intent: dotenv files populate the process environment.
func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	t.Setenv("FOO", "")
	t.Setenv("BAR", "")
	t.Setenv("BAZ", "")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nFOO=alpha\nexport BAR=\"beta gamma\"\nnot a pair\nBAZ='q'\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	require.NoError(t, LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "alpha", os.Getenv("FOO"))
	assert.Equal(t, "beta gamma", os.Getenv("BAR"))
	assert.Equal(t, "q", os.Getenv("BAZ"))
}

// Later files override earlier ones when loading multiple dotenv files.
func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	t.Setenv("K", "")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	require.NoError(t, os.WriteFile(a, []byte("K=first\n"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("K=second\n"), 0o600))
	require.NoError(t, LoadEnvFiles(a, b))
	assert.Equal(t, "second", os.Getenv("K"), "override order")
}

func TestApplyEnvToConfig_FillsOnlyUnset(t *testing.T) {
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("LLM_FOCUS", "models, data ,")
	t.Setenv("TEISIMPLIFY_SIMPLIFY_URL", "http://simplify.example:5001")
	t.Setenv("TEISIMPLIFY_CACHE_DIR", "/tmp/teisimplify-cache")
	t.Setenv("TEISIMPLIFY_CACHE_MAX_AGE", "24h")
	t.Setenv("TEISIMPLIFY_MAX_ATTEMPTS", "4")
	t.Setenv("TEISIMPLIFY_RATE_LIMIT", "2.5")
	t.Setenv("TEISIMPLIFY_CLEAN", "yes")
	t.Setenv("TEISIMPLIFY_SCOPE", "descendant")

	cfg := Config{LLMModel: "flag-model"}
	ApplyEnvToConfig(&cfg)
	assert.Equal(t, "flag-model", cfg.LLMModel, "explicit value overwritten")
	assert.Equal(t, []string{"models", "data"}, cfg.LLMFocus)
	assert.Equal(t, "http://simplify.example:5001", cfg.SimplifyURL)
	assert.Equal(t, "/tmp/teisimplify-cache", cfg.CacheDir)
	assert.Equal(t, 24*time.Hour, cfg.CacheMaxAge)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.True(t, cfg.Clean)
	assert.Equal(t, "descendant", cfg.Scope)
}

func TestApplyEnvOverrides_ForcesValues(t *testing.T) {
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("TEISIMPLIFY_HIGHLIGHT", "false")
	t.Setenv("TEISIMPLIFY_MAX_ATTEMPTS", "not-a-number")

	cfg := Config{LLMModel: "file-model", Highlight: true, MaxAttempts: 3}
	ApplyEnvOverrides(&cfg)
	assert.Equal(t, "env-model", cfg.LLMModel)
	assert.False(t, cfg.Highlight, "falsey env should clear Highlight")
	assert.Equal(t, 3, cfg.MaxAttempts, "invalid number should be ignored")
}
