package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/teisimplify/internal/backend"
	"github.com/hyperifyio/teisimplify/internal/cache"
	"github.com/hyperifyio/teisimplify/internal/grobid"
	"github.com/hyperifyio/teisimplify/internal/ingest"
	"github.com/hyperifyio/teisimplify/internal/llm"
	"github.com/hyperifyio/teisimplify/internal/server"
	"github.com/hyperifyio/teisimplify/internal/session"
	"github.com/hyperifyio/teisimplify/internal/simplify"
	"github.com/hyperifyio/teisimplify/internal/tei"
)

type App struct {
	cfg          Config
	loader       *ingest.Loader
	provider     simplify.Provider
	providerName string
	session      *session.Session
	settings     *session.Settings
	stdin        io.Reader
	stdout       io.Writer
}

// ErrNoProvider is returned by simplification requests when neither a
// simplification service nor an LLM is configured.
var ErrNoProvider = errors.New("no simplification backend configured")

func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	scope, _ := tei.ParseScope(cfg.Scope)

	store := openCache(cfg)
	client := &backend.Client{
		HTTPClient:        newBackendHTTPClient(),
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.MaxAttempts,
		PerRequestTimeout: cfg.Timeout,
		MaxConcurrent:     cfg.MaxConcurrent,
		RequestsPerSecond: cfg.RateLimit,
	}

	var source ingest.TEISource
	if strings.TrimSpace(cfg.ExtractURL) != "" {
		source = &grobid.Client{BaseURL: cfg.ExtractURL, Path: cfg.ExtractPath, HTTP: client, Cache: store}
	}
	a := &App{
		cfg: cfg,
		loader: &ingest.Loader{
			Source:    source,
			Extractor: tei.TEIExtractor{Options: tei.Options{Scope: scope, Clean: cfg.Clean}},
			Limits:    ingest.Limits{MaxBytes: cfg.MaxPDFBytes, MaxPages: cfg.MaxPDFPages},
		},
		session:  session.New(),
		settings: session.NewSettings(),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
	}
	a.settings.SetLang(cfg.Language)
	if cfg.Mode != "" {
		m, _ := session.ParseMode(cfg.Mode)
		a.settings.SetMode(m)
	}

	switch a.providerKind() {
	case "http":
		a.providerName = "http"
		a.provider = &simplify.HTTPProvider{BaseURL: cfg.SimplifyURL, Client: client, Cache: store}
	case "llm":
		a.providerName = "llm"
		ai := llm.NewOpenAI(cfg.LLMBaseURL, cfg.LLMAPIKey)
		a.provider = &simplify.LLMProvider{Client: ai, Model: cfg.LLMModel, Focus: cfg.LLMFocus, MaxOutputTokens: cfg.LLMMaxTokens, Cache: store}
		preflightModels(ctx, ai)
	}
	return a, nil
}

func (a *App) providerKind() string {
	switch p := strings.ToLower(strings.TrimSpace(a.cfg.Provider)); {
	case p != "":
		return p
	case strings.TrimSpace(a.cfg.SimplifyURL) != "":
		return "http"
	case strings.TrimSpace(a.cfg.LLMModel) != "":
		return "llm"
	}
	return ""
}

// openCache layers an in-process cache over the optional disk cache and
// applies the invalidation controls.
func openCache(cfg Config) cache.Store {
	mem := cache.NewMemory(cfg.CacheMemoryTTL)
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return mem
	}
	if cfg.CacheClear {
		if err := cache.ClearDir(cfg.CacheDir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
		}
	}
	if cfg.CacheMaxAge > 0 {
		if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
			log.Warn().Err(err).Msg("cache purge failed")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("purged stale cache entries")
		}
	}
	return &cache.Layered{Memory: mem, Disk: &cache.Disk{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}}
}

// preflightModels is best-effort: an unreachable model server is logged and
// left for the first request to surface.
func preflightModels(ctx context.Context, lister llm.ModelLister) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) > 0 {
		log.Info().Int("count", len(models.Models)).Msg("LLM models available")
	} else {
		log.Warn().Msg("LLM returned zero models")
	}
}

func (a *App) Close() {}

// Run executes one CLI invocation, or serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Serve {
		return a.serve(ctx)
	}
	text, err := a.readInput(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("chars", len(text)).Str("input", a.inputName()).Msg("input loaded")

	var resp *simplify.Response
	if a.provider != nil {
		resp, err = a.simplify(ctx, text)
		if err != nil {
			return err
		}
	}
	out, err := a.render(text, resp)
	if err != nil {
		return err
	}
	ext := ".txt"
	if strings.EqualFold(a.cfg.Format, "json") {
		ext = ".json"
	}
	path := resolveOutputPath(a.cfg.OutputPath, a.cfg.InputPath, text, ext)
	if path == "" {
		_, err := io.WriteString(a.stdout, out)
		return err
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("out", path).Msg("wrote output")
	if a.cfg.Manifest {
		m := buildManifest(a.cfg, a.inputName(), text, a.providerName, resp, time.Now())
		if err := writeManifest(deriveManifestSidecarPath(path), m); err != nil {
			log.Warn().Err(err).Msg("write manifest failed")
		}
	}
	return nil
}

func (a *App) inputName() string {
	if strings.TrimSpace(a.cfg.Text) != "" {
		return "inline"
	}
	return a.cfg.InputPath
}

// readInput resolves inline text, stdin ("-") or a file through the loader.
func (a *App) readInput(ctx context.Context) (string, error) {
	if a.cfg.Text != "" {
		if strings.TrimSpace(a.cfg.Text) == "" {
			return "", ingest.ErrEmptyDocument
		}
		return a.cfg.Text, nil
	}
	if a.cfg.InputPath == "-" {
		b, err := io.ReadAll(a.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return a.loader.Load(ctx, "stdin.txt", b)
	}
	if ingest.KindOf(a.cfg.InputPath) == ingest.KindUnknown {
		return "", fmt.Errorf("%w: %s", ingest.ErrUnsupportedFileType, a.cfg.InputPath)
	}
	b, err := os.ReadFile(a.cfg.InputPath)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return a.loader.Load(ctx, a.cfg.InputPath, b)
}

func (a *App) simplify(ctx context.Context, text string) (*simplify.Response, error) {
	ticket := a.session.Begin()
	resp, err := a.provider.Simplify(ctx, text)
	if err != nil {
		a.session.Fail(ticket, session.SimplifyErrorText)
		return nil, fmt.Errorf("simplify: %w", err)
	}
	a.session.Apply(ticket, resp)
	return resp, nil
}

type jsonOutput struct {
	Input       string               `json:"input"`
	Text        string               `json:"text"`
	Result      *session.Snapshot    `json:"result,omitempty"`
	Highlighted string               `json:"highlighted,omitempty"`
	Settings    session.SettingsView `json:"settings"`
}

func (a *App) render(text string, resp *simplify.Response) (string, error) {
	snap := a.session.Snapshot()
	if strings.EqualFold(a.cfg.Format, "json") {
		out := jsonOutput{Input: a.inputName(), Text: text, Settings: a.settings.View(snap)}
		if resp != nil {
			out.Result = &snap
			if a.cfg.Highlight {
				out.Highlighted = a.session.Highlighted()
			}
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b) + "\n", nil
	}

	if resp == nil {
		return text + "\n", nil
	}
	var b strings.Builder
	if a.cfg.Highlight {
		b.WriteString(a.session.Highlighted())
	} else {
		b.WriteString(snap.Simplified)
	}
	b.WriteString("\n")
	if a.settings.ShowMetrics(snap) {
		m := snap.Metrics
		fmt.Fprintf(&b, "\nMetrics:\n  readability: %.2f\n  complexity: %.2f\n  frequency: %.2f\n  bertscore: %.2f\n  bertsim: %.2f\n",
			m.Readability, m.Complexity, m.FrequencyScore, m.Bert, m.Berts)
	}
	return b.String(), nil
}

type noProvider struct{}

func (noProvider) Simplify(context.Context, string) (*simplify.Response, error) {
	return nil, fmt.Errorf("%w: %w", simplify.ErrSimplifyFailed, ErrNoProvider)
}

// Handler returns the HTTP API bound to this app's state.
func (a *App) Handler() http.Handler {
	provider := a.provider
	if provider == nil {
		provider = noProvider{}
	}
	srv := server.New(a.loader, provider, a.session, a.settings)
	if a.cfg.Timeout > 0 {
		srv.Timeout = a.cfg.Timeout + 10*time.Second
	}
	if a.cfg.MaxPDFBytes > 0 {
		srv.MaxUploadBytes = a.cfg.MaxPDFBytes + 1<<20
	}
	return srv.Handler()
}

func (a *App) serve(ctx context.Context) error {
	hs := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.Addr).Str("provider", a.providerName).Msg("listening")
		errc <- hs.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
