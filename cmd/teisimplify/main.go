package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/teisimplify/internal/app"
	"github.com/hyperifyio/teisimplify/internal/ingest"
	"github.com/hyperifyio/teisimplify/internal/session"
	"github.com/hyperifyio/teisimplify/internal/simplify"
	"github.com/hyperifyio/teisimplify/internal/tei"
)

// options are flags that steer loading rather than populate app.Config.
type options struct {
	configPath  string
	envFiles    string
	showVersion bool
}

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Error().Err(err).Msg("invalid arguments")
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(app.VersionString())
		return
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		stop()
		os.Exit(exitCode(err))
	}
}

// parseArgs resolves configuration with precedence flags > env > file >
// defaults. Arguments are parsed twice: the first pass finds -config and -env,
// the second writes only explicitly given flags over the merged values.
func parseArgs(args []string, stderr io.Writer) (app.Config, options, error) {
	var (
		scratch = defaults()
		opts    options
	)
	first := newFlagSet(&scratch, &opts, stderr)
	if err := first.Parse(args); err != nil {
		return app.Config{}, opts, err
	}
	if opts.showVersion {
		return scratch, opts, nil
	}

	if err := app.LoadEnvFiles(strings.Split(opts.envFiles, ",")...); err != nil {
		return app.Config{}, opts, fmt.Errorf("load env: %w", err)
	}
	cfg := defaults()
	if strings.TrimSpace(opts.configPath) != "" {
		fc, err := app.LoadConfigFile(opts.configPath)
		if err != nil {
			return app.Config{}, opts, fmt.Errorf("%w: %v", app.ErrInvalidConfig, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	var ignored options
	second := newFlagSet(&cfg, &ignored, io.Discard)
	if err := second.Parse(args); err != nil {
		return app.Config{}, opts, err
	}
	if second.NArg() > 0 && cfg.InputPath == "" && cfg.Text == "" {
		cfg.InputPath = second.Arg(0)
	}
	return cfg, opts, nil
}

func defaults() app.Config {
	return app.Config{
		Format:      app.DefaultFormat,
		Addr:        app.DefaultAddr,
		UserAgent:   app.DefaultUserAgent,
		Timeout:     app.DefaultTimeout,
		MaxAttempts: app.DefaultAttempts,
		Language:    session.DefaultLanguage,
		Mode:        string(session.ModeBasic),
		CacheDir:    app.DefaultCacheDir,
	}
}

func newFlagSet(cfg *app.Config, opts *options, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("teisimplify", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&cfg.InputPath, "input", cfg.InputPath, "Input file: .txt, .pdf or TEI .xml (\"-\" reads text from stdin)")
	fs.StringVar(&cfg.Text, "text", cfg.Text, "Inline text to simplify instead of -input")
	fs.StringVar(&cfg.OutputPath, "output", cfg.OutputPath, "Output file or directory; empty or \"-\" writes to stdout")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Output format: text or json")
	fs.BoolVar(&cfg.Manifest, "manifest", cfg.Manifest, "Write a JSON manifest next to -output")

	fs.BoolVar(&cfg.Serve, "serve", cfg.Serve, "Serve the HTTP API instead of a single run")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address for -serve")

	fs.StringVar(&cfg.SimplifyURL, "simplify.url", cfg.SimplifyURL, "Simplification service base URL")
	fs.StringVar(&cfg.Provider, "provider", cfg.Provider, "Simplification provider: http or llm (default picks from configured URLs)")
	fs.StringVar(&cfg.ExtractURL, "extract.url", cfg.ExtractURL, "PDF extraction service base URL (GROBID)")
	fs.StringVar(&cfg.ExtractPath, "extract.path", cfg.ExtractPath, "Extraction route, e.g. /extract-pdf for the proxy")
	fs.Int64Var(&cfg.MaxPDFBytes, "pdf.maxBytes", cfg.MaxPDFBytes, "Reject PDFs larger than this many bytes (0 uses the default cap)")
	fs.IntVar(&cfg.MaxPDFPages, "pdf.maxPages", cfg.MaxPDFPages, "Reject PDFs with more pages (0 disables)")

	fs.StringVar(&cfg.LLMBaseURL, "llm.base", cfg.LLMBaseURL, "OpenAI-compatible base URL")
	fs.StringVar(&cfg.LLMModel, "llm.model", cfg.LLMModel, "Model name")
	fs.StringVar(&cfg.LLMAPIKey, "llm.key", cfg.LLMAPIKey, "API key for OpenAI-compatible server")
	fs.IntVar(&cfg.LLMMaxTokens, "llm.maxTokens", cfg.LLMMaxTokens, "Tokens reserved for the model reply (0 uses the default)")
	fs.Func("llm.focus", "Comma-separated focus topics added to the prompt", func(s string) error {
		cfg.LLMFocus = nil
		for _, p := range strings.Split(s, ",") {
			if v := strings.TrimSpace(p); v != "" {
				cfg.LLMFocus = append(cfg.LLMFocus, v)
			}
		}
		return nil
	})

	fs.StringVar(&cfg.UserAgent, "http.ua", cfg.UserAgent, "User-Agent for backend requests")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request backend timeout")
	fs.IntVar(&cfg.MaxAttempts, "attempts", cfg.MaxAttempts, "Backend attempts per request (retries on 5xx and timeouts)")
	fs.IntVar(&cfg.MaxConcurrent, "concurrency", cfg.MaxConcurrent, "Maximum concurrent backend requests (0 is unlimited)")
	fs.Float64Var(&cfg.RateLimit, "rate", cfg.RateLimit, "Backend requests per second (0 disables)")

	fs.BoolVar(&cfg.Clean, "clean", cfg.Clean, "Strip citations, LaTeX markers and boilerplate from paragraphs")
	fs.StringVar(&cfg.Scope, "scope", cfg.Scope, "Section scope: own or descendant")
	fs.BoolVar(&cfg.Highlight, "highlight", cfg.Highlight, "Mark keywords in the simplified text")
	fs.StringVar(&cfg.Language, "lang", cfg.Language, "Display language")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Display mode: basic or advanced (advanced shows metrics)")

	fs.StringVar(&cfg.CacheDir, "cache.dir", cfg.CacheDir, "Cache directory path (empty keeps responses in memory only)")
	fs.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", cfg.CacheMaxAge, "Max age for cache entries before purge (e.g. 24h); 0 disables")
	fs.BoolVar(&cfg.CacheClear, "cache.clear", cfg.CacheClear, "Clear cache directory before run")
	fs.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", cfg.CacheStrictPerms, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.DurationVar(&cfg.CacheMemoryTTL, "cache.memoryTTL", cfg.CacheMemoryTTL, "Lifetime of in-memory cache entries (0 uses the default)")

	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&opts.configPath, "config", os.Getenv("TEISIMPLIFY_CONFIG"), "Path to a YAML or JSON config file")
	fs.StringVar(&opts.envFiles, "env", ".env", "Comma-separated dotenv files to load")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	return fs
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}

// exitCode maps input and configuration problems to 2 and backend or I/O
// failures to 1.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ingest.ErrUnsupportedFileType),
		errors.Is(err, ingest.ErrEmptyDocument),
		errors.Is(err, ingest.ErrInvalidPDF),
		errors.Is(err, simplify.ErrEmptyInput),
		errors.Is(err, tei.ErrMalformedDocument),
		errors.Is(err, app.ErrInvalidConfig):
		return 2
	}
	return 1
}
