package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrServer marks a 5xx response. It is the only status class that is retried.
var ErrServer = errors.New("server error")

// Client wraps http.Client and provides timeouts, limited retry on transient
// errors, a concurrency gate, and an optional outbound rate limit.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int
	// RequestsPerSecond caps the outbound request rate. Zero means unlimited.
	RequestsPerSecond float64
	// MaxBodyBytes caps how much of a response body is read. Zero means 32 MiB.
	MaxBodyBytes int64

	// internal gates initialized on first use
	gate     chan struct{}
	limiter  *rate.Limiter
	initOnce sync.Once
}

// RequestBuilder creates a fresh request for every attempt so bodies can be
// replayed.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

func (c *Client) init() {
	c.initOnce.Do(func() {
		if c.MaxConcurrent > 0 {
			c.gate = make(chan struct{}, c.MaxConcurrent)
		}
		if c.RequestsPerSecond > 0 {
			burst := int(c.RequestsPerSecond)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)
		}
	})
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.PerRequestTimeout}
}

// Do sends the request produced by build with bounded retry on 5xx and
// deadline errors. Non-5xx statuses are returned to the caller with a nil
// error so the body can be inspected; only transport failures and exhausted
// retries produce an error.
func (c *Client) Do(ctx context.Context, build RequestBuilder) ([]byte, int, error) {
	c.init()
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, status, err := c.tryOnce(ctx, build)
		if err == nil {
			return body, status, nil
		}
		if !isTransient(err) || i == attempts-1 || ctx.Err() != nil {
			return body, status, err
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", i+1).Msg("backend retry")
		select {
		case <-ctx.Done():
			return nil, status, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, 0, lastErr
}

func (c *Client) tryOnce(ctx context.Context, build RequestBuilder) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit: %w", err)
		}
	}
	if err := c.acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := build(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return nil, 0, fmt.Errorf("unsupported URL scheme: %q", req.URL)
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
		return b, resp.StatusCode, fmt.Errorf("%w: %d", ErrServer, resp.StatusCode)
	}
	return b, resp.StatusCode, nil
}

func isTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrServer)
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func (c *Client) acquire(ctx context.Context) error {
	if c.gate == nil {
		return nil
	}
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.gate == nil {
		return
	}
	select {
	case <-c.gate:
	default:
	}
}

// JoinURL appends path to base, tolerating a trailing slash on base.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
