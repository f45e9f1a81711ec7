// Package transport performs the raw HTTP GETs for the OneRoster client and
// folds every outcome, including network failures, into a Result value.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Result is the outcome of one request attempt.
type Result struct {
	// StatusCode is the HTTP status, or 500 for failures that never reached the server.
	StatusCode int

	// Body is the raw response body, or an error description for failures.
	Body []byte

	// Headers are the response headers (nil for failures).
	Headers http.Header

	// Err is set when the result was synthesized instead of received.
	Err error
}

// OK reports whether the attempt returned 200.
func (r Result) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Header returns the value of a response header, matched case-insensitively.
func (r Result) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	if v := r.Headers.Get(name); v != "" {
		return v
	}
	// Headers built by hand may not be canonicalized.
	for key, values := range r.Headers {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// Failure converts an error into a 500 result carrying its description.
func Failure(err error) Result {
	return Result{
		StatusCode: http.StatusInternalServerError,
		Body:       []byte(err.Error()),
		Err:        err,
	}
}

// Transport is the GET primitive the client is built on.
type Transport interface {
	Get(ctx context.Context, rawURL string, headers map[string]string, params url.Values) Result
}

// Config holds HTTP transport settings.
type Config struct {
	// Timeout per request (default: 30s).
	Timeout time.Duration

	// RateLimit caps requests per second; 0 disables pacing.
	RateLimit float64

	// RateBurst is the limiter burst size (default: 1).
	RateBurst int

	// UserAgent header sent with every request.
	UserAgent string

	// RoundTripper overrides the default transport (tests).
	RoundTripper http.RoundTripper
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		RateBurst: 1,
		UserAgent: "oneroster-client/0.1.0",
	}
}

// HTTPTransport implements Transport with net/http.
type HTTPTransport struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	logger     zerolog.Logger
}

// New creates an HTTP transport.
func New(cfg Config) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	t := &HTTPTransport{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.RoundTripper,
		},
		userAgent: cfg.UserAgent,
		logger:    log.With().Str("component", "transport").Logger(),
	}
	if cfg.RateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return t
}

// Get issues a GET to rawURL with params set as query parameters. It never
// returns an error: transport failures become a 500 Result.
func (t *HTTPTransport) Get(ctx context.Context, rawURL string, headers map[string]string, params url.Values) Result {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return Failure(fmt.Errorf("rate limiter: %w", err))
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Failure(fmt.Errorf("parse url: %w", err))
	}
	query := u.Query()
	for key, values := range params {
		query[key] = values
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Failure(fmt.Errorf("create request: %w", err))
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Warn().Err(err).Str("url", u.Redacted()).Msg("HTTP request failed")
		return Failure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failure(fmt.Errorf("read response body: %w", err))
	}

	return Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}
}
