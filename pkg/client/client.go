// Package client provides the signed OneRoster HTTP client: every attempt is
// signed afresh with OAuth1 and wrapped in the retry policy.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/oneroster-client/pkg/oauth1"
	"github.com/Sternrassler/oneroster-client/pkg/ratelimit"
	"github.com/Sternrassler/oneroster-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneroster_requests_total",
		Help: "Total request attempts by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oneroster_request_duration_seconds",
		Help:    "Request duration including retries, by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneroster_errors_total",
		Help: "Total non-200 attempts by error class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is prefixed to every endpoint, e.g. "https://host/ims/oneroster/v1p1".
	BaseURL string

	// Consumer credentials for OAuth1 signing.
	ConsumerKey    string
	ConsumerSecret string

	// Retry
	Retry RetryConfig

	// Transport settings for the default HTTP transport.
	Transport transport.Config
}

// DefaultConfig returns a configuration with default retry and transport settings.
func DefaultConfig(baseURL, consumerKey, consumerSecret string) Config {
	return Config{
		BaseURL:        baseURL,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Retry:          DefaultRetryConfig(),
		Transport:      transport.DefaultConfig(),
	}
}

// Client issues signed, retried GET requests against one OneRoster tenant.
type Client struct {
	baseURL   string
	signer    *oauth1.Signer
	transport transport.Transport
	retry     *RetryPolicy
	limits    *ratelimit.Tracker
	logger    zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithSigner replaces the signer built from the configured credentials.
func WithSigner(s *oauth1.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithRateLimitTracker gates every attempt on the server's rate-limit headers.
func WithRateLimitTracker(t *ratelimit.Tracker) Option {
	return func(c *Client) { c.limits = t }
}

// WithLogger replaces the default component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	signer, err := oauth1.NewSigner(cfg.ConsumerKey, cfg.ConsumerSecret)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		signer:  signer,
		logger:  log.With().Str("component", "oneroster-client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = transport.New(cfg.Transport)
	}
	c.retry = NewRetryPolicy(cfg.Retry, c.logger)

	return c, nil
}

// RetryPolicy returns the policy wrapping each request.
func (c *Client) RetryPolicy() *RetryPolicy {
	return c.retry
}

// Get performs a signed GET of baseURL+endpoint with params, retrying
// transient failures. The result is the final attempt's result, or a
// synthesized 500 on retry exhaustion or transport failure.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) transport.Result {
	rawURL := c.baseURL + endpoint

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	return c.retry.Execute(ctx, func(ctx context.Context) transport.Result {
		return c.attempt(ctx, endpoint, rawURL, params)
	})
}

// attempt signs and sends one request. The signature is regenerated here so
// that every retry carries a fresh timestamp and nonce.
func (c *Client) attempt(ctx context.Context, endpoint, rawURL string, params url.Values) transport.Result {
	if c.limits != nil {
		if err := c.limits.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return transport.Failure(fmt.Errorf("rate limit wait: %w", err))
			}
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		}
	}

	header, query, err := c.signer.Sign(http.MethodGet, rawURL, params)
	if err != nil {
		return transport.Failure(fmt.Errorf("sign request: %w", err))
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("offset", query.Get("offset")).
		Msg("Executing OneRoster request")

	res := c.transport.Get(ctx, rawURL, map[string]string{
		"Authorization": header,
		"Accept":        "application/json",
	}, query)

	if c.limits != nil && res.Headers != nil {
		if err := c.limits.UpdateFromHeaders(ctx, res.Headers); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(res.StatusCode)).Inc()
	if class := Classify(res.StatusCode); class != ErrorClassNone {
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", res.StatusCode).
			Str("error_class", string(class)).
			Msg("OneRoster request error")
	}

	return res
}
