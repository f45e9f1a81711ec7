package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/oneroster-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneroster_retries_total",
		Help: "Total number of retry attempts by status code",
	}, []string{"status"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oneroster_retry_backoff_seconds",
		Help:    "Backoff duration before each retry",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneroster_retry_exhausted_total",
		Help: "Total number of requests that exhausted their retries",
	})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseWait is the backoff before the first retry; it doubles each retry.
	BaseWait time.Duration

	// MaxJitter bounds the uniform random delay added to every backoff.
	MaxJitter time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseWait:   1 * time.Second,
		MaxJitter:  1 * time.Second,
	}
}

// AttemptFunc performs one request attempt.
type AttemptFunc func(ctx context.Context) transport.Result

// RetryPolicy retries 429 and 502 results with exponential backoff.
type RetryPolicy struct {
	config RetryConfig
	logger zerolog.Logger
	jitter func() time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a retry policy.
func NewRetryPolicy(cfg RetryConfig, logger zerolog.Logger) *RetryPolicy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	p := &RetryPolicy{
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
	}
	p.jitter = func() time.Duration {
		if p.config.MaxJitter <= 0 {
			return 0
		}
		return rand.N(p.config.MaxJitter)
	}
	return p
}

// Config returns the policy configuration.
func (p *RetryPolicy) Config() RetryConfig {
	return p.config
}

// Backoff returns the wait before retry number retries+1:
// BaseWait * 2^retries plus jitter.
func (p *RetryPolicy) Backoff(retries int) time.Duration {
	return p.config.BaseWait<<uint(retries) + p.jitter()
}

// Execute runs attempt until it returns 200, a non-transient status, or the
// retries are spent. It never returns an error: exhaustion yields a 500
// result whose Err is ErrRetryExhausted, and cancellation during a backoff
// yields a 500 result carrying the context error.
func (p *RetryPolicy) Execute(ctx context.Context, attempt AttemptFunc) transport.Result {
	for retries := 0; ; retries++ {
		res := attempt(ctx)

		if res.StatusCode == http.StatusOK {
			if retries > 0 {
				p.logger.Info().
					Int("attempt", retries+1).
					Msg("Request succeeded after retry")
			}
			return res
		}

		if !isTransient(res.StatusCode) {
			return res
		}

		if retries >= p.config.MaxRetries {
			retryExhaustedTotal.Inc()
			p.logger.Warn().
				Int("status", res.StatusCode).
				Int("max_retries", p.config.MaxRetries).
				Msg("Retry attempts exhausted")

			return transport.Result{
				StatusCode: http.StatusInternalServerError,
				Body:       []byte(ExhaustedBody),
				Err:        fmt.Errorf("%w after %d attempts: status %d", ErrRetryExhausted, retries+1, res.StatusCode),
			}
		}

		wait := p.Backoff(retries)
		retriesTotal.WithLabelValues(strconv.Itoa(res.StatusCode)).Inc()
		retryBackoffSeconds.Observe(wait.Seconds())

		p.logger.Warn().
			Int("status", res.StatusCode).
			Int("attempt", retries+1).
			Dur("backoff", wait).
			Msg("Transient failure - retrying after backoff")

		if err := p.sleep(ctx, wait); err != nil {
			p.logger.Warn().
				Int("attempt", retries+1).
				Msg("Context cancelled during retry backoff")
			return transport.Failure(fmt.Errorf("retry backoff: %w", err))
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
