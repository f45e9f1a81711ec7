package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultMaxWait bounds how long Wait holds a request back.
const DefaultMaxWait = 60 * time.Second

var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oneroster_rate_limit_remaining",
		Help: "Requests remaining in the current server rate limit window",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneroster_rate_limit_waits_total",
		Help: "Total number of requests held back until the rate limit window reset",
	})
)

// Tracker records server rate-limit headers and gates requests on them.
type Tracker struct {
	store   Store
	maxWait time.Duration
	logger  zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a tracker backed by store.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:   store,
		maxWait: DefaultMaxWait,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// SetMaxWait changes the upper bound on a single Wait.
func (t *Tracker) SetMaxWait(d time.Duration) {
	t.maxWait = d
}

// GetState returns the recorded state, or nil if none was recorded.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}
	return state, nil
}

// UpdateFromHeaders records the budget from response headers. Responses
// without the remaining header are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := strings.TrimSpace(headers.Get(HeaderRemaining))
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	now := t.now()
	state := &State{
		Remaining:  remain,
		ResetAt:    now,
		LastUpdate: now,
	}

	if resetStr := strings.TrimSpace(headers.Get(HeaderReset)); resetStr != "" {
		reset, err := strconv.ParseInt(resetStr, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		state.ResetAt = resetTime(reset, now)
	}

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	rateLimitRemaining.Set(float64(remain))

	if state.Exhausted(now) {
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit window exhausted")
	} else {
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}

	return nil
}

// Wait blocks until the rate-limit window resets if the recorded budget is
// spent. It waits at most the configured maximum and returns early with the
// context's error if ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	now := t.now()
	if state == nil || !state.Exhausted(now) {
		return nil
	}

	wait := state.TimeUntilReset(now)
	if t.maxWait > 0 && wait > t.maxWait {
		wait = t.maxWait
	}

	t.logger.Warn().
		Dur("wait", wait).
		Time("reset_at", state.ResetAt).
		Msg("Rate limit exhausted - waiting for reset")
	rateLimitWaitsTotal.Inc()

	return t.sleep(ctx, wait)
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
