package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/oneroster-client/pkg/transport"
	"github.com/rs/zerolog"
)

// newTestPolicy returns a policy that records its sleeps instead of sleeping.
func newTestPolicy(cfg RetryConfig) (*RetryPolicy, *[]time.Duration) {
	var slept []time.Duration
	p := NewRetryPolicy(cfg, zerolog.Nop())
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

// scripted returns an attempt func that replays statuses, repeating the last one.
func scripted(statuses ...int) (AttemptFunc, *int) {
	calls := 0
	return func(ctx context.Context) transport.Result {
		status := statuses[len(statuses)-1]
		if calls < len(statuses) {
			status = statuses[calls]
		}
		calls++
		return transport.Result{StatusCode: status, Body: []byte(http.StatusText(status))}
	}, &calls
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.BaseWait != 1*time.Second {
		t.Errorf("BaseWait = %v, want 1s", config.BaseWait)
	}
	if config.MaxJitter != 1*time.Second {
		t.Errorf("MaxJitter = %v, want 1s", config.MaxJitter)
	}
}

func TestRetryPolicy_SuccessImmediately(t *testing.T) {
	p, slept := newTestPolicy(DefaultRetryConfig())
	attempt, calls := scripted(http.StatusOK)

	res := p.Execute(context.Background(), attempt)

	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.StatusCode)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no backoff", *slept)
	}
}

func TestRetryPolicy_AlwaysRateLimited(t *testing.T) {
	p, slept := newTestPolicy(DefaultRetryConfig())
	attempt, calls := scripted(http.StatusTooManyRequests)

	res := p.Execute(context.Background(), attempt)

	if *calls != 4 {
		t.Errorf("calls = %d, want max_retries+1 = 4", *calls)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", res.StatusCode)
	}
	if string(res.Body) != ExhaustedBody {
		t.Errorf("body = %q, want %q", res.Body, ExhaustedBody)
	}
	if !errors.Is(res.Err, ErrRetryExhausted) {
		t.Errorf("Err = %v, want ErrRetryExhausted", res.Err)
	}
	if len(*slept) != 3 {
		t.Errorf("backoffs = %d, want 3", len(*slept))
	}
}

func TestRetryPolicy_BadGatewayThenSuccess(t *testing.T) {
	p, slept := newTestPolicy(DefaultRetryConfig())
	attempt, calls := scripted(http.StatusBadGateway, http.StatusOK)

	res := p.Execute(context.Background(), attempt)

	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.StatusCode)
	}
	if *calls != 2 {
		t.Errorf("calls = %d, want 2", *calls)
	}
	if len(*slept) != 1 {
		t.Errorf("backoffs = %d, want 1", len(*slept))
	}
}

func TestRetryPolicy_NonRetryableShortCircuits(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"unauthorized", http.StatusUnauthorized},
		{"internal server error", http.StatusInternalServerError},
		{"service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, slept := newTestPolicy(DefaultRetryConfig())
			attempt, calls := scripted(tt.status)

			res := p.Execute(context.Background(), attempt)

			if *calls != 1 {
				t.Errorf("calls = %d, want 1", *calls)
			}
			if res.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (returned as-is)", res.StatusCode, tt.status)
			}
			if res.Err != nil {
				t.Errorf("Err = %v, want nil for a received response", res.Err)
			}
			if len(*slept) != 0 {
				t.Errorf("slept %v, want no backoff", *slept)
			}
		})
	}
}

func TestRetryPolicy_TransientThenPermanent(t *testing.T) {
	p, _ := newTestPolicy(DefaultRetryConfig())
	attempt, calls := scripted(http.StatusTooManyRequests, http.StatusForbidden)

	res := p.Execute(context.Background(), attempt)

	if res.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", res.StatusCode)
	}
	if *calls != 2 {
		t.Errorf("calls = %d, want 2", *calls)
	}
}

func TestRetryPolicy_ExponentialBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseWait: time.Second, MaxJitter: 0}
	p, slept := newTestPolicy(cfg)
	attempt, _ := scripted(http.StatusBadGateway)

	p.Execute(context.Background(), attempt)

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("backoffs = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig(), zerolog.Nop())

	for retries := 0; retries < 3; retries++ {
		base := time.Second << uint(retries)
		for i := 0; i < 100; i++ {
			d := p.Backoff(retries)
			if d < base || d >= base+time.Second {
				t.Fatalf("Backoff(%d) = %v, want in [%v, %v)", retries, d, base, base+time.Second)
			}
		}
	}
}

func TestRetryPolicy_ZeroRetries(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{MaxRetries: 0, BaseWait: time.Second})
	attempt, calls := scripted(http.StatusTooManyRequests)

	res := p.Execute(context.Background(), attempt)

	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
	if !errors.Is(res.Err, ErrRetryExhausted) {
		t.Errorf("Err = %v, want ErrRetryExhausted", res.Err)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no backoff", *slept)
	}
}

func TestRetryPolicy_ContextCancelledDuringBackoff(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{MaxRetries: 3, BaseWait: time.Hour}, zerolog.Nop())
	attempt, calls := scripted(http.StatusTooManyRequests)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := p.Execute(ctx, attempt)

	if time.Since(start) > 5*time.Second {
		t.Fatal("Execute() did not return promptly after cancellation")
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", res.StatusCode)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want context.DeadlineExceeded", res.Err)
	}
}
