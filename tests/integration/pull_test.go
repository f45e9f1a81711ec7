//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/Sternrassler/oneroster-client/internal/testutil"
	"github.com/Sternrassler/oneroster-client/pkg/client"
	"github.com/Sternrassler/oneroster-client/pkg/pagination"
	"github.com/Sternrassler/oneroster-client/pkg/ratelimit"
	"github.com/Sternrassler/oneroster-client/pkg/roster"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newPipeline wires client, fetcher and orchestrator against the mock.
func newPipeline(t *testing.T, mock *testutil.MockRoster, store ratelimit.Store, pageSize int, endpoints []string) (*roster.Orchestrator, *ratelimit.Tracker) {
	t.Helper()

	tracker := ratelimit.NewTracker(store, zerolog.Nop())

	cfg := client.DefaultConfig(mock.URL(), "key", "secret")
	cfg.Retry.BaseWait = 10 * time.Millisecond
	cfg.Retry.MaxJitter = 0

	c, err := client.New(cfg, client.WithRateLimitTracker(tracker), client.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	fetcher := pagination.NewFetcher(c, pagination.Config{PageSize: pageSize}, zerolog.Nop())
	return roster.NewOrchestrator(fetcher, endpoints, zerolog.Nop()), tracker
}

func TestFullPull_WithRedisRateLimitState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockRoster("key", "secret")
	defer mock.Close()

	reset := time.Now().Add(10 * time.Minute).Unix()
	for _, ep := range roster.DefaultEndpoints {
		mock.GenerateRecords(ep, ep[1:], 25)
		mock.SetHeaders(ep, map[string]string{
			ratelimit.HeaderRemaining: "500",
			ratelimit.HeaderReset:     strconv.FormatInt(reset, 10),
		})
	}
	mock.QueueStatuses("/classes", http.StatusOK, http.StatusTooManyRequests)

	store := ratelimit.NewRedisStore(redisClient, "oneroster:rate_limit:test")
	orchestrator, _ := newPipeline(t, mock, store, 10, nil)

	dataset := orchestrator.PullAll(context.Background())

	if !dataset.Complete() {
		t.Fatalf("dataset incomplete: %+v", dataset.Summaries())
	}
	for _, ep := range roster.DefaultEndpoints {
		if got := len(dataset.Records(ep)); got != 25 {
			t.Errorf("%s: records = %d, want 25", ep, got)
		}
		// 3 pages of 10, plus the 429 retry on /classes
		want := 3
		if ep == "/classes" {
			want = 4
		}
		if got := len(mock.Requests(ep)); got != want {
			t.Errorf("%s: requests = %d, want %d", ep, got, want)
		}
	}

	// State written by this run is visible to another process sharing redis.
	other := ratelimit.NewTracker(ratelimit.NewRedisStore(redisClient, "oneroster:rate_limit:test"), zerolog.Nop())
	state, err := other.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state == nil || state.Remaining != 500 {
		t.Fatalf("shared state = %+v, want remaining 500", state)
	}
	if state.ResetAt.Unix() != reset {
		t.Errorf("ResetAt = %d, want %d", state.ResetAt.Unix(), reset)
	}

	out, err := json.Marshal(dataset)
	if err != nil {
		t.Fatalf("marshal dataset: %v", err)
	}
	var decoded map[string][]json.RawMessage
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("dataset JSON invalid: %v", err)
	}
	if len(decoded) != len(roster.DefaultEndpoints) {
		t.Errorf("dataset keys = %d, want %d", len(decoded), len(roster.DefaultEndpoints))
	}
}

func TestFullPull_ExhaustedBudgetWaitsForReset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockRoster("key", "secret")
	defer mock.Close()
	mock.GenerateRecords("/orgs", "org", 3)

	// Another process already spent the budget; the window resets shortly.
	store := ratelimit.NewRedisStore(redisClient, "oneroster:rate_limit:exhausted")
	now := time.Now()
	if err := store.Save(context.Background(), &ratelimit.State{
		Remaining:  0,
		ResetAt:    now.Add(2500 * time.Millisecond),
		LastUpdate: now,
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	orchestrator, _ := newPipeline(t, mock, store, 10, []string{"/orgs"})

	start := time.Now()
	dataset := orchestrator.PullAll(context.Background())
	elapsed := time.Since(start)

	if got := len(dataset.Records("/orgs")); got != 3 {
		t.Errorf("records = %d, want 3", got)
	}
	if elapsed < time.Second {
		t.Errorf("pull took %v, expected it to wait for the rate limit reset", elapsed)
	}
}

func TestFullPull_PartialEndpointKeepsOthers(t *testing.T) {
	mock := testutil.NewMockRoster("key", "secret")
	defer mock.Close()
	mock.GenerateRecords("/orgs", "org", 5)
	mock.GenerateRecords("/users", "user", 5)
	mock.QueueStatuses("/orgs", http.StatusOK, http.StatusForbidden)

	orchestrator, _ := newPipeline(t, mock, ratelimit.NewMemoryStore(), 2, []string{"/orgs", "/users"})

	dataset := orchestrator.PullAll(context.Background())

	orgs, _ := dataset.Collection("/orgs")
	if orgs.Complete || len(orgs.Records) != 2 || orgs.Status != http.StatusForbidden {
		t.Errorf("/orgs = %d records, complete=%t, status=%d; want 2/false/403",
			len(orgs.Records), orgs.Complete, orgs.Status)
	}
	if got := len(dataset.Records("/users")); got != 5 {
		t.Errorf("/users records = %d, want 5", got)
	}
}
