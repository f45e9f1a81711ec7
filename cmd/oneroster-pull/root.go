package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/oneroster-client/internal/config"
	"github.com/Sternrassler/oneroster-client/pkg/client"
	"github.com/Sternrassler/oneroster-client/pkg/logging"
	"github.com/Sternrassler/oneroster-client/pkg/metrics"
	"github.com/Sternrassler/oneroster-client/pkg/pagination"
	"github.com/Sternrassler/oneroster-client/pkg/ratelimit"
	"github.com/Sternrassler/oneroster-client/pkg/roster"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "oneroster-pull",
		Short: "Pull a full OneRoster snapshot and print it as JSON",
		Long: `oneroster-pull signs every request with OAuth1 HMAC-SHA256, pages through
each roster endpoint in turn and prints the combined dataset to stdout.

Credentials and the base URL come from the config file or from
ONEROSTER_CONSUMER_KEY, ONEROSTER_CONSUMER_SECRET and ONEROSTER_BASE_URL.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			stderr := cmd.ErrOrStderr()
			logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.Logging.Level),
				Pretty: cfg.Logging.Pretty || logging.IsTerminal(stderr),
				Output: stderr,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.NewLogger(logging.ComponentCLI).With().
				Str("run_id", uuid.NewString()).
				Logger()

			return run(ctx, cfg, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ./oneroster.yaml)")

	return cmd
}

// run performs one full pull and writes the dataset to out.
func run(ctx context.Context, cfg *config.Config, out io.Writer, logger zerolog.Logger) error {
	store, closeStore := rateLimitStore(ctx, cfg, logger)
	defer closeStore()

	tracker := ratelimit.NewTracker(store, logging.NewLogger(logging.ComponentRateLimit))

	clientCfg := client.DefaultConfig(cfg.BaseURL, cfg.ConsumerKey, cfg.ConsumerSecret)
	clientCfg.Retry.MaxRetries = cfg.MaxRetries
	clientCfg.Retry.BaseWait = cfg.BaseWait
	clientCfg.Transport.Timeout = cfg.Timeout
	clientCfg.Transport.RateLimit = cfg.RateLimit
	clientCfg.Transport.UserAgent = "oneroster-pull/" + version

	c, err := client.New(clientCfg,
		client.WithRateLimitTracker(tracker),
		client.WithLogger(logging.NewLogger(logging.ComponentClient)),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	fetcher := pagination.NewFetcher(c, pagination.Config{PageSize: cfg.PageSize},
		logging.NewLogger(logging.ComponentPagination))
	orchestrator := roster.NewOrchestrator(fetcher, cfg.Endpoints,
		logging.NewLogger(logging.ComponentRoster))

	logger.Info().
		Str("base_url", cfg.BaseURL).
		Strs("endpoints", cfg.Endpoints).
		Int("page_size", cfg.PageSize).
		Msg("Starting pull")

	dataset := orchestrator.PullAll(ctx)

	data, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if _, err := fmt.Fprintln(out, string(data)); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	for _, s := range dataset.Summaries() {
		ev := logger.Info()
		if !s.Complete {
			ev = logger.Warn().Int("status", s.Status).Str("error", s.Error)
		}
		ev.Str("endpoint", s.Endpoint).
			Int("records", s.Records).
			Int("total", s.Total).
			Int("pages", s.Pages).
			Bool("complete", s.Complete).
			Msg("Endpoint summary")
	}

	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Error().Err(err).Str("path", cfg.Metrics.Textfile).Msg("Failed to export metrics")
	}

	return nil
}

// rateLimitStore returns the redis store when redis.addr is set and reachable,
// and an in-memory store otherwise.
func rateLimitStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ratelimit.Store, func()) {
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryStore(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().
			Err(err).
			Str("addr", cfg.Redis.Addr).
			Msg("Redis unreachable - keeping rate limit state in memory")
		rdb.Close()
		return ratelimit.NewMemoryStore(), func() {}
	}

	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	return ratelimit.NewRedisStore(rdb, keyPrefix(cfg.BaseURL)), func() { rdb.Close() }
}

// keyPrefix scopes shared rate-limit state to the tenant host.
func keyPrefix(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ratelimit.DefaultKeyPrefix
	}
	return ratelimit.DefaultKeyPrefix + ":" + u.Host
}
