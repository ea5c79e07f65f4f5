package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lslunis/ergometer/internal/cache"
	"github.com/lslunis/ergometer/internal/config"
	"github.com/lslunis/ergometer/internal/ergotime"
	"github.com/lslunis/ergometer/internal/ingest"
	"github.com/lslunis/ergometer/internal/logging"
	"github.com/lslunis/ergometer/internal/metrics"
	"github.com/lslunis/ergometer/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine: tail the local event log and publish cache deltas",
		Long: `serve opens the database, seeds the cache with a full recomputation,
and tails the configured local event log, applying each batch through
the Cache Controller. Every published delta is printed to stdout as one
JSON object per line, for the (out-of-scope) UI process to consume.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data")

	cfg, err := config.LoadFromFile(filepath.Join(dataDir, "config.yaml"))
	if err != nil {
		cfg = config.Default()
		cfg.Database.Path = filepath.Join(dataDir, "ergometer.db")
		cfg.Ingest.LogPath = filepath.Join(dataDir, "events.log")
	}

	logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)
	decisionLog := logging.NewDecisionLogger(dataDir, cfg.Logging.Level)
	defer decisionLog.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.Path, store.Defaults)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.Database.Path, err)
	}
	defer st.Close()

	initial, err := recomputeCache(ctx, st)
	if err != nil {
		return fmt.Errorf("seeding cache: %w", err)
	}

	ctrl := cache.New(st, time.Now, decisionLog, cache.NewActivityUpdater, initial)

	position, _, err := st.GetHostPosition(ctx, cfg.Ingest.HostID)
	if err != nil {
		return fmt.Errorf("reading host position for %s: %w", cfg.Ingest.HostID, err)
	}

	tailer := ingest.New(ingest.Config{
		Host:               cfg.Ingest.HostID,
		Path:               cfg.Ingest.LogPath,
		PollInterval:       time.Duration(cfg.Ingest.PollIntervalMS) * time.Millisecond,
		RateLimitPerSecond: cfg.Ingest.RateLimitPerSecond,
		RateLimitBurst:     cfg.Ingest.RateLimitBurst,
	}, logger)

	batches := make(chan cache.Batch)
	tailErr := make(chan error, 1)
	go func() { tailErr <- tailer.Run(ctx, position, batches) }()

	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-tailErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("ingest: %w", err)
		case batch := <-batches:
			delta, err := ctrl.Process(ctx, batch)
			if err != nil {
				logger.Error("batch processing failed", "host", batch.Host, "position", batch.Position, "error", err)
				continue
			}
			if err := encoder.Encode(delta.Cache); err != nil {
				logger.Error("encoding delta", "error", err)
			}
		}
	}
}

// recomputeCache performs the full, non-incremental derivation the
// Cache Controller's selective refresh is an optimization over: every
// field computed straight from the store, used once at startup.
func recomputeCache(ctx context.Context, st *store.Store) (cache.Cache, error) {
	daily, _, err := st.GetSetting(ctx, store.DailyTarget)
	if err != nil {
		return cache.Cache{}, err
	}
	session, _, err := st.GetSetting(ctx, store.SessionTarget)
	if err != nil {
		return cache.Cache{}, err
	}
	rest, _, err := st.GetSetting(ctx, store.RestTarget)
	if err != nil {
		return cache.Cache{}, err
	}

	dayStart := ergotime.DayStartOf(time.Now())
	dailyTotal, err := metrics.ActivityTotal(ctx, st, dayStart, dayStart+86400)
	if err != nil {
		return cache.Cache{}, err
	}
	sessionStart, err := metrics.SessionStart(ctx, st, rest)
	if err != nil {
		return cache.Cache{}, err
	}
	restStart, err := metrics.RestStart(ctx, st)
	if err != nil {
		return cache.Cache{}, err
	}

	return cache.Cache{
		DayStart:      dayStart,
		DailyTotal:    dailyTotal,
		SessionStart:  sessionStart,
		RestStart:     restStart,
		DailyTarget:   daily,
		SessionTarget: session,
		RestTarget:    rest,
	}, nil
}
