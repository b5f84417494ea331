package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-seeder/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-data-seeder/internal/config"
	"github.com/couchcryptid/storm-data-seeder/internal/domain"
	"github.com/couchcryptid/storm-data-seeder/internal/observability"
	"github.com/couchcryptid/storm-data-seeder/internal/pipeline"
)

const (
	metricsJob = "storm_seeder"

	// Commands carrying this annotation never touch the network, so sink
	// credentials are not required.
	annotationOffline = "offline"
)

var errBatchFailures = errors.New("one or more batches failed")

// app carries what PersistentPreRunE builds for the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	status  runStatus

	batchSize int
	sink      string
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{clock: clockwork.NewRealClock()}

	root := &cobra.Command{
		Use:   "seeder",
		Short: "Seed the storm data store from NOAA CSV exports",
		Long: `Parses NOAA Storm Events CSV exports, normalizes the rows, and upserts them
in batches into the storm data store (PostgREST by default, or PostgreSQL and
Kafka). Configuration comes from the environment and an optional .env file.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().IntVar(&a.batchSize, "batch-size", 0, "records per upsert request (overrides BATCH_SIZE)")
	root.PersistentFlags().StringVar(&a.sink, "sink", "", "destination: rest, postgres, or kafka (overrides SINK)")

	root.AddCommand(
		newHailCmd(a),
		newStormsCmd(a),
		newVerifyCmd(a),
		newValidateCmd(a),
	)
	return root, a
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = a.batchSize
	}
	if cmd.Flags().Changed("sink") {
		cfg.Sink = strings.ToLower(strings.TrimSpace(a.sink))
	}
	if _, offline := cmd.Annotations[annotationOffline]; !offline {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	a.cfg = cfg
	a.logger = observability.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	a.metrics = observability.NewMetrics()
	a.logger.Debug("config loaded", "config", cfg)
	return nil
}

// pushMetrics sends the run's metrics to the Pushgateway, if one is configured.
func (a *app) pushMetrics() {
	if a.metrics == nil || a.cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, metricsJob); err != nil {
		a.logger.Warn("push metrics failed", "error", err)
	}
}

func (a *app) geocoder() domain.Geocoder {
	if !a.cfg.MapboxEnabled {
		a.logger.Info("mapbox geocoding disabled")
		return nil
	}
	client := mapbox.NewClient(a.cfg.MapboxToken, a.cfg.MapboxTimeout, a.metrics, a.logger)
	a.logger.Info("mapbox geocoding enabled", "cache_size", a.cfg.MapboxCacheSize, "timeout", a.cfg.MapboxTimeout)
	return mapbox.NewCachedGeocoder(client, a.cfg.MapboxCacheSize, a.metrics)
}

func (a *app) normalizeOptions() domain.NormalizeOptions {
	return domain.NormalizeOptions{
		Category:     a.cfg.SeedCategory,
		DefaultState: a.cfg.SeedState,
	}
}

func printSummary(w io.Writer, s pipeline.Summary) {
	fmt.Fprintf(w, "%s: %d records, %d inserted (%d merged), %d errors, %d batches in %s\n",
		s.Entity, s.TotalRecords, s.TotalInserted, s.Merged, s.Errors, s.Batches, s.Duration.Round(time.Millisecond))
	if s.Verified != nil {
		fmt.Fprintf(w, "%s: store reports %d rows\n", s.Entity, *s.Verified)
	}
	if s.Cancelled {
		fmt.Fprintf(w, "%s: cancelled, remaining batches were not sent\n", s.Entity)
	}
}

// failed turns the batch error count into the command's error.
func failed(summaries ...pipeline.Summary) error {
	n := 0
	for _, s := range summaries {
		n += s.Errors
	}
	if n > 0 {
		return fmt.Errorf("%w: %d failed", errBatchFailures, n)
	}
	return nil
}
