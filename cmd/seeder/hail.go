package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
	"github.com/couchcryptid/storm-data-seeder/internal/pipeline"
	"github.com/couchcryptid/storm-data-seeder/internal/source"
)

const defaultHailCSV = "wisconsin_hail_2024_2025.csv"

func newHailCmd(a *app) *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "hail",
		Short: "Seed the storm events table from a NOAA hail export",
		Long: `Reads a NOAA Storm Events bulk CSV, keeps the rows whose EVENT_TYPE matches
SEED_CATEGORY, and upserts them on event_id. After the upload the store is
asked how many rows it holds for SEED_STATE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.seedHail(cmd.Context(), cmd.OutOrStdout(), csvPath)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", defaultHailCSV, "path to the hail CSV export")
	return cmd
}

func (a *app) seedHail(ctx context.Context, out io.Writer, path string) error {
	reader, err := source.Open[domain.HailRow](path, domain.HailRequiredColumns)
	if err != nil {
		return fmt.Errorf("open hail csv: %w", err)
	}
	defer reader.Close()

	stop, err := a.startStatusServer()
	if err != nil {
		return err
	}
	defer stop()

	b, err := openBackend(ctx, a.cfg, a.logger, a.clock)
	if err != nil {
		return err
	}
	defer b.Close()

	table := a.cfg.HailTable
	loader, verifier, err := bindTable[domain.HailRecord](b, table, "event_id")
	if err != nil {
		return err
	}

	parser := pipeline.NewParser(a.normalizeOptions(), a.geocoder(), nil, a.logger, a.metrics)
	driver := pipeline.NewDriver(loader, a.logger, a.metrics, pipeline.Options{
		Entity:    table,
		BatchSize: a.cfg.BatchSize,
		Verifier:  verifier,
		Filter:    domain.Filter{Column: "state", Value: a.cfg.SeedState},
		Clock:     a.clock,
		OnStage:   a.status.observe,
	})

	a.logger.Info("seeding hail events", "csv", path, "table", table, "batch_size", a.cfg.BatchSize)
	summary, err := driver.Run(ctx, parser.Hail(ctx, reader.Rows()))
	if err != nil {
		if summary.Cancelled {
			printSummary(out, summary)
		}
		return fmt.Errorf("seed %s: %w", table, err)
	}

	stats := parser.Stats()
	a.logger.Info("parse complete",
		"read", stats.Read,
		"kept", stats.Kept,
		"filtered", stats.Filtered,
		"default_magnitude", stats.DefaultMagnitude,
		"null_dates", stats.NullDates,
	)
	printSummary(out, summary)
	return failed(summary)
}
