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

const defaultStormCSV = "noaa_hail_storms_2024.csv"

func newStormsCmd(a *app) *cobra.Command {
	var (
		csvPath   string
		skipLeads bool
	)

	cmd := &cobra.Command{
		Use:   "storms",
		Short: "Seed the storms table and fabricate property leads around each storm",
		Long: `Reads the lower-case storm export, upserts one storms row per event, then
generates 2 to 10 synthetic leads near each of the first LEAD_STORM_LIMIT storms
that have coordinates. Set LEAD_SEED for a reproducible run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.seedStorms(cmd.Context(), cmd.OutOrStdout(), csvPath, !skipLeads)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", defaultStormCSV, "path to the storm CSV export")
	cmd.Flags().BoolVar(&skipLeads, "skip-leads", false, "upload storms only")
	return cmd
}

func (a *app) seedStorms(ctx context.Context, out io.Writer, path string, withLeads bool) error {
	reader, err := source.Open[domain.StormRow](path, domain.StormRequiredColumns)
	if err != nil {
		return fmt.Errorf("open storm csv: %w", err)
	}
	defer reader.Close()

	stop, err := a.startStatusServer()
	if err != nil {
		return err
	}
	defer stop()

	// Fabricated storm fields and leads share one seeded source.
	leads := pipeline.NewLeadGenerator(a.cfg.LeadSeed, a.clock, a.cfg.LeadStormLimit)
	parser := pipeline.NewParser(a.normalizeOptions(), a.geocoder(), leads.Rand(), a.logger, a.metrics)

	storms, err := pipeline.Collect(parser.Storms(ctx, reader.Rows()))
	if err != nil {
		return fmt.Errorf("parse storms: %w", err)
	}

	b, err := openBackend(ctx, a.cfg, a.logger, a.clock)
	if err != nil {
		return err
	}
	defer b.Close()

	stormSummary, err := runTable(ctx, a, out, b, a.cfg.StormTable, "event_id", storms)
	if err != nil {
		return err
	}
	if !withLeads {
		return failed(stormSummary)
	}

	generated, err := leads.Generate(storms)
	if err != nil {
		return fmt.Errorf("generate leads: %w", err)
	}
	a.logger.Info("leads generated", "count", len(generated), "storm_limit", a.cfg.LeadStormLimit)

	leadSummary, err := runTable(ctx, a, out, b, a.cfg.LeadTable, "id", generated)
	if err != nil {
		return err
	}
	return failed(stormSummary, leadSummary)
}

// runTable uploads records to table and prints the run summary.
func runTable[T domain.Keyed](ctx context.Context, a *app, out io.Writer, b *backend, table, key string, records []T) (pipeline.Summary, error) {
	loader, verifier, err := bindTable[T](b, table, key)
	if err != nil {
		return pipeline.Summary{}, err
	}
	driver := pipeline.NewDriver(loader, a.logger, a.metrics, pipeline.Options{
		Entity:    table,
		BatchSize: a.cfg.BatchSize,
		Verifier:  verifier,
		Clock:     a.clock,
		OnStage:   a.status.observe,
	})

	summary, err := driver.Run(ctx, pipeline.FromSlice(records))
	printSummary(out, summary)
	if err != nil {
		return summary, fmt.Errorf("seed %s: %w", table, err)
	}
	return summary, nil
}
