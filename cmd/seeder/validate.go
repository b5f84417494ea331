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

func newValidateCmd(a *app) *cobra.Command {
	var csvPath, entity string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse a CSV export and report what would be seeded",
		Long: `Runs the same parsing and filtering as the seed commands without contacting
the store or the geocoder, then prints row counts. Sink credentials are not
needed.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.validateCSV(cmd.Context(), cmd.OutOrStdout(), entity, csvPath)
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "hail", "export kind: hail or storms")
	cmd.Flags().StringVar(&csvPath, "csv", "", "path to the CSV export (default depends on --entity)")
	return cmd
}

func (a *app) validateCSV(ctx context.Context, out io.Writer, entity, path string) error {
	parser := pipeline.NewParser(a.normalizeOptions(), nil,
		pipeline.NewLeadGenerator(a.cfg.LeadSeed, a.clock, 0).Rand(), a.logger, a.metrics)

	var err error
	switch entity {
	case "hail":
		if path == "" {
			path = defaultHailCSV
		}
		err = parseAll(path, domain.HailRequiredColumns, func(r *source.Reader[domain.HailRow]) error {
			_, err := pipeline.Collect(parser.Hail(ctx, r.Rows()))
			return err
		})
	case "storms":
		if path == "" {
			path = defaultStormCSV
		}
		err = parseAll(path, domain.StormRequiredColumns, func(r *source.Reader[domain.StormRow]) error {
			_, err := pipeline.Collect(parser.Storms(ctx, r.Rows()))
			return err
		})
	default:
		return fmt.Errorf("unknown entity %q: want hail or storms", entity)
	}
	if err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}

	s := parser.Stats()
	fmt.Fprintf(out, "%s: %d rows read, %d kept, %d filtered\n", path, s.Read, s.Kept, s.Filtered)
	fmt.Fprintf(out, "  defaulted magnitude: %d\n", s.DefaultMagnitude)
	fmt.Fprintf(out, "  null dates:          %d\n", s.NullDates)
	fmt.Fprintf(out, "  missing coordinates: %d\n", s.MissingCoords)
	return nil
}

func parseAll[T any](path string, required []string, parse func(*source.Reader[T]) error) error {
	r, err := source.Open[T](path, required)
	if err != nil {
		return err
	}
	defer r.Close()
	return parse(r)
}
