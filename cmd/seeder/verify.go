package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
)

func newVerifyCmd(a *app) *cobra.Command {
	var table, selectColumn, column, value string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Count the rows in a table, optionally filtered by one column",
		Example: `  seeder verify --table storm_events --column state --value WISCONSIN
  seeder verify --table leads --select id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if column == "" && value != "" {
				return errors.New("--value requires --column")
			}
			if table == "" {
				table = a.cfg.HailTable
			}

			b, err := openBackend(cmd.Context(), a.cfg, a.logger, a.clock)
			if err != nil {
				return err
			}
			defer b.Close()

			filter := domain.Filter{Column: column, Value: value}
			n, err := b.count(cmd.Context(), table, selectColumn, filter)
			if err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}

			if filter.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", table, n)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows where %s = %s\n", table, n, column, value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "table to count (default HAIL_TABLE)")
	cmd.Flags().StringVar(&selectColumn, "select", "event_id", "column selected by the REST count query")
	cmd.Flags().StringVar(&column, "column", "", "filter column")
	cmd.Flags().StringVar(&value, "value", "", "filter value, matched exactly")
	return cmd
}
