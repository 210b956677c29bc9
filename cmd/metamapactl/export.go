package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"metamapa/app"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Upload CSV snapshots of all facts to S3 and rotate old exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app.App) error {
				if a.Export == nil {
					return errors.New("export requires S3_URL and S3_BUCKET")
				}
				result, err := a.Export.Export(ctx)
				if err != nil {
					return fmt.Errorf("exporting: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d facts\n  %s\n  %s\n", result.Facts, result.FactsLink, result.CategoriesLink)
				return nil
			})
		},
	}
}
