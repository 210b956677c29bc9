package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"metamapa/app"
	"metamapa/models"
	"metamapa/services"
)

func newIngestCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest facts from all configured sources or from a JSON batch file",
		Long:  "Without --file, pulls every registered source, deduplicates and refreshes the default collection. With --file, ingests a JSON array of raw facts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with an array of raw facts")
	return cmd
}

func runIngest(cmd *cobra.Command, file string) error {
	ctx := cmd.Context()

	var raws []models.RawFact
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading batch file: %w", err)
		}
		if err := json.Unmarshal(data, &raws); err != nil {
			return fmt.Errorf("parsing batch file: %w", err)
		}
	}

	return withApp(ctx, func(a *app.App) error {
		var (
			result services.IngestResult
			err    error
		)
		if file != "" {
			result, err = a.Orchestrator.IngestBatch(ctx, raws)
		} else {
			result, err = a.Orchestrator.IngestFromSources(ctx)
		}
		if err != nil {
			return fmt.Errorf("ingesting: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Run %s: received %d, rejected %d, inserted %d, merged %d, universe %d\n",
			result.RunID, result.Received, result.Rejected, result.Stats.Inserted, result.Stats.Merged, result.Universe)
		return nil
	})
}
