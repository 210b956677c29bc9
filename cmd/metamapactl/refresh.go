package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"metamapa/app"
)

func newRefreshCmd() *cobra.Command {
	var collection uint

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute collection membership and consensus",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app.App) error {
				if collection != 0 {
					if err := a.Aggregator.Refresh(ctx, collection); err != nil {
						return fmt.Errorf("refreshing collection %d: %w", collection, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Collection %d: %s\n", collection, a.Aggregator.State(collection))
					return nil
				}
				if err := a.Aggregator.RefreshAll(ctx); err != nil {
					return fmt.Errorf("refreshing collections: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All visible collections refreshed.")
				return nil
			})
		},
	}

	cmd.Flags().UintVarP(&collection, "collection", "c", 0, "Refresh only this collection id")
	return cmd
}
