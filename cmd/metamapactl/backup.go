package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"metamapa/app"
	"metamapa/services"
	"metamapa/storage"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump the PostgreSQL database to S3 and rotate old backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app.App) error {
				if a.Objects == nil {
					return errors.New("backup requires S3_URL and S3_BUCKET")
				}
				if a.DB == nil {
					return errors.New("backup requires STORAGE_TYPE=postgres")
				}
				svc := services.NewBackupService(storage.NewPgDumper(a.Config), a.Objects,
					a.Config.S3BackupPrefix, a.Config.KeepBackups, a.Logger)
				link, err := svc.Backup(ctx)
				if err != nil {
					return fmt.Errorf("backing up: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup uploaded to %s\n", link)
				return nil
			})
		},
	}
}
