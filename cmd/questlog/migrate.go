package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the document tables for the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := openDB(ctx, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			if err := db.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			cmd.Println("Schema is up to date.")
			return nil
		},
	}
}
