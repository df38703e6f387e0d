package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"questlog/internal/ingest"
	"questlog/internal/validate"
)

func importCmd() *cobra.Command {
	var (
		owner   string
		gameID  string
		options ingest.Options
	)
	cmd := &cobra.Command{
		Use:   "import <dir>...",
		Short: "Import markdown prep notes into a game",
		Long: "Import markdown files whose YAML frontmatter has a type of scene, npc, player or item.\n" +
			"Fields naming other entities (scene, items, ownerNpc, ownerPlayer) are applied as relationships.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			result, err := ingest.Run(ctx, env.campaign, env.schema, owner, gameID, args, options)
			if err != nil {
				return err
			}

			if result.Removed > 0 {
				modified, err := validate.Cleanup(ctx, env.schema, env.db, gameID)
				if err != nil {
					return fmt.Errorf("cleaning up after prune: %w", err)
				}
				env.logger.Info("references repaired", "game_id", gameID, "modified", modified)
			}

			return printImport(os.Stdout, result)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "User id that owns the game")
	cmd.Flags().StringVar(&gameID, "game", "", "Game id to import into")
	cmd.Flags().BoolVar(&options.Full, "full", false, "Re-import files even when unchanged")
	cmd.Flags().BoolVar(&options.Prune, "prune", false, "Delete content whose source file is gone")
	cmd.Flags().StringSliceVar(&options.Exclude, "exclude", nil, "Paths to skip")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func printImport(out io.Writer, result *ingest.Result) error {
	fmt.Fprintln(out, "Import complete.")
	fmt.Fprintf(out, "  Created:       %d\n", result.Created)
	fmt.Fprintf(out, "  Updated:       %d\n", result.Updated)
	fmt.Fprintf(out, "  Removed:       %d\n", result.Removed)
	fmt.Fprintf(out, "  Links applied: %d\n", result.LinksApplied)
	fmt.Fprintf(out, "  Files skipped: %d\n", result.FilesSkipped)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors (%d):\n", len(result.Errors))
		for _, item := range result.Errors {
			fmt.Fprintf(out, "  - %v\n", item)
		}
		return fmt.Errorf("import completed with errors")
	}
	return nil
}
