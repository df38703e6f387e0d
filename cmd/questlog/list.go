package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"questlog/internal/store"
)

func listCmd() *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List documents of an entity type, e.g. list npc --game <id>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			entityType, ok := env.schema.EntityTypeByName(args[0])
			if !ok {
				return fmt.Errorf("unknown entity type %q", args[0])
			}

			var filter store.Filter
			if gameID != "" {
				filter = store.Where("gameId", gameID)
			}
			docs, err := env.db.Find(ctx, entityType.Collection, filter)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(os.Stdout, "No documents found.")
				return nil
			}

			for _, doc := range docs {
				label := doc.String("name")
				if label == "" {
					label = doc.String("title")
				}
				if label == "" {
					label = doc.String("email")
				}
				fmt.Fprintf(os.Stdout, "%s  %s\n", doc.ID(), label)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "Only documents of this game")
	return cmd
}
