package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"questlog/internal/relation"
)

func relateCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "relate <relationship> key=value...",
		Short: "Apply a named relationship, e.g. relate npc_owns_item npcId=... itemId=...",
		Long: "Apply a named relationship to the configured database.\n\nRelationships: " +
			strings.Join(relationshipNames(), ", "),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			name := relation.Name(args[0])
			if owner != "" {
				err = env.campaign.ApplyRelationship(ctx, owner, name, params)
			} else {
				err = env.engine.Apply(ctx, name, params)
			}
			if err != nil {
				return err
			}
			cmd.Printf("Applied %s.\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Check that every entity belongs to a game owned by this user id")
	return cmd
}

// parseParams turns key=value arguments into relationship parameters.
func parseParams(args []string) (relation.Params, error) {
	params := make(relation.Params, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		if _, dup := params[key]; dup {
			return nil, fmt.Errorf("parameter %s given twice", key)
		}
		params[key] = value
	}
	return params, nil
}

func relationshipNames() []string {
	names := relation.Names()
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("%s(%s)", name, strings.Join(relation.RequiredParams(name), ", ")))
	}
	return out
}
