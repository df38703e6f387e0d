package main

import (
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"questlog/internal/mcp"
)

func mcpCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve one owner's campaigns as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			server, err := mcp.NewServer(env.schema, env.db, env.campaign, owner, version)
			if err != nil {
				return err
			}
			return server.Run(ctx, &sdk.StdioTransport{})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "User id whose games the tools act on")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
