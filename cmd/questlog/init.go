package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"questlog/internal/config"
)

func initCmd() *cobra.Command {
	var dsn string
	var withSchema bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter questlog.yaml in the current directory",
		Args:  cobra.NoArgs,
		// init writes the config, so it must not require one.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dsn) == "" {
				return fmt.Errorf("--dsn must not be empty")
			}
			return runInit(dsn, withSchema)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "sqlite://questlog.db", "Database DSN")
	cmd.Flags().BoolVar(&withSchema, "schema", false, "Also write the default entity schema to schema.yaml")
	return cmd
}

func runInit(dsn string, withSchema bool) error {
	configPath := "questlog.yaml"
	schemaPath := "schema.yaml"
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	if withSchema {
		if _, err := os.Stat(schemaPath); err == nil {
			return fmt.Errorf("%s already exists", schemaPath)
		}
	}

	schemaLine := ""
	if withSchema {
		schemaLine = "\nschema:\n  path: " + schemaPath + "\n"
	}
	configContents := fmt.Sprintf("database:\n  dsn: %s\n\nhttp:\n  listen_addr: \":8080\"\n\n# Set QUESTLOG_AUTH_JWT_SECRET in the environment or .env.\nauth:\n  token_ttl: 2h\n\nlogging:\n  level: info\n  format: text\n%s", dsn, schemaLine)
	if err := os.WriteFile(configPath, []byte(configContents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	if withSchema {
		if err := os.WriteFile(schemaPath, config.DefaultSchemaYAML(), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", schemaPath, err)
		}
	}

	return nil
}
