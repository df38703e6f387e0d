package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"questlog/internal/validate"
)

func validateCmd() *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a game's references for conflicts and dangling ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			report, err := validate.Run(ctx, env.schema, env.db, gameID)
			if err != nil {
				return err
			}
			return printReport(os.Stdout, report)
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "Game id to check")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func cleanupCmd() *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale and dangling references from a game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			modified, err := validate.Cleanup(ctx, env.schema, env.db, gameID)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Repaired %d document(s).\n", modified)

			report, err := validate.Run(ctx, env.schema, env.db, gameID)
			if err != nil {
				return err
			}
			return printReport(os.Stdout, report)
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "Game id to repair")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func printReport(out io.Writer, report *validate.Report) error {
	var errorIssues []validate.Issue
	var warnIssues []validate.Issue
	for _, issue := range report.Issues {
		switch issue.Severity {
		case validate.SeverityError:
			errorIssues = append(errorIssues, issue)
		case validate.SeverityWarn:
			warnIssues = append(warnIssues, issue)
		}
	}

	if len(errorIssues) == 0 && len(warnIssues) == 0 {
		fmt.Fprintln(out, "No issues found.")
		return nil
	}

	if len(errorIssues) > 0 {
		fmt.Fprintf(out, "Errors (%d):\n", len(errorIssues))
		printIssues(out, errorIssues)
	}
	if len(warnIssues) > 0 {
		if len(errorIssues) > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "Warnings (%d):\n", len(warnIssues))
		printIssues(out, warnIssues)
	}

	if len(errorIssues) > 0 {
		return fmt.Errorf("validation found errors")
	}
	return nil
}

func printIssues(out io.Writer, issues []validate.Issue) {
	for _, issue := range issues {
		location := fmt.Sprintf("%s/%s", issue.Collection, issue.EntityID)
		if issue.Field != "" {
			location = fmt.Sprintf("%s [%s]", location, issue.Field)
		}
		fmt.Fprintf(out, "  - %s: %s (%s)\n", location, issue.Message, issue.Code)
	}
}
