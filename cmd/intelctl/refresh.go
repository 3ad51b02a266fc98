package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Harsh-BH/Intelligenter/internal/app"
	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [domain]",
	Short: "Run one refresh cycle, or re-analyze a single domain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if len(args) == 1 {
				return refreshDomain(ctx, cmd, a, domain.NormalizeName(args[0]))
			}

			report, err := a.NewScheduler().RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"run %s: pages=%d submitted=%d processed=%d failed=%d abandoned=%d skipped=%d duration=%s\n",
				report.RunID, report.Pages, report.Submitted, report.Processed,
				report.Failed, report.Abandoned, report.Skipped, report.Duration)
			return nil
		})
	},
}

func refreshDomain(ctx context.Context, cmd *cobra.Command, a *app.App, name string) error {
	res, err := a.Orchestrator.Refresh(ctx, name)
	if err != nil {
		return err
	}
	if res.Task != nil {
		if err := res.Task.Wait(ctx); err != nil {
			return fmt.Errorf("refresh %s: %w", name, err)
		}
	}
	final, err := a.Orchestrator.Status(ctx, name)
	if err != nil {
		return err
	}
	return printResult(cmd, final)
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
