package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Harsh-BH/Intelligenter/internal/app"
	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

var lookupWait bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <domain>",
	Short: "Look up a domain the way the API does",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := domain.NormalizeName(args[0])
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator.Lookup(ctx, name)
			if err != nil {
				return err
			}
			if lookupWait && res.Task != nil {
				// A failed analysis is reported through the stored status.
				_ = res.Task.Wait(ctx)
				if res, err = a.Orchestrator.Status(ctx, name); err != nil {
					return err
				}
			}
			return printResult(cmd, res)
		})
	},
}

func printResult(cmd *cobra.Command, res *domain.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func init() {
	lookupCmd.Flags().BoolVarP(&lookupWait, "wait", "w", false, "Wait for a started analysis to finish")
	rootCmd.AddCommand(lookupCmd)
}
