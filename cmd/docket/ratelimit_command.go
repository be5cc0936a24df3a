package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/ratelimit"
	"docket/internal/textutil"
)

func newRateLimitCommand(ctx *commandContext) *cobra.Command {
	rateCmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect adaptive rate limiter state",
	}
	rateCmd.AddCommand(newRateLimitStatusCommand(ctx))
	return rateCmd
}

func newRateLimitStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-domain pacing state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.RateLimit.Backend != "sqlite" {
				fmt.Fprintln(cmd.OutOrStdout(), "Rate limiter uses the in-memory backend; state is only visible inside the daemon process")
				return nil
			}

			backend, err := ratelimit.OpenSQLite(cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			states, err := backend.All(cmd.Context())
			if err != nil {
				return err
			}
			if len(states) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No domains tracked yet")
				return nil
			}

			rows := make([][]string, 0, len(states))
			for _, state := range states {
				rows = append(rows, []string{
					state.Domain,
					state.CurrentDelay.Round(time.Millisecond).String(),
					textutil.Ternary(state.InBackoff, "yes", "no"),
					strconv.FormatInt(state.TotalRequests, 10),
					strconv.FormatInt(state.RateLimitHits, 10),
					state.LastUpdated.Local().Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Domain", "Delay", "Backoff", "Requests", "429/403s", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
