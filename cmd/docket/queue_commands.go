package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/textutil"
	"docket/internal/workqueue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backlog counts per work type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *workqueue.DB) error {
				stats, err := db.StatsByWorkType(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, stat := range stats {
					rows = append(rows, []string{
						stat.WorkType,
						strconv.Itoa(stat.Available),
						strconv.Itoa(stat.Claimed),
						strconv.Itoa(stat.Completed),
						strconv.Itoa(stat.Failed),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Work Type", "Available", "Claimed", "Completed", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []workqueue.Status
			for _, raw := range listStatuses {
				status, ok := workqueue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("invalid status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withDB(func(db *workqueue.DB) error {
				items, err := db.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.WorkType,
						item.ItemKey,
						string(item.Status),
						strconv.Itoa(item.Attempts),
						formatQueueTime(item.CreatedAt),
						truncate(item.ErrorMessage, 60),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Work Type", "Item", "Status", "Attempts", "Created", "Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (available, claimed, completed, failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var workType string

	cmd := &cobra.Command{
		Use:   "retry [item-key...]",
		Short: "Make failed items immediately eligible again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *workqueue.DB) error {
				retried, err := db.RetryFailed(cmd.Context(), workType, args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed %s\n",
					retried, textutil.Ternary(retried == 1, "item", "items"))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&workType, "work-type", "", "Limit the retry to one work type")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearFailed bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed items from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *workqueue.DB) error {
				var cleared int64
				var err error
				switch {
				case clearAll:
					cleared, err = db.Clear(cmd.Context())
				case clearFailed:
					cleared, err = db.ClearFailed(cmd.Context())
				default:
					cleared, err = db.ClearCompleted(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n",
					cleared, textutil.Ternary(cleared == 1, "item", "items"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed items instead of completed ones")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every item regardless of status")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check work database integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *workqueue.DB) error {
				health, err := db.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Work Database", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Readable", boolKind(health.DatabaseReadable), "", colorize))
				fmt.Fprintln(out, renderStatusLine("Schema", boolKind(health.TableExists), "", colorize))
				fmt.Fprintln(out, renderStatusLine("Integrity", boolKind(health.IntegrityCheck), "", colorize))
				fmt.Fprintln(out, renderStatusLine("Items", statusInfo, strconv.Itoa(health.TotalItems), colorize))
				if health.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, health.Error, colorize))
				}
				return nil
			})
		},
	}
}

func boolKind(ok bool) statusKind {
	return textutil.Ternary(ok, statusOK, statusError)
}

func formatQueueTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
