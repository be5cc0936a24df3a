package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/daemon"
	"docket/internal/logging"
	"docket/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var strategy string
	var limit int
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single pipeline pass over the backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strategy != "" {
				if _, err := pipeline.ParseStrategy(strategy); err != nil {
					return err
				}
				cfg.Pipeline.Strategy = strategy
			}
			if limit > 0 {
				cfg.Pipeline.ItemLimit = limit
			}
			if chunkSize > 0 {
				cfg.Pipeline.ChunkSize = chunkSize
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			deps, err := daemon.BuildDeps(cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			sink := pipeline.NewSink(
				cfg.Pipeline.EventBuffer,
				time.Duration(cfg.Pipeline.EventSendTimeoutMS)*time.Millisecond,
				logger,
			)
			stages := make([]pipeline.Stage, len(deps.Stages))
			for i, s := range deps.Stages {
				stages[i] = s
			}
			runner, err := pipeline.NewRunner(cfg, sink, logger, stages...)
			if err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			go func() {
				<-runCtx.Done()
				runner.Stop()
			}()
			drained := make(chan struct{})
			go func() {
				defer close(drained)
				for range sink.Events() {
				}
			}()

			if reclaimed, err := deps.DB.ReclaimExpired(runCtx); err == nil && reclaimed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d expired claims\n", reclaimed)
			}

			summary, runErr := runner.Run(runCtx)
			sink.Close()
			<-drained

			printSummary(cmd, summary)
			return runErr
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Pass topology: wide or deep")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of items to process this pass")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Items claimed per stage chunk")
	return cmd
}

func printSummary(cmd *cobra.Command, summary pipeline.Summary) {
	out := cmd.OutOrStdout()
	if len(summary.Stages) == 0 {
		fmt.Fprintln(out, "Nothing to process")
		return
	}

	names := make([]string, 0, len(summary.Stages))
	for name := range summary.Stages {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		totals := summary.Stages[name]
		rows = append(rows, []string{
			name,
			strconv.Itoa(totals.Succeeded),
			strconv.Itoa(totals.Failed),
			strconv.Itoa(totals.Skipped),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Succeeded", "Failed", "Skipped"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
	fmt.Fprintf(out, "Processed %d items in %s\n", summary.Processed(), summary.Duration.Round(time.Millisecond))
}
