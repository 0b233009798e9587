package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Validate pending businesses from the store",
	Long:  "Pulls businesses in pending, needs_discovery, discovery_queued, or invalid_technical states and runs the pipeline over them with bounded concurrency.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Runner.ProcessPending(ctx, batchLimit)
		if err != nil {
			return err
		}

		zap.L().Info("batch finished",
			zap.Int("processed", stats.Processed),
			zap.Int("valid", stats.Valid),
			zap.Int("invalid", stats.Invalid),
			zap.Int("missing", stats.Missing),
			zap.Int("errored", stats.Errored),
			zap.Int("skipped", stats.Skipped),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "maximum businesses to process")
	rootCmd.AddCommand(batchCmd)
}
