package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"partner_tracker/internal/infra/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "partnerd",
	Short:        "Accountability partner cycle engine",
	Long:         "partnerd closes partner cycles, tracks verifications and goals, and notifies partners over HTTP and Telegram.",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Log.WithError(err).Error("partnerd exited with error")
		os.Exit(1)
	}
}
