// Command skyclaw-coordinatord runs one peer of a skyclaw coordinator
// cluster: the job queue, host registry, and quorum-replicated state
// machine described by the project's HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KairoCuan/skyclaw/internal/app"
	"github.com/KairoCuan/skyclaw/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "skyclaw-coordinatord",
		Short:        "Runs one peer of a skyclaw coordinator cluster",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(cmd.Context())
		},
	}
}

func runCoordinator(parentCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		return err
	}
	return nil
}
