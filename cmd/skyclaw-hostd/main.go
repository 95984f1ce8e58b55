// Command skyclaw-hostd runs a host daemon: it registers with a skyclaw
// coordinator cluster, heartbeats, polls for job claims, executes claimed
// payloads as allowlisted subprocesses, and reports completion.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KairoCuan/skyclaw/internal/config"
	"github.com/KairoCuan/skyclaw/internal/hostagent"
	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "skyclaw-hostd",
		Short:        "Runs a skyclaw host daemon that executes claimed jobs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context())
		},
	}
	return cmd
}

func runAgent(parentCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if len(cfg.CoordinatorURLs) == 0 {
		return fmt.Errorf("SKYCLAW_COORDINATOR_URLS must name at least one coordinator")
	}

	name := cfg.HostName
	if name == "" {
		name = hostagent.NewHostName()
	}

	client := hostagent.NewCoordinatorClient(cfg.CoordinatorURLs, cfg.AuthToken, 10*time.Second)
	agent := hostagent.NewAgent(hostagent.Config{
		Name:            name,
		Capabilities:    cfg.HostCapabilities,
		MaxParallel:     cfg.HostMaxParallel,
		HeartbeatPeriod: time.Duration(cfg.HeartbeatMs) * time.Millisecond,
		PollPeriod:      time.Duration(cfg.PollMs) * time.Millisecond,
		AllowedCommands: cfg.ShellAllowedCmds,
		OpenclawBin:     cfg.OpenclawBin,
	}, client, logger)

	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting skyclaw-hostd", "name", name, "coordinators", cfg.CoordinatorURLs)
	return agent.Run(ctx)
}
