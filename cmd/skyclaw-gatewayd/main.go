// Command skyclaw-gatewayd runs a federated gateway: it polls a skyclaw
// coordinator cluster for running services, load-balances HTTP traffic
// round-robin across healthy replica endpoints, and ejects endpoints that
// fail a health probe or return server errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KairoCuan/skyclaw/internal/config"
	"github.com/KairoCuan/skyclaw/internal/gateway"
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
		Use:          "skyclaw-gatewayd",
		Short:        "Runs a skyclaw gateway that load-balances traffic to running services",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cmd.Context())
		},
	}
	return cmd
}

func runGateway(parentCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if len(cfg.CoordinatorURLs) == 0 {
		return fmt.Errorf("SKYCLAW_COORDINATOR_URLS must name at least one coordinator")
	}

	ejectCooldown := time.Duration(cfg.GatewayEjectCooldownMs) * time.Millisecond
	reg := gateway.NewRegistry(ejectCooldown)

	poller := gateway.NewPoller(cfg.CoordinatorURLs, cfg.AuthToken, 10*time.Second)
	proxy := gateway.NewProxy(reg, logger)
	srv := gateway.NewServer(proxy, logger)
	healthChecker := gateway.NewHealthChecker(reg, 3*time.Second)

	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pollInterval := time.Duration(cfg.GatewayPollMs) * time.Millisecond
	go poller.Run(ctx, reg, pollInterval, func(err error) {
		logger.Warn("gateway service poll failed", "error", err)
	})
	go healthChecker.Run(ctx, pollInterval)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.GatewayPort)
	httpSrv := &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting skyclaw-gatewayd", "listen", addr, "coordinators", cfg.CoordinatorURLs)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
