// Package app wires a coordinator node's dependencies together and runs
// its HTTP server and background loops until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/KairoCuan/skyclaw/internal/apikeys"
	"github.com/KairoCuan/skyclaw/internal/config"
	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/httpserver"
	"github.com/KairoCuan/skyclaw/internal/idempotency"
	"github.com/KairoCuan/skyclaw/internal/replication"
	"github.com/KairoCuan/skyclaw/internal/store"
	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

const (
	leaseSweepInterval       = time.Second
	idempotencyGCInterval    = 60 * time.Second
	replicationFanoutTimeout = 5 * time.Second
	peerClientTimeout        = 5 * time.Second
)

// Run starts a coordinator node and blocks until ctx is cancelled or the
// HTTP server fails.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = "node_" + uuid.NewString()
		logger.Info("no node id configured, minted one", "node_id", nodeID)
	}

	logger.Info("starting skyclaw coordinator",
		"node_id", nodeID,
		"listen", cfg.ListenAddr(),
		"public_url", cfg.PublicURL,
	)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening durable store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	leaseMs := cfg.LeaseMs
	if leaseMs <= 0 {
		leaseMs = 60000
	}
	state := coordinator.New(nodeID, time.Duration(leaseMs)*time.Millisecond, coordinator.WithDurable(st))
	if err := state.LoadFromDurable(); err != nil {
		return fmt.Errorf("loading durable state: %w", err)
	}

	peers := replication.NewPeerSet(cfg.PublicURL, cfg.PeerURLs)
	peerClient := replication.NewClient(cfg.AuthToken, peerClientTimeout)
	quorum := replication.NewQuorum(state, peers, peerClient, replication.Policy{
		MinReplicas:   cfg.MinReplicas,
		FanoutTimeout: replicationFanoutTimeout,
	}, logger)

	ledger := idempotency.New(st, time.Duration(cfg.IdempotencyTTLMs)*time.Millisecond)

	publicKeys, err := apikeys.Parse(cfg.PublicAPIKeys)
	if err != nil {
		return fmt.Errorf("parsing public api keys: %w", err)
	}
	if publicKeys.Len() == 0 {
		logger.Info("public job submission surface disabled (no SKYCLAW_PUBLIC_API_KEYS configured)")
	}

	metricsReg := telemetry.NewRegistry()

	srv := httpserver.NewServer(logger, state, quorum, peers, ledger, publicKeys, cfg.AuthToken, cfg.PublicCORSOrigin, metricsReg)

	runLeaseSweep(ctx, logger, quorum)
	runIdempotencyGC(ctx, logger, ledger)

	interval := time.Duration(cfg.PeerSyncIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if !cfg.PeerDiscoveryEnabled {
		logger.Info("peer discovery disabled, gossip loop will only sync state")
	}
	discovery := replication.NewDiscovery(quorum, peers, peerClient, interval, cfg.PeerDiscoveryEnabled, logger)
	go discovery.Run(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// runLeaseSweep periodically requeues jobs whose lease has expired without
// a completion report, so a crashed or partitioned host doesn't strand its
// claim forever. The sweep goes through the quorum's write lock so it can
// never interleave with an in-flight replicated mutation's checkpoint and
// rollback.
func runLeaseSweep(ctx context.Context, logger *slog.Logger, quorum *replication.Quorum) {
	ticker := time.NewTicker(leaseSweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := quorum.RequeueExpiredLeases()
				if err != nil {
					logger.Error("lease sweep failed", "error", err)
					continue
				}
				if n > 0 {
					telemetry.JobsRequeuedTotal.Add(float64(n))
					logger.Info("requeued expired leases", "count", n)
				}
			}
		}
	}()
}

// runIdempotencyGC periodically evicts expired idempotency ledger records.
func runIdempotencyGC(ctx context.Context, logger *slog.Logger, ledger *idempotency.Ledger) {
	ticker := time.NewTicker(idempotencyGCInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := ledger.GC()
				if err != nil {
					logger.Error("idempotency gc failed", "error", err)
					continue
				}
				if n > 0 {
					telemetry.IdempotencyRecordsGCedTotal.Add(float64(n))
					logger.Debug("idempotency gc swept records", "count", n)
				}
			}
		}
	}()
}
