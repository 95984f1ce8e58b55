// Package hostagent implements the host daemon described at interface
// level by the coordinator spec: register once, heartbeat on an interval,
// poll for job claims, execute the claimed payload as a subprocess under an
// allowlist and timeout, and report completion.
package hostagent

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config configures one running Agent.
type Config struct {
	Name            string
	Capabilities    []string
	MaxParallel     int
	HeartbeatPeriod time.Duration
	PollPeriod      time.Duration
	AllowedCommands []string
	OpenclawBin     string
}

// Agent owns the registered host identity and its heartbeat/claim loops.
// ActiveLeases is tracked locally and reported on every heartbeat; it only
// ever reflects jobs this process itself is currently executing.
type Agent struct {
	cfg      Config
	client   *CoordinatorClient
	executor *Executor
	log      *slog.Logger

	hostID       string
	activeLeases atomic.Int64
}

// NewAgent constructs an Agent. It does not contact the coordinator until
// Run is called.
func NewAgent(cfg Config, client *CoordinatorClient, log *slog.Logger) *Agent {
	return &Agent{
		cfg:      cfg,
		client:   client,
		executor: NewExecutor(cfg.AllowedCommands, cfg.OpenclawBin),
		log:      log,
	}
}

// Run registers the host, then runs the heartbeat and claim loops
// concurrently until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	host, err := a.client.Register(ctx, "", a.cfg.Name, a.cfg.Capabilities, a.cfg.MaxParallel)
	if err != nil {
		return err
	}
	a.hostID = host.ID
	a.log.Info("registered with coordinator", "host_id", a.hostID, "capabilities", a.cfg.Capabilities)

	done := make(chan struct{}, 2)
	go func() { a.heartbeatLoop(ctx); done <- struct{}{} }()
	go func() { a.claimLoop(ctx); done <- struct{}{} }()

	<-ctx.Done()
	<-done
	<-done
	return nil
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.client.Heartbeat(ctx, a.hostID, int(a.activeLeases.Load())); err != nil {
				a.log.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (a *Agent) claimLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.PollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tryClaim(ctx)
		}
	}
}

func (a *Agent) tryClaim(ctx context.Context) {
	job, err := a.client.Claim(ctx, a.hostID)
	if err != nil {
		a.log.Warn("claim failed", "error", err)
		return
	}
	if job == nil {
		return
	}

	a.activeLeases.Add(1)
	defer a.activeLeases.Add(-1)

	a.log.Info("claimed job", "job_id", job.ID, "kind", job.Payload.Kind, "attempt", job.Attempts)
	result := a.executor.Run(ctx, job.Payload)
	if result.Success {
		a.log.Info("job completed", "job_id", job.ID, "duration_ms", result.DurationMs)
	} else {
		a.log.Warn("job failed", "job_id", job.ID, "error", result.Error)
	}

	if err := a.client.Complete(ctx, job.ID, a.hostID, result); err != nil {
		a.log.Error("reporting job completion failed", "job_id", job.ID, "error", err)
	}
}

// NewHostName mints a readable default host name when none is configured.
func NewHostName() string {
	return "host-" + uuid.NewString()[:8]
}
