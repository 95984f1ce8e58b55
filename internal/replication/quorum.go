package replication

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

// Policy controls how many peer acknowledgements a mutation requires before
// it is allowed to stand. MinReplicas is the desired total replica count
// (self included) and is clamped to at least 1; the number of OTHER peers
// that must ack is derived as max(0, MinReplicas-1).
type Policy struct {
	MinReplicas   int
	FanoutTimeout time.Duration
}

// RequiredAcks returns the number of peer acknowledgements a mutation must
// collect under this policy.
func (p Policy) RequiredAcks() int {
	min := p.MinReplicas
	if min < 1 {
		min = 1
	}
	required := min - 1
	if required < 0 {
		required = 0
	}
	return required
}

// Quorum wraps a State with the checkpoint/mutate/fanout/rollback dance
// described for replicated writes: every state-changing operation that goes
// through Do is given an exact pre-image to roll back to if too few peers
// ack the resulting snapshot, or if the mutation itself fails.
//
// mu is held across the ENTIRE sequence, including the fanout's network
// round-trips. The State's own lock only makes each method atomic; it does
// not stop a second mutation from committing between this one's checkpoint
// and a later Restore, which would silently erase that second mutation from
// memory and the durable mirror. Every write path — Do, peer-snapshot
// merges, and the background lease sweep — must therefore go through this
// lock.
type Quorum struct {
	mu sync.Mutex

	state  *coordinator.State
	peers  *PeerSet
	client *Client
	policy Policy
	log    *slog.Logger
}

// NewQuorum builds a Quorum coordinating state mutations across peers.
func NewQuorum(state *coordinator.State, peers *PeerSet, client *Client, policy Policy, log *slog.Logger) *Quorum {
	if log == nil {
		log = slog.Default()
	}
	return &Quorum{state: state, peers: peers, client: client, policy: policy, log: log}
}

// ErrInsufficientPeers is returned by Do up front, before any mutation is
// attempted, when the known peer set cannot possibly satisfy the required
// ack count.
type ErrInsufficientPeers struct {
	Required int
	Known    int
}

func (e ErrInsufficientPeers) Error() string {
	return fmt.Sprintf("insufficient peers: need %d, know %d", e.Required, e.Known)
}

// ErrQuorumFailed is returned by Do when too few peers acknowledged a
// replicated mutation. The mutation has already been rolled back locally.
type ErrQuorumFailed struct {
	Required int
	Acked    int
}

func (e ErrQuorumFailed) Error() string {
	return fmt.Sprintf("replication target not met: required %d acks, got %d", e.Required, e.Acked)
}

// Do runs mutate against the guarded State under the full checkpoint →
// apply → fan-out → commit-or-rollback protocol:
//
//  1. If the known peer set is smaller than the required ack count, fail
//     immediately without touching state.
//  2. Take a checkpoint.
//  3. Apply mutate. If it errors, restore the checkpoint and propagate the
//     error.
//  4. Take a fresh snapshot and push it to every known peer in parallel,
//     counting 2xx responses as acks.
//  5. If acks are short, restore the checkpoint and return ErrQuorumFailed.
//  6. Otherwise commit: return mutate's result unchanged.
//
// Steps 2-5 run under the Quorum's exclusive lock, held across the fanout's
// suspension point, so no other mutation can land between the checkpoint
// and a rollback of it.
//
// Do is a package-level function rather than a method because Go does not
// allow a method to carry type parameters beyond those of its receiver.
func Do[T any](ctx context.Context, q *Quorum, mutate func() (T, error)) (T, error) {
	var zero T

	required := q.policy.RequiredAcks()
	if q.peers.Len() < required {
		return zero, ErrInsufficientPeers{Required: required, Known: q.peers.Len()}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	checkpoint := q.state.Checkpoint()

	result, err := mutate()
	if err != nil {
		if rbErr := q.state.Restore(checkpoint); rbErr != nil {
			q.log.Error("rollback after failed mutation also failed", "error", rbErr)
		}
		return zero, err
	}

	if required == 0 {
		return result, nil
	}

	acks := q.fanout(ctx, q.state.Snapshot())
	if acks < required {
		telemetry.QuorumFailuresTotal.Inc()
		if rbErr := q.state.Restore(checkpoint); rbErr != nil {
			q.log.Error("rollback after failed quorum also failed", "error", rbErr)
		}
		return zero, ErrQuorumFailed{Required: required, Acked: acks}
	}

	return result, nil
}

// MergeSnapshot adopts a peer's pushed or pulled snapshot under the same
// exclusive lock Do holds, so a merge can never land between an in-flight
// mutation's checkpoint and a rollback that would erase it.
func (q *Quorum) MergeSnapshot(snap coordinator.Snapshot) (coordinator.MergeResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.MergeSnapshot(snap)
}

// RequeueExpiredLeases runs the lease sweep under the write lock. The
// sweeper loop must call this, not the State method directly, for the same
// reason as MergeSnapshot.
func (q *Quorum) RequeueExpiredLeases() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.RequeueExpiredLeases()
}

// fanout pushes snap to every known peer concurrently and returns the
// number of 2xx acknowledgements received within FanoutTimeout.
func (q *Quorum) fanout(ctx context.Context, snap coordinator.Snapshot) int {
	peers := q.peers.List()
	if len(peers) == 0 {
		return 0
	}

	start := time.Now()
	results := make(chan bool, len(peers))
	for _, peerURL := range peers {
		peerURL := peerURL
		go func() {
			pctx, cancel := context.WithTimeout(ctx, q.policy.FanoutTimeout)
			defer cancel()
			ok, _, err := q.client.PushSnapshot(pctx, peerURL, snap)
			if err != nil {
				q.log.Warn("snapshot push to peer failed", "peer", peerURL, "error", err)
			}
			results <- ok
		}()
	}

	acks := 0
	for i := 0; i < len(peers); i++ {
		if <-results {
			acks++
			telemetry.QuorumAcksTotal.WithLabelValues("ok").Inc()
		} else {
			telemetry.QuorumAcksTotal.WithLabelValues("failed").Inc()
		}
	}
	telemetry.ReplicationFanoutDuration.Observe(time.Since(start).Seconds())
	return acks
}
