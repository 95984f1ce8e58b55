package replication

import (
	"context"
	"log/slog"
	"time"

	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

// Discovery runs the periodic gossip loop: pull each known peer's full
// state and merge it locally, then (when discovery is enabled) pull each
// known peer's peer list and add anything new. New peers are also told to
// join us directly, so the membership graph converges without needing
// every node to share a seed list. The sync half always runs; only the
// peer-list half is switchable.
type Discovery struct {
	quorum   *Quorum
	peers    *PeerSet
	client   *Client
	interval time.Duration
	discover bool
	log      *slog.Logger
}

// NewDiscovery builds a Discovery loop. Merges go through quorum so they
// take the same write lock as replicated mutations. discover toggles the
// peer-list half of each round; state sync runs regardless.
func NewDiscovery(quorum *Quorum, peers *PeerSet, client *Client, interval time.Duration, discover bool, log *slog.Logger) *Discovery {
	if log == nil {
		log = slog.Default()
	}
	return &Discovery{quorum: quorum, peers: peers, client: client, interval: interval, discover: discover, log: log}
}

// Run executes one discovery round immediately, then repeats every
// interval until ctx is cancelled.
func (d *Discovery) Run(ctx context.Context) {
	d.log.Info("gossip discovery loop started", "interval", d.interval, "peers", d.peers.Len())
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.round(ctx)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("gossip discovery loop stopped")
			return
		case <-ticker.C:
			d.round(ctx)
		}
	}
}

func (d *Discovery) round(ctx context.Context) {
	for _, peerURL := range d.peers.List() {
		d.syncFrom(ctx, peerURL)
		if d.discover {
			d.discoverFrom(ctx, peerURL)
		}
	}
	telemetry.GossipPeersKnown.Set(float64(d.peers.Len()))
}

// syncFrom pulls a peer's full state and merges it into our own, adopting
// any host/job/service whose version+tiebreak wins over our local copy.
func (d *Discovery) syncFrom(ctx context.Context, peerURL string) {
	snap, err := d.client.FetchState(ctx, peerURL)
	if err != nil {
		d.log.Warn("gossip sync failed", "peer", peerURL, "error", err)
		return
	}
	result, err := d.quorum.MergeSnapshot(snap)
	if err != nil {
		d.log.Error("gossip sync merge failed", "peer", peerURL, "error", err)
		return
	}
	if result.Changed {
		d.log.Debug("gossip sync merged remote state", "peer", peerURL)
	}
}

// discoverFrom pulls a peer's peer list, adds anything we don't already
// know about, and tells each newly discovered peer to add us back.
func (d *Discovery) discoverFrom(ctx context.Context, peerURL string) {
	remotePeers, err := d.client.FetchPeers(ctx, peerURL)
	if err != nil {
		d.log.Warn("gossip peer discovery failed", "peer", peerURL, "error", err)
		return
	}

	for _, candidate := range remotePeers {
		if !d.peers.Add(candidate) {
			continue
		}
		d.log.Info("discovered new peer", "peer", candidate, "via", peerURL)
		if err := d.client.Join(ctx, candidate, d.peers.Self()); err != nil {
			d.log.Warn("join request to newly discovered peer failed", "peer", candidate, "error", err)
		}
	}
}
