// Package replication implements the quorum-write layer, the peer set, and
// the gossip-based discovery loop that ties coordinator mutations to peer
// replication.
package replication

import (
	"net/url"
	"strings"
	"sync"
)

// PeerSet is a mutable set of normalized peer base URLs. It grows via
// gossip (discovery loop, join requests) and is read by the quorum layer
// and the sync loop.
type PeerSet struct {
	mu      sync.Mutex
	self    string
	members map[string]struct{}
}

// NewPeerSet seeds a PeerSet from configuration, excluding selfURL.
func NewPeerSet(selfURL string, seeds []string) *PeerSet {
	p := &PeerSet{
		self:    NormalizeURL(selfURL),
		members: make(map[string]struct{}),
	}
	for _, s := range seeds {
		p.Add(s)
	}
	return p
}

// NormalizeURL lowercases the scheme+host and strips any trailing slash
// from the path, so the same peer reached two different ways collapses to
// one set member.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	u.RawQuery = ""
	return u.String()
}

// Add normalizes and inserts url into the set, unless it is empty, already
// present, or equal to self. Returns true if it was newly added.
func (p *PeerSet) Add(raw string) bool {
	norm := NormalizeURL(raw)
	if norm == "" || norm == p.self {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.members[norm]; ok {
		return false
	}
	p.members[norm] = struct{}{}
	return true
}

// List returns a snapshot of the current peer URLs.
func (p *PeerSet) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.members))
	for m := range p.members {
		out = append(out, m)
	}
	return out
}

// Len returns the number of known peers.
func (p *PeerSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// Self returns the node's own normalized public URL.
func (p *PeerSet) Self() string {
	return p.self
}
