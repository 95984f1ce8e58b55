// Package gateway implements the federated gateway described at interface
// level by the coordinator spec: poll a coordinator for running services,
// maintain a round-robin endpoint pool per service keyed by both id and
// name, health-probe and eject failing endpoints for a cooldown, and
// reverse-proxy requests with a single retry on idempotent methods.
package gateway

import (
	"sync"
	"time"
)

// endpointState tracks one service replica's health as observed by this
// gateway instance.
type endpointState struct {
	url          string
	ejectedUntil time.Time
}

// Registry holds the current service-key -> endpoint-list mapping and the
// round-robin cursor and ejection state for each key.
type Registry struct {
	mu    sync.Mutex
	pools map[string][]*endpointState
	next  map[string]int

	ejectCooldown time.Duration
	now           func() time.Time
}

// NewRegistry builds an empty Registry. ejectCooldown is how long a failed
// endpoint is skipped by Pick after being ejected.
func NewRegistry(ejectCooldown time.Duration) *Registry {
	return &Registry{
		pools:         make(map[string][]*endpointState),
		next:          make(map[string]int),
		ejectCooldown: ejectCooldown,
		now:           time.Now,
	}
}

// Replace installs a fresh key -> endpoints mapping, built from the latest
// service poll. Existing ejection state for URLs that persist across the
// refresh is preserved; URLs that disappear are dropped.
func (r *Registry) Replace(desired map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldEjected := make(map[string]time.Time)
	for _, pool := range r.pools {
		for _, ep := range pool {
			if !ep.ejectedUntil.IsZero() {
				oldEjected[ep.url] = ep.ejectedUntil
			}
		}
	}

	newPools := make(map[string][]*endpointState, len(desired))
	for key, urls := range desired {
		pool := make([]*endpointState, 0, len(urls))
		for _, u := range urls {
			pool = append(pool, &endpointState{url: u, ejectedUntil: oldEjected[u]})
		}
		newPools[key] = pool
	}
	r.pools = newPools

	for key := range r.next {
		if _, ok := newPools[key]; !ok {
			delete(r.next, key)
		}
	}
}

// Pick returns the next healthy endpoint for key in round-robin order,
// skipping any endpoint still within its ejection cooldown. Returns false
// if key is unknown or every endpoint is currently ejected.
func (r *Registry) Pick(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool := r.pools[key]
	if len(pool) == 0 {
		return "", false
	}

	now := r.now()
	start := r.next[key]
	for i := 0; i < len(pool); i++ {
		idx := (start + i) % len(pool)
		ep := pool[idx]
		if ep.ejectedUntil.IsZero() || ep.ejectedUntil.Before(now) {
			r.next[key] = (idx + 1) % len(pool)
			return ep.url, true
		}
	}
	return "", false
}

// Eject marks endpoint as unhealthy for the configured cooldown, across
// every key it appears under.
func (r *Registry) Eject(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until := r.now().Add(r.ejectCooldown)
	for _, pool := range r.pools {
		for _, ep := range pool {
			if ep.url == endpoint {
				ep.ejectedUntil = until
			}
		}
	}
}

// Keys returns every service key currently registered, for health probing.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.pools))
	for k := range r.pools {
		out = append(out, k)
	}
	return out
}

// Endpoints returns a snapshot of the endpoint URLs currently registered
// under key, in pool order; duplicates in the pool are not removed.
func (r *Registry) Endpoints(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool := r.pools[key]
	out := make([]string, len(pool))
	for i, ep := range pool {
		out[i] = ep.url
	}
	return out
}
