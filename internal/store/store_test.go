package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "skyclaw.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHostRoundTrip(t *testing.T) {
	s := openTestStore(t)

	h := coordinator.Host{
		ID:           "host_1",
		Name:         "a",
		Capabilities: []string{"shell"},
		MaxParallel:  2,
		RegisteredAt: time.Now().UTC(),
		LastSeenAt:   time.Now().UTC(),
		Version:      1,
		UpdatedBy:    "node-a",
	}
	if err := s.PutHost(h); err != nil {
		t.Fatalf("PutHost: %v", err)
	}

	snap, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(snap.Hosts) != 1 || snap.Hosts[0].ID != h.ID {
		t.Fatalf("loaded hosts = %+v", snap.Hosts)
	}
}

func TestIdempotencyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := IdempotencyRecord{
		Route:        "/v1/jobs",
		Key:          "req-123",
		RequestHash:  "hash-abc",
		StatusCode:   200,
		ResponseJSON: `{"job":{"id":"j1"}}`,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(time.Minute),
	}
	if err := s.SaveIdempotency(rec); err != nil {
		t.Fatalf("SaveIdempotency: %v", err)
	}

	got, err := s.GetIdempotency(rec.Route, rec.Key)
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.RequestHash != rec.RequestHash || got.StatusCode != rec.StatusCode || got.ResponseJSON != rec.ResponseJSON {
		t.Fatalf("got = %+v, want matching %+v", got, rec)
	}
}

func TestIdempotencyNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetIdempotency("/v1/jobs", "missing"); err != ErrIdempotencyNotFound {
		t.Fatalf("err = %v, want ErrIdempotencyNotFound", err)
	}
}

func TestReplaceAllClearsAndRepopulates(t *testing.T) {
	s := openTestStore(t)

	_ = s.PutHost(coordinator.Host{ID: "host_1", Name: "a", Version: 1, RegisteredAt: time.Now(), LastSeenAt: time.Now()})

	snap := coordinator.Snapshot{
		NodeID: "node-a",
		Jobs: []coordinator.Job{
			{ID: "job_1", CreatedAt: time.Now(), Status: coordinator.JobQueued, Version: 2},
		},
	}
	if err := s.ReplaceAll(snap); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	loaded, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded.Hosts) != 0 {
		t.Fatalf("expected hosts cleared, got %+v", loaded.Hosts)
	}
	if len(loaded.Jobs) != 1 || loaded.Jobs[0].ID != "job_1" {
		t.Fatalf("loaded jobs = %+v", loaded.Jobs)
	}
}
