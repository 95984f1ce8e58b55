package idempotency

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/KairoCuan/skyclaw/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "skyclaw.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHashRequestIsOrderIndependent(t *testing.T) {
	a := []byte(`{"b":2,"a":1}`)
	b := []byte(`{"a":1,"b":2}`)

	hashA, err := HashRequest("/v1/jobs", a)
	if err != nil {
		t.Fatalf("HashRequest: %v", err)
	}
	hashB, err := HashRequest("/v1/jobs", b)
	if err != nil {
		t.Fatalf("HashRequest: %v", err)
	}
	if hashA != hashB {
		t.Fatalf("hashes differ for equivalent bodies: %s vs %s", hashA, hashB)
	}
}

func TestHashRequestDiffersByRoute(t *testing.T) {
	body := []byte(`{"a":1}`)
	h1, _ := HashRequest("/v1/jobs", body)
	h2, _ := HashRequest("/v1/services", body)
	if h1 == h2 {
		t.Fatalf("hashes should differ across routes")
	}
}

func TestHashRequestHandlesNestedStructures(t *testing.T) {
	a := []byte(`{"requirement":{"requiredCapabilities":["b","a"]},"payload":{"kind":"shell"}}`)
	b := []byte(`{"payload":{"kind":"shell"},"requirement":{"requiredCapabilities":["b","a"]}}`)
	h1, err := HashRequest("/v1/jobs", a)
	if err != nil {
		t.Fatalf("HashRequest: %v", err)
	}
	h2, err := HashRequest("/v1/jobs", b)
	if err != nil {
		t.Fatalf("HashRequest: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes should match across key-reordered nested objects")
	}
}

func TestLedgerCheckMissReplaySaveCycle(t *testing.T) {
	s := openTestStore(t)
	l := New(s, time.Minute)

	hash, err := HashRequest("/v1/jobs", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("HashRequest: %v", err)
	}

	_, _, hit, err := l.Check("/v1/jobs", "req-1", hash)
	if err != nil {
		t.Fatalf("Check (first): %v", err)
	}
	if hit {
		t.Fatalf("expected miss on first check")
	}

	if err := l.Save("/v1/jobs", "req-1", hash, 200, []byte(`{"job":{"id":"job_1"}}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	status, body, hit, err := l.Check("/v1/jobs", "req-1", hash)
	if err != nil {
		t.Fatalf("Check (replay): %v", err)
	}
	if !hit {
		t.Fatalf("expected hit on replay")
	}
	if status != 200 || string(body) != `{"job":{"id":"job_1"}}` {
		t.Fatalf("replayed status/body = %d, %s", status, body)
	}
}

func TestLedgerCheckRejectsKeyReuseWithDifferentBody(t *testing.T) {
	s := openTestStore(t)
	l := New(s, time.Minute)

	hash1, _ := HashRequest("/v1/jobs", []byte(`{"a":1}`))
	hash2, _ := HashRequest("/v1/jobs", []byte(`{"a":2}`))

	if err := l.Save("/v1/jobs", "req-1", hash1, 200, []byte(`{}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, _, _, err := l.Check("/v1/jobs", "req-1", hash2)
	if err != ErrKeyReuseConflict {
		t.Fatalf("err = %v, want ErrKeyReuseConflict", err)
	}
}

func TestLedgerGCDeletesExpiredRecords(t *testing.T) {
	s := openTestStore(t)
	l := New(s, time.Millisecond)

	hash, _ := HashRequest("/v1/jobs", []byte(`{}`))
	if err := l.Save("/v1/jobs", "req-1", hash, 200, []byte(`{}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	n, err := l.GC()
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if n != 1 {
		t.Fatalf("GC deleted %d records, want 1", n)
	}

	_, _, hit, err := l.Check("/v1/jobs", "req-1", hash)
	if err != nil {
		t.Fatalf("Check after GC: %v", err)
	}
	if hit {
		t.Fatalf("expected miss after GC")
	}
}
