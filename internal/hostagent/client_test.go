package hostagent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCoordinatorClientFailsOverToNextURL(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"host":{"id":"host_1","name":"a"}}`))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	badURL := bad.URL
	bad.Close() // make it genuinely unreachable

	c := NewCoordinatorClient([]string{badURL, good.URL}, "", time.Second)
	host, err := c.Register(context.Background(), "", "a", nil, 1)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if host.ID != "host_1" {
		t.Fatalf("host.ID = %q, want host_1", host.ID)
	}
}

func TestCoordinatorClientStaysStickyToLastGood(t *testing.T) {
	var badHits int
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewCoordinatorClient([]string{bad.URL, srv.URL}, "tok", time.Second)
	for i := 0; i < 3; i++ {
		if err := c.Heartbeat(context.Background(), "host_1", 0); err != nil {
			t.Fatalf("Heartbeat() error = %v", err)
		}
	}
	if hits != 3 {
		t.Fatalf("hits = %d, want 3", hits)
	}
	if badHits != 1 {
		t.Fatalf("failing coordinator hits = %d, want 1 (later calls should start from the last good one)", badHits)
	}
}

func TestCoordinatorClientAllURLsFail(t *testing.T) {
	c := NewCoordinatorClient([]string{"http://127.0.0.1:1"}, "", 50*time.Millisecond)
	_, err := c.Claim(context.Background(), "host_1")
	if err == nil {
		t.Fatalf("expected error when every coordinator is unreachable")
	}
}
