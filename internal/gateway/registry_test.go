package gateway

import (
	"testing"
	"time"
)

func TestRegistryPickRoundRobins(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Replace(map[string][]string{"svc": {"http://a", "http://b"}})

	seen := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		ep, ok := r.Pick("svc")
		if !ok {
			t.Fatalf("Pick() returned ok=false")
		}
		seen = append(seen, ep)
	}
	if seen[0] == seen[1] {
		t.Fatalf("expected alternating endpoints, got %v", seen)
	}
	if seen[0] != seen[2] || seen[1] != seen[3] {
		t.Fatalf("expected round-robin to repeat, got %v", seen)
	}
}

func TestRegistryPickUnknownKey(t *testing.T) {
	r := NewRegistry(time.Second)
	if _, ok := r.Pick("missing"); ok {
		t.Fatalf("Pick() on unknown key should return ok=false")
	}
}

func TestRegistryEjectSkipsUntilCooldownExpires(t *testing.T) {
	now := time.Now()
	r := NewRegistry(10 * time.Millisecond)
	r.now = func() time.Time { return now }
	r.Replace(map[string][]string{"svc": {"http://a", "http://b"}})

	r.Eject("http://a")

	ep, ok := r.Pick("svc")
	if !ok || ep != "http://b" {
		t.Fatalf("Pick() = %q, %v; want http://b, true", ep, ok)
	}

	// Still within cooldown: repeated picks should keep avoiding "a".
	ep, ok = r.Pick("svc")
	if !ok || ep != "http://b" {
		t.Fatalf("Pick() = %q, %v; want http://b, true", ep, ok)
	}

	now = now.Add(20 * time.Millisecond)
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		ep, ok := r.Pick("svc")
		if !ok {
			t.Fatalf("Pick() returned ok=false after cooldown expired")
		}
		seen[ep] = true
	}
	if !seen["http://a"] {
		t.Fatalf("expected http://a to be eligible again after cooldown, saw %v", seen)
	}
}

func TestRegistryReplacePreservesEjectionForSurvivingEndpoint(t *testing.T) {
	now := time.Now()
	r := NewRegistry(time.Minute)
	r.now = func() time.Time { return now }
	r.Replace(map[string][]string{"svc": {"http://a", "http://b"}})
	r.Eject("http://a")

	r.Replace(map[string][]string{"svc": {"http://a", "http://b"}})

	ep, ok := r.Pick("svc")
	if !ok || ep != "http://b" {
		t.Fatalf("Pick() = %q, %v; want http://b, true (ejection should survive Replace)", ep, ok)
	}
}

func TestRegistryKeyedByIDAndName(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Replace(map[string][]string{
		"svc_123": {"http://a"},
		"my-app":  {"http://a"},
	})

	for _, key := range []string{"svc_123", "my-app"} {
		if ep, ok := r.Pick(key); !ok || ep != "http://a" {
			t.Fatalf("Pick(%q) = %q, %v; want http://a, true", key, ep, ok)
		}
	}
}
