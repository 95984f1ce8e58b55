// Package idempotency implements the route+key-scoped idempotency ledger:
// request hashing, replay detection, and TTL-bounded storage.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/KairoCuan/skyclaw/internal/store"
)

// ErrKeyReuseConflict is returned when a (route, key) pair is replayed with
// a request body that hashes differently than the one originally stored
// under that key.
var ErrKeyReuseConflict = errors.New("idempotency key reuse conflict")

// Ledger wraps the durable store with the hash-and-replay protocol
// described for mutating HTTP routes.
type Ledger struct {
	store *store.Store
	ttl   time.Duration
	now   func() time.Time
}

// New creates a Ledger with the given record TTL.
func New(st *store.Store, ttl time.Duration) *Ledger {
	return &Ledger{store: st, ttl: ttl, now: time.Now}
}

// HashRequest canonicalizes body (recursively sorting object keys) and
// returns the hex SHA-256 digest of "route\ncanonical".
func HashRequest(route string, body []byte) (string, error) {
	var v any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &v); err != nil {
			return "", fmt.Errorf("parsing request body for canonicalization: %w", err)
		}
	}

	canonical, err := canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("canonicalizing request body: %w", err)
	}

	sum := sha256.Sum256([]byte(route + "\n" + canonical))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize serializes v to JSON with every object's keys sorted
// lexicographically, recursively, so two semantically-identical request
// bodies with differently-ordered fields hash identically.
func canonicalize(v any) (string, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return "", err
			}
			valJSON, err := canonicalize(val[k])
			if err != nil {
				return "", err
			}
			out += string(keyJSON) + ":" + valJSON
		}
		return out + "}", nil
	case []any:
		out := "["
		for i, elem := range val {
			if i > 0 {
				out += ","
			}
			elemJSON, err := canonicalize(elem)
			if err != nil {
				return "", err
			}
			out += elemJSON
		}
		return out + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// Check looks up (route, key) and returns the replayed (statusCode, body)
// if a matching, unexpired record exists. hit is false if no record exists
// for this key or the record's TTL has passed, in which case the caller should proceed with the mutation and call
// Save on success. ErrKeyReuseConflict is returned if a record exists under
// this key with a different request hash.
func (l *Ledger) Check(route, key, requestHash string) (statusCode int, body []byte, hit bool, err error) {
	rec, err := l.store.GetIdempotency(route, key)
	if errors.Is(err, store.ErrIdempotencyNotFound) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("looking up idempotency record: %w", err)
	}
	if !rec.ExpiresAt.After(l.now()) {
		return 0, nil, false, nil
	}

	if rec.RequestHash != requestHash {
		return 0, nil, false, ErrKeyReuseConflict
	}
	return rec.StatusCode, []byte(rec.ResponseJSON), true, nil
}

// Save persists the outcome of a mutation under (route, key), to be
// replayed verbatim on a future request bearing the same key and request
// hash. Called only after the mutation, including quorum replication,
// fully succeeds.
func (l *Ledger) Save(route, key, requestHash string, statusCode int, responseBody []byte) error {
	now := l.now()
	rec := store.IdempotencyRecord{
		Route:        route,
		Key:          key,
		RequestHash:  requestHash,
		StatusCode:   statusCode,
		ResponseJSON: string(responseBody),
		CreatedAt:    now,
		ExpiresAt:    now.Add(l.ttl),
	}
	if err := l.store.SaveIdempotency(rec); err != nil {
		return fmt.Errorf("saving idempotency record: %w", err)
	}
	return nil
}

// GC deletes every ledger row whose expiry has passed, returning the count
// removed.
func (l *Ledger) GC() (int64, error) {
	n, err := l.store.DeleteExpiredIdempotency(l.now())
	if err != nil {
		return 0, fmt.Errorf("garbage collecting idempotency records: %w", err)
	}
	return n, nil
}
