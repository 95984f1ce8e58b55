package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IdempotencyRecord is a persisted (route, key) → cached response mapping.
type IdempotencyRecord struct {
	Route        string
	Key          string
	RequestHash  string
	StatusCode   int
	ResponseJSON string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// ErrIdempotencyNotFound is returned by GetIdempotency when no record
// exists for the given route+key.
var ErrIdempotencyNotFound = errors.New("idempotency record not found")

// SaveIdempotency persists a ledger entry, keyed by (route, key).
func (s *Store) SaveIdempotency(rec IdempotencyRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO idempotency (route, key, request_hash, status_code, response_json, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(route, key) DO UPDATE SET
		   request_hash = excluded.request_hash,
		   status_code = excluded.status_code,
		   response_json = excluded.response_json,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		rec.Route, rec.Key, rec.RequestHash, rec.StatusCode, rec.ResponseJSON,
		rec.CreatedAt.UTC().Format(timeLayout), rec.ExpiresAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving idempotency record: %w", err)
	}
	return nil
}

// GetIdempotency looks up a ledger entry by (route, key).
func (s *Store) GetIdempotency(route, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var createdAt, expiresAt string
	err := s.db.QueryRow(
		`SELECT route, key, request_hash, status_code, response_json, created_at, expires_at
		 FROM idempotency WHERE route = ? AND key = ?`,
		route, key,
	).Scan(&rec.Route, &rec.Key, &rec.RequestHash, &rec.StatusCode, &rec.ResponseJSON, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IdempotencyRecord{}, ErrIdempotencyNotFound
		}
		return IdempotencyRecord{}, fmt.Errorf("loading idempotency record: %w", err)
	}

	rec.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.ExpiresAt, err = time.Parse(timeLayout, expiresAt)
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("parsing expires_at: %w", err)
	}
	return rec, nil
}

// DeleteExpiredIdempotency deletes every ledger row whose expiry has
// passed, returning the count removed.
func (s *Store) DeleteExpiredIdempotency(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM idempotency WHERE expires_at <= ?`, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("deleting expired idempotency records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted idempotency records: %w", err)
	}
	return n, nil
}
