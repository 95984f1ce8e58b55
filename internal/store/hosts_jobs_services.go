package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
)

// PutHost upserts a host's full JSON representation.
func (s *Store) PutHost(h coordinator.Host) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshalling host: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO hosts (id, json) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET json = excluded.json`,
		h.ID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("upserting host %s: %w", h.ID, err)
	}
	return nil
}

// PutJob upserts a job's full JSON representation.
func (s *Store) PutJob(j coordinator.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshalling job: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO jobs (id, created_at, json) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET json = excluded.json`,
		j.ID, j.CreatedAt.UTC().Format(timeLayout), string(raw),
	)
	if err != nil {
		return fmt.Errorf("upserting job %s: %w", j.ID, err)
	}
	return nil
}

// PutService upserts a service's full JSON representation.
func (s *Store) PutService(svc coordinator.Service) error {
	raw, err := json.Marshal(svc)
	if err != nil {
		return fmt.Errorf("marshalling service: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO services (id, created_at, json) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET json = excluded.json`,
		svc.ID, svc.CreatedAt.UTC().Format(timeLayout), string(raw),
	)
	if err != nil {
		return fmt.Errorf("upserting service %s: %w", svc.ID, err)
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LoadAll reads the full persisted state back, ordered by creation time for
// jobs and services.
func (s *Store) LoadAll() (coordinator.Snapshot, error) {
	var snap coordinator.Snapshot

	hostRows, err := s.db.Query(`SELECT json FROM hosts`)
	if err != nil {
		return snap, fmt.Errorf("loading hosts: %w", err)
	}
	snap.Hosts, err = scanJSON[coordinator.Host](hostRows)
	if err != nil {
		return snap, err
	}

	jobRows, err := s.db.Query(`SELECT json FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return snap, fmt.Errorf("loading jobs: %w", err)
	}
	snap.Jobs, err = scanJSON[coordinator.Job](jobRows)
	if err != nil {
		return snap, err
	}

	svcRows, err := s.db.Query(`SELECT json FROM services ORDER BY created_at ASC`)
	if err != nil {
		return snap, fmt.Errorf("loading services: %w", err)
	}
	snap.Services, err = scanJSON[coordinator.Service](svcRows)
	if err != nil {
		return snap, err
	}

	return snap, nil
}

func scanJSON[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("unmarshalling row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// ReplaceAll atomically clears and repopulates hosts, jobs, and services
// from snap. Used by the coordinator's Restore for checkpoint rollback;
// merges of incoming snapshots go through the Put* upserts instead.
func (s *Store) ReplaceAll(snap coordinator.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"hosts", "jobs", "services"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, h := range snap.Hosts {
		raw, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("marshalling host: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO hosts (id, json) VALUES (?, ?)`, h.ID, string(raw)); err != nil {
			return fmt.Errorf("inserting host %s: %w", h.ID, err)
		}
	}
	for _, j := range snap.Jobs {
		raw, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshalling job: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO jobs (id, created_at, json) VALUES (?, ?, ?)`, j.ID, j.CreatedAt.UTC().Format(timeLayout), string(raw)); err != nil {
			return fmt.Errorf("inserting job %s: %w", j.ID, err)
		}
	}
	for _, svc := range snap.Services {
		raw, err := json.Marshal(svc)
		if err != nil {
			return fmt.Errorf("marshalling service: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO services (id, created_at, json) VALUES (?, ?, ?)`, svc.ID, svc.CreatedAt.UTC().Format(timeLayout), string(raw)); err != nil {
			return fmt.Errorf("inserting service %s: %w", svc.ID, err)
		}
	}

	return tx.Commit()
}
