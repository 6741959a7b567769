// Package archive provides PostgreSQL-backed long-term storage for guard
// alerts. The client-side audit log caps at 100 entries; the archive keeps
// everything the auditor consumes off the alert bus, for review windows the
// ring buffer cannot serve.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BlediN/hobby-hub/internal/alerts"
)

// Store persists guard alerts in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Record is one archived alert row.
type Record struct {
	ID          int64
	Kind        string // "suspicious" or "blocked"
	Fingerprint string
	UserAgent   string
	URL         string
	Action      string
	Reason      string
	Details     map[string]any
	CreatedAt   time.Time
}

// NewStore creates an archive store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert archives one alert under the given kind. Details are marshalled to
// JSONB; an empty details map stores NULL.
func (s *Store) Insert(ctx context.Context, kind string, alert alerts.Alert) error {
	var details []byte
	if len(alert.Details) > 0 {
		var err error
		details, err = json.Marshal(alert.Details)
		if err != nil {
			return fmt.Errorf("archive: marshal details: %w", err)
		}
	}

	const query = `
		INSERT INTO guard_alerts (kind, fingerprint, user_agent, url, action, reason, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, to_timestamp($8 / 1000.0))`

	_, err := s.db.ExecContext(ctx, query,
		kind,
		alert.Fingerprint,
		alert.UserAgent,
		alert.URL,
		alert.Action,
		alert.Reason,
		details,
		alert.Ts,
	)
	if err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of alerts archived against a fingerprint
// within the given window. Moderators use it to spot repeat offenders whose
// client-side counters have long expired.
func (s *Store) CountRecent(ctx context.Context, fp string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM guard_alerts
		WHERE fingerprint = $1
		  AND created_at >= NOW() - make_interval(secs => $2)`

	var count int
	err := s.db.QueryRowContext(ctx, query, fp, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("archive: count recent: %w", err)
	}
	return count, nil
}

// ListRecent returns up to limit alerts for a fingerprint, newest first.
func (s *Store) ListRecent(ctx context.Context, fp string, limit int) ([]Record, error) {
	const query = `
		SELECT id, kind, fingerprint, user_agent, url, action, reason, details, created_at
		FROM guard_alerts
		WHERE fingerprint = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, fp, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var details []byte
		if err := rows.Scan(&r.ID, &r.Kind, &r.Fingerprint, &r.UserAgent, &r.URL,
			&r.Action, &r.Reason, &details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &r.Details); err != nil {
				return nil, fmt.Errorf("archive: unmarshal details: %w", err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
