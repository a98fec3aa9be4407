// Package store persists webhook deliveries and bootstrap outcomes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/NickAwrist/dynamic-pr-templates/internal/bootstrap"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS deliveries (
		id          TEXT PRIMARY KEY,
		event       TEXT NOT NULL,
		received_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outcomes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		delivery_id TEXT NOT NULL,
		owner       TEXT NOT NULL,
		repo        TEXT NOT NULL,
		succeeded   INTEGER NOT NULL,
		outcome     TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS outcomes_recorded_at ON outcomes (recorded_at)`,
}

// RecordedOutcome is a stored bootstrap outcome
type RecordedOutcome struct {
	ID         int64             `json:"id"`
	DeliveryID string            `json:"delivery_id"`
	RecordedAt time.Time         `json:"recorded_at"`
	Outcome    bootstrap.Outcome `json:"outcome"`
}

// Store is a database/sql backed ledger
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to the database and applies migrations
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// MarkDelivery records a delivery id. It returns false when the id was
// already recorded.
func (s *Store) MarkDelivery(ctx context.Context, deliveryID, event string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (id, event, received_at) VALUES (?, ?, ?)`,
		deliveryID, event, s.now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to record delivery %s: %w", deliveryID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record delivery %s: %w", deliveryID, err)
	}
	return n == 1, nil
}

// PruneDeliveries removes delivery ids older than maxAge
func (s *Store) PruneDeliveries(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE received_at < ?`, s.now().Add(-maxAge).Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	return res.RowsAffected()
}

// RecordOutcome stores a bootstrap outcome
func (s *Store) RecordOutcome(ctx context.Context, deliveryID string, outcome bootstrap.Outcome) error {
	encoded, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (delivery_id, owner, repo, succeeded, outcome, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		deliveryID, outcome.Repository.Owner, outcome.Repository.Name, outcome.Succeeded(), string(encoded), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", outcome.Repository, err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, newest first
func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]RecordedOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, delivery_id, outcome, recorded_at FROM outcomes ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []RecordedOutcome{}
	for rows.Next() {
		var (
			rec        RecordedOutcome
			encoded    string
			recordedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.DeliveryID, &encoded, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &rec.Outcome); err != nil {
			return nil, fmt.Errorf("failed to decode outcome %d: %w", rec.ID, err)
		}
		rec.RecordedAt = time.Unix(0, recordedAt).UTC()
		outcomes = append(outcomes, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outcomes: %w", err)
	}
	return outcomes, nil
}
