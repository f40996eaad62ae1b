package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/pkg/metrics"
)

const snapshotKey = "latest"

// SQLiteStore appends readiness records and keeps the last snapshot in a
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and runs the
// migrations. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" one database and serializes writers.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// Readiness records, append-only. Several per day are allowed.
		`CREATE TABLE IF NOT EXISTS readiness (
			id TEXT PRIMARY KEY,
			day TEXT NOT NULL,
			score INTEGER NOT NULL,
			load REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readiness_day ON readiness(day)`,

		// Last published snapshot as JSON.
		`CREATE TABLE IF NOT EXISTS snapshot_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save appends rec.
func (s *SQLiteStore) Save(ctx context.Context, rec model.ReadinessRecord) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readiness (id, day, score, load, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Day, rec.Score, rec.Load, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting readiness: %w", err)
	}
	return nil
}

// History returns every record whose day lies in [from, to], each bound
// taken as a calendar day in its own location. Duplicates are kept.
func (s *SQLiteStore) History(ctx context.Context, from, to time.Time) ([]model.ReadinessRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, day, score, load, created_at FROM readiness
		WHERE day >= ? AND day <= ?
		ORDER BY day, created_at`,
		model.DayKey(from, from.Location()), model.DayKey(to, to.Location()),
	)
	if err != nil {
		return nil, fmt.Errorf("querying readiness: %w", err)
	}
	defer rows.Close()

	var out []model.ReadinessRecord
	for rows.Next() {
		var (
			rec     model.ReadinessRecord
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.Day, &rec.Score, &rec.Load, &created); err != nil {
			return nil, fmt.Errorf("scanning readiness: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns the stored snapshot, or nil when none was saved.
func (s *SQLiteStore) Get(ctx context.Context) (*model.RefreshSnapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM snapshot_state WHERE key = ?`, snapshotKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap model.RefreshSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// Set replaces the stored snapshot.
func (s *SQLiteStore) Set(ctx context.Context, snap *model.RefreshSnapshot) error {
	if snap == nil {
		return s.Clear(ctx)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshot_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		snapshotKey, string(raw), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshot_state WHERE key = ?`, snapshotKey); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	return nil
}
