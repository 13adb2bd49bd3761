// Package history keeps every timestamped sensor reading in a local SQLite
// database so past values survive beyond the upstream's rolling window.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/state"

	_ "modernc.org/sqlite"
)

// FileName is the database file name inside the data directory.
const FileName = "history.db"

const timeLayout = "2006-01-02T15:04:05.000Z"

// Reading is one stored sensor reading.
type Reading struct {
	RecordedAt  time.Time
	SG          int
	SensorState string
	Kind        string
	ReceivedAt  time.Time
}

// Store wraps the SQLite database connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open initializes the database connection, creating directories as needed.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the readings table exists.
func (s *Store) InitSchema(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS readings (
		recorded_at TEXT PRIMARY KEY,
		sg INTEGER NOT NULL,
		sensor_state TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Record upserts every timestamped reading of snap and returns how many rows
// were written.
func (s *Store) Record(ctx context.Context, snap *carelink.Snapshot) (int, error) {
	if snap == nil {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings (recorded_at, sg, sensor_state, kind, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(recorded_at) DO UPDATE SET
			sg = excluded.sg,
			sensor_state = excluded.sensor_state,
			kind = excluded.kind`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	received := s.now().UTC().Format(timeLayout)
	written := 0
	for _, r := range snap.Readings {
		t, ok := r.Time()
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, t.UTC().Format(timeLayout), r.SG, r.State(), r.Kind, received); err != nil {
			return 0, fmt.Errorf("insert reading: %w", err)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// Recent returns up to limit readings, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT recorded_at, sg, sensor_state, kind, received_at
		FROM readings ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			r                  Reading
			recorded, received string
		)
		if err := rows.Scan(&recorded, &r.SG, &r.SensorState, &r.Kind, &received); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.RecordedAt, err = time.Parse(timeLayout, recorded)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		r.ReceivedAt, _ = time.Parse(timeLayout, received)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

// Clear removes every stored reading.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM readings`); err != nil {
		return fmt.Errorf("clear readings: %w", err)
	}
	return nil
}

// Run records every snapshot received on events until ctx is done or events
// is closed.
func (s *Store) Run(ctx context.Context, events <-chan state.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Snapshot == nil {
				continue
			}
			recordCtx, cancelRecord := context.WithTimeout(ctx, 5*time.Second)
			n, err := s.Record(recordCtx, ev.Snapshot)
			cancelRecord()
			if err != nil {
				s.logger.Error("record readings failed", "error", err)
				continue
			}
			s.logger.Debug("recorded readings", "count", n)
		}
	}
}
