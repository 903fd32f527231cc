// Package sqlite stores reactor snapshots in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/daniacca/graphitecore/internal/reactor"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a reactor has no stored snapshot.
var ErrNotFound = errors.New("snapshot not found")

// Entry describes one stored snapshot without its payload.
type Entry struct {
	ID        int64             `json:"id"`
	ReactorID reactor.ReactorID `json:"reactor_id"`
	Tick      int64             `json:"tick"`
	Phase     reactor.Phase     `json:"phase"`
	Destroyed bool              `json:"destroyed"`
	TakenAt   time.Time         `json:"taken_at"`
}

// Store persists snapshots in SQLite. Every Save appends a row; Latest reads
// the newest one by tick.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite snapshot store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// Save appends snap and returns its row id.
func (s *Store) Save(ctx context.Context, snap reactor.Snapshot) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if snap.ReactorID == "" {
		return 0, fmt.Errorf("reactor id is required")
	}
	payload, err := reactor.EncodeSnapshotJSON(snap)
	if err != nil {
		return 0, err
	}
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	phase := snap.Safety.Phase()
	if snap.Destroyed && snap.EndPhase != "" {
		phase = snap.EndPhase
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO snapshots (reactor_id, tick, phase, destroyed, taken_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(snap.ReactorID),
		snap.Tick,
		string(phase),
		snap.Destroyed,
		toMillis(takenAt),
		string(payload),
	)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	return id, nil
}

// Latest returns the newest snapshot of id.
func (s *Store) Latest(ctx context.Context, id reactor.ReactorID) (reactor.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return reactor.Snapshot{}, err
	}
	var payload string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT payload
		   FROM snapshots
		  WHERE reactor_id = ?
		  ORDER BY tick DESC, id DESC
		  LIMIT 1`,
		string(id),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reactor.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return reactor.Snapshot{}, fmt.Errorf("get latest snapshot: %w", err)
	}
	return reactor.DecodeSnapshotJSON([]byte(payload))
}

// List returns the newest entry of every reactor, ordered by reactor id.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT s.id, s.reactor_id, s.tick, s.phase, s.destroyed, s.taken_at
		   FROM snapshots s
		  WHERE s.id = (
		        SELECT l.id FROM snapshots l
		         WHERE l.reactor_id = s.reactor_id
		         ORDER BY l.tick DESC, l.id DESC
		         LIMIT 1)
		  ORDER BY s.reactor_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return scanEntries(rows)
}

// History returns up to limit entries of id, newest first. limit <= 0
// returns all of them.
func (s *Store) History(ctx context.Context, id reactor.ReactorID, limit int) ([]Entry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, reactor_id, tick, phase, destroyed, taken_at
		   FROM snapshots
		  WHERE reactor_id = ?
		  ORDER BY tick DESC, id DESC
		  LIMIT ?`,
		string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	return scanEntries(rows)
}

// Delete removes every snapshot of id and returns how many were removed.
func (s *Store) Delete(ctx context.Context, id reactor.ReactorID) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM snapshots WHERE reactor_id = ?`, string(id))
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Prune keeps the newest keep snapshots of id and removes the rest.
func (s *Store) Prune(ctx context.Context, id reactor.ReactorID, keep int) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM snapshots
		  WHERE reactor_id = ?
		    AND id NOT IN (
		        SELECT id FROM snapshots
		         WHERE reactor_id = ?
		         ORDER BY tick DESC, id DESC
		         LIMIT ?)`,
		string(id), string(id), keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			id      string
			phase   string
			takenAt int64
		)
		if err := rows.Scan(&e.ID, &id, &e.Tick, &phase, &e.Destroyed, &takenAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		e.ReactorID = reactor.ReactorID(id)
		e.Phase = reactor.Phase(phase)
		e.TakenAt = fromMillis(takenAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
