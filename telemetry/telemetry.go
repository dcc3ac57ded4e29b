// Package telemetry persists per-tick planner state to a local sqlite
// database for offline tuning and incident review.
package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	ts            INTEGER NOT NULL,
	tick          INTEGER NOT NULL,
	v_ego         REAL NOT NULL,
	v_cruise_cmd  REAL NOT NULL,
	source        TEXT NOT NULL,
	solver_status INTEGER NOT NULL,
	solve_us      INTEGER NOT NULL,
	crash_count   INTEGER NOT NULL,
	forcing_stop  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_ts ON ticks (ts);
`

// TickRecord is one planner tick worth of telemetry.
type TickRecord struct {
	Tick         uint64
	VEgo         float64
	VCruiseCmd   float64
	Source       string
	SolverStatus int
	SolveTime    time.Duration
	CrashCount   int
	ForcingStop  bool
}

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	// A single writer keeps sqlite happy.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordTick inserts one tick row.
func (s *Store) RecordTick(r TickRecord) error {
	forcing := 0
	if r.ForcingStop {
		forcing = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO ticks (ts, tick, v_ego, v_cruise_cmd, source, solver_status, solve_us, crash_count, forcing_stop)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), r.Tick, r.VEgo, r.VCruiseCmd, r.Source,
		r.SolverStatus, r.SolveTime.Microseconds(), r.CrashCount, forcing,
	)
	if err != nil {
		return fmt.Errorf("telemetry: insert tick %d: %w", r.Tick, err)
	}
	return nil
}

// RecentTicks returns up to limit rows, newest first.
func (s *Store) RecentTicks(limit int) ([]TickRecord, error) {
	rows, err := s.db.Query(
		`SELECT tick, v_ego, v_cruise_cmd, source, solver_status, solve_us, crash_count, forcing_stop
		 FROM ticks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query ticks: %w", err)
	}
	defer rows.Close()

	var out []TickRecord
	for rows.Next() {
		var r TickRecord
		var solveUS int64
		var forcing int
		if err := rows.Scan(&r.Tick, &r.VEgo, &r.VCruiseCmd, &r.Source,
			&r.SolverStatus, &solveUS, &r.CrashCount, &forcing); err != nil {
			return nil, fmt.Errorf("telemetry: scan tick: %w", err)
		}
		r.SolveTime = time.Duration(solveUS) * time.Microsecond
		r.ForcingStop = forcing != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("telemetry: iterate ticks: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }
