// Package db persists the calling engine's durable state in sqlite: the
// append-only threshold version history with its active pointer, the training
// lease, the population evidence cache, and consolidated per-run results.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/smn.report/internal/timeutil"
)

// DB wraps the sqlite handle with the store's typed accessors.
type DB struct {
	*sql.DB

	clock timeutil.Clock
}

// OpenDB opens (creating if needed) the sqlite store at path. Schema is
// managed by migrations; call MigrateUp before first use.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}

	// Lease acquisition uses BEGIN IMMEDIATE; a short busy timeout keeps
	// concurrent readers from failing spuriously while a trainer commits.
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return &DB{DB: sqlDB, clock: timeutil.RealClock{}}, nil
}

// SetClock overrides the store clock. Tests use this to make lease expiry
// and evidence TTL checks deterministic.
func (db *DB) SetClock(c timeutil.Clock) {
	if c != nil {
		db.clock = c
	}
}
