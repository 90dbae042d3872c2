// Package usage - store.go persists the usage history to local SQLite.
//
// DESIGN: Persistence is a side effect, not the source of truth. The monitor
// stays authoritative in memory; Save/Load move whole snapshots so a restart
// can pick up where the previous process left off.
package usage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id                   TEXT PRIMARY KEY,
	ts                   INTEGER NOT NULL,
	requested_query_cost REAL NOT NULL,
	actual_query_cost    REAL NOT NULL,
	maximum_available    REAL NOT NULL,
	currently_available  REAL NOT NULL,
	restore_rate         REAL NOT NULL,
	endpoint             TEXT NOT NULL DEFAULT '',
	operation            TEXT NOT NULL DEFAULT '',
	success              INTEGER NOT NULL,
	throttled            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_records_ts ON usage_records(ts);
`

// Store is a SQLite-backed snapshot store for usage records.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening usage store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating usage store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the persisted snapshot with records.
func (s *Store) Save(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM usage_records`); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO usage_records
		(id, ts, requested_query_cost, actual_query_cost,
		 maximum_available, currently_available, restore_rate,
		 endpoint, operation, success, throttled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		_, err := stmt.Exec(
			r.ID,
			r.Timestamp.UnixNano(),
			r.RequestedQueryCost,
			r.ActualQueryCost,
			r.ThrottleStatus.MaximumAvailable,
			r.ThrottleStatus.CurrentlyAvailable,
			r.ThrottleStatus.RestoreRate,
			r.Endpoint,
			r.Operation,
			boolToInt(r.Success),
			boolToInt(r.Throttled),
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Load returns the persisted snapshot, oldest record first.
func (s *Store) Load() ([]Record, error) {
	rows, err := s.db.Query(`SELECT
		id, ts, requested_query_cost, actual_query_cost,
		maximum_available, currently_available, restore_rate,
		endpoint, operation, success, throttled
		FROM usage_records ORDER BY ts ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var ts int64
		var success, throttled int
		err := rows.Scan(
			&r.ID, &ts, &r.RequestedQueryCost, &r.ActualQueryCost,
			&r.ThrottleStatus.MaximumAvailable,
			&r.ThrottleStatus.CurrentlyAvailable,
			&r.ThrottleStatus.RestoreRate,
			&r.Endpoint, &r.Operation, &success, &throttled,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Timestamp = time.Unix(0, ts)
		r.Success = success != 0
		r.Throttled = throttled != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
