// Package sqlite keeps a history of discovery runs in an SQLite database
// using the pure-Go modernc.org/sqlite driver.
//
// Every batch run becomes one row in runs and one row per attempted address
// in discoveries. Successful discoveries keep the assembled device as JSON;
// failed ones keep the error message.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vpbank/snmp_diode/models"
)

// Store implements the discovery history on SQLite.
type Store struct {
	db *sql.DB
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Attempted  int
	Succeeded  int
	Failed     int
}

// Discovery is one row of the discoveries table.
type Discovery struct {
	Address      string
	Device       string
	Manufacturer string
	DeviceType   string
	Interfaces   int
	Error        string
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" a single database and serialises
	// writers on file databases.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store/sqlite: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		attempted INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS discoveries (
		run_id TEXT NOT NULL,
		address TEXT NOT NULL,
		device TEXT,
		manufacturer TEXT,
		device_type TEXT,
		interfaces INTEGER NOT NULL DEFAULT 0,
		data JSON,
		error TEXT,
		PRIMARY KEY (run_id, address),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_discoveries_address ON discoveries(address);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveReport stores rep in one transaction. A zero rep.ID is rejected.
func (s *Store) SaveReport(ctx context.Context, rep models.Report) error {
	if rep.ID == uuid.Nil {
		return fmt.Errorf("store/sqlite: report has no id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store/sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, attempted, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rep.ID.String(), toMillis(rep.StartedAt), toMillis(rep.FinishedAt),
		rep.Attempted(), len(rep.Devices), len(rep.Errors)); err != nil {
		return fmt.Errorf("store/sqlite: insert run %s: %w", rep.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO discoveries (run_id, address, device, manufacturer, device_type, interfaces, data, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store/sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for _, dev := range rep.Devices {
		data, err := json.Marshal(dev)
		if err != nil {
			return fmt.Errorf("store/sqlite: marshal %s: %w", dev.Address, err)
		}
		if _, err := stmt.ExecContext(ctx, rep.ID.String(), dev.Address, dev.Name,
			dev.Manufacturer, dev.DeviceType, len(dev.Interfaces), string(data), nil); err != nil {
			return fmt.Errorf("store/sqlite: insert %s: %w", dev.Address, err)
		}
	}
	for _, addr := range sortedKeys(rep.Errors) {
		if _, err := stmt.ExecContext(ctx, rep.ID.String(), addr, nil, nil, nil, 0, nil, rep.Errors[addr]); err != nil {
			return fmt.Errorf("store/sqlite: insert %s: %w", addr, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store/sqlite: commit: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, attempted, succeeded, failed
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r                 RunSummary
			id                string
			started, finished int64
		)
		if err := rows.Scan(&id, &started, &finished, &r.Attempted, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("store/sqlite: scan run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("store/sqlite: run id %q: %w", id, err)
		}
		r.StartedAt, r.FinishedAt = fromMillis(started), fromMillis(finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: iterate runs: %w", err)
	}
	return out, nil
}

// Discoveries returns every address attempted in run id, ordered by address.
func (s *Store) Discoveries(ctx context.Context, id uuid.UUID) ([]Discovery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, device, manufacturer, device_type, interfaces, error
		FROM discoveries
		WHERE run_id = ?
		ORDER BY address
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: query discoveries: %w", err)
	}
	defer rows.Close()

	var out []Discovery
	for rows.Next() {
		var (
			d                                   Discovery
			device, manufacturer, dtype, errMsg sql.NullString
		)
		if err := rows.Scan(&d.Address, &device, &manufacturer, &dtype, &d.Interfaces, &errMsg); err != nil {
			return nil, fmt.Errorf("store/sqlite: scan discovery: %w", err)
		}
		d.Device = nullToString(device)
		d.Manufacturer = nullToString(manufacturer)
		d.DeviceType = nullToString(dtype)
		d.Error = nullToString(errMsg)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: iterate discoveries: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders a summary line for the CLI history listing.
func (r RunSummary) String() string {
	return fmt.Sprintf("%s  %s  %8s  attempted=%d ok=%d failed=%d",
		r.ID, r.StartedAt.Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		r.Attempted, r.Succeeded, r.Failed)
}
