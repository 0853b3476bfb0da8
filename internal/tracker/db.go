package tracker

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB stores item states as rows in a SQLite database, one file shared by
// every tool with rows keyed (tool, item_id).
type DB struct {
	db   *sql.DB
	tool string
	path string
}

// OpenDB initializes or connects to the state database and ensures the schema.
func OpenDB(stateDir, tool string) (*DB, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{db: db, tool: tool, path: dbPath}, nil
}

func (d *DB) IsDone(ctx context.Context, id string) (bool, error) {
	return d.hasState(ctx, id, StateOK)
}

func (d *DB) IsFailed(ctx context.Context, id string) (bool, error) {
	return d.hasState(ctx, id, StateFailed)
}

func (d *DB) hasState(ctx context.Context, id string, state State) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM item_states WHERE tool = ? AND item_id = ? AND state = ?`,
		d.tool, id, string(state),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query item state: %w", err)
	}
	return count > 0, nil
}

func (d *DB) MarkOK(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO item_states (tool, item_id, state, exit_code, log_path, reason, updated_at)
         VALUES (?, ?, ?, 0, NULL, NULL, ?)
         ON CONFLICT(tool, item_id) DO UPDATE SET
             state = excluded.state, exit_code = 0, log_path = NULL,
             reason = NULL, updated_at = excluded.updated_at`,
		d.tool, id, string(StateOK), timestamp(),
	)
	if err != nil {
		return fmt.Errorf("mark ok: %w", err)
	}
	return nil
}

func (d *DB) MarkFailed(ctx context.Context, id string, failure Failure) error {
	if failure.At.IsZero() {
		failure.At = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO item_states (tool, item_id, state, exit_code, log_path, reason, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(tool, item_id) DO UPDATE SET
             state = excluded.state, exit_code = excluded.exit_code,
             log_path = excluded.log_path, reason = excluded.reason,
             updated_at = excluded.updated_at`,
		d.tool, id, string(StateFailed),
		failure.ExitCode, nullable(failure.LogPath), nullable(failure.Reason),
		failure.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (d *DB) ClearFailed(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM item_states WHERE tool = ? AND item_id = ? AND state = ?`,
		d.tool, id, string(StateFailed),
	)
	if err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	return nil
}

func (d *DB) ClearDone(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM item_states WHERE tool = ? AND item_id = ? AND state = ?`,
		d.tool, id, string(StateOK),
	)
	if err != nil {
		return fmt.Errorf("clear done: %w", err)
	}
	return nil
}

func (d *DB) Failure(ctx context.Context, id string) (Failure, bool, error) {
	var (
		exitCode int
		logPath  sql.NullString
		reason   sql.NullString
		updated  string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT exit_code, log_path, reason, updated_at FROM item_states
         WHERE tool = ? AND item_id = ? AND state = ?`,
		d.tool, id, string(StateFailed),
	).Scan(&exitCode, &logPath, &reason, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Failure{}, false, nil
	}
	if err != nil {
		return Failure{}, false, fmt.Errorf("query failure: %w", err)
	}
	failure := Failure{ExitCode: exitCode, LogPath: logPath.String, Reason: reason.String}
	if at, parseErr := time.Parse(time.RFC3339Nano, updated); parseErr == nil {
		failure.At = at
	}
	return failure, true, nil
}

func (d *DB) States(ctx context.Context) (map[string]State, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT item_id, state FROM item_states WHERE tool = ?`, d.tool)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]State)
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, err
		}
		states[id] = State(state)
	}
	return states, rows.Err()
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
