package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists touch scripts and replay run history in SQLite.
type Store struct {
	db     *sql.DB
	dbPath string

	stmtUpsertScript *sql.Stmt
	stmtInsertRun    *sql.Stmt
}

const storeSchemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS scripts (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    device_id TEXT NOT NULL,
    package TEXT,
    resolution TEXT,
    created_at INTEGER NOT NULL,
    steps TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scripts_name ON scripts(name);
CREATE INDEX IF NOT EXISTS idx_scripts_created ON scripts(created_at DESC);

CREATE TABLE IF NOT EXISTS replay_runs (
    id TEXT PRIMARY KEY,
    script_id TEXT,
    device_id TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    status TEXT NOT NULL,
    completed_steps INTEGER NOT NULL,
    failed_index INTEGER NOT NULL DEFAULT -1,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_script ON replay_runs(script_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_device ON replay_runs(device_id, started_at DESC);
`

// NewStore opens (creating if needed) the agent database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "droidpilot.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(storeSchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.stmtUpsertScript, err = s.db.Prepare(`
		INSERT INTO scripts (id, name, device_id, package, resolution, created_at, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			package = excluded.package,
			resolution = excluded.resolution,
			steps = excluded.steps
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert script: %w", err)
	}

	s.stmtInsertRun, err = s.db.Prepare(`
		INSERT INTO replay_runs (
			id, script_id, device_id, started_at, finished_at,
			status, completed_steps, failed_index, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert run: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.stmtUpsertScript != nil {
		s.stmtUpsertScript.Close()
	}
	if s.stmtInsertRun != nil {
		s.stmtInsertRun.Close()
	}
	return s.db.Close()
}

// SaveScript inserts or updates a script, steps serialized as JSON.
func (s *Store) SaveScript(script TouchScript) error {
	steps, err := json.Marshal(script.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.stmtUpsertScript.Exec(
		script.ID, script.Name, script.DeviceID, script.Package,
		script.Resolution, script.CreatedAt.UnixMilli(), string(steps),
	)
	if err != nil {
		return fmt.Errorf("save script %s: %w", script.ID, err)
	}
	LogDebug("store").Str("scriptId", script.ID).Int("steps", len(script.Steps)).Msg("Script saved")
	return nil
}

// GetScript loads one script by id.
func (s *Store) GetScript(id string) (TouchScript, error) {
	row := s.db.QueryRow(`
		SELECT id, name, device_id, package, resolution, created_at, steps
		FROM scripts WHERE id = ?`, id)
	return scanScript(row)
}

// ListScripts returns all scripts, newest first, without their steps.
// Step payloads can be large; the listing view never needs them.
func (s *Store) ListScripts() ([]TouchScript, error) {
	rows, err := s.db.Query(`
		SELECT id, name, device_id, package, resolution, created_at,
		       json_array_length(steps)
		FROM scripts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var scripts []TouchScript
	for rows.Next() {
		var sc TouchScript
		var createdMs int64
		var stepCount int
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.DeviceID, &sc.Package, &sc.Resolution, &createdMs, &stepCount); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		sc.CreatedAt = time.UnixMilli(createdMs)
		sc.Steps = make([]RecordedStep, 0, stepCount)
		scripts = append(scripts, sc)
	}
	return scripts, rows.Err()
}

// DeleteScript removes a script. Deleting a missing script is an error
// so the HTTP layer can answer 404.
func (s *Store) DeleteScript(id string) error {
	res, err := s.db.Exec(`DELETE FROM scripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete script %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SaveRun appends a replay run record.
func (s *Store) SaveRun(run ReplayRun) error {
	_, err := s.stmtInsertRun.Exec(
		run.ID, run.ScriptID, run.DeviceID,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		string(run.Status), run.CompletedSteps, run.FailedIndex, run.Error,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns run history, newest first. scriptID narrows to one
// script when non-empty.
func (s *Store) ListRuns(scriptID string, limit int) ([]ReplayRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, script_id, device_id, started_at, finished_at,
		       status, completed_steps, failed_index, error
		FROM replay_runs`
	args := []interface{}{}
	if scriptID != "" {
		query += ` WHERE script_id = ?`
		args = append(args, scriptID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []ReplayRun
	for rows.Next() {
		var r ReplayRun
		var startedMs, finishedMs int64
		var status string
		if err := rows.Scan(&r.ID, &r.ScriptID, &r.DeviceID, &startedMs, &finishedMs,
			&status, &r.CompletedSteps, &r.FailedIndex, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.FinishedAt = time.UnixMilli(finishedMs)
		r.Status = ReplayState(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanScript(row *sql.Row) (TouchScript, error) {
	var sc TouchScript
	var createdMs int64
	var stepsJSON string
	err := row.Scan(&sc.ID, &sc.Name, &sc.DeviceID, &sc.Package, &sc.Resolution, &createdMs, &stepsJSON)
	if err != nil {
		return TouchScript{}, err
	}
	sc.CreatedAt = time.UnixMilli(createdMs)
	if err := json.Unmarshal([]byte(stepsJSON), &sc.Steps); err != nil {
		return TouchScript{}, fmt.Errorf("decode steps for %s: %w", sc.ID, err)
	}
	return sc, nil
}
