// Package archive keeps finished runs in SQLite so reports outlive the
// in-memory job store.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dgallion1/contractlens/internal/archive/migrations"
	"github.com/dgallion1/contractlens/internal/consolidate"
	"github.com/dgallion1/contractlens/internal/pipeline"
)

// ErrNotFound is returned when no archived run has the requested ID.
var ErrNotFound = errors.New("run not found")

// Store persists runs and their stage results.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path and applies
// migrations. ":memory:" gives a private in-memory archive.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling foreign keys")
	}

	s := New(db)
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}
	return s, nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(err, "creating schema_migrations table")
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return errors.Wrap(err, "getting current version")
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return errors.Wrap(err, "reading migrations directory")
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return errors.Wrapf(err, "reading migration %s", name)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return errors.Wrapf(err, "executing migration %s", name)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, formatTime(time.Now())); err != nil {
			return errors.Wrapf(err, "recording migration %s", name)
		}
	}
	return nil
}

// StageRecord is one archived stage result.
type StageRecord struct {
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	Content    string    `json:"content"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Record is one archived run.
type Record struct {
	ID           string              `json:"run_id"`
	SessionID    string              `json:"session_id"`
	DocumentName string              `json:"document_name"`
	ContentHash  string              `json:"content_hash"`
	Status       string              `json:"status"`
	Error        string              `json:"error,omitempty"`
	Chunks       int                 `json:"chunks"`
	Report       *consolidate.Report `json:"report,omitempty"`
	Stages       []StageRecord       `json:"stages,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	FinishedAt   time.Time           `json:"finished_at,omitzero"`
}

// SaveRun stores the run with its stage ledger, replacing any earlier copy.
func (s *Store) SaveRun(ctx context.Context, run *pipeline.Run, contentHash string) error {
	snap := run.Snapshot()
	var report sql.NullString
	if rep := run.Report(); rep != nil {
		data, err := json.Marshal(rep)
		if err != nil {
			return errors.Wrap(err, "marshalling report")
		}
		report = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, document_name, content_hash, status, error, chunks, report, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			chunks = excluded.chunks,
			report = excluded.report,
			finished_at = excluded.finished_at
	`, snap.ID, snap.SessionID, snap.DocumentName, contentHash, string(snap.Status), snap.Error,
		snap.Chunks, report, formatTime(snap.CreatedAt), formatTime(snap.FinishedAt))
	if err != nil {
		return errors.Wrapf(err, "saving run %s", snap.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM stage_results WHERE run_id = ?", snap.ID); err != nil {
		return errors.Wrapf(err, "clearing stages of run %s", snap.ID)
	}
	for i, res := range run.Results() {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stage_results (run_id, position, stage, status, attempts, content, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, snap.ID, i, res.Stage, string(res.Status), res.Attempts, res.Content, errText,
			formatTime(res.Started), formatTime(res.Finished))
		if err != nil {
			return errors.Wrapf(err, "saving stage %s of run %s", res.Stage, snap.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit run")
}

const runColumns = "id, session_id, document_name, content_hash, status, error, chunks, report, created_at, finished_at"

// GetRun loads a run with its stages.
func (s *Store) GetRun(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("run %s not found", id), ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading run %s", id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, status, attempts, content, error, started_at, finished_at
		FROM stage_results WHERE run_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading stages of run %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var sr StageRecord
		var started, finished string
		if err := rows.Scan(&sr.Stage, &sr.Status, &sr.Attempts, &sr.Content, &sr.Error, &started, &finished); err != nil {
			return nil, errors.Wrap(err, "scanning stage")
		}
		sr.StartedAt = parseTime(started)
		sr.FinishedAt = parseTime(finished)
		rec.Stages = append(rec.Stages, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating stages")
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first, without their
// stages. An empty sessionID lists every session.
func (s *Store) ListRuns(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + runColumns + " FROM runs"
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning run")
		}
		out = append(out, *rec)
	}
	return out, errors.Wrap(rows.Err(), "iterating runs")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Record, error) {
	var rec Record
	var report sql.NullString
	var created, finished string
	err := sc.Scan(&rec.ID, &rec.SessionID, &rec.DocumentName, &rec.ContentHash, &rec.Status,
		&rec.Error, &rec.Chunks, &report, &created, &finished)
	if err != nil {
		return nil, err
	}
	if report.Valid && report.String != "" {
		var rep consolidate.Report
		if err := json.Unmarshal([]byte(report.String), &rep); err != nil {
			return nil, errors.Wrapf(err, "decoding report of run %s", rec.ID)
		}
		rec.Report = &rep
	}
	rec.CreatedAt = parseTime(created)
	rec.FinishedAt = parseTime(finished)
	return &rec, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
