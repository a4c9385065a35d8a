// Package registry keeps a local history of pipeline runs and published
// snapshots in a SQLite file. The registry is advisory: the pipeline treats
// its failures as warnings, never as run failures.
package registry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// Run is one recorded pipeline stage execution.
type Run struct {
	ID         int64
	Stage      string
	Status     string // "ok" or "failed"
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Snapshot is one recorded snapshot upload.
type Snapshot struct {
	ID         int64
	Dataset    string
	Key        string
	Provider   string
	Bucket     string
	Size       int64
	SHA1       string
	UploadedAt time.Time
}

// Registry is a SQLite-backed run history.
type Registry struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset     TEXT NOT NULL,
	key         TEXT NOT NULL,
	provider    TEXT NOT NULL,
	bucket      TEXT NOT NULL,
	size        INTEGER NOT NULL DEFAULT 0,
	sha1        TEXT NOT NULL DEFAULT '',
	uploaded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_dataset ON snapshots (dataset, uploaded_at);
`

// Open opens (or creates) the registry database at path and applies the
// schema.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return nil, errors.WrapIO("create", filepath.Dir(path), err)
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.WrapIO("open", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.WrapIO("migrate", path, err)
	}
	return &Registry{db: db}, nil
}

// Close closes the database handle.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// RecordRun inserts one stage execution and returns its id.
func (r *Registry) RecordRun(ctx context.Context, run Run) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (stage, status, detail, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.Stage, run.Status, run.Detail,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, errors.WrapIO("insert", "runs", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.WrapIO("insert", "runs", err)
	}
	return id, nil
}

// RecordSnapshot inserts one snapshot upload record.
func (r *Registry) RecordSnapshot(ctx context.Context, s Snapshot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO snapshots (dataset, key, provider, bucket, size, sha1, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Dataset, s.Key, s.Provider, s.Bucket, s.Size, s.SHA1,
		s.UploadedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.WrapIO("insert", "snapshots", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *Registry) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, stage, status, detail, started_at, finished_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.WrapIO("query", "runs", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished string
		if err := rows.Scan(&run.ID, &run.Stage, &run.Status, &run.Detail, &started, &finished); err != nil {
			return nil, errors.WrapIO("scan", "runs", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, started)
		run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapIO("query", "runs", err)
	}
	return runs, nil
}

// ListSnapshots returns the recorded uploads for a dataset, newest first.
// An empty dataset returns uploads for all datasets.
func (r *Registry) ListSnapshots(ctx context.Context, dataset string, limit int) ([]Snapshot, error) {
	query := `SELECT id, dataset, key, provider, bucket, size, sha1, uploaded_at
	          FROM snapshots WHERE (? = '' OR dataset = ?)
	          ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, dataset, dataset, limit)
	if err != nil {
		return nil, errors.WrapIO("query", "snapshots", err)
	}
	defer rows.Close() //nolint:errcheck

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		var uploaded string
		if err := rows.Scan(&s.ID, &s.Dataset, &s.Key, &s.Provider, &s.Bucket, &s.Size, &s.SHA1, &uploaded); err != nil {
			return nil, errors.WrapIO("scan", "snapshots", err)
		}
		s.UploadedAt, _ = time.Parse(time.RFC3339, uploaded)
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapIO("query", "snapshots", err)
	}
	return snapshots, nil
}
