// Package persistence stores batch job state in SQLite so the queue
// survives process restarts.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"subforge/internal/batch"
)

const schema = `CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	source_path   TEXT NOT NULL,
	clip_start_ms INTEGER NOT NULL DEFAULT 0,
	clip_end_ms   INTEGER NOT NULL DEFAULT 0,
	backend       TEXT NOT NULL,
	status        TEXT NOT NULL,
	progress      REAL NOT NULL DEFAULT 0,
	output_path   TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`

// SQLiteStore implements batch.Store on a single-file database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*batch.SubtitleJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source_path, clip_start_ms, clip_end_ms, backend, status, progress, output_path, error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*batch.SubtitleJob, 0)
	for rows.Next() {
		var item batch.SubtitleJob
		var status string
		var clipStartMs, clipEndMs int64
		if err := rows.Scan(
			&item.ID,
			&item.SourcePath,
			&clipStartMs,
			&clipEndMs,
			&item.Backend,
			&status,
			&item.Progress,
			&item.OutputPath,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = batch.Status(status)
		item.ClipStart = time.Duration(clipStartMs) * time.Millisecond
		item.ClipEnd = time.Duration(clipEndMs) * time.Millisecond
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *batch.SubtitleJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source_path, clip_start_ms, clip_end_ms, backend, status, progress, output_path, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path=excluded.source_path,
			clip_start_ms=excluded.clip_start_ms,
			clip_end_ms=excluded.clip_end_ms,
			backend=excluded.backend,
			status=excluded.status,
			progress=excluded.progress,
			output_path=excluded.output_path,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		job.SourcePath,
		job.ClipStart.Milliseconds(),
		job.ClipEnd.Milliseconds(),
		job.Backend,
		string(job.Status),
		job.Progress,
		job.OutputPath,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}
