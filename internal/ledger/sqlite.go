package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteLedger opens or creates a ledger database.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryLedger, "create ledger directory").
				WithContext("path", dbPath).
				Build()
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryLedger, "open sqlite database").
			WithContext("path", dbPath).
			Build()
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, ferrors.WrapError(err, ferrors.CategoryLedger, "initialize ledger schema").Build()
	}
	return l, nil
}

func (l *SQLiteLedger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL,
		pages INTEGER NOT NULL DEFAULT 0,
		snippets INTEGER NOT NULL DEFAULT 0,
		compiled INTEGER NOT NULL DEFAULT 0,
		reused INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		removed INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL REFERENCES builds(id),
		fingerprint TEXT NOT NULL,
		path TEXT NOT NULL,
		outcome TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_build ON artifacts(build_id);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// BeginBuild inserts a running build.
func (l *SQLiteLedger) BeginBuild(ctx context.Context, buildID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		"INSERT INTO builds (id, started_at, status) VALUES (?, ?, ?)",
		buildID, time.Now().UnixNano(), string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// RecordArtifact adds an artifact reference to a build.
func (l *SQLiteLedger) RecordArtifact(ctx context.Context, buildID, fingerprint, path, outcome string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		"INSERT INTO artifacts (build_id, fingerprint, path, outcome, recorded_at) VALUES (?, ?, ?, ?, ?)",
		buildID, fingerprint, path, outcome, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// FinishBuild stores the final summary of a build.
func (l *SQLiteLedger) FinishBuild(ctx context.Context, buildID string, s Summary) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`UPDATE builds SET finished_at = ?, status = ?, pages = ?, snippets = ?, compiled = ?,
			reused = ?, failed = ?, removed = ?, error = ? WHERE id = ?`,
		time.Now().UnixNano(), string(s.Status), s.Pages, s.Snippets, s.Compiled,
		s.Reused, s.Failed, s.Removed, s.Error, buildID,
	)
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ferrors.NewError(ferrors.CategoryNotFound, "build not found in ledger").
			WithContext("build_id", buildID).
			Build()
	}
	return nil
}

// LastSuccessfulArtifacts returns the artifacts of the newest succeeded build,
// one record per fingerprint. Failed compiles are excluded.
func (l *SQLiteLedger) LastSuccessfulArtifacts(ctx context.Context) ([]ArtifactRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var buildID string
	err := l.db.QueryRowContext(ctx,
		"SELECT id FROM builds WHERE status = ? ORDER BY started_at DESC, rowid DESC LIMIT 1",
		string(StatusSucceeded),
	).Scan(&buildID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last build: %w", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT build_id, fingerprint, path, outcome, MIN(recorded_at) FROM artifacts
			WHERE build_id = ? AND outcome != 'failed'
			GROUP BY fingerprint ORDER BY MIN(id)`,
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	out := []ArtifactRecord{}
	for rows.Next() {
		var r ArtifactRecord
		var recorded int64
		if err := rows.Scan(&r.BuildID, &r.Fingerprint, &r.Path, &r.Outcome, &recorded); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		r.RecordedAt = time.Unix(0, recorded)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ListBuilds returns the newest builds first. A non-positive limit lists all.
func (l *SQLiteLedger) ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, pages, snippets, compiled, reused, failed, removed, error
			FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var (
			r        BuildRecord
			started  int64
			finished sql.NullInt64
			status   string
			errText  sql.NullString
		)
		err := rows.Scan(&r.ID, &started, &finished, &status, &r.Pages, &r.Snippets,
			&r.Compiled, &r.Reused, &r.Failed, &r.Removed, &errText)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}
		r.Status = Status(status)
		r.Error = errText.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
