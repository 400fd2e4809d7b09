// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// SQLiteRepository stores sessions in a SQLite database. The serialized
// session is the record; the indexed columns mirror it for queries.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates the session database at path and
// creates the schema if it does not exist.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("session database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	r := &SQLiteRepository{db: db}
	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return r, nil
}

// Close releases the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			paper_id TEXT NOT NULL,
			status TEXT NOT NULL,
			version INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_paper_id ON sessions(paper_id)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Get returns the session with the given id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*types.Session, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound(id)
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	return decodeSession([]byte(data))
}

// Create inserts s with Version 1.
func (r *SQLiteRepository) Create(ctx context.Context, s *types.Session) error {
	next := s.Clone()
	next.Version = 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, user_id, paper_id, status, version, started_at, completed_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		next.ID, next.UserID, next.PaperID, string(next.Status), next.Version,
		formatTime(next.StartedAt), formatTimePtr(next.CompletedAt), string(data),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errExists(s.ID)
	}
	s.Version = next.Version
	return nil
}

// Update writes s if the stored version equals expectedVersion.
func (r *SQLiteRepository) Update(ctx context.Context, s *types.Session, expectedVersion int64) error {
	next := s.Clone()
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, version = ?, completed_at = ?, data = ?
		 WHERE id = ? AND version = ?`,
		string(next.Status), next.Version, formatTimePtr(next.CompletedAt), string(data),
		next.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE id = ?`, s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking session: %w", err)
		}
		if exists == 0 {
			return errNotFound(s.ID)
		}
		return errConflict(s.ID, expectedVersion)
	}
	s.Version = next.Version
	return nil
}

// List returns the sessions keep accepts, oldest start first.
func (r *SQLiteRepository) List(ctx context.Context, keep func(*types.Session) bool) ([]*types.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM sessions ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		s, err := decodeSession([]byte(data))
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(s) {
			out = append(out, s)
		}
	}
	return out, rows.Err()
}

func decodeSession(data []byte) (*types.Session, error) {
	var s types.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &s, nil
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
