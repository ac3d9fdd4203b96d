// Package history persists the backup attempt journal in a local SQLite
// database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/veymont/hotbackup/internal/hotbackup"
)

// ErrAttemptNotFound is returned when an attempt does not exist.
var ErrAttemptNotFound = errors.New("backup attempt not found")

// defaultListLimit bounds ListAttempts when no limit is given.
const defaultListLimit = 50

// Store implements hotbackup.AttemptStore on SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New opens (or creates) the attempt journal under stateDir.
func New(stateDir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, "history.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger.With().Str("component", "history_store").Logger(),
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store.logger.Info().Str("path", dbPath).Msg("attempt journal initialized")
	return store, nil
}

// migrate creates the necessary tables.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			destination TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			success INTEGER,
			error_message TEXT,
			errno INTEGER NOT NULL DEFAULT 0,
			reason TEXT,
			bytes_done INTEGER NOT NULL DEFAULT 0,
			files_done INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_attempts_started_at ON attempts(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAttempt stores a new attempt journal entry.
func (s *Store) CreateAttempt(ctx context.Context, attempt *hotbackup.Attempt) error {
	query := `
		INSERT INTO attempts (id, destination, started_at, finished_at, success, error_message, errno, reason, bytes_done, files_done)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		attempt.ID.String(),
		attempt.Destination,
		attempt.StartedAt.Format(time.RFC3339Nano),
		nullTime(attempt.FinishedAt),
		nullBool(attempt.Success),
		nullString(attempt.ErrorMessage),
		attempt.Errno,
		nullString(attempt.Reason),
		attempt.BytesDone,
		attempt.FilesDone,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// UpdateAttempt updates an existing attempt journal entry.
func (s *Store) UpdateAttempt(ctx context.Context, attempt *hotbackup.Attempt) error {
	query := `
		UPDATE attempts
		SET finished_at = ?, success = ?, error_message = ?, errno = ?, reason = ?, bytes_done = ?, files_done = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		nullTime(attempt.FinishedAt),
		nullBool(attempt.Success),
		nullString(attempt.ErrorMessage),
		attempt.Errno,
		nullString(attempt.Reason),
		attempt.BytesDone,
		attempt.FilesDone,
		attempt.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

// GetAttempt retrieves an attempt by ID.
func (s *Store) GetAttempt(ctx context.Context, id uuid.UUID) (*hotbackup.Attempt, error) {
	query := `
		SELECT id, destination, started_at, finished_at, success, error_message, errno, reason, bytes_done, files_done
		FROM attempts
		WHERE id = ?
	`
	return scanAttempt(s.db.QueryRowContext(ctx, query, id.String()))
}

// ListAttempts returns the most recent attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]*hotbackup.Attempt, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, destination, started_at, finished_at, success, error_message, errno, reason, bytes_done, files_done
		FROM attempts
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*hotbackup.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*hotbackup.Attempt, error) {
	var (
		attempt    hotbackup.Attempt
		id         string
		startedAt  string
		finishedAt sql.NullString
		success    sql.NullBool
		errMsg     sql.NullString
		reason     sql.NullString
	)

	err := row.Scan(&id, &attempt.Destination, &startedAt, &finishedAt, &success,
		&errMsg, &attempt.Errno, &reason, &attempt.BytesDone, &attempt.FilesDone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	attempt.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse attempt id: %w", err)
	}
	attempt.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		attempt.FinishedAt = &t
	}
	if success.Valid {
		attempt.Success = &success.Bool
	}
	attempt.ErrorMessage = errMsg.String
	attempt.Reason = reason.String

	return &attempt, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
