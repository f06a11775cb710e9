// Package sqlite persists the download history: one row per completed
// batch run. History is informational only; the batch pipeline never
// depends on a write succeeding.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	_ "modernc.org/sqlite"
)

// History provides database operations for the download history.
type History struct {
	db *sql.DB
}

// NewHistory opens (or creates) the history database under dataDir.
func NewHistory(dataDir string) (*History, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer keeps SQLite happy under concurrent batches.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := configureDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	slog.Info("History database initialized", "path", dbPath)

	return &History{db: db}, nil
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS history (
			job_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			playlist_id TEXT NOT NULL,
			title TEXT,
			member_count INTEGER DEFAULT 0,
			failed_count INTEGER DEFAULT 0,
			size_bytes INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// Append records a completed batch run.
func (h *History) Append(ctx context.Context, rec *domain.HistoryRecord) error {
	query := `
		INSERT INTO history (job_id, kind, playlist_id, title, member_count, failed_count, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := h.db.ExecContext(ctx, query,
		rec.JobID,
		string(rec.Kind),
		rec.PlaylistID,
		rec.Title,
		rec.MemberCount,
		rec.FailedCount,
		rec.SizeBytes,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}

	return nil
}

// Recent returns the most recent records, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT job_id, kind, playlist_id, title, member_count, failed_count, size_bytes, created_at
		FROM history
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := h.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []*domain.HistoryRecord
	for rows.Next() {
		rec := &domain.HistoryRecord{}
		var kind string
		var title sql.NullString

		if err := rows.Scan(
			&rec.JobID,
			&kind,
			&rec.PlaylistID,
			&title,
			&rec.MemberCount,
			&rec.FailedCount,
			&rec.SizeBytes,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		rec.Kind = domain.JobKind(kind)
		rec.Title = title.String
		records = append(records, rec)
	}

	return records, rows.Err()
}

// DeleteOlderThan prunes records older than the given age.
func (h *History) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	threshold := time.Now().Add(-age)

	result, err := h.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}

	return result.RowsAffected()
}
