package internal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_videos (
	video_id     TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	note_path    TEXT NOT NULL DEFAULT '',
	attempts     INTEGER NOT NULL DEFAULT 0,
	processed_at TEXT NOT NULL
);`

// SQLiteStore keeps one row per video. Every mutation is its own statement,
// so Flush has nothing left to do.
type SQLiteStore struct {
	*MemoryStore
	path       string
	db         *sql.DB
	logger     *slog.Logger
	quarantine bool
}

func NewSQLiteStore(path string, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{MemoryStore: NewMemoryStore(), path: path, logger: logger}
}

// QuarantineCorrupt makes Load move an unreadable database aside. Only a
// holder of the run lock may enable it.
func (s *SQLiteStore) QuarantineCorrupt() { s.quarantine = true }

func (s *SQLiteStore) Load(ctx context.Context) error {
	s.records = make(map[string]ProcessedRecord)

	db, err := s.open(ctx)
	if err != nil && !s.quarantine {
		// Reads see an empty state; writes fail until a locked run repairs it.
		s.logger.Warn("state database unreadable, starting empty",
			slog.String("path", s.path), slog.Any("error", err))
		return nil
	}
	if err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			return fmt.Errorf("opening state database: %w", err)
		}
		s.logger.Warn("state database unreadable, moved aside and starting empty",
			slog.String("path", s.path), slog.String("backup", backup), slog.Any("error", err))
		if db, err = s.open(ctx); err != nil {
			return fmt.Errorf("opening state database: %w", err)
		}
		s.db = db
		return nil
	}
	s.db = db

	rows, err := db.QueryContext(ctx,
		`SELECT video_id, title, outcome, reason, note_path, attempts, processed_at FROM processed_videos`)
	if err != nil {
		return fmt.Errorf("reading state database: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec ProcessedRecord
		var outcome, processedAt string
		if err := rows.Scan(&rec.VideoID, &rec.Title, &outcome, &rec.Reason, &rec.NotePath, &rec.Attempts, &processedAt); err != nil {
			return fmt.Errorf("scanning state row: %w", err)
		}
		rec.Outcome = Outcome(outcome)
		if ts, err := time.Parse(time.RFC3339Nano, processedAt); err == nil {
			rec.ProcessedAt = ts
		}
		s.records[rec.VideoID] = rec
	}
	return rows.Err()
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return db, nil
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, rec ProcessedRecord) error {
	if s.db == nil {
		return fmt.Errorf("state database not loaded")
	}
	if err := s.MemoryStore.MarkProcessed(ctx, rec); err != nil {
		return err
	}
	rec = s.records[rec.VideoID]
	_, err := s.db.ExecContext(ctx, `
INSERT INTO processed_videos (video_id, title, outcome, reason, note_path, attempts, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(video_id) DO UPDATE SET
	title = excluded.title,
	outcome = excluded.outcome,
	reason = excluded.reason,
	note_path = excluded.note_path,
	attempts = excluded.attempts,
	processed_at = excluded.processed_at`,
		rec.VideoID, rec.Title, string(rec.Outcome), rec.Reason, rec.NotePath, rec.Attempts,
		rec.ProcessedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving state row %s: %w", rec.VideoID, err)
	}
	return nil
}

func (s *SQLiteStore) Purge(ctx context.Context, videoIDs ...string) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("state database not loaded")
	}
	n := 0
	for _, id := range videoIDs {
		res, err := s.db.ExecContext(ctx, `DELETE FROM processed_videos WHERE video_id = ?`, id)
		if err != nil {
			return n, fmt.Errorf("purging %s: %w", id, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			n++
		}
		delete(s.records, id)
	}
	return n, nil
}

func (s *SQLiteStore) Flush(context.Context) error { return nil }

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
