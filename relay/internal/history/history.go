// Package history records successful publishes in a local SQLite database.
//
// The record is advisory: the scheduler treats a failed insert as a logging
// problem, not a publishing problem, so history never blocks the pipeline.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mahfuzr/reposter/relay/internal/idgen"
)

// Schema is the publish-history schema.
const Schema = `
CREATE TABLE IF NOT EXISTS posts (
    entry_id      TEXT PRIMARY KEY,
    link_url      TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    post_id       TEXT NOT NULL,
    image_count   INTEGER NOT NULL DEFAULT 0,
    message_chars INTEGER NOT NULL DEFAULT 0,
    published_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_time ON posts(published_at DESC);
`

// Entry is one recorded publish.
type Entry struct {
	EntryID      string    `json:"entry_id"`
	LinkURL      string    `json:"link_url"`
	Title        string    `json:"title"`
	PostID       string    `json:"post_id"`
	ImageCount   int       `json:"image_count"`
	MessageChars int       `json:"message_chars"`
	PublishedAt  time.Time `json:"published_at"`
}

// Store wraps the history database.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Open opens (and if needed creates) the history database at path with WAL
// journaling and the schema applied. Parent directories are created.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{db: db, newID: idgen.Entry, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one publish. The entry ID is generated; PublishedAt is set
// to now when zero.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.EntryID == "" {
		e.EntryID = s.newID()
	}
	if e.PublishedAt.IsZero() {
		e.PublishedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (entry_id, link_url, title, post_id, image_count,
		message_chars, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.LinkURL, e.Title, e.PostID, e.ImageCount,
		e.MessageChars, e.PublishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, link_url, title, post_id, image_count,
		message_chars, published_at
		FROM posts ORDER BY published_at DESC, entry_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		var e Entry
		var publishedAt int64
		if err := rows.Scan(&e.EntryID, &e.LinkURL, &e.Title, &e.PostID,
			&e.ImageCount, &e.MessageChars, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		e.PublishedAt = time.UnixMilli(publishedAt)
		result = append(result, &e)
	}
	return result, rows.Err()
}
