package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var ErrEmptyNote = errors.New("memory: note content is empty")

// Note is a dated record. Immutable once written; the store only ever
// appends new notes, never rewrites one.
type Note struct {
	ID        string
	Date      string
	Content   string
	Source    string
	CreatedAt time.Time
}

// Store persists dated notes (append-only) and the long-term summary
// (single mutable document, replaced wholesale, last writer wins). All
// writes funnel through one mutex and one SQLite connection so
// concurrent writers are strictly ordered by the store.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection avoids writer lock contention with SQLite
	// under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS daily_notes (
			id TEXT PRIMARY KEY,
			note_date TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS daily_notes_date_idx ON daily_notes(note_date, created_at_ms);`,
		`CREATE TABLE IF NOT EXISTS long_term (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			content TEXT NOT NULL DEFAULT '',
			updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init memory schema: %w", err)
		}
	}
	return nil
}

// AppendNote records a finding under the given day. The note is
// immutable from here on.
func (s *Store) AppendNote(ctx context.Context, day time.Time, content, source string) (Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, ErrEmptyNote
	}

	now := time.Now()
	note := Note{
		ID:        uuid.NewString(),
		Date:      day.Format(dateLayout),
		Content:   content,
		Source:    source,
		CreatedAt: now,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_notes (id, note_date, content, source, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
		note.ID, note.Date, note.Content, note.Source, now.UnixMilli())
	if err != nil {
		return Note{}, fmt.Errorf("append note: %w", err)
	}
	return note, nil
}

// NotesForDate returns a day's notes in insertion order.
func (s *Store) NotesForDate(ctx context.Context, day time.Time) ([]Note, error) {
	return s.queryNotes(ctx,
		`SELECT id, note_date, content, source, created_at_ms FROM daily_notes
		 WHERE note_date = ? ORDER BY created_at_ms, id`,
		day.Format(dateLayout))
}

// RecentNotes returns notes from the last n days, oldest first.
func (s *Store) RecentNotes(ctx context.Context, days int) ([]Note, error) {
	if days <= 0 {
		days = 1
	}
	cutoff := time.Now().AddDate(0, 0, -(days - 1)).Format(dateLayout)
	return s.queryNotes(ctx,
		`SELECT id, note_date, content, source, created_at_ms FROM daily_notes
		 WHERE note_date >= ? ORDER BY note_date, created_at_ms, id`,
		cutoff)
}

func (s *Store) queryNotes(ctx context.Context, query string, args ...interface{}) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var note Note
		var createdMS int64
		if err := rows.Scan(&note.ID, &note.Date, &note.Content, &note.Source, &createdMS); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		note.CreatedAt = time.UnixMilli(createdMS)
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// LongTerm returns the current long-term summary, empty if never set.
func (s *Store) LongTerm(ctx context.Context) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM long_term WHERE id = 1`).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read long-term summary: %w", err)
	}
	return content, nil
}

// ReplaceLongTerm swaps the long-term summary wholesale. Last writer
// wins; there is no merge.
func (s *Store) ReplaceLongTerm(ctx context.Context, content string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO long_term (id, content, updated_at_ms) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at_ms = excluded.updated_at_ms`,
		content, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("replace long-term summary: %w", err)
	}
	return nil
}

// ContextSnapshot renders the long-term summary plus the last few days
// of notes as routing/execution context.
func (s *Store) ContextSnapshot(ctx context.Context, days int) (string, error) {
	var b strings.Builder

	longTerm, err := s.LongTerm(ctx)
	if err != nil {
		return "", err
	}
	if longTerm != "" {
		b.WriteString("## Long-term\n")
		b.WriteString(longTerm)
		b.WriteString("\n")
	}

	notes, err := s.RecentNotes(ctx, days)
	if err != nil {
		return "", err
	}
	currentDate := ""
	for _, note := range notes {
		if note.Date != currentDate {
			currentDate = note.Date
			fmt.Fprintf(&b, "## %s\n", currentDate)
		}
		fmt.Fprintf(&b, "- %s\n", note.Content)
	}
	return strings.TrimSpace(b.String()), nil
}
