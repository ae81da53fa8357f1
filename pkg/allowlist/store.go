package allowlist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the allow-list in a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS allowlist (
	player TEXT PRIMARY KEY,
	linked TEXT NOT NULL DEFAULT ''
);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: migrate allowlist: %w", err)
	}
	return nil
}

// Load reads every row. Rows with malformed player ids are skipped.
func (s *SQLiteStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT player, linked FROM allowlist ORDER BY player`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query allowlist: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var player, linked string
		if err := rows.Scan(&player, &linked); err != nil {
			return nil, fmt.Errorf("sqlite: scan allowlist: %w", err)
		}
		id, err := uuid.Parse(player)
		if err != nil {
			continue
		}
		out = append(out, Entry{Player: id, Linked: linked})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate allowlist: %w", err)
	}
	return out, nil
}

// Save replaces the table contents in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM allowlist`); err != nil {
		return fmt.Errorf("sqlite: clear allowlist: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO allowlist (player, linked) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx, entry.Player.String(), entry.Linked); err != nil {
			return fmt.Errorf("sqlite: insert %s: %w", entry.Player, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is a volatile Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	saveErr error
}

// NewMemoryStore returns a store preloaded with entries.
func NewMemoryStore(entries ...Entry) *MemoryStore {
	return &MemoryStore{entries: append([]Entry(nil), entries...)}
}

func (m *MemoryStore) Load(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...), nil
}

func (m *MemoryStore) Save(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries = append([]Entry(nil), entries...)
	return nil
}

// FailSaves makes every following Save return err; nil restores normal saves.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Snapshot returns what was last saved.
func (m *MemoryStore) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
