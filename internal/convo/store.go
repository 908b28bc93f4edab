// Package convo is the per-user conversation window: a small embedded
// SQLite database per phone number, truncated to the most recent turns on
// read and thrown away whole when a UTC day boundary is crossed.
package convo

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chatgw/internal/domain"
	"chatgw/internal/util"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

type Store struct {
	Root   string
	Window int

	// Now is swappable for tests; defaults to util.NowUTC.
	Now func() time.Time
}

func New(root string, window int) *Store {
	return &Store{Root: root, Window: window, Now: util.NowUTC}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return util.NowUTC()
}

func (s *Store) path(userKey string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(userKey, "+"), string(os.PathSeparator), "_")
	return filepath.Join(s.Root, name+".db")
}

// open purges a stale database and opens (creating if needed) the user's
// conversation file. SQLite is happiest with a single connection.
func (s *Store) open(userKey string) (*sql.DB, error) {
	path := s.path(userKey)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("conversation dir: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		if !util.SameUTCDay(info.ModTime(), s.now()) {
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("reset stale conversation: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open conversation db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation schema: %w", err)
	}
	return db, nil
}

// LoadContext appends the new user turn and returns up to Window most
// recent turns, oldest first, ready to prompt with.
func (s *Store) LoadContext(userKey, prompt string) ([]domain.Turn, error) {
	db, err := s.open(userKey)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := insertTurn(db, domain.RoleUser, prompt, s.now()); err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT role, content FROM turns ORDER BY id DESC LIMIT ?
	`, s.Window)
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}
	defer rows.Close()

	var recent []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		recent = append(recent, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest first; the prompt wants insertion order.
	turns := make([]domain.Turn, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		turns = append(turns, recent[i])
	}
	return turns, nil
}

// Record appends one turn without reading anything back.
func (s *Store) Record(userKey, role, content string) error {
	db, err := s.open(userKey)
	if err != nil {
		return err
	}
	defer db.Close()
	return insertTurn(db, role, content, s.now())
}

func insertTurn(db *sql.DB, role, content string, now time.Time) error {
	if _, err := db.Exec(`
		INSERT INTO turns (role, content, created_at) VALUES (?, ?, ?)
	`, role, content, now); err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}
