package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zestify/healthmem/pkg/template"
)

// SQLiteRawStore implements RawStore over SQLite, one row per
// (user_id, category). Each Save replaces the row in a single statement, so
// readers never observe a unit mixing two updates.
type SQLiteRawStore struct {
	db *sql.DB
}

// NewSQLiteRawStore opens (or creates) the database at dbPath. ":memory:"
// yields an in-process database, used throughout the tests.
func NewSQLiteRawStore(dbPath string) (*SQLiteRawStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(sqlDriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteRawStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteRawStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		body BLOB NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, category)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// DB returns the underlying database connection for advanced operations.
func (s *SQLiteRawStore) DB() *sql.DB {
	return s.db
}

// Load returns the stored body for a key, with ok=false if absent.
func (s *SQLiteRawStore) Load(ctx context.Context, userID string, category template.Category) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE user_id = ? AND category = ?",
		userID, string(category)).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load document: %w", err)
	}
	return body, true, nil
}

// Save replaces the stored body for a key.
func (s *SQLiteRawStore) Save(ctx context.Context, userID string, category template.Category, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (user_id, category, body, saved_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id, category)
		 DO UPDATE SET body = excluded.body, saved_at = CURRENT_TIMESTAMP`,
		userID, string(category), data)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Categories lists the categories stored for a user, sorted.
func (s *SQLiteRawStore) Categories(ctx context.Context, userID string) ([]template.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT category FROM documents WHERE user_id = ? ORDER BY category", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []template.Category
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, template.Category(c))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// DocumentCount returns the total number of stored documents, used by the
// metrics collector's storage gauge.
func (s *SQLiteRawStore) DocumentCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Close releases database resources.
func (s *SQLiteRawStore) Close() error {
	return s.db.Close()
}
