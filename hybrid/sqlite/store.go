// Package sqlite is a file-backed hybrid.Store. Embeddings are stored as JSON
// and similarity is computed in Go, so it suits small local collections.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kitbuilder587/tavily-go/hybrid"
)

var (
	ErrMissingPath    = errors.New("missing db path")
	ErrSchemaMismatch = errors.New("documents table is missing required columns")
)

type Store struct {
	db *sql.DB
}

var _ hybrid.Store = (*Store)(nil)

// Open creates the file and schema if needed. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, ErrMissingPath
	}
	if p != ":memory:" {
		p = filepath.Clean(p)
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// один коннект: иначе :memory: у каждого свой
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS documents (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            content TEXT NOT NULL,
            url TEXT NOT NULL DEFAULT '',
            title TEXT NOT NULL DEFAULT '',
            embedding TEXT NOT NULL,
            created_at_unix_ms INTEGER NOT NULL
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Validate(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('documents')`)
	if err != nil {
		return fmt.Errorf("inspect table: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		seen[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, col := range []string{"content", "embedding"} {
		if !seen[col] {
			return fmt.Errorf("%w: %s", ErrSchemaMismatch, col)
		}
	}
	return nil
}

// Search scans every row. Rows with an unreadable embedding are skipped.
func (s *Store) Search(ctx context.Context, embedding []float64, limit int) ([]hybrid.Document, error) {
	if limit <= 0 {
		return []hybrid.Document{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT content, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	defer rows.Close()

	docs := []hybrid.Document{}
	for rows.Next() {
		var content, raw string
		if err := rows.Scan(&content, &raw); err != nil {
			return nil, err
		}
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) != len(embedding) {
			continue
		}
		docs = append(docs, hybrid.Document{
			Content: content,
			Score:   hybrid.Cosine(embedding, vec),
			Origin:  hybrid.OriginLocal,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Score > docs[j].Score
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Insert writes all documents in one transaction.
func (s *Store) Insert(ctx context.Context, docs []hybrid.StoredDocument) (retErr error) {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO documents (content, url, title, embedding, created_at_unix_ms)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i, d := range docs {
		vec, err := json.Marshal(d.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, d.Content, d.URL, d.Title, string(vec), now); err != nil {
			return fmt.Errorf("insert document %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
