package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kitbuilder587/tavily-go/hybrid"
)

const DefaultTable = "documents"

var (
	ErrTableNotFound   = errors.New("documents table does not exist")
	ErrColumnNotFound  = errors.New("required column does not exist")
	ErrWrongColumnType = errors.New("column has wrong type")
)

// required columns and their information_schema data types
var requiredColumns = map[string]string{
	"content":   "text",
	"embedding": "ARRAY",
}

type Store struct {
	db    *DB
	table string
}

var _ hybrid.Store = (*Store)(nil)

type StoreOption func(*Store)

func WithTable(name string) StoreOption {
	return func(s *Store) { s.table = name }
}

func NewStore(db *DB, opts ...StoreOption) *Store {
	s := &Store{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// Migrate creates the documents table if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id BIGSERIAL PRIMARY KEY,
            content TEXT NOT NULL,
            url TEXT NOT NULL DEFAULT '',
            title TEXT NOT NULL DEFAULT '',
            embedding DOUBLE PRECISION[] NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )
    `, s.ident())

	if _, err := s.db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Validate checks that the table exists with a text content column and an
// array embedding column.
func (s *Store) Validate(ctx context.Context) error {
	query := `
        SELECT column_name, data_type
        FROM information_schema.columns
        WHERE table_schema = current_schema() AND table_name = $1
    `

	rows, err := s.db.Pool.Query(ctx, query, s.table)
	if err != nil {
		return fmt.Errorf("inspect table: %w", err)
	}
	defer rows.Close()

	columns := map[string]string{}
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		columns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate columns: %w", err)
	}

	if len(columns) == 0 {
		return fmt.Errorf("%w: %q", ErrTableNotFound, s.table)
	}
	for name, want := range requiredColumns {
		got, ok := columns[name]
		if !ok {
			return fmt.Errorf("%w: %q in %q", ErrColumnNotFound, name, s.table)
		}
		if got != want {
			return fmt.Errorf("%w: %q is %s, want %s", ErrWrongColumnType, name, got, want)
		}
	}
	return nil
}

// Search ranks rows by cosine similarity to embedding. Rows whose embedding
// has a different length or zero norm are skipped.
func (s *Store) Search(ctx context.Context, embedding []float64, limit int) ([]hybrid.Document, error) {
	if limit <= 0 {
		return []hybrid.Document{}, nil
	}

	query := fmt.Sprintf(`
        SELECT content, score FROM (
            SELECT content,
                (SELECT SUM(a * b) / NULLIF(SQRT(SUM(a * a)) * SQRT(SUM(b * b)), 0)
                 FROM unnest(embedding, $1::float8[]) AS t(a, b)) AS score
            FROM %s
            WHERE cardinality(embedding) = cardinality($1::float8[])
        ) ranked
        WHERE score IS NOT NULL
        ORDER BY score DESC
        LIMIT $2
    `, s.ident())

	rows, err := s.db.Pool.Query(ctx, query, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	docs := []hybrid.Document{}
	for rows.Next() {
		var d hybrid.Document
		if err := rows.Scan(&d.Content, &d.Score); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Origin = hybrid.OriginLocal
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return docs, nil
}

// Insert copies all documents in a single COPY, so either all land or none.
func (s *Store) Insert(ctx context.Context, docs []hybrid.StoredDocument) error {
	if len(docs) == 0 {
		return nil
	}

	rows := make([][]any, len(docs))
	for i, d := range docs {
		rows[i] = []any{d.Content, d.URL, d.Title, d.Embedding}
	}

	n, err := s.db.Pool.CopyFrom(ctx,
		pgx.Identifier{s.table},
		[]string{"content", "url", "title", "embedding"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	if int(n) != len(docs) {
		return fmt.Errorf("insert documents: copied %d of %d", n, len(docs))
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.ident())).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
