package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists memory records in PostgreSQL. The seq column gives
// the same insertion-order iteration the in-memory store provides, so
// relevance tie-breaks behave identically across backends.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_records (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_records_seq ON memory_records (seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, description, content string) (Record, error) {
	now := time.Now().UTC()
	rec := Record{
		ID:          uuid.NewString(),
		Description: description,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_records (id, description, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Description, rec.Content, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("create record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, description, content, created_at, updated_at
		 FROM memory_records WHERE id=$1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var rec Record
	if err := rows.Scan(&rec.ID, &rec.Description, &rec.Content, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, description, content, created_at, updated_at
		 FROM memory_records ORDER BY seq`)
}

func (s *PostgresStore) Update(ctx context.Context, id string, fields UpdateFields) (*Record, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	description := existing.Description
	if fields.Description != nil {
		description = *fields.Description
	}
	content := existing.Content
	if fields.Content != nil {
		content = *fields.Content
	}
	updatedAt := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`UPDATE memory_records SET description=$2, content=$3, updated_at=$4 WHERE id=$1`,
		id, description, content, updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	existing.Description = description
	existing.Content = content
	existing.UpdatedAt = updatedAt
	return existing, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memory_records WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Search(ctx context.Context, query string) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, description, content, created_at, updated_at
		 FROM memory_records
		 WHERE description ILIKE '%' || $1 || '%' OR content ILIKE '%' || $1 || '%'
		 ORDER BY seq`,
		query)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Description, &rec.Content, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
