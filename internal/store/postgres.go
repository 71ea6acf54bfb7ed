package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var (
	pronunciationColumns = []string{"id", "word", "pronunciation", "is_active", "created_at", "updated_at"}
	knowledgeColumns     = []string{"id", "title", "content", "category", "is_active", "created_at", "updated_at"}
)

func returning(cols []string) string { return "RETURNING " + strings.Join(cols, ", ") }

// PostgresStore persists assistant data in PostgreSQL.
type PostgresStore struct {
	pool pgxPool
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

	return newPostgresStore(pool), nil
}

func newPostgresStore(pool pgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pronunciations (
		id BIGSERIAL PRIMARY KEY,
		word TEXT NOT NULL,
		pronunciation TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_pronunciations_active ON pronunciations (is_active, created_at);`,
	`CREATE TABLE IF NOT EXISTS knowledge_base (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'General Information',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGSERIAL PRIMARY KEY,
		key_name TEXT NOT NULL,
		key_value TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_name ON api_keys (key_name, is_active);`,
}

func initSchema(ctx context.Context, db execer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func exec(ctx context.Context, db execer, q squirrel.Sqlizer) (pgconn.CommandTag, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("build statement: %w", err)
	}
	return db.Exec(ctx, sql, args...)
}

func (s *PostgresStore) query(ctx context.Context, q squirrel.Sqlizer) (pgx.Rows, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *PostgresStore) queryRow(ctx context.Context, q squirrel.Sqlizer, dest ...any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return s.pool.QueryRow(ctx, sql, args...).Scan(dest...)
}

func pronunciationDest(p *Pronunciation) []any {
	return []any{&p.ID, &p.Word, &p.Pronunciation, &p.IsActive, &p.CreatedAt, &p.UpdatedAt}
}

func knowledgeDest(e *KnowledgeEntry) []any {
	return []any{&e.ID, &e.Title, &e.Content, &e.Category, &e.IsActive, &e.CreatedAt, &e.UpdatedAt}
}

func (s *PostgresStore) ListPronunciations(ctx context.Context) ([]Pronunciation, error) {
	rows, err := s.query(ctx, psql.Select(pronunciationColumns...).
		From("pronunciations").
		Where("is_active").
		OrderBy("created_at ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query pronunciations: %w", err)
	}
	defer rows.Close()

	items := make([]Pronunciation, 0, 16)
	for rows.Next() {
		var p Pronunciation
		if err := rows.Scan(pronunciationDest(&p)...); err != nil {
			return nil, fmt.Errorf("scan pronunciation row: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pronunciation rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SavePronunciation(ctx context.Context, word, pronunciation string) (Pronunciation, error) {
	var p Pronunciation
	err := s.queryRow(ctx, psql.Update("pronunciations").
		Set("pronunciation", pronunciation).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"word": word}).
		Where("is_active").
		Suffix(returning(pronunciationColumns)), pronunciationDest(&p)...)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Pronunciation{}, fmt.Errorf("update pronunciation: %w", err)
	}

	err = s.queryRow(ctx, psql.Insert("pronunciations").
		Columns("word", "pronunciation").
		Values(word, pronunciation).
		Suffix(returning(pronunciationColumns)), pronunciationDest(&p)...)
	if err != nil {
		return Pronunciation{}, fmt.Errorf("insert pronunciation: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) DeactivatePronunciation(ctx context.Context, word string) error {
	_, err := exec(ctx, s.pool, psql.Update("pronunciations").
		Set("is_active", false).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"word": word}))
	if err != nil {
		return fmt.Errorf("deactivate pronunciation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListKnowledge(ctx context.Context) ([]KnowledgeEntry, error) {
	rows, err := s.query(ctx, psql.Select(knowledgeColumns...).
		From("knowledge_base").
		Where("is_active").
		OrderBy("created_at DESC", "id DESC"))
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}
	defer rows.Close()

	items := make([]KnowledgeEntry, 0, 16)
	for rows.Next() {
		var e KnowledgeEntry
		if err := rows.Scan(knowledgeDest(&e)...); err != nil {
			return nil, fmt.Errorf("scan knowledge row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AddKnowledge(ctx context.Context, in KnowledgeInput) (KnowledgeEntry, error) {
	var e KnowledgeEntry
	err := s.queryRow(ctx, psql.Insert("knowledge_base").
		Columns("title", "content", "category").
		Values(in.Title, in.Content, in.Category).
		Suffix(returning(knowledgeColumns)), knowledgeDest(&e)...)
	if err != nil {
		return KnowledgeEntry{}, fmt.Errorf("insert knowledge: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) UpdateKnowledge(ctx context.Context, id int64, in KnowledgeInput) (KnowledgeEntry, error) {
	var e KnowledgeEntry
	err := s.queryRow(ctx, psql.Update("knowledge_base").
		Set("title", in.Title).
		Set("content", in.Content).
		Set("category", in.Category).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where("is_active").
		Suffix(returning(knowledgeColumns)), knowledgeDest(&e)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return KnowledgeEntry{}, ErrNotFound
	}
	if err != nil {
		return KnowledgeEntry{}, fmt.Errorf("update knowledge: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) DeactivateKnowledge(ctx context.Context, id int64) error {
	tag, err := exec(ctx, s.pool, psql.Update("knowledge_base").
		Set("is_active", false).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where("is_active"))
	if err != nil {
		return fmt.Errorf("deactivate knowledge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActiveAPIKey(ctx context.Context, name string) (string, error) {
	var value string
	err := s.queryRow(ctx, psql.Select("key_value").
		From("api_keys").
		Where(squirrel.Eq{"key_name": name}).
		Where("is_active").
		OrderBy("created_at DESC", "id DESC").
		Limit(1), &value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query api key: %w", err)
	}
	return value, nil
}

// SetAPIKey swaps the active key for name in one transaction.
func (s *PostgresStore) SetAPIKey(ctx context.Context, name, value string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin api key tx: %w", err)
	}
	rollback := func(err error) error {
		_ = tx.Rollback(ctx)
		return err
	}

	if _, err := exec(ctx, tx, psql.Update("api_keys").
		Set("is_active", false).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"key_name": name}).
		Where("is_active")); err != nil {
		return rollback(fmt.Errorf("deactivate api keys: %w", err))
	}
	if _, err := exec(ctx, tx, psql.Insert("api_keys").
		Columns("key_name", "key_value").
		Values(name, value)); err != nil {
		return rollback(fmt.Errorf("insert api key: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
