// Package pgvector provides a VectorStore backed by PostgreSQL's pgvector
// extension, storing documents as rows with a vector column and searching
// via pgvector's distance operators.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/rag/vectorstore"
	"github.com/veridex/veridex/schema"
)

const (
	defaultTable     = "documents"
	defaultDimension = 1536
)

func init() {
	vectorstore.Register("pgvector", func(cfg config.ProviderConfig) (vectorstore.VectorStore, error) {
		return NewFromConfig(cfg)
	})
}

// Pool is the subset of *pgxpool.Pool the Store depends on. It is satisfied
// by *pgxpool.Pool and by a test double.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store is a pgvector-backed VectorStore.
type Store struct {
	pool      Pool
	table     string
	dimension int
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets the table name documents are stored in.
func WithTable(table string) Option {
	return func(s *Store) { s.table = table }
}

// WithDimension sets the embedding vector dimension.
func WithDimension(dimension int) Option {
	return func(s *Store) { s.dimension = dimension }
}

// New creates a Store over the given pool.
func New(pool Pool, opts ...Option) *Store {
	s := &Store{
		pool:      pool,
		table:     defaultTable,
		dimension: defaultDimension,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig constructs a Store connected to the Postgres instance named
// by cfg.BaseURL. cfg.Options may set "table" and "dimension".
func NewFromConfig(cfg config.ProviderConfig) (*Store, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vectorstore/pgvector: base_url is required")
	}

	pool, err := pgxpool.New(context.Background(), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/pgvector: connect: %w", err)
	}

	opts := []Option{}
	if v, ok := config.GetOption[string](cfg, "table"); ok && v != "" {
		opts = append(opts, WithTable(v))
	}
	if v, ok := config.GetOption[float64](cfg, "dimension"); ok && v > 0 {
		opts = append(opts, WithDimension(int(v)))
	}
	return New(pool, opts...), nil
}

// EnsureTable creates the pgvector extension and the documents table if
// they do not already exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("vectorstore/pgvector: create extension: %w", err)
	}

	createTable := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, content TEXT, metadata JSONB, embedding VECTOR(%d))",
		s.table, s.dimension,
	)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("vectorstore/pgvector: create table: %w", err)
	}
	return nil
}

// Add upserts docs and their embeddings.
func (s *Store) Add(ctx context.Context, docs []schema.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("vectorstore/pgvector: docs length (%d) does not match embeddings length (%d)", len(docs), len(embeddings))
	}

	sql := fmt.Sprintf(
		`INSERT INTO %s (id, embedding, content, metadata) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET embedding = $2, content = $3, metadata = $4`,
		s.table,
	)

	for i, doc := range docs {
		metaJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("vectorstore/pgvector: marshal metadata: %w", err)
		}

		if _, err := s.pool.Exec(ctx, sql, doc.ID, vectorLiteral(embeddings[i]), doc.Content, metaJSON); err != nil {
			return fmt.Errorf("vectorstore/pgvector: insert: %w", err)
		}
	}
	return nil
}

// Search returns the k nearest documents to query.
func (s *Store) Search(ctx context.Context, query []float32, k int, opts ...vectorstore.SearchOption) ([]schema.Document, error) {
	cfg := vectorstore.ResolveSearchConfig(opts...)

	sqlStr, args := buildSearchQuery(s.table, distanceOperator(cfg.Strategy), cfg.Filter, query, k)

	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/pgvector: query: %w", err)
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var (
			id, content string
			metaBytes   []byte
			score       float64
		)
		if err := rows.Scan(&id, &content, &metaBytes, &score); err != nil {
			return nil, fmt.Errorf("vectorstore/pgvector: scan: %w", err)
		}

		doc := schema.Document{ID: id, Content: content, Score: score}
		if len(metaBytes) > 0 {
			var meta map[string]any
			if err := json.Unmarshal(metaBytes, &meta); err != nil {
				return nil, fmt.Errorf("vectorstore/pgvector: unmarshal metadata: %w", err)
			}
			doc.Metadata = meta
		}

		if score < cfg.Threshold {
			continue
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore/pgvector: rows: %w", err)
	}
	return docs, nil
}

// Delete removes documents by ID.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", s.table, strings.Join(placeholders, ", "))
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("vectorstore/pgvector: delete: %w", err)
	}
	return nil
}

// Get returns every document whose metadata matches filter exactly, with
// no distance ordering and no vector argument. Unlike Search, it also
// decodes the stored embedding back into Document.Embedding (cast to text
// since no pgvector Go codec is registered on this pool), so a caller
// cloning matched documents elsewhere (ingest/dedup's session clone) can
// re-Add them without recomputing embeddings.
func (s *Store) Get(ctx context.Context, filter map[string]any) ([]schema.Document, error) {
	sqlStr, args := buildGetQuery(s.table, filter)

	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/pgvector: query: %w", err)
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var (
			id, content, embeddingText string
			metaBytes                  []byte
		)
		if err := rows.Scan(&id, &content, &metaBytes, &embeddingText); err != nil {
			return nil, fmt.Errorf("vectorstore/pgvector: scan: %w", err)
		}

		doc := schema.Document{ID: id, Content: content}
		if len(metaBytes) > 0 {
			var meta map[string]any
			if err := json.Unmarshal(metaBytes, &meta); err != nil {
				return nil, fmt.Errorf("vectorstore/pgvector: unmarshal metadata: %w", err)
			}
			doc.Metadata = meta
		}
		vec, err := parseVectorLiteral(embeddingText)
		if err != nil {
			return nil, fmt.Errorf("vectorstore/pgvector: parse embedding: %w", err)
		}
		doc.Embedding = vec
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore/pgvector: rows: %w", err)
	}
	return docs, nil
}

func buildGetQuery(table string, filter map[string]any) (string, []any) {
	sqlStr := fmt.Sprintf("SELECT id, content, metadata, embedding::text FROM %s", table)

	var conds []string
	var args []any
	for key, val := range filter {
		args = append(args, key, val)
		conds = append(conds, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
	}
	if len(conds) > 0 {
		sqlStr += " WHERE " + strings.Join(conds, " AND ")
	}
	return sqlStr, args
}

func buildSearchQuery(table, op string, filter map[string]any, query []float32, k int) (string, []any) {
	vec := vectorLiteral(query)
	args := []any{vec, k}

	sqlStr := fmt.Sprintf(
		"SELECT id, content, metadata, 1 - (embedding %s $1) AS score FROM %s",
		op, table,
	)

	var conds []string
	for key, val := range filter {
		args = append(args, key, val)
		conds = append(conds, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
	}
	if len(conds) > 0 {
		sqlStr += " WHERE " + strings.Join(conds, " AND ")
	}

	sqlStr += fmt.Sprintf(" ORDER BY embedding %s $1 LIMIT $2", op)
	return sqlStr, args
}

// distanceOperator maps a SearchStrategy to its pgvector distance operator.
func distanceOperator(strategy vectorstore.SearchStrategy) string {
	switch strategy {
	case vectorstore.DotProduct:
		return "<#>"
	case vectorstore.Euclidean:
		return "<->"
	default:
		return "<=>"
	}
}

func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVectorLiteral reverses vectorLiteral, parsing pgvector's text
// representation ("[v1,v2,...]") back into a float32 slice.
func parseVectorLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}
