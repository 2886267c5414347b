// Package redis provides a VectorStore backed by Redis Stack's RediSearch
// module, storing documents as HASHes and issuing FT.SEARCH KNN queries
// against a vector field.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/rag/vectorstore"
	"github.com/veridex/veridex/schema"
)

const (
	defaultIndex     = "idx:documents"
	defaultPrefix    = "doc:"
	defaultDimension = 1536
)

func init() {
	vectorstore.Register("redis", func(cfg config.ProviderConfig) (vectorstore.VectorStore, error) {
		return NewFromConfig(cfg)
	})
}

// RedisClient is the subset of *redis.Client the Store depends on. It is
// satisfied by *goredis.Client and by a test double.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) *goredis.IntCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Do(ctx context.Context, args ...any) *goredis.Cmd
	Close() error
}

// Store is a RediSearch-backed VectorStore.
type Store struct {
	client    RedisClient
	index     string
	prefix    string
	dimension int
}

// Option configures a Store.
type Option func(*Store)

// WithIndex sets the RediSearch index name.
func WithIndex(index string) Option {
	return func(s *Store) { s.index = index }
}

// WithPrefix sets the key prefix used for document hashes.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithDimension sets the embedding vector dimension.
func WithDimension(dimension int) Option {
	return func(s *Store) { s.dimension = dimension }
}

// WithClient injects a RedisClient, overriding the client New would
// otherwise construct from addr. Used by tests to plug in a fake server.
func WithClient(client RedisClient) Option {
	return func(s *Store) { s.client = client }
}

// New creates a Store connected to the Redis instance at addr, unless
// WithClient supplies one.
func New(addr string, opts ...Option) *Store {
	s := &Store{
		index:     defaultIndex,
		prefix:    defaultPrefix,
		dimension: defaultDimension,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{Addr: addr})
	}
	return s
}

// NewFromConfig constructs a Store from a provider configuration.
// cfg.BaseURL is the Redis address; cfg.Options may set "index", "prefix",
// and "dimension".
func NewFromConfig(cfg config.ProviderConfig) (*Store, error) {
	opts := []Option{}
	if v, ok := config.GetOption[string](cfg, "index"); ok && v != "" {
		opts = append(opts, WithIndex(v))
	}
	if v, ok := config.GetOption[string](cfg, "prefix"); ok && v != "" {
		opts = append(opts, WithPrefix(v))
	}
	if v, ok := config.GetOption[float64](cfg, "dimension"); ok && v > 0 {
		opts = append(opts, WithDimension(int(v)))
	}
	return New(cfg.BaseURL, opts...), nil
}

// EnsureIndex creates the RediSearch index if it does not already exist.
func (s *Store) EnsureIndex(ctx context.Context) error {
	cmd := s.client.Do(ctx, "FT.CREATE", s.index,
		"ON", "HASH",
		"PREFIX", "1", s.prefix,
		"SCHEMA",
		"content", "TEXT",
		"embedding", "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", s.dimension,
		"DISTANCE_METRIC", "COSINE",
	)
	if err := cmd.Err(); err != nil {
		if strings.Contains(err.Error(), "Index already exists") {
			return nil
		}
		return fmt.Errorf("vectorstore/redis: ensure index: %w", err)
	}
	return nil
}

// Add upserts docs and their embeddings as Redis HASHes.
func (s *Store) Add(ctx context.Context, docs []schema.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("vectorstore/redis: docs length (%d) does not match embeddings length (%d)", len(docs), len(embeddings))
	}

	for i, doc := range docs {
		values := []any{"content", doc.Content}
		for k, v := range doc.Metadata {
			values = append(values, k, fmt.Sprintf("%v", v))
		}
		values = append(values, "embedding", float32ToBytes(embeddings[i]))

		cmd := s.client.HSet(ctx, s.prefix+doc.ID, values...)
		if err := cmd.Err(); err != nil {
			return fmt.Errorf("redis: hset: %w", err)
		}
	}
	return nil
}

// Search issues an FT.SEARCH KNN query for the k nearest documents to query.
func (s *Store) Search(ctx context.Context, query []float32, k int, opts ...vectorstore.SearchOption) ([]schema.Document, error) {
	cfg := vectorstore.ResolveSearchConfig(opts...)

	queryStr := buildQuery(cfg.Filter, k)
	cmd := s.client.Do(ctx, "FT.SEARCH", s.index, queryStr,
		"PARAMS", "2", "BLOB", float32ToBytes(query),
		"SORTBY", "score",
		"LIMIT", "0", k,
		"DIALECT", "2",
	)
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("redis: search: %w", err)
	}
	return parseFTSearchResult(cmd, s.prefix, cfg.Threshold)
}

// Delete removes documents by ID.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + id
	}
	cmd := s.client.Del(ctx, keys...)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("vectorstore/redis: delete: %w", err)
	}
	return nil
}

func buildQuery(filter map[string]any, k int) string {
	return fmt.Sprintf("%s=>[KNN %d @embedding $BLOB AS score]", buildFilterExpr(filter), k)
}

// buildFilterExpr renders filter as a RediSearch tag-field expression,
// shared by the KNN query (buildQuery) and the plain filter fetch (Get).
func buildFilterExpr(filter map[string]any) string {
	var exprs []string
	for key, val := range filter {
		exprs = append(exprs, fmt.Sprintf("@%s:{%v}", key, val))
	}
	if len(exprs) == 0 {
		return "*"
	}
	return "(" + strings.Join(exprs, " ") + ")"
}

// getFetchLimit bounds the number of rows Get's plain FT.SEARCH returns.
const getFetchLimit = 10000

// Get issues a plain FT.SEARCH (no KNN clause) and returns every document
// matching filter, with no similarity ranking. Unlike Search, the returned
// documents have their embedding decoded back from the stored FLOAT32
// bytes, so a caller (ingest/dedup's session clone) can re-Add them
// without recomputing embeddings.
func (s *Store) Get(ctx context.Context, filter map[string]any) ([]schema.Document, error) {
	cmd := s.client.Do(ctx, "FT.SEARCH", s.index, buildFilterExpr(filter),
		"LIMIT", "0", getFetchLimit,
		"DIALECT", "2",
	)
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("redis: get: %w", err)
	}
	return parseFTSearchResultWithEmbedding(cmd, s.prefix, 0, true)
}

// float32ToBytes converts vec into its raw little-endian byte
// representation, as expected by RediSearch's FLOAT32 vector fields.
func float32ToBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32 reverses float32ToBytes.
func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec
}

// parseFTSearchResult decodes a raw FT.SEARCH reply of the shape
// [total, key1, fields1, key2, fields2, ...] into Documents, applying the
// threshold and stripping prefix from each key to recover the document ID.
func parseFTSearchResult(cmd *goredis.Cmd, prefix string, threshold float64) ([]schema.Document, error) {
	return parseFTSearchResultWithEmbedding(cmd, prefix, threshold, false)
}

// parseFTSearchResultWithEmbedding is parseFTSearchResult with an option to
// decode the embedding field instead of skipping it, used by Get.
func parseFTSearchResultWithEmbedding(cmd *goredis.Cmd, prefix string, threshold float64, includeEmbedding bool) ([]schema.Document, error) {
	raw, err := cmd.Result()
	if err != nil {
		return nil, err
	}

	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, nil
	}

	total, ok := toInt64(items[0])
	if !ok {
		return nil, fmt.Errorf("vectorstore/redis: unexpected FT.SEARCH total %v", items[0])
	}
	if total == 0 {
		return nil, nil
	}

	var docs []schema.Document
	for i := 1; i+1 < len(items); i += 2 {
		key, ok := items[i].(string)
		if !ok {
			continue
		}
		fields, ok := items[i+1].([]any)
		if !ok {
			continue
		}

		doc := schema.Document{ID: strings.TrimPrefix(key, prefix)}
		for j := 0; j+1 < len(fields); j += 2 {
			name, ok := fields[j].(string)
			if !ok {
				continue
			}
			value := fields[j+1]

			switch name {
			case "embedding":
				if !includeEmbedding {
					continue
				}
				if s, ok := value.(string); ok {
					doc.Embedding = bytesToFloat32([]byte(s))
				}
			case "content":
				if s, ok := value.(string); ok {
					doc.Content = s
				}
			case "score":
				if s, ok := value.(string); ok {
					if dist, err := strconv.ParseFloat(s, 64); err == nil {
						doc.Score = 1.0 - dist
					}
				}
			default:
				if doc.Metadata == nil {
					doc.Metadata = make(map[string]any)
				}
				if s, ok := value.(string); ok {
					doc.Metadata[name] = s
				}
			}
		}

		if doc.Score < threshold {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
