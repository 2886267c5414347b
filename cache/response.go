package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// responseTTL is the lifetime of an exact-match response cache entry.
const responseTTL = 3600 * time.Second

const (
	responseKeyPrefix  = "rag:response:"
	embeddingKeyPrefix = "rag:embedding:"
)

// LookupResult is returned by ResponseCache.Lookup. SemanticMatch reports
// whether the hit came from the similarity scan rather than an exact key
// match, and Similarity carries the cosine score in that case.
type LookupResult struct {
	Value         any
	SemanticMatch bool
	Similarity    float64
}

// ResponseCache implements the query-response cache: an exact-match lookup
// keyed by a hash of the normalized query text, with a cosine-similarity
// fallback over recently stored query embeddings when no exact key hits.
//
// It wraps a Cache for storage; the embedding index used for the similarity
// scan is kept in process memory, bounded to maxSemanticScan entries, since
// the Cache interface itself has no key-enumeration operation.
type ResponseCache struct {
	cache     Cache
	threshold float64

	mu        sync.Mutex
	index     []semanticEntry     // bounded scan window, most recent first
	bySource  map[string][]string // source_id -> response keys, for Invalidate
}

// NewResponseCache creates a ResponseCache wrapping the given Cache. The
// threshold (0-1) is the minimum cosine similarity an embedding match must
// clear to be returned; 0.92 matches the default configured threshold for
// retrieval-augmented response caching.
func NewResponseCache(cache Cache, threshold float64) *ResponseCache {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	return &ResponseCache{
		cache:     cache,
		threshold: threshold,
		bySource:  make(map[string][]string),
	}
}

// QueryHash normalizes query (lowercase, trimmed) and returns the first 16
// hex characters of its SHA-256 digest.
func QueryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// ResponseKey builds the cache key for an exact-match response entry.
// sourceID may be empty, in which case no suffix is appended.
func ResponseKey(queryHash, sourceID string) string {
	if sourceID == "" {
		return responseKeyPrefix + queryHash
	}
	return fmt.Sprintf("%s%s:%s", responseKeyPrefix, queryHash, sourceID)
}

func embeddingCacheKey(queryHash, sourceID string) string {
	if sourceID == "" {
		return embeddingKeyPrefix + queryHash
	}
	return fmt.Sprintf("%s%s:%s", embeddingKeyPrefix, queryHash, sourceID)
}

// Store records a response under the exact-match key derived from query and
// sourceID, and (if embedding is non-empty) records the embedding so later
// Lookup calls can find this entry by similarity.
func (rc *ResponseCache) Store(ctx context.Context, query string, embedding []float32, sourceID string, value any) error {
	hash := QueryHash(query)
	respKey := ResponseKey(hash, sourceID)
	if err := rc.cache.Set(ctx, respKey, value, responseTTL); err != nil {
		return err
	}

	if sourceID != "" {
		rc.mu.Lock()
		rc.bySource[sourceID] = append(rc.bySource[sourceID], respKey)
		rc.mu.Unlock()
	}

	if len(embedding) == 0 {
		return nil
	}

	embKey := embeddingCacheKey(hash, sourceID)
	if err := rc.cache.Set(ctx, embKey, embedding, embeddingTTL); err != nil {
		return err
	}
	rc.indexEmbedding(embKey, embedding)
	return nil
}

// Lookup checks for an exact response-key match first; if none is found and
// embedding is non-empty, it scans the embedding index for the closest
// match, requiring it to clear the configured threshold and, when sourceID
// is given, to belong to that source.
func (rc *ResponseCache) Lookup(ctx context.Context, query string, embedding []float32, sourceID string) (*LookupResult, bool, error) {
	hash := QueryHash(query)
	respKey := ResponseKey(hash, sourceID)
	if val, ok, err := rc.cache.Get(ctx, respKey); err != nil || ok {
		if !ok {
			return nil, false, err
		}
		return &LookupResult{Value: val}, true, nil
	}

	if len(embedding) == 0 {
		return nil, false, nil
	}

	bestKey, bestScore := rc.bestMatch(embedding)
	if bestKey == "" || bestScore < rc.threshold {
		return nil, false, nil
	}
	if sourceID != "" && !strings.HasSuffix(bestKey, ":"+sourceID) {
		return nil, false, nil
	}

	matchedRespKey := responseKeyPrefix + strings.TrimPrefix(bestKey, embeddingKeyPrefix)
	val, ok, err := rc.cache.Get(ctx, matchedRespKey)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &LookupResult{Value: val, SemanticMatch: true, Similarity: bestScore}, true, nil
}

// Invalidate deletes every response entry stored under sourceID.
func (rc *ResponseCache) Invalidate(ctx context.Context, sourceID string) error {
	rc.mu.Lock()
	keys := rc.bySource[sourceID]
	delete(rc.bySource, sourceID)
	rc.mu.Unlock()

	for _, key := range keys {
		if err := rc.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Cache returns the underlying Cache instance.
func (rc *ResponseCache) Cache() Cache {
	return rc.cache
}

func (rc *ResponseCache) indexEmbedding(key string, embedding []float32) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i, e := range rc.index {
		if e.key == key {
			rc.index[i].embedding = embedding
			return
		}
	}
	rc.index = append(rc.index, semanticEntry{key: key, embedding: embedding})
	if len(rc.index) > maxSemanticScan {
		rc.index = rc.index[len(rc.index)-maxSemanticScan:]
	}
}

func (rc *ResponseCache) bestMatch(embedding []float32) (string, float64) {
	rc.mu.Lock()
	entries := make([]semanticEntry, len(rc.index))
	copy(entries, rc.index)
	rc.mu.Unlock()

	bestKey := ""
	bestScore := -1.0
	for _, e := range entries {
		score := cosineSimilarity(embedding, e.embedding)
		if score > bestScore {
			bestScore = score
			bestKey = e.key
		}
	}
	return bestKey, bestScore
}
