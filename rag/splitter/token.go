package splitter

import (
	"context"
	"strings"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/schema"
)

func init() {
	Register("token", func(cfg config.ProviderConfig) (Splitter, error) {
		var opts []TokenOption
		if v, ok := config.GetOption[float64](cfg, "chunk_size"); ok {
			opts = append(opts, WithTokenChunkSize(int(v)))
		}
		if v, ok := config.GetOption[float64](cfg, "chunk_overlap"); ok {
			opts = append(opts, WithTokenChunkOverlap(int(v)))
		}
		return NewTokenSplitter(opts...), nil
	})
}

// TokenSplitter splits text into chunks bounded by estimated token count
// rather than character count, using an llm.Tokenizer.
type TokenSplitter struct {
	chunkSize    int
	chunkOverlap int
	tokenizer    llm.Tokenizer
}

// TokenOption configures a TokenSplitter.
type TokenOption func(*TokenSplitter)

// WithTokenChunkSize sets the maximum chunk size in estimated tokens.
// Non-positive values are ignored.
func WithTokenChunkSize(size int) TokenOption {
	return func(s *TokenSplitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithTokenChunkOverlap sets the number of trailing tokens repeated at the
// start of the next chunk. Negative values are ignored.
func WithTokenChunkOverlap(overlap int) TokenOption {
	return func(s *TokenSplitter) {
		if overlap >= 0 {
			s.chunkOverlap = overlap
		}
	}
}

// WithTokenizer overrides the Tokenizer used to estimate token counts.
// A nil tokenizer is ignored, leaving the default in place.
func WithTokenizer(tokenizer llm.Tokenizer) TokenOption {
	return func(s *TokenSplitter) {
		if tokenizer != nil {
			s.tokenizer = tokenizer
		}
	}
}

// NewTokenSplitter creates a TokenSplitter with the given options layered
// over sensible defaults (1000-token chunks, 200-token overlap,
// llm.SimpleTokenizer for estimation).
func NewTokenSplitter(opts ...TokenOption) *TokenSplitter {
	s := &TokenSplitter{
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		tokenizer:    &llm.SimpleTokenizer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split breaks text into word-aligned chunks whose estimated token count
// stays within chunkSize, carrying chunkOverlap tokens' worth of trailing
// words into the next chunk.
func (s *TokenSplitter) Split(ctx context.Context, text string) ([]string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	var chunks []string
	var current []string
	tokens := 0

	for _, w := range words {
		wTokens := s.tokenizer.Count(w)
		if tokens+wTokens > s.chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			overlap := s.getOverlapWords(current)
			current = append([]string{}, overlap...)
			tokens = 0
			for _, ow := range current {
				tokens += s.tokenizer.Count(ow)
			}
		}
		current = append(current, w)
		tokens += wTokens
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks, nil
}

// SplitDocuments splits each document's content and attaches chunk
// metadata.
func (s *TokenSplitter) SplitDocuments(ctx context.Context, docs []schema.Document) ([]schema.Document, error) {
	return splitDocumentsHelper(ctx, s, docs)
}

func (s *TokenSplitter) getOverlapWords(words []string) []string {
	if s.chunkOverlap <= 0 || len(words) == 0 {
		return nil
	}
	var result []string
	tokens := 0
	for i := len(words) - 1; i >= 0; i-- {
		wTokens := s.tokenizer.Count(words[i])
		if tokens+wTokens > s.chunkOverlap {
			break
		}
		tokens += wTokens
		result = append([]string{words[i]}, result...)
	}
	return result
}
