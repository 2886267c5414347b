package splitter

import (
	"context"
	"strings"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/schema"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

func init() {
	Register("recursive", func(cfg config.ProviderConfig) (Splitter, error) {
		var opts []RecursiveOption
		if v, ok := config.GetOption[float64](cfg, "chunk_size"); ok {
			opts = append(opts, WithChunkSize(int(v)))
		}
		if v, ok := config.GetOption[float64](cfg, "chunk_overlap"); ok {
			opts = append(opts, WithChunkOverlap(int(v)))
		}
		return NewRecursiveSplitter(opts...), nil
	})
}

// RecursiveSplitter splits text by trying a list of separators in order,
// falling back to the next separator (and ultimately character-level
// splitting) whenever a piece still exceeds the chunk size.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// RecursiveOption configures a RecursiveSplitter.
type RecursiveOption func(*RecursiveSplitter)

// WithChunkSize sets the maximum chunk size in characters. Non-positive
// values are ignored.
func WithChunkSize(size int) RecursiveOption {
	return func(s *RecursiveSplitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithChunkOverlap sets the number of trailing characters from one chunk
// repeated at the start of the next. Negative values are ignored.
func WithChunkOverlap(overlap int) RecursiveOption {
	return func(s *RecursiveSplitter) {
		if overlap >= 0 {
			s.chunkOverlap = overlap
		}
	}
}

// WithSeparators overrides the ordered list of separators tried from
// coarsest to finest. An empty slice is ignored.
func WithSeparators(separators []string) RecursiveOption {
	return func(s *RecursiveSplitter) {
		if len(separators) > 0 {
			s.separators = separators
		}
	}
}

// NewRecursiveSplitter creates a RecursiveSplitter with the given options
// layered over sensible defaults (1000-character chunks, 200-character
// overlap, paragraph/line/word/character separators).
func NewRecursiveSplitter(opts ...RecursiveOption) *RecursiveSplitter {
	s := &RecursiveSplitter{
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		separators:   append([]string{}, defaultSeparators...),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split breaks text into chunks no longer than chunkSize where possible.
func (s *RecursiveSplitter) Split(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pieces := s.splitRecursive(text, s.separators)
	return s.mergePieces(pieces), nil
}

// SplitDocuments splits each document's content and attaches chunk
// metadata.
func (s *RecursiveSplitter) SplitDocuments(ctx context.Context, docs []schema.Document) ([]schema.Document, error) {
	return splitDocumentsHelper(ctx, s, docs)
}

func (s *RecursiveSplitter) splitRecursive(text string, separators []string) []string {
	if len(text) <= s.chunkSize || len(separators) == 0 {
		return []string{text}
	}

	sep := separators[0]
	rest := separators[1:]

	if sep == "" {
		var parts []string
		for i := 0; i < len(text); i += s.chunkSize {
			end := i + s.chunkSize
			if end > len(text) {
				end = len(text)
			}
			parts = append(parts, text[i:end])
		}
		return parts
	}

	var result []string
	for _, p := range strings.Split(text, sep) {
		if p == "" {
			continue
		}
		if len(p) > s.chunkSize {
			result = append(result, s.splitRecursive(p, rest)...)
		} else {
			result = append(result, p)
		}
	}
	return result
}

// mergePieces combines adjacent small pieces up to chunkSize, carrying
// getOverlap's trailing characters forward into the next chunk.
func (s *RecursiveSplitter) mergePieces(pieces []string) []string {
	var chunks []string
	var current strings.Builder

	for _, p := range pieces {
		if current.Len() == 0 {
			current.WriteString(p)
			continue
		}
		if current.Len()+1+len(p) <= s.chunkSize {
			current.WriteString(" ")
			current.WriteString(p)
			continue
		}

		chunks = append(chunks, current.String())
		overlap := s.getOverlap(current.String())
		current.Reset()
		if overlap != "" {
			current.WriteString(overlap)
			current.WriteString(" ")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// getOverlap returns the trailing chunkOverlap characters of text, or ""
// if overlap is disabled or would consume the whole chunk.
func (s *RecursiveSplitter) getOverlap(text string) string {
	if s.chunkOverlap <= 0 || s.chunkOverlap >= len(text) {
		return ""
	}
	return text[len(text)-s.chunkOverlap:]
}
