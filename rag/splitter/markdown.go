package splitter

import (
	"context"
	"strings"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/schema"
)

func init() {
	Register("markdown", func(cfg config.ProviderConfig) (Splitter, error) {
		var opts []MarkdownOption
		if v, ok := config.GetOption[float64](cfg, "chunk_size"); ok {
			opts = append(opts, WithMarkdownChunkSize(int(v)))
		}
		if v, ok := config.GetOption[float64](cfg, "chunk_overlap"); ok {
			opts = append(opts, WithMarkdownChunkOverlap(int(v)))
		}
		if v, ok := config.GetOption[bool](cfg, "preserve_headers"); ok {
			opts = append(opts, WithPreserveHeaders(v))
		}
		return NewMarkdownSplitter(opts...), nil
	})
}

// MarkdownSplitter splits text along Markdown headings, keeping each
// section as its own chunk and recursively splitting any section that
// still exceeds the chunk size.
type MarkdownSplitter struct {
	chunkSize       int
	chunkOverlap    int
	preserveHeaders bool
}

// MarkdownOption configures a MarkdownSplitter.
type MarkdownOption func(*MarkdownSplitter)

// WithMarkdownChunkSize sets the maximum chunk size in characters.
// Non-positive values are ignored.
func WithMarkdownChunkSize(size int) MarkdownOption {
	return func(s *MarkdownSplitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithMarkdownChunkOverlap sets the overlap used when a section is
// recursively split. Negative values are ignored.
func WithMarkdownChunkOverlap(overlap int) MarkdownOption {
	return func(s *MarkdownSplitter) {
		if overlap >= 0 {
			s.chunkOverlap = overlap
		}
	}
}

// WithPreserveHeaders controls whether ancestor headings are prepended to
// a section's chunk, giving the chunk full heading context.
func WithPreserveHeaders(preserve bool) MarkdownOption {
	return func(s *MarkdownSplitter) {
		s.preserveHeaders = preserve
	}
}

// NewMarkdownSplitter creates a MarkdownSplitter with the given options
// layered over sensible defaults.
func NewMarkdownSplitter(opts ...MarkdownOption) *MarkdownSplitter {
	s := &MarkdownSplitter{
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type mdSection struct {
	level   int
	header  string
	content []string
}

// Split breaks text into one chunk per Markdown section (heading plus
// body), prepending ancestor headings when preserveHeaders is set, and
// recursively splitting any section whose chunk still exceeds chunkSize.
func (s *MarkdownSplitter) Split(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sections := parseMarkdownSections(text)

	var chunks []string
	var stack []mdSection

	for _, sec := range sections {
		body := strings.TrimSpace(strings.Join(sec.content, "\n"))
		if sec.header == "" && body == "" {
			continue
		}

		for len(stack) > 0 && stack[len(stack)-1].level >= sec.level {
			stack = stack[:len(stack)-1]
		}

		full := body
		if sec.header != "" {
			if body != "" {
				full = sec.header + "\n\n" + body
			} else {
				full = sec.header
			}
		}

		chunkText := full
		if s.preserveHeaders && len(stack) > 0 {
			ancestors := make([]string, len(stack))
			for i, anc := range stack {
				ancestors[i] = anc.header
			}
			chunkText = strings.Join(ancestors, "\n\n") + "\n\n" + full
		}

		if sec.header != "" {
			stack = append(stack, sec)
		}

		if len(chunkText) > s.chunkSize {
			sub, err := NewRecursiveSplitter(WithChunkSize(s.chunkSize), WithChunkOverlap(s.chunkOverlap)).Split(ctx, chunkText)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, sub...)
		} else {
			chunks = append(chunks, chunkText)
		}
	}
	return chunks, nil
}

// SplitDocuments splits each document's content and attaches chunk
// metadata.
func (s *MarkdownSplitter) SplitDocuments(ctx context.Context, docs []schema.Document) ([]schema.Document, error) {
	return splitDocumentsHelper(ctx, s, docs)
}

func parseMarkdownSections(text string) []mdSection {
	var sections []mdSection
	current := mdSection{}

	for _, line := range strings.Split(text, "\n") {
		if lvl := headingLevel(line); lvl > 0 {
			sections = append(sections, current)
			current = mdSection{level: lvl, header: line}
			continue
		}
		current.content = append(current.content, line)
	}
	sections = append(sections, current)
	return sections
}

// headingLevel returns the Markdown heading level of line (1-6), or 0 if
// line is not a valid ATX heading.
func headingLevel(line string) int {
	count := 0
	for count < len(line) && line[count] == '#' {
		count++
	}
	if count == 0 || count > 6 {
		return 0
	}
	if count == len(line) {
		return count
	}
	if line[count] == ' ' {
		return count
	}
	return 0
}
