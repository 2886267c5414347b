// Package chunk implements the Chunker (C8): strategy-dispatched splitting
// of a structured document record into text+metadata chunks ready for
// vector-store insertion. It dispatches to one of three strategies
// (excel/csv row-based, markdown structure-aware, or token-based) and
// reuses rag/splitter's TokenSplitter and MarkdownSplitter for the latter
// two rather than reimplementing text-splitting.
package chunk

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/veridex/veridex/rag/splitter"
	"github.com/veridex/veridex/schema"
)

// Strategy names, recorded on every chunk's chunk_type metadata key.
const (
	StrategyToken        = "token"
	StrategyStructure    = "structure"
	StrategyExcelRow     = "excel_row"
	StrategyExcelSummary = "excel_summary"
)

// DefaultTokenChunkSize and DefaultTokenChunkOverlap are the token
// strategy's defaults.
const (
	DefaultTokenChunkSize    = 512
	DefaultTokenChunkOverlap = 64
)

// MaxChunkChars is the final safety truncation applied to every chunk's
// text, matching the vector store's embedding-input limit.
const MaxChunkChars = 6000

// MaxHeaderKeyLen bounds a sanitized column-header metadata key.
const MaxHeaderKeyLen = 50

var markdownHeadingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]`)

// Input is one document's chunking request.
type Input struct {
	// DocID is the (ephemeral) workspace identifier, retained on chunk
	// metadata for debug correlation even after the workspace is cleaned up.
	DocID     string
	SessionID string
	Record    schema.DocumentRecord
}

// Config configures a Chunker's splitter strategies.
type Config struct {
	// TokenChunkSize and TokenChunkOverlap size the token strategy.
	// Zero values fall back to DefaultTokenChunkSize/DefaultTokenChunkOverlap.
	TokenChunkSize    int
	TokenChunkOverlap int
}

// Chunker dispatches a DocumentRecord to the appropriate chunking strategy.
type Chunker struct {
	token    splitter.Splitter
	markdown splitter.Splitter
}

// New constructs a Chunker from cfg.
func New(cfg Config) *Chunker {
	size := cfg.TokenChunkSize
	if size <= 0 {
		size = DefaultTokenChunkSize
	}
	overlap := cfg.TokenChunkOverlap
	if overlap <= 0 {
		overlap = DefaultTokenChunkOverlap
	}
	return &Chunker{
		token:    splitter.NewTokenSplitter(splitter.WithTokenChunkSize(size), splitter.WithTokenChunkOverlap(overlap)),
		markdown: splitter.NewMarkdownSplitter(splitter.WithPreserveHeaders(true)),
	}
}

// Chunk runs the strategy selected by in.Record.Source (row-based for
// excel/csv; structure-aware when the cleaned content looks like
// Markdown; token-based otherwise), and applies the final 6 000-char
// safety truncation to every resulting chunk.
func (c *Chunker) Chunk(ctx context.Context, in Input) ([]schema.Chunk, error) {
	var chunks []schema.Chunk
	var err error

	switch {
	case in.Record.Source == schema.SourceExcel || in.Record.Source == schema.SourceCSV:
		chunks = c.rowChunks(in)
	case markdownHeadingRe.MatchString(in.Record.CleanContent):
		chunks, err = c.textChunks(ctx, in, c.markdown, StrategyStructure)
	default:
		chunks, err = c.textChunks(ctx, in, c.token, StrategyToken)
	}
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].Text = truncate(chunks[i].Text, MaxChunkChars)
	}
	return chunks, nil
}

func (c *Chunker) textChunks(ctx context.Context, in Input, s splitter.Splitter, chunkType string) ([]schema.Chunk, error) {
	pieces, err := s.Split(ctx, in.Record.CleanContent)
	if err != nil {
		return nil, fmt.Errorf("chunk: split: %w", err)
	}

	chunks := make([]schema.Chunk, 0, len(pieces))
	for i, p := range pieces {
		meta := baseMetadata(in, chunkType)
		meta["chunk_index"] = i
		meta["chunk_total"] = len(pieces)
		chunks = append(chunks, schema.Chunk{Text: p, Metadata: meta})
	}
	return chunks, nil
}

// rowChunks implements the excel/csv row-based strategy: one chunk per
// data row, plus an optional per-table summary chunk.
func (c *Chunker) rowChunks(in Input) []schema.Chunk {
	var chunks []schema.Chunk

	for _, t := range in.Record.Tables {
		for i, row := range t.Data {
			meta := baseMetadata(in, StrategyExcelRow)
			var parts []string
			for j, h := range t.Headers {
				if j >= len(row) {
					continue
				}
				v := strings.TrimSpace(row[j])
				if v == "" {
					continue
				}
				parts = append(parts, fmt.Sprintf("%s: %s", h, v))
				meta[sanitizeHeader(h)] = v
			}
			text := fmt.Sprintf("[%s - Row %d] %s", t.Sheet, i+2, strings.Join(parts, ", "))
			chunks = append(chunks, schema.Chunk{Text: text, Metadata: meta})
		}

		if len(t.Data) == 0 {
			continue
		}
		summaryMeta := baseMetadata(in, StrategyExcelSummary)
		chunks = append(chunks, schema.Chunk{
			Text:     fmt.Sprintf("Sheet %q contains %d rows with columns: %s", t.Sheet, len(t.Data), strings.Join(t.Headers, ", ")),
			Metadata: summaryMeta,
		})
	}
	return chunks
}

func baseMetadata(in Input, chunkType string) map[string]any {
	return map[string]any{
		"source":     string(in.Record.Source),
		"doc_id":     in.DocID,
		"source_id":  in.Record.SourceID,
		"author":     in.Record.Author,
		"session_id": in.SessionID,
		"file_hash":  in.Record.FileHash,
		"chunk_type": chunkType,
	}
}

// sanitizeHeader lowercases h, replaces any non-alphanumeric run with a
// single underscore, and truncates to MaxHeaderKeyLen.
func sanitizeHeader(h string) string {
	var sb strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			sb.WriteByte('_')
			prevUnderscore = true
		}
	}
	out := strings.Trim(sb.String(), "_")
	if len(out) > MaxHeaderKeyLen {
		out = out[:MaxHeaderKeyLen]
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
