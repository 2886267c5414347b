// Package structure implements the Structuring Agent (C7): it turns a
// document's extraction workspace into the canonical schema.DocumentRecord,
// calling the configured LLM once for a language/summary parse pass and,
// for tabular sources, a second pass for table/chart analysis.
package structure

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/veridex/veridex/artifactstore"
	"github.com/veridex/veridex/ingest/vision"
	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/schema"
)

// MaxContentChars bounds how much cleaned text is sent in the parse prompt.
const MaxContentChars = 3500

// MaxTableSummary and MaxImageSummary bound how many tables/images are
// described in the parse prompt.
const (
	MaxTableSummary = 3
	MaxImageSummary = 5
)

// MaxAnalysisTables and MaxAnalysisSampleRows bound the table-analysis
// prompt's size.
const (
	MaxAnalysisTables     = 5
	MaxAnalysisSampleRows = 5
)

var (
	pageNumberLineRe = regexp.MustCompile(`(?m)^[ \t]*(?:[Pp]age\s+)?\d{1,4}[ \t]*$`)
	blankRunRe       = regexp.MustCompile(`\n{3,}`)
)

// Input is one document's structuring request, assembled by the pipeline
// orchestrator after C5/C6 have populated the workspace.
type Input struct {
	DocID           string
	SourceID        string
	SourceKind      schema.SourceKind
	FileHash        string
	Author          string
	UserDescription string
}

// parseResult is the parse pass's demanded JSON shape.
type parseResult struct {
	Language string `json:"language"`
	Summary  string `json:"summary"`
}

// excelAnalysisResult is the table-analysis pass's demanded JSON shape for
// excel sources.
type excelAnalysisResult struct {
	SheetPurposes map[string]string `json:"sheet_purposes"`
	Insights      []string          `json:"insights"`
	ChartAnalysis string            `json:"chart_analysis,omitempty"`
}

// csvAnalysisResult is the table-analysis pass's demanded JSON shape for csv
// sources.
type csvAnalysisResult struct {
	DataType           string            `json:"data_type"`
	ColumnDescriptions map[string]string `json:"column_descriptions"`
	KeyStatistics      map[string]string `json:"key_statistics"`
	Patterns           []string          `json:"patterns"`
	UseCases           []string          `json:"use_cases"`
}

const parseSystemPrompt = "You are a document analysis assistant. Given the following document content, " +
	"identify its primary language (ISO 639-1 code or language name) and write a concise 2-4 sentence " +
	"summary of what the document contains. Respond with JSON matching the schema."

const excelAnalysisSystemPrompt = "You are a data analyst. Given the following spreadsheet tables and " +
	"charts, describe each sheet's purpose, list the key insights the data supports, and, if charts are " +
	"present, describe what they show. Respond with JSON matching the schema."

const csvAnalysisSystemPrompt = "You are a data analyst. Given the following CSV table, identify its data " +
	"domain, describe each column, report notable key statistics, call out patterns, and suggest use " +
	"cases. Respond with JSON matching the schema."

// Config configures an Agent.
type Config struct {
	// Store is the workspace documents are read from and analysis artifacts
	// are written to. Required.
	Store artifactstore.ArtifactStore

	// Model runs the parse and table-analysis LLM calls. Required.
	Model llm.ChatModel
}

// Agent runs the structuring algorithm over a single document's workspace.
type Agent struct {
	store artifactstore.ArtifactStore
	model llm.ChatModel
}

// New constructs an Agent from cfg.
func New(cfg Config) (*Agent, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("structure: store is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("structure: model is required")
	}
	return &Agent{store: cfg.Store, model: cfg.Model}, nil
}

// Structure runs the full algorithm for in, persists parsed/structured.json
// (and, for excel/csv, tables/analysis.json), and returns the canonical
// record.
func (a *Agent) Structure(ctx context.Context, in Input) (schema.DocumentRecord, error) {
	raw, _ := a.store.Read(ctx, in.DocID, filepath.Join(artifactstore.TextDir, "content.txt"))
	cleaned := cleanText(string(raw))

	tables := a.readTables(ctx, in.DocID)
	charts := a.readCharts(ctx, in.DocID)
	ocrRecords := a.readOCRRecords(ctx, in.DocID)
	images := a.mergeImageAnalyses(ctx, in.DocID, ocrRecords)

	record := schema.DocumentRecord{
		SourceID:        in.SourceID,
		Source:          in.SourceKind,
		Author:          in.Author,
		UserDescription: in.UserDescription,
		TablesCount:     len(tables),
		FileHash:        in.FileHash,
		Tables:          tables,
		Charts:          charts,
		ImagesAnalysis:  images,
		OCRMetadata:     ocrRecords,
		CreatedAt:       time.Now().UTC(),
	}

	if cleaned == "" && len(tables) == 0 && len(ocrRecords) == 0 {
		record.Language = "unknown"
		record.Summary = "No extractable text found. " + defaultDescription(in)
	} else {
		record.Language, record.Summary = a.parse(ctx, in, cleaned, tables, images)
	}

	if in.SourceKind != schema.SourceExcel {
		record.CleanContent = appendImageAnalysisBlock(cleaned, images)
	}

	if (in.SourceKind == schema.SourceExcel || in.SourceKind == schema.SourceCSV) && len(tables) > 0 {
		analysis, err := a.analyzeTables(ctx, in, tables, charts)
		if err == nil && analysis != nil {
			record.Analysis = analysis
			if data, err := json.Marshal(analysis); err == nil {
				a.store.Write(ctx, in.DocID, filepath.Join(artifactstore.TablesDir, "analysis.json"), data)
			}
		}
	}

	if data, err := json.Marshal(record); err == nil {
		a.store.Write(ctx, in.DocID, filepath.Join(artifactstore.ParsedDir, "structured.json"), data)
	}

	return record, nil
}

func defaultDescription(in Input) string {
	if in.UserDescription != "" {
		return in.UserDescription
	}
	return "Image file: " + in.SourceID
}

// parse runs the parse pass, falling back to a source-specific default
// summary if the LLM call or JSON parse fails.
func (a *Agent) parse(ctx context.Context, in Input, cleaned string, tables []schema.Table, images []schema.ImageAnalysis) (language, summary string) {
	prompt := buildParsePrompt(cleaned, tables, images)
	msgs := []schema.Message{
		schema.NewSystemMessage(parseSystemPrompt),
		schema.NewHumanMessage(prompt),
	}

	result, err := llm.NewStructured[parseResult](a.model).Generate(ctx, msgs)
	if err != nil {
		return "unknown", defaultSummary(in, tables)
	}
	if strings.TrimSpace(result.Language) == "" {
		result.Language = "unknown"
	}
	if strings.TrimSpace(result.Summary) == "" {
		result.Summary = defaultSummary(in, tables)
	}
	return result.Language, result.Summary
}

// defaultSummary is used when the parse pass fails outright; for tabular
// sources it rolls up sheet/column/row counts instead of a generic message.
func defaultSummary(in Input, tables []schema.Table) string {
	if len(tables) == 0 {
		return "Document summary unavailable."
	}
	rows := 0
	cols := 0
	for _, t := range tables {
		rows += len(t.Data)
		if len(t.Headers) > cols {
			cols = len(t.Headers)
		}
	}
	return fmt.Sprintf("%d sheet(s), %d column(s), %d total row(s).", len(tables), cols, rows)
}

func buildParsePrompt(cleaned string, tables []schema.Table, images []schema.ImageAnalysis) string {
	var sb strings.Builder
	sb.WriteString(truncate(cleaned, MaxContentChars))

	if len(tables) > 0 {
		sb.WriteString("\n\n--- TABLES ---\n")
		for i, t := range tables {
			if i >= MaxTableSummary {
				break
			}
			fmt.Fprintf(&sb, "%q: %d columns x %d rows (headers: %s)\n",
				t.Sheet, len(t.Headers), len(t.Data), strings.Join(t.Headers, ", "))
		}
	}

	if len(images) > 0 {
		sb.WriteString("\n\n--- IMAGES ---\n")
		for i, img := range images {
			if i >= MaxImageSummary {
				break
			}
			fmt.Fprintf(&sb, "%s: %s\n", filepath.Base(img.Image), truncate(img.Content, 200))
		}
	}

	return sb.String()
}

// analyzeTables runs the second, table-focused LLM call at temperature 0.3.
func (a *Agent) analyzeTables(ctx context.Context, in Input, tables []schema.Table, charts []schema.Chart) (map[string]any, error) {
	pinned := pinTemperature(a.model, 0.3)
	prompt := buildTableAnalysisPrompt(tables, charts)

	var raw any
	var err error
	switch in.SourceKind {
	case schema.SourceExcel:
		msgs := []schema.Message{schema.NewSystemMessage(excelAnalysisSystemPrompt), schema.NewHumanMessage(prompt)}
		raw, err = llm.NewStructured[excelAnalysisResult](pinned).Generate(ctx, msgs)
	case schema.SourceCSV:
		msgs := []schema.Message{schema.NewSystemMessage(csvAnalysisSystemPrompt), schema.NewHumanMessage(prompt)}
		raw, err = llm.NewStructured[csvAnalysisResult](pinned).Generate(ctx, msgs)
	default:
		return nil, fmt.Errorf("structure: table analysis not applicable to %s", in.SourceKind)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func buildTableAnalysisPrompt(tables []schema.Table, charts []schema.Chart) string {
	var sb strings.Builder
	for i, t := range tables {
		if i >= MaxAnalysisTables {
			break
		}
		fmt.Fprintf(&sb, "Sheet %q (headers: %s)\n", t.Sheet, strings.Join(t.Headers, ", "))
		for j, row := range t.Data {
			if j >= MaxAnalysisSampleRows {
				break
			}
			fmt.Fprintf(&sb, "  row %d: %s\n", j+1, strings.Join(row, ", "))
		}
	}
	if len(charts) > 0 {
		sb.WriteString("\nCharts:\n")
		for _, c := range charts {
			fmt.Fprintf(&sb, "  %q on sheet %q\n", c.Kind, c.Sheet)
		}
	}
	return sb.String()
}

// pinTemperature wraps model so every Generate/Stream call carries temp.
// The pinned option is applied before the caller's options, so a caller that
// passes its own WithTemperature overrides it (StructuredOutput only ever
// sets WithResponseFormat).
func pinTemperature(model llm.ChatModel, temp float64) llm.ChatModel {
	return llm.ApplyMiddleware(model, func(next llm.ChatModel) llm.ChatModel {
		return temperaturePinnedModel{next: next, temp: temp}
	})
}

type temperaturePinnedModel struct {
	next llm.ChatModel
	temp float64
}

func (m temperaturePinnedModel) Generate(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) (*schema.AIMessage, error) {
	return m.next.Generate(ctx, msgs, append([]llm.GenerateOption{llm.WithTemperature(m.temp)}, opts...)...)
}

func (m temperaturePinnedModel) Stream(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	return m.next.Stream(ctx, msgs, append([]llm.GenerateOption{llm.WithTemperature(m.temp)}, opts...)...)
}

func (m temperaturePinnedModel) BindTools(tools []schema.ToolDefinition) llm.ChatModel {
	return temperaturePinnedModel{next: m.next.BindTools(tools), temp: m.temp}
}

func (m temperaturePinnedModel) ModelID() string { return m.next.ModelID() }

func (a *Agent) readTables(ctx context.Context, docID string) []schema.Table {
	var tables []schema.Table
	data, err := a.store.Read(ctx, docID, filepath.Join(artifactstore.TablesDir, "tables.json"))
	if err != nil {
		return nil
	}
	json.Unmarshal(data, &tables)
	return tables
}

func (a *Agent) readCharts(ctx context.Context, docID string) []schema.Chart {
	var charts []schema.Chart
	data, err := a.store.Read(ctx, docID, filepath.Join(artifactstore.ChartsDir, "charts.json"))
	if err != nil {
		return nil
	}
	json.Unmarshal(data, &charts)
	return charts
}

func (a *Agent) readOCRRecords(ctx context.Context, docID string) []schema.OCRResult {
	var records []schema.OCRResult
	data, err := a.store.Read(ctx, docID, filepath.Join(artifactstore.ImagesDir, "ocr_analysis.json"))
	if err != nil {
		return nil
	}
	json.Unmarshal(data, &records)
	return records
}

func (a *Agent) readVLMRecords(ctx context.Context, docID string) []schema.ImageAnalysis {
	var records []schema.ImageAnalysis
	data, err := a.store.Read(ctx, docID, filepath.Join(artifactstore.ImagesDir, "analysis.json"))
	if err != nil {
		return nil
	}
	json.Unmarshal(data, &records)
	return records
}

// mergeImageAnalyses reconstructs vision.Process's combined accepted-OCR +
// VLM result set from the two artifacts it persists, using the same
// acceptance gate it applies internally.
func (a *Agent) mergeImageAnalyses(ctx context.Context, docID string, ocrRecords []schema.OCRResult) []schema.ImageAnalysis {
	var images []schema.ImageAnalysis
	for _, r := range ocrRecords {
		if r.Confidence >= vision.OCRConfidenceThreshold && len(strings.TrimSpace(r.Text)) >= vision.OCRMinChars {
			images = append(images, schema.ImageAnalysis{Method: "ocr", Image: r.Image, Content: r.Text, Confidence: r.Confidence})
		}
	}
	images = append(images, a.readVLMRecords(ctx, docID)...)
	sort.SliceStable(images, func(i, j int) bool { return images[i].Image < images[j].Image })
	return images
}

func appendImageAnalysisBlock(cleaned string, images []schema.ImageAnalysis) string {
	if len(images) == 0 {
		return cleaned
	}
	var sb strings.Builder
	sb.WriteString(cleaned)
	sb.WriteString("\n\n--- IMAGE ANALYSIS ---\n")
	for _, img := range images {
		fmt.Fprintf(&sb, "[%s]: %s\n", filepath.Base(img.Image), img.Content)
	}
	return sb.String()
}

// cleanText strips page-number-only lines and control characters, and
// collapses runs of 3+ blank lines down to 2.
func cleanText(s string) string {
	s = pageNumberLineRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
