package structure

import (
	"context"
	"encoding/json"
	"iter"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veridex/veridex/artifactstore"
	localstore "github.com/veridex/veridex/artifactstore/providers/local"
	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/schema"
)

// recordingModel returns its canned responses in call order and records the
// most recent call's resolved options, so tests can assert the
// table-analysis pass runs at temperature 0.3.
type recordingModel struct {
	responses []string
	calls     *int
	lastOpts  *[]llm.GenerateOption
}

func (m recordingModel) Generate(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) (*schema.AIMessage, error) {
	idx := *m.calls
	*m.calls++
	*m.lastOpts = opts
	return schema.NewAIMessage(m.responses[idx%len(m.responses)]), nil
}

func (m recordingModel) Stream(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	return func(yield func(schema.StreamChunk, error) bool) {}
}

func (m recordingModel) BindTools(tools []schema.ToolDefinition) llm.ChatModel { return m }
func (m recordingModel) ModelID() string                                      { return "stub" }

func newRecordingModel(responses ...string) (llm.ChatModel, *int, *[]llm.GenerateOption) {
	calls := 0
	var lastOpts []llm.GenerateOption
	return recordingModel{responses: responses, calls: &calls, lastOpts: &lastOpts}, &calls, &lastOpts
}

type erroringModel struct{}

func (erroringModel) Generate(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) (*schema.AIMessage, error) {
	panic("model must not be called when the content guardrail applies")
}
func (erroringModel) Stream(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	return func(yield func(schema.StreamChunk, error) bool) {}
}
func (erroringModel) BindTools(tools []schema.ToolDefinition) llm.ChatModel { return erroringModel{} }
func (erroringModel) ModelID() string                                      { return "erroring" }

func newWorkspace(t *testing.T) (artifactstore.ArtifactStore, string) {
	t.Helper()
	store, err := localstore.New(artifactstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	docID, err := store.NewWorkspace(context.Background(), "report.pdf")
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	return store, docID
}

func TestNew_RequiresFields(t *testing.T) {
	store, _ := newWorkspace(t)
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
	if _, err := New(Config{Store: store}); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestStructure_TextDocument(t *testing.T) {
	store, docID := newWorkspace(t)
	if err := store.Write(context.Background(), docID, filepath.Join(artifactstore.TextDir, "content.txt"),
		[]byte("Page 1\n\n\n\nThis report covers quarterly revenue.\n\nPage 2")); err != nil {
		t.Fatalf("write content: %v", err)
	}

	model, _, _ := newRecordingModel(`{"language":"en","summary":"Quarterly revenue report."}`)
	agent, err := New(Config{Store: store, Model: model})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	record, err := agent.Structure(context.Background(), Input{
		DocID:      docID,
		SourceID:   "report.pdf__abc12345",
		SourceKind: schema.SourcePDF,
		FileHash:   "deadbeef",
	})
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	if record.Language != "en" {
		t.Errorf("Language = %q, want en", record.Language)
	}
	if record.Summary != "Quarterly revenue report." {
		t.Errorf("Summary = %q", record.Summary)
	}
	if strings.Contains(record.CleanContent, "Page 1") || strings.Contains(record.CleanContent, "Page 2") {
		t.Errorf("CleanContent still has page-number noise: %q", record.CleanContent)
	}
	if !strings.Contains(record.CleanContent, "quarterly revenue") {
		t.Errorf("CleanContent missing body text: %q", record.CleanContent)
	}

	raw, err := store.Read(context.Background(), docID, filepath.Join(artifactstore.ParsedDir, "structured.json"))
	if err != nil {
		t.Fatalf("read structured.json: %v", err)
	}
	var persisted schema.DocumentRecord
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("unmarshal structured.json: %v", err)
	}
	if persisted.Summary != record.Summary {
		t.Errorf("persisted summary = %q, want %q", persisted.Summary, record.Summary)
	}
}

func TestStructure_EmptyDocumentSkipsLLM(t *testing.T) {
	store, docID := newWorkspace(t)

	agent, err := New(Config{Store: store, Model: erroringModel{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	record, err := agent.Structure(context.Background(), Input{
		DocID:      docID,
		SourceID:   "photo.png__11112222",
		SourceKind: schema.SourceImage,
		FileHash:   "cafebabe",
	})
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	if record.Language != "unknown" {
		t.Errorf("Language = %q, want unknown", record.Language)
	}
	want := "No extractable text found. Image file: photo.png__11112222"
	if record.Summary != want {
		t.Errorf("Summary = %q, want %q", record.Summary, want)
	}
}

func TestStructure_EmptyDocument_UsesUserDescription(t *testing.T) {
	store, docID := newWorkspace(t)

	agent, err := New(Config{Store: store, Model: erroringModel{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	record, err := agent.Structure(context.Background(), Input{
		DocID:           docID,
		SourceID:        "photo.png__11112222",
		SourceKind:      schema.SourceImage,
		UserDescription: "Whiteboard photo from the planning meeting",
		FileHash:        "cafebabe",
	})
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	want := "No extractable text found. Whiteboard photo from the planning meeting"
	if record.Summary != want {
		t.Errorf("Summary = %q, want %q", record.Summary, want)
	}
}

func TestStructure_ExcelTableAnalysis(t *testing.T) {
	store, docID := newWorkspace(t)

	tables := []schema.Table{{Sheet: "Sheet1", Headers: []string{"Name", "Revenue"}, Data: [][]string{{"Acme", "100"}, {"Globex", "200"}}}}
	data, _ := json.Marshal(tables)
	if err := store.Write(context.Background(), docID, filepath.Join(artifactstore.TablesDir, "tables.json"), data); err != nil {
		t.Fatalf("write tables.json: %v", err)
	}

	model, calls, lastOpts := newRecordingModel(
		`{"language":"en","summary":"Revenue by customer."}`,
		`{"sheet_purposes":{"Sheet1":"Revenue by customer"},"insights":["Globex leads revenue"],"chart_analysis":""}`,
	)
	agent, err := New(Config{Store: store, Model: model})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	record, err := agent.Structure(context.Background(), Input{
		DocID:      docID,
		SourceID:   "book.xlsx__33334444",
		SourceKind: schema.SourceExcel,
		FileHash:   "feedface",
	})
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	if *calls != 2 {
		t.Fatalf("calls = %d, want 2 (parse + table analysis)", *calls)
	}
	if record.Analysis == nil {
		t.Fatal("expected Analysis to be populated")
	}
	if record.CleanContent != "" {
		t.Errorf("CleanContent = %q, want empty for excel", record.CleanContent)
	}

	opts := llm.ApplyOptions((*lastOpts)...)
	if opts.Temperature == nil || *opts.Temperature != 0.3 {
		t.Errorf("table analysis pass Temperature = %v, want 0.3", opts.Temperature)
	}

	raw, err := store.Read(context.Background(), docID, filepath.Join(artifactstore.TablesDir, "analysis.json"))
	if err != nil {
		t.Fatalf("read tables/analysis.json: %v", err)
	}
	var persisted excelAnalysisResult
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("unmarshal tables/analysis.json: %v", err)
	}
	if len(persisted.Insights) != 1 {
		t.Errorf("persisted insights = %v", persisted.Insights)
	}
}

func TestCleanText(t *testing.T) {
	in := "Page 1\n\n\n\nHello\x00World\n\n\n12\n\nDone"
	got := cleanText(in)
	if strings.Contains(got, "Page 1") {
		t.Errorf("page-number line not stripped: %q", got)
	}
	if strings.Contains(got, "\x00") {
		t.Errorf("control char not stripped: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank run not collapsed: %q", got)
	}
}

var _ llm.ChatModel = recordingModel{}
var _ llm.ChatModel = erroringModel{}
