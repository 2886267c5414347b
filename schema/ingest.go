package schema

import "time"

// SourceKind identifies the format-specific extractor that produced a
// DocumentRecord.
type SourceKind string

const (
	SourcePDF        SourceKind = "pdf"
	SourceWord       SourceKind = "word"
	SourceExcel      SourceKind = "excel"
	SourceCSV        SourceKind = "csv"
	SourcePowerPoint SourceKind = "powerpoint"
	SourceImage      SourceKind = "image"
	SourceAudio      SourceKind = "audio"
	SourceVideo      SourceKind = "video"
	SourceURL        SourceKind = "url"
	SourceYouTube    SourceKind = "youtube"
)

// Table is a preprocessed tabular artifact extracted from a document: an
// Excel sheet, a CSV file, or a table detected inside a PDF/Word/PowerPoint.
type Table struct {
	Sheet   string `json:"sheet,omitempty"`
	Page    int    `json:"page,omitempty"`
	Slide   int    `json:"slide,omitempty"`
	Headers []string   `json:"headers"`
	Data    [][]string `json:"data"`
}

// Chart is a chart detected alongside a Table, surfaced as a parallel
// artifact for the table-analysis LLM call.
type Chart struct {
	Sheet  string `json:"sheet,omitempty"`
	Kind   string `json:"kind"`
	Title  string `json:"title,omitempty"`
	Range  string `json:"range,omitempty"`
}

// OCRResult is a single image's OCR outcome, retained on the DocumentRecord
// so a caller can audit which images were OCR'd vs VLM'd.
type OCRResult struct {
	Image      string  `json:"image"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ImageAnalysis is a single image's resolved understanding, whichever
// method (OCR or VLM) produced it.
type ImageAnalysis struct {
	Method     string  `json:"method"` // "ocr" | "vlm"
	Image      string  `json:"image"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence,omitempty"`
	IsGraph    bool    `json:"is_graph,omitempty"`
}

// DocumentRecord is an append-only element of an IngestSession's Files
// array: the persisted, structured result of ingesting one input.
type DocumentRecord struct {
	SourceID         string          `json:"source_id" bson:"source_id"`
	Source           SourceKind      `json:"source" bson:"source"`
	Language         string          `json:"language" bson:"language"`
	Author           string          `json:"author,omitempty" bson:"author,omitempty"`
	UserDescription  string          `json:"user_description,omitempty" bson:"user_description,omitempty"`
	Summary          string          `json:"summary" bson:"summary"`
	TablesCount      int             `json:"tables_count" bson:"tables_count"`
	FileHash         string          `json:"file_hash" bson:"file_hash"`
	CleanContent     string          `json:"clean_content,omitempty" bson:"clean_content,omitempty"`
	Analysis         map[string]any  `json:"analysis,omitempty" bson:"analysis,omitempty"`
	Tables           []Table         `json:"tables,omitempty" bson:"tables,omitempty"`
	Charts           []Chart         `json:"charts,omitempty" bson:"charts,omitempty"`
	ImagesAnalysis   []ImageAnalysis `json:"images_analysis,omitempty" bson:"images_analysis,omitempty"`
	OCRMetadata      []OCRResult     `json:"ocr_metadata,omitempty" bson:"ocr_metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at" bson:"created_at"`
}

// IngestSession is the C2 object-store record tracking every document
// ingested under a session id.
type IngestSession struct {
	SessionID   string           `json:"session_id" bson:"session_id"`
	Files       []DocumentRecord `json:"files" bson:"files"`
	FilesCount  int              `json:"files_count" bson:"files_count"`
	Author      string           `json:"author,omitempty" bson:"author,omitempty"`
	CreatedAt   time.Time        `json:"created_at" bson:"created_at"`
	LastUpdated time.Time        `json:"last_updated" bson:"last_updated"`
}

// ChatMessage is one turn of a chat session's transcript.
type ChatMessage struct {
	Role      string    `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// ChatSession is the C2 object-store record tracking a session's chat
// history, separate from its document records.
type ChatSession struct {
	SessionID    string        `json:"session_id" bson:"session_id"`
	Messages     []ChatMessage `json:"messages" bson:"messages"`
	MessageCount int           `json:"message_count" bson:"message_count"`
}

// Extraction is the ephemeral artifact produced by C5 on the artifact
// store: workspace directory, discovered image paths, and identifying
// fields threaded through the rest of the pipeline.
type Extraction struct {
	WorkspaceDir string
	DocID        string
	SourceKind   SourceKind
	ImagePaths   []string
}

// Chunk is a single text+metadata unit ready for embedding and indexing.
type Chunk struct {
	Text     string
	Metadata map[string]any
}
