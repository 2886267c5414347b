package schema

// Document is a retrievable unit held by a vector store: chunk text, its
// embedding, similarity score (when returned from a query), and metadata.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Score     float64
	Embedding []float32
}
