// Package query implements the Query Engine (C11): the chat service that
// probes the response cache, runs context retrieval and history fetch in
// parallel, assembles a prompt, calls the chat LLM, persists the turn, and
// writes the result back to the cache.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/veridex/veridex/cache"
	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/objectstore"
	"github.com/veridex/veridex/rag/embedding"
	"github.com/veridex/veridex/rag/vectorstore"
	"github.com/veridex/veridex/schema"
)

// DefaultK is the number of context chunks retrieved when Input.K is zero.
const DefaultK = 4

// MinK and MaxK bound Input.K, matching the HTTP surface's 1-10 clamp.
const (
	MinK = 1
	MaxK = 10
)

// DefaultMaxTurns bounds how many prior chat turns are read for history,
// matching the response cache and prompt budget.
const DefaultMaxTurns = 5

// defaultSessionID is the sentinel session that never tracks or reads
// history, matching spec.md's "session_id != default" history gate.
const defaultSessionID = "default"

const systemPrompt = "You are a helpful assistant answering questions about the user's documents. " +
	"Use the provided context to answer accurately. If the context does not contain the answer, say so."

const noContextSentinel = "No relevant context found."

// Input is one chat request.
type Input struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
	K          int    `json:"k,omitempty"`
	UseHistory bool   `json:"use_history"`
}

// Result is the outcome of a Chat call.
type Result struct {
	Answer       string            `json:"answer"`
	Sources      []schema.Document `json:"sources"`
	SessionID    string            `json:"session_id"`
	ContextFound bool              `json:"context_found"`
	LatencyMS    int64             `json:"latency_ms"`
	Cached       bool              `json:"_cached,omitempty"`
	Error        bool              `json:"error,omitempty"`
}

// Config wires an Engine to its collaborators.
type Config struct {
	VectorStore   vectorstore.VectorStore
	ObjectStore   objectstore.ObjectStore
	ResponseCache *cache.ResponseCache
	Embedder      embedding.Embedder
	Model         llm.ChatModel

	// MaxTurns bounds how many prior chat turns are read for history. Zero
	// falls back to DefaultMaxTurns.
	MaxTurns int
}

// Engine runs the C11 chat algorithm.
type Engine struct {
	vs       vectorstore.VectorStore
	os       objectstore.ObjectStore
	rc       *cache.ResponseCache
	embedder embedding.Embedder
	model    llm.ChatModel
	maxTurns int
}

// New constructs an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.VectorStore == nil {
		return nil, fmt.Errorf("query: VectorStore is required")
	}
	if cfg.ObjectStore == nil {
		return nil, fmt.Errorf("query: ObjectStore is required")
	}
	if cfg.ResponseCache == nil {
		return nil, fmt.Errorf("query: ResponseCache is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("query: Embedder is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("query: Model is required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Engine{
		vs:       cfg.VectorStore,
		os:       cfg.ObjectStore,
		rc:       cfg.ResponseCache,
		embedder: cfg.Embedder,
		model:    cfg.Model,
		maxTurns: maxTurns,
	}, nil
}

// fetchResult bundles the parallel context+history fetch's two outcomes.
type fetchResult struct {
	docs    []schema.Document
	docsErr error
	history []schema.ChatMessage
	histErr error
}

// Chat runs the full C11 algorithm over in.
func (e *Engine) Chat(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	in = normalizeInput(in)

	queryEmbedding, err := e.embedder.EmbedSingle(ctx, in.Message)
	if err != nil {
		return Result{}, fmt.Errorf("query: embed message: %w", err)
	}

	if hit, ok, err := e.rc.Lookup(ctx, in.Message, queryEmbedding, in.SourceID); err == nil && ok {
		if cached, ok := decodeCachedResult(hit.Value); ok {
			cached.Cached = true
			cached.LatencyMS = time.Since(start).Milliseconds()
			return cached, nil
		}
	}

	fetch := e.fetchParallel(ctx, in, queryEmbedding)
	if fetch.docsErr != nil {
		slog.WarnContext(ctx, "query: context retrieval failed, continuing without it", "session_id", in.SessionID, "error", fetch.docsErr)
	}
	if fetch.histErr != nil {
		slog.WarnContext(ctx, "query: history retrieval failed, continuing without it", "session_id", in.SessionID, "error", fetch.histErr)
	}

	answer, errored := e.generate(ctx, in, fetch)

	result := Result{
		Answer:       answer,
		Sources:      fetch.docs,
		SessionID:    in.SessionID,
		ContextFound: len(fetch.docs) > 0,
		Error:        errored,
	}

	if e.tracksHistory(in) {
		now := time.Now().UTC()
		_ = e.os.AppendMessage(ctx, in.SessionID, schema.ChatMessage{Role: "user", Content: in.Message, Timestamp: now})
		_ = e.os.AppendMessage(ctx, in.SessionID, schema.ChatMessage{Role: "assistant", Content: answer, Timestamp: time.Now().UTC()})
	}

	if !errored {
		_ = e.rc.Store(ctx, in.Message, queryEmbedding, in.SourceID, result)
	}

	result.LatencyMS = time.Since(start).Milliseconds()
	return result, nil
}

// normalizeInput applies K defaults/clamping.
func normalizeInput(in Input) Input {
	if in.K <= 0 {
		in.K = DefaultK
	}
	if in.K < MinK {
		in.K = MinK
	}
	if in.K > MaxK {
		in.K = MaxK
	}
	if in.SessionID == "" {
		in.SessionID = defaultSessionID
	}
	return in
}

// tracksHistory reports whether in's session participates in history
// reads/writes at all.
func (e *Engine) tracksHistory(in Input) bool {
	return in.SessionID != defaultSessionID
}

// fetchParallel runs context retrieval and history retrieval concurrently,
// matching spec.md's "parallel fetch" step.
func (e *Engine) fetchParallel(ctx context.Context, in Input, queryEmbedding []float32) fetchResult {
	var res fetchResult
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		opts := []vectorstore.SearchOption{}
		if filter := buildFilter(in); len(filter) > 0 {
			opts = append(opts, vectorstore.WithFilter(filter))
		}
		docs, err := e.vs.Search(ctx, queryEmbedding, in.K, opts...)
		res.docs, res.docsErr = docs, err
	}()

	if in.UseHistory && e.tracksHistory(in) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs, err := e.os.ReadMessages(ctx, in.SessionID, 2*e.maxTurns)
			res.history, res.histErr = msgs, err
		}()
	}

	wg.Wait()
	return res
}

// buildFilter combines session_id/source_id into a single equality filter,
// logical AND when both are given, single equality when one, no filter
// when neither.
func buildFilter(in Input) map[string]any {
	filter := make(map[string]any, 2)
	if in.SessionID != "" && in.SessionID != defaultSessionID {
		filter["session_id"] = in.SessionID
	}
	if in.SourceID != "" {
		filter["source_id"] = in.SourceID
	}
	return filter
}

// generate builds the prompt from fetch's context/history and invokes the
// chat model, returning a degraded answer (with errored=true) on failure
// rather than propagating the error, matching spec.md's "return an error
// answer carrying error=true".
func (e *Engine) generate(ctx context.Context, in Input, fetch fetchResult) (answer string, errored bool) {
	resp, err := e.model.Generate(ctx, buildMessages(in, fetch))
	if err != nil {
		return "I'm sorry, I was unable to generate a response due to an internal error.", true
	}
	return resp.Text(), false
}

// buildMessages assembles the system/history/context/question prompt
// shared by Chat and ChatStream.
func buildMessages(in Input, fetch fetchResult) []schema.Message {
	msgs := []schema.Message{schema.NewSystemMessage(systemPrompt)}
	if block := historyBlock(fetch.history); block != "" {
		msgs = append(msgs, schema.NewSystemMessage(block))
	}
	msgs = append(msgs, schema.NewHumanMessage(contextBlock(fetch.docs)+"\n\n"+in.Message))
	return msgs
}

// ChatStream runs the same retrieval and prompt assembly as Chat but
// streams the model's response token-by-token through onToken, matching
// spec.md's streaming chat variant. It never consults or writes the
// response cache: a partial, in-flight answer is not a cacheable result.
func (e *Engine) ChatStream(ctx context.Context, in Input, onToken func(delta string)) (Result, error) {
	start := time.Now()
	in = normalizeInput(in)

	queryEmbedding, err := e.embedder.EmbedSingle(ctx, in.Message)
	if err != nil {
		return Result{}, fmt.Errorf("query: embed message: %w", err)
	}

	fetch := e.fetchParallel(ctx, in, queryEmbedding)
	if fetch.docsErr != nil {
		slog.WarnContext(ctx, "query: context retrieval failed, continuing without it", "session_id", in.SessionID, "error", fetch.docsErr)
	}
	if fetch.histErr != nil {
		slog.WarnContext(ctx, "query: history retrieval failed, continuing without it", "session_id", in.SessionID, "error", fetch.histErr)
	}

	var answer strings.Builder
	var streamErr error
	for chunk, err := range e.model.Stream(ctx, buildMessages(in, fetch)) {
		if err != nil {
			streamErr = err
			break
		}
		answer.WriteString(chunk.Delta)
		if chunk.Delta != "" {
			onToken(chunk.Delta)
		}
	}

	result := Result{
		Answer:       answer.String(),
		Sources:      fetch.docs,
		SessionID:    in.SessionID,
		ContextFound: len(fetch.docs) > 0,
	}
	if streamErr != nil {
		result.Error = true
		if result.Answer == "" {
			result.Answer = "I'm sorry, I was unable to generate a response due to an internal error."
		}
	}

	if e.tracksHistory(in) {
		now := time.Now().UTC()
		_ = e.os.AppendMessage(ctx, in.SessionID, schema.ChatMessage{Role: "user", Content: in.Message, Timestamp: now})
		_ = e.os.AppendMessage(ctx, in.SessionID, schema.ChatMessage{Role: "assistant", Content: result.Answer, Timestamp: time.Now().UTC()})
	}

	result.LatencyMS = time.Since(start).Milliseconds()
	return result, nil
}

// historyBlock renders msgs as alternating "User: ...\nAssistant: ...\n"
// lines, oldest first. Returns "" when msgs is empty.
func historyBlock(msgs []schema.ChatMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Conversation history:\n")
	for _, m := range msgs {
		label := "User"
		if m.Role == "assistant" {
			label = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, m.Content)
	}
	return sb.String()
}

// decodeCachedResult recovers a Result from a cache hit's value, which is
// the original struct for the inmemory provider but Go's generic JSON
// representation (map[string]any) for the redis provider once round-tripped
// through its JSON codec. Re-marshaling and unmarshaling through Result
// handles both uniformly.
func decodeCachedResult(v any) (Result, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, false
	}
	return result, true
}

// contextBlock joins doc contents with "\n---\n" separators, or returns the
// sentinel when no documents were retrieved.
func contextBlock(docs []schema.Document) string {
	if len(docs) == 0 {
		return noContextSentinel
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return "Context:\n" + strings.Join(parts, "\n---\n")
}
