package schema

import "time"

// StreamChunk is one increment of a streaming ChatModel response.
type StreamChunk struct {
	Delta        string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
	ModelID      string
}

// AgentEvent is a discrete occurrence emitted while an agent or pipeline
// stage runs, used for observability and streaming to callers.
type AgentEvent struct {
	Type      string
	AgentID   string
	Payload   any
	Timestamp time.Time
}
