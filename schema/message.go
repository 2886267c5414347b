package schema

import "strings"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// Message is the common interface satisfied by every concrete message type.
type Message interface {
	GetRole() Role
	GetContent() []ContentPart
	GetMetadata() map[string]any
	Text() string
}

// Usage reports token accounting for a model call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CachedTokens int
}

func textOf(parts []ContentPart) string {
	var texts []string
	for _, p := range parts {
		if tp, ok := p.(TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// SystemMessage carries instructions that steer the model's behavior.
type SystemMessage struct {
	Parts    []ContentPart
	Metadata map[string]any
}

func (m *SystemMessage) GetRole() Role              { return RoleSystem }
func (m *SystemMessage) GetContent() []ContentPart  { return m.Parts }
func (m *SystemMessage) GetMetadata() map[string]any { return m.Metadata }
func (m *SystemMessage) Text() string               { return textOf(m.Parts) }

// HumanMessage carries end-user input.
type HumanMessage struct {
	Parts    []ContentPart
	Metadata map[string]any
}

func (m *HumanMessage) GetRole() Role              { return RoleHuman }
func (m *HumanMessage) GetContent() []ContentPart  { return m.Parts }
func (m *HumanMessage) GetMetadata() map[string]any { return m.Metadata }
func (m *HumanMessage) Text() string               { return textOf(m.Parts) }

// AIMessage carries a model's response, optionally with tool calls.
type AIMessage struct {
	Parts     []ContentPart
	Metadata  map[string]any
	ToolCalls []ToolCall
	Usage     Usage
	ModelID   string
}

func (m *AIMessage) GetRole() Role              { return RoleAI }
func (m *AIMessage) GetContent() []ContentPart  { return m.Parts }
func (m *AIMessage) GetMetadata() map[string]any { return m.Metadata }
func (m *AIMessage) Text() string               { return textOf(m.Parts) }

// ToolMessage carries the result of a tool invocation back to the model.
type ToolMessage struct {
	Parts      []ContentPart
	Metadata   map[string]any
	ToolCallID string
}

func (m *ToolMessage) GetRole() Role              { return RoleTool }
func (m *ToolMessage) GetContent() []ContentPart  { return m.Parts }
func (m *ToolMessage) GetMetadata() map[string]any { return m.Metadata }
func (m *ToolMessage) Text() string               { return textOf(m.Parts) }

var (
	_ Message = (*SystemMessage)(nil)
	_ Message = (*HumanMessage)(nil)
	_ Message = (*AIMessage)(nil)
	_ Message = (*ToolMessage)(nil)
)

func NewSystemMessage(text string) *SystemMessage {
	return &SystemMessage{Parts: []ContentPart{TextPart{Text: text}}}
}

func NewHumanMessage(text string) *HumanMessage {
	return &HumanMessage{Parts: []ContentPart{TextPart{Text: text}}}
}

func NewAIMessage(text string) *AIMessage {
	return &AIMessage{Parts: []ContentPart{TextPart{Text: text}}}
}

func NewToolMessage(toolCallID, content string) *ToolMessage {
	return &ToolMessage{ToolCallID: toolCallID, Parts: []ContentPart{TextPart{Text: content}}}
}
