// Package providers – provider.go
// The LLM provider contract. Messages use the OpenAI chat shape; concrete
// providers translate to their own wire format.
package providers

import "context"

// Message is one turn in an OpenAI-shaped conversation.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is an assistant-issued call in the serialized message history.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded
}

// ToolDef describes a callable tool offered to the model.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCallRequest is a parsed tool invocation from a model response.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Usage is the token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is a completed (non-streaming) model turn.
type LLMResponse struct {
	Content          string            `json:"content"`
	ReasoningContent string            `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallRequest `json:"tool_calls,omitempty"`
	FinishReason     string            `json:"finish_reason"`
	Usage            Usage             `json:"usage"`
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *LLMResponse) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// StreamChunk is one increment of a streaming completion: text or
// reasoning deltas, tool calls as they appear, and the finish reason and
// usage from the final frame. Done is sent as the last chunk; Err
// terminates the stream early.
type StreamChunk struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCallRequest
	FinishReason string
	Usage        *Usage
	Done         bool
	Err          error
}

// ChatOptions tune a single completion request.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

// LLMProvider is the pluggable model backend.
type LLMProvider interface {
	// Chat runs one completion and returns the full response.
	Chat(ctx context.Context, messages []Message, tools []ToolDef, model string, opts ChatOptions) (*LLMResponse, error)

	// StreamChat runs one completion, emitting text increments as they
	// arrive. The channel is closed after the Done or Err chunk.
	StreamChat(ctx context.Context, messages []Message, tools []ToolDef, model string, opts ChatOptions) (<-chan StreamChunk, error)
}
