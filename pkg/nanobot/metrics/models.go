// Package metrics – models.go
// Event records written to the JSONL metrics files. Timestamps are
// RFC 3339 strings so the since-filter can compare them lexically.
package metrics

import "time"

// ToolEvent is one tool invocation.
type ToolEvent struct {
	TS          string `json:"ts"`
	SessionID   string `json:"session_id"`
	ToolName    string `json:"tool_name"`
	ToolSuccess bool   `json:"tool_success"`
	LatencyMS   int64  `json:"latency_ms"`
	InputSize   int    `json:"input_size"`
	OutputSize  int    `json:"output_size"`
	Error       string `json:"error,omitempty"`
	Iteration   int    `json:"iteration"`
}

// LLMEvent is one LLM API call.
type LLMEvent struct {
	TS               string `json:"ts"`
	SessionID        string `json:"session_id"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	HasToolCalls     bool   `json:"has_tool_calls"`
	NumToolCalls     int    `json:"num_tool_calls"`
	LatencyMS        int64  `json:"latency_ms"`
	Iteration        int    `json:"iteration"`
	FinishReason     string `json:"finish_reason"`
}

// SessionSummary is the end-of-session aggregate record.
type SessionSummary struct {
	SessionID             string   `json:"session_id"`
	StartedAt             string   `json:"started_at"`
	EndedAt               string   `json:"ended_at"`
	DurationMS            int64    `json:"duration_ms"`
	Success               bool     `json:"success"`
	TotalIterations       int      `json:"total_iterations"`
	TotalToolCalls        int      `json:"total_tool_calls"`
	TotalLLMCalls         int      `json:"total_llm_calls"`
	TotalPromptTokens     int      `json:"total_prompt_tokens"`
	TotalCompletionTokens int      `json:"total_completion_tokens"`
	TotalTokens           int      `json:"total_tokens"`
	ToolsUsed             []string `json:"tools_used"`
	FailureReason         string   `json:"failure_reason,omitempty"`
	TaskType              string   `json:"task_type,omitempty"`
	Channel               string   `json:"channel"`
	Model                 string   `json:"model"`
}

// Now formats the current time for event timestamps.
func Now() string {
	return time.Now().Format(time.RFC3339Nano)
}
