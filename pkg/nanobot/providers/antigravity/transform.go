// Package antigravity – transform.go
// OpenAI <-> Gemini wire-format translation: message history, tool schemas,
// and response parsing.
package antigravity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hkuds/nanobot/pkg/nanobot/providers"
)

// geminiContent is one turn in the Gemini contents array.
type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type functionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// messagesToGemini converts OpenAI-format messages into Gemini contents plus
// an optional systemInstruction.
//
// Gemini rejects two consecutive turns with the same role, so same-role
// turns are merged. functionResponse parts must not share a user turn with
// text parts (Claude models reject mixed content); when a merge would mix
// them, a synthetic model turn {"text":"OK."} is inserted to preserve role
// alternation instead.
func messagesToGemini(messages []providers.Message) ([]geminiContent, *geminiContent) {
	var systemParts []geminiPart
	var contents []geminiContent

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if msg.Content != "" {
				systemParts = append(systemParts, geminiPart{Text: msg.Content})
			}
			continue

		case "assistant":
			var parts []geminiPart
			if msg.Content != "" {
				parts = append(parts, geminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := parseArgs(tc.Function.Arguments)
				id := tc.ID
				if id == "" {
					id = "tc_" + hex12()
				}
				parts = append(parts, geminiPart{FunctionCall: &functionCall{
					ID:   id,
					Name: tc.Function.Name,
					Args: args,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, geminiContent{Role: "model", Parts: parts})
			}

		case "tool":
			name := msg.Name
			if name == "" {
				name = msg.ToolCallID
			}
			id := msg.ToolCallID
			if id == "" {
				id = "tc_" + hex12()
			}
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &functionResponse{
					ID:       id,
					Name:     name,
					Response: map[string]any{"result": msg.Content},
				},
			}}})

		default: // user
			if msg.Content != "" {
				contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
			}
		}
	}

	merged := mergeContents(contents)

	var system *geminiContent
	if len(systemParts) > 0 {
		system = &geminiContent{Role: "user", Parts: systemParts}
	}
	return merged, system
}

func mergeContents(contents []geminiContent) []geminiContent {
	var merged []geminiContent
	for _, entry := range contents {
		if len(merged) > 0 && merged[len(merged)-1].Role == entry.Role {
			prev := &merged[len(merged)-1]
			if hasFunctionResponse(prev.Parts) != hasFunctionResponse(entry.Parts) {
				merged = append(merged, geminiContent{Role: "model", Parts: []geminiPart{{Text: "OK."}}})
				merged = append(merged, entry)
			} else {
				prev.Parts = append(prev.Parts, entry.Parts...)
			}
		} else {
			merged = append(merged, entry)
		}
	}
	return merged
}

func hasFunctionResponse(parts []geminiPart) bool {
	for _, p := range parts {
		if p.FunctionResponse != nil {
			return true
		}
	}
	return false
}

func parseArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}

// toolsToGemini converts tool definitions into the Gemini
// functionDeclarations wrapper, sanitizing each parameter schema.
func toolsToGemini(tools []providers.ToolDef) []map[string]any {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		decl := map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
		}
		if tool.Parameters != nil {
			decl["parameters"] = sanitizeSchema(tool.Parameters)
		}
		declarations = append(declarations, decl)
	}
	return []map[string]any{{"functionDeclarations": declarations}}
}

var compositionKeys = map[string]bool{"anyOf": true, "oneOf": true, "allOf": true}

// sanitizeSchema recursively strips JSON Schema keys the Gemini API
// rejects. const becomes enum:[value]; allOf merges its members; anyOf and
// oneOf collapse to the first non-null branch, keeping sibling keys.
func sanitizeSchema(schema any) any {
	obj, ok := schema.(map[string]any)
	if !ok {
		return schema
	}

	obj = resolveComposition(obj)

	result := make(map[string]any, len(obj))
	for key, value := range obj {
		if rejectedSchemaKeys[key] {
			if key == "const" {
				result["enum"] = []any{value}
			}
			continue
		}
		if compositionKeys[key] {
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			result[key] = sanitizeSchema(v)
		case []any:
			items := make([]any, len(v))
			for i, item := range v {
				if m, ok := item.(map[string]any); ok {
					items[i] = sanitizeSchema(m)
				} else {
					items[i] = item
				}
			}
			result[key] = items
		default:
			result[key] = value
		}
	}
	return result
}

// resolveComposition flattens anyOf/oneOf/allOf into a schema Gemini accepts.
func resolveComposition(schema map[string]any) map[string]any {
	if raw, ok := schema["allOf"]; ok {
		if items, ok := raw.([]any); ok && len(items) > 0 {
			merged := make(map[string]any, len(schema))
			for k, v := range schema {
				if k != "allOf" {
					merged[k] = v
				}
			}
			for _, item := range items {
				sub, ok := item.(map[string]any)
				if !ok {
					continue
				}
				for k, v := range sub {
					switch {
					case k == "properties" && merged[k] != nil:
						dst, ok1 := merged[k].(map[string]any)
						src, ok2 := v.(map[string]any)
						if ok1 && ok2 {
							combined := make(map[string]any, len(dst)+len(src))
							for pk, pv := range dst {
								combined[pk] = pv
							}
							for pk, pv := range src {
								combined[pk] = pv
							}
							merged[k] = combined
						} else {
							merged[k] = v
						}
					case k == "required" && merged[k] != nil:
						merged[k] = unionStrings(merged[k], v)
					default:
						merged[k] = v
					}
				}
			}
			return merged
		}
	}

	for _, key := range []string{"anyOf", "oneOf"} {
		raw, ok := schema[key]
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if !ok || len(items) == 0 {
			continue
		}
		// Skip null-type branches; they encode "optional" in OpenAI schemas.
		var chosen map[string]any
		for _, item := range items {
			if m, ok := item.(map[string]any); ok && m["type"] != "null" {
				chosen = m
				break
			}
		}
		if chosen == nil {
			chosen, _ = items[0].(map[string]any)
		}
		if chosen != nil {
			base := make(map[string]any, len(schema))
			for k, v := range schema {
				if !compositionKeys[k] {
					base[k] = v
				}
			}
			for k, v := range chosen {
				base[k] = v
			}
			return base
		}
	}

	return schema
}

func unionStrings(a, b any) []any {
	seen := make(map[string]bool)
	var out []any
	for _, list := range []any{a, b} {
		items, ok := list.([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, item)
		}
	}
	return out
}

// ── Response parsing ───────────────────────────────────────────────────

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *usageMetadata    `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// responseEnvelope is the v1internal wrapper:
// {"response": {...}, "traceId": "...", "metadata": {}}.
// Some responses carry candidates at the top level instead.
type responseEnvelope struct {
	Response *geminiResponse `json:"response"`
	geminiResponse
}

func (e *responseEnvelope) unwrap() *geminiResponse {
	if e.Response != nil {
		return e.Response
	}
	return &e.geminiResponse
}

// parseResponse converts a decoded Gemini response into an LLMResponse.
// Parts flagged thought:true become ReasoningContent; functionCall parts
// become tool call requests with fresh ag_ ids.
func parseResponse(data []byte) (*providers.LLMResponse, error) {
	var envelope responseEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	resp := envelope.unwrap()

	if len(resp.Candidates) == 0 {
		return &providers.LLMResponse{FinishReason: "error"}, nil
	}

	candidate := resp.Candidates[0]
	out := &providers.LLMResponse{
		FinishReason: mapFinishReason(candidate.FinishReason),
	}

	var contentParts []string
	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			out.ToolCalls = append(out.ToolCalls, providers.ToolCallRequest{
				ID:        "ag_" + hex12(),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		case part.Thought:
			out.ReasoningContent = part.Text
		case part.Text != "":
			contentParts = append(contentParts, part.Text)
		}
	}
	out.Content = strings.Join(contentParts, "\n")

	if resp.UsageMetadata != nil {
		out.Usage = providers.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

// streamDelta is one parsed SSE event.
type streamDelta struct {
	Content      string
	Reasoning    string
	ToolCalls    []providers.ToolCallRequest
	FinishReason string
	Usage        *providers.Usage
}

// parseSSEChunk parses one `data:` event payload from streamGenerateContent.
func parseSSEChunk(data []byte) (*streamDelta, error) {
	var envelope responseEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode sse chunk: %w", err)
	}
	resp := envelope.unwrap()

	delta := &streamDelta{}
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				delta.ToolCalls = append(delta.ToolCalls, providers.ToolCallRequest{
					ID:        "ag_" + hex12(),
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			case part.Thought:
				delta.Reasoning = part.Text
			case part.Text != "":
				delta.Content = part.Text
			}
		}
		if candidate.FinishReason != "" {
			delta.FinishReason = mapFinishReason(candidate.FinishReason)
		}
	}

	if resp.UsageMetadata != nil {
		delta.Usage = &providers.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return delta, nil
}

func mapFinishReason(reason string) string {
	switch reason {
	case "STOP", "FINISH_REASON_UNSPECIFIED", "":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

func hex12() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
