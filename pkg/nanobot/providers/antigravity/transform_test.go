package antigravity

import (
	"strings"
	"testing"

	"github.com/hkuds/nanobot/pkg/nanobot/providers"
)

func TestMessagesToGeminiRoles(t *testing.T) {
	contents, system := messagesToGemini([]providers.Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "bye"},
	})

	if system == nil || system.Parts[0].Text != "be helpful" {
		t.Fatalf("system instruction not extracted: %+v", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	wantRoles := []string{"user", "model", "user"}
	for i, want := range wantRoles {
		if contents[i].Role != want {
			t.Errorf("contents[%d].Role = %q, want %q", i, contents[i].Role, want)
		}
	}
}

func TestMessagesToGeminiMergesSameRole(t *testing.T) {
	contents, _ := messagesToGemini([]providers.Message{
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
	})
	if len(contents) != 1 {
		t.Fatalf("expected merged single turn, got %d", len(contents))
	}
	if len(contents[0].Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(contents[0].Parts))
	}
}

func TestMessagesToGeminiToolResponseSeparator(t *testing.T) {
	// A tool result followed by a user text message must not share a turn;
	// a synthetic model turn keeps role alternation intact.
	contents, _ := messagesToGemini([]providers.Message{
		{Role: "user", Content: "run it"},
		{Role: "assistant", ToolCalls: []providers.ToolCall{{
			ID: "tc_1", Function: providers.FunctionCall{Name: "exec", Arguments: `{"command":"ls"}`},
		}}},
		{Role: "tool", ToolCallID: "tc_1", Name: "exec", Content: "file.txt"},
		{Role: "user", Content: "thanks"},
	})

	wantRoles := []string{"user", "model", "user", "model", "user"}
	if len(contents) != len(wantRoles) {
		t.Fatalf("expected %d turns, got %d: %+v", len(wantRoles), len(contents), contents)
	}
	for i, want := range wantRoles {
		if contents[i].Role != want {
			t.Errorf("turn %d role = %q, want %q", i, contents[i].Role, want)
		}
	}
	if contents[3].Parts[0].Text != "OK." {
		t.Errorf("separator turn text = %q, want OK.", contents[3].Parts[0].Text)
	}
	fr := contents[2].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "exec" || fr.Response["result"] != "file.txt" {
		t.Errorf("functionResponse = %+v", fr)
	}
}

func TestMessagesToGeminiToolCallArgs(t *testing.T) {
	contents, _ := messagesToGemini([]providers.Message{
		{Role: "assistant", ToolCalls: []providers.ToolCall{{
			Function: providers.FunctionCall{Name: "read_file", Arguments: `{"path":"a.txt"}`},
		}}},
	})
	if len(contents) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(contents))
	}
	fc := contents[0].Parts[0].FunctionCall
	if fc == nil || fc.Name != "read_file" {
		t.Fatalf("functionCall = %+v", fc)
	}
	if fc.Args["path"] != "a.txt" {
		t.Errorf("args = %v", fc.Args)
	}
	if fc.ID == "" {
		t.Error("expected a generated tool call id")
	}
}

func TestSanitizeSchemaStripsRejectedKeys(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"title":    "Params",
		"$defs":    map[string]any{"x": map[string]any{}},
		"default":  map[string]any{},
		"examples": []any{"a"},
		"properties": map[string]any{
			"mode": map[string]any{"const": "fast"},
		},
	}

	out, ok := sanitizeSchema(schema).(map[string]any)
	if !ok {
		t.Fatal("sanitizeSchema did not return an object")
	}
	for _, key := range []string{"title", "$defs", "default", "examples"} {
		if _, present := out[key]; present {
			t.Errorf("key %q survived sanitization", key)
		}
	}
	mode := out["properties"].(map[string]any)["mode"].(map[string]any)
	enum, ok := mode["enum"].([]any)
	if !ok || len(enum) != 1 || enum[0] != "fast" {
		t.Errorf("const not converted to enum: %v", mode)
	}
}

func TestSanitizeSchemaAllOfMerge(t *testing.T) {
	schema := map[string]any{
		"allOf": []any{
			map[string]any{
				"type":       "object",
				"properties": map[string]any{"a": map[string]any{"type": "string"}},
				"required":   []any{"a"},
			},
			map[string]any{
				"properties": map[string]any{"b": map[string]any{"type": "number"}},
				"required":   []any{"b"},
			},
		},
	}

	out := sanitizeSchema(schema).(map[string]any)
	props := out["properties"].(map[string]any)
	if _, ok := props["a"]; !ok {
		t.Error("property a lost in allOf merge")
	}
	if _, ok := props["b"]; !ok {
		t.Error("property b lost in allOf merge")
	}
	required := out["required"].([]any)
	if len(required) != 2 {
		t.Errorf("required = %v, want both a and b", required)
	}
}

func TestSanitizeSchemaAnyOfPicksNonNull(t *testing.T) {
	schema := map[string]any{
		"description": "optional name",
		"anyOf": []any{
			map[string]any{"type": "null"},
			map[string]any{"type": "string"},
		},
	}

	out := sanitizeSchema(schema).(map[string]any)
	if out["type"] != "string" {
		t.Errorf("type = %v, want string", out["type"])
	}
	if out["description"] != "optional name" {
		t.Error("sibling key dropped when collapsing anyOf")
	}
	if _, ok := out["anyOf"]; ok {
		t.Error("anyOf survived sanitization")
	}
}

func TestParseResponseEnvelope(t *testing.T) {
	data := []byte(`{"response":{"candidates":[{"content":{"role":"model","parts":[
		{"text":"thinking...","thought":true},
		{"text":"Hello there"}
	]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}}`)

	resp, err := parseResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Hello there" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.ReasoningContent != "thinking..." {
		t.Errorf("ReasoningContent = %q", resp.ReasoningContent)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestParseResponseTopLevelCandidates(t *testing.T) {
	data := []byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"plain"}]},"finishReason":"MAX_TOKENS"}]}`)

	resp, err := parseResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "plain" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "length" {
		t.Errorf("FinishReason = %q, want length", resp.FinishReason)
	}
}

func TestParseResponseToolCalls(t *testing.T) {
	data := []byte(`{"response":{"candidates":[{"content":{"role":"model","parts":[
		{"functionCall":{"name":"send_message","args":{"content":"hi"}}}
	]},"finishReason":"STOP"}]}}`)

	resp, err := parseResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "send_message" || tc.Arguments["content"] != "hi" {
		t.Errorf("tool call = %+v", tc)
	}
	if !strings.HasPrefix(tc.ID, "ag_") || len(tc.ID) != len("ag_")+12 {
		t.Errorf("tool call id = %q", tc.ID)
	}
}

func TestParseResponseNoCandidates(t *testing.T) {
	resp, err := parseResponse([]byte(`{"response":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.FinishReason != "error" {
		t.Errorf("FinishReason = %q, want error", resp.FinishReason)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := map[string]string{
		"STOP":                      "stop",
		"FINISH_REASON_UNSPECIFIED": "stop",
		"":                          "stop",
		"MAX_TOKENS":                "length",
		"SAFETY":                    "content_filter",
		"RECITATION":                "content_filter",
		"SOMETHING_NEW":             "stop",
	}
	for in, want := range cases {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToolsToGemini(t *testing.T) {
	out := toolsToGemini([]providers.ToolDef{{
		Name:        "exec",
		Description: "run a command",
		Parameters: map[string]any{
			"type":       "object",
			"title":      "ExecParams",
			"properties": map[string]any{"command": map[string]any{"type": "string"}},
		},
	}})

	if len(out) != 1 {
		t.Fatalf("expected 1 wrapper, got %d", len(out))
	}
	decls := out[0]["functionDeclarations"].([]map[string]any)
	if decls[0]["name"] != "exec" {
		t.Errorf("declaration = %+v", decls[0])
	}
	params := decls[0]["parameters"].(map[string]any)
	if _, ok := params["title"]; ok {
		t.Error("parameters not sanitized")
	}
}

func TestParseSSEChunk(t *testing.T) {
	delta, err := parseSSEChunk([]byte(`{"response":{"candidates":[{"content":{"parts":[{"text":"chunk"}]}}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if delta.Content != "chunk" {
		t.Errorf("Content = %q", delta.Content)
	}
	if delta.FinishReason != "" {
		t.Errorf("FinishReason = %q, want empty mid-stream", delta.FinishReason)
	}
}
