// Package metrics – report.go
// Aggregation over the collected JSONL events. Everything works on the
// decoded records directly; no external storage.
package metrics

import (
	"sort"
	"time"
)

// SummaryReport is the high-level rollup for one period.
type SummaryReport struct {
	PeriodHours        float64 `json:"period_hours"`
	TotalSessions      int     `json:"total_sessions"`
	SuccessRate        float64 `json:"success_rate"`
	AvgIterations      float64 `json:"avg_iterations_per_session"`
	TotalPromptTokens  int     `json:"total_prompt_tokens"`
	TotalComplTokens   int     `json:"total_completion_tokens"`
	TotalTokens        int     `json:"total_tokens"`
	AvgTokensPerRun    int     `json:"avg_tokens_per_session"`
	TokensPerSuccess   int     `json:"tokens_per_success"`
	TotalToolCalls     int     `json:"total_tool_calls"`
	ToolSuccessRate    float64 `json:"tool_success_rate"`
	TotalLLMCalls      int     `json:"total_llm_calls"`
}

// ToolReportRow is the per-tool breakdown.
type ToolReportRow struct {
	Tool          string         `json:"tool"`
	Calls         int            `json:"calls"`
	SuccessRate   float64        `json:"success_rate"`
	AvgLatencyMS  int64          `json:"avg_latency_ms"`
	AvgInputSize  int            `json:"avg_input_size"`
	AvgOutputSize int            `json:"avg_output_size"`
	TopErrors     map[string]int `json:"top_errors"`
}

// SessionReportRow is one recent session.
type SessionReportRow struct {
	SessionID     string   `json:"session_id"`
	StartedAt     string   `json:"started_at"`
	Success       bool     `json:"success"`
	Iterations    int      `json:"iterations"`
	ToolCalls     int      `json:"tool_calls"`
	TotalTokens   int      `json:"total_tokens"`
	DurationMS    int64    `json:"duration_ms"`
	Model         string   `json:"model"`
	ToolsUsed     []string `json:"tools_used"`
	FailureReason string   `json:"failure_reason,omitempty"`
}

// ModelReportRow compares token efficiency across models.
type ModelReportRow struct {
	Model            string  `json:"model"`
	Sessions         int     `json:"sessions"`
	SuccessRate      float64 `json:"success_rate"`
	TotalTokens      int     `json:"total_tokens"`
	TokensPerSession int     `json:"tokens_per_session"`
	TokensPerSuccess int     `json:"tokens_per_success"`
}

// sinceCutoff formats the lexical timestamp cutoff for an hours window.
func sinceCutoff(hours float64) string {
	return time.Now().Add(-time.Duration(hours * float64(time.Hour))).Format(time.RFC3339Nano)
}

// Summary rolls up sessions, LLM calls, and tool calls over the last
// hours hours.
func Summary(c *Collector, hours float64) SummaryReport {
	cutoff := sinceCutoff(hours)

	var sessions []SessionSummary
	for _, s := range c.ReadSessions(0) {
		if s.StartedAt >= cutoff {
			sessions = append(sessions, s)
		}
	}
	var llmCalls int
	for _, e := range c.ReadLLMEvents(0) {
		if e.TS >= cutoff {
			llmCalls++
		}
	}
	var toolCalls, toolOK int
	for _, e := range c.ReadToolEvents(0) {
		if e.TS >= cutoff {
			toolCalls++
			if e.ToolSuccess {
				toolOK++
			}
		}
	}

	report := SummaryReport{PeriodHours: hours, TotalSessions: len(sessions), TotalLLMCalls: llmCalls, TotalToolCalls: toolCalls}

	var successes, iterations int
	for _, s := range sessions {
		if s.Success {
			successes++
		}
		iterations += s.TotalIterations
		report.TotalPromptTokens += s.TotalPromptTokens
		report.TotalComplTokens += s.TotalCompletionTokens
		report.TotalTokens += s.TotalTokens
	}
	if len(sessions) > 0 {
		report.SuccessRate = round1(float64(successes) / float64(len(sessions)) * 100)
		report.AvgIterations = round1(float64(iterations) / float64(len(sessions)))
		report.AvgTokensPerRun = report.TotalTokens / len(sessions)
	}
	if successes > 0 {
		report.TokensPerSuccess = report.TotalTokens / successes
	}
	if toolCalls > 0 {
		report.ToolSuccessRate = round1(float64(toolOK) / float64(toolCalls) * 100)
	}
	return report
}

// ToolStats breaks tool events down per tool, most-called first, with the
// three most frequent error prefixes per tool.
func ToolStats(c *Collector, hours float64) []ToolReportRow {
	cutoff := sinceCutoff(hours)
	byTool := make(map[string][]ToolEvent)
	for _, e := range c.ReadToolEvents(0) {
		if e.TS >= cutoff {
			byTool[e.ToolName] = append(byTool[e.ToolName], e)
		}
	}

	rows := make([]ToolReportRow, 0, len(byTool))
	for name, events := range byTool {
		row := ToolReportRow{Tool: name, Calls: len(events), TopErrors: map[string]int{}}
		var ok int
		var latency int64
		var inSize, outSize int
		errCounts := make(map[string]int)
		for _, e := range events {
			if e.ToolSuccess {
				ok++
			}
			latency += e.LatencyMS
			inSize += e.InputSize
			outSize += e.OutputSize
			if e.Error != "" {
				errCounts[truncate(e.Error, 120)]++
			}
		}
		row.SuccessRate = round1(float64(ok) / float64(len(events)) * 100)
		row.AvgLatencyMS = latency / int64(len(events))
		row.AvgInputSize = inSize / len(events)
		row.AvgOutputSize = outSize / len(events)
		row.TopErrors = topN(errCounts, 3)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Calls != rows[j].Calls {
			return rows[i].Calls > rows[j].Calls
		}
		return rows[i].Tool < rows[j].Tool
	})
	return rows
}

// RecentSessions returns the last n session summaries, newest first.
func RecentSessions(c *Collector, n int) []SessionReportRow {
	sessions := c.ReadSessions(n)
	rows := make([]SessionReportRow, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		rows = append(rows, SessionReportRow{
			SessionID:     s.SessionID,
			StartedAt:     s.StartedAt,
			Success:       s.Success,
			Iterations:    s.TotalIterations,
			ToolCalls:     s.TotalToolCalls,
			TotalTokens:   s.TotalTokens,
			DurationMS:    s.DurationMS,
			Model:         s.Model,
			ToolsUsed:     s.ToolsUsed,
			FailureReason: s.FailureReason,
		})
	}
	return rows
}

// ModelStats compares models over the last hours hours (default window is
// a week; the CLI passes 168).
func ModelStats(c *Collector, hours float64) []ModelReportRow {
	cutoff := sinceCutoff(hours)
	byModel := make(map[string][]SessionSummary)
	for _, s := range c.ReadSessions(0) {
		if s.StartedAt >= cutoff {
			byModel[s.Model] = append(byModel[s.Model], s)
		}
	}

	models := make([]string, 0, len(byModel))
	for model := range byModel {
		models = append(models, model)
	}
	sort.Strings(models)

	rows := make([]ModelReportRow, 0, len(models))
	for _, model := range models {
		sessions := byModel[model]
		var ok, tokens int
		for _, s := range sessions {
			if s.Success {
				ok++
			}
			tokens += s.TotalTokens
		}
		row := ModelReportRow{
			Model:            model,
			Sessions:         len(sessions),
			SuccessRate:      round1(float64(ok) / float64(len(sessions)) * 100),
			TotalTokens:      tokens,
			TokensPerSession: tokens / len(sessions),
		}
		if ok > 0 {
			row.TokensPerSuccess = tokens / ok
		}
		rows = append(rows, row)
	}
	return rows
}

func topN(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	sorted := make([]kv, 0, len(counts))
	for k, v := range counts {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].v != sorted[j].v {
			return sorted[i].v > sorted[j].v
		}
		return sorted[i].k < sorted[j].k
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make(map[string]int, len(sorted))
	for _, e := range sorted {
		out[e.k] = e.v
	}
	return out
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
