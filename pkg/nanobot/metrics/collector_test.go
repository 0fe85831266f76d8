package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRecordAndRead(t *testing.T) {
	c := NewCollector(t.TempDir(), true)

	c.RecordToolEvent(ToolEvent{TS: Now(), SessionID: "s1", ToolName: "exec", ToolSuccess: true, LatencyMS: 12})
	c.RecordToolEvent(ToolEvent{TS: Now(), SessionID: "s1", ToolName: "read_file", ToolSuccess: false, Error: "no such file"})
	c.RecordLLMEvent(LLMEvent{TS: Now(), SessionID: "s1", Model: "claude-sonnet-4-5", TotalTokens: 100})
	c.RecordSession(SessionSummary{SessionID: "s1", StartedAt: Now(), Success: true})

	tools := c.ReadToolEvents(0)
	if len(tools) != 2 {
		t.Fatalf("tool events = %d, want 2", len(tools))
	}
	if tools[0].ToolName != "exec" || tools[1].Error != "no such file" {
		t.Errorf("tool events = %+v", tools)
	}
	if llm := c.ReadLLMEvents(0); len(llm) != 1 || llm[0].TotalTokens != 100 {
		t.Errorf("llm events = %+v", llm)
	}
	if sessions := c.ReadSessions(0); len(sessions) != 1 || !sessions[0].Success {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestReadLimit(t *testing.T) {
	c := NewCollector(t.TempDir(), true)
	for i := 0; i < 5; i++ {
		c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: fmt.Sprintf("tool%d", i)})
	}
	got := c.ReadToolEvents(2)
	if len(got) != 2 {
		t.Fatalf("limited read = %d events", len(got))
	}
	if got[0].ToolName != "tool3" || got[1].ToolName != "tool4" {
		t.Errorf("kept wrong tail: %+v", got)
	}
}

func TestDisabledCollectorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	c := NewCollector(dir, false)
	c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: "exec"})
	if events := c.ReadToolEvents(0); len(events) != 0 {
		t.Errorf("disabled collector recorded %d events", len(events))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("disabled collector created files: %v", entries)
	}
}

func TestCorruptLinesSkipped(t *testing.T) {
	dir := t.TempDir()
	c := NewCollector(dir, true)
	c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: "good"})

	f, err := os.OpenFile(filepath.Join(dir, toolEventsFile), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{truncated gar\n")
	f.Close()
	c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: "also-good"})

	events := c.ReadToolEvents(0)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (corrupt line skipped)", len(events))
	}
	if events[1].ToolName != "also-good" {
		t.Errorf("events = %+v", events)
	}
}

func TestConcurrentWrites(t *testing.T) {
	c := NewCollector(t.TempDir(), true)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: fmt.Sprintf("t%d", n)})
		}(i)
	}
	wg.Wait()

	if events := c.ReadToolEvents(0); len(events) != 20 {
		t.Errorf("events = %d, want 20", len(events))
	}
}

func TestReset(t *testing.T) {
	c := NewCollector(t.TempDir(), true)
	c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: "exec"})
	c.RecordSession(SessionSummary{SessionID: "s", StartedAt: Now()})

	if err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	if len(c.ReadToolEvents(0)) != 0 || len(c.ReadSessions(0)) != 0 {
		t.Error("events survived reset")
	}
	// Resetting again with no files is fine.
	if err := c.Reset(); err != nil {
		t.Errorf("second reset: %v", err)
	}
}

func TestSummaryWindow(t *testing.T) {
	c := NewCollector(t.TempDir(), true)

	old := time.Now().Add(-48 * time.Hour).Format(time.RFC3339Nano)
	c.RecordSession(SessionSummary{SessionID: "old", StartedAt: old, Success: true, TotalTokens: 500})
	c.RecordSession(SessionSummary{SessionID: "new", StartedAt: Now(), Success: true, TotalIterations: 4, TotalTokens: 100})
	c.RecordSession(SessionSummary{SessionID: "new2", StartedAt: Now(), Success: false, TotalIterations: 2, TotalTokens: 300})
	c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: "exec", ToolSuccess: true})
	c.RecordLLMEvent(LLMEvent{TS: Now(), Model: "m"})

	report := Summary(c, 24)
	if report.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2 (48h-old session excluded)", report.TotalSessions)
	}
	if report.SuccessRate != 50.0 {
		t.Errorf("SuccessRate = %v", report.SuccessRate)
	}
	if report.AvgIterations != 3.0 {
		t.Errorf("AvgIterations = %v", report.AvgIterations)
	}
	if report.TotalTokens != 400 {
		t.Errorf("TotalTokens = %d", report.TotalTokens)
	}
	if report.TotalToolCalls != 1 || report.ToolSuccessRate != 100.0 {
		t.Errorf("tool stats = %d / %v", report.TotalToolCalls, report.ToolSuccessRate)
	}
	if report.TotalLLMCalls != 1 {
		t.Errorf("TotalLLMCalls = %d", report.TotalLLMCalls)
	}
}

func TestToolStatsOrderingAndErrors(t *testing.T) {
	c := NewCollector(t.TempDir(), true)
	for i := 0; i < 3; i++ {
		c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: "busy", ToolSuccess: true, LatencyMS: 10})
	}
	c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: "flaky", ToolSuccess: false, Error: "timeout"})
	c.RecordToolEvent(ToolEvent{TS: Now(), ToolName: "flaky", ToolSuccess: false, Error: "timeout"})

	rows := ToolStats(c, 24)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Tool != "busy" {
		t.Errorf("most-called first: got %q", rows[0].Tool)
	}
	flaky := rows[1]
	if flaky.SuccessRate != 0.0 {
		t.Errorf("flaky success rate = %v", flaky.SuccessRate)
	}
	if flaky.TopErrors["timeout"] != 2 {
		t.Errorf("top errors = %v", flaky.TopErrors)
	}
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	c := NewCollector(t.TempDir(), true)
	c.RecordSession(SessionSummary{SessionID: "first", StartedAt: Now()})
	c.RecordSession(SessionSummary{SessionID: "second", StartedAt: Now()})

	rows := RecentSessions(c, 10)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].SessionID != "second" || rows[1].SessionID != "first" {
		t.Errorf("order = %q, %q", rows[0].SessionID, rows[1].SessionID)
	}
}

func TestModelStats(t *testing.T) {
	c := NewCollector(t.TempDir(), true)
	c.RecordSession(SessionSummary{SessionID: "a", StartedAt: Now(), Model: "claude-sonnet-4-5", Success: true, TotalTokens: 200})
	c.RecordSession(SessionSummary{SessionID: "b", StartedAt: Now(), Model: "claude-sonnet-4-5", Success: false, TotalTokens: 100})
	c.RecordSession(SessionSummary{SessionID: "c", StartedAt: Now(), Model: "gemini-3-flash", Success: true, TotalTokens: 50})

	rows := ModelStats(c, 168)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	claude := rows[0]
	if claude.Model != "claude-sonnet-4-5" {
		t.Fatalf("sorted order: %q first", claude.Model)
	}
	if claude.Sessions != 2 || claude.SuccessRate != 50.0 {
		t.Errorf("claude row = %+v", claude)
	}
	if claude.TokensPerSession != 150 || claude.TokensPerSuccess != 300 {
		t.Errorf("token math = %+v", claude)
	}
}
