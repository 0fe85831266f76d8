// Package metrics – collector.go
// Append-only JSONL metrics writer.
//
// Files under the metrics dir:
//
//	tool_events.jsonl — one line per tool invocation
//	llm_events.jsonl  — one line per LLM API call
//	sessions.jsonl    — one line per completed session
package metrics

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	toolEventsFile = "tool_events.jsonl"
	llmEventsFile  = "llm_events.jsonl"
	sessionsFile   = "sessions.jsonl"
)

// Collector appends metrics events to JSONL files. Safe for concurrent
// use; a disabled collector discards everything.
type Collector struct {
	dir     string
	enabled bool
	logger  *slog.Logger

	mu sync.Mutex
}

// NewCollector writes under dir (default ~/.nanobot/metrics).
func NewCollector(dir string, enabled bool) *Collector {
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".nanobot", "metrics")
	}
	return &Collector{
		dir:     dir,
		enabled: enabled,
		logger:  slog.Default().With("component", "metrics"),
	}
}

// Dir returns the metrics directory.
func (c *Collector) Dir() string { return c.dir }

// RecordToolEvent appends a tool invocation record.
func (c *Collector) RecordToolEvent(event ToolEvent) {
	c.append(toolEventsFile, event)
}

// RecordLLMEvent appends an LLM call record.
func (c *Collector) RecordLLMEvent(event LLMEvent) {
	c.append(llmEventsFile, event)
}

// RecordSession appends an end-of-session summary.
func (c *Collector) RecordSession(summary SessionSummary) {
	c.append(sessionsFile, summary)
}

// ReadToolEvents returns stored tool events; limit > 0 keeps the last N.
func (c *Collector) ReadToolEvents(limit int) []ToolEvent {
	var out []ToolEvent
	readLines(filepath.Join(c.dir, toolEventsFile), limit, &out)
	return out
}

// ReadLLMEvents returns stored LLM events; limit > 0 keeps the last N.
func (c *Collector) ReadLLMEvents(limit int) []LLMEvent {
	var out []LLMEvent
	readLines(filepath.Join(c.dir, llmEventsFile), limit, &out)
	return out
}

// ReadSessions returns stored session summaries; limit > 0 keeps the last N.
func (c *Collector) ReadSessions(limit int) []SessionSummary {
	var out []SessionSummary
	readLines(filepath.Join(c.dir, sessionsFile), limit, &out)
	return out
}

// Reset removes all three metrics files.
func (c *Collector) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range []string{toolEventsFile, llmEventsFile, sessionsFile} {
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// append opens, writes one line, and closes; failures are logged, never
// propagated to the caller.
func (c *Collector) append(name string, record any) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("metrics dir create failed", "error", err)
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		c.logger.Warn("metrics encode failed", "file", name, "error", err)
		return
	}
	f, err := os.OpenFile(filepath.Join(c.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.Warn("metrics write failed", "file", name, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		c.logger.Warn("metrics write failed", "file", name, "error", err)
	}
}

// readLines decodes JSONL into *[]T, skipping corrupt lines.
func readLines[T any](path string, limit int, out *[]T) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		*out = append(*out, record)
	}
	if limit > 0 && len(*out) > limit {
		*out = (*out)[len(*out)-limit:]
	}
}
