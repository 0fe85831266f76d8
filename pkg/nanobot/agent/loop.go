// Package agent – loop.go
// The agent loop: consumes inbound messages, drives the tool-calling
// cycle against the provider, and persists the conversation.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
	"github.com/hkuds/nanobot/pkg/nanobot/metrics"
	"github.com/hkuds/nanobot/pkg/nanobot/providers"
	"github.com/hkuds/nanobot/pkg/nanobot/session"
	"github.com/hkuds/nanobot/pkg/nanobot/tools"
)

const defaultMaxIterations = 20

// Loop is the core processing engine.
type Loop struct {
	bus           *bus.MessageBus
	provider      providers.LLMProvider
	sessions      *session.Manager
	registry      *tools.Registry
	builder       *ContextBuilder
	collector     *metrics.Collector
	logger        *slog.Logger
	model         string
	maxIterations int

	stopChan chan struct{}
	doneChan chan struct{}
}

// Options for NewLoop. Collector may be nil (metrics off).
type Options struct {
	Bus           *bus.MessageBus
	Provider      providers.LLMProvider
	Sessions      *session.Manager
	Registry      *tools.Registry
	Workspace     string
	Collector     *metrics.Collector
	Model         string
	MaxIterations int
}

func NewLoop(opts Options) *Loop {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Loop{
		bus:           opts.Bus,
		provider:      opts.Provider,
		sessions:      opts.Sessions,
		registry:      opts.Registry,
		builder:       NewContextBuilder(opts.Workspace),
		collector:     opts.Collector,
		logger:        slog.Default().With("component", "agent"),
		model:         opts.Model,
		maxIterations: maxIterations,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Run consumes the inbound queue until Stop. Each message is processed in
// its own goroutine; sessions serialize per key inside the manager.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.doneChan)
	l.logger.Info("agent loop started", "model", l.model, "max_iterations", l.maxIterations)

	inbound := l.bus.ConsumeInbound()
	for {
		select {
		case msg := <-inbound:
			go l.handle(ctx, msg)
		case <-l.stopChan:
			l.logger.Info("agent loop stopping")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts Run and waits for it to exit.
func (l *Loop) Stop() {
	close(l.stopChan)
	<-l.doneChan
}

func (l *Loop) handle(ctx context.Context, msg bus.InboundMessage) {
	reply, err := l.run(ctx, msg.SessionKey(), msg.Channel, msg.ChatID, msg.Content)
	if err != nil {
		l.logger.Error("message processing failed", "session", msg.SessionKey(), "error", err)
		reply = fmt.Sprintf("Sorry, I ran into an error: %v", err)
	}
	if reply != "" {
		l.bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: reply,
		})
	}
}

// ProcessDirect runs one request synchronously and returns the final
// reply. Used by the CLI, the scheduler, and the heartbeat.
func (l *Loop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	return l.run(ctx, sessionKey, channel, chatID, content)
}

// run drives the tool-calling cycle for one request.
func (l *Loop) run(ctx context.Context, sessionKey, channel, chatID, content string) (string, error) {
	started := time.Now()
	l.logger.Info("processing", "session", sessionKey, "channel", channel)

	ctx = tools.WithConvo(ctx, channel, chatID)

	history := l.sessions.History(sessionKey)
	messages := l.builder.BuildMessages(history, content)

	run := runStats{
		sessionKey: sessionKey,
		channel:    channel,
		model:      l.model,
		started:    started,
		toolsUsed:  make(map[string]bool),
	}
	turns := []session.Turn{{Role: "user", Content: content, Timestamp: started}}
	var finalContent, lastContent string
	var runErr error
	completed := false

	for run.iterations < l.maxIterations {
		run.iterations++

		llmStart := time.Now()
		resp, err := l.provider.Chat(ctx, messages, l.registry.Definitions(), l.model, providers.ChatOptions{})
		if err != nil {
			runErr = fmt.Errorf("llm call: %w", err)
			break
		}
		l.recordLLM(&run, resp, time.Since(llmStart))
		if resp.Content != "" {
			lastContent = resp.Content
		}

		if !resp.HasToolCalls() {
			finalContent = resp.Content
			completed = true
			turns = append(turns, session.Turn{Role: "assistant", Content: finalContent, Timestamp: time.Now()})
			break
		}

		calls := toolCallRecords(resp)
		messages = append(messages, providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: calls})
		turns = append(turns, session.Turn{Role: "assistant", Content: resp.Content, ToolCalls: calls, Timestamp: time.Now()})
		for _, tc := range resp.ToolCalls {
			toolMsg := l.executeTool(ctx, &run, tc)
			messages = append(messages, toolMsg)
			turns = append(turns, session.Turn{
				Role:       "tool",
				Content:    toolMsg.Content,
				ToolCallID: toolMsg.ToolCallID,
				Name:       toolMsg.Name,
				Timestamp:  time.Now(),
			})
		}
	}

	if runErr == nil && !completed {
		// Out of iterations: hand back the best content seen so far.
		finalContent = lastContent
		run.failureReason = "max_iterations"
		if finalContent != "" {
			turns = append(turns, session.Turn{Role: "assistant", Content: finalContent, Timestamp: time.Now()})
		}
	}

	if runErr == nil {
		if err := l.sessions.AppendTurns(sessionKey, turns); err != nil {
			l.logger.Warn("session append failed", "session", sessionKey, "error", err)
		}
	}

	l.recordSession(&run, runErr)
	return finalContent, runErr
}

// executeTool runs one tool call and returns its result message.
func (l *Loop) executeTool(ctx context.Context, run *runStats, tc providers.ToolCallRequest) providers.Message {
	argsJSON, _ := json.Marshal(tc.Arguments)
	l.logger.Debug("executing tool", "tool", tc.Name, "args", truncate(string(argsJSON), 200))

	start := time.Now()
	result, err := l.registry.Execute(ctx, tc.Name, tc.Arguments)
	latency := time.Since(start)

	event := metrics.ToolEvent{
		TS:          metrics.Now(),
		SessionID:   run.sessionKey,
		ToolName:    tc.Name,
		ToolSuccess: err == nil,
		LatencyMS:   latency.Milliseconds(),
		InputSize:   len(argsJSON),
		OutputSize:  len(result),
		Iteration:   run.iterations,
	}
	if err != nil {
		event.Error = err.Error()
		result = fmt.Sprintf("Error: %v", err)
		l.logger.Warn("tool failed", "tool", tc.Name, "error", err)
	}
	if l.collector != nil {
		l.collector.RecordToolEvent(event)
	}
	run.toolCalls++
	run.toolsUsed[tc.Name] = true

	return providers.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: tc.ID,
		Name:       tc.Name,
	}
}

func (l *Loop) recordLLM(run *runStats, resp *providers.LLMResponse, latency time.Duration) {
	run.llmCalls++
	run.promptTokens += resp.Usage.PromptTokens
	run.completionTokens += resp.Usage.CompletionTokens
	run.totalTokens += resp.Usage.TotalTokens
	if l.collector == nil {
		return
	}
	l.collector.RecordLLMEvent(metrics.LLMEvent{
		TS:               metrics.Now(),
		SessionID:        run.sessionKey,
		Model:            run.model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		HasToolCalls:     resp.HasToolCalls(),
		NumToolCalls:     len(resp.ToolCalls),
		LatencyMS:        latency.Milliseconds(),
		Iteration:        run.iterations,
		FinishReason:     resp.FinishReason,
	})
}

func (l *Loop) recordSession(run *runStats, runErr error) {
	if l.collector == nil {
		return
	}
	ended := time.Now()
	summary := metrics.SessionSummary{
		SessionID:             run.sessionKey,
		StartedAt:             run.started.Format(time.RFC3339Nano),
		EndedAt:               ended.Format(time.RFC3339Nano),
		DurationMS:            ended.Sub(run.started).Milliseconds(),
		Success:               runErr == nil && run.failureReason == "",
		TotalIterations:       run.iterations,
		TotalToolCalls:        run.toolCalls,
		TotalLLMCalls:         run.llmCalls,
		TotalPromptTokens:     run.promptTokens,
		TotalCompletionTokens: run.completionTokens,
		TotalTokens:           run.totalTokens,
		ToolsUsed:             run.toolNames(),
		FailureReason:         run.failureReason,
		Channel:               run.channel,
		Model:                 run.model,
	}
	if runErr != nil {
		summary.FailureReason = truncate(runErr.Error(), 200)
	}
	l.collector.RecordSession(summary)
}

type runStats struct {
	sessionKey       string
	channel          string
	model            string
	started          time.Time
	iterations       int
	llmCalls         int
	toolCalls        int
	promptTokens     int
	completionTokens int
	totalTokens      int
	failureReason    string
	toolsUsed        map[string]bool
}

func (r *runStats) toolNames() []string {
	names := make([]string, 0, len(r.toolsUsed))
	for name := range r.toolsUsed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toolCallRecords serializes the model's tool calls for the message
// history and the persisted session.
func toolCallRecords(resp *providers.LLMResponse) []providers.ToolCall {
	calls := make([]providers.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		argsJSON, _ := json.Marshal(tc.Arguments)
		calls = append(calls, providers.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: providers.FunctionCall{
				Name:      tc.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	return calls
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
