// Package heartbeat – heartbeat.go
// Periodic self-prompt so the agent can act without being messaged. Runs
// never overlap; a tick is skipped while the previous run is in flight.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const defaultPrompt = "Read HEARTBEAT.md in your workspace if it exists and follow it. " +
	"Otherwise check whether anything needs your attention (reminders, " +
	"follow-ups, unfinished tasks). If nothing needs doing, reply with just: ok"

// Runner is the agent entry point the heartbeat drives.
type Runner func(ctx context.Context, content, sessionKey, channel, chatID string) (string, error)

// Service fires the heartbeat prompt on a fixed interval.
type Service struct {
	runner    Runner
	workspace string
	interval  time.Duration
	logger    *slog.Logger

	running  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewService(runner Runner, workspace string, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Service{
		runner:    runner,
		workspace: workspace,
		interval:  interval,
		logger:    slog.Default().With("component", "heartbeat"),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start runs the tick loop until Stop or context cancellation.
func (s *Service) Start(ctx context.Context) {
	go func() {
		defer close(s.doneChan)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("heartbeat started", "interval", s.interval)
		for {
			select {
			case <-ticker.C:
				s.beat(ctx)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (s *Service) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *Service) beat(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("previous heartbeat still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	prompt := defaultPrompt
	if data, err := os.ReadFile(filepath.Join(s.workspace, "HEARTBEAT.md")); err == nil {
		if content := strings.TrimSpace(string(data)); content != "" {
			prompt = content
		}
	}

	result, err := s.runner(ctx, prompt, "heartbeat", "system", "heartbeat")
	if err != nil {
		s.logger.Error("heartbeat run failed", "error", err)
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(result))
	if trimmed == "ok" || trimmed == "ok." || trimmed == "" {
		s.logger.Debug("heartbeat idle")
		return
	}
	s.logger.Info("heartbeat acted", "result", truncate(result, 200))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
