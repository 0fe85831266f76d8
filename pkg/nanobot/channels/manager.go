// Package channels – manager.go
// Starts enabled adapters and routes outbound bus messages to the right
// one.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
)

// Manager owns the running channel adapters.
type Manager struct {
	bus    *bus.MessageBus
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]Channel

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewManager(b *bus.MessageBus) *Manager {
	return &Manager{
		bus:      b,
		logger:   slog.Default().With("component", "channels"),
		channels: make(map[string]Channel),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Register adds an adapter. Call before StartAll.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Names lists registered adapters.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, name)
	}
	return out
}

// StartAll starts every registered adapter and begins dispatching
// outbound messages. An adapter that fails to start is logged and
// skipped; the rest keep running.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			m.logger.Error("channel start failed", "channel", name, "error", err)
			delete(m.channels, name)
			continue
		}
		m.logger.Info("channel started", "channel", name)
	}
	m.mu.Unlock()

	go m.dispatchLoop(ctx)
}

func (m *Manager) dispatchLoop(ctx context.Context) {
	defer close(m.doneChan)
	outbound := m.bus.ConsumeOutbound()
	for {
		select {
		case msg := <-outbound:
			m.deliver(msg)
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) deliver(msg bus.OutboundMessage) {
	m.mu.Lock()
	ch, ok := m.channels[msg.Channel]
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("no adapter for outbound message", "channel", msg.Channel)
		return
	}
	if err := ch.Send(msg); err != nil {
		m.logger.Error("send failed", "channel", msg.Channel, "chat", msg.ChatID, "error", err)
	}
}

// StopAll stops dispatching and shuts every adapter down.
func (m *Manager) StopAll() error {
	close(m.stopChan)
	<-m.doneChan

	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", name, err)
		}
	}
	return firstErr
}
