// Package bus – bus.go
// In-memory message bus connecting channel adapters to the agent loop.
// Two FIFO queues: inbound (channel → agent) and outbound (agent → channel).
package bus

import (
	"fmt"
	"sync"
	"time"
)

const defaultQueueSize = 128

// InboundMessage is a user message arriving from a channel adapter.
type InboundMessage struct {
	Channel   string    `json:"channel"`
	SenderID  string    `json:"sender_id"`
	ChatID    string    `json:"chat_id"`
	Content   string    `json:"content"`
	Media     []string  `json:"media,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionKey identifies the conversation this message belongs to.
func (m InboundMessage) SessionKey() string {
	return fmt.Sprintf("%s:%s", m.Channel, m.ChatID)
}

// OutboundMessage is an agent reply destined for a channel adapter.
type OutboundMessage struct {
	Channel string   `json:"channel"`
	ChatID  string   `json:"chat_id"`
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
}

// MessageBus is a typed FIFO pub/sub pair. Publish blocks when a queue is
// full; delivery is lossless within the process.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	closeOnce sync.Once
	closed    chan struct{}
}

func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultQueueSize),
		outbound: make(chan OutboundMessage, defaultQueueSize),
		closed:   make(chan struct{}),
	}
}

// PublishInbound enqueues a message for the agent loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case b.inbound <- msg:
	case <-b.closed:
	}
}

// ConsumeInbound returns the receive side of the inbound queue.
func (b *MessageBus) ConsumeInbound() <-chan InboundMessage {
	return b.inbound
}

// PublishOutbound enqueues an agent reply for delivery.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	case <-b.closed:
	}
}

// ConsumeOutbound returns the receive side of the outbound queue.
func (b *MessageBus) ConsumeOutbound() <-chan OutboundMessage {
	return b.outbound
}

// Close releases publishers blocked on full queues. Safe to call twice.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}
