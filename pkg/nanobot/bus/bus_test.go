package bus

import (
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	b := New()
	defer b.Close()

	b.PublishInbound(InboundMessage{Channel: "telegram", ChatID: "42", Content: "hi"})

	select {
	case msg := <-b.ConsumeInbound():
		if msg.Content != "hi" {
			t.Errorf("content = %q", msg.Content)
		}
		if msg.Timestamp.IsZero() {
			t.Error("timestamp not stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message delivered")
	}
}

func TestOutboundRoundTrip(t *testing.T) {
	b := New()
	defer b.Close()

	b.PublishOutbound(OutboundMessage{Channel: "whatsapp", ChatID: "c", Content: "reply"})

	select {
	case msg := <-b.ConsumeOutbound():
		if msg.Channel != "whatsapp" || msg.Content != "reply" {
			t.Errorf("msg = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no outbound message delivered")
	}
}

func TestSessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "whatsapp", ChatID: "+15550100"}
	if got := msg.SessionKey(); got != "whatsapp:+15550100" {
		t.Errorf("SessionKey = %q", got)
	}
}

func TestFIFOOrder(t *testing.T) {
	b := New()
	defer b.Close()

	for _, content := range []string{"one", "two", "three"} {
		b.PublishInbound(InboundMessage{Channel: "cli", ChatID: "d", Content: content})
	}
	for _, want := range []string{"one", "two", "three"} {
		msg := <-b.ConsumeInbound()
		if msg.Content != want {
			t.Errorf("got %q, want %q", msg.Content, want)
		}
	}
}

func TestPublishAfterCloseDoesNotBlock(t *testing.T) {
	b := New()
	// Fill the queue so further publishes would block without Close.
	for i := 0; i < defaultQueueSize; i++ {
		b.PublishInbound(InboundMessage{Channel: "cli", ChatID: "d", Content: "x"})
	}
	b.Close()

	done := make(chan struct{})
	go func() {
		b.PublishInbound(InboundMessage{Channel: "cli", ChatID: "d", Content: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked after close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	b := New()
	b.Close()
	b.Close()
}
