// Package channels – channel.go
// Channel adapter contract. Adapters convert between a chat surface and
// bus messages; they hold no conversation state.
package channels

import (
	"context"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
)

// Channel is one chat surface (whatsapp, telegram, ...).
type Channel interface {
	Name() string

	// Start connects and begins publishing inbound messages to the bus.
	// It returns once the adapter is running.
	Start(ctx context.Context) error

	// Stop disconnects. Safe to call after a failed Start.
	Stop() error

	// Send delivers one outbound message.
	Send(msg bus.OutboundMessage) error
}
