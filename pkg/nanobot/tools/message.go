// Package tools – message.go
// Tool for sending messages out through the bus, so the model can reach a
// chat other than the one it is replying to.
package tools

import (
	"context"
	"fmt"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
)

// MessageTool publishes an outbound message. Without explicit channel/to
// arguments it targets the conversation the current message came from,
// read from the call context.
type MessageTool struct {
	bus *bus.MessageBus
}

func NewMessageTool(b *bus.MessageBus) *MessageTool {
	return &MessageTool{bus: b}
}

func (t *MessageTool) Name() string { return "message" }

func (t *MessageTool) Description() string {
	return "Send a message to a chat. Defaults to the current conversation."
}

func (t *MessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "Message text to send."},
			"channel": map[string]any{"type": "string", "description": "Target channel (whatsapp, telegram, cli). Optional."},
			"to":      map[string]any{"type": "string", "description": "Target chat id. Optional."},
		},
		"required": []any{"content"},
	}
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}

	convo, _ := ConvoFrom(ctx)
	channel, chatID := convo.Channel, convo.ChatID

	if v, ok := args["channel"].(string); ok && v != "" {
		channel = v
	}
	if v, ok := args["to"].(string); ok && v != "" {
		chatID = v
	}
	if channel == "" || chatID == "" {
		return "", fmt.Errorf("no target conversation; pass channel and to")
	}

	t.bus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content})
	return fmt.Sprintf("Message sent to %s:%s", channel, chatID), nil
}
