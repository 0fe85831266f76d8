// Package channels – whatsapp.go
// WhatsApp adapter speaking to the Node bridge over a websocket. The
// bridge owns the WhatsApp protocol; this side only exchanges JSON frames:
//
//	bridge → nanobot: {"type":"message","sender":"...","chat_id":"...","content":"..."}
//	bridge → nanobot: {"type":"qr","data":"<qr payload>"}
//	bridge → nanobot: {"type":"status","status":"connected"}
//	nanobot → bridge: {"type":"send","to":"...","content":"..."}
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	whatsappReconnectBase = time.Second
	whatsappReconnectMax  = 30 * time.Second
)

type bridgeFrame struct {
	Type    string `json:"type"`
	Sender  string `json:"sender,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	Content string `json:"content,omitempty"`
	To      string `json:"to,omitempty"`
	Data    string `json:"data,omitempty"`
	Status  string `json:"status,omitempty"`
}

// WhatsAppChannel connects to the bridge and relays frames to/from the bus.
type WhatsAppChannel struct {
	bus    *bus.MessageBus
	url    string
	token  string
	logger *slog.Logger

	// OnQR is called with the pairing QR payload when the bridge asks
	// for a login. Optional.
	OnQR func(data string)

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

func NewWhatsAppChannel(b *bus.MessageBus, url, token string) *WhatsAppChannel {
	return &WhatsAppChannel{
		bus:    b,
		url:    url,
		token:  token,
		logger: slog.Default().With("component", "whatsapp"),
	}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

// Start dials the bridge and launches the read loop. Reconnects with
// capped backoff until Stop.
func (c *WhatsAppChannel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("connect to bridge %s: %w", c.url, err)
	}
	c.setConn(conn)

	go c.readLoop(runCtx)
	return nil
}

func (c *WhatsAppChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	return conn, err
}

func (c *WhatsAppChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *WhatsAppChannel) readLoop(ctx context.Context) {
	backoff := whatsappReconnectBase
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			if err := c.consume(conn); err != nil && ctx.Err() == nil {
				c.logger.Warn("bridge connection lost", "error", err)
			}
			c.setConn(nil)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("bridge reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, whatsappReconnectMax)
			continue
		}
		c.logger.Info("bridge reconnected")
		backoff = whatsappReconnectBase
		c.setConn(conn)
	}
}

// consume reads frames until the connection drops.
func (c *WhatsAppChannel) consume(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("bad bridge frame", "error", err)
			continue
		}
		switch frame.Type {
		case "message":
			c.bus.PublishInbound(bus.InboundMessage{
				Channel:   "whatsapp",
				SenderID:  frame.Sender,
				ChatID:    frame.ChatID,
				Content:   frame.Content,
				Timestamp: time.Now(),
			})
		case "qr":
			c.logger.Info("bridge requested pairing")
			if c.OnQR != nil {
				c.OnQR(frame.Data)
			}
		case "status":
			c.logger.Info("bridge status", "status", frame.Status)
		}
	}
}

// Send relays one outbound message through the bridge.
func (c *WhatsAppChannel) Send(msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("bridge not connected")
	}
	frame := bridgeFrame{Type: "send", To: msg.ChatID, Content: msg.Content}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Stop closes the connection and halts reconnects.
func (c *WhatsAppChannel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
