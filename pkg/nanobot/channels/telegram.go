// Package channels – telegram.go
// Telegram adapter: long-polling for inbound updates, message splitting
// on send (Telegram caps messages at 4096 characters).
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
)

const telegramMessageLimit = 4096

// TelegramChannel is a long-polling Telegram bot adapter.
type TelegramChannel struct {
	bus          *bus.MessageBus
	token        string
	allowedChats map[string]bool
	logger       *slog.Logger

	api    *tgbotapi.BotAPI
	cancel context.CancelFunc
}

func NewTelegramChannel(b *bus.MessageBus, token string, allowedChats []string) *TelegramChannel {
	allowed := make(map[string]bool, len(allowedChats))
	for _, chat := range allowedChats {
		allowed[chat] = true
	}
	return &TelegramChannel{
		bus:          b,
		token:        token,
		allowedChats: allowed,
		logger:       slog.Default().With("component", "telegram"),
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

// Start authenticates the bot and launches the update loop.
func (c *TelegramChannel) Start(ctx context.Context) error {
	api, err := tgbotapi.NewBotAPI(c.token)
	if err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}
	c.api = api
	c.logger.Info("telegram connected", "bot", api.Self.UserName)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := api.GetUpdatesChan(updateCfg)

	go func() {
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				c.handleUpdate(update)
			case <-runCtx.Done():
				api.StopReceivingUpdates()
				return
			}
		}
	}()
	return nil
}

func (c *TelegramChannel) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	if len(c.allowedChats) > 0 && !c.allowedChats[chatID] {
		c.logger.Debug("ignoring message from unlisted chat", "chat", chatID)
		return
	}
	c.bus.PublishInbound(bus.InboundMessage{
		Channel:   "telegram",
		SenderID:  strconv.FormatInt(update.Message.From.ID, 10),
		ChatID:    chatID,
		Content:   update.Message.Text,
		Timestamp: time.Now(),
	})
}

// Send delivers a message, splitting it when it exceeds the Telegram cap.
func (c *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if c.api == nil {
		return fmt.Errorf("telegram not connected")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", msg.ChatID, err)
	}
	for _, chunk := range SplitMessage(msg.Content, telegramMessageLimit) {
		if _, err := c.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// Stop halts the update loop.
func (c *TelegramChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit runes, preferring
// newline boundaries.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
		if len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
