// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/emezpr/Sureodds/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a fetch error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(fetchErr error) error {
	text := fmt.Sprintf("⚠️ *Prediction fetch error*\n`%s`", escapeMarkdownV2(fetchErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Prediction fetching recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendPredictions pushes a formatted digest of fresh picks to the chat.
func (c *Client) SendPredictions(res *models.FetchResult) error {
	return c.sendMarkdownV2(c.formatPredictions(res))
}

// formatPredictions formats a fetch result into a Telegram MarkdownV2 message.
func (c *Client) formatPredictions(res *models.FetchResult) string {
	message := "⚽ *Today's Safe Picks*\n\n"
	dateStr := escapeMarkdownV2(res.LastUpdated.UTC().Format("2006-01-02 15:04 UTC"))
	message += fmt.Sprintf("📅 Updated: %s\n\n", dateStr)

	for i, p := range res.Predictions {
		message += fmt.Sprintf("%d\\. *%s*", i+1, escapeMarkdownV2(p.Match))
		if p.League != "" {
			message += fmt.Sprintf(" \\(%s\\)", escapeMarkdownV2(p.League))
		}
		message += "\n"

		message += fmt.Sprintf("   🎯 %s \\[%s\\]\n",
			escapeMarkdownV2(p.BetRecommendation), escapeMarkdownV2(p.MarketOption))

		confStr := escapeMarkdownV2(fmt.Sprintf("%d%%", p.Confidence))
		message += fmt.Sprintf("   📊 Confidence: %s", confStr)
		if p.KickoffTime != "" {
			message += fmt.Sprintf(" · 🕒 %s", escapeMarkdownV2(p.KickoffTime))
		}
		message += "\n\n"
	}

	if n := len(res.Sources); n > 0 {
		message += fmt.Sprintf("🔎 Grounded on %d web source\\(s\\)\n", n)
	}
	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
