// Package notify delivers alert messages to Telegram chats.
package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends plain-text messages through the bot API. Delivery is
// best-effort: callers log failures and move on, no retries.
type Telegram struct {
	api     *tgbotapi.BotAPI
	limiter *ChatLimiter
}

func NewTelegram(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{
		api:     api,
		limiter: NewChatLimiter(1.0, 4),
	}
}

// Send delivers text to the destination chat id.
func (t *Telegram) Send(ctx context.Context, destination, text string) error {
	chatID, err := strconv.ParseInt(destination, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram send: bad destination %q: %w", destination, err)
	}

	if err := t.limiter.Wait(ctx, destination); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}

	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send to %s: %w", destination, err)
	}
	return nil
}
