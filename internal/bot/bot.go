// Package bot is the Telegram side of keyword registration: users message
// the bot a comma-separated keyword list and get alerts for matching jobs.
package bot

import (
	"context"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jobalert-engine/internal/match"
)

const greeting = "👋 Hi! I will help you get job alerts from your email.\n" +
	"Please send me the keywords you'd like me to search for (comma separated)."

type Registry interface {
	SetKeywords(ctx context.Context, destination string, terms []string) error
}

type Bot struct {
	api           *tgbotapi.BotAPI
	reg           Registry
	updateTimeout int

	// send is swappable in tests
	send func(chatID int64, text string) error
}

func New(api *tgbotapi.BotAPI, reg Registry, updateTimeoutSeconds int) *Bot {
	b := &Bot{
		api:           api,
		reg:           reg,
		updateTimeout: updateTimeoutSeconds,
	}
	b.send = func(chatID int64, text string) error {
		_, err := api.Send(tgbotapi.NewMessage(chatID, text))
		return err
	}
	return b
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.updateTimeout

	updates := b.api.GetUpdatesChan(u)
	log.Printf("[bot] listening for keyword registrations as @%s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message == nil {
				continue
			}
			b.handle(ctx, upd.Message)
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		if msg.Command() == "start" {
			b.reply(msg.Chat.ID, greeting)
		}
		return
	}
	b.handleKeywords(ctx, msg.Chat.ID, msg.Text)
}

// handleKeywords replaces the chat's keyword set with the parsed message.
func (b *Bot) handleKeywords(ctx context.Context, chatID int64, text string) {
	keywords := match.Parse(text)
	if keywords.Empty() {
		b.reply(chatID, "❗ Please provide at least one keyword, separated by commas.")
		return
	}

	dest := strconv.FormatInt(chatID, 10)
	if err := b.reg.SetKeywords(ctx, dest, keywords); err != nil {
		log.Printf("[bot] set keywords for %s: %v", dest, err)
		b.reply(chatID, "❗ Could not save your keywords, please try again.")
		return
	}

	b.reply(chatID, "✅ Keywords saved: "+keywords.String()+
		"\nI will now look for these in your incoming emails.")
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.send(chatID, text); err != nil {
		log.Printf("[bot] reply to %d: %v", chatID, err)
	}
}
