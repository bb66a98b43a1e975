// internal/infra/telegram/client.go
package telegram

import (
	"errors"
	"fmt"

	"subscription_reminder_bot/internal/domain/delivery"

	"gopkg.in/telebot.v3"
)

// ErrChatUnavailable means the user blocked the bot or the chat is gone.
var ErrChatUnavailable = fmt.Errorf("telegram chat unavailable: %w", delivery.ErrRecipientUnreachable)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the user's private chat.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: recipientChatID}
	if _, err := tba.bot.Send(recipient, text, options); err != nil {
		if errors.Is(err, telebot.ErrBlockedByUser) || errors.Is(err, telebot.ErrChatNotFound) || errors.Is(err, telebot.ErrUserIsDeactivated) {
			return fmt.Errorf("%w: %v", ErrChatUnavailable, err)
		}
		return fmt.Errorf("error sending telegram message to %d: %w", recipientChatID, err)
	}
	return nil
}
