package delivery

import (
	"context"
	"fmt"

	domain "subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/telegram"
	"subscription_reminder_bot/internal/domain/user"

	"gopkg.in/telebot.v3"
)

// TelegramPushSender delivers PUSH reminders to the user's Telegram chat.
type TelegramPushSender struct {
	client telegram.Client
}

func NewTelegramPushSender(c telegram.Client) *TelegramPushSender {
	return &TelegramPushSender{client: c}
}

func (s *TelegramPushSender) Channel() subscription.Channel { return subscription.ChannelPush }

func (s *TelegramPushSender) Send(ctx context.Context, recipient *user.User, msg domain.Message) error {
	if recipient.TelegramID == 0 {
		return domain.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := fmt.Sprintf("<b>%s</b>\n%s", telegram.EscapeHTML(msg.Title), telegram.EscapeHTML(msg.Text))
	opts := &telebot.SendOptions{ParseMode: telebot.ModeHTML}

	// The chat already identifies the user, so the paid button is a callback
	// rather than the signed link used by the other channels.
	var row []telebot.InlineButton
	if sub := msg.Subscription; sub != nil {
		row = append(row, telebot.InlineButton{
			Text: "✅ Paid",
			Data: telegram.PaidCallbackData(sub.ID, sub.PaymentDate),
		})
	}
	if msg.DashboardURL != "" {
		row = append(row, telebot.InlineButton{Text: "🔗 Details", URL: msg.DashboardURL})
	}
	if len(row) > 0 {
		opts.ReplyMarkup = &telebot.ReplyMarkup{InlineKeyboard: [][]telebot.InlineButton{row}}
	}

	return s.client.SendMessage(recipient.TelegramID, text, opts)
}
