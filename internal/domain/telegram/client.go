package telegram

import (
	"html"

	"gopkg.in/telebot.v3"
)

// Client sends reminder messages to a user's private Telegram chat.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// EscapeHTML escapes user-provided text for messages sent with ModeHTML.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}
