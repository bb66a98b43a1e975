package delivery

import "errors"

// ErrNotConfigured means the recipient has not set up the channel.
var ErrNotConfigured = errors.New("channel not configured for recipient")

// ErrRecipientUnreachable means the recipient's contact point rejects messages,
// for example a Telegram chat where the bot was blocked.
var ErrRecipientUnreachable = errors.New("recipient unreachable")
