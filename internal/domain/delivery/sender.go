package delivery

import (
	"context"
	"time"

	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"
)

// Kind says which phase of a payment a message is about.
type Kind string

const (
	KindUpcoming Kind = "upcoming"
	KindDue      Kind = "due"
	KindReminder Kind = "reminder"
)

// Event is the webhook event name for the message kind.
func (k Kind) Event() string {
	switch k {
	case KindDue:
		return "payment_due_now"
	case KindReminder:
		return "payment_overdue"
	default:
		return "payment_due_upcoming"
	}
}

// Message is a rendered reminder, ready to be sent on any channel.
type Message struct {
	Kind          Kind
	Title         string
	Text          string
	MarkAsPaidURL string
	DashboardURL  string
	Subscription  *subscription.Subscription
	SentAt        time.Time
}

// Sender delivers a message on one channel. Implementations decide on their own
// whether the recipient can be reached and return ErrNotConfigured otherwise.
type Sender interface {
	Channel() subscription.Channel
	Send(ctx context.Context, recipient *user.User, msg Message) error
}
