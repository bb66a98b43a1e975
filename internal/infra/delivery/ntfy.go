package delivery

import (
	"context"

	domain "subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"
)

const defaultNtfyTopic = "subscription-reminders"

type ntfyAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url"`
	Clear  bool   `json:"clear"`
}

type ntfyPayload struct {
	Topic    string       `json:"topic"`
	Title    string       `json:"title"`
	Message  string       `json:"message"`
	Tags     []string     `json:"tags"`
	Priority int          `json:"priority"`
	Click    string       `json:"click,omitempty"`
	Actions  []ntfyAction `json:"actions,omitempty"`
}

// NtfySender publishes to an ntfy server using its JSON publishing format.
type NtfySender struct {
	poster *Poster
}

func NewNtfySender(p *Poster) *NtfySender {
	return &NtfySender{poster: p}
}

func (s *NtfySender) Channel() subscription.Channel { return subscription.ChannelNtfy }

func (s *NtfySender) Send(ctx context.Context, recipient *user.User, msg domain.Message) error {
	svc := recipient.ExternalServices.Ntfy
	if !svc.Usable() {
		return domain.ErrNotConfigured
	}
	topic := svc.Topic
	if topic == "" {
		topic = defaultNtfyTopic
	}

	payload := ntfyPayload{
		Topic:    topic,
		Title:    msg.Title,
		Message:  msg.Text,
		Tags:     []string{"subscription-reminder"},
		Priority: 3,
		Click:    msg.DashboardURL,
	}
	if msg.MarkAsPaidURL != "" {
		payload.Actions = []ntfyAction{{Action: "view", Label: "Mark as paid", URL: msg.MarkAsPaidURL, Clear: true}}
	}
	return s.poster.PostJSON(ctx, svc.URL, bearer(svc.Token), payload)
}
