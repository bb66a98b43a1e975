package delivery

import (
	"context"
	"time"

	domain "subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"

	"github.com/shopspring/decimal"
)

type webhookPayload struct {
	Event          string          `json:"event"`
	SubscriptionID string          `json:"subscriptionId"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	PaymentDate    time.Time       `json:"paymentDate"`
	URL            string          `json:"url,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Tags           []string        `json:"tags"`
	MarkAsPaidURL  string          `json:"markAsPaidUrl,omitempty"`
	DashboardURL   string          `json:"dashboardUrl,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// WebhookSender posts a machine-readable event to the user's own endpoint.
type WebhookSender struct {
	poster *Poster
}

func NewWebhookSender(p *Poster) *WebhookSender {
	return &WebhookSender{poster: p}
}

func (s *WebhookSender) Channel() subscription.Channel { return subscription.ChannelWebhook }

func (s *WebhookSender) Send(ctx context.Context, recipient *user.User, msg domain.Message) error {
	svc := recipient.ExternalServices.Webhook
	if !svc.Usable() {
		return domain.ErrNotConfigured
	}
	sub := msg.Subscription
	return s.poster.PostJSON(ctx, svc.URL, bearer(svc.Token), webhookPayload{
		Event:          msg.Kind.Event(),
		SubscriptionID: sub.ID.String(),
		Name:           sub.Name,
		Price:          sub.Price,
		Currency:       sub.Currency,
		PaymentDate:    sub.PaymentDate.UTC(),
		URL:            sub.URL,
		Notes:          sub.Notes,
		Title:          msg.Title,
		Message:        msg.Text,
		Tags:           []string{"subscription-reminder"},
		MarkAsPaidURL:  msg.MarkAsPaidURL,
		DashboardURL:   msg.DashboardURL,
		Timestamp:      msg.SentAt.UTC(),
	})
}
