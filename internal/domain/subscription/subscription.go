// internal/domain/subscription/subscription.go
package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Channel is a delivery channel a notification rule can target.
type Channel string

const (
	ChannelPush    Channel = "PUSH"
	ChannelEmail   Channel = "EMAIL"
	ChannelWebhook Channel = "WEBHOOK"
	ChannelNtfy    Channel = "NTFY"
	ChannelDiscord Channel = "DISCORD"
	ChannelSlack   Channel = "SLACK"
)

// AllChannels lists every known channel in canonical order.
var AllChannels = []Channel{ChannelPush, ChannelEmail, ChannelWebhook, ChannelNtfy, ChannelDiscord, ChannelSlack}

func (c Channel) Valid() bool {
	for _, known := range AllChannels {
		if c == known {
			return true
		}
	}
	return false
}

// LeadUnit is the unit of a notification rule's lead time.
type LeadUnit string

const (
	LeadInstant LeadUnit = "INSTANT"
	LeadMinutes LeadUnit = "MINUTES"
	LeadHours   LeadUnit = "HOURS"
	LeadDays    LeadUnit = "DAYS"
	LeadWeeks   LeadUnit = "WEEKS"
)

// LeadTime says how long before the payment a rule fires. Amount is 0 for INSTANT.
type LeadTime struct {
	Unit   LeadUnit `json:"unit" validate:"required,oneof=INSTANT MINUTES HOURS DAYS WEEKS"`
	Amount int      `json:"amount" validate:"gte=0"`
}

// NotificationRule pairs a lead time with the channels to notify on.
type NotificationRule struct {
	Channels []Channel `json:"channels" validate:"required,min=1,dive,oneof=PUSH EMAIL WEBHOOK NTFY DISCORD SLACK"`
	LeadTime LeadTime  `json:"leadTime" validate:"required"`
}

// NotificationDetails is the cached companion of NextNotificationTime.
type NotificationDetails struct {
	Channels    []Channel `json:"channels"`
	IsRepeat    bool      `json:"isRepeat"`
	PaymentDate time.Time `json:"paymentDate"`
}

// Subscription is a recurring payment tracked for a user.
type Subscription struct {
	ID       uuid.UUID
	UserID   int64
	Name     string
	Price    decimal.Decimal
	Currency string
	URL      string
	Notes    string

	PaymentDate time.Time // next unpaid occurrence
	Timezone    string    // IANA zone name
	Cycle       Cycle
	UntilDate   *time.Time
	Enabled     bool

	NotificationRules       []NotificationRule
	NextNotificationTime    *time.Time
	NextNotificationDetails *NotificationDetails

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the subscription timezone, falling back to UTC for
// empty or unknown names. Validation rejects unknown names before they get here.
func (s *Subscription) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ApplyNotification stores the selector's answer in the cached fields.
func (s *Subscription) ApplyNotification(n *Notification) {
	if n == nil {
		s.NextNotificationTime = nil
		s.NextNotificationDetails = nil
		return
	}
	t := n.Time
	s.NextNotificationTime = &t
	s.NextNotificationDetails = &NotificationDetails{
		Channels:    append([]Channel(nil), n.Channels...),
		IsRepeat:    n.IsRepeat,
		PaymentDate: s.PaymentDate,
	}
}

// PastPayment records a payment the user marked as paid.
type PastPayment struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	UserID         int64
	Price          decimal.Decimal
	Currency       string
	PaymentDate    time.Time // the anchor that was paid for
	PaidAt         time.Time
}

// NotificationType classifies past notifications.
type NotificationType string

const NotificationTypePaymentDue NotificationType = "PAYMENT_DUE"

// PastNotification records a delivered reminder.
type PastNotification struct {
	ID             uuid.UUID
	UserID         int64
	SubscriptionID uuid.UUID
	Title          string
	Message        string
	Type           NotificationType
	CreatedAt      time.Time
}
