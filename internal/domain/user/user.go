package user

import (
	"database/sql"
	"time"
)

// ExternalService is a user-level integration such as a webhook or ntfy topic.
type ExternalService struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

// Usable reports whether messages can be delivered through the service.
func (s ExternalService) Usable() bool {
	return s.Enabled && s.URL != ""
}

// ExternalServices holds the per-user integrations a notification rule can target.
type ExternalServices struct {
	Webhook ExternalService `json:"webhook"`
	Ntfy    ExternalService `json:"ntfy"`
	Discord ExternalService `json:"discord"`
	Slack   ExternalService `json:"slack"`
}

// ServiceNames lists the integration names accepted by Lookup.
var ServiceNames = []string{"webhook", "ntfy", "discord", "slack"}

// Lookup returns the integration with the given lower-case name.
func (s *ExternalServices) Lookup(name string) (*ExternalService, bool) {
	switch name {
	case "webhook":
		return &s.Webhook, true
	case "ntfy":
		return &s.Ntfy, true
	case "discord":
		return &s.Discord, true
	case "slack":
		return &s.Slack, true
	}
	return nil, false
}

// User owns subscriptions and receives their reminders.
type User struct {
	ID               int64
	TelegramID       int64
	FirstName        string
	Email            sql.NullString
	Language         string
	IsBlocked        bool
	ExternalServices ExternalServices
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
