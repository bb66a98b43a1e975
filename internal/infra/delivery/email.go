package delivery

import (
	"context"
	"fmt"
	"html"

	domain "subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"

	"gopkg.in/gomail.v2"
)

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender mails reminders over SMTP.
type EmailSender struct {
	dialer Dialer
	from   string
}

func NewSMTPDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

func NewEmailSender(d Dialer, from string) *EmailSender {
	return &EmailSender{dialer: d, from: from}
}

func (s *EmailSender) Channel() subscription.Channel { return subscription.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, recipient *user.User, msg domain.Message) error {
	if !recipient.Email.Valid || recipient.Email.String == "" {
		return domain.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient.Email.String)
	m.SetHeader("Subject", msg.Title)
	m.SetBody("text/plain", plainBody(msg))
	m.AddAlternative("text/html", htmlBody(msg))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

func plainBody(msg domain.Message) string {
	body := msg.Text + "\n"
	if msg.MarkAsPaidURL != "" {
		body += "\nMark as paid: " + msg.MarkAsPaidURL + "\n"
	}
	if msg.DashboardURL != "" {
		body += "View details: " + msg.DashboardURL + "\n"
	}
	return body
}

func htmlBody(msg domain.Message) string {
	body := fmt.Sprintf("<h2>%s</h2><p>%s</p>", html.EscapeString(msg.Title), html.EscapeString(msg.Text))
	if msg.MarkAsPaidURL != "" {
		body += fmt.Sprintf(`<p><a href="%s">Mark as paid</a></p>`, html.EscapeString(msg.MarkAsPaidURL))
	}
	if msg.DashboardURL != "" {
		body += fmt.Sprintf(`<p><a href="%s">View details</a></p>`, html.EscapeString(msg.DashboardURL))
	}
	return body
}
