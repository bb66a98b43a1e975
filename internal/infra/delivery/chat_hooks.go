package delivery

import (
	"context"
	"fmt"

	domain "subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"
)

const discordColor = 121256

type discordField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Content  string         `json:"content"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender posts an embed to a Discord incoming webhook.
type DiscordSender struct {
	poster *Poster
}

func NewDiscordSender(p *Poster) *DiscordSender {
	return &DiscordSender{poster: p}
}

func (s *DiscordSender) Channel() subscription.Channel { return subscription.ChannelDiscord }

func (s *DiscordSender) Send(ctx context.Context, recipient *user.User, msg domain.Message) error {
	svc := recipient.ExternalServices.Discord
	if !svc.Usable() {
		return domain.ErrNotConfigured
	}

	embed := discordEmbed{Title: msg.Title, Description: msg.Text, Color: discordColor}
	if msg.MarkAsPaidURL != "" {
		embed.Fields = append(embed.Fields, discordField{
			Name:  "Already paid?",
			Value: fmt.Sprintf("[Mark as paid](%s)", msg.MarkAsPaidURL),
		})
	}
	if msg.DashboardURL != "" {
		embed.Fields = append(embed.Fields, discordField{
			Name:  "Details",
			Value: fmt.Sprintf("[Open dashboard](%s)", msg.DashboardURL),
		})
	}

	return s.poster.PostJSON(ctx, svc.URL, nil, discordPayload{
		Username: "Subscription Reminders",
		Content:  "**Payment reminder**",
		Embeds:   []discordEmbed{embed},
	})
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string     `json:"type"`
	Text  *slackText `json:"text,omitempty"`
	URL   string     `json:"url,omitempty"`
	Style string     `json:"style,omitempty"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// SlackSender posts Block Kit messages to a Slack incoming webhook.
type SlackSender struct {
	poster *Poster
}

func NewSlackSender(p *Poster) *SlackSender {
	return &SlackSender{poster: p}
}

func (s *SlackSender) Channel() subscription.Channel { return subscription.ChannelSlack }

func (s *SlackSender) Send(ctx context.Context, recipient *user.User, msg domain.Message) error {
	svc := recipient.ExternalServices.Slack
	if !svc.Usable() {
		return domain.ErrNotConfigured
	}

	var buttons []slackElement
	if msg.MarkAsPaidURL != "" {
		buttons = append(buttons, slackElement{
			Type:  "button",
			Text:  &slackText{Type: "plain_text", Text: "Mark as paid"},
			URL:   msg.MarkAsPaidURL,
			Style: "primary",
		})
	}
	if msg.DashboardURL != "" {
		buttons = append(buttons, slackElement{
			Type: "button",
			Text: &slackText{Type: "plain_text", Text: "Open dashboard"},
			URL:  msg.DashboardURL,
		})
	}

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: "Payment reminder"}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s", msg.Title, msg.Text)}},
	}
	if len(buttons) > 0 {
		blocks = append(blocks, slackBlock{Type: "actions", Elements: buttons})
	}

	return s.poster.PostJSON(ctx, svc.URL, nil, slackPayload{
		Text:   fmt.Sprintf("%s\n%s", msg.Title, msg.Text),
		Blocks: blocks,
	})
}
