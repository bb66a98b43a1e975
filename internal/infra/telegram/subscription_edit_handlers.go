package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"subscription_reminder_bot/internal/app"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	rulesUsage = "Usage: /rules <id> <when>:<channels> ...\n" +
		"<when> is due, or a number with m (minutes), h (hours), d (days) or w (weeks) before the payment.\n" +
		"<channels> are joined with +, from push, email, webhook, ntfy, discord, slack.\n" +
		"Example: /rules 1a2b3c4d 3d:push+email due:push+ntfy"
	untilUsage = "Usage: /until <id> <YYYY-MM-DD>, or /until <id> off to keep it open-ended."
	editUsage  = "Usage: /edit <id> <field> <value>\nFields: name, price, currency, url, notes, date, cycle, timezone."
)

// RegisterSubscriptionEditHandlers registers the commands that change an
// existing subscription. Every change goes through SubscriptionService.Edit so
// the next reminder is recomputed when the schedule changes.
func RegisterSubscriptionEditHandlers(
	ctx context.Context,
	b *telebot.Bot,
	subService *app.SubscriptionService,
	userRepo user.Repository,
	baseLogger *logrus.Entry,
) {
	editLogger := baseLogger.WithField("handler_group", "subscription_edit")

	edit := func(c telebot.Context, command string, mutate func(sub *subscription.Subscription, in *app.SubscriptionInput, args []string) error, usage string) error {
		logCtx := editLogger.WithFields(logrus.Fields{"command": command, "sender_id": c.Sender().ID})
		u, sub, rest, err := resolveSubscriptionArgs(ctx, c, userRepo, subService)
		if err != nil {
			return replySubscriptionError(c, logCtx, err)
		}
		if len(rest) == 0 {
			return c.Send(usage)
		}

		in := app.InputFrom(sub)
		if err := mutate(sub, &in, rest); err != nil {
			logCtx.WithError(err).Debug("Invalid edit arguments")
			return c.Send(fmt.Sprintf("Could not read that: %s.\n%s", err.Error(), usage))
		}

		updated, err := subService.Edit(ctx, u.ID, sub.ID, in)
		if err != nil {
			if errors.Is(err, app.ErrInvalidInput) {
				return c.Send(fmt.Sprintf("Could not save the change: %s", err.Error()))
			}
			logCtx.WithError(err).Error("Failed to edit subscription")
			return c.Send("Something went wrong while saving the change.")
		}
		logCtx.WithField("subscription_id", updated.ID).Info("Subscription edited")
		return c.Send(editReply(updated))
	}

	b.Handle("/rules", func(c telebot.Context) error {
		return edit(c, "/rules", func(_ *subscription.Subscription, in *app.SubscriptionInput, args []string) error {
			rules, err := parseRules(args)
			if err != nil {
				return err
			}
			in.NotificationRules = rules
			return nil
		}, rulesUsage)
	})

	b.Handle("/until", func(c telebot.Context) error {
		return edit(c, "/until", func(sub *subscription.Subscription, in *app.SubscriptionInput, args []string) error {
			if len(args) != 1 {
				return errors.New("expected a single date")
			}
			until, err := parseUntil(args[0], sub.Location())
			if err != nil {
				return err
			}
			in.UntilDate = until
			return nil
		}, untilUsage)
	})

	b.Handle("/edit", func(c telebot.Context) error {
		return edit(c, "/edit", func(sub *subscription.Subscription, in *app.SubscriptionInput, args []string) error {
			if len(args) < 2 {
				return errors.New("missing value")
			}
			return applyEdit(in, sub.Location(), strings.ToLower(args[0]), args[1:])
		}, editUsage)
	})
}

// parseRules reads rules such as "3d:push+email" or "due:push".
func parseRules(args []string) ([]subscription.NotificationRule, error) {
	rules := make([]subscription.NotificationRule, 0, len(args))
	for _, raw := range args {
		when, channelList, ok := strings.Cut(raw, ":")
		if !ok || channelList == "" {
			return nil, fmt.Errorf("rule %q needs <when>:<channels>", raw)
		}
		lead, err := parseLead(when)
		if err != nil {
			return nil, err
		}
		var channels []subscription.Channel
		for _, name := range strings.Split(channelList, "+") {
			ch := subscription.Channel(strings.ToUpper(strings.TrimSpace(name)))
			if !ch.Valid() {
				return nil, fmt.Errorf("unknown channel %q", name)
			}
			channels = append(channels, ch)
		}
		rules = append(rules, subscription.NotificationRule{Channels: channels, LeadTime: lead})
	}
	return rules, nil
}

func parseLead(raw string) (subscription.LeadTime, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "due" || raw == "0" {
		return subscription.LeadTime{Unit: subscription.LeadInstant}, nil
	}
	if len(raw) < 2 {
		return subscription.LeadTime{}, fmt.Errorf("invalid lead time %q", raw)
	}
	n, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil || n < 1 {
		return subscription.LeadTime{}, fmt.Errorf("invalid lead time %q", raw)
	}
	var unit subscription.LeadUnit
	switch raw[len(raw)-1] {
	case 'm':
		unit = subscription.LeadMinutes
	case 'h':
		unit = subscription.LeadHours
	case 'd':
		unit = subscription.LeadDays
	case 'w':
		unit = subscription.LeadWeeks
	default:
		return subscription.LeadTime{}, fmt.Errorf("invalid lead time unit in %q, use m, h, d or w", raw)
	}
	return subscription.LeadTime{Unit: unit, Amount: n}, nil
}

// parseUntil reads an end date as the start of that day in loc. "off" clears it.
func parseUntil(raw string, loc *time.Location) (*time.Time, error) {
	if strings.EqualFold(raw, "off") {
		return nil, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, use YYYY-MM-DD", raw)
	}
	return &day, nil
}

// applyEdit sets one field of in from the remaining command arguments.
func applyEdit(in *app.SubscriptionInput, loc *time.Location, field string, value []string) error {
	joined := strings.Join(value, " ")
	switch field {
	case "name":
		in.Name = joined
	case "price":
		price, err := decimal.NewFromString(joined)
		if err != nil {
			return fmt.Errorf("invalid price %q", joined)
		}
		in.Price = price
	case "currency":
		in.Currency = strings.ToUpper(joined)
	case "url":
		in.URL = clearable(joined)
	case "notes":
		in.Notes = clearable(joined)
	case "date":
		day, err := time.ParseInLocation("2006-01-02", joined, loc)
		if err != nil {
			return fmt.Errorf("invalid date %q, use YYYY-MM-DD", joined)
		}
		local := in.PaymentDate.In(loc)
		in.PaymentDate = time.Date(day.Year(), day.Month(), day.Day(), local.Hour(), local.Minute(), 0, 0, loc)
	case "cycle":
		cycle, err := parseCycle(joined)
		if err != nil {
			return err
		}
		in.Cycle = cycle
	case "timezone":
		newLoc, err := time.LoadLocation(joined)
		if err != nil {
			return fmt.Errorf("unknown timezone %q", joined)
		}
		// Keep the same wall-clock payment time in the new zone.
		in.PaymentDate = sameWallClock(in.PaymentDate, loc, newLoc)
		if in.UntilDate != nil {
			until := sameWallClock(*in.UntilDate, loc, newLoc)
			in.UntilDate = &until
		}
		in.Timezone = joined
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

func sameWallClock(t time.Time, from, to *time.Location) time.Time {
	l := t.In(from)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), 0, to)
}

func clearable(v string) string {
	if strings.EqualFold(v, "off") {
		return ""
	}
	return v
}

func describeRules(rules []subscription.NotificationRule) string {
	if len(rules) == 0 {
		return "no reminders"
	}
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		when := "on the due date"
		if r.LeadTime.Unit != subscription.LeadInstant {
			unit := strings.ToLower(string(r.LeadTime.Unit))
			if r.LeadTime.Amount == 1 {
				unit = strings.TrimSuffix(unit, "s")
			}
			when = fmt.Sprintf("%d %s before", r.LeadTime.Amount, unit)
		}
		channels := make([]string, 0, len(r.Channels))
		for _, ch := range r.Channels {
			channels = append(channels, strings.ToLower(string(ch)))
		}
		parts = append(parts, fmt.Sprintf("%s via %s", when, strings.Join(channels, "+")))
	}
	return strings.Join(parts, "; ")
}

func editReply(sub *subscription.Subscription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Saved %s (%s): %s %s, %s, next due %s.\nReminders: %s.",
		sub.Name, shortID(sub.ID), sub.Price.StringFixed(2), sub.Currency,
		describeCycle(sub.Cycle), formatLocal(sub.PaymentDate, sub), describeRules(sub.NotificationRules))
	if sub.UntilDate != nil {
		fmt.Fprintf(&b, "\nEnds before %s.", formatLocal(*sub.UntilDate, sub))
	}
	if sub.NextNotificationTime != nil {
		fmt.Fprintf(&b, "\nNext reminder: %s.", formatLocal(*sub.NextNotificationTime, sub))
	}
	return b.String()
}
