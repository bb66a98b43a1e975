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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	defaultPaymentHour = 9 // Local wall-clock hour for dates given without a time
	shortIDLen         = 8
)

// RegisterSubscriptionHandlers registers the commands a user manages their
// subscriptions with.
func RegisterSubscriptionHandlers(
	ctx context.Context,
	b *telebot.Bot,
	subService *app.SubscriptionService,
	userRepo user.Repository,
	upcomingHorizon time.Duration,
	baseLogger *logrus.Entry,
) {
	handlerLogger := func(c telebot.Context, command string) *logrus.Entry {
		return baseLogger.WithFields(logrus.Fields{
			"handler":   command,
			"sender_id": c.Sender().ID,
		})
	}

	b.Handle("/add", func(c telebot.Context) error {
		logCtx := handlerLogger(c, "/add")
		u, err := currentUser(ctx, userRepo, c)
		if err != nil {
			return replyUserError(c, logCtx, err)
		}

		in, err := parseAddArgs(c.Args(), u)
		if err != nil {
			logCtx.WithError(err).Debug("Invalid /add arguments")
			return c.Send(fmt.Sprintf("Could not read that: %s.\nUsage: /add <name> <price> <currency> <YYYY-MM-DD> <every> [timezone]", err.Error()))
		}

		sub, err := subService.Create(ctx, u.ID, in)
		if err != nil {
			if errors.Is(err, app.ErrInvalidInput) {
				return c.Send(fmt.Sprintf("Could not add the subscription: %s", err.Error()))
			}
			logCtx.WithError(err).Error("Failed to create subscription")
			return c.Send("Something went wrong while adding the subscription.")
		}

		logCtx.WithField("subscription_id", sub.ID).Info("Subscription added")
		return c.Send(fmt.Sprintf("Added %s (%s), %s %s, first payment %s.",
			sub.Name, shortID(sub.ID), sub.Price.StringFixed(2), sub.Currency, formatLocal(sub.PaymentDate, sub)))
	})

	b.Handle("/list", func(c telebot.Context) error {
		logCtx := handlerLogger(c, "/list")
		u, err := currentUser(ctx, userRepo, c)
		if err != nil {
			return replyUserError(c, logCtx, err)
		}

		subs, err := subService.ListByUser(ctx, u.ID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to list subscriptions")
			return c.Send("Something went wrong while loading your subscriptions.")
		}
		if len(subs) == 0 {
			return c.Send("You have no subscriptions yet. Add one with /add.")
		}

		var response strings.Builder
		response.WriteString("Your subscriptions:\n\n")
		for _, sub := range subs {
			status := ""
			if !sub.Enabled {
				status = " (paused)"
			}
			response.WriteString(fmt.Sprintf("%s  %s%s\n   %s %s, %s, next due %s\n",
				shortID(sub.ID), sub.Name, status, sub.Price.StringFixed(2), sub.Currency,
				describeCycle(sub.Cycle), formatLocal(sub.PaymentDate, sub)))
		}
		return c.Send(response.String())
	})

	b.Handle("/upcoming", func(c telebot.Context) error {
		logCtx := handlerLogger(c, "/upcoming")
		u, err := currentUser(ctx, userRepo, c)
		if err != nil {
			return replyUserError(c, logCtx, err)
		}

		payments, err := subService.Upcoming(ctx, u.ID, upcomingHorizon)
		if err != nil {
			logCtx.WithError(err).Error("Failed to load upcoming payments")
			return c.Send("Something went wrong while loading your payments.")
		}
		return c.Send(formatUpcoming(payments, upcomingHorizon))
	})

	b.Handle("/next", func(c telebot.Context) error {
		logCtx := handlerLogger(c, "/next")
		u, sub, err := resolveSubscription(ctx, c, userRepo, subService)
		if err != nil {
			return replySubscriptionError(c, logCtx, err)
		}

		_, next, err := subService.NextPayment(ctx, u.ID, sub.ID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to compute next payment")
			return c.Send("Something went wrong while computing the next payment.")
		}
		if next == nil {
			return c.Send(fmt.Sprintf("%s has no further payments.", sub.Name))
		}
		return c.Send(fmt.Sprintf("Next %s payment: %s.", sub.Name, formatLocal(*next, sub)))
	})

	b.Handle("/paid", func(c telebot.Context) error {
		logCtx := handlerLogger(c, "/paid")
		u, sub, err := resolveSubscription(ctx, c, userRepo, subService)
		if err != nil {
			return replySubscriptionError(c, logCtx, err)
		}

		updated, err := subService.MarkAsPaid(ctx, u.ID, sub.ID, nil)
		if err != nil {
			logCtx.WithError(err).Error("Failed to mark subscription as paid")
			return c.Send("Something went wrong while saving the payment.")
		}
		return c.Send(paidReply(updated))
	})

	toggle := func(command string, enabled bool) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			logCtx := handlerLogger(c, command)
			u, sub, err := resolveSubscription(ctx, c, userRepo, subService)
			if err != nil {
				return replySubscriptionError(c, logCtx, err)
			}
			if sub.Enabled == enabled {
				return c.Send(fmt.Sprintf("%s is already %s.", sub.Name, enabledWord(enabled)))
			}
			if _, err := subService.SetEnabled(ctx, u.ID, sub.ID, enabled); err != nil {
				logCtx.WithError(err).Error("Failed to toggle subscription")
				return c.Send("Something went wrong while updating the subscription.")
			}
			logCtx.WithFields(logrus.Fields{"subscription_id": sub.ID, "enabled": enabled}).Info("Subscription toggled")
			return c.Send(fmt.Sprintf("%s is now %s.", sub.Name, enabledWord(enabled)))
		}
	}
	b.Handle("/pause", toggle("/pause", false))
	b.Handle("/resume", toggle("/resume", true))
}

var errAmbiguousID = errors.New("ambiguous subscription id")

// resolveSubscription finds the sender's subscription whose id starts with the
// only command argument.
func resolveSubscription(ctx context.Context, c telebot.Context, userRepo user.Repository, svc *app.SubscriptionService) (*user.User, *subscription.Subscription, error) {
	u, sub, rest, err := resolveSubscriptionArgs(ctx, c, userRepo, svc)
	if err == nil && len(rest) > 0 {
		return u, nil, errMissingID
	}
	return u, sub, err
}

// resolveSubscriptionArgs is resolveSubscription for commands that take more
// arguments after the id; those are returned as rest.
func resolveSubscriptionArgs(ctx context.Context, c telebot.Context, userRepo user.Repository, svc *app.SubscriptionService) (*user.User, *subscription.Subscription, []string, error) {
	u, err := currentUser(ctx, userRepo, c)
	if err != nil {
		return nil, nil, nil, err
	}
	args := c.Args()
	if len(args) == 0 {
		return u, nil, nil, errMissingID
	}
	subs, err := svc.ListByUser(ctx, u.ID)
	if err != nil {
		return u, nil, nil, err
	}
	sub, err := matchSubscription(subs, args[0])
	return u, sub, args[1:], err
}

var errMissingID = errors.New("missing subscription id")

func matchSubscription(subs []*subscription.Subscription, prefix string) (*subscription.Subscription, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, errMissingID
	}
	var found *subscription.Subscription
	for _, sub := range subs {
		if strings.HasPrefix(sub.ID.String(), prefix) {
			if found != nil {
				return nil, errAmbiguousID
			}
			found = sub
		}
	}
	if found == nil {
		return nil, subscription.ErrNotFound
	}
	return found, nil
}

func replySubscriptionError(c telebot.Context, logCtx *logrus.Entry, err error) error {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return replyUserError(c, logCtx, err)
	case errors.Is(err, errMissingID):
		return c.Send("Please give the subscription id shown by /list.")
	case errors.Is(err, errAmbiguousID):
		return c.Send("That id matches more than one subscription. Use more characters.")
	case errors.Is(err, subscription.ErrNotFound), errors.Is(err, app.ErrNotOwner):
		return c.Send("No subscription with that id.")
	default:
		logCtx.WithError(err).Error("Failed to resolve subscription")
		return c.Send("Something went wrong. Please try again later.")
	}
}

// parseAddArgs turns "/add <name> <price> <currency> <YYYY-MM-DD> <every> [timezone]"
// into an input. Underscores in the name become spaces.
func parseAddArgs(args []string, owner *user.User) (app.SubscriptionInput, error) {
	if len(args) < 5 || len(args) > 6 {
		return app.SubscriptionInput{}, errors.New("wrong number of arguments")
	}

	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return app.SubscriptionInput{}, fmt.Errorf("invalid price %q", args[1])
	}

	tz := "UTC"
	if len(args) == 6 {
		tz = args[5]
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return app.SubscriptionInput{}, fmt.Errorf("unknown timezone %q", tz)
	}

	day, err := time.ParseInLocation("2006-01-02", args[3], loc)
	if err != nil {
		return app.SubscriptionInput{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", args[3])
	}
	payment := time.Date(day.Year(), day.Month(), day.Day(), defaultPaymentHour, 0, 0, 0, loc)

	cycle, err := parseCycle(args[4])
	if err != nil {
		return app.SubscriptionInput{}, err
	}

	return app.SubscriptionInput{
		Name:              strings.ReplaceAll(args[0], "_", " "),
		Price:             price,
		Currency:          strings.ToUpper(args[2]),
		PaymentDate:       payment,
		Timezone:          tz,
		Cycle:             cycle,
		Enabled:           true,
		NotificationRules: defaultRules(owner),
	}, nil
}

func parseCycle(raw string) (subscription.Cycle, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) < 2 {
		return subscription.Cycle{}, fmt.Errorf("invalid cycle %q, use e.g. 1m or 2w", raw)
	}
	n, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil || n < 1 {
		return subscription.Cycle{}, fmt.Errorf("invalid cycle %q, use e.g. 1m or 2w", raw)
	}
	var unit subscription.CycleUnit
	switch raw[len(raw)-1] {
	case 'd':
		unit = subscription.CycleDays
	case 'w':
		unit = subscription.CycleWeeks
	case 'm':
		unit = subscription.CycleMonths
	case 'y':
		unit = subscription.CycleYears
	default:
		return subscription.Cycle{}, fmt.Errorf("invalid cycle unit in %q, use d, w, m or y", raw)
	}
	return subscription.Cycle{Unit: unit, Interval: n}, nil
}

// defaultRules reminds a day ahead and on the day itself, by email too when
// the owner has an address.
func defaultRules(owner *user.User) []subscription.NotificationRule {
	channels := []subscription.Channel{subscription.ChannelPush}
	if owner != nil && owner.Email.Valid && owner.Email.String != "" {
		channels = append(channels, subscription.ChannelEmail)
	}
	return []subscription.NotificationRule{
		{Channels: channels, LeadTime: subscription.LeadTime{Unit: subscription.LeadDays, Amount: 1}},
		{Channels: channels, LeadTime: subscription.LeadTime{Unit: subscription.LeadInstant}},
	}
}

func formatUpcoming(payments []app.UpcomingPayment, horizon time.Duration) string {
	if len(payments) == 0 {
		return fmt.Sprintf("Nothing due in the next %d days.", int(horizon.Hours()/24))
	}
	var response strings.Builder
	response.WriteString("Upcoming payments:\n\n")
	for _, p := range payments {
		sub := p.Subscription
		line := fmt.Sprintf("%s  %s  %s %s", formatLocal(p.Occurrence.Date, sub), sub.Name, p.Occurrence.Price.StringFixed(2), sub.Currency)
		if p.Overdue {
			line += "  (overdue)"
		}
		if p.Remaining >= 0 {
			line += fmt.Sprintf("  [%d left]", p.Remaining)
		}
		response.WriteString(line + "\n")
	}
	return response.String()
}

func paidReply(sub *subscription.Subscription) string {
	if !sub.Enabled {
		return fmt.Sprintf("Marked %s as paid. That was the last payment, so reminders are now off.", sub.Name)
	}
	return fmt.Sprintf("Marked %s as paid. Next payment: %s.", sub.Name, formatLocal(sub.PaymentDate, sub))
}

func describeCycle(c subscription.Cycle) string {
	unit := strings.ToLower(string(c.Unit))
	if c.Interval == 1 {
		return "every " + strings.TrimSuffix(unit, "s")
	}
	return fmt.Sprintf("every %d %s", c.Interval, unit)
}

func formatLocal(t time.Time, sub *subscription.Subscription) string {
	return t.In(sub.Location()).Format("Mon, Jan 2 2006 15:04 MST")
}

func shortID(id uuid.UUID) string {
	return id.String()[:shortIDLen]
}

func enabledWord(enabled bool) string {
	if enabled {
		return "active"
	}
	return "paused"
}
