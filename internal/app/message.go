package app

import (
	"fmt"
	"time"

	"subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
)

// kindOf decides whether a scheduled notification announces an upcoming
// payment, a payment due right now, or an overdue reminder.
func kindOf(notifyAt time.Time, details *subscription.NotificationDetails) delivery.Kind {
	switch {
	case details.PaymentDate.Equal(notifyAt):
		return delivery.KindDue
	case details.IsRepeat:
		return delivery.KindReminder
	default:
		return delivery.KindUpcoming
	}
}

func renderMessage(sub *subscription.Subscription, kind delivery.Kind, paymentDate, now time.Time) (title, text string) {
	price := formatPrice(sub)
	switch kind {
	case delivery.KindDue:
		return fmt.Sprintf("%s payment due", sub.Name),
			fmt.Sprintf("Your %s payment of %s is due now.", sub.Name, price)
	case delivery.KindReminder:
		return fmt.Sprintf("%s payment reminder", sub.Name),
			fmt.Sprintf("Your %s payment of %s was due %s and is not marked as paid yet.",
				sub.Name, price, paymentDate.In(sub.Location()).Format("Jan 2, 2006 15:04"))
	default:
		return fmt.Sprintf("Upcoming %s payment", sub.Name),
			fmt.Sprintf("Your %s payment of %s is due %s.", sub.Name, price, relativeTime(paymentDate, now))
	}
}

func formatPrice(sub *subscription.Subscription) string {
	return fmt.Sprintf("%s %s", sub.Price.StringFixed(2), sub.Currency)
}

// relativeTime renders "in 2 weeks", "in 3 days", "in 5 hours" or "in 10 minutes",
// using the largest unit that fits at least once.
func relativeTime(at, now time.Time) string {
	d := at.Sub(now)
	if d < time.Minute {
		return "now"
	}
	units := []struct {
		size time.Duration
		name string
	}{
		{7 * 24 * time.Hour, "week"},
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
	}
	for _, u := range units {
		if n := int(d / u.size); n >= 1 {
			if n == 1 {
				return fmt.Sprintf("in 1 %s", u.name)
			}
			return fmt.Sprintf("in %d %ss", n, u.name)
		}
	}
	return "now"
}
