// internal/domain/subscription/notification.go
package subscription

import (
	"fmt"
	"time"
)

// Notification is the single next point in time at which reminders fire.
type Notification struct {
	Time     time.Time
	Channels []Channel
	IsRepeat bool
}

// FireTime returns when the rule fires for a payment due at payment.
// Minute and hour leads are absolute durations; day and week leads move the
// local calendar date in loc and keep the wall-clock time.
func (r NotificationRule) FireTime(payment time.Time, loc *time.Location) (time.Time, error) {
	if r.LeadTime.Amount < 0 {
		return time.Time{}, fmt.Errorf("%w: negative lead time %d", ErrInvalidRule, r.LeadTime.Amount)
	}
	if loc == nil {
		loc = time.UTC
	}
	n := r.LeadTime.Amount
	switch r.LeadTime.Unit {
	case LeadInstant:
		return payment, nil
	case LeadMinutes:
		return payment.Add(-time.Duration(n) * time.Minute), nil
	case LeadHours:
		return payment.Add(-time.Duration(n) * time.Hour), nil
	case LeadDays:
		return payment.In(loc).AddDate(0, 0, -n), nil
	case LeadWeeks:
		return payment.In(loc).AddDate(0, 0, -7*n), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown lead unit %q", ErrInvalidRule, r.LeadTime.Unit)
	}
}

// NextNotification picks the next reminder for s as seen at now.
//
// Rules still ahead of now compete for the earliest fire time; rules landing
// on exactly that instant are merged into one channel set. When every rule has
// already fired the payment is in its due phase: a repeat reminder fires at the
// payment date, or immediately once the payment is overdue. Nothing is ever
// scheduled at or after UntilDate. A nil result means there is nothing to send.
func NextNotification(s *Subscription, now time.Time) (*Notification, error) {
	if s == nil || !s.Enabled || len(s.NotificationRules) == 0 {
		return nil, nil
	}

	payment := s.PaymentDate
	loc := s.Location()
	beforeUntil := func(t time.Time) bool {
		return s.UntilDate == nil || t.Before(*s.UntilDate)
	}

	var (
		pending *Notification
		elapsed []Channel
	)
	for _, rule := range s.NotificationRules {
		at, err := rule.FireTime(payment, loc)
		if err != nil {
			return nil, err
		}
		if at.Before(now) {
			elapsed = mergeChannels(elapsed, rule.Channels)
			continue
		}
		if !beforeUntil(at) {
			continue
		}
		switch {
		case pending == nil || at.Before(pending.Time):
			pending = &Notification{Time: at, Channels: mergeChannels(nil, rule.Channels)}
		case at.Equal(pending.Time):
			pending.Channels = mergeChannels(pending.Channels, rule.Channels)
		}
	}

	if pending != nil {
		return pending, nil
	}
	if len(elapsed) == 0 {
		return nil, nil
	}

	at := payment
	if now.After(at) {
		at = now
	}
	if !beforeUntil(at) {
		return nil, nil
	}
	return &Notification{Time: at, Channels: elapsed, IsRepeat: true}, nil
}

// mergeChannels returns the union of a and b in canonical channel order.
func mergeChannels(a, b []Channel) []Channel {
	seen := make(map[Channel]bool, len(a)+len(b))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		seen[c] = true
	}
	out := make([]Channel, 0, len(seen))
	for _, c := range AllChannels {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}
