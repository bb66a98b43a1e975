// internal/domain/subscription/occurrence.go
package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

// Occurrence is one concrete payment instance. It is never persisted.
type Occurrence struct {
	Date  time.Time
	Price decimal.Decimal
}

// EnumerateOccurrences lists the payments from PaymentDate (inclusive) up to,
// but excluding, the earlier of horizon and UntilDate. Disabled subscriptions
// have no occurrences. Callers must pass a bounded horizon.
func EnumerateOccurrences(s *Subscription, horizon time.Time) ([]Occurrence, error) {
	if s == nil || !s.Enabled {
		return nil, nil
	}
	limit := horizon
	if s.UntilDate != nil && s.UntilDate.Before(limit) {
		limit = *s.UntilDate
	}

	loc := s.Location()
	var out []Occurrence
	for date := s.PaymentDate; date.Before(limit); {
		out = append(out, Occurrence{Date: date, Price: s.Price})
		next, err := Advance(date, loc, s.Cycle)
		if err != nil {
			return nil, err
		}
		date = next
	}
	return out, nil
}

// NextFutureOccurrence returns the first occurrence at or after now, or nil
// when the subscription is disabled or ends before one is reached.
func NextFutureOccurrence(s *Subscription, now time.Time) (*time.Time, error) {
	if s == nil || !s.Enabled {
		return nil, nil
	}
	loc := s.Location()
	date := s.PaymentDate
	for date.Before(now) {
		if s.UntilDate != nil && !date.Before(*s.UntilDate) {
			return nil, nil
		}
		next, err := Advance(date, loc, s.Cycle)
		if err != nil {
			return nil, err
		}
		date = next
	}
	if s.UntilDate != nil && !date.Before(*s.UntilDate) {
		return nil, nil
	}
	return &date, nil
}

// CountOccurrencesBetween counts the occurrences in [anchor, until) without
// collecting them. It agrees with EnumerateOccurrences for the same anchor,
// cycle and cutoff; anchor == until counts zero.
func CountOccurrencesBetween(anchor, until time.Time, loc *time.Location, cycle Cycle) (int, error) {
	if err := cycle.Check(); err != nil {
		return 0, err
	}
	count := 0
	for date := anchor; date.Before(until); count++ {
		next, err := Advance(date, loc, cycle)
		if err != nil {
			return 0, err
		}
		date = next
	}
	return count, nil
}
