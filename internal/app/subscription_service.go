// internal/app/subscription_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Custom application-level errors for subscription operations
var ErrNotOwner = errors.New("subscription does not belong to this user")
var ErrStalePayment = errors.New("payment date no longer matches the subscription")
var ErrInvalidInput = errors.New("invalid subscription input")

var validate = validator.New()

// SubscriptionInput is what a user submits when creating or editing a subscription.
type SubscriptionInput struct {
	Name              string                          `validate:"required,max=255"`
	Price             decimal.Decimal                 `validate:"-"`
	Currency          string                          `validate:"required,len=3"`
	URL               string                          `validate:"omitempty,url"`
	Notes             string                          `validate:"max=4096"`
	PaymentDate       time.Time                       `validate:"required"`
	UntilDate         *time.Time                      `validate:"omitempty"`
	Timezone          string                          `validate:"required,timezone"`
	Cycle             subscription.Cycle              `validate:"required"`
	Enabled           bool                            `validate:"-"`
	NotificationRules []subscription.NotificationRule `validate:"dive"`
}

// UpcomingPayment is one occurrence shown to the user.
type UpcomingPayment struct {
	Subscription *subscription.Subscription
	Occurrence   subscription.Occurrence
	Overdue      bool
	// Remaining is the number of payments left before UntilDate, -1 when open-ended.
	Remaining int
}

// SubscriptionService owns every mutation of a subscription's schedule. It is
// the only caller of the notification selector on create, edit and payment.
type SubscriptionService struct {
	subRepo  subscription.Repository
	userRepo user.Repository
	logger   *logrus.Entry
	now      func() time.Time
}

func NewSubscriptionService(sr subscription.Repository, ur user.Repository, logger *logrus.Entry) *SubscriptionService {
	return &SubscriptionService{
		subRepo:  sr,
		userRepo: ur,
		logger:   logger.WithField("component", "subscription_service"),
		now:      time.Now,
	}
}

// Create validates the input, computes the first notification and stores the subscription.
func (s *SubscriptionService) Create(ctx context.Context, userID int64, in SubscriptionInput) (*subscription.Subscription, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load owner %d: %w", userID, err)
	}

	sub := &subscription.Subscription{
		ID:     uuid.New(),
		UserID: userID,
	}
	if err := applyInput(sub, in); err != nil {
		return nil, err
	}
	if err := refreshSchedule(sub, s.now()); err != nil {
		return nil, err
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"user_id":         userID,
		"cycle":           sub.Cycle.String(),
	}).Info("Subscription created")
	return sub, nil
}

// Edit replaces the user-editable fields. The cached notification is recomputed
// only when a field the schedule depends on changed.
func (s *SubscriptionService) Edit(ctx context.Context, userID int64, id uuid.UUID, in SubscriptionInput) (*subscription.Subscription, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	before := *sub
	if err := applyInput(sub, in); err != nil {
		return nil, err
	}
	if scheduleChanged(&before, sub) {
		if err := refreshSchedule(sub, s.now()); err != nil {
			return nil, err
		}
		s.logger.WithField("subscription_id", id).Debug("Schedule fields changed, notification recomputed")
	}

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to update subscription %s: %w", id, err)
	}
	return sub, nil
}

// MarkAsPaid advances the payment date by one cycle and records the payment
// for the previous date in the same write. A subscription whose next payment
// would fall on or after its until date is disabled instead. A paused
// subscription stays paused. When expected is set the call is
// rejected unless it still matches the current payment date to the second, so
// an old link or button cannot pay a later cycle.
func (s *SubscriptionService) MarkAsPaid(ctx context.Context, userID int64, id uuid.UUID, expected *time.Time) (*subscription.Subscription, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if expected != nil && !expected.Truncate(time.Second).Equal(sub.PaymentDate.Truncate(time.Second)) {
		return nil, ErrStalePayment
	}

	now := s.now()
	paidFor := sub.PaymentDate
	next, err := subscription.Advance(paidFor, sub.Location(), sub.Cycle)
	if err != nil {
		return nil, fmt.Errorf("failed to advance subscription %s: %w", id, err)
	}

	logger := s.logger.WithFields(logrus.Fields{"subscription_id": id, "paid_for": paidFor.Format(time.RFC3339)})
	final := sub.UntilDate != nil && !next.Before(*sub.UntilDate)
	if final {
		sub.Enabled = false
		sub.ApplyNotification(nil)
	} else {
		sub.PaymentDate = next
		if err := refreshSchedule(sub, now); err != nil {
			return nil, err
		}
	}

	payment := &subscription.PastPayment{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Price:          sub.Price,
		Currency:       sub.Currency,
		PaymentDate:    paidFor,
		PaidAt:         now,
	}
	if err := s.subRepo.MarkPaid(ctx, sub, payment); err != nil {
		return nil, fmt.Errorf("failed to record payment for subscription %s: %w", id, err)
	}

	if final {
		logger.Info("Final payment marked as paid, subscription disabled")
	} else {
		logger.WithFields(logrus.Fields{
			"next_payment": next.Format(time.RFC3339),
			"enabled":      sub.Enabled,
		}).Info("Payment marked as paid")
	}
	return sub, nil
}

// Upcoming lists the user's payments from each unpaid anchor up to now+horizon,
// ordered by date.
func (s *SubscriptionService) Upcoming(ctx context.Context, userID int64, horizon time.Duration) ([]UpcomingPayment, error) {
	subs, err := s.subRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for user %d: %w", userID, err)
	}

	now := s.now()
	var out []UpcomingPayment
	for _, sub := range subs {
		occurrences, err := subscription.EnumerateOccurrences(sub, now.Add(horizon))
		if err != nil {
			s.logger.WithError(err).WithField("subscription_id", sub.ID).Warn("Skipping subscription with invalid cycle")
			continue
		}
		for _, occ := range occurrences {
			remaining := -1
			if sub.UntilDate != nil {
				remaining, err = subscription.CountOccurrencesBetween(occ.Date, *sub.UntilDate, sub.Location(), sub.Cycle)
				if err != nil {
					return nil, err
				}
			}
			out = append(out, UpcomingPayment{
				Subscription: sub,
				Occurrence:   occ,
				Overdue:      occ.Date.Before(now),
				Remaining:    remaining,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Occurrence.Date.Before(out[j].Occurrence.Date)
	})
	return out, nil
}

// NextPayment returns the next payment of one subscription at or after now.
func (s *SubscriptionService) NextPayment(ctx context.Context, userID int64, id uuid.UUID) (*subscription.Subscription, *time.Time, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	next, err := subscription.NextFutureOccurrence(sub, s.now())
	if err != nil {
		return nil, nil, err
	}
	return sub, next, nil
}

// SetEnabled pauses or resumes a subscription. Resuming recomputes the
// notification from the current payment date.
func (s *SubscriptionService) SetEnabled(ctx context.Context, userID int64, id uuid.UUID, enabled bool) (*subscription.Subscription, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	in := InputFrom(sub)
	in.Enabled = enabled
	return s.Edit(ctx, userID, id, in)
}

// ListByUser returns every subscription of a user.
func (s *SubscriptionService) ListByUser(ctx context.Context, userID int64) ([]*subscription.Subscription, error) {
	return s.subRepo.ListByUser(ctx, userID)
}

func (s *SubscriptionService) owned(ctx context.Context, userID int64, id uuid.UUID) (*subscription.Subscription, error) {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		s.logger.WithFields(logrus.Fields{"subscription_id": id, "user_id": userID}).Warn("Unauthorized subscription access attempt")
		return nil, ErrNotOwner
	}
	return sub, nil
}

// InputFrom returns the editable fields of sub as an input, so callers can
// change a single field and pass the rest through Edit unchanged.
func InputFrom(sub *subscription.Subscription) SubscriptionInput {
	in := SubscriptionInput{
		Name:              sub.Name,
		Price:             sub.Price,
		Currency:          sub.Currency,
		URL:               sub.URL,
		Notes:             sub.Notes,
		PaymentDate:       sub.PaymentDate,
		Timezone:          sub.Timezone,
		Cycle:             sub.Cycle,
		Enabled:           sub.Enabled,
		NotificationRules: append([]subscription.NotificationRule(nil), sub.NotificationRules...),
	}
	if sub.UntilDate != nil {
		until := *sub.UntilDate
		in.UntilDate = &until
	}
	return in
}

func applyInput(sub *subscription.Subscription, in SubscriptionInput) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !in.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}

	sub.Name = in.Name
	sub.Price = in.Price
	sub.Currency = in.Currency
	sub.URL = in.URL
	sub.Notes = in.Notes
	sub.PaymentDate = in.PaymentDate
	sub.UntilDate = in.UntilDate
	sub.Timezone = in.Timezone
	sub.Cycle = in.Cycle
	sub.Enabled = in.Enabled
	sub.NotificationRules = append([]subscription.NotificationRule(nil), in.NotificationRules...)

	if err := subscription.ValidateSchedule(sub); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func refreshSchedule(sub *subscription.Subscription, now time.Time) error {
	next, err := subscription.NextNotification(sub, now)
	if err != nil {
		return fmt.Errorf("failed to compute next notification: %w", err)
	}
	sub.ApplyNotification(next)
	return nil
}

func scheduleChanged(before, after *subscription.Subscription) bool {
	if !before.PaymentDate.Equal(after.PaymentDate) ||
		before.Timezone != after.Timezone ||
		before.Cycle != after.Cycle ||
		before.Enabled != after.Enabled {
		return true
	}
	switch {
	case before.UntilDate == nil && after.UntilDate == nil:
	case before.UntilDate == nil || after.UntilDate == nil:
		return true
	case !before.UntilDate.Equal(*after.UntilDate):
		return true
	}
	return !reflect.DeepEqual(before.NotificationRules, after.NotificationRules)
}
