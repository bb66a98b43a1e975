// internal/app/reminder_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// LinkSigner produces the signed mark-as-paid URL embedded in reminders.
type LinkSigner interface {
	MarkAsPaidURL(sub *subscription.Subscription) (string, error)
}

// Recorder receives sweep and delivery measurements.
type Recorder interface {
	ObserveDelivery(channel subscription.Channel, status string)
	ObserveSweep(duration time.Duration, processed int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDelivery(subscription.Channel, string) {}
func (nopRecorder) ObserveSweep(time.Duration, int)              {}

// Delivery outcome labels.
const (
	DeliveryStatusSent          = "sent"
	DeliveryStatusFailed        = "failed"
	DeliveryStatusNotConfigured = "not_configured"
	DeliveryStatusNoSender      = "no_sender"
	DeliveryStatusUnreachable   = "unreachable"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	Processed int
	Skipped   int
	Delivered int
	Failed    int
}

// ReminderService sends the reminders whose cached time has come and moves
// each subscription on to its next notification.
type ReminderService struct {
	subRepo      subscription.Repository
	userRepo     user.Repository
	senders      map[subscription.Channel]delivery.Sender
	links        LinkSigner
	recorder     Recorder
	logger       *logrus.Entry
	repeatEvery  time.Duration
	dashboardURL string
}

func NewReminderService(
	sr subscription.Repository,
	ur user.Repository,
	senders []delivery.Sender,
	links LinkSigner,
	recorder Recorder,
	logger *logrus.Entry,
	repeatEvery time.Duration,
	dashboardURL string,
) *ReminderService {
	byChannel := make(map[subscription.Channel]delivery.Sender, len(senders))
	for _, snd := range senders {
		byChannel[snd.Channel()] = snd
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if repeatEvery <= 0 {
		repeatEvery = 24 * time.Hour
	}
	return &ReminderService{
		subRepo:      sr,
		userRepo:     ur,
		senders:      byChannel,
		links:        links,
		recorder:     recorder,
		logger:       logger.WithField("component", "reminder_service"),
		repeatEvery:  repeatEvery,
		dashboardURL: dashboardURL,
	}
}

// Sweep processes every enabled subscription whose next notification time is
// at or before now. Each subscription is handled on its own; a failure on one
// does not stop the others. The schedule is persisted last, so a crash before
// that point leaves the row due and it is picked up again by the next sweep.
func (s *ReminderService) Sweep(ctx context.Context, now time.Time) (result SweepResult, err error) {
	started := time.Now()
	defer func() {
		s.recorder.ObserveSweep(time.Since(started), result.Processed)
	}()

	due, err := s.subRepo.ListDueForNotification(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	if len(due) == 0 {
		s.logger.Debug("No reminders due")
		return result, nil
	}
	s.logger.WithField("count", len(due)).Info("Processing due reminders")

	for _, sub := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		delivered, failed, err := s.process(ctx, sub, now)
		switch {
		case errors.Is(err, errNoRecipient):
			result.Skipped++
			s.logger.WithError(err).WithField("subscription_id", sub.ID).Info("Reminder skipped")
			continue
		case err != nil:
			result.Skipped++
			s.logger.WithError(err).WithField("subscription_id", sub.ID).Error("Failed to process reminder")
			continue
		}
		result.Processed++
		result.Delivered += delivered
		result.Failed += failed
	}

	s.logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"delivered": result.Delivered,
		"failed":    result.Failed,
	}).Info("Reminder sweep finished")
	return result, nil
}

// errNoRecipient marks a due subscription whose owner cannot receive reminders.
var errNoRecipient = errors.New("owner cannot receive reminders")

func (s *ReminderService) process(ctx context.Context, sub *subscription.Subscription, now time.Time) (delivered, failed int, err error) {
	logger := s.logger.WithFields(logrus.Fields{"subscription_id": sub.ID, "user_id": sub.UserID})

	firedAt := now
	if sub.NextNotificationTime != nil {
		firedAt = *sub.NextNotificationTime
	}

	owner, err := s.userRepo.GetByID(ctx, sub.UserID)
	if errors.Is(err, user.ErrNotFound) {
		// Nobody left to remind; drop the schedule so the row is not picked up again.
		sub.ApplyNotification(nil)
		if err := s.subRepo.UpdateNotificationSchedule(ctx, sub); err != nil {
			return 0, 0, fmt.Errorf("failed to clear schedule of orphaned subscription: %w", err)
		}
		return 0, 0, fmt.Errorf("%w: owner %d no longer exists", errNoRecipient, sub.UserID)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load owner: %w", err)
	}
	if owner.IsBlocked {
		if err := s.reschedule(sub, firedAt, now); err != nil {
			return 0, 0, err
		}
		if err := s.subRepo.UpdateNotificationSchedule(ctx, sub); err != nil {
			return 0, 0, fmt.Errorf("failed to persist next notification: %w", err)
		}
		return 0, 0, fmt.Errorf("%w: owner %d is blocked", errNoRecipient, owner.ID)
	}

	details := sub.NextNotificationDetails
	if details == nil || len(details.Channels) == 0 {
		// Cached details went missing; fall back to what the selector says now.
		next, err := subscription.NextNotification(sub, now)
		if err != nil {
			return 0, 0, err
		}
		if next == nil || next.Time.After(now) {
			sub.ApplyNotification(next)
			return 0, 0, s.subRepo.UpdateNotificationSchedule(ctx, sub)
		}
		sub.ApplyNotification(next)
		firedAt, details = next.Time, sub.NextNotificationDetails
	}

	kind := kindOf(firedAt, details)
	title, text := renderMessage(sub, kind, details.PaymentDate, now)
	msg := delivery.Message{
		Kind:         kind,
		Title:        title,
		Text:         text,
		DashboardURL: s.dashboardURL,
		Subscription: sub,
		SentAt:       now,
	}
	if s.links != nil {
		if msg.MarkAsPaidURL, err = s.links.MarkAsPaidURL(sub); err != nil {
			logger.WithError(err).Warn("Could not sign mark-as-paid link, sending without it")
		}
	}

	delivered, failed, chatGone := s.fanOut(ctx, owner, msg, details.Channels, logger)
	if chatGone {
		if err := s.userRepo.SetBlocked(ctx, owner.ID, true); err != nil {
			logger.WithError(err).Warn("Failed to mark owner as blocked")
		} else {
			logger.Info("Owner's Telegram chat is unreachable, owner marked as blocked")
		}
	}

	if err := s.reschedule(sub, firedAt, now); err != nil {
		return delivered, failed, err
	}
	if err := s.subRepo.UpdateNotificationSchedule(ctx, sub); err != nil {
		return delivered, failed, fmt.Errorf("failed to persist next notification: %w", err)
	}

	if delivered > 0 {
		record := &subscription.PastNotification{
			ID:             uuid.New(),
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			Title:          title,
			Message:        text,
			Type:           subscription.NotificationTypePaymentDue,
			CreatedAt:      now,
		}
		if err := s.subRepo.CreatePastNotification(ctx, record); err != nil {
			logger.WithError(err).Warn("Failed to record past notification")
		}
	}
	return delivered, failed, nil
}

// fanOut sends msg on every channel concurrently. One channel failing never
// blocks or cancels the others. chatGone reports that the owner's Telegram
// chat rejected the PUSH message.
func (s *ReminderService) fanOut(ctx context.Context, owner *user.User, msg delivery.Message, channels []subscription.Channel, logger *logrus.Entry) (delivered, failed int, chatGone bool) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs *multierror.Error
	)
	for _, ch := range channels {
		sender, ok := s.senders[ch]
		if !ok {
			s.recorder.ObserveDelivery(ch, DeliveryStatusNoSender)
			logger.WithField("channel", ch).Warn("No sender registered for channel")
			continue
		}
		wg.Add(1)
		go func(ch subscription.Channel, sender delivery.Sender) {
			defer wg.Done()
			err := sender.Send(ctx, owner, msg)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				delivered++
				s.recorder.ObserveDelivery(ch, DeliveryStatusSent)
			case errors.Is(err, delivery.ErrNotConfigured):
				s.recorder.ObserveDelivery(ch, DeliveryStatusNotConfigured)
			case errors.Is(err, delivery.ErrRecipientUnreachable):
				failed++
				chatGone = chatGone || ch == subscription.ChannelPush
				s.recorder.ObserveDelivery(ch, DeliveryStatusUnreachable)
				logger.WithField("channel", ch).WithError(err).Info("Recipient is unreachable on channel")
			default:
				failed++
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", ch, err))
				s.recorder.ObserveDelivery(ch, DeliveryStatusFailed)
			}
		}(ch, sender)
	}
	wg.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		logger.WithError(err).Warn("Some channels failed to deliver")
	}
	return delivered, failed, chatGone
}

// reschedule moves the cached notification past the one just handled. A
// repeat reminder that would fire again immediately is pushed out by the
// configured repeat interval, which sets the overdue reminder cadence.
func (s *ReminderService) reschedule(sub *subscription.Subscription, firedAt, now time.Time) error {
	reference := now
	if !reference.After(firedAt) {
		reference = firedAt.Add(time.Nanosecond)
	}
	next, err := subscription.NextNotification(sub, reference)
	if err != nil {
		return fmt.Errorf("failed to compute next notification: %w", err)
	}
	if next != nil && next.IsRepeat && !next.Time.After(reference) {
		next.Time = now.Add(s.repeatEvery)
		if sub.UntilDate != nil && !next.Time.Before(*sub.UntilDate) {
			next = nil
		}
	}
	sub.ApplyNotification(next)
	return nil
}
