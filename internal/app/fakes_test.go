package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type memSubscriptionRepo struct {
	mu            sync.Mutex
	subs          map[uuid.UUID]subscription.Subscription
	payments      []*subscription.PastPayment
	notifications []*subscription.PastNotification
	scheduleSaves int

	// owners, when set, hides subscriptions of blocked users from the due list.
	owners *memUserRepo
	// failScheduleSaves makes the next n schedule writes fail.
	failScheduleSaves int
	paymentErr        error
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{subs: map[uuid.UUID]subscription.Subscription{}}
}

func (r *memSubscriptionRepo) Create(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.ID] = *s
	return nil
}

func (r *memSubscriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return &s, nil
}

func (r *memSubscriptionRepo) ListByUser(_ context.Context, userID int64) ([]*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*subscription.Subscription
	for _, s := range r.subs {
		if s.UserID == userID {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memSubscriptionRepo) ListDueForNotification(_ context.Context, now time.Time) ([]*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*subscription.Subscription
	for _, s := range r.subs {
		if r.owners != nil {
			if owner, ok := r.owners.users[s.UserID]; ok && owner.IsBlocked {
				continue
			}
		}
		if s.Enabled && s.NextNotificationTime != nil && !s.NextNotificationTime.After(now) {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (r *memSubscriptionRepo) Update(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s.ID]; !ok {
		return subscription.ErrNotFound
	}
	r.subs[s.ID] = *s
	return nil
}

func (r *memSubscriptionRepo) UpdateNotificationSchedule(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.subs[s.ID]
	if !ok {
		return subscription.ErrNotFound
	}
	if r.failScheduleSaves > 0 {
		r.failScheduleSaves--
		return errBoom
	}
	stored.NextNotificationTime = s.NextNotificationTime
	stored.NextNotificationDetails = s.NextNotificationDetails
	r.subs[s.ID] = stored
	r.scheduleSaves++
	return nil
}

func (r *memSubscriptionRepo) MarkPaid(_ context.Context, s *subscription.Subscription, p *subscription.PastPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paymentErr != nil {
		return r.paymentErr
	}
	if _, ok := r.subs[s.ID]; !ok {
		return subscription.ErrNotFound
	}
	r.subs[s.ID] = *s
	r.payments = append(r.payments, p)
	return nil
}

func (r *memSubscriptionRepo) CreatePastNotification(_ context.Context, n *subscription.PastNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *memSubscriptionRepo) get(id uuid.UUID) subscription.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id]
}

type memUserRepo struct {
	users map[int64]*user.User
}

func newMemUserRepo(users ...*user.User) *memUserRepo {
	r := &memUserRepo{users: map[int64]*user.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Create(_ context.Context, u *user.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByTelegramID(_ context.Context, telegramID int64) (*user.User, error) {
	for _, u := range r.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *memUserRepo) UpdateEmail(_ context.Context, id int64, email sql.NullString) error {
	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Email = email
	return nil
}

func (r *memUserRepo) UpdateExternalServices(_ context.Context, id int64, services user.ExternalServices) error {
	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.ExternalServices = services
	return nil
}

func (r *memUserRepo) SetBlocked(_ context.Context, id int64, blocked bool) error {
	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.IsBlocked = blocked
	return nil
}

type fakeSender struct {
	mu      sync.Mutex
	channel subscription.Channel
	err     error
	sent    []delivery.Message
}

func (f *fakeSender) Channel() subscription.Channel { return f.channel }

func (f *fakeSender) Send(_ context.Context, _ *user.User, msg delivery.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeLinks struct{}

func (fakeLinks) MarkAsPaidURL(s *subscription.Subscription) (string, error) {
	return "https://example.test/api/mark-as-paid?token=" + s.ID.String(), nil
}

type countingRecorder struct {
	mu       sync.Mutex
	statuses map[string]int
	sweeps   int
}

func (c *countingRecorder) ObserveDelivery(_ subscription.Channel, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statuses == nil {
		c.statuses = map[string]int{}
	}
	c.statuses[status]++
}

func (c *countingRecorder) ObserveSweep(time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
}

var errBoom = errors.New("boom")

// clock is a settable time source for services under test.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
