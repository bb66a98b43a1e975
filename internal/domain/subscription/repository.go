// internal/domain/subscription/repository.go
package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for subscriptions and their history.
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByUser(ctx context.Context, userID int64) ([]*Subscription, error)
	// ListDueForNotification returns enabled subscriptions of unblocked owners
	// whose cached next notification time is at or before now.
	ListDueForNotification(ctx context.Context, now time.Time) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	// UpdateNotificationSchedule persists only the cached notification fields.
	UpdateNotificationSchedule(ctx context.Context, s *Subscription) error

	// MarkPaid stores the advanced subscription together with its payment
	// record. Either both are written or neither is.
	MarkPaid(ctx context.Context, s *Subscription, p *PastPayment) error
	CreatePastNotification(ctx context.Context, n *PastNotification) error
}
