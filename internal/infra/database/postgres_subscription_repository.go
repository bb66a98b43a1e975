// internal/infra/database/postgres_subscription_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"subscription_reminder_bot/internal/domain/subscription"

	"github.com/google/uuid"
	"github.com/lib/pq" // For pq.Array
)

type PostgresSubscriptionRepository struct {
	db *sql.DB
}

func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

var subscriptionFields = []string{
	"id", "user_id", "name", "price", "currency", "url", "notes",
	"payment_date", "timezone", "cycle", "until_date", "enabled", "notification_rules",
	"next_notification_time", "next_notification_channels", "next_notification_is_repeat",
	"next_notification_payment_date", "created_at", "updated_at",
}

var subscriptionColumns = strings.Join(subscriptionFields, ", ")

// qualifiedColumns prefixes every subscription column with a table alias for joins.
func qualifiedColumns(alias string) string {
	cols := make([]string, len(subscriptionFields))
	for i, f := range subscriptionFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scheduleColumns flattens the cached notification into nullable columns.
type scheduleColumns struct {
	time        sql.NullTime
	channels    []string
	isRepeat    bool
	paymentDate sql.NullTime
}

func scheduleOf(s *subscription.Subscription) scheduleColumns {
	var c scheduleColumns
	if s.NextNotificationTime != nil {
		c.time = sql.NullTime{Time: *s.NextNotificationTime, Valid: true}
	}
	if d := s.NextNotificationDetails; d != nil {
		c.isRepeat = d.IsRepeat
		c.paymentDate = sql.NullTime{Time: d.PaymentDate, Valid: !d.PaymentDate.IsZero()}
		for _, ch := range d.Channels {
			c.channels = append(c.channels, string(ch))
		}
	}
	return c
}

func (r *PostgresSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	cycle, rules, err := encodeSchedule(s)
	if err != nil {
		return err
	}
	sc := scheduleOf(s)

	query := `INSERT INTO subscriptions (id, user_id, name, price, currency, url, notes,
                   payment_date, timezone, cycle, until_date, enabled, notification_rules,
                   next_notification_time, next_notification_channels, next_notification_is_repeat,
                   next_notification_payment_date)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
               RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		s.ID, s.UserID, s.Name, s.Price, s.Currency, s.URL, s.Notes,
		s.PaymentDate, s.Timezone, cycle, nullTime(s.UntilDate), s.Enabled, rules,
		sc.time, pq.Array(sc.channels), sc.isRepeat, sc.paymentDate,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating subscription: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("error getting subscription by ID: %w", err)
	}
	return s, nil
}

func (r *PostgresSubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
               FROM subscriptions
               WHERE user_id = $1 ORDER BY payment_date, name`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying subscriptions by user: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *PostgresSubscriptionRepository) ListDueForNotification(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	query := `SELECT ` + qualifiedColumns("s") + `
               FROM subscriptions s
               JOIN users u ON u.id = s.user_id
               WHERE s.enabled = TRUE
                 AND u.is_blocked = FALSE
                 AND s.next_notification_time IS NOT NULL
                 AND s.next_notification_time <= $1
               ORDER BY s.next_notification_time ASC` // Oldest reminders first
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error querying due subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *PostgresSubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	return updateSubscription(ctx, r.db, s)
}

func updateSubscription(ctx context.Context, q dbtx, s *subscription.Subscription) error {
	cycle, rules, err := encodeSchedule(s)
	if err != nil {
		return err
	}
	sc := scheduleOf(s)

	query := `UPDATE subscriptions
               SET name = $1, price = $2, currency = $3, url = $4, notes = $5,
                   payment_date = $6, timezone = $7, cycle = $8, until_date = $9, enabled = $10,
                   notification_rules = $11, next_notification_time = $12,
                   next_notification_channels = $13, next_notification_is_repeat = $14,
                   next_notification_payment_date = $15, updated_at = NOW()
               WHERE id = $16 AND user_id = $17
               RETURNING updated_at`
	err = q.QueryRowContext(ctx, query,
		s.Name, s.Price, s.Currency, s.URL, s.Notes,
		s.PaymentDate, s.Timezone, cycle, nullTime(s.UntilDate), s.Enabled,
		rules, sc.time, pq.Array(sc.channels), sc.isRepeat, sc.paymentDate,
		s.ID, s.UserID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subscription.ErrNotFound
		}
		return fmt.Errorf("error updating subscription: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepository) UpdateNotificationSchedule(ctx context.Context, s *subscription.Subscription) error {
	sc := scheduleOf(s)
	query := `UPDATE subscriptions
               SET next_notification_time = $1, next_notification_channels = $2,
                   next_notification_is_repeat = $3, next_notification_payment_date = $4,
                   updated_at = NOW()
               WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, sc.time, pq.Array(sc.channels), sc.isRepeat, sc.paymentDate, s.ID)
	if err != nil {
		return fmt.Errorf("error updating notification schedule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (r *PostgresSubscriptionRepository) MarkPaid(ctx context.Context, s *subscription.Subscription, p *subscription.PastPayment) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for payment: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if err := updateSubscription(ctx, txn, s); err != nil {
		return err
	}

	query := `INSERT INTO past_payments (id, subscription_id, user_id, price, currency, payment_date, paid_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = txn.ExecContext(ctx, query, p.ID, p.SubscriptionID, p.UserID, p.Price, p.Currency, p.PaymentDate, p.PaidAt)
	if err != nil {
		return fmt.Errorf("error creating past payment: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepository) CreatePastNotification(ctx context.Context, n *subscription.PastNotification) error {
	query := `INSERT INTO past_notifications (id, user_id, subscription_id, title, message, type, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query, n.ID, n.UserID, n.SubscriptionID, n.Title, n.Message, n.Type, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating past notification: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*subscription.Subscription, error) {
	var (
		s          subscription.Subscription
		cycle      []byte
		rules      []byte
		until      sql.NullTime
		nextTime   sql.NullTime
		channels   []string
		isRepeat   bool
		paidFor    sql.NullTime
		url, notes sql.NullString
	)
	if err := row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Price, &s.Currency, &url, &notes,
		&s.PaymentDate, &s.Timezone, &cycle, &until, &s.Enabled, &rules,
		&nextTime, pq.Array(&channels), &isRepeat, &paidFor, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.URL, s.Notes = url.String, notes.String
	if err := json.Unmarshal(cycle, &s.Cycle); err != nil {
		return nil, fmt.Errorf("error decoding cycle of subscription %s: %w", s.ID, err)
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &s.NotificationRules); err != nil {
			return nil, fmt.Errorf("error decoding notification rules of subscription %s: %w", s.ID, err)
		}
	}
	if until.Valid {
		t := until.Time
		s.UntilDate = &t
	}
	if nextTime.Valid {
		t := nextTime.Time
		s.NextNotificationTime = &t
		details := &subscription.NotificationDetails{IsRepeat: isRepeat, PaymentDate: paidFor.Time}
		for _, ch := range channels {
			details.Channels = append(details.Channels, subscription.Channel(ch))
		}
		s.NextNotificationDetails = details
	}
	return &s, nil
}

func scanSubscriptions(rows *sql.Rows) ([]*subscription.Subscription, error) {
	subs := make([]*subscription.Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning subscription row: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}

func encodeSchedule(s *subscription.Subscription) (cycle, rules []byte, err error) {
	if cycle, err = json.Marshal(s.Cycle); err != nil {
		return nil, nil, fmt.Errorf("error encoding cycle: %w", err)
	}
	if s.NotificationRules == nil {
		return cycle, []byte("[]"), nil
	}
	if rules, err = json.Marshal(s.NotificationRules); err != nil {
		return nil, nil, fmt.Errorf("error encoding notification rules: %w", err)
	}
	return cycle, rules, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
