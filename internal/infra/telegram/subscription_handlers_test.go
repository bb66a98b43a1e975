package telegram

import (
	"database/sql"
	"testing"
	"time"

	"subscription_reminder_bot/internal/app"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "time/tzdata"
)

func TestParseAddArgs(t *testing.T) {
	in, err := parseAddArgs([]string{"Music_Plus", "9.99", "eur", "2025-01-31", "1m", "Europe/Berlin"}, &user.User{})
	require.NoError(t, err)

	assert.Equal(t, "Music Plus", in.Name)
	assert.True(t, decimal.RequireFromString("9.99").Equal(in.Price))
	assert.Equal(t, "EUR", in.Currency)
	assert.Equal(t, "Europe/Berlin", in.Timezone)
	assert.Equal(t, subscription.Cycle{Unit: subscription.CycleMonths, Interval: 1}, in.Cycle)
	assert.True(t, in.Enabled)

	berlin, _ := time.LoadLocation("Europe/Berlin")
	assert.True(t, time.Date(2025, 1, 31, 9, 0, 0, 0, berlin).Equal(in.PaymentDate))

	require.Len(t, in.NotificationRules, 2)
	assert.Equal(t, []subscription.Channel{subscription.ChannelPush}, in.NotificationRules[0].Channels)
}

func TestParseAddArgs_DefaultsAndEmail(t *testing.T) {
	owner := &user.User{Email: sql.NullString{String: "ana@example.com", Valid: true}}
	in, err := parseAddArgs([]string{"Gym", "30", "USD", "2025-03-01", "2w"}, owner)
	require.NoError(t, err)

	assert.Equal(t, "UTC", in.Timezone)
	assert.Equal(t, subscription.Cycle{Unit: subscription.CycleWeeks, Interval: 2}, in.Cycle)
	assert.Equal(t, []subscription.Channel{subscription.ChannelPush, subscription.ChannelEmail}, in.NotificationRules[1].Channels)
}

func TestParseAddArgs_Errors(t *testing.T) {
	tests := map[string][]string{
		"too few":      {"Gym", "30", "USD", "2025-03-01"},
		"bad price":    {"Gym", "thirty", "USD", "2025-03-01", "1m"},
		"bad date":     {"Gym", "30", "USD", "03/01/2025", "1m"},
		"bad cycle":    {"Gym", "30", "USD", "2025-03-01", "0m"},
		"bad unit":     {"Gym", "30", "USD", "2025-03-01", "1q"},
		"bad timezone": {"Gym", "30", "USD", "2025-03-01", "1m", "Mars/Olympus"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseAddArgs(args, nil)
			assert.Error(t, err)
		})
	}
}

func TestMatchSubscription(t *testing.T) {
	a := &subscription.Subscription{ID: uuid.MustParse("aaaa1111-0000-4000-8000-000000000001")}
	b := &subscription.Subscription{ID: uuid.MustParse("aaaa2222-0000-4000-8000-000000000002")}
	subs := []*subscription.Subscription{a, b}

	got, err := matchSubscription(subs, "AAAA1")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = matchSubscription(subs, "aaaa")
	assert.ErrorIs(t, err, errAmbiguousID)

	_, err = matchSubscription(subs, "ffff")
	assert.ErrorIs(t, err, subscription.ErrNotFound)

	_, err = matchSubscription(subs, " ")
	assert.ErrorIs(t, err, errMissingID)
}

func TestFormatUpcoming(t *testing.T) {
	sub := &subscription.Subscription{Name: "Music", Currency: "USD", Timezone: "UTC"}
	payments := []app.UpcomingPayment{
		{Subscription: sub, Occurrence: subscription.Occurrence{Date: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC), Price: decimal.RequireFromString("10")}, Overdue: true, Remaining: -1},
		{Subscription: sub, Occurrence: subscription.Occurrence{Date: time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC), Price: decimal.RequireFromString("10")}, Remaining: 2},
	}

	out := formatUpcoming(payments, 30*24*time.Hour)
	assert.Contains(t, out, "Tue, Jul 1 2025 09:00 UTC  Music  10.00 USD  (overdue)")
	assert.Contains(t, out, "[2 left]")
	assert.Equal(t, "Nothing due in the next 30 days.", formatUpcoming(nil, 30*24*time.Hour))
}

func TestDescribeCycle(t *testing.T) {
	assert.Equal(t, "every month", describeCycle(subscription.Cycle{Unit: subscription.CycleMonths, Interval: 1}))
	assert.Equal(t, "every 2 weeks", describeCycle(subscription.Cycle{Unit: subscription.CycleWeeks, Interval: 2}))
}
