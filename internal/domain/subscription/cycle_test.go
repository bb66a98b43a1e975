package subscription

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestAdvance_MonthEndClamps(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		want   []time.Time
	}{
		{
			name:   "non-leap year",
			anchor: time.Date(2025, 1, 31, 10, 30, 0, 0, time.UTC),
			want: []time.Time{
				time.Date(2025, 2, 28, 10, 30, 0, 0, time.UTC),
				time.Date(2025, 3, 28, 10, 30, 0, 0, time.UTC),
			},
		},
		{
			name:   "leap year",
			anchor: time.Date(2024, 1, 31, 10, 30, 0, 0, time.UTC),
			want: []time.Time{
				time.Date(2024, 2, 29, 10, 30, 0, 0, time.UTC),
				time.Date(2024, 3, 29, 10, 30, 0, 0, time.UTC),
			},
		},
	}

	monthly := Cycle{Unit: CycleMonths, Interval: 1}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.anchor
			for _, want := range tt.want {
				next, err := Advance(got, time.UTC, monthly)
				require.NoError(t, err)
				assert.True(t, want.Equal(next), "want %s, got %s", want, next)
				got = next
			}
		})
	}
}

func TestAdvance_Units(t *testing.T) {
	anchor := time.Date(2025, 5, 15, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		cycle Cycle
		want  time.Time
	}{
		{Cycle{CycleDays, 10}, time.Date(2025, 5, 25, 8, 0, 0, 0, time.UTC)},
		{Cycle{CycleWeeks, 2}, time.Date(2025, 5, 29, 8, 0, 0, 0, time.UTC)},
		{Cycle{CycleMonths, 3}, time.Date(2025, 8, 15, 8, 0, 0, 0, time.UTC)},
		{Cycle{CycleMonths, 8}, time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)},
		{Cycle{CycleYears, 2}, time.Date(2027, 5, 15, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.cycle.String(), func(t *testing.T) {
			got, err := Advance(anchor, time.UTC, tt.cycle)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestAdvance_LeapDayYearly(t *testing.T) {
	got, err := Advance(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), time.UTC, Cycle{CycleYears, 1})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC), got.UTC())
}

func TestAdvance_KeepsLocalTimeAcrossDST(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	// DST starts on 2025-03-09 in New York.
	anchor := time.Date(2025, 3, 7, 9, 0, 0, 0, ny)
	daily := Cycle{Unit: CycleDays, Interval: 1}

	date := anchor
	for i := 0; i < 4; i++ {
		next, err := Advance(date, ny, daily)
		require.NoError(t, err)
		local := next.In(ny)
		assert.Equal(t, 9, local.Hour())
		assert.Equal(t, 0, local.Minute())
		date = next
	}

	_, before := anchor.Zone()
	_, after := date.In(ny).Zone()
	assert.NotEqual(t, before, after, "offset should change across the transition")
	assert.Equal(t, 13, date.UTC().Hour())
}

func TestAdvance_UsesSubscriptionZoneNotUTC(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	// 2025-01-31 07:00 in Tokyo is still January 30 in UTC.
	anchor := time.Date(2025, 1, 31, 7, 0, 0, 0, tokyo)

	got, err := Advance(anchor, tokyo, Cycle{CycleMonths, 1})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 28, 7, 0, 0, 0, tokyo), got)
}

func TestAdvance_RejectsBadCycle(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, c := range []Cycle{{CycleDays, 0}, {CycleMonths, -1}, {"FORTNIGHTS", 1}} {
		_, err := Advance(anchor, time.UTC, c)
		assert.ErrorIs(t, err, ErrInvalidCycle, c.String())
	}
}

func TestAdvanceUntilAfter(t *testing.T) {
	monthly := Cycle{Unit: CycleMonths, Interval: 1}
	reference := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

	t.Run("catches up a stale anchor", func(t *testing.T) {
		got, err := AdvanceUntilAfter(time.Date(2020, 1, 15, 9, 0, 0, 0, time.UTC), time.UTC, monthly, reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC), got)
	})

	t.Run("anchor equal to reference moves one step", func(t *testing.T) {
		got, err := AdvanceUntilAfter(reference, time.UTC, monthly, reference)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("future anchor is kept", func(t *testing.T) {
		future := reference.Add(time.Hour)
		got, err := AdvanceUntilAfter(future, time.UTC, monthly, reference)
		require.NoError(t, err)
		assert.Equal(t, future, got)
	})

	t.Run("zero interval fails fast", func(t *testing.T) {
		_, err := AdvanceUntilAfter(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC, Cycle{CycleDays, 0}, reference)
		assert.ErrorIs(t, err, ErrInvalidCycle)
	})
}
