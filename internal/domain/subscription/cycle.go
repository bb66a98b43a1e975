// internal/domain/subscription/cycle.go
package subscription

import (
	"fmt"
	"time"
)

// CycleUnit is the calendar unit a subscription recurs in.
type CycleUnit string

const (
	CycleDays   CycleUnit = "DAYS"
	CycleWeeks  CycleUnit = "WEEKS"
	CycleMonths CycleUnit = "MONTHS"
	CycleYears  CycleUnit = "YEARS"
)

// Cycle describes how often a subscription is billed, e.g. every 3 MONTHS.
type Cycle struct {
	Unit     CycleUnit `json:"time" validate:"required,oneof=DAYS WEEKS MONTHS YEARS"`
	Interval int       `json:"every" validate:"required,gte=1"`
}

func (c Cycle) String() string {
	return fmt.Sprintf("every %d %s", c.Interval, c.Unit)
}

// Check reports whether the cycle can be advanced at all.
func (c Cycle) Check() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidCycle, c.Interval)
	}
	switch c.Unit {
	case CycleDays, CycleWeeks, CycleMonths, CycleYears:
		return nil
	default:
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidCycle, c.Unit)
	}
}

// Advance returns the occurrence one cycle after anchor. The arithmetic runs on
// the wall clock of loc and is converted back to an instant at the end, so the
// local time of day survives DST changes. Month and year steps clamp the day to
// the end of the target month (Jan 31 -> Feb 28).
func Advance(anchor time.Time, loc *time.Location, cycle Cycle) (time.Time, error) {
	if err := cycle.Check(); err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}

	local := anchor.In(loc)
	y, m, d := local.Date()
	hh, mm, ss := local.Clock()
	ns := local.Nanosecond()

	switch cycle.Unit {
	case CycleDays:
		return time.Date(y, m, d+cycle.Interval, hh, mm, ss, ns, loc), nil
	case CycleWeeks:
		return time.Date(y, m, d+7*cycle.Interval, hh, mm, ss, ns, loc), nil
	case CycleMonths:
		ty, tm := addMonths(y, m, cycle.Interval)
		return time.Date(ty, tm, clampDay(ty, tm, d), hh, mm, ss, ns, loc), nil
	default: // CycleYears
		ty := y + cycle.Interval
		return time.Date(ty, m, clampDay(ty, m, d), hh, mm, ss, ns, loc), nil
	}
}

// AdvanceUntilAfter steps anchor forward one cycle at a time until it is
// strictly after reference. An anchor already after reference is returned as is.
func AdvanceUntilAfter(anchor time.Time, loc *time.Location, cycle Cycle, reference time.Time) (time.Time, error) {
	if err := cycle.Check(); err != nil {
		return time.Time{}, err
	}
	next := anchor
	for !next.After(reference) {
		var err error
		if next, err = Advance(next, loc, cycle); err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

func addMonths(y int, m time.Month, n int) (int, time.Month) {
	total := int(m) - 1 + n
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	return y, time.Month(total + 1)
}

// clampDay caps d at the last day of the given month.
func clampDay(y int, m time.Month, d int) int {
	last := time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if d > last {
		return last
	}
	return d
}
