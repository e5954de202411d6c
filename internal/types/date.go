package types

import (
	"fmt"
	"time"
)

// NextBillingDate calculates the next billing date based on the given start
// time and billing interval. It leverages clamped date addition, which
// properly handles leap years and month-boundary issues (ex Jan 31 + 1 month
// lands on the last day of February).
func NextBillingDate(start time.Time, interval BillingInterval) (time.Time, error) {
	switch interval {
	case BillingIntervalMonth:
		return AddClampedDate(start, 0, 1, 0), nil
	case BillingIntervalYear:
		return AddClampedDate(start, 1, 0, 0), nil
	default:
		return start, fmt.Errorf("invalid billing interval: %s", interval)
	}
}

// AddClampedDate is like time.AddDate but clamps the day of month to the
// last valid day instead of rolling over into the next month.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d + days
	if newD > lastDay {
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location())
}

// PeriodLabel identifies a usage accounting period, ex "2026-08".
// Usage counters are keyed by (tenant, label) and reset lazily when the
// label rolls over.
type PeriodLabel string

// PeriodLabelFor returns the label of the period containing t.
func PeriodLabelFor(t time.Time) PeriodLabel {
	return PeriodLabel(t.UTC().Format("2006-01"))
}

// CurrentPeriodLabel returns the label for the current wall-clock period.
func CurrentPeriodLabel() PeriodLabel {
	return PeriodLabelFor(time.Now())
}

func (p PeriodLabel) String() string {
	return string(p)
}
