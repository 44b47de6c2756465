package giving

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frequency is how often a pledge is charged.
type Frequency string

const (
	Weekly    Frequency = "WEEKLY"
	Biweekly  Frequency = "BIWEEKLY"
	Monthly   Frequency = "MONTHLY"
	Quarterly Frequency = "QUARTERLY"
	Yearly    Frequency = "YEARLY"
)

// ErrUnknownFrequency is returned for frequencies outside the Frequency constants.
var ErrUnknownFrequency = errors.New("unknown pledge frequency")

// ParseFrequency converts a raw name (case-insensitive) into a Frequency.
func ParseFrequency(name string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(name)))
	switch f {
	case Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, name)
}

// NextChargeDate returns the charge date one period after from.
//
// Month-based frequencies keep the day of month and clamp to the last day of the target
// month when it is shorter (Jan 31 + 1 month = Feb 28 or 29; Feb 29 + 1 year = Feb 28).
// The wall-clock time and location of from are preserved. The result is always after from.
//
// Callers chain from the stored next charge date rather than the current time so that a
// late or repeated run lands on the same date.
func NextChargeDate(from time.Time, freq Frequency) (time.Time, error) {
	switch freq {
	case Weekly:
		return from.AddDate(0, 0, 7), nil
	case Biweekly:
		return from.AddDate(0, 0, 14), nil
	case Monthly:
		return addMonthsClamped(from, 1), nil
	case Quarterly:
		return addMonthsClamped(from, 3), nil
	case Yearly:
		return addMonthsClamped(from, 12), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
	}
}

// addMonthsClamped adds n (>= 0) calendar months to t without rolling over into the month after.
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	idx := int(month) - 1 + n
	targetYear := year + idx/12
	targetMonth := time.Month(idx%12 + 1)

	if last := daysIn(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, min, sec, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
