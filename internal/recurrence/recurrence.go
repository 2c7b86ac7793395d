package recurrence

import (
	"fmt"
	"time"

	"github.com/ashgrove/rota/internal/clock"
)

// Frequency is how often a recurring task cycles.
type Frequency string

const (
	Once    Frequency = "ONCE"
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Custom  Frequency = "CUSTOM"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case Once, Daily, Weekly, Monthly, Custom:
		return true
	}
	return false
}

// Recurring reports whether tasks with this frequency cycle at all.
func (f Frequency) Recurring() bool {
	return f.Valid() && f != Once
}

// Parse validates a frequency string.
func Parse(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown frequency: %q", s)
	}
	return f, nil
}

// NextDueDate computes the due date of the following cycle. The current due
// date is normalized into the civil reference zone before any arithmetic so
// the result is stable across server offsets and DST transitions. MONTHLY
// advances by one calendar month, not a fixed day count.
//
// intervalDays only applies to CUSTOM; a non-positive interval falls back to
// weekly. ONCE never has a recurrence cursor in practice; it defaults to one
// month ahead.
func NextDueDate(civil *clock.Civil, f Frequency, current time.Time, intervalDays int) time.Time {
	cur := civil.In(current)

	switch f {
	case Daily:
		return cur.AddDate(0, 0, 1)
	case Weekly:
		return cur.AddDate(0, 0, 7)
	case Monthly:
		return cur.AddDate(0, 1, 0)
	case Custom:
		if intervalDays > 0 {
			return cur.AddDate(0, 0, intervalDays)
		}
		return cur.AddDate(0, 0, 7)
	default:
		return cur.AddDate(0, 1, 0)
	}
}
