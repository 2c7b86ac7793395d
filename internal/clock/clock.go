package clock

import (
	"fmt"
	"time"
)

// DefaultZone is the reference timezone for all due-date comparisons.
// Due dates are stored in UTC; day arithmetic and "is this past due"
// checks happen after converting into this zone so results don't depend
// on the server's local offset.
const DefaultZone = "America/Toronto"

// Clock supplies the current instant. Injectable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Civil wraps a time.Location and provides civil-time helpers.
type Civil struct {
	loc *time.Location
}

// LoadCivil resolves an IANA zone name into a Civil reference.
func LoadCivil(zone string) (*Civil, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &Civil{loc: loc}, nil
}

// MustLoadCivil is LoadCivil for fixed zone names known at compile time.
func MustLoadCivil(zone string) *Civil {
	c, err := LoadCivil(zone)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the underlying time.Location.
func (c *Civil) Location() *time.Location {
	return c.loc
}

// In converts t into the civil reference zone.
func (c *Civil) In(t time.Time) time.Time {
	return t.In(c.loc)
}

// StartOfDay truncates t to midnight of its civil day.
func (c *Civil) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// SameDay reports whether a and b fall on the same civil day.
func (c *Civil) SameDay(a, b time.Time) bool {
	return c.StartOfDay(a).Equal(c.StartOfDay(b))
}

// System is a Clock backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock pinned to a single instant, for tests.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
