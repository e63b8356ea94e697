package clock

import (
	"fmt"
	"time"
)

// Clock supplies the current instant. Scheduling code receives a Clock
// instead of calling time.Now so that results depend only on their inputs.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock and reports it in Location.
type System struct {
	Location *time.Location
}

// NewSystem returns a System clock for the named IANA time zone.
// An empty name means UTC.
func NewSystem(tz string) (System, error) {
	if tz == "" {
		return System{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return System{}, fmt.Errorf("failed to load time zone %q: %w", tz, err)
	}
	return System{Location: loc}, nil
}

func (s System) Now() time.Time {
	if s.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(s.Location)
}

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Today returns the calendar date of c.Now() in the clock's own location.
func Today(c Clock) Date {
	return DateOf(c.Now())
}
