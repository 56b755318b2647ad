package clock

import (
	"fmt"
	"time"
)

// Clock supplies the current instant. Inject a fixed or stepped clock in
// tests instead of patching global time.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// System reads the wall clock.
var System Clock = Func(time.Now)

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// Day is a calendar day, counted in whole days since the Unix epoch as
// resolved in the owner's time zone. All deadline comparisons in the engine
// use Day values, never raw timestamps or string prefixes.
type Day int

const dayFormat = "2006-01-02"

// DayOf resolves an instant to the calendar day observed in loc.
// A nil loc falls back to UTC.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Day(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Add returns the day n calendar days later.
func (d Day) Add(n int) Day { return d + Day(n) }

// Sub returns the signed day-count difference d - o.
func (d Day) Sub(o Day) int { return int(d - o) }

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

func (d Day) String() string { return d.Time().Format(dayFormat) }

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return 0, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t, time.UTC), nil
}

// MarshalJSON serializes the day as a quoted YYYY-MM-DD string so the
// day-uniqueness invariant stays visible at the wire level.
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Day) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid day %s", string(data))
	}
	parsed, err := ParseDay(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LoadZone resolves an IANA zone name, with UTC as the documented fallback
// for an empty or unknown name.
func LoadZone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
