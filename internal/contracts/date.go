package contracts

import (
	"fmt"
	"time"
)

// DateLayout is the canonical calendar-day format used in keys, markers,
// and artifact paths.
const DateLayout = "2006-01-02"

// Date is a UTC calendar day in YYYY-MM-DD form. The ISO ordering of the
// string form matches chronological ordering, so Date values compare and
// sort correctly as plain strings.
type Date string

// NewDate truncates t to its UTC calendar day.
func NewDate(t time.Time) Date {
	return Date(t.UTC().Format(DateLayout))
}

// Today returns the current UTC calendar day.
func Today() Date {
	return NewDate(time.Now())
}

// ParseDate validates s as a YYYY-MM-DD day.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return NewDate(t), nil
}

// Time returns the day at midnight UTC. Invalid dates return the zero time.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// AddDays returns the day shifted by n calendar days (n may be negative).
func (d Date) AddDays(n int) Date {
	return NewDate(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return string(d) < string(other)
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return string(d) > string(other)
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d == ""
}

func (d Date) String() string {
	return string(d)
}

// Season labels an NBA season by its start and end years, e.g. "2024-25".
type Season string

// seasonCutoverMonth is the first month counted toward the next season.
// Games from August onward belong to the season starting that year.
const seasonCutoverMonth = time.August

// SeasonOf derives the season a calendar day belongs to.
func SeasonOf(d Date) Season {
	t := d.Time()
	start := t.Year()
	if t.Month() < seasonCutoverMonth {
		start--
	}
	return Season(fmt.Sprintf("%d-%02d", start, (start+1)%100))
}

// Season returns the season the day belongs to.
func (d Date) Season() Season {
	return SeasonOf(d)
}

func (s Season) String() string {
	return string(s)
}
