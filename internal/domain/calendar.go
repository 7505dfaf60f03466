package domain

import (
	"fmt"
	"time"
)

// BillingZone is the fixed civil calendar every due-date decision is made in.
// It is a constant UTC-4 offset and never follows the host's local time zone.
var BillingZone = time.FixedZone("UTC-4", -4*60*60)

// CivilDate is a calendar date without a time of day or zone.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseCivilDate parses a YYYY-MM-DD date.
func ParseCivilDate(s string) (CivilDate, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return CivilDate{}, fmt.Errorf("parsing civil date %q: %w", s, err)
	}
	return CivilDateOf(t), nil
}

// CivilDateOf returns the date part of t in t's own location.
func CivilDateOf(t time.Time) CivilDate {
	y, m, d := t.Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// Today returns the civil date of now in BillingZone.
func Today(now time.Time) CivilDate {
	return CivilDateOf(now.In(BillingZone))
}

// Compare returns -1, 0 or +1 comparing by year, then month, then day.
func (d CivilDate) Compare(other CivilDate) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero date.
func (d CivilDate) IsZero() bool {
	return d == CivilDate{}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month normalises to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DueDay returns the day of month the anchor bills on in the given month:
// the anchor's day clamped to the month's length.
func DueDay(anchor CivilDate, year int, month time.Month) int {
	return min(anchor.Day, DaysIn(year, month))
}

// IsDueToday reports whether a tenant anchored on anchor is billed on today.
func IsDueToday(anchor, today CivilDate) bool {
	if today.Compare(anchor) < 0 {
		return false
	}
	return today.Day == DueDay(anchor, today.Year, today.Month)
}

// NextDue returns the first date on or after from that a tenant anchored on
// anchor is billed on.
func NextDue(anchor, from CivilDate) CivilDate {
	if from.Compare(anchor) < 0 {
		from = anchor
	}
	y, m := from.Year, from.Month
	for {
		due := CivilDate{Year: y, Month: m, Day: DueDay(anchor, y, m)}
		if due.Compare(from) >= 0 {
			return due
		}
		if m == time.December {
			y, m = y+1, time.January
		} else {
			m++
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
