// Package civiltime converts stored booking timestamps into Europe/Stockholm
// wall-clock values. All DST arithmetic for the studio lives here.
package civiltime

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
)

const (
	Zone          = "Europe/Stockholm"
	MinutesPerDay = 24 * 60
)

var Stockholm = mustLoadLocation(Zone)

var ErrUnparsable = errors.New("unparsable timestamp")

// Layouts carrying an explicit offset. pgx renders timestamptz::text with a
// short "+01" offset, so both forms are accepted.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02T15:04:05-07",
}

// Layouts without an offset are read as UTC instants.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

type Parts struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("civiltime: load %s: %v", name, err))
	}
	return loc
}

// Parse reads a stored timestamp. A bare date is midnight Stockholm time on
// that date.
func Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrUnparsable
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d.In(Stockholm), nil
	}
	return time.Time{}, ErrUnparsable
}

// StockholmMinutes returns minutes since Stockholm midnight of the timestamp's
// own calendar day.
func StockholmMinutes(raw string) (int, bool) {
	t, err := Parse(raw)
	if err != nil {
		return 0, false
	}
	local := t.In(Stockholm)
	return local.Hour()*60 + local.Minute(), true
}

func StockholmParts(raw string) (Parts, bool) {
	t, err := Parse(raw)
	if err != nil {
		return Parts{}, false
	}
	local := t.In(Stockholm)
	return Parts{
		Year:   local.Year(),
		Month:  local.Month(),
		Day:    local.Day(),
		Hour:   local.Hour(),
		Minute: local.Minute(),
		Second: local.Second(),
	}, true
}

// DateOf returns the Stockholm calendar date of t.
func DateOf(t time.Time) civil.Date {
	return civil.DateOf(t.In(Stockholm))
}

// DayBounds returns the instants of Stockholm midnight at the start of d and
// of the following day. The span is 23 or 25 hours on DST change days.
func DayBounds(d civil.Date) (time.Time, time.Time) {
	return d.In(Stockholm), d.AddDays(1).In(Stockholm)
}

// MinutesOn places t on the wall clock of day d. Instants before d clamp to 0
// and instants on a later date clamp to MinutesPerDay, so a booking spanning
// midnight is clipped to the evaluated day.
func MinutesOn(t time.Time, d civil.Date) int {
	local := t.In(Stockholm)
	day := civil.DateOf(local)
	switch {
	case day.Before(d):
		return 0
	case day.After(d):
		return MinutesPerDay
	}
	return local.Hour()*60 + local.Minute()
}

// At returns the instant for the given wall-clock minute on d.
func At(d civil.Date, minutes int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, minutes/60, minutes%60, 0, 0, Stockholm)
}

// ParseClock reads "HH:MM" (a trailing ":SS" is tolerated) as minutes since
// midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
