package domain

import (
	"errors"

	"cloud.google.com/go/civil"
)

// WeeklyOccurrence is one week of a repeated booking.
type WeeklyOccurrence struct {
	Week int
	Date civil.Date
}

// SuggestionGrid is the set of start times searched for substitutes:
// every :00 and :30 from 05:00 through 21:30.
var SuggestionGrid = buildSuggestionGrid(5, 21)

// GenerateWeeklyOccurrences expands a start date into weeks consecutive
// civil dates, 7 days apart. Week numbers are 1-based.
func GenerateWeeklyOccurrences(start civil.Date, weeks int) ([]WeeklyOccurrence, error) {
	if !start.IsValid() {
		return nil, errors.New("invalid date")
	}
	if weeks < 1 {
		return nil, errors.New("repeat weeks must be at least 1")
	}

	out := make([]WeeklyOccurrence, 0, weeks)
	for i := 0; i < weeks; i++ {
		out = append(out, WeeklyOccurrence{Week: i + 1, Date: start.AddDays(7 * i)})
	}
	return out, nil
}

func buildSuggestionGrid(firstHour, lastHour int) []int {
	out := make([]int, 0, (lastHour-firstHour+1)*2)
	for h := firstHour; h <= lastHour; h++ {
		out = append(out, h*60, h*60+30)
	}
	return out
}
