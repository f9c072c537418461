package civiltime

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockholmMinutes_Formats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "rfc3339 utc winter", raw: "2026-01-15T09:00:00Z", want: 10 * 60},
		{name: "rfc3339 utc summer", raw: "2026-07-15T09:00:00Z", want: 11 * 60},
		{name: "explicit offset", raw: "2026-03-20T10:00:00+01:00", want: 10 * 60},
		{name: "pg text short offset", raw: "2026-03-20 10:15:00+01", want: 10*60 + 15},
		{name: "pg text fractional", raw: "2026-03-20 10:15:00.123456+01", want: 10*60 + 15},
		{name: "naive is utc", raw: "2026-03-20 09:00:00", want: 10 * 60},
		{name: "naive without seconds", raw: "2026-03-20T09:30", want: 10*60 + 30},
		{name: "date only", raw: "2026-03-20", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StockholmMinutes(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStockholmMinutes_Unparsable(t *testing.T) {
	for _, raw := range []string{"", "   ", "yesterday", "2026-13-40", "10:00"} {
		_, ok := StockholmMinutes(raw)
		assert.False(t, ok, "raw=%q", raw)

		_, ok = StockholmParts(raw)
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestStockholmParts_AcrossSpringForward(t *testing.T) {
	// 2026-03-29 02:00 CET jumps to 03:00 CEST.
	before, ok := StockholmParts("2026-03-29T00:30:00Z")
	require.True(t, ok)
	assert.Equal(t, Parts{Year: 2026, Month: time.March, Day: 29, Hour: 1, Minute: 30}, before)

	after, ok := StockholmParts("2026-03-29T01:30:00Z")
	require.True(t, ok)
	assert.Equal(t, Parts{Year: 2026, Month: time.March, Day: 29, Hour: 3, Minute: 30}, after)
}

func TestStockholmParts_DateRollsOverFromUTC(t *testing.T) {
	p, ok := StockholmParts("2026-06-30T22:30:00Z")
	require.True(t, ok)
	assert.Equal(t, 2026, p.Year)
	assert.Equal(t, time.July, p.Month)
	assert.Equal(t, 1, p.Day)
	assert.Equal(t, 0, p.Hour)
	assert.Equal(t, 30, p.Minute)
}

func TestDayBounds_DSTLength(t *testing.T) {
	start, end := DayBounds(civil.Date{Year: 2026, Month: time.March, Day: 29})
	assert.Equal(t, 23*time.Hour, end.Sub(start))

	start, end = DayBounds(civil.Date{Year: 2026, Month: time.October, Day: 25})
	assert.Equal(t, 25*time.Hour, end.Sub(start))

	start, end = DayBounds(civil.Date{Year: 2026, Month: time.March, Day: 20})
	assert.Equal(t, 24*time.Hour, end.Sub(start))
	assert.Equal(t, "2026-03-19T23:00:00Z", start.UTC().Format(time.RFC3339))
}

func TestMinutesOn_ClampsOtherDays(t *testing.T) {
	day := civil.Date{Year: 2026, Month: time.March, Day: 20}

	prev := time.Date(2026, 3, 19, 23, 0, 0, 0, Stockholm)
	assert.Equal(t, 0, MinutesOn(prev, day))

	next := time.Date(2026, 3, 21, 1, 0, 0, 0, Stockholm)
	assert.Equal(t, MinutesPerDay, MinutesOn(next, day))

	same := time.Date(2026, 3, 20, 17, 45, 0, 0, Stockholm)
	assert.Equal(t, 17*60+45, MinutesOn(same, day))
}

func TestAt_RoundTripsWithMinutesOn(t *testing.T) {
	day := civil.Date{Year: 2026, Month: time.July, Day: 1}
	at := At(day, 9*60+30)
	assert.Equal(t, "2026-07-01T07:30:00Z", at.UTC().Format(time.RFC3339))
	assert.Equal(t, 9*60+30, MinutesOn(at, day))
	assert.Equal(t, day, DateOf(at))
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, got)

	got, err = ParseClock(" 21:00:00 ")
	require.NoError(t, err)
	assert.Equal(t, 1260, got)

	for _, bad := range []string{"", "9.30", "25:00", "10:61", "ten"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, "input=%q", bad)
	}

	assert.Equal(t, "05:00", FormatClock(300))
	assert.Equal(t, "21:30", FormatClock(1290))
}
