package timeslot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

const testTable = "1=9:00 AM-9:50 AM,2=9:50 AM-10:40 AM,3=10:50 AM-11:40 AM,4=11:40 AM-12:30 PM,5=1:20 PM-2:10 PM,6=2:10 PM-3:00 PM,7=3:00 PM-3:50 PM"

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := ParseTable(testTable)
	require.NoError(t, err)
	return r
}

func TestParseClock(t *testing.T) {
	cases := map[string]Clock{
		"9:00 AM":  NewClock(9, 0),
		"09:05am":  NewClock(9, 5),
		" 9:50 AM": NewClock(9, 50),
		"12:00 AM": NewClock(0, 0),
		"12:30 PM": NewClock(12, 30),
		"1:20PM":   NewClock(13, 20),
		"11:59 pm": NewClock(23, 59),
	}
	for raw, want := range cases {
		got, err := ParseClock(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseClockRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "9", "9:00", "13:00 PM", "0:15 AM", "9:60 AM", "nine AM", "9:00 XM"} {
		_, err := ParseClock(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidTimeFormat), raw)
	}
}

func TestClockString(t *testing.T) {
	assert.Equal(t, "9:05 AM", NewClock(9, 5).String())
	assert.Equal(t, "12:00 AM", NewClock(0, 0).String())
	assert.Equal(t, "12:30 PM", NewClock(12, 30).String())
	assert.Equal(t, "3:50 PM", NewClock(15, 50).String())
}

func TestPeriodForTimeBoundaries(t *testing.T) {
	r := newTestResolver(t)

	cases := []struct {
		raw    string
		period int
		ok     bool
	}{
		{"8:59 AM", 0, false},
		{"9:00 AM", 1, true},
		{"9:15 AM", 1, true},
		{"9:49 AM", 1, true},
		{"9:50 AM", 2, true},
		{"10:45 AM", 0, false},
		{"12:30 PM", 0, false},
		{"1:00 PM", 0, false},
		{"1:20 PM", 5, true},
		{"3:49 PM", 7, true},
		{"3:50 PM", 0, false},
	}
	for _, tc := range cases {
		got, ok, err := r.PeriodForTime(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.period, got, tc.raw)
	}
}

func TestPeriodForTimeInvalidFormat(t *testing.T) {
	r := newTestResolver(t)
	_, _, err := r.PeriodForTime("25:00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTimeFormat))
}

func TestPeriodForIsTotalOverTheDay(t *testing.T) {
	r := newTestResolver(t)
	for m := 0; m < 24*60; m++ {
		c := Clock(m)
		n, ok := r.PeriodFor(c)
		if !ok {
			continue
		}
		start, err := r.StartTimeOf(n)
		require.NoError(t, err)
		end, err := r.EndTimeOf(n)
		require.NoError(t, err)
		assert.True(t, c >= start && c < end, "minute %d resolved to period %d", m, n)

		// round trip through the textual form
		fromText, okText, err := r.PeriodForTime(c.String())
		require.NoError(t, err)
		assert.True(t, okText)
		assert.Equal(t, n, fromText)
	}
}

func TestNextPeriodAfter(t *testing.T) {
	r := newTestResolver(t)

	n, ok := r.NextPeriodAfter(NewClock(8, 0))
	require.True(t, ok)
	assert.Equal(t, 1, n)

	n, ok = r.NextPeriodAfter(NewClock(9, 0))
	require.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = r.NextPeriodAfter(NewClock(12, 45))
	require.True(t, ok)
	assert.Equal(t, 5, n)

	_, ok = r.NextPeriodAfter(NewClock(15, 0))
	assert.False(t, ok)
}

func TestEndTimeOf(t *testing.T) {
	r := newTestResolver(t)

	end, err := r.EndTimeOf(4)
	require.NoError(t, err)
	assert.Equal(t, NewClock(12, 30), end)

	_, err = r.EndTimeOf(9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnknownPeriod))

	_, err = r.StartTimeOf(0)
	assert.True(t, errors.Is(err, appErrors.ErrUnknownPeriod))
}

func TestPeriodAtUsesWallClock(t *testing.T) {
	r := newTestResolver(t)
	at := time.Date(2024, time.March, 4, 13, 25, 0, 0, time.FixedZone("IST", 5*3600+1800))
	n, ok := r.PeriodAt(at)
	require.True(t, ok)
	assert.Equal(t, 5, n)
}

func TestNewResolverValidation(t *testing.T) {
	_, err := NewResolver(nil)
	assert.Error(t, err)

	_, err = NewResolver([]Period{{Number: 1, Start: NewClock(9, 0), End: NewClock(9, 0)}})
	assert.Error(t, err)

	_, err = NewResolver([]Period{
		{Number: 1, Start: NewClock(9, 0), End: NewClock(10, 0)},
		{Number: 2, Start: NewClock(9, 30), End: NewClock(10, 30)},
	})
	assert.Error(t, err)

	_, err = NewResolver([]Period{
		{Number: 1, Start: NewClock(9, 0), End: NewClock(10, 0)},
		{Number: 1, Start: NewClock(10, 0), End: NewClock(11, 0)},
	})
	assert.Error(t, err)

	_, err = ParseTable("1=9:00 AM")
	assert.Error(t, err)
}

func TestResolverOrdersOutOfOrderTable(t *testing.T) {
	r, err := NewResolver([]Period{
		{Number: 2, Start: NewClock(10, 0), End: NewClock(11, 0)},
		{Number: 1, Start: NewClock(9, 0), End: NewClock(10, 0)},
	})
	require.NoError(t, err)
	periods := r.Periods()
	require.Len(t, periods, 2)
	assert.Equal(t, 1, periods[0].Number)
	assert.True(t, r.Contains(2))
	assert.False(t, r.Contains(3))
}
