// Package timeslot maps wall-clock times onto the numbered periods of the bell schedule.
package timeslot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

// Clock is a time of day expressed in minutes since midnight.
type Clock int

// NewClock builds a Clock from a 24-hour hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ClockOf returns the wall-clock time of t in its own location.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// Hour returns the 24-hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// String renders the clock in 12-hour form, e.g. "9:05 AM".
func (c Clock) String() string {
	h := c.Hour()
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, c.Minute(), suffix)
}

// MarshalText keeps JSON payloads in the same 12-hour form users type.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseClock reads a 12-hour time such as "9:00 AM", "09:00am" or "12:30 PM".
func ParseClock(raw string) (Clock, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if normalized == "" {
		return 0, appErrors.Clone(appErrors.ErrInvalidTimeFormat, "time is required")
	}
	t, err := time.Parse("3:04PM", normalized)
	if err != nil {
		return 0, appErrors.ErrInvalidTimeFormat.Because(err,
			fmt.Sprintf("invalid time %q, expected h:mm AM/PM", raw))
	}
	// time.Parse lets "0:15 AM" through; a 12-hour clock has no hour zero.
	if strings.HasPrefix(normalized, "0:") || strings.HasPrefix(normalized, "00:") {
		return 0, appErrors.Clone(appErrors.ErrInvalidTimeFormat, fmt.Sprintf("invalid time %q, hour must be 1-12", raw))
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

// Period is one numbered slot of the bell schedule covering [Start, End).
type Period struct {
	Number int   `json:"number"`
	Start  Clock `json:"start"`
	End    Clock `json:"end"`
}

// Contains reports whether c falls inside the period. Start is inclusive, end exclusive.
func (p Period) Contains(c Clock) bool {
	return c >= p.Start && c < p.End
}

// Resolver answers period questions against a fixed, ordered table.
type Resolver struct {
	periods  []Period
	byNumber map[int]Period
}

// NewResolver validates the table: positive unique numbers, start before end,
// and no overlap once sorted by start time.
func NewResolver(periods []Period) (*Resolver, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("period table is empty")
	}
	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	byNumber := make(map[int]Period, len(sorted))
	for i, p := range sorted {
		if p.Number <= 0 {
			return nil, fmt.Errorf("period number must be positive, got %d", p.Number)
		}
		if _, dup := byNumber[p.Number]; dup {
			return nil, fmt.Errorf("period %d defined twice", p.Number)
		}
		if p.Start >= p.End {
			return nil, fmt.Errorf("period %d starts at or after its end", p.Number)
		}
		if i > 0 && sorted[i-1].End > p.Start {
			return nil, fmt.Errorf("period %d overlaps period %d", p.Number, sorted[i-1].Number)
		}
		byNumber[p.Number] = p
	}
	return &Resolver{periods: sorted, byNumber: byNumber}, nil
}

// ParseTable reads "1=9:00 AM-9:50 AM,2=9:50 AM-10:40 AM" style definitions.
func ParseTable(raw string) (*Resolver, error) {
	var periods []Period
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		numRaw, span, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("period entry %q missing '='", entry)
		}
		number, err := strconv.Atoi(strings.TrimSpace(numRaw))
		if err != nil {
			return nil, fmt.Errorf("period entry %q: invalid number: %w", entry, err)
		}
		startRaw, endRaw, ok := strings.Cut(span, "-")
		if !ok {
			return nil, fmt.Errorf("period entry %q missing '-'", entry)
		}
		start, err := ParseClock(startRaw)
		if err != nil {
			return nil, fmt.Errorf("period %d start: %w", number, err)
		}
		end, err := ParseClock(endRaw)
		if err != nil {
			return nil, fmt.Errorf("period %d end: %w", number, err)
		}
		periods = append(periods, Period{Number: number, Start: start, End: end})
	}
	return NewResolver(periods)
}

// Periods returns the table ordered by start time.
func (r *Resolver) Periods() []Period {
	out := make([]Period, len(r.periods))
	copy(out, r.periods)
	return out
}

// Contains reports whether n is a configured period number.
func (r *Resolver) Contains(n int) bool {
	_, ok := r.byNumber[n]
	return ok
}

// PeriodFor returns the period in progress at c. Gaps such as lunch resolve to none.
func (r *Resolver) PeriodFor(c Clock) (int, bool) {
	for _, p := range r.periods {
		if p.Contains(c) {
			return p.Number, true
		}
	}
	return 0, false
}

// PeriodForTime parses a 12-hour time and resolves it.
func (r *Resolver) PeriodForTime(raw string) (int, bool, error) {
	c, err := ParseClock(raw)
	if err != nil {
		return 0, false, err
	}
	n, ok := r.PeriodFor(c)
	return n, ok, nil
}

// PeriodAt resolves the wall-clock time of t without timezone conversion.
func (r *Resolver) PeriodAt(t time.Time) (int, bool) {
	return r.PeriodFor(ClockOf(t))
}

// NextPeriodAfter returns the first period starting strictly after c.
func (r *Resolver) NextPeriodAfter(c Clock) (int, bool) {
	for _, p := range r.periods {
		if p.Start > c {
			return p.Number, true
		}
	}
	return 0, false
}

// StartTimeOf returns when period n begins.
func (r *Resolver) StartTimeOf(n int) (Clock, error) {
	p, ok := r.byNumber[n]
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrUnknownPeriod, fmt.Sprintf("period %d is not in the bell schedule", n))
	}
	return p.Start, nil
}

// EndTimeOf returns when period n ends.
func (r *Resolver) EndTimeOf(n int) (Clock, error) {
	p, ok := r.byNumber[n]
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrUnknownPeriod, fmt.Sprintf("period %d is not in the bell schedule", n))
	}
	return p.End, nil
}
