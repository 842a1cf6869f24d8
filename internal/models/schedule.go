package models

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PeriodSet is an ordered list of period numbers persisted as "1,2,3".
type PeriodSet []int

// Value implements driver.Valuer.
func (p PeriodSet) Value() (driver.Value, error) {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ","), nil
}

// Scan implements sql.Scanner.
func (p *PeriodSet) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan period set: unsupported type %T", src)
	}
	out := PeriodSet{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("scan period set: %w", err)
		}
		out = append(out, n)
	}
	*p = out
	return nil
}

// Contains reports membership.
func (p PeriodSet) Contains(n int) bool {
	for _, v := range p {
		if v == n {
			return true
		}
	}
	return false
}

// Sorted returns an ascending copy.
func (p PeriodSet) Sorted() PeriodSet {
	out := make(PeriodSet, len(p))
	copy(out, p)
	sort.Ints(out)
	return out
}

// Weekdays lists the accepted day_of_week values in calendar order.
var Weekdays = []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}

// WeekdayIndex returns the position of day in Weekdays, or -1.
func WeekdayIndex(day string) int {
	day = strings.ToUpper(strings.TrimSpace(day))
	for i, d := range Weekdays {
		if d == day {
			return i
		}
	}
	return -1
}

// WeekdayOf maps a date to the stored day_of_week value.
func WeekdayOf(t time.Time) string {
	return strings.ToUpper(t.Weekday().String())
}

// ClassSchedule is a recurring class: one subject taught by one faculty member
// to a branch/year/section on one weekday over a set of periods.
type ClassSchedule struct {
	ID         string     `db:"id" json:"id"`
	Subject    string     `db:"subject" json:"subject"`
	FacultyID  string     `db:"faculty_id" json:"faculty_id"`
	Branch     string     `db:"branch" json:"branch"`
	Year       int        `db:"year" json:"year"`
	Section    string     `db:"section" json:"section"`
	DayOfWeek  string     `db:"day_of_week" json:"day_of_week"`
	Periods    PeriodSet  `db:"periods" json:"periods"`
	Roster     []string   `db:"-" json:"roster,omitempty"`
	ArchivedAt *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// FirstPeriod returns the lowest period number, or 0 for an empty set.
func (c ClassSchedule) FirstPeriod() int {
	if len(c.Periods) == 0 {
		return 0
	}
	return c.Periods.Sorted()[0]
}

// HasStudent reports roster membership.
func (c ClassSchedule) HasStudent(studentID string) bool {
	for _, s := range c.Roster {
		if s == studentID {
			return true
		}
	}
	return false
}

// DaySchedule groups a section's classes for one weekday.
type DaySchedule struct {
	Day     string          `json:"day"`
	Classes []ClassSchedule `json:"classes"`
}

// SectionKey identifies a branch/year/section cohort.
type SectionKey struct {
	Branch  string `json:"branch" validate:"required"`
	Year    int    `json:"year" validate:"required,min=1,max=8"`
	Section string `json:"section" validate:"required"`
}

// ClassInput is one class row of a bulk replace.
type ClassInput struct {
	ID        string   `json:"id"`
	Subject   string   `json:"subject" validate:"required"`
	FacultyID string   `json:"faculty_id" validate:"required"`
	DayOfWeek string   `json:"day_of_week" validate:"required"`
	Periods   []int    `json:"periods" validate:"required,min=1,dive,min=1"`
	Roster    []string `json:"roster" validate:"dive,required"`
}

// ReplaceSectionRequest installs a new schedule for a section atomically.
type ReplaceSectionRequest struct {
	SectionKey
	Classes []ClassInput `json:"classes" validate:"required,min=1,dive"`
}
