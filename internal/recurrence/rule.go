// Package recurrence decides when a recurring template is due.
//
// Everything here is pure calendar arithmetic over UTC dates. A date is a
// time.Time at midnight UTC; callers normalise timestamps with Date before
// handing them in.
package recurrence

import "time"

// Type is the cadence family of a recurrence rule.
type Type string

const (
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeMonthly Type = "monthly"
	TypeYearly  Type = "yearly"
	TypeCustom  Type = "custom"
)

// Types lists every supported cadence in bucket order.
var Types = []Type{TypeDaily, TypeWeekly, TypeMonthly, TypeYearly, TypeCustom}

// Valid reports whether t is a known cadence.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Rule is the recurrence part of a reference task.
type Rule struct {
	Type     Type `validate:"required,oneof=daily weekly monthly yearly custom"`
	Interval int  `validate:"min=1"`

	// DaysOfWeek uses 0=Sunday through 6=Saturday. Weekly rules only,
	// except that a monthly-by-week rule may name its weekday here.
	DaysOfWeek []int `validate:"omitempty,dive,min=0,max=6"`

	// DayOfMonth selects the monthly-by-day variant.
	DayOfMonth *int `validate:"omitempty,min=1,max=31"`

	// WeekOfMonth selects the monthly-by-week variant (1-5).
	WeekOfMonth *int `validate:"omitempty,min=1,max=5"`

	StartsOn time.Time `validate:"required"`
	EndsOn   *time.Time
}

// Date returns the calendar date of t as midnight UTC. The wall-clock date
// in t's own location is kept, so 23:30 in New York stays on the same day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return Date(t).Format(time.DateOnly)
}

// daysBetween counts calendar days from a to b. Both must be UTC dates.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// monthsBetween counts whole calendar months from a's month to b's month.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// weekStart returns the Sunday that opens the week containing d.
func weekStart(d time.Time) time.Time {
	return d.AddDate(0, 0, -int(d.Weekday()))
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nthWeekday returns the n-th occurrence (1-based) of wd in the given month.
// The second result is false when the month has no such occurrence.
func nthWeekday(year int, month time.Month, wd time.Weekday, n int) (time.Time, bool) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	day := 1 + offset + (n-1)*7
	if day > daysInMonth(year, month) {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

func (r Rule) start() time.Time { return Date(r.StartsOn) }

// inWindow reports whether d lies in [StartsOn, EndsOn].
func (r Rule) inWindow(d time.Time) bool {
	if d.Before(r.start()) {
		return false
	}
	if r.EndsOn != nil && d.After(Date(*r.EndsOn)) {
		return false
	}
	return true
}

func (r Rule) byWeekOfMonth() bool {
	return r.Type == TypeMonthly && r.WeekOfMonth != nil
}

func (r Rule) dayOfMonth() int {
	if r.DayOfMonth != nil {
		return *r.DayOfMonth
	}
	return r.start().Day()
}

func (r Rule) monthlyWeekday() time.Weekday {
	if len(r.DaysOfWeek) > 0 {
		return time.Weekday(r.DaysOfWeek[0])
	}
	return r.start().Weekday()
}

func (r Rule) hasWeekday(wd time.Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if time.Weekday(d) == wd {
			return true
		}
	}
	return false
}
