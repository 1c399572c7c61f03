package model

import (
	"time"

	"github.com/nhle/task-cadence/internal/recurrence"
)

// ReferenceTask is a recurrence template. The materializer turns each due
// occurrence into a Task.
type ReferenceTask struct {
	ID          string `json:"id"`
	UserID      int64  `json:"user_id"`
	JournalID   string `json:"journal_id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	RecurrenceType        recurrence.Type `json:"recurrence_type"`
	RecurrenceInterval    int             `json:"recurrence_interval"`
	RecurrenceDaysOfWeek  []int           `json:"recurrence_days_of_week,omitempty"`
	RecurrenceDayOfMonth  *int            `json:"recurrence_day_of_month,omitempty"`
	RecurrenceWeekOfMonth *int            `json:"recurrence_week_of_month,omitempty"`

	StartsOn time.Time  `json:"starts_on"`
	EndsOn   *time.Time `json:"ends_on,omitempty"`

	IsActive bool `json:"is_active"`

	// NextScheduledDate is the materialization cursor: the earliest date
	// not yet handled. Nil once the rule has no further occurrence.
	NextScheduledDate *time.Time `json:"next_scheduled_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rule extracts the recurrence rule of the template.
func (rt ReferenceTask) Rule() recurrence.Rule {
	return recurrence.Rule{
		Type:        rt.RecurrenceType,
		Interval:    rt.RecurrenceInterval,
		DaysOfWeek:  rt.RecurrenceDaysOfWeek,
		DayOfMonth:  rt.RecurrenceDayOfMonth,
		WeekOfMonth: rt.RecurrenceWeekOfMonth,
		StartsOn:    rt.StartsOn,
		EndsOn:      rt.EndsOn,
	}
}

// SetRule copies r into the template's recurrence fields.
func (rt *ReferenceTask) SetRule(r recurrence.Rule) {
	rt.RecurrenceType = r.Type
	rt.RecurrenceInterval = r.Interval
	rt.RecurrenceDaysOfWeek = r.DaysOfWeek
	rt.RecurrenceDayOfMonth = r.DayOfMonth
	rt.RecurrenceWeekOfMonth = r.WeekOfMonth
	rt.StartsOn = recurrence.Date(r.StartsOn)
	if r.EndsOn != nil {
		end := recurrence.Date(*r.EndsOn)
		rt.EndsOn = &end
	} else {
		rt.EndsOn = nil
	}
}

// NewReferenceTask is the input for creating a template.
type NewReferenceTask struct {
	JournalID   string `validate:"required"`
	Title       string `validate:"required,max=500"`
	Description string `validate:"max=10000"`

	// Rule is checked by recurrence.Validate, which also covers the
	// cross-field constraints.
	Rule recurrence.Rule `validate:"-"`
}

// ReferenceTaskPatch updates a template. A non-nil Rule replaces the whole
// rule and resets the cursor.
type ReferenceTaskPatch struct {
	Title       *string          `validate:"omitempty,min=1,max=500"`
	Description *string          `validate:"omitempty,max=10000"`
	IsActive    *bool
	Rule        *recurrence.Rule `validate:"-"`
}
