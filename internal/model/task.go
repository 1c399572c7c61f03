package model

import (
	"time"

	"github.com/nhle/task-cadence/internal/recurrence"
)

// Task is a single entry in a user's list. Instances materialized from a
// reference task carry its id and the date they were generated for.
type Task struct {
	// ID is the internal unique identifier for this task.
	ID string `json:"id"`

	// UserID owns the task. Parents and children always share it.
	UserID int64 `json:"user_id"`

	// JournalID is the journal the task was filed under.
	JournalID string `json:"journal_id"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// Completed and CompletedAt move together: CompletedAt is set iff
	// Completed is true.
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Priority is the rank key; ascending order is display order.
	Priority string `json:"priority"`

	// ReferenceTaskID links an instance back to its template. Nil for
	// regular tasks.
	ReferenceTaskID *string `json:"reference_task_id,omitempty"`

	// RecurrenceType is copied from the template and drives bucketing only.
	RecurrenceType *recurrence.Type `json:"recurrence_type,omitempty"`

	// ScheduledDate is the occurrence this instance was generated for.
	// Subtasks never carry one.
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`

	// ParentTaskID is nil for root tasks.
	ParentTaskID *string `json:"parent_task_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRecurring reports whether t was generated from a reference task.
func (t Task) IsRecurring() bool {
	return t.ReferenceTaskID != nil
}

// NewTask is the caller-supplied part of a task.
type NewTask struct {
	JournalID   string `validate:"required"`
	Title       string `validate:"required,max=500"`
	Description string `validate:"max=10000"`
}

// NewSubtask is the caller-supplied part of a subtask. Journal, recurrence
// link and owner are inherited from the parent.
type NewSubtask struct {
	Title       string `validate:"required,max=500"`
	Description string `validate:"max=10000"`
}

// TaskPatch carries the editable fields of an existing task. Nil fields are
// left unchanged.
type TaskPatch struct {
	Title       *string `validate:"omitempty,min=1,max=500"`
	Description *string `validate:"omitempty,max=10000"`
}
