package materialize

import (
	"fmt"
	"time"

	"github.com/nhle/task-cadence/internal/recurrence"
)

// TemplateError records a template that failed during a run. The template's
// transaction was rolled back, so a later run retries it. An empty
// ReferenceTaskID means the user's whole pass failed before any template
// was tried.
type TemplateError struct {
	UserID          int64
	ReferenceTaskID string
	Err             error
}

func (e TemplateError) Error() string {
	if e.ReferenceTaskID == "" {
		return fmt.Sprintf("user %d: %v", e.UserID, e.Err)
	}
	return fmt.Sprintf("user %d template %s: %v", e.UserID, e.ReferenceTaskID, e.Err)
}

func (e TemplateError) Unwrap() error { return e.Err }

// UserReport summarises one user's run.
type UserReport struct {
	Date    time.Time
	UserID  int64
	Created int
	Skipped int

	// TemplatesProcessed counts templates examined, due or not.
	TemplatesProcessed int

	Errors []TemplateError
}

// DateReport summarises a run across every user.
type DateReport struct {
	Date               time.Time
	Created            int
	Skipped            int
	UsersProcessed     int
	TemplatesProcessed int
	Errors             []TemplateError
}

func (r *DateReport) add(u UserReport) {
	r.Created += u.Created
	r.Skipped += u.Skipped
	r.UsersProcessed++
	r.TemplatesProcessed += u.TemplatesProcessed
	r.Errors = append(r.Errors, u.Errors...)
}

// String renders a one-line summary for logs and the CLI.
func (r DateReport) String() string {
	return fmt.Sprintf("%s: created=%d skipped=%d users=%d templates=%d errors=%d",
		recurrence.FormatDate(r.Date), r.Created, r.Skipped,
		r.UsersProcessed, r.TemplatesProcessed, len(r.Errors))
}
