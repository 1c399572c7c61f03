package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
)

const referenceTaskColumns = `id, user_id, journal_id, title, description,
	recurrence_type, recurrence_interval, recurrence_days_of_week,
	recurrence_day_of_month, recurrence_week_of_month,
	starts_on, ends_on, is_active, next_scheduled_date,
	created_at, updated_at`

type referenceTaskRow struct {
	ID                    string    `db:"id"`
	UserID                int64     `db:"user_id"`
	JournalID             string    `db:"journal_id"`
	Title                 string    `db:"title"`
	Description           string    `db:"description"`
	RecurrenceType        string    `db:"recurrence_type"`
	RecurrenceInterval    int       `db:"recurrence_interval"`
	RecurrenceDaysOfWeek  string    `db:"recurrence_days_of_week"`
	RecurrenceDayOfMonth  *int      `db:"recurrence_day_of_month"`
	RecurrenceWeekOfMonth *int      `db:"recurrence_week_of_month"`
	StartsOn              string    `db:"starts_on"`
	EndsOn                *string   `db:"ends_on"`
	IsActive              int       `db:"is_active"`
	NextScheduledDate     *string   `db:"next_scheduled_date"`
	CreatedAt             time.Time `db:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

func (r referenceTaskRow) toModel() (model.ReferenceTask, error) {
	rt := model.ReferenceTask{
		ID:                    r.ID,
		UserID:                r.UserID,
		JournalID:             r.JournalID,
		Title:                 r.Title,
		Description:           r.Description,
		RecurrenceType:        recurrence.Type(r.RecurrenceType),
		RecurrenceInterval:    r.RecurrenceInterval,
		RecurrenceDayOfMonth:  r.RecurrenceDayOfMonth,
		RecurrenceWeekOfMonth: r.RecurrenceWeekOfMonth,
		IsActive:              r.IsActive != 0,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}

	if r.RecurrenceDaysOfWeek != "" {
		if err := json.Unmarshal([]byte(r.RecurrenceDaysOfWeek), &rt.RecurrenceDaysOfWeek); err != nil {
			return model.ReferenceTask{}, fmt.Errorf("unmarshaling days of week of %s: %w", r.ID, err)
		}
	}

	starts, err := recurrence.ParseDate(r.StartsOn)
	if err != nil {
		return model.ReferenceTask{}, fmt.Errorf("reference task %s starts_on: %w", r.ID, err)
	}
	rt.StartsOn = starts

	if rt.EndsOn, err = parseDate(r.EndsOn); err != nil {
		return model.ReferenceTask{}, fmt.Errorf("reference task %s ends_on: %w", r.ID, err)
	}
	if rt.NextScheduledDate, err = parseDate(r.NextScheduledDate); err != nil {
		return model.ReferenceTask{}, fmt.Errorf("reference task %s next_scheduled_date: %w", r.ID, err)
	}

	return rt, nil
}

func daysOfWeekJSON(days []int) (string, error) {
	if days == nil {
		days = []int{}
	}
	b, err := json.Marshal(days)
	if err != nil {
		return "", fmt.Errorf("marshaling days of week: %w", err)
	}
	return string(b), nil
}

// CreateReferenceTask inserts a template. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateReferenceTask(ctx context.Context, rt model.ReferenceTask) error {
	if strings.TrimSpace(rt.Title) == "" {
		return fmt.Errorf("reference task title must not be empty")
	}
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	ts := now()
	rt.CreatedAt = ts
	rt.UpdatedAt = ts

	days, err := daysOfWeekJSON(rt.RecurrenceDaysOfWeek)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO reference_tasks (`+referenceTaskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID, rt.UserID, rt.JournalID, rt.Title, rt.Description,
		string(rt.RecurrenceType), rt.RecurrenceInterval, days,
		rt.RecurrenceDayOfMonth, rt.RecurrenceWeekOfMonth,
		recurrence.FormatDate(rt.StartsOn), dateArg(rt.EndsOn),
		boolToInt(rt.IsActive), dateArg(rt.NextScheduledDate),
		rt.CreatedAt, rt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating reference task: %w", err)
	}
	return nil
}

// UpdateReferenceTask rewrites every mutable column of a template,
// including its cursor.
func (s *SQLiteStore) UpdateReferenceTask(ctx context.Context, rt model.ReferenceTask) error {
	if strings.TrimSpace(rt.Title) == "" {
		return fmt.Errorf("reference task title must not be empty")
	}

	days, err := daysOfWeekJSON(rt.RecurrenceDaysOfWeek)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE reference_tasks SET
			title = ?, description = ?,
			recurrence_type = ?, recurrence_interval = ?, recurrence_days_of_week = ?,
			recurrence_day_of_month = ?, recurrence_week_of_month = ?,
			starts_on = ?, ends_on = ?, is_active = ?, next_scheduled_date = ?,
			updated_at = ?
		WHERE id = ?`,
		rt.Title, rt.Description,
		string(rt.RecurrenceType), rt.RecurrenceInterval, days,
		rt.RecurrenceDayOfMonth, rt.RecurrenceWeekOfMonth,
		recurrence.FormatDate(rt.StartsOn), dateArg(rt.EndsOn),
		boolToInt(rt.IsActive), dateArg(rt.NextScheduledDate),
		now(), rt.ID,
	)
	if err != nil {
		return fmt.Errorf("updating reference task %s: %w", rt.ID, err)
	}
	return requireRow(res, "reference task", rt.ID)
}

// GetReferenceTaskByID retrieves a template by ID.
func (s *SQLiteStore) GetReferenceTaskByID(ctx context.Context, id string) (*model.ReferenceTask, error) {
	var row referenceTaskRow
	err := sqlx.GetContext(ctx, s.q, &row,
		"SELECT "+referenceTaskColumns+" FROM reference_tasks WHERE id = ?", id)
	if err != nil {
		return nil, notFound(err, "reference task", id)
	}

	rt, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// GetReferenceTasks lists a user's templates, oldest first.
func (s *SQLiteStore) GetReferenceTasks(ctx context.Context, userID int64) ([]model.ReferenceTask, error) {
	return s.selectReferenceTasks(ctx,
		"SELECT "+referenceTaskColumns+" FROM reference_tasks WHERE user_id = ? ORDER BY created_at, id",
		userID,
	)
}

// DueReferenceTasks lists active templates with a cursor on or before date.
func (s *SQLiteStore) DueReferenceTasks(
	ctx context.Context,
	userID int64,
	date time.Time,
) ([]model.ReferenceTask, error) {
	return s.selectReferenceTasks(ctx, `
		SELECT `+referenceTaskColumns+` FROM reference_tasks
		WHERE user_id = ? AND is_active = 1
			AND next_scheduled_date IS NOT NULL AND next_scheduled_date <= ?
		ORDER BY next_scheduled_date, id`,
		userID, recurrence.FormatDate(date),
	)
}

func (s *SQLiteStore) selectReferenceTasks(
	ctx context.Context,
	query string,
	args ...any,
) ([]model.ReferenceTask, error) {
	var rows []referenceTaskRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying reference tasks: %w", err)
	}

	out := make([]model.ReferenceTask, 0, len(rows))
	for _, r := range rows {
		rt, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, nil
}

// UsersWithDueReferenceTasks lists users owning an active template due on
// or before date.
func (s *SQLiteStore) UsersWithDueReferenceTasks(ctx context.Context, date time.Time) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, s.q, &ids, `
		SELECT DISTINCT user_id FROM reference_tasks
		WHERE is_active = 1
			AND next_scheduled_date IS NOT NULL AND next_scheduled_date <= ?
		ORDER BY user_id`,
		recurrence.FormatDate(date),
	)
	if err != nil {
		return nil, fmt.Errorf("listing users with due templates: %w", err)
	}
	return ids, nil
}

// AdvanceCursor is a compare-and-set on next_scheduled_date. A nil next
// marks the template exhausted; a non-nil next must lie after expected.
func (s *SQLiteStore) AdvanceCursor(
	ctx context.Context,
	id string,
	expected time.Time,
	next *time.Time,
) (bool, error) {
	if next != nil && !recurrence.Date(*next).After(recurrence.Date(expected)) {
		return false, fmt.Errorf("cursor of %s cannot move from %s to %s",
			id, recurrence.FormatDate(expected), recurrence.FormatDate(*next))
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE reference_tasks SET next_scheduled_date = ?, updated_at = ?
		WHERE id = ? AND next_scheduled_date = ?`,
		dateArg(next), now(), id, recurrence.FormatDate(expected),
	)
	if err != nil {
		return false, fmt.Errorf("advancing cursor of %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking cursor rows: %w", err)
	}
	return n > 0, nil
}
