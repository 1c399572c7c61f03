package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
)

const taskColumns = `id, user_id, journal_id, title, description,
	completed, completed_at, priority,
	reference_task_id, recurrence_type, scheduled_date, parent_task_id,
	created_at, updated_at`

// taskRow mirrors the tasks table.
type taskRow struct {
	ID              string     `db:"id"`
	UserID          int64      `db:"user_id"`
	JournalID       string     `db:"journal_id"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	Completed       int        `db:"completed"`
	CompletedAt     *time.Time `db:"completed_at"`
	Priority        string     `db:"priority"`
	ReferenceTaskID *string    `db:"reference_task_id"`
	RecurrenceType  *string    `db:"recurrence_type"`
	ScheduledDate   *string    `db:"scheduled_date"`
	ParentTaskID    *string    `db:"parent_task_id"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r taskRow) toModel() (model.Task, error) {
	t := model.Task{
		ID:              r.ID,
		UserID:          r.UserID,
		JournalID:       r.JournalID,
		Title:           r.Title,
		Description:     r.Description,
		Completed:       r.Completed != 0,
		CompletedAt:     r.CompletedAt,
		Priority:        r.Priority,
		ReferenceTaskID: r.ReferenceTaskID,
		ParentTaskID:    r.ParentTaskID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.RecurrenceType != nil {
		rt := recurrence.Type(*r.RecurrenceType)
		t.RecurrenceType = &rt
	}
	d, err := parseDate(r.ScheduledDate)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s scheduled_date: %w", r.ID, err)
	}
	t.ScheduledDate = d
	return t, nil
}

func taskArgs(t model.Task) []any {
	var recType any
	if t.RecurrenceType != nil {
		recType = string(*t.RecurrenceType)
	}
	return []any{
		t.ID, t.UserID, t.JournalID, t.Title, t.Description,
		boolToInt(t.Completed), t.CompletedAt, t.Priority,
		t.ReferenceTaskID, recType, dateArg(t.ScheduledDate), t.ParentTaskID,
		t.CreatedAt, t.UpdatedAt,
	}
}

// prepareNewTask fills the generated fields of a task about to be inserted.
func prepareNewTask(t *model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title must not be empty")
	}
	if t.Priority == "" {
		return fmt.Errorf("task priority must not be empty")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	ts := now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = ts
	}
	t.UpdatedAt = ts
	return nil
}

// CreateTask inserts a new task. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateTask(ctx context.Context, t model.Task) error {
	if err := prepareNewTask(&t); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		taskArgs(t)...,
	)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// InsertTaskIfAbsent inserts t unless the unique (reference_task_id,
// scheduled_date) index already holds a row for it.
func (s *SQLiteStore) InsertTaskIfAbsent(ctx context.Context, t model.Task) (bool, error) {
	if t.ReferenceTaskID == nil || t.ScheduledDate == nil {
		return false, fmt.Errorf("insert-if-absent needs a reference task and scheduled date")
	}
	if err := prepareNewTask(&t); err != nil {
		return false, err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference_task_id, scheduled_date) WHERE scheduled_date IS NOT NULL
		DO NOTHING`,
		taskArgs(t)...,
	)
	if err != nil {
		return false, fmt.Errorf("inserting instance of %s for %s: %w",
			*t.ReferenceTaskID, recurrence.FormatDate(*t.ScheduledDate), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking inserted rows: %w", err)
	}
	return n > 0, nil
}

// UpdateTask writes the editable fields of t. Ownership, hierarchy and
// recurrence links are fixed at creation and left alone.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title must not be empty")
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, priority = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, t.Priority, now(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	return requireRow(res, "task", t.ID)
}

// DeleteTask removes a task by ID. Subtasks cascade.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return requireRow(res, "task", id)
}

// GetTaskByID retrieves a single task by its ID.
func (s *SQLiteStore) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	var row taskRow
	err := sqlx.GetContext(ctx, s.q, &row, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if err != nil {
		return nil, notFound(err, "task", id)
	}

	t, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTasks retrieves tasks matching the filter in display order.
func (s *SQLiteStore) GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	conditions := []string{"user_id = ?"}
	args := []any{filter.UserID}

	if filter.JournalID != nil {
		conditions = append(conditions, "journal_id = ?")
		args = append(args, *filter.JournalID)
	}
	if filter.Completed != nil {
		conditions = append(conditions, "completed = ?")
		args = append(args, boolToInt(*filter.Completed))
	}
	if filter.ParentTaskID != nil {
		conditions = append(conditions, "parent_task_id = ?")
		args = append(args, *filter.ParentTaskID)
	}
	if filter.RootsOnly {
		conditions = append(conditions, "parent_task_id IS NULL")
	}
	if filter.ReferenceTaskID != nil {
		conditions = append(conditions, "reference_task_id = ?")
		args = append(args, *filter.ReferenceTaskID)
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY priority ASC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	return s.selectTasks(ctx, query, args...)
}

func (s *SQLiteStore) selectTasks(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	var rows []taskRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}

	tasks := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// SetTaskPriority stores a new rank key for a task.
func (s *SQLiteStore) SetTaskPriority(ctx context.Context, id, key string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE tasks SET priority = ?, updated_at = ? WHERE id = ?",
		key, now(), id,
	)
	if err != nil {
		return fmt.Errorf("setting priority of task %s: %w", id, err)
	}
	return requireRow(res, "task", id)
}

// SetTaskCompletion marks a task complete at completedAt, or incomplete when
// completedAt is nil.
func (s *SQLiteStore) SetTaskCompletion(ctx context.Context, id string, completedAt *time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE tasks SET completed = ?, completed_at = ?, updated_at = ? WHERE id = ?",
		boolToInt(completedAt != nil), completedAt, now(), id,
	)
	if err != nil {
		return fmt.Errorf("setting completion of task %s: %w", id, err)
	}
	return requireRow(res, "task", id)
}

// MinPriority returns the top key of the user's list.
func (s *SQLiteStore) MinPriority(ctx context.Context, userID int64) (string, error) {
	var key string
	err := sqlx.GetContext(ctx, s.q, &key,
		"SELECT COALESCE(MIN(priority), '') FROM tasks WHERE user_id = ?", userID)
	if err != nil {
		return "", fmt.Errorf("getting min priority: %w", err)
	}
	return key, nil
}

// Neighbor finds the key adjacent to q.Key in the requested direction.
func (s *SQLiteStore) Neighbor(ctx context.Context, q NeighborQuery) (string, error) {
	cmp, agg := "<", "MAX"
	if q.Direction == Below {
		cmp, agg = ">", "MIN"
	}

	query := fmt.Sprintf(
		"SELECT COALESCE(%s(priority), '') FROM tasks WHERE user_id = ? AND priority %s ?",
		agg, cmp,
	)
	args := []any{q.UserID, q.Key}

	if q.PendingOnly {
		query += " AND completed = 0"
	}
	if len(q.Exclude) > 0 {
		query += " AND id NOT IN (?)"
		args = append(args, q.Exclude)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", fmt.Errorf("expanding neighbour query: %w", err)
	}

	var key string
	if err := sqlx.GetContext(ctx, s.q, &key, s.q.Rebind(query), args...); err != nil {
		return "", fmt.Errorf("finding neighbour of %q: %w", q.Key, err)
	}
	return key, nil
}

// PriorityTaken reports whether key is already in use in the user's list.
func (s *SQLiteStore) PriorityTaken(ctx context.Context, userID int64, key string, exclude []string) (bool, error) {
	query := "SELECT COUNT(*) FROM tasks WHERE user_id = ? AND priority = ?"
	args := []any{userID, key}
	if len(exclude) > 0 {
		query += " AND id NOT IN (?)"
		args = append(args, exclude)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return false, fmt.Errorf("expanding priority query: %w", err)
	}

	var n int
	if err := sqlx.GetContext(ctx, s.q, &n, s.q.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("checking priority %q: %w", key, err)
	}
	return n > 0, nil
}

// Descendants walks the subtree under id with a recursive CTE. UNION drops
// rows already visited, so a corrupted cycle cannot loop forever.
func (s *SQLiteStore) Descendants(ctx context.Context, id string) ([]model.Task, error) {
	return s.selectTasks(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM tasks WHERE parent_task_id = ?
			UNION
			SELECT t.id FROM tasks t JOIN subtree ON t.parent_task_id = subtree.id
		)
		SELECT `+taskColumns+` FROM tasks
		WHERE id IN (SELECT id FROM subtree) AND id != ?
		ORDER BY priority ASC, id ASC`,
		id, id,
	)
}

// CountIncompleteChildren counts open direct children of a task.
func (s *SQLiteStore) CountIncompleteChildren(ctx context.Context, id string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, s.q, &n,
		"SELECT COUNT(*) FROM tasks WHERE parent_task_id = ? AND completed = 0", id)
	if err != nil {
		return 0, fmt.Errorf("counting children of task %s: %w", id, err)
	}
	return n, nil
}

// RefreshInstances rewrites title and description of incomplete root-level
// instances of a template.
func (s *SQLiteStore) RefreshInstances(
	ctx context.Context,
	referenceTaskID, title, description string,
) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, updated_at = ?
		WHERE reference_task_id = ? AND completed = 0 AND parent_task_id IS NULL`,
		title, description, now(), referenceTaskID,
	)
	if err != nil {
		return 0, fmt.Errorf("refreshing instances of %s: %w", referenceTaskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking refreshed rows: %w", err)
	}
	return n, nil
}
