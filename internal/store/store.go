package store

import (
	"context"
	"time"

	"github.com/nhle/task-cadence/internal/model"
)

// TaskFilter narrows task queries. Results are always ordered by priority
// key, then id.
type TaskFilter struct {
	UserID int64

	// JournalID restricts results to one journal when non-nil.
	JournalID *string

	// Completed filters on completion state when non-nil.
	Completed *bool

	// ParentTaskID restricts results to direct children of a task.
	ParentTaskID *string

	// RootsOnly restricts results to tasks without a parent.
	RootsOnly bool

	ReferenceTaskID *string

	Limit  int
	Offset int
}

// Direction selects which side of a key a neighbour lookup searches.
type Direction int

const (
	// Above finds the greatest key strictly below the reference key, i.e.
	// the task displayed directly above it.
	Above Direction = iota
	// Below finds the smallest key strictly above the reference key.
	Below
)

// NeighborQuery describes a neighbour lookup in a user's list.
type NeighborQuery struct {
	UserID    int64
	Key       string
	Direction Direction

	// Exclude lists task ids that are ignored, typically the task being
	// moved and its subtree.
	Exclude []string

	// PendingOnly ignores completed tasks.
	PendingOnly bool
}

// Store defines the persistence interface for users, journals, tasks and
// recurrence templates.
type Store interface {
	// Atomic runs fn inside a single transaction. The Store passed to fn
	// must be used for every read and write that belongs to it. Nested
	// calls join the outer transaction.
	Atomic(ctx context.Context, fn func(Store) error) error

	// === Users & journals ===

	CreateUser(ctx context.Context, u model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	CreateJournal(ctx context.Context, j model.Journal) (string, error)
	JournalBelongsTo(ctx context.Context, journalID string, userID int64) (bool, error)

	// === Tasks ===

	CreateTask(ctx context.Context, t model.Task) error
	// InsertTaskIfAbsent inserts a materialized instance unless one already
	// exists for its (reference task, scheduled date). It reports whether a
	// row was written.
	InsertTaskIfAbsent(ctx context.Context, t model.Task) (bool, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id string) error
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	SetTaskPriority(ctx context.Context, id, key string) error
	SetTaskCompletion(ctx context.Context, id string, completedAt *time.Time) error

	// MinPriority returns the smallest key in the user's list, or "" when
	// the list is empty.
	MinPriority(ctx context.Context, userID int64) (string, error)
	// Neighbor returns the adjacent key described by q, or "" when none.
	Neighbor(ctx context.Context, q NeighborQuery) (string, error)
	// PriorityTaken reports whether a task of the user other than those in
	// exclude already holds key.
	PriorityTaken(ctx context.Context, userID int64, key string, exclude []string) (bool, error)
	// Descendants returns every task below id in priority order.
	Descendants(ctx context.Context, id string) ([]model.Task, error)
	CountIncompleteChildren(ctx context.Context, id string) (int, error)
	// RefreshInstances copies title and description onto incomplete
	// root-level instances of a template.
	RefreshInstances(ctx context.Context, referenceTaskID, title, description string) (int64, error)

	// === Reference tasks ===

	CreateReferenceTask(ctx context.Context, rt model.ReferenceTask) error
	UpdateReferenceTask(ctx context.Context, rt model.ReferenceTask) error
	GetReferenceTaskByID(ctx context.Context, id string) (*model.ReferenceTask, error)
	GetReferenceTasks(ctx context.Context, userID int64) ([]model.ReferenceTask, error)
	// DueReferenceTasks lists active templates of a user whose cursor is on
	// or before date.
	DueReferenceTasks(ctx context.Context, userID int64, date time.Time) ([]model.ReferenceTask, error)
	// UsersWithDueReferenceTasks lists users owning at least one such
	// template.
	UsersWithDueReferenceTasks(ctx context.Context, date time.Time) ([]int64, error)
	// AdvanceCursor moves a template's cursor from expected to next. It
	// reports false without error when the stored cursor is no longer
	// expected.
	AdvanceCursor(ctx context.Context, id string, expected time.Time, next *time.Time) (bool, error)
}
