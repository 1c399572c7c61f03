// Package priority places tasks in a user's list.
//
// Display order is ascending rank key: the top of the list holds the
// smallest key. Every placement computes one new key from its neighbours
// and writes only the rows that move.
package priority

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/rank"
	"github.com/nhle/task-cadence/internal/store"
)

// DefaultMaxDepth allows a root, its children and grandchildren.
const DefaultMaxDepth = 3

// Position says which side of the reference task a moved task lands on.
type Position string

const (
	Above Position = "above"
	Below Position = "below"
)

// Valid reports whether p is a known position.
func (p Position) Valid() bool {
	return p == Above || p == Below
}

// Move places TaskID directly above or below ReferenceTaskID.
type Move struct {
	TaskID          string
	ReferenceTaskID string
	Position        Position
}

// Completion is the result of a completion toggle. When CanComplete is
// false nothing was written and IncompleteChildren lists the blockers.
type Completion struct {
	Task               *model.Task
	CanComplete        bool
	IncompleteChildren []model.Task

	// ReopenedAncestors lists completed ancestors that were reopened
	// because a task below them became open again.
	ReopenedAncestors []string
}

// Manager wraps rank allocation with ownership, hierarchy and completion
// rules.
type Manager struct {
	store    store.Store
	logger   *slog.Logger
	maxDepth int
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxDepth sets the number of nesting levels, root included.
func WithMaxDepth(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxDepth = n
		}
	}
}

// WithClock overrides the time source used for completed_at.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager. A nil logger discards output.
func NewManager(s store.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		store:    s,
		logger:   logger.With("component", "priority"),
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TopKey returns a key that sorts above every task of the user.
func TopKey(ctx context.Context, s store.Store, userID int64) (string, error) {
	top, err := s.MinPriority(ctx, userID)
	if err != nil {
		return "", err
	}
	if top == "" {
		return observeKey(rank.First()), nil
	}
	k, err := rank.Before(top)
	if err != nil {
		return "", fmt.Errorf("placing above %q: %w", top, err)
	}
	return observeKey(k), nil
}

// CreateAtTop returns the key for a new task at the top of the user's list.
func (m *Manager) CreateAtTop(ctx context.Context, userID int64) (string, error) {
	return TopKey(ctx, m.store, userID)
}

// Reorder moves a task next to another one and returns its new key.
func (m *Manager) Reorder(ctx context.Context, userID int64, mv Move) (string, error) {
	return m.reorder(ctx, userID, mv, false)
}

// ReorderPendingOnly is Reorder with completed tasks ignored when looking
// for the neighbour, so hidden completed rows never narrow the gap.
func (m *Manager) ReorderPendingOnly(ctx context.Context, userID int64, mv Move) (string, error) {
	return m.reorder(ctx, userID, mv, true)
}

func (m *Manager) reorder(ctx context.Context, userID int64, mv Move, pendingOnly bool) (string, error) {
	var key string
	err := m.store.Atomic(ctx, func(tx store.Store) error {
		task, ref, err := loadMove(ctx, tx, userID, mv)
		if err != nil {
			return err
		}

		key, err = place(ctx, tx, userID, ref.Priority, mv.Position, []string{task.ID}, pendingOnly)
		if err != nil {
			return err
		}
		return tx.SetTaskPriority(ctx, task.ID, key)
	})
	if err != nil {
		return "", fmt.Errorf("reordering task %s: %w", mv.TaskID, err)
	}

	m.logger.Debug("task reordered",
		"task_id", mv.TaskID,
		"reference_task_id", mv.ReferenceTaskID,
		"position", string(mv.Position),
		"pending_only", pendingOnly,
		"key", key,
	)
	return key, nil
}

// CreateSubtask files a new task under parentID. It lands after the
// parent's contiguous subtree and before the next task that is not a
// descendant of the parent.
func (m *Manager) CreateSubtask(
	ctx context.Context,
	userID int64,
	parentID string,
	in model.NewSubtask,
) (*model.Task, error) {
	var created *model.Task

	err := m.store.Atomic(ctx, func(tx store.Store) error {
		parent, err := ownedTask(ctx, tx, userID, parentID)
		if err != nil {
			return err
		}

		level, err := depth(ctx, tx, parent)
		if err != nil {
			return err
		}
		if level+1 >= m.maxDepth {
			return fmt.Errorf("%w: parent %s is at level %d of %d",
				model.ErrMaxDepth, parent.ID, level, m.maxDepth)
		}

		subtree, err := tx.Descendants(ctx, parent.ID)
		if err != nil {
			return err
		}

		exclude := []string{parent.ID}
		for _, d := range subtree {
			exclude = append(exclude, d.ID)
		}

		// hi is the first task after the parent that is not its descendant.
		hi, err := tx.Neighbor(ctx, store.NeighborQuery{
			UserID:    userID,
			Key:       parent.Priority,
			Direction: store.Below,
			Exclude:   exclude,
		})
		if err != nil {
			return err
		}

		// Descendants moved elsewhere in the list do not widen the range.
		lo := parent.Priority
		for _, d := range subtree {
			if d.Priority > lo && (hi == "" || d.Priority < hi) {
				lo = d.Priority
			}
		}

		key, err := rank.Between(lo, hi)
		if err != nil {
			return fmt.Errorf("placing subtask of %s: %w", parent.ID, err)
		}

		task := model.Task{
			UserID:          userID,
			JournalID:       parent.JournalID,
			Title:           in.Title,
			Description:     in.Description,
			Priority:        observeKey(key),
			ReferenceTaskID: parent.ReferenceTaskID,
			RecurrenceType:  parent.RecurrenceType,
			ParentTaskID:    &parent.ID,
		}
		task.ID = newID()
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}

		created, err = tx.GetTaskByID(ctx, task.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating subtask of %s: %w", parentID, err)
	}

	m.logger.Debug("subtask created", "task_id", created.ID, "parent_task_id", parentID, "key", created.Priority)
	return created, nil
}

// ReorderWithDescendants moves a task and keeps the given descendants
// directly below it in their current relative order. A nil descendantIDs
// moves the whole subtree. Either every key is rewritten or none is.
func (m *Manager) ReorderWithDescendants(
	ctx context.Context,
	userID int64,
	mv Move,
	descendantIDs []string,
) (*model.Task, error) {
	var moved *model.Task

	err := m.store.Atomic(ctx, func(tx store.Store) error {
		task, ref, err := loadMove(ctx, tx, userID, mv)
		if err != nil {
			return err
		}

		subtree, err := tx.Descendants(ctx, task.ID)
		if err != nil {
			return err
		}
		inSubtree := make(map[string]bool, len(subtree))
		for _, d := range subtree {
			inSubtree[d.ID] = true
		}
		if inSubtree[ref.ID] {
			return fmt.Errorf("%w: %s is inside the subtree of %s", model.ErrInvalidMove, ref.ID, task.ID)
		}

		listed := make(map[string]bool, len(descendantIDs))
		for _, id := range descendantIDs {
			if !inSubtree[id] {
				return fmt.Errorf("%w: %s is not a descendant of %s", model.ErrInvalidMove, id, task.ID)
			}
			listed[id] = true
		}

		// subtree is already in key order.
		var followers []model.Task
		for _, d := range subtree {
			if descendantIDs == nil || listed[d.ID] {
				followers = append(followers, d)
			}
		}

		exclude := []string{task.ID}
		for _, f := range followers {
			exclude = append(exclude, f.ID)
		}

		key, err := place(ctx, tx, userID, ref.Priority, mv.Position, exclude, false)
		if err != nil {
			return err
		}
		if err := tx.SetTaskPriority(ctx, task.ID, key); err != nil {
			return err
		}

		if len(followers) > 0 {
			hi, err := tx.Neighbor(ctx, store.NeighborQuery{
				UserID:    userID,
				Key:       key,
				Direction: store.Below,
				Exclude:   exclude,
			})
			if err != nil {
				return err
			}

			keys, err := rank.NBetween(key, hi, len(followers))
			if err != nil {
				return fmt.Errorf("spreading %d descendants: %w", len(followers), err)
			}
			for i, f := range followers {
				if err := tx.SetTaskPriority(ctx, f.ID, observeKey(keys[i])); err != nil {
					return err
				}
			}
		}

		moved, err = tx.GetTaskByID(ctx, task.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reordering task %s with descendants: %w", mv.TaskID, err)
	}

	m.logger.Debug("subtree reordered", "task_id", moved.ID, "key", moved.Priority)
	return moved, nil
}

// ToggleCompletion flips a task's completion. Completing a task whose direct
// children are still open is refused and reported in the result. Reopening
// a task also reopens its completed ancestors, so a completed task never
// has an open child.
func (m *Manager) ToggleCompletion(ctx context.Context, userID int64, taskID string) (Completion, error) {
	var res Completion

	err := m.store.Atomic(ctx, func(tx store.Store) error {
		task, err := ownedTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}

		var completedAt *time.Time
		if !task.Completed {
			open, err := tx.CountIncompleteChildren(ctx, task.ID)
			if err != nil {
				return err
			}
			if open > 0 {
				incomplete := false
				children, err := tx.GetTasks(ctx, store.TaskFilter{
					UserID:       userID,
					ParentTaskID: &task.ID,
					Completed:    &incomplete,
				})
				if err != nil {
					return err
				}
				res = Completion{Task: task, CanComplete: false, IncompleteChildren: children}
				return nil
			}
			ts := m.now().UTC()
			completedAt = &ts
		}

		if err := tx.SetTaskCompletion(ctx, task.ID, completedAt); err != nil {
			return err
		}

		var reopened []string
		if task.Completed {
			if reopened, err = reopenAncestors(ctx, tx, task); err != nil {
				return err
			}
		}

		updated, err := tx.GetTaskByID(ctx, task.ID)
		if err != nil {
			return err
		}
		res = Completion{Task: updated, CanComplete: true, ReopenedAncestors: reopened}
		return nil
	})
	if err != nil {
		return Completion{}, fmt.Errorf("toggling task %s: %w", taskID, err)
	}

	if !res.CanComplete {
		m.logger.Info("completion blocked", "task_id", taskID, "open_children", len(res.IncompleteChildren))
	}
	if len(res.ReopenedAncestors) > 0 {
		m.logger.Info("ancestors reopened", "task_id", taskID, "ancestors", res.ReopenedAncestors)
	}
	return res, nil
}
