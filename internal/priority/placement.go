package priority

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/rank"
	"github.com/nhle/task-cadence/internal/store"
)

func newID() string { return uuid.New().String() }

// ownedTask loads a task and checks it belongs to userID.
func ownedTask(ctx context.Context, s store.Store, userID int64, id string) (*model.Task, error) {
	t, err := s.GetTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, fmt.Errorf("task %s of user %d: %w", id, userID, model.ErrUnauthorized)
	}
	return t, nil
}

func loadMove(ctx context.Context, s store.Store, userID int64, mv Move) (*model.Task, *model.Task, error) {
	if !mv.Position.Valid() {
		return nil, nil, fmt.Errorf("%w: position %q", model.ErrInvalidMove, mv.Position)
	}
	if mv.TaskID == mv.ReferenceTaskID {
		return nil, nil, fmt.Errorf("%w: task %s cannot move relative to itself", model.ErrInvalidMove, mv.TaskID)
	}

	task, err := ownedTask(ctx, s, userID, mv.TaskID)
	if err != nil {
		return nil, nil, err
	}
	ref, err := ownedTask(ctx, s, userID, mv.ReferenceTaskID)
	if err != nil {
		return nil, nil, err
	}
	return task, ref, nil
}

// place computes a key directly above or below refKey, skipping the tasks
// in exclude.
func place(
	ctx context.Context,
	s store.Store,
	userID int64,
	refKey string,
	pos Position,
	exclude []string,
	pendingOnly bool,
) (string, error) {
	q := store.NeighborQuery{
		UserID:      userID,
		Key:         refKey,
		Exclude:     exclude,
		PendingOnly: pendingOnly,
	}
	if pos == Above {
		q.Direction = store.Above
	} else {
		q.Direction = store.Below
	}

	neighbour, err := s.Neighbor(ctx, q)
	if err != nil {
		return "", err
	}

	var key string
	if pos == Above {
		key, err = rank.Between(neighbour, refKey)
	} else {
		key, err = rank.Between(refKey, neighbour)
	}
	if err != nil {
		return "", fmt.Errorf("placing %s %q: %w", pos, refKey, err)
	}

	// With completed tasks ignored the gap may hold a hidden key equal to
	// the midpoint. Halve towards refKey until the key is free.
	for pendingOnly {
		taken, err := s.PriorityTaken(ctx, userID, key, exclude)
		if err != nil {
			return "", err
		}
		if !taken {
			break
		}
		if pos == Above {
			key, err = rank.Between(key, refKey)
		} else {
			key, err = rank.Between(refKey, key)
		}
		if err != nil {
			return "", fmt.Errorf("placing %s %q: %w", pos, refKey, err)
		}
	}
	return observeKey(key), nil
}

// depth counts the ancestors of t. A repeated id means the parent chain
// loops, which is reported instead of walked forever.
func depth(ctx context.Context, s store.Store, t *model.Task) (int, error) {
	seen := map[string]bool{t.ID: true}
	level := 0
	for cur := t; cur.ParentTaskID != nil; level++ {
		pid := *cur.ParentTaskID
		if seen[pid] {
			return 0, fmt.Errorf("%w: parent chain of %s loops at %s", model.ErrInvalidMove, t.ID, pid)
		}
		seen[pid] = true

		parent, err := s.GetTaskByID(ctx, pid)
		if err != nil {
			return 0, fmt.Errorf("walking ancestors of %s: %w", t.ID, err)
		}
		cur = parent
	}
	return level, nil
}

// reopenAncestors clears completion on every completed ancestor of t and
// returns their ids, nearest first.
func reopenAncestors(ctx context.Context, s store.Store, t *model.Task) ([]string, error) {
	var reopened []string
	seen := map[string]bool{t.ID: true}
	for cur := t; cur.ParentTaskID != nil; {
		pid := *cur.ParentTaskID
		if seen[pid] {
			return nil, fmt.Errorf("%w: parent chain of %s loops at %s", model.ErrInvalidMove, t.ID, pid)
		}
		seen[pid] = true

		parent, err := s.GetTaskByID(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("walking ancestors of %s: %w", t.ID, err)
		}
		if parent.Completed {
			if err := s.SetTaskCompletion(ctx, parent.ID, nil); err != nil {
				return nil, err
			}
			reopened = append(reopened, parent.ID)
		}
		cur = parent
	}
	return reopened, nil
}
