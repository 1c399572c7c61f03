package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/task-cadence/internal/bucket"
	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/priority"
	"github.com/nhle/task-cadence/internal/store"
)

// CreateTask files a regular task at the top of the user's list.
func (s *TaskService) CreateTask(ctx context.Context, userID int64, in model.NewTask) (*model.Task, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if err := s.requireJournal(ctx, in.JournalID, userID); err != nil {
		return nil, s.public("create task", userID, err)
	}

	var created *model.Task
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		key, err := priority.TopKey(ctx, tx, userID)
		if err != nil {
			return err
		}

		t := model.Task{
			ID:          uuid.New().String(),
			UserID:      userID,
			JournalID:   in.JournalID,
			Title:       in.Title,
			Description: in.Description,
			Priority:    key,
		}
		if err := tx.CreateTask(ctx, t); err != nil {
			return err
		}
		created, err = tx.GetTaskByID(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.logger.Info("task created", "user_id", userID, "task_id", created.ID, "key", created.Priority)
	return created, nil
}

// UpdateTask applies patch to the task's title and description.
func (s *TaskService) UpdateTask(ctx context.Context, userID int64, id string, patch model.TaskPatch) (*model.Task, error) {
	if err := s.check(patch); err != nil {
		return nil, err
	}

	var updated *model.Task
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		t, err := ownedTask(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if err := tx.UpdateTask(ctx, *t); err != nil {
			return err
		}
		updated, err = tx.GetTaskByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.public("update task", userID, fmt.Errorf("updating task %s: %w", id, err))
	}
	return updated, nil
}

// DeleteTask removes a task together with its subtasks.
func (s *TaskService) DeleteTask(ctx context.Context, userID int64, id string) error {
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		if _, err := ownedTask(ctx, tx, userID, id); err != nil {
			return err
		}
		return tx.DeleteTask(ctx, id)
	})
	if err != nil {
		return s.public("delete task", userID, fmt.Errorf("deleting task %s: %w", id, err))
	}

	s.logger.Info("task deleted", "user_id", userID, "task_id", id)
	return nil
}

// ToggleCompletion flips a task between open and completed. A blocked
// completion is not an error; see priority.Completion.
func (s *TaskService) ToggleCompletion(ctx context.Context, userID int64, id string) (priority.Completion, error) {
	res, err := s.priority.ToggleCompletion(ctx, userID, id)
	return res, s.public("toggle completion", userID, err)
}

// ReorderTask moves a task next to another and returns its new key.
func (s *TaskService) ReorderTask(ctx context.Context, userID int64, mv priority.Move) (string, error) {
	key, err := s.priority.Reorder(ctx, userID, mv)
	return key, s.public("reorder task", userID, err)
}

// ReorderPendingTask is ReorderTask for views that hide completed tasks.
func (s *TaskService) ReorderPendingTask(ctx context.Context, userID int64, mv priority.Move) (string, error) {
	key, err := s.priority.ReorderPendingOnly(ctx, userID, mv)
	return key, s.public("reorder pending task", userID, err)
}

// ReorderWithDescendants moves a task and carries the listed descendants
// along. A nil list carries the whole subtree.
func (s *TaskService) ReorderWithDescendants(
	ctx context.Context,
	userID int64,
	mv priority.Move,
	descendantIDs []string,
) (*model.Task, error) {
	t, err := s.priority.ReorderWithDescendants(ctx, userID, mv, descendantIDs)
	return t, s.public("reorder with descendants", userID, err)
}

// CreateSubtask files a subtask under parentID.
func (s *TaskService) CreateSubtask(
	ctx context.Context,
	userID int64,
	parentID string,
	in model.NewSubtask,
) (*model.Task, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	t, err := s.priority.CreateSubtask(ctx, userID, parentID, in)
	if err != nil {
		return nil, s.public("create subtask", userID, err)
	}

	s.logger.Info("subtask created", "user_id", userID, "task_id", t.ID, "parent_task_id", parentID)
	return t, nil
}

// GetTask returns one of the user's tasks. Tasks of other users are
// reported as not found.
func (s *TaskService) GetTask(ctx context.Context, userID int64, id string) (*model.Task, error) {
	t, err := ownedTask(ctx, s.store, userID, id)
	if err != nil {
		return nil, s.public("get task", userID, err)
	}
	return t, nil
}

// GetJournalTasks lists every task filed in a journal of the user, in rank
// order.
func (s *TaskService) GetJournalTasks(ctx context.Context, userID int64, journalID string) ([]model.Task, error) {
	return s.listTasks(ctx, userID, ListOptions{JournalID: journalID})
}

// ListOptions narrows the bucketed task views.
type ListOptions struct {
	// PendingOnly drops completed tasks.
	PendingOnly bool

	// JournalID limits the view to one of the user's journals.
	JournalID string

	Bucket bucket.Options
}

func (s *TaskService) listTasks(ctx context.Context, userID int64, opts ListOptions) ([]model.Task, error) {
	filter := store.TaskFilter{UserID: userID}
	if opts.JournalID != "" {
		if err := s.requireJournal(ctx, opts.JournalID, userID); err != nil {
			return nil, s.public("list journal tasks", userID, err)
		}
		filter.JournalID = &opts.JournalID
	}
	if opts.PendingOnly {
		open := false
		filter.Completed = &open
	}
	tasks, err := s.store.GetTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing tasks of user %d: %w", userID, err)
	}
	return tasks, nil
}

// GetUserTasksBucketed returns the user's tasks grouped by bucket, in rank
// order inside each bucket. An unknown user simply has no tasks.
func (s *TaskService) GetUserTasksBucketed(ctx context.Context, userID int64, opts ListOptions) ([]bucket.BucketedTask, error) {
	tasks, err := s.listTasks(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	return bucket.Classify(tasks, opts.Bucket), nil
}

// GetUserTasksBucketedHierarchical is GetUserTasksBucketed with every
// subtree listed directly under its root.
func (s *TaskService) GetUserTasksBucketedHierarchical(
	ctx context.Context,
	userID int64,
	opts ListOptions,
) ([]bucket.BucketedTask, error) {
	tasks, err := s.listTasks(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	return bucket.Hierarchical(tasks, opts.Bucket), nil
}
