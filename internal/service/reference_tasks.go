package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/task-cadence/internal/materialize"
	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
	"github.com/nhle/task-cadence/internal/store"
)

// CreateReferenceTask stores a new active template with its cursor on the
// first occurrence.
func (s *TaskService) CreateReferenceTask(
	ctx context.Context,
	userID int64,
	in model.NewReferenceTask,
) (*model.ReferenceTask, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if err := recurrence.Validate(in.Rule); err != nil {
		return nil, err
	}
	if err := s.requireJournal(ctx, in.JournalID, userID); err != nil {
		return nil, s.public("create reference task", userID, err)
	}

	rt := model.ReferenceTask{
		ID:          uuid.New().String(),
		UserID:      userID,
		JournalID:   in.JournalID,
		Title:       in.Title,
		Description: in.Description,
		IsActive:    true,
	}
	rt.SetRule(in.Rule)
	rt.NextScheduledDate = materialize.InitialCursor(rt.Rule())

	if err := s.store.CreateReferenceTask(ctx, rt); err != nil {
		return nil, err
	}
	created, err := s.store.GetReferenceTaskByID(ctx, rt.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("reference task created",
		"user_id", userID,
		"reference_task_id", created.ID,
		"recurrence_type", string(created.RecurrenceType),
		"next_scheduled_date", formatCursor(created.NextScheduledDate),
	)
	return created, nil
}

// UpdateReferenceTask applies patch to a template. A new rule reschedules
// the cursor from today without backfilling. New title or description text
// is copied onto the template's open instances in the same transaction.
func (s *TaskService) UpdateReferenceTask(
	ctx context.Context,
	userID int64,
	id string,
	patch model.ReferenceTaskPatch,
) (*model.ReferenceTask, error) {
	if err := s.check(patch); err != nil {
		return nil, err
	}
	if patch.Rule != nil {
		if err := recurrence.Validate(*patch.Rule); err != nil {
			return nil, err
		}
	}

	var (
		updated   *model.ReferenceTask
		refreshed int64
	)
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		rt, err := ownedReferenceTask(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		textChanged := false
		if patch.Title != nil && *patch.Title != rt.Title {
			rt.Title = *patch.Title
			textChanged = true
		}
		if patch.Description != nil && *patch.Description != rt.Description {
			rt.Description = *patch.Description
			textChanged = true
		}
		if patch.IsActive != nil {
			rt.IsActive = *patch.IsActive
		}
		if patch.Rule != nil {
			rt.SetRule(*patch.Rule)
			rt.NextScheduledDate = materialize.RescheduledCursor(rt.Rule(), s.now().UTC())
		}

		if err := tx.UpdateReferenceTask(ctx, *rt); err != nil {
			return err
		}
		if textChanged {
			if refreshed, err = tx.RefreshInstances(ctx, rt.ID, rt.Title, rt.Description); err != nil {
				return err
			}
		}
		updated, err = tx.GetReferenceTaskByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.public("update reference task", userID, fmt.Errorf("updating reference task %s: %w", id, err))
	}

	s.logger.Info("reference task updated",
		"user_id", userID,
		"reference_task_id", id,
		"rule_changed", patch.Rule != nil,
		"instances_refreshed", refreshed,
		"next_scheduled_date", formatCursor(updated.NextScheduledDate),
	)
	return updated, nil
}

// RefreshReferenceTask re-copies a template's text onto its open
// instances and reports how many were touched.
func (s *TaskService) RefreshReferenceTask(ctx context.Context, userID int64, id string) (int64, error) {
	if _, err := ownedReferenceTask(ctx, s.store, userID, id); err != nil {
		return 0, s.public("refresh reference task", userID, err)
	}
	return s.materializer.RefreshFromTemplate(ctx, id)
}

// GetReferenceTask returns one of the user's templates. Templates of other
// users are reported as not found.
func (s *TaskService) GetReferenceTask(ctx context.Context, userID int64, id string) (*model.ReferenceTask, error) {
	rt, err := ownedReferenceTask(ctx, s.store, userID, id)
	if err != nil {
		return nil, s.public("get reference task", userID, err)
	}
	return rt, nil
}

// GetUserReferenceTasks lists the user's templates.
func (s *TaskService) GetUserReferenceTasks(ctx context.Context, userID int64) ([]model.ReferenceTask, error) {
	return s.store.GetReferenceTasks(ctx, userID)
}

// MaterializeForDate runs a materialization pass over every user.
func (s *TaskService) MaterializeForDate(ctx context.Context, date time.Time) (materialize.DateReport, error) {
	return s.materializer.MaterializeForDate(ctx, date)
}

// MaterializeForUser runs a materialization pass for one user.
func (s *TaskService) MaterializeForUser(ctx context.Context, userID int64, date time.Time) (materialize.UserReport, error) {
	return s.materializer.MaterializeForUser(ctx, userID, date)
}

func formatCursor(d *time.Time) string {
	if d == nil {
		return "none"
	}
	return recurrence.FormatDate(*d)
}
