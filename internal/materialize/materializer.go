// Package materialize turns recurrence templates into dated task instances.
//
// Each template is handled in its own store transaction: re-read, check the
// cursor, insert the instance if due, advance the cursor. Instances are
// inserted with a conditional insert against a unique
// (reference_task_id, scheduled_date) index, so overlapping runs for the
// same date leave exactly one row.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/priority"
	"github.com/nhle/task-cadence/internal/recurrence"
	"github.com/nhle/task-cadence/internal/store"
)

// DefaultConcurrency bounds parallel users in MaterializeForDate.
const DefaultConcurrency = 4

// Materializer drives the recurrence evaluator over stored templates.
type Materializer struct {
	store       store.Store
	logger      *slog.Logger
	concurrency int
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithConcurrency sets how many users MaterializeForDate handles at once.
func WithConcurrency(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// New creates a Materializer. A nil logger discards output.
func New(s store.Store, logger *slog.Logger, opts ...Option) *Materializer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Materializer{
		store:       s,
		logger:      logger.With("component", "materializer"),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitialCursor is the cursor of a freshly created template: its first
// occurrence, or nil if it has none.
func InitialCursor(r recurrence.Rule) *time.Time {
	return cursorFrom(r, r.StartsOn)
}

// RescheduledCursor is the cursor after a template's rule changes. It never
// points before today, so editing a rule does not backfill history.
func RescheduledCursor(r recurrence.Rule, today time.Time) *time.Time {
	from := recurrence.Date(today)
	if start := recurrence.Date(r.StartsOn); start.After(from) {
		from = start
	}
	return cursorFrom(r, from)
}

func cursorFrom(r recurrence.Rule, from time.Time) *time.Time {
	next, ok := recurrence.Next(r, from)
	if !ok {
		return nil
	}
	return &next
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCreated
	outcomeSkipped
)

// MaterializeForUser creates the instances due on date for one user's
// templates. Templates whose cursor lies after date are left alone; days
// between an old cursor and date are not backfilled.
//
// A failing template is recorded in the report and the rest still run. The
// returned error is reserved for failures that stop the whole pass.
func (m *Materializer) MaterializeForUser(ctx context.Context, userID int64, date time.Time) (UserReport, error) {
	date = recurrence.Date(date)
	report := UserReport{Date: date, UserID: userID}

	templates, err := m.store.DueReferenceTasks(ctx, userID, date)
	if err != nil {
		return report, fmt.Errorf("listing due templates for user %d: %w", userID, err)
	}

	for _, tpl := range templates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.TemplatesProcessed++
		out, err := m.materializeOne(ctx, tpl.ID, date)
		if err != nil {
			instancesTotal.WithLabelValues("error").Inc()
			m.logger.Error("materializing template",
				"user_id", userID,
				"reference_task_id", tpl.ID,
				"date", recurrence.FormatDate(date),
				"error", err,
			)
			report.Errors = append(report.Errors, TemplateError{
				UserID:          userID,
				ReferenceTaskID: tpl.ID,
				Err:             err,
			})
			continue
		}

		switch out {
		case outcomeCreated:
			report.Created++
			instancesTotal.WithLabelValues("created").Inc()
		case outcomeSkipped:
			report.Skipped++
			instancesTotal.WithLabelValues("skipped").Inc()
		}
	}

	m.logger.Debug("user materialized",
		"user_id", userID,
		"date", recurrence.FormatDate(date),
		"created", report.Created,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

// MaterializeForDate runs MaterializeForUser for every user with a template
// due on or before date. A user whose pass fails is recorded in the report
// with an empty ReferenceTaskID and the other users still run.
func (m *Materializer) MaterializeForDate(ctx context.Context, date time.Time) (DateReport, error) {
	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	date = recurrence.Date(date)
	report := DateReport{Date: date}

	users, err := m.store.UsersWithDueReferenceTasks(ctx, date)
	if err != nil {
		return report, fmt.Errorf("listing users to materialize: %w", err)
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, uid := range users {
		g.Go(func() error {
			ur, err := m.MaterializeForUser(gCtx, uid, date)
			if err != nil {
				// Only cancellation stops the run; other users carry on.
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				m.logger.Error("materializing user",
					"user_id", uid,
					"date", recurrence.FormatDate(date),
					"error", err,
				)
				ur.Errors = append(ur.Errors, TemplateError{UserID: uid, Err: err})
			}
			usersProcessed.Inc()

			mu.Lock()
			report.add(ur)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	m.logger.Info("materialization finished",
		"date", recurrence.FormatDate(date),
		"created", report.Created,
		"skipped", report.Skipped,
		"users", report.UsersProcessed,
		"templates", report.TemplatesProcessed,
		"errors", len(report.Errors),
	)
	return report, nil
}

// materializeOne handles a single template inside one transaction.
func (m *Materializer) materializeOne(ctx context.Context, id string, date time.Time) (outcome, error) {
	out := outcomeNone

	err := m.store.Atomic(ctx, func(tx store.Store) error {
		tpl, err := tx.GetReferenceTaskByID(ctx, id)
		if err != nil {
			return err
		}

		// Another run may have advanced or exhausted the cursor since the
		// template was listed.
		if !tpl.IsActive || tpl.NextScheduledDate == nil || tpl.NextScheduledDate.After(date) {
			return nil
		}
		cursor := *tpl.NextScheduledDate
		rule := tpl.Rule()

		due := recurrence.IsDue(rule, date)
		if due {
			created, err := m.insertInstance(ctx, tx, tpl, date)
			if err != nil {
				return err
			}
			if created {
				out = outcomeCreated
			} else {
				out = outcomeSkipped
			}
		}

		from := date
		if due {
			from = date.AddDate(0, 0, 1)
		}
		next := cursorFrom(rule, from)

		advanced, err := tx.AdvanceCursor(ctx, tpl.ID, cursor, next)
		if err != nil {
			return err
		}
		if !advanced {
			m.logger.Debug("cursor moved concurrently", "reference_task_id", tpl.ID)
		}
		return nil
	})

	return out, err
}

func (m *Materializer) insertInstance(
	ctx context.Context,
	tx store.Store,
	tpl *model.ReferenceTask,
	date time.Time,
) (bool, error) {
	key, err := priority.TopKey(ctx, tx, tpl.UserID)
	if err != nil {
		return false, err
	}

	recType := tpl.RecurrenceType
	scheduled := date
	return tx.InsertTaskIfAbsent(ctx, model.Task{
		UserID:          tpl.UserID,
		JournalID:       tpl.JournalID,
		Title:           tpl.Title,
		Description:     tpl.Description,
		Priority:        key,
		ReferenceTaskID: &tpl.ID,
		RecurrenceType:  &recType,
		ScheduledDate:   &scheduled,
	})
}

// RefreshFromTemplate copies a template's title and description onto its
// open root-level instances. Priority and completion are untouched.
func (m *Materializer) RefreshFromTemplate(ctx context.Context, referenceTaskID string) (int64, error) {
	var n int64
	err := m.store.Atomic(ctx, func(tx store.Store) error {
		tpl, err := tx.GetReferenceTaskByID(ctx, referenceTaskID)
		if err != nil {
			return err
		}
		n, err = tx.RefreshInstances(ctx, tpl.ID, tpl.Title, tpl.Description)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("refreshing instances of %s: %w", referenceTaskID, err)
	}

	m.logger.Debug("instances refreshed", "reference_task_id", referenceTaskID, "count", n)
	return n, nil
}
