// Package service is the request-facing surface of the engine. Every
// operation takes the caller's user id and enforces ownership before
// delegating to the priority manager, the materializer or the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nhle/task-cadence/internal/materialize"
	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/priority"
	"github.com/nhle/task-cadence/internal/store"
)

// Identity resolves the user a request acts for.
type Identity interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// UserLookup loads users by id.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// StaticIdentity always answers with the same configured user.
type StaticIdentity struct {
	Users  UserLookup
	UserID int64
}

// CurrentUser returns the configured user. A missing user is reported as
// ErrUnauthorized.
func (i StaticIdentity) CurrentUser(ctx context.Context) (*model.User, error) {
	u, err := i.Users.GetUser(ctx, i.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("user %d: %w", i.UserID, model.ErrUnauthorized)
	}
	return u, err
}

// JournalOwnership is consulted before anything is filed under a journal.
type JournalOwnership interface {
	JournalBelongsTo(ctx context.Context, journalID string, userID int64) (bool, error)
}

// TaskService exposes task, template and materialization operations.
type TaskService struct {
	store        store.Store
	journals     JournalOwnership
	priority     *priority.Manager
	materializer *materialize.Materializer
	validate     *validator.Validate
	logger       *slog.Logger
	now          func() time.Time
}

type options struct {
	maxDepth    int
	concurrency int
	now         func() time.Time
}

// Option configures a TaskService.
type Option func(*options)

// WithMaxDepth sets the subtask nesting limit, root included.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithConcurrency sets how many users a materialization pass runs at once.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New wires a TaskService over s. A nil logger discards output.
func New(s store.Store, journals JournalOwnership, logger *slog.Logger, opts ...Option) *TaskService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := options{
		maxDepth:    priority.DefaultMaxDepth,
		concurrency: materialize.DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &TaskService{
		store:    s,
		journals: journals,
		priority: priority.NewManager(s, logger,
			priority.WithMaxDepth(o.maxDepth),
			priority.WithClock(o.now),
		),
		materializer: materialize.New(s, logger, materialize.WithConcurrency(o.concurrency)),
		validate:     validator.New(),
		logger:       logger.With("component", "service"),
		now:          o.now,
	}
}

// Materializer returns the materializer the service drives, for callers
// such as the scheduler that only need the batch entry points.
func (s *TaskService) Materializer() *materialize.Materializer {
	return s.materializer
}

// check validates caller input and reports failures as ErrInvalidInput.
func (s *TaskService) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", model.ErrInvalidInput, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
}

// public maps internal errors to what a caller may see. Rows owned by
// someone else look exactly like missing ones; the real cause is logged.
func (s *TaskService) public(op string, userID int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrUnauthorized) {
		s.logger.Warn("cross-user access refused", "op", op, "user_id", userID, "error", err)
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return err
}

// requireJournal checks that journalID belongs to userID.
func (s *TaskService) requireJournal(ctx context.Context, journalID string, userID int64) error {
	ok, err := s.journals.JournalBelongsTo(ctx, journalID, userID)
	if err != nil {
		return fmt.Errorf("checking journal %s: %w", journalID, err)
	}
	if !ok {
		return fmt.Errorf("journal %s of user %d: %w", journalID, userID, model.ErrUnauthorized)
	}
	return nil
}

// ownedTask loads a task through s and checks its owner.
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

func ownedReferenceTask(ctx context.Context, s store.Store, userID int64, id string) (*model.ReferenceTask, error) {
	rt, err := s.GetReferenceTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rt.UserID != userID {
		return nil, fmt.Errorf("reference task %s of user %d: %w", id, userID, model.ErrUnauthorized)
	}
	return rt, nil
}
