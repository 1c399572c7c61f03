package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t testing.TB) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Owner is a user with one journal, the minimum needed to file tasks.
type Owner struct {
	UserID    int64
	JournalID string
}

// NewOwner inserts a user and a journal for it.
func NewOwner(t testing.TB, s store.Store, name string) Owner {
	t.Helper()
	ctx := context.Background()

	uid, err := s.CreateUser(ctx, model.User{Name: name})
	if err != nil {
		t.Fatalf("creating user %s: %v", name, err)
	}

	jid, err := s.CreateJournal(ctx, model.Journal{
		UserID: uid,
		Title:  fmt.Sprintf("%s's journal", name),
	})
	if err != nil {
		t.Fatalf("creating journal for %s: %v", name, err)
	}

	return Owner{UserID: uid, JournalID: jid}
}

// NewTask inserts a root task for o. The title doubles as the task ID so
// tests can refer to tasks by name.
func NewTask(t testing.TB, s store.Store, o Owner, title, key string) model.Task {
	t.Helper()

	task := model.Task{
		ID:        title,
		UserID:    o.UserID,
		JournalID: o.JournalID,
		Title:     title,
		Priority:  key,
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("creating task %s: %v", title, err)
	}

	got, err := s.GetTaskByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("reloading task %s: %v", title, err)
	}
	return *got
}
