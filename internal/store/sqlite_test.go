package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
	"github.com/nhle/task-cadence/internal/store"
	"github.com/nhle/task-cadence/tests/testutil"
)

func date(s string) time.Time {
	d, err := recurrence.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ptr[T any](v T) *T { return &v }

func newTemplate(t *testing.T, s store.Store, o testutil.Owner, cursor string) model.ReferenceTask {
	t.Helper()
	rt := model.ReferenceTask{
		UserID:             o.UserID,
		JournalID:          o.JournalID,
		Title:              "water plants",
		RecurrenceType:     recurrence.TypeDaily,
		RecurrenceInterval: 1,
		StartsOn:           date("2024-01-01"),
		IsActive:           true,
		NextScheduledDate:  ptr(date(cursor)),
	}
	rt.ID = "tpl-" + cursor
	require.NoError(t, s.CreateReferenceTask(context.Background(), rt))
	return rt
}

func TestJournalOwnership(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	alice := testutil.NewOwner(t, s, "alice")
	bob := testutil.NewOwner(t, s, "bob")

	ok, err := s.JournalBelongsTo(ctx, alice.JournalID, alice.UserID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.JournalBelongsTo(ctx, alice.JournalID, bob.UserID)
	require.NoError(t, err)
	assert.False(t, ok)

	u, err := s.GetUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)

	_, err = s.GetUser(ctx, 999)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")

	task := testutil.NewTask(t, s, o, "a", "i")
	assert.Equal(t, o.UserID, task.UserID)
	assert.False(t, task.Completed)
	assert.Nil(t, task.ScheduledDate)

	task.Title = "renamed"
	require.NoError(t, s.UpdateTask(ctx, task))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SetTaskCompletion(ctx, task.ID, &now))

	got, err := s.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, now.Equal(*got.CompletedAt))

	require.NoError(t, s.SetTaskCompletion(ctx, task.ID, nil))
	got, err = s.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	_, err = s.GetTaskByID(ctx, task.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteTask(ctx, task.ID), model.ErrNotFound))
}

func TestGetTasksOrdersByKey(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	other := testutil.NewOwner(t, s, "bob")

	testutil.NewTask(t, s, o, "c", "r")
	testutil.NewTask(t, s, o, "a", "1")
	testutil.NewTask(t, s, o, "b", "1i")
	testutil.NewTask(t, s, other, "x", "0")

	tasks, err := s.GetTasks(ctx, store.TaskFilter{UserID: o.UserID})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{tasks[0].ID, tasks[1].ID, tasks[2].ID})

	minKey, err := s.MinPriority(ctx, o.UserID)
	require.NoError(t, err)
	assert.Equal(t, "1", minKey)

	empty := testutil.NewOwner(t, s, "carol")
	minKey, err = s.MinPriority(ctx, empty.UserID)
	require.NoError(t, err)
	assert.Equal(t, "", minKey)
}

func TestNeighbor(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")

	testutil.NewTask(t, s, o, "a", "1")
	b := testutil.NewTask(t, s, o, "b", "2")
	testutil.NewTask(t, s, o, "c", "3")
	testutil.NewTask(t, s, o, "d", "4")

	key, err := s.Neighbor(ctx, store.NeighborQuery{UserID: o.UserID, Key: "3", Direction: store.Above})
	require.NoError(t, err)
	assert.Equal(t, "2", key)

	key, err = s.Neighbor(ctx, store.NeighborQuery{UserID: o.UserID, Key: "3", Direction: store.Above, Exclude: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, "1", key)

	key, err = s.Neighbor(ctx, store.NeighborQuery{UserID: o.UserID, Key: "4", Direction: store.Below})
	require.NoError(t, err)
	assert.Equal(t, "", key)

	require.NoError(t, s.SetTaskCompletion(ctx, b.ID, ptr(time.Now().UTC())))
	key, err = s.Neighbor(ctx, store.NeighborQuery{UserID: o.UserID, Key: "1", Direction: store.Below, PendingOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "3", key)
}

func TestPriorityTaken(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	alice := testutil.NewOwner(t, s, "alice")
	bob := testutil.NewOwner(t, s, "bob")

	testutil.NewTask(t, s, alice, "a", "1")
	testutil.NewTask(t, s, bob, "x", "5")

	taken, err := s.PriorityTaken(ctx, alice.UserID, "1", nil)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.PriorityTaken(ctx, alice.UserID, "1", []string{"a"})
	require.NoError(t, err)
	assert.False(t, taken)

	// Keys are per user.
	taken, err = s.PriorityTaken(ctx, alice.UserID, "5", nil)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestGetTasksByJournal(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	side, err := s.CreateJournal(ctx, model.Journal{UserID: o.UserID, Title: "side"})
	require.NoError(t, err)

	testutil.NewTask(t, s, o, "a", "1")
	require.NoError(t, s.CreateTask(ctx, model.Task{ID: "b", UserID: o.UserID, JournalID: side, Title: "b", Priority: "2"}))

	tasks, err := s.GetTasks(ctx, store.TaskFilter{UserID: o.UserID, JournalID: &side})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].ID)

	all, err := s.GetTasks(ctx, store.TaskFilter{UserID: o.UserID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDescendantsAndChildren(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")

	root := testutil.NewTask(t, s, o, "root", "1")
	child := model.Task{ID: "child", UserID: o.UserID, JournalID: o.JournalID, Title: "child", Priority: "1i", ParentTaskID: &root.ID}
	grand := model.Task{ID: "grand", UserID: o.UserID, JournalID: o.JournalID, Title: "grand", Priority: "1r", ParentTaskID: &child.ID}
	require.NoError(t, s.CreateTask(ctx, child))
	require.NoError(t, s.CreateTask(ctx, grand))
	testutil.NewTask(t, s, o, "other", "2")

	desc, err := s.Descendants(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, "child", desc[0].ID)
	assert.Equal(t, "grand", desc[1].ID)

	n, err := s.CountIncompleteChildren(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	children, err := s.GetTasks(ctx, store.TaskFilter{UserID: o.UserID, ParentTaskID: &root.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)

	roots, err := s.GetTasks(ctx, store.TaskFilter{UserID: o.UserID, RootsOnly: true})
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	// Deleting the root removes the subtree.
	require.NoError(t, s.DeleteTask(ctx, root.ID))
	_, err = s.GetTaskByID(ctx, "grand")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestInsertTaskIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	tpl := newTemplate(t, s, o, "2024-01-01")

	instance := func() model.Task {
		return model.Task{
			UserID:          o.UserID,
			JournalID:       o.JournalID,
			Title:           tpl.Title,
			Priority:        "i",
			ReferenceTaskID: &tpl.ID,
			RecurrenceType:  ptr(recurrence.TypeDaily),
			ScheduledDate:   ptr(date("2024-01-01")),
		}
	}

	created, err := s.InsertTaskIfAbsent(ctx, instance())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.InsertTaskIfAbsent(ctx, instance())
	require.NoError(t, err)
	assert.False(t, created)

	// A plain insert of the same pair violates the unique index.
	dup := instance()
	dup.ID = "dup"
	assert.Error(t, s.CreateTask(ctx, dup))

	tasks, err := s.GetTasks(ctx, store.TaskFilter{UserID: o.UserID, ReferenceTaskID: &tpl.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].ScheduledDate)
	assert.Equal(t, "2024-01-01", recurrence.FormatDate(*tasks[0].ScheduledDate))
	require.NotNil(t, tasks[0].RecurrenceType)
	assert.Equal(t, recurrence.TypeDaily, *tasks[0].RecurrenceType)
}

func TestReferenceTaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")

	rt := model.ReferenceTask{
		ID:                   "weekly",
		UserID:               o.UserID,
		JournalID:            o.JournalID,
		Title:                "review",
		RecurrenceType:       recurrence.TypeWeekly,
		RecurrenceInterval:   2,
		RecurrenceDaysOfWeek: []int{1, 5},
		StartsOn:             date("2024-01-03"),
		EndsOn:               ptr(date("2024-12-31")),
		IsActive:             true,
		NextScheduledDate:    ptr(date("2024-01-05")),
	}
	require.NoError(t, s.CreateReferenceTask(ctx, rt))

	got, err := s.GetReferenceTaskByID(ctx, "weekly")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, got.RecurrenceDaysOfWeek)
	assert.Equal(t, "2024-01-03", recurrence.FormatDate(got.StartsOn))
	assert.Equal(t, "2024-12-31", recurrence.FormatDate(*got.EndsOn))
	assert.Nil(t, got.RecurrenceDayOfMonth)
	assert.True(t, got.IsActive)

	got.IsActive = false
	got.Title = "retro"
	require.NoError(t, s.UpdateReferenceTask(ctx, *got))

	list, err := s.GetReferenceTasks(ctx, o.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "retro", list[0].Title)
	assert.False(t, list[0].IsActive)

	_, err = s.GetReferenceTaskByID(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestDueReferenceTasksAndCursor(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	alice := testutil.NewOwner(t, s, "alice")
	bob := testutil.NewOwner(t, s, "bob")

	due := newTemplate(t, s, alice, "2024-01-01")
	newTemplate(t, s, alice, "2024-02-01")
	newTemplate(t, s, bob, "2024-03-01")

	list, err := s.DueReferenceTasks(ctx, alice.UserID, date("2024-01-15"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	users, err := s.UsersWithDueReferenceTasks(ctx, date("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.UserID}, users)

	ok, err := s.AdvanceCursor(ctx, due.ID, date("2024-01-01"), ptr(date("2024-01-02")))
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale expectation is a no-op.
	ok, err = s.AdvanceCursor(ctx, due.ID, date("2024-01-01"), ptr(date("2024-01-03")))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.AdvanceCursor(ctx, due.ID, date("2024-01-02"), ptr(date("2024-01-01")))
	assert.Error(t, err, "cursor never moves backwards")

	ok, err = s.AdvanceCursor(ctx, due.ID, date("2024-01-02"), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetReferenceTaskByID(ctx, due.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextScheduledDate)
}

func TestAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx store.Store) error {
		if err := tx.CreateTask(ctx, model.Task{ID: "a", UserID: o.UserID, JournalID: o.JournalID, Title: "a", Priority: "i"}); err != nil {
			return err
		}
		// Nested calls share the transaction.
		return tx.Atomic(ctx, func(inner store.Store) error {
			if _, err := inner.GetTaskByID(ctx, "a"); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetTaskByID(ctx, "a")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestAtomicSerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	tpl := newTemplate(t, s, o, "2024-01-01")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Atomic(ctx, func(tx store.Store) error {
				ok, err := tx.InsertTaskIfAbsent(ctx, model.Task{
					UserID:          o.UserID,
					JournalID:       o.JournalID,
					Title:           tpl.Title,
					Priority:        "i",
					ReferenceTaskID: &tpl.ID,
					ScheduledDate:   ptr(date("2024-01-01")),
				})
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}
