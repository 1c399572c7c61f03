package materialize_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/task-cadence/internal/materialize"
	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
	"github.com/nhle/task-cadence/internal/store"
	"github.com/nhle/task-cadence/tests/testutil"
)

func day(s string) time.Time {
	d, err := recurrence.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTemplate(t *testing.T, s store.Store, o testutil.Owner, id string, rule recurrence.Rule) model.ReferenceTask {
	t.Helper()
	rt := model.ReferenceTask{
		ID:        id,
		UserID:    o.UserID,
		JournalID: o.JournalID,
		Title:     id,
		IsActive:  true,
	}
	rt.SetRule(rule)
	rt.NextScheduledDate = materialize.InitialCursor(rule)
	require.NoError(t, s.CreateReferenceTask(context.Background(), rt))
	return rt
}

func daily(start string) recurrence.Rule {
	return recurrence.Rule{Type: recurrence.TypeDaily, Interval: 1, StartsOn: day(start)}
}

func instances(t *testing.T, s store.Store, userID int64) []model.Task {
	t.Helper()
	tasks, err := s.GetTasks(context.Background(), store.TaskFilter{UserID: userID})
	require.NoError(t, err)
	return tasks
}

func TestDailyScenario(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	m := materialize.New(s, nil)
	newTemplate(t, s, o, "journal", daily("2024-01-01"))

	r, err := m.MaterializeForUser(ctx, o.UserID, day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Created)
	assert.Empty(t, r.Errors)

	r, err = m.MaterializeForUser(ctx, o.UserID, day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Created)

	r, err = m.MaterializeForUser(ctx, o.UserID, day("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Created)

	tasks := instances(t, s, o.UserID)
	require.Len(t, tasks, 2)

	// Newest instance sits on top.
	assert.Equal(t, "2024-01-02", recurrence.FormatDate(*tasks[0].ScheduledDate))
	assert.Equal(t, "2024-01-01", recurrence.FormatDate(*tasks[1].ScheduledDate))
	assert.Less(t, tasks[0].Priority, tasks[1].Priority)
	for _, task := range tasks {
		require.NotNil(t, task.RecurrenceType)
		assert.Equal(t, recurrence.TypeDaily, *task.RecurrenceType)
		assert.Equal(t, o.JournalID, task.JournalID)
	}

	tpl, err := s.GetReferenceTaskByID(ctx, "journal")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", recurrence.FormatDate(*tpl.NextScheduledDate))
}

func TestNotDueAdvancesCursorWithoutCreating(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	m := materialize.New(s, nil)

	// Mondays only; 2024-01-01 is a Monday.
	rule := recurrence.Rule{Type: recurrence.TypeWeekly, Interval: 1, DaysOfWeek: []int{1}, StartsOn: day("2024-01-01")}
	newTemplate(t, s, o, "standup", rule)

	r, err := m.MaterializeForUser(ctx, o.UserID, day("2024-01-03"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Created)
	assert.Equal(t, 1, r.TemplatesProcessed)

	tpl, err := s.GetReferenceTaskByID(ctx, "standup")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", recurrence.FormatDate(*tpl.NextScheduledDate))
	assert.Empty(t, instances(t, s, o.UserID))

	r, err = m.MaterializeForUser(ctx, o.UserID, day("2024-01-08"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Created)
}

func TestWindowAndActiveFlag(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	m := materialize.New(s, nil)

	end := day("2024-01-02")
	bounded := daily("2024-01-01")
	bounded.EndsOn = &end
	newTemplate(t, s, o, "bounded", bounded)

	inactive := newTemplate(t, s, o, "paused", daily("2024-01-01"))
	inactive.IsActive = false
	require.NoError(t, s.UpdateReferenceTask(ctx, inactive))

	newTemplate(t, s, o, "future", daily("2024-06-01"))

	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		_, err := m.MaterializeForUser(ctx, o.UserID, day(d))
		require.NoError(t, err)
	}

	tasks := instances(t, s, o.UserID)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, "bounded", *task.ReferenceTaskID)
	}

	tpl, err := s.GetReferenceTaskByID(ctx, "bounded")
	require.NoError(t, err)
	assert.Nil(t, tpl.NextScheduledDate, "cursor is cleared once the window is exhausted")
}

func TestMissedDaysAreNotBackfilled(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	m := materialize.New(s, nil)
	newTemplate(t, s, o, "journal", daily("2024-01-01"))

	r, err := m.MaterializeForUser(ctx, o.UserID, day("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Created)

	tasks := instances(t, s, o.UserID)
	require.Len(t, tasks, 1)
	assert.Equal(t, "2024-01-05", recurrence.FormatDate(*tasks[0].ScheduledDate))
}

func TestExistingInstanceCountsAsSkipped(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	m := materialize.New(s, nil)
	tpl := newTemplate(t, s, o, "journal", daily("2024-01-01"))

	_, err := m.MaterializeForUser(ctx, o.UserID, day("2024-01-01"))
	require.NoError(t, err)

	// Rewind the cursor, as a second process that read the template before
	// the first committed would see it.
	tpl.NextScheduledDate = materialize.InitialCursor(tpl.Rule())
	require.NoError(t, s.UpdateReferenceTask(ctx, tpl))

	r, err := m.MaterializeForUser(ctx, o.UserID, day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Created)
	assert.Equal(t, 1, r.Skipped)
	assert.Len(t, instances(t, s, o.UserID), 1)
}

func TestConcurrentRunsCreateOnce(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	for _, id := range []string{"a", "b", "c"} {
		newTemplate(t, s, o, id, daily("2024-01-01"))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := materialize.New(s, nil).MaterializeForUser(ctx, o.UserID, day("2024-01-01"))
			assert.NoError(t, err)
			mu.Lock()
			created += r.Created
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	assert.Len(t, instances(t, s, o.UserID), 3)
}

// flakyStore fails instance inserts for one template.
type flakyStore struct {
	store.Store
	failFor string
}

func (f *flakyStore) Atomic(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.Atomic(ctx, func(tx store.Store) error {
		return fn(&flakyStore{Store: tx, failFor: f.failFor})
	})
}

func (f *flakyStore) InsertTaskIfAbsent(ctx context.Context, t model.Task) (bool, error) {
	if t.ReferenceTaskID != nil && *t.ReferenceTaskID == f.failFor {
		return false, errors.New("disk full")
	}
	return f.Store.InsertTaskIfAbsent(ctx, t)
}

func TestTemplateFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	alice := testutil.NewOwner(t, s, "alice")
	bob := testutil.NewOwner(t, s, "bob")
	newTemplate(t, s, alice, "good", daily("2024-01-01"))
	newTemplate(t, s, alice, "bad", daily("2024-01-01"))
	newTemplate(t, s, bob, "bobs", daily("2024-01-01"))

	m := materialize.New(&flakyStore{Store: s, failFor: "bad"}, nil, materialize.WithConcurrency(2))
	r, err := m.MaterializeForDate(ctx, day("2024-01-01"))
	require.NoError(t, err)

	assert.Equal(t, 2, r.Created)
	assert.Equal(t, 2, r.UsersProcessed)
	assert.Equal(t, 3, r.TemplatesProcessed)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "bad", r.Errors[0].ReferenceTaskID)
	assert.Equal(t, alice.UserID, r.Errors[0].UserID)

	// The failed template keeps its cursor and succeeds on retry.
	tpl, err := s.GetReferenceTaskByID(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", recurrence.FormatDate(*tpl.NextScheduledDate))

	r, err = materialize.New(s, nil).MaterializeForDate(ctx, day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Created)
	assert.Equal(t, 1, r.UsersProcessed)
}

// lockedUserStore fails the due-template listing for one user.
type lockedUserStore struct {
	store.Store
	failFor int64
}

func (l *lockedUserStore) DueReferenceTasks(ctx context.Context, userID int64, date time.Time) ([]model.ReferenceTask, error) {
	if userID == l.failFor {
		return nil, errors.New("database is locked")
	}
	return l.Store.DueReferenceTasks(ctx, userID, date)
}

func TestUserFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	alice := testutil.NewOwner(t, s, "alice")
	bob := testutil.NewOwner(t, s, "bob")
	newTemplate(t, s, alice, "alices", daily("2024-01-01"))
	newTemplate(t, s, bob, "bobs", daily("2024-01-01"))

	m := materialize.New(&lockedUserStore{Store: s, failFor: alice.UserID}, nil, materialize.WithConcurrency(1))
	r, err := m.MaterializeForDate(ctx, day("2024-01-01"))
	require.NoError(t, err)

	assert.Equal(t, 1, r.Created)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, alice.UserID, r.Errors[0].UserID)
	assert.Empty(t, r.Errors[0].ReferenceTaskID)
	assert.Contains(t, r.Errors[0].Error(), "database is locked")

	assert.Empty(t, instances(t, s, alice.UserID))
	assert.Len(t, instances(t, s, bob.UserID), 1)
}

func TestCancelledRunReturnsError(t *testing.T) {
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	newTemplate(t, s, o, "journal", daily("2024-01-01"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := materialize.New(s, nil).MaterializeForDate(ctx, day("2024-01-01"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaterializeForDateAcrossUsers(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	m := materialize.New(s, nil, materialize.WithConcurrency(3))

	var owners []testutil.Owner
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		o := testutil.NewOwner(t, s, name)
		owners = append(owners, o)
		newTemplate(t, s, o, "daily-"+name, daily("2024-01-01"))
	}

	r, err := m.MaterializeForDate(ctx, day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 5, r.Created)
	assert.Equal(t, 5, r.UsersProcessed)
	assert.Contains(t, r.String(), "created=5")

	r, err = m.MaterializeForDate(ctx, day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Created)
	assert.Equal(t, 0, r.UsersProcessed)

	for _, o := range owners {
		assert.Len(t, instances(t, s, o.UserID), 1)
	}
}

func TestRefreshFromTemplate(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := testutil.NewOwner(t, s, "alice")
	m := materialize.New(s, nil)
	tpl := newTemplate(t, s, o, "journal", daily("2024-01-01"))

	for _, d := range []string{"2024-01-01", "2024-01-02"} {
		_, err := m.MaterializeForUser(ctx, o.UserID, day(d))
		require.NoError(t, err)
	}
	tasks := instances(t, s, o.UserID)
	require.Len(t, tasks, 2)

	done := time.Now().UTC()
	require.NoError(t, s.SetTaskCompletion(ctx, tasks[1].ID, &done))
	priorities := map[string]string{tasks[0].ID: tasks[0].Priority, tasks[1].ID: tasks[1].Priority}

	tpl.Title = "morning pages"
	tpl.Description = "three of them"
	require.NoError(t, s.UpdateReferenceTask(ctx, tpl))

	n, err := m.RefreshFromTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, err := s.GetTaskByID(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "morning pages", open.Title)
	assert.Equal(t, "three of them", open.Description)
	assert.Equal(t, priorities[open.ID], open.Priority)
	assert.False(t, open.Completed)

	closed, err := s.GetTaskByID(ctx, tasks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "journal", closed.Title)
	assert.True(t, closed.Completed)
}

func TestCursors(t *testing.T) {
	rule := recurrence.Rule{Type: recurrence.TypeMonthly, Interval: 1, DayOfMonth: ptr(31), StartsOn: day("2024-02-01")}

	c := materialize.InitialCursor(rule)
	require.NotNil(t, c)
	assert.Equal(t, "2024-03-31", recurrence.FormatDate(*c))

	c = materialize.RescheduledCursor(rule, day("2024-04-10"))
	require.NotNil(t, c)
	assert.Equal(t, "2024-05-31", recurrence.FormatDate(*c))

	c = materialize.RescheduledCursor(rule, day("2023-01-01"))
	require.NotNil(t, c)
	assert.Equal(t, "2024-03-31", recurrence.FormatDate(*c), "never before starts_on")

	end := day("2024-03-01")
	rule.EndsOn = &end
	assert.Nil(t, materialize.InitialCursor(rule))
}

func ptr[T any](v T) *T { return &v }
