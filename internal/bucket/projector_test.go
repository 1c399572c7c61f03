package bucket

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
)

func instance(id, key string, typ recurrence.Type) model.Task {
	ref := "tpl-" + string(typ)
	return model.Task{ID: id, Priority: key, ReferenceTaskID: &ref, RecurrenceType: &typ}
}

func regular(id, key string) model.Task {
	return model.Task{ID: id, Priority: key}
}

func childOf(t model.Task, parent string) model.Task {
	t.ParentTaskID = &parent
	return t
}

func ids(bts []BucketedTask) []string {
	out := make([]string, len(bts))
	for i, bt := range bts {
		out[i] = bt.ID
	}
	return out
}

func TestOf(t *testing.T) {
	assert.Equal(t, Daily, Of(instance("a", "1", recurrence.TypeDaily), Options{}))
	assert.Equal(t, Custom, Of(instance("a", "1", recurrence.TypeCustom), Options{}))
	assert.Equal(t, Regular, Of(regular("a", "1"), Options{}))

	// A recurrence type without a template link is still a regular task.
	weekly := recurrence.TypeWeekly
	assert.Equal(t, Regular, Of(model.Task{ID: "a", RecurrenceType: &weekly}, Options{}))
}

func TestClassifyBucketBeatsRank(t *testing.T) {
	tasks := []model.Task{
		regular("r1", "0"),
		instance("w1", "1", recurrence.TypeWeekly),
		instance("d2", "z", recurrence.TypeDaily),
		instance("y1", "2", recurrence.TypeYearly),
		instance("d1", "5", recurrence.TypeDaily),
		instance("c1", "3", recurrence.TypeCustom),
		instance("m1", "4", recurrence.TypeMonthly),
	}

	got := Classify(tasks, Options{})
	assert.Equal(t, []string{"d1", "d2", "w1", "m1", "y1", "c1", "r1"}, ids(got))
	assert.Equal(t, Daily, got[0].Bucket)
	assert.Equal(t, Regular, got[6].Bucket)
}

func TestMissedIsOptIn(t *testing.T) {
	yesterday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := instance("late", "1", recurrence.TypeDaily)
	late.ScheduledDate = &yesterday
	done := instance("done", "2", recurrence.TypeDaily)
	done.ScheduledDate = &yesterday
	done.Completed = true
	tasks := []model.Task{late, done, regular("r", "0")}

	assert.Equal(t, []string{"late", "done", "r"}, ids(Classify(tasks, Options{})))

	opts := Options{Missed: MissedBefore(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))}
	got := Classify(tasks, opts)
	assert.Equal(t, []string{"done", "r", "late"}, ids(got))
	assert.Equal(t, Missed, got[2].Bucket)
}

func TestGroup(t *testing.T) {
	groups := Group([]model.Task{
		instance("d2", "2", recurrence.TypeDaily),
		instance("d1", "1", recurrence.TypeDaily),
		regular("r", "0"),
	}, Options{})

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"d1", "d2"}, ids(groups[Daily]))
	assert.Equal(t, []string{"r"}, ids(groups[Regular]))
	assert.Empty(t, groups[Weekly])
}

func TestHierarchicalKeepsParentsFirst(t *testing.T) {
	tasks := []model.Task{
		// Child inserted long after its parent holds a key far away from it.
		childOf(instance("late-child", "0", recurrence.TypeDaily), "p"),
		instance("p", "5", recurrence.TypeDaily),
		childOf(instance("c1", "6", recurrence.TypeDaily), "p"),
		childOf(instance("g1", "7", recurrence.TypeDaily), "c1"),
		instance("q", "6", recurrence.TypeDaily),
		regular("r", "1"),
		childOf(regular("orphan", "2"), "gone"),
	}

	got := Hierarchical(tasks, Options{})
	assert.Equal(t, []string{"p", "late-child", "c1", "g1", "q", "r", "orphan"}, ids(got))

	depth := map[string]int{}
	for _, bt := range got {
		depth[bt.ID] = bt.Depth
	}
	assert.Equal(t, map[string]int{"p": 0, "late-child": 1, "c1": 1, "g1": 2, "q": 0, "r": 0, "orphan": 0}, depth)
}

func TestHierarchicalChildrenInheritBucket(t *testing.T) {
	yesterday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	parent := instance("p", "1", recurrence.TypeWeekly)
	parent.ScheduledDate = &yesterday
	child := childOf(regular("c", "2"), "p")

	got := Hierarchical([]model.Task{child, parent, regular("r", "0")},
		Options{Missed: MissedBefore(yesterday.AddDate(0, 0, 1))})

	assert.Equal(t, []string{"r", "p", "c"}, ids(got))
	assert.Equal(t, Missed, got[1].Bucket)
	assert.Equal(t, Missed, got[2].Bucket)
}

func TestHierarchicalSurvivesParentCycle(t *testing.T) {
	a := childOf(regular("a", "1"), "b")
	b := childOf(regular("b", "2"), "a")

	got := Hierarchical([]model.Task{a, b, regular("r", "0")}, Options{})
	assert.ElementsMatch(t, []string{"r", "a", "b"}, ids(got))
	assert.Len(t, got, 3)
}

func genTask(t *rapid.T, i int) model.Task {
	id := fmt.Sprintf("t%d", i)
	key := rapid.StringMatching(`[0-9a-z]{0,3}[1-9a-z]`).Draw(t, "key")
	if rapid.Bool().Draw(t, "recurring") {
		return instance(id, key, rapid.SampledFrom(recurrence.Types).Draw(t, "type"))
	}
	return regular(id, key)
}

// Bucket order dominates keys: a daily task never follows a regular one,
// whatever the keys.
func TestClassifyBucketDominance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "n")
		tasks := make([]model.Task, n)
		for i := range tasks {
			tasks[i] = genTask(t, i)
		}

		got := Classify(tasks, Options{})
		if len(got) != n {
			t.Fatalf("got %d tasks, want %d", len(got), n)
		}
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			if prev.Bucket.Rank() > cur.Bucket.Rank() {
				t.Fatalf("%s (%s) sorted before %s (%s)", prev.ID, prev.Bucket, cur.ID, cur.Bucket)
			}
			if prev.Bucket == cur.Bucket && prev.Priority > cur.Priority {
				t.Fatalf("%s key %q sorted before %s key %q", prev.ID, prev.Priority, cur.ID, cur.Priority)
			}
		}
	})
}

// Every task appears exactly once and after its parent.
func TestHierarchicalParentBeforeChild(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 25).Draw(t, "n")
		tasks := make([]model.Task, n)
		for i := range tasks {
			tasks[i] = genTask(t, i)
			// Parents always have a lower index, so the forest is acyclic.
			if i > 0 && rapid.Bool().Draw(t, "nested") {
				p := rapid.IntRange(0, i-1).Draw(t, "parent")
				tasks[i] = childOf(tasks[i], fmt.Sprintf("t%d", p))
			}
		}

		got := Hierarchical(tasks, Options{})
		if len(got) != n {
			t.Fatalf("got %d tasks, want %d", len(got), n)
		}
		pos := make(map[string]int, n)
		for i, bt := range got {
			if _, dup := pos[bt.ID]; dup {
				t.Fatalf("%s listed twice", bt.ID)
			}
			pos[bt.ID] = i
		}
		for _, bt := range got {
			if bt.ParentTaskID == nil {
				continue
			}
			if pos[*bt.ParentTaskID] >= pos[bt.ID] {
				t.Fatalf("%s listed before its parent %s", bt.ID, *bt.ParentTaskID)
			}
			parent := got[pos[*bt.ParentTaskID]]
			if parent.Bucket != bt.Bucket || parent.Depth+1 != bt.Depth {
				t.Fatalf("%s: bucket %s depth %d under %s bucket %s depth %d",
					bt.ID, bt.Bucket, bt.Depth, parent.ID, parent.Bucket, parent.Depth)
			}
		}
	})
}
