// Package bucket projects tasks into ordered display buckets.
//
// The bucket is derived on every read and never stored. Bucket order always
// wins over rank: every daily task sorts before every weekly one, and so on
// down to regular and missed.
package bucket

import (
	"cmp"
	"slices"
	"time"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
)

// Bucket is a coarse display group.
type Bucket string

const (
	Daily   Bucket = "daily"
	Weekly  Bucket = "weekly"
	Monthly Bucket = "monthly"
	Yearly  Bucket = "yearly"
	Custom  Bucket = "custom"
	Regular Bucket = "regular"
	Missed  Bucket = "missed"
)

// Order lists buckets in display order.
var Order = []Bucket{Daily, Weekly, Monthly, Yearly, Custom, Regular, Missed}

// Rank is the position of b in Order, or len(Order) for unknown buckets.
func (b Bucket) Rank() int {
	if i := slices.Index(Order, b); i >= 0 {
		return i
	}
	return len(Order)
}

// BucketedTask is a task with its derived bucket. Depth is the nesting level
// in hierarchical projections and zero otherwise.
type BucketedTask struct {
	model.Task
	Bucket Bucket
	Depth  int
}

// Options tunes classification.
type Options struct {
	// Missed selects tasks for the missed bucket. Nil means no task is ever
	// missed.
	Missed func(model.Task) bool
}

// MissedBefore treats an incomplete instance as missed once its scheduled
// date is before today. Tasks without a scheduled date are never missed.
func MissedBefore(today time.Time) func(model.Task) bool {
	cutoff := recurrence.Date(today)
	return func(t model.Task) bool {
		return !t.Completed && t.ScheduledDate != nil && recurrence.Date(*t.ScheduledDate).Before(cutoff)
	}
}

var byType = map[recurrence.Type]Bucket{
	recurrence.TypeDaily:   Daily,
	recurrence.TypeWeekly:  Weekly,
	recurrence.TypeMonthly: Monthly,
	recurrence.TypeYearly:  Yearly,
	recurrence.TypeCustom:  Custom,
}

// Of returns the bucket of a single task.
func Of(t model.Task, opts Options) Bucket {
	if opts.Missed != nil && opts.Missed(t) {
		return Missed
	}
	if t.ReferenceTaskID == nil || t.RecurrenceType == nil {
		return Regular
	}
	if b, ok := byType[*t.RecurrenceType]; ok {
		return b
	}
	return Regular
}

func compareFlat(a, b BucketedTask) int {
	return cmp.Or(
		cmp.Compare(a.Bucket.Rank(), b.Bucket.Rank()),
		cmp.Compare(a.Priority, b.Priority),
		cmp.Compare(a.ID, b.ID),
	)
}

// Classify buckets every task and sorts by bucket, then rank key, then id.
func Classify(tasks []model.Task, opts Options) []BucketedTask {
	out := make([]BucketedTask, len(tasks))
	for i, t := range tasks {
		out[i] = BucketedTask{Task: t, Bucket: Of(t, opts)}
	}
	slices.SortFunc(out, compareFlat)
	return out
}

// Group buckets tasks and returns them keyed by bucket, each slice in rank
// order.
func Group(tasks []model.Task, opts Options) map[Bucket][]BucketedTask {
	groups := make(map[Bucket][]BucketedTask)
	for _, bt := range Classify(tasks, opts) {
		groups[bt.Bucket] = append(groups[bt.Bucket], bt)
	}
	return groups
}

// Hierarchical orders tasks depth-first so each parent directly precedes its
// subtree. Roots are bucketed and sorted like Classify; descendants take
// their root's bucket and are ordered by rank among siblings. A task whose
// parent is not in tasks is treated as a root.
func Hierarchical(tasks []model.Task, opts Options) []BucketedTask {
	present := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		present[t.ID] = true
	}

	children := make(map[string][]model.Task)
	var roots []BucketedTask
	for _, t := range tasks {
		if t.ParentTaskID != nil && present[*t.ParentTaskID] {
			children[*t.ParentTaskID] = append(children[*t.ParentTaskID], t)
			continue
		}
		roots = append(roots, BucketedTask{Task: t, Bucket: Of(t, opts)})
	}
	slices.SortFunc(roots, compareFlat)
	for id := range children {
		slices.SortFunc(children[id], func(a, b model.Task) int {
			return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.ID, b.ID))
		})
	}

	out := make([]BucketedTask, 0, len(tasks))
	visited := make(map[string]bool, len(tasks))

	var walk func(t model.Task, b Bucket, depth int)
	walk = func(t model.Task, b Bucket, depth int) {
		if visited[t.ID] {
			return
		}
		visited[t.ID] = true
		out = append(out, BucketedTask{Task: t, Bucket: b, Depth: depth})
		for _, c := range children[t.ID] {
			walk(c, b, depth+1)
		}
	}

	for _, r := range roots {
		walk(r.Task, r.Bucket, 0)
	}

	// Only a parent cycle leaves tasks unreached; surface them as roots.
	if len(out) < len(tasks) {
		for _, bt := range Classify(tasks, opts) {
			walk(bt.Task, bt.Bucket, 0)
		}
	}

	return out
}
