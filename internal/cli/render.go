package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/task-cadence/internal/bucket"
	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/recurrence"
	"github.com/nhle/task-cadence/internal/theme"
)

// renderTasks prints tasks under one heading per bucket. Nested tasks are
// indented by depth.
func renderTasks(w io.Writer, tasks []bucket.BucketedTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render("no tasks"))
		return
	}

	var current bucket.Bucket
	for i, t := range tasks {
		if i == 0 || t.Bucket != current {
			if i > 0 {
				fmt.Fprintln(w)
			}
			current = t.Bucket
			fmt.Fprintln(w, theme.BucketStyle(current).Render(string(current)))
		}
		fmt.Fprintln(w, taskLine(t))
	}
}

func taskLine(t bucket.BucketedTask) string {
	box, title := "[ ]", t.Title
	if t.Completed {
		box, title = "[x]", theme.DoneStyle.Render(t.Title)
	}

	meta := []string{t.ID, "key " + t.Priority}
	if t.ScheduledDate != nil {
		meta = append(meta, recurrence.FormatDate(*t.ScheduledDate))
	}

	return fmt.Sprintf("%s%s %s  %s",
		strings.Repeat("  ", t.Depth+1),
		box,
		title,
		theme.HelpStyle.Render(strings.Join(meta, " · ")),
	)
}

// renderTask prints every field of one task, one per line.
func renderTask(w io.Writer, t *model.Task) {
	status := "open"
	if t.Completed && t.CompletedAt != nil {
		status = "completed " + t.CompletedAt.UTC().Format(time.RFC3339)
	}
	fields := [][2]string{
		{"id", t.ID},
		{"title", t.Title},
		{"description", t.Description},
		{"journal", t.JournalID},
		{"key", t.Priority},
		{"status", status},
	}
	if t.ParentTaskID != nil {
		fields = append(fields, [2]string{"parent", *t.ParentTaskID})
	}
	if t.ReferenceTaskID != nil {
		fields = append(fields, [2]string{"template", *t.ReferenceTaskID})
	}
	if t.ScheduledDate != nil {
		fields = append(fields, [2]string{"scheduled", recurrence.FormatDate(*t.ScheduledDate)})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", theme.HeaderStyle.Render(fmt.Sprintf("%-12s", f[0])), f[1])
	}
}

var weekdayNames = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// describeRule renders a rule in short English, e.g. "every 2 weeks on mon,fri".
func describeRule(r recurrence.Rule) string {
	unit := map[recurrence.Type]string{
		recurrence.TypeDaily:   "day",
		recurrence.TypeWeekly:  "week",
		recurrence.TypeMonthly: "month",
		recurrence.TypeYearly:  "year",
		recurrence.TypeCustom:  "day",
	}[r.Type]

	var b strings.Builder
	if r.Interval <= 1 {
		fmt.Fprintf(&b, "every %s", unit)
	} else {
		fmt.Fprintf(&b, "every %d %ss", r.Interval, unit)
	}

	days := make([]string, 0, len(r.DaysOfWeek))
	for _, d := range r.DaysOfWeek {
		if d >= 0 && d < len(weekdayNames) {
			days = append(days, weekdayNames[d])
		}
	}

	switch {
	case r.Type == recurrence.TypeMonthly && r.WeekOfMonth != nil:
		wd := weekdayNames[r.StartsOn.Weekday()]
		if len(days) > 0 {
			wd = days[0]
		}
		fmt.Fprintf(&b, " on %s %s", ordinal(*r.WeekOfMonth), wd)
	case r.Type == recurrence.TypeMonthly && r.DayOfMonth != nil:
		fmt.Fprintf(&b, " on the %s", ordinal(*r.DayOfMonth))
	case len(days) > 0:
		fmt.Fprintf(&b, " on %s", strings.Join(days, ","))
	}

	if r.Type == recurrence.TypeCustom {
		b.WriteString(" (custom)")
	}
	return b.String()
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}

// renderTemplates prints templates as a table.
func renderTemplates(w io.Writer, templates []model.ReferenceTask) {
	if len(templates) == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render("no templates"))
		return
	}

	rows := make([][]string, 0, len(templates))
	for _, rt := range templates {
		window := recurrence.FormatDate(rt.StartsOn) + " →"
		if rt.EndsOn != nil {
			window += " " + recurrence.FormatDate(*rt.EndsOn)
		}
		next := "-"
		if rt.NextScheduledDate != nil {
			next = recurrence.FormatDate(*rt.NextScheduledDate)
		}
		active := "yes"
		if !rt.IsActive {
			active = "paused"
		}
		rows = append(rows, []string{rt.ID, rt.Title, describeRule(rt.Rule()), window, next, active})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.BorderStyle).
		Headers("ID", "TITLE", "RULE", "WINDOW", "NEXT", "ACTIVE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.HeaderStyle
			}
			return theme.CellStyle
		}).
		Rows(rows...)

	fmt.Fprintln(w, t.Render())
}

// parseDay parses a YYYY-MM-DD flag value, with "today" and "" meaning the
// current UTC date.
func parseDay(s string, now time.Time) (time.Time, error) {
	if s == "" || s == "today" {
		return recurrence.Date(now.UTC()), nil
	}
	d, err := recurrence.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}
