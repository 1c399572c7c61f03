// Package scheduler fires the daily materialization pass.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nhle/task-cadence/internal/materialize"
)

// Runner is the part of the materializer the scheduler drives.
type Runner interface {
	MaterializeForDate(ctx context.Context, date time.Time) (materialize.DateReport, error)
}

// State is the current state of the daily job.
type State int

const (
	Idle State = iota
	Running
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Status describes the most recent run.
type Status struct {
	State      State
	LastRun    time.Time
	LastReport materialize.DateReport
	Error      error
}

// runTimeout bounds a single materialization pass.
const runTimeout = 10 * time.Minute

// Scheduler runs the materializer once a day at a wall-clock time in UTC.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	status  Status
	running bool
}

// New creates a Scheduler. A nil logger discards output.
func New(runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		runner: runner,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}
}

// ScheduleDaily registers the pass at the given HH:MM time string.
func (s *Scheduler) ScheduleDaily(timeStr string) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, func() {
		s.RunOnce(context.Background())
	})
}

// Start begins firing scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Next returns when the first registered job fires next.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce materializes today's instances. A call that overlaps a run in
// progress returns immediately; the materializer is safe to rerun, so
// nothing is lost.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("materialization already running, skipping trigger")
		return
	}
	s.running = true
	s.status.State = Running
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	// The job fires on UTC wall-clock time, so the run date is the UTC date.
	started := s.now().UTC()
	report, err := s.runner.MaterializeForDate(ctx, started)

	s.mu.Lock()
	s.running = false
	s.status.LastRun = started
	s.status.LastReport = report
	s.status.Error = err
	s.status.State = Idle
	if err != nil || len(report.Errors) > 0 {
		s.status.State = Failed
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("materialization failed", "error", err)
		return
	}
	s.logger.Info("materialization finished",
		"date", report.Date.Format(time.DateOnly),
		"created", report.Created,
		"skipped", report.Skipped,
		"users", report.UsersProcessed,
		"template_errors", len(report.Errors),
		"took", s.now().Sub(started).String(),
	)
}

// Status returns a snapshot of the most recent run.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
