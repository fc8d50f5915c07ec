// Package scheduling runs the background maintenance jobs: registry health
// sweeps, discovery scans, and conversation retention.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agenthq/internal/domain"
)

// Action identifies a kind of background job.
type Action string

const (
	ActionHealthSweep           Action = "health_sweep"
	ActionDiscoveryScan         Action = "discovery_scan"
	ActionConversationRetention Action = "conversation_retention"
)

// defaultTaskTimeout bounds a single run of any job.
const defaultTaskTimeout = 5 * time.Minute

// Task binds an action to a schedule.
type Task struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" or duration "30m"
	Action   Action
	OneShot  bool
}

// Scheduler runs registered actions on cron or fixed-interval schedules.
type Scheduler struct {
	cron    *cron.Cron
	actions map[Action]func(ctx context.Context) error
	entries map[string]cron.EntryID
	bus     domain.EventBus
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. bus may be nil.
func NewScheduler(bus domain.EventBus, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		actions: make(map[Action]func(ctx context.Context) error),
		entries: make(map[string]cron.EntryID),
		bus:     bus,
		timeout: defaultTaskTimeout,
		logger:  logger,
	}
}

// RegisterAction installs the handler for an action.
func (s *Scheduler) RegisterAction(action Action, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask schedules task. Task names must be unique.
func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("%w: unknown action %q for task %q", domain.ErrInvalidInput, task.Action, task.Name)
	}
	if _, exists := s.entries[task.Name]; exists {
		return fmt.Errorf("%w: task %q", domain.ErrDuplicate, task.Name)
	}
	schedule, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("%w: task %q: %v", domain.ErrInvalidInput, task.Name, err)
	}

	s.entries[task.Name] = s.cron.Schedule(schedule, cron.FuncJob(func() {
		if task.OneShot {
			s.Remove(task.Name)
		}
		s.run(task, fn)
	}))

	s.logger.Info("task scheduled", "name", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

// Remove unschedules the named task.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return true
}

// Next returns the next run time of the named task.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if entry.ID == 0 {
		return time.Time{}, false
	}
	return entry.Next, true
}

// RunNow runs the handler for action synchronously.
func (s *Scheduler) RunNow(ctx context.Context, action Action) error {
	s.mu.Lock()
	fn, ok := s.actions[action]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action)
	}
	return fn(ctx)
}

func (s *Scheduler) run(task Task, fn func(ctx context.Context) error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		s.logger.Debug("scheduler stopped, skipping task", "task", task.Name)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(taskCtx)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Warn("scheduled task failed", "task", task.Name, "error", err, "duration", elapsed)
	} else {
		s.logger.Debug("scheduled task completed", "task", task.Name, "duration", elapsed)
	}

	if s.bus != nil {
		payload := map[string]any{
			"task":        task.Name,
			"action":      string(task.Action),
			"duration_ms": elapsed.Milliseconds(),
		}
		if err != nil {
			payload["error"] = err.Error()
		}
		s.bus.Publish(ctx, domain.NewEvent(domain.EventTaskFired, payload))
	}
}

// Start begins running scheduled tasks until Stop or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.ctx = nil
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	return nil
}

// ParseSchedule accepts a cron expression (with descriptors such as
// "@hourly") or a positive Go duration.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay(dur), nil
}

// constantDelay fires at a fixed interval. Unlike cron.Every it keeps
// sub-second precision.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}
