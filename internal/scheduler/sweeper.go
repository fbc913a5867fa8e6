// Package scheduler runs the periodic reminder sweep: reminders that came
// due are turned into pending tasks in the user's inbox.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/metrics"
)

// DefaultSchedule sweeps once a minute.
const DefaultSchedule = "@every 1m"

// NotificationType tags tasks created from reminders.
const NotificationType = "reminder"

// parser accepts 5 or 6 field expressions and descriptors like @hourly.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a sweep schedule.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	return s, nil
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// Stats counts sweep outcomes since start.
type Stats struct {
	Runs     int       `json:"runs"`
	Notified int       `json:"notified"`
	Failed   int       `json:"failed"`
	LastRun  time.Time `json:"lastRun"`
}

// Sweeper moves due reminders into the task inbox on a cron schedule.
type Sweeper struct {
	reminders integrations.Reminders
	tasks     integrations.Tasks
	schedule  cron.Schedule
	now       func() time.Time
	log       *logging.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	stats Stats
}

// New creates a stopped sweeper.
func New(reminders integrations.Reminders, tasks integrations.Tasks, spec string, opts ...Option) (*Sweeper, error) {
	if reminders == nil || tasks == nil {
		return nil, errors.New("scheduler: reminders and tasks are required")
	}
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	s := &Sweeper{
		reminders: reminders,
		tasks:     tasks,
		schedule:  schedule,
		now:       time.Now,
		log:       logging.New("scheduler"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start begins sweeping in the background until ctx is done or Stop is
// called. A sweep still running when the next one fires is skipped.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.entry = c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Warn("reminder_sweep_partial", nil, err)
		}
	}))
	c.Start()
	s.cron = c
	s.log.Info("reminder_sweeper_started", map[string]any{"next": c.Entry(s.entry).Next})

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info("reminder_sweeper_stopped", nil)
}

// Next returns the next scheduled sweep, zero when stopped.
func (s *Sweeper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Stats returns a snapshot of the counters.
func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Sweep notifies every due reminder once. A reminder is marked notified
// only after its task was created, so a failed one is retried next sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := s.now()
	due, err := s.reminders.DueReminders(ctx, start)
	if err != nil {
		s.count(0, 0, start)
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	var errs []error
	notified := 0
	for _, r := range due {
		remindAt := r.RemindAt
		_, err := s.tasks.Notify(ctx, integrations.Notification{
			ChatID:    r.ChatID,
			Type:      NotificationType,
			Title:     "Reminder",
			Message:   r.Description,
			Status:    "pending",
			MessageID: r.MessageID,
			RemindAt:  &remindAt,
			CreatedAt: start,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify reminder %d: %w", r.ID, err))
			continue
		}
		if err := s.reminders.MarkNotified(ctx, r.ID); err != nil {
			errs = append(errs, fmt.Errorf("mark reminder %d: %w", r.ID, err))
			continue
		}
		notified++
	}

	s.count(notified, len(errs), start)
	if len(due) > 0 {
		s.log.Info("reminders_swept", map[string]any{"due": len(due), "notified": notified, "failed": len(errs)})
	}
	return notified, errors.Join(errs...)
}

func (s *Sweeper) count(notified, failed int, at time.Time) {
	s.mu.Lock()
	s.stats.Runs++
	s.stats.Notified += notified
	s.stats.Failed += failed
	s.stats.LastRun = at
	s.mu.Unlock()
	metrics.Global().RecordReminderSweep(notified, failed)
}
