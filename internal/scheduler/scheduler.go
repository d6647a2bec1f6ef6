// Package scheduler owns the reminder lifecycle: the periodic scan for
// due reminders, per-reminder one-shot timers, delivery dispatch, and
// timer recovery after a restart.
//
// The record store is the single source of truth; timers are a disposable
// in-memory cache rebuilt from it on boot. All schedule mutations go
// through conditional updates keyed on (status, trigger instant), so at
// most one dispatcher wins a given firing even across processes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"remindbot/internal/models"
	"remindbot/internal/recurrence"
)

// ReminderStore is the slice of the record store the scheduler needs.
// *repository.ReminderRepository satisfies it.
type ReminderStore interface {
	GetByID(ctx context.Context, id int64) (*models.Reminder, error)
	GetDue(ctx context.Context, until time.Time) ([]*models.Reminder, error)
	GetPendingAfter(ctx context.Context, after time.Time) ([]*models.Reminder, error)
	Fire(ctx context.Context, id int64, expected, firedAt time.Time, next *time.Time) (eventID int64, ok bool, err error)
	AdvanceTrigger(ctx context.Context, id int64, expected, next time.Time) (bool, error)
	CompleteIfPending(ctx context.Context, id int64) (bool, error)
}

// Notifier delivers a fired reminder to its owner. Delivery is
// best-effort: the event row is already committed when it runs, and a
// failure is logged, never retried.
type Notifier interface {
	NotifyFiring(ctx context.Context, reminder *models.Reminder, eventID int64) error
}

// Policies for reminders found past the recovery grace window at startup.
const (
	// OverdueNotify leaves overdue rows pending; the first scan tick
	// dispatches them normally, late notifications included.
	OverdueNotify = "notify"
	// OverdueSkip rolls overdue recurring reminders forward past now
	// without firing and silently completes overdue one-shots.
	OverdueSkip = "skip"
)

type Config struct {
	ScanInterval  time.Duration
	RecoveryGrace time.Duration
	OverduePolicy string
	NotifyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = time.Minute
	}
	if c.RecoveryGrace <= 0 {
		c.RecoveryGrace = 5 * time.Minute
	}
	if c.OverduePolicy == "" {
		c.OverduePolicy = OverdueNotify
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
	return c
}

// A timer that fires marginally early still counts as due within this
// slack; anything further in the future is treated as rescheduled.
const dispatchSlack = time.Second

type Scheduler struct {
	store    ReminderStore
	notifier Notifier
	cfg      Config
	log      zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	timers   map[int64]*time.Timer
	inflight map[int64]time.Time // trigger instant last dispatched, per reminder
}

func New(store ReminderStore, notifier Notifier, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "scheduler").Logger(),
		timers:   make(map[int64]*time.Timer),
		inflight: make(map[int64]time.Time),
	}
}

// Run recovers timers from the store, then scans for due reminders every
// ScanInterval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.log.Info().Dur("scan_interval", s.cfg.ScanInterval).Str("overdue_policy", s.cfg.OverduePolicy).Msg("scheduler started")

	if err := s.Recover(ctx); err != nil {
		s.log.Error().Err(err).Msg("timer recovery failed")
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan submits every due reminder to Dispatch. It never mutates rows
// itself; a failure for one reminder does not stop the rest.
func (s *Scheduler) scan(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.store.GetDue(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("scan for due reminders failed")
		return
	}
	for _, reminder := range due {
		if err := s.Dispatch(ctx, reminder.ID); err != nil {
			s.log.Error().Err(err).Int64("reminder_id", reminder.ID).Msg("dispatch failed")
		}
	}
}

// Dispatch processes one due reminder: it re-reads the row, claims the
// current trigger instant, commits the event row together with the
// schedule mutation, and only then attempts delivery. Stale dispatches
// (row gone, no longer pending, or rescheduled meanwhile) are no-ops.
func (s *Scheduler) Dispatch(ctx context.Context, id int64) error {
	reminder, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load reminder %d: %w", id, err)
	}
	if reminder == nil || !reminder.IsPending() {
		s.forget(id)
		return nil
	}

	now := time.Now().UTC()
	if reminder.TriggerAt.After(now.Add(dispatchSlack)) {
		// Snoozed or otherwise rescheduled since this dispatch was queued.
		s.Schedule(id, reminder.TriggerAt)
		return nil
	}

	if !s.claim(id, reminder.TriggerAt) {
		return nil
	}

	var next *time.Time
	if reminder.IsRecurring {
		if n, ok := recurrence.Next(reminder.TriggerAt, reminder.RecurrenceRule); ok {
			next = &n
		}
	}

	eventID, ok, err := s.store.Fire(ctx, id, reminder.TriggerAt, now, next)
	if err != nil {
		s.release(id)
		return fmt.Errorf("fire reminder %d: %w", id, err)
	}
	if !ok {
		// Another dispatcher won this instant.
		s.log.Debug().Int64("reminder_id", id).Msg("stale dispatch, skipping")
		return nil
	}

	if next != nil {
		s.Schedule(id, *next)
		s.log.Info().Int64("reminder_id", id).Int64("event_id", eventID).
			Time("next", *next).Msg("reminder fired, schedule advanced")
	} else {
		s.forget(id)
		s.log.Info().Int64("reminder_id", id).Int64("event_id", eventID).Msg("reminder fired, completed")
	}

	// Delivery comes last so persistence never waits on the network.
	nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyFiring(nctx, reminder, eventID); err != nil {
		s.log.Warn().Err(err).Int64("reminder_id", id).Int64("event_id", eventID).
			Msg("delivery failed, event kept, no resend")
	}
	return nil
}

// Schedule registers the one-shot timer for a reminder, replacing any
// existing one. Instants already in the past fire immediately.
func (s *Scheduler) Schedule(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		if err := s.Dispatch(s.runCtx(), id); err != nil {
			s.log.Error().Err(err).Int64("reminder_id", id).Msg("timer dispatch failed")
		}
	})
}

// Cancel drops the timer for a completed or deleted reminder. A timer
// that already fired is harmless either way: Dispatch reloads the row
// and no-ops on anything not pending.
func (s *Scheduler) Cancel(id int64) {
	s.forget(id)
}

// claim marks (id, instant) as dispatched. A second claim for the same
// instant loses, which keeps overlapping timers and scan ticks from
// double-firing within this process.
func (s *Scheduler) claim(id int64, instant time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.inflight[id]; ok && last.Equal(instant) {
		return false
	}
	s.inflight[id] = instant
	return true
}

// release clears the dispatch token so a failed firing can be retried on
// the next tick.
func (s *Scheduler) release(id int64) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Scheduler) forget(id int64) {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Scheduler) runCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.log.Info().Msg("scheduler stopped")
}
