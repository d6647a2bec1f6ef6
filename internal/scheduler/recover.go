package scheduler

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/recurrence"
)

// Caps the silent roll-forward of a recurrence found long overdue at
// startup. 100k daily steps is ~274 years; hitting the cap means the
// stored instant is garbage, and the reminder is completed instead.
const maxRollForwardSteps = 100_000

// Recover rebuilds the in-memory timer set from the store after a
// process restart. Reminders still inside the grace window get a timer
// (firing immediately when the due time passed during downtime); rows
// overdue beyond the grace window are handled per the configured policy.
func (s *Scheduler) Recover(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.cfg.RecoveryGrace)

	pending, err := s.store.GetPendingAfter(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load pending reminders: %w", err)
	}
	for _, reminder := range pending {
		s.Schedule(reminder.ID, reminder.TriggerAt)
	}
	s.log.Info().Int("count", len(pending)).Msg("re-registered pending reminders from store")

	if s.cfg.OverduePolicy == OverdueSkip {
		return s.skipOverdue(ctx, cutoff, now)
	}
	// Under the notify policy rows at or before the cutoff stay pending
	// and the first scan tick dispatches them.
	return nil
}

// skipOverdue applies the silent policy to rows past the grace window:
// no event, no notification. Recurring schedules jump to their first
// occurrence after now; one-shots complete.
func (s *Scheduler) skipOverdue(ctx context.Context, cutoff, now time.Time) error {
	overdue, err := s.store.GetDue(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load overdue reminders: %w", err)
	}

	for _, reminder := range overdue {
		next, ok := time.Time{}, false
		if reminder.IsRecurring {
			next, ok = rollForward(reminder.TriggerAt, reminder.RecurrenceRule, now)
		}
		if !ok {
			if _, err := s.store.CompleteIfPending(ctx, reminder.ID); err != nil {
				s.log.Error().Err(err).Int64("reminder_id", reminder.ID).Msg("complete overdue reminder failed")
				continue
			}
			s.log.Info().Int64("reminder_id", reminder.ID).Msg("completed overdue reminder without notifying")
			continue
		}

		advanced, err := s.store.AdvanceTrigger(ctx, reminder.ID, reminder.TriggerAt, next)
		if err != nil {
			s.log.Error().Err(err).Int64("reminder_id", reminder.ID).Msg("roll overdue reminder forward failed")
			continue
		}
		if advanced {
			s.Schedule(reminder.ID, next)
			s.log.Info().Int64("reminder_id", reminder.ID).Time("next", next).
				Msg("rolled overdue reminder forward without notifying")
		}
	}
	return nil
}

// rollForward advances a recurrence from its stored instant until it
// lands after now. ok is false for terminal rules or when the cap is hit.
func rollForward(last time.Time, rule string, now time.Time) (time.Time, bool) {
	cur := last
	for i := 0; i < maxRollForwardSteps; i++ {
		next, ok := recurrence.Next(cur, rule)
		if !ok {
			return time.Time{}, false
		}
		if next.After(now) {
			return next, true
		}
		cur = next
	}
	return time.Time{}, false
}
