package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"remindbot/internal/models"
)

// memStore is an in-memory ReminderStore with the same conditional-update
// contract as the Postgres repository.
type memStore struct {
	mu        sync.Mutex
	reminders map[int64]*models.Reminder
	events    []*models.Event
	nextEvent int64
}

func newMemStore() *memStore {
	return &memStore{reminders: make(map[int64]*models.Reminder)}
}

func (m *memStore) add(r *models.Reminder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reminders[r.ID] = &cp
}

func (m *memStore) reminder(id int64) models.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.reminders[id]
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *memStore) GetByID(_ context.Context, id int64) (*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetDue(_ context.Context, until time.Time) ([]*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reminder
	for _, r := range m.reminders {
		if r.Status == models.StatusPending && !r.TriggerAt.After(until) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) GetPendingAfter(_ context.Context, after time.Time) ([]*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reminder
	for _, r := range m.reminders {
		if r.Status == models.StatusPending && r.TriggerAt.After(after) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Fire(_ context.Context, id int64, expected, firedAt time.Time, next *time.Time) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.Status != models.StatusPending || !r.TriggerAt.Equal(expected) {
		return 0, false, nil
	}
	if next != nil {
		r.TriggerAt = next.UTC()
	} else {
		r.Status = models.StatusCompleted
	}
	m.nextEvent++
	m.events = append(m.events, &models.Event{ID: m.nextEvent, ReminderID: id, FiredAt: firedAt})
	return m.nextEvent, true, nil
}

func (m *memStore) AdvanceTrigger(_ context.Context, id int64, expected, next time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.Status != models.StatusPending || !r.TriggerAt.Equal(expected) {
		return false, nil
	}
	r.TriggerAt = next.UTC()
	return true, nil
}

func (m *memStore) CompleteIfPending(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.Status != models.StatusPending {
		return false, nil
	}
	r.Status = models.StatusCompleted
	return true, nil
}

type memNotifier struct {
	mu     sync.Mutex
	events []int64
	err    error
}

func (n *memNotifier) NotifyFiring(_ context.Context, _ *models.Reminder, eventID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventID)
	return n.err
}

func (n *memNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestScheduler(store ReminderStore, notifier Notifier, cfg Config) *Scheduler {
	return New(store, notifier, cfg, zerolog.Nop())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDispatchAdvancesRecurring(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	notifier := &memNotifier{}
	s := newTestScheduler(store, notifier, Config{})

	trigger := time.Now().UTC().Add(-time.Hour)
	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "send report",
		TriggerAt: trigger, IsRecurring: true, RecurrenceRule: "weekly",
		Status: models.StatusPending,
	})

	if err := s.Dispatch(context.Background(), 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := store.eventCount(); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
	r := store.reminder(1)
	if r.Status != models.StatusPending {
		t.Fatalf("status = %q, want pending", r.Status)
	}
	if want := trigger.Add(7 * 24 * time.Hour); !r.TriggerAt.Equal(want) {
		t.Fatalf("trigger = %v, want %v", r.TriggerAt, want)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.count())
	}
}

func TestDispatchDailyAdvancesWithoutDrift(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	s := newTestScheduler(store, &memNotifier{}, Config{})

	start := time.Now().UTC().Add(-10 * 24 * time.Hour)
	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "water plants",
		TriggerAt: start, IsRecurring: true, RecurrenceRule: "daily",
		Status: models.StatusPending,
	})

	for i := 0; i < 5; i++ {
		if err := s.Dispatch(context.Background(), 1); err != nil {
			t.Fatalf("Dispatch %d: %v", i, err)
		}
	}

	if got := store.eventCount(); got != 5 {
		t.Fatalf("events = %d, want 5", got)
	}
	r := store.reminder(1)
	if want := start.Add(5 * 24 * time.Hour); !r.TriggerAt.Equal(want) {
		t.Fatalf("trigger = %v, want %v (advance must come from the stored instant)", r.TriggerAt, want)
	}
}

func TestDispatchNonRecurringCompletesOnce(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	notifier := &memNotifier{}
	s := newTestScheduler(store, notifier, Config{})

	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "call Alice",
		TriggerAt: time.Now().UTC().Add(-time.Minute),
		Status:    models.StatusPending,
	})

	if err := s.Dispatch(context.Background(), 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if r := store.reminder(1); r.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed", r.Status)
	}

	// Second attempt is a stale dispatch: no event, no status change.
	if err := s.Dispatch(context.Background(), 1); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.count())
	}
}

func TestDispatchUnknownRuleTerminates(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	s := newTestScheduler(store, &memNotifier{}, Config{})

	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "standup",
		TriggerAt: time.Now().UTC().Add(-time.Minute),
		IsRecurring: true, RecurrenceRule: "RRULE:FREQ=WEEKLY;BYDAY=MO",
		Status: models.StatusPending,
	})

	if err := s.Dispatch(context.Background(), 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if r := store.reminder(1); r.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed for terminal rule", r.Status)
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
}

func TestDispatchDeletedIsNoOp(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	notifier := &memNotifier{}
	s := newTestScheduler(store, notifier, Config{})

	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "old task",
		TriggerAt: time.Now().UTC().Add(-time.Minute),
		Status:    models.StatusDeleted,
	})

	if err := s.Dispatch(context.Background(), 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := store.eventCount(); got != 0 {
		t.Fatalf("events = %d, want 0", got)
	}
	if r := store.reminder(1); r.Status != models.StatusDeleted {
		t.Fatalf("status = %q, want deleted", r.Status)
	}
	if notifier.count() != 0 {
		t.Fatalf("notifications = %d, want 0", notifier.count())
	}
}

func TestConcurrentDispatchProducesOneEvent(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	s := newTestScheduler(store, &memNotifier{}, Config{})

	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "pay rent",
		TriggerAt: time.Now().UTC().Add(-time.Minute),
		Status:    models.StatusPending,
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Dispatch(context.Background(), 1)
		}()
	}
	wg.Wait()

	if got := store.eventCount(); got != 1 {
		t.Fatalf("events = %d, want exactly 1", got)
	}
}

func TestFireLosesRaceOnChangedTrigger(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	trigger := time.Now().UTC().Add(-time.Minute)
	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "x", TriggerAt: trigger,
		IsRecurring: true, RecurrenceRule: "daily", Status: models.StatusPending,
	})

	next := trigger.Add(24 * time.Hour)
	if _, ok, err := store.Fire(context.Background(), 1, trigger, time.Now().UTC(), &next); err != nil || !ok {
		t.Fatalf("first Fire: ok=%v err=%v", ok, err)
	}
	// Same expected instant again: the row moved on, so this must lose.
	if _, ok, err := store.Fire(context.Background(), 1, trigger, time.Now().UTC(), &next); err != nil || ok {
		t.Fatalf("second Fire: ok=%v err=%v, want ok=false", ok, err)
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
}

func TestDispatchNotifyFailureKeepsEvent(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	notifier := &memNotifier{err: context.DeadlineExceeded}
	s := newTestScheduler(store, notifier, Config{})

	trigger := time.Now().UTC().Add(-time.Minute)
	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "backup",
		TriggerAt: trigger, IsRecurring: true, RecurrenceRule: "daily",
		Status: models.StatusPending,
	})

	if err := s.Dispatch(context.Background(), 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("events = %d, want 1 despite delivery failure", got)
	}
	r := store.reminder(1)
	if want := trigger.Add(24 * time.Hour); !r.TriggerAt.Equal(want) {
		t.Fatalf("trigger = %v, want %v (schedule stays consistent)", r.TriggerAt, want)
	}
}

func TestDispatchRescheduledInFuture(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	notifier := &memNotifier{}
	s := newTestScheduler(store, notifier, Config{})

	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "snoozed task",
		TriggerAt: time.Now().UTC().Add(10 * time.Minute),
		Status:    models.StatusPending,
	})

	// A stale timer firing after a snooze must not deliver.
	if err := s.Dispatch(context.Background(), 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := store.eventCount(); got != 0 {
		t.Fatalf("events = %d, want 0", got)
	}
	if notifier.count() != 0 {
		t.Fatalf("notifications = %d, want 0", notifier.count())
	}
}

func TestRecoverWithinGraceFires(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	s := newTestScheduler(store, &memNotifier{}, Config{RecoveryGrace: 5 * time.Minute})

	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "missed during restart",
		TriggerAt: time.Now().UTC().Add(-2 * time.Minute),
		Status:    models.StatusPending,
	})

	if err := s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return store.eventCount() == 1 })
	if r := store.reminder(1); r.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want completed", r.Status)
	}
}

func TestRecoverOutsideGraceLeftForScan(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	s := newTestScheduler(store, &memNotifier{}, Config{RecoveryGrace: 5 * time.Minute})

	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "long overdue",
		TriggerAt: time.Now().UTC().Add(-10 * time.Minute),
		Status:    models.StatusPending,
	})

	if err := s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := store.eventCount(); got != 0 {
		t.Fatalf("events = %d, want 0 (no timer for rows past the grace window)", got)
	}

	// The scan loop treats anything due as dispatchable.
	s.scan(context.Background())
	if got := store.eventCount(); got != 1 {
		t.Fatalf("events after scan = %d, want 1", got)
	}
}

func TestRecoverSkipPolicyRollsForwardSilently(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	notifier := &memNotifier{}
	s := newTestScheduler(store, notifier, Config{
		RecoveryGrace: 5 * time.Minute,
		OverduePolicy: OverdueSkip,
	})

	now := time.Now().UTC()
	oldTrigger := now.Add(-3 * 24 * time.Hour)
	store.add(&models.Reminder{
		ID: 1, UserID: 7, Task: "daily checkin",
		TriggerAt: oldTrigger, IsRecurring: true, RecurrenceRule: "daily",
		Status: models.StatusPending,
	})
	store.add(&models.Reminder{
		ID: 2, UserID: 7, Task: "expired one-shot",
		TriggerAt: now.Add(-time.Hour),
		Status:    models.StatusPending,
	})

	if err := s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if got := store.eventCount(); got != 0 {
		t.Fatalf("events = %d, want 0 (skip policy never fires)", got)
	}
	if notifier.count() != 0 {
		t.Fatalf("notifications = %d, want 0", notifier.count())
	}

	recurring := store.reminder(1)
	if !recurring.TriggerAt.After(now) {
		t.Fatalf("recurring trigger = %v, want after %v", recurring.TriggerAt, now)
	}
	if want := oldTrigger.Add(4 * 24 * time.Hour); !recurring.TriggerAt.Equal(want) {
		t.Fatalf("recurring trigger = %v, want %v (phase preserved)", recurring.TriggerAt, want)
	}
	if oneShot := store.reminder(2); oneShot.Status != models.StatusCompleted {
		t.Fatalf("one-shot status = %q, want completed", oneShot.Status)
	}
}

func TestRollForward(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	next, ok := rollForward(now.Add(-72*time.Hour), "daily", now)
	if !ok {
		t.Fatal("expected daily rule to roll forward")
	}
	if want := now.Add(24 * time.Hour); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	if _, ok := rollForward(now.Add(-time.Hour), "some custom rule", now); ok {
		t.Fatal("terminal rule must not roll forward")
	}
}
