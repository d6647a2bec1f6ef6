package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"remindbot/internal/database"
	"remindbot/internal/models"
)

type ReminderRepository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewReminderRepository(db *database.DB, log zerolog.Logger) *ReminderRepository {
	return &ReminderRepository{db: db, log: log.With().Str("component", "reminder_repo").Logger()}
}

const reminderColumns = `id, user_id, task, trigger_at, is_recurring, recurrence_rule, status, created_at`

func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	reminder.Status = models.StatusPending
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO reminders (user_id, task, trigger_at, is_recurring, recurrence_rule, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		reminder.UserID, reminder.Task, reminder.TriggerAt.UTC(), reminder.IsRecurring,
		reminder.RecurrenceRule, reminder.Status,
	).Scan(&reminder.ID, &reminder.CreatedAt)
}

// GetByID returns (nil, nil) when the reminder does not exist so callers
// can treat a vanished row as a stale dispatch rather than an error.
func (r *ReminderRepository) GetByID(ctx context.Context, id int64) (*models.Reminder, error) {
	reminder := &models.Reminder{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id,
	).Scan(&reminder.ID, &reminder.UserID, &reminder.Task, &reminder.TriggerAt,
		&reminder.IsRecurring, &reminder.RecurrenceRule, &reminder.Status, &reminder.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normalizeReminder(reminder)
	return reminder, nil
}

func (r *ReminderRepository) ListPending(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE user_id = $1 AND status = $2
		 ORDER BY trigger_at ASC`,
		userID, models.StatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanReminders(rows)
}

// GetDue returns pending reminders whose trigger instant is at or before
// the given instant, oldest first.
func (r *ReminderRepository) GetDue(ctx context.Context, until time.Time) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = $1 AND trigger_at <= $2
		 ORDER BY trigger_at ASC`,
		models.StatusPending, until.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanReminders(rows)
}

// GetPendingAfter returns pending reminders with a trigger instant
// strictly after the given instant. Used by recovery to rebuild timers.
func (r *ReminderRepository) GetPendingAfter(ctx context.Context, after time.Time) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = $1 AND trigger_at > $2
		 ORDER BY trigger_at ASC`,
		models.StatusPending, after.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanReminders(rows)
}

// Fire atomically records one firing of a reminder: the event row and the
// schedule mutation (advance to next, or complete when next is nil) commit
// together in a single-row transaction. The conditional update on
// (status, trigger_at) is the serialization point; when another dispatcher
// already advanced or completed the row, Fire reports ok=false and writes
// nothing.
func (r *ReminderRepository) Fire(ctx context.Context, id int64, expected, firedAt time.Time, next *time.Time) (eventID int64, ok bool, err error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `UPDATE reminders SET status = 'completed'
	          WHERE id = $1 AND status = 'pending' AND trigger_at = $2`
	args := []any{id, expected.UTC()}
	if next != nil {
		query = `UPDATE reminders SET trigger_at = $1
		         WHERE id = $2 AND status = 'pending' AND trigger_at = $3`
		args = []any{next.UTC(), id, expected.UTC()}
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	if tag.RowsAffected() == 0 {
		return 0, false, nil
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO events (reminder_id, fired_at_utc) VALUES ($1, $2) RETURNING id`,
		id, firedAt.UTC(),
	).Scan(&eventID)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return eventID, true, nil
}

// AdvanceTrigger moves the trigger instant without recording an event.
// Same conditional-update contract as Fire. Used by the silent
// roll-forward recovery policy.
func (r *ReminderRepository) AdvanceTrigger(ctx context.Context, id int64, expected, next time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET trigger_at = $1
		 WHERE id = $2 AND status = 'pending' AND trigger_at = $3`,
		next.UTC(), id, expected.UTC(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReminderRepository) CompleteIfPending(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET status = 'completed' WHERE id = $1 AND status = 'pending'`, id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Snooze replaces the trigger instant of a still-pending reminder.
func (r *ReminderRepository) Snooze(ctx context.Context, id, userID int64, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET trigger_at = $1
		 WHERE id = $2 AND user_id = $3 AND status = 'pending'`,
		at.UTC(), id, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDelete flips a pending reminder to deleted. Rows are never removed;
// events and responses stay behind as audit history.
func (r *ReminderRepository) SoftDelete(ctx context.Context, id, userID int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET status = 'deleted'
		 WHERE id = $1 AND user_id = $2 AND status = 'pending'`,
		id, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// scanReminders skips rows that fail to scan instead of aborting the
// whole batch: one corrupt row must not stop the scheduler or recovery
// from handling the rest. Skipped rows stay pending for inspection.
func (r *ReminderRepository) scanReminders(rows pgx.Rows) ([]*models.Reminder, error) {
	var reminders []*models.Reminder
	for rows.Next() {
		reminder := &models.Reminder{}
		if err := rows.Scan(&reminder.ID, &reminder.UserID, &reminder.Task, &reminder.TriggerAt,
			&reminder.IsRecurring, &reminder.RecurrenceRule, &reminder.Status, &reminder.CreatedAt); err != nil {
			r.log.Warn().Err(err).Msg("skipping unreadable reminder row")
			continue
		}
		normalizeReminder(reminder)
		reminders = append(reminders, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reminders, nil
}

func normalizeReminder(reminder *models.Reminder) {
	reminder.TriggerAt = reminder.TriggerAt.UTC()
	reminder.CreatedAt = reminder.CreatedAt.UTC()
}
