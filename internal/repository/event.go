package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"remindbot/internal/database"
	"remindbot/internal/models"
)

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetWithReminder resolves a firing event to its parent reminder in one
// query. Returns (nil, nil, nil) when the event does not exist.
func (r *EventRepository) GetWithReminder(ctx context.Context, eventID int64) (*models.Event, *models.Reminder, error) {
	event := &models.Event{}
	reminder := &models.Reminder{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT e.id, e.reminder_id, e.fired_at_utc,
		        r.id, r.user_id, r.task, r.trigger_at, r.is_recurring, r.recurrence_rule, r.status, r.created_at
		 FROM events e
		 JOIN reminders r ON r.id = e.reminder_id
		 WHERE e.id = $1`,
		eventID,
	).Scan(&event.ID, &event.ReminderID, &event.FiredAt,
		&reminder.ID, &reminder.UserID, &reminder.Task, &reminder.TriggerAt,
		&reminder.IsRecurring, &reminder.RecurrenceRule, &reminder.Status, &reminder.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	event.FiredAt = event.FiredAt.UTC()
	normalizeReminder(reminder)
	return event, reminder, nil
}
