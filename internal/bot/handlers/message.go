package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remindbot/internal/ai"
	"remindbot/internal/models"
	"remindbot/internal/recurrence"
	"remindbot/internal/rrule"
)

// handleCreate turns a free-text message into a pending reminder:
// extract intent, normalize the instant to UTC, reject past instants,
// persist, then register the one-shot timer.
func (h *Handlers) handleCreate(ctx context.Context, msg *tgbotapi.Message) {
	if h.ai == nil {
		h.sendMessage(msg.Chat.ID, "Natural language input is not configured. See /help.")
		return
	}

	now := time.Now().UTC()
	parsed, err := h.ai.ParseReminder(ctx, msg.Text, now)
	switch {
	case errors.Is(err, ai.ErrNoTime):
		h.sendMessage(msg.Chat.ID, "⚠️ I couldn't find a time in your reminder.")
		return
	case errors.Is(err, ai.ErrNotReminder):
		h.sendMessage(msg.Chat.ID, "⚠️ That doesn't look like a reminder request.")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("intent extraction failed")
		h.sendMessage(msg.Chat.ID, "❌ Sorry, I couldn't understand that.")
		return
	}

	if !parsed.TriggerAt.After(now) {
		h.sendMessage(msg.Chat.ID, "⏱ That time is in the past. When should I remind you?")
		return
	}

	rule := parsed.RecurrenceRule
	droppedRule := ""
	if err := rrule.Validate(rule, parsed.TriggerAt); err != nil {
		h.log.Warn().Err(err).Str("rule", rule).Msg("dropping unusable recurrence rule")
		droppedRule, rule = rule, ""
	}

	reminder := &models.Reminder{
		UserID:         msg.From.ID,
		Task:           parsed.Task,
		TriggerAt:      parsed.TriggerAt,
		IsRecurring:    recurrence.Known(rule),
		RecurrenceRule: rule,
	}
	if err := h.repos.Reminder.Create(ctx, reminder); err != nil {
		h.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("create reminder failed")
		h.sendMessage(msg.Chat.ID, "❌ Couldn't save the reminder, please try again.")
		return
	}

	h.sched.Schedule(reminder.ID, reminder.TriggerAt)
	h.sendMessage(msg.Chat.ID, confirmationText(reminder, droppedRule))
}

// confirmationText builds the creation reply. Free-form rules are stored
// for the record but only the symbolic set reschedules automatically;
// rules dropped at validation are called out so the user is not left
// believing the reminder repeats.
func confirmationText(reminder *models.Reminder, droppedRule string) string {
	text := fmt.Sprintf("✅ Reminder #%d set for %s", reminder.ID,
		reminder.TriggerAt.Format("2006-01-02 15:04 MST"))
	if desc := rrule.Describe(reminder.RecurrenceRule); reminder.IsRecurring && desc != "" {
		return text + ", repeats " + desc
	}
	if reminder.RecurrenceRule != "" {
		return text + fmt.Sprintf("\n⚠️ Recurrence %q isn't supported for rescheduling; this will fire once.", reminder.RecurrenceRule)
	}
	if droppedRule != "" {
		return text + fmt.Sprintf("\n⚠️ I couldn't apply the recurrence %q; this reminder fires once.", droppedRule)
	}
	return text
}
