package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	minSnoozeMinutes = 1
	maxSnoozeMinutes = 1440
)

var (
	errSnoozeOutOfRange  = errors.New("snooze minutes must be between 1 and 1440")
	errSnoozeUnparseable = errors.New("snooze input not understood")
)

// parseSnoozeInput accepts either a minute count (1 to 1440) or a
// 24-hour clock time like "08:30", resolved to the next occurrence of
// that wall time after now. Clock times are read in now's location,
// which is UTC everywhere this is called; the prompts say so.
func parseSnoozeInput(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)

	if minutes, err := strconv.Atoi(text); err == nil {
		if minutes < minSnoozeMinutes || minutes > maxSnoozeMinutes {
			return time.Time{}, errSnoozeOutOfRange
		}
		return now.Add(time.Duration(minutes) * time.Minute), nil
	}

	if clock, err := time.Parse("15:04", text); err == nil {
		at := time.Date(now.Year(), now.Month(), now.Day(),
			clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if !at.After(now) {
			at = at.Add(24 * time.Hour)
		}
		return at, nil
	}

	return time.Time{}, errSnoozeUnparseable
}

func (h *Handlers) handleSnoozeReply(ctx context.Context, msg *tgbotapi.Message, session snoozeSession) {
	now := time.Now().UTC()
	at, err := parseSnoozeInput(msg.Text, now)
	if err != nil {
		// Keep the session open so the user can try again.
		h.sessions.start(msg.From.ID, session.ReminderID, session.EventID)
		if errors.Is(err, errSnoozeOutOfRange) {
			h.sendMessage(msg.Chat.ID, "Snooze must be between 1 and 1440 minutes. Try again.")
		} else {
			h.sendMessage(msg.Chat.ID, "Send minutes (e.g. 30) or a UTC time like 08:30.")
		}
		return
	}

	h.sessions.clear(msg.From.ID)

	ok, err := h.repos.Reminder.Snooze(ctx, session.ReminderID, msg.From.ID, at)
	if err != nil {
		h.log.Error().Err(err).Int64("reminder_id", session.ReminderID).Msg("snooze failed")
		h.sendMessage(msg.Chat.ID, "❌ Couldn't snooze that reminder, please try again.")
		return
	}
	if !ok {
		h.sendMessage(msg.Chat.ID, "That reminder is no longer active.")
		return
	}

	h.sched.Schedule(session.ReminderID, at)
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("💤 Snoozed until %s.", at.Format("2006-01-02 15:04 MST")))
}
