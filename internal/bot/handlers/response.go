package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remindbot/internal/models"
)

// HandleCallbackQuery handles the Did / Didn't / Snooze buttons under a
// fired reminder. Callback data is "resp:<event_id>:<action>".
func (h *Handlers) HandleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Telegram omits the message on callbacks from old or inaccessible
	// messages; with nothing to edit, just acknowledge the press.
	if query.Message == nil {
		h.answerCallback(query.ID)
		return
	}

	eventID, action, ok := parseCallbackData(query.Data)
	if !ok {
		h.answerCallbackWithAlert(query.ID, "Unknown action.")
		return
	}

	event, reminder, err := h.repos.Event.GetWithReminder(ctx, eventID)
	if err != nil {
		h.log.Error().Err(err).Int64("event_id", eventID).Msg("load event failed")
		h.answerCallbackWithAlert(query.ID, "Something went wrong, please try again.")
		return
	}
	// A missing event and someone else's event get the same reply so
	// event ids can't be probed.
	if event == nil || reminder == nil || reminder.UserID != query.From.ID {
		h.answerCallbackWithAlert(query.ID, "Not your reminder.")
		return
	}

	response := &models.Response{
		EventID:     &event.ID,
		UserID:      query.From.ID,
		Response:    responseForAction(action),
		RespondedAt: time.Now().UTC(),
	}
	if err := h.repos.Response.Create(ctx, response); err != nil {
		h.log.Error().Err(err).Int64("event_id", eventID).Msg("record response failed")
		h.answerCallbackWithAlert(query.ID, "Something went wrong, please try again.")
		return
	}

	if action == "snooze" {
		h.sessions.start(query.From.ID, reminder.ID, event.ID)
		h.answerCallback(query.ID)
		h.editMessageText(query.Message.Chat.ID, query.Message.MessageID,
			"💤 For how long? Send minutes (e.g. 30) or a UTC time like 08:30.")
		return
	}

	// Did and Didn't close out one-shot reminders. Recurring ones keep
	// their schedule untouched; the next occurrence was already set
	// when the reminder fired.
	if completesReminder(action, reminder) {
		done, err := h.repos.Reminder.CompleteIfPending(ctx, reminder.ID)
		if err != nil {
			h.log.Error().Err(err).Int64("reminder_id", reminder.ID).Msg("complete reminder failed")
		} else if done {
			h.sched.Cancel(reminder.ID)
		}
	}

	h.answerCallback(query.ID)
	if action == "did" {
		h.editMessageText(query.Message.Chat.ID, query.Message.MessageID,
			"✅ Noted, thanks! "+reminder.Task)
	} else {
		h.editMessageText(query.Message.Chat.ID, query.Message.MessageID,
			"❌ Got it. "+reminder.Task)
	}
}

func parseCallbackData(data string) (eventID int64, action string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "resp" {
		return 0, "", false
	}
	eventID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	switch parts[2] {
	case "did", "didnt", "snooze":
		return eventID, parts[2], true
	}
	return 0, "", false
}

func responseForAction(action string) string {
	switch action {
	case "did":
		return models.ResponseDid
	case "didnt":
		return models.ResponseDidnt
	default:
		return models.ResponseSnoozed
	}
}

// completesReminder reports whether a button press should mark the
// reminder completed. Only a terminal answer on a one-shot does;
// recurring reminders never change schedule from a response.
func completesReminder(action string, reminder *models.Reminder) bool {
	if action != "did" && action != "didnt" {
		return false
	}
	return !reminder.IsRecurring
}

func (h *Handlers) answerCallback(callbackID string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		h.log.Error().Err(err).Msg("answer callback failed")
	}
}
