package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"remindbot/internal/ai"
	"remindbot/internal/repository"
	"remindbot/internal/rrule"
)

type Repositories struct {
	Reminder *repository.ReminderRepository
	Event    *repository.EventRepository
	Response *repository.ResponseRepository
}

// Scheduler is the slice of the scheduling engine the handlers drive:
// registering a one-shot timer after create/snooze and dropping it on
// delete or completion.
type Scheduler interface {
	Schedule(id int64, at time.Time)
	Cancel(id int64)
}

type Handlers struct {
	api      *tgbotapi.BotAPI
	repos    *Repositories
	ai       *ai.Client
	sched    Scheduler
	log      zerolog.Logger
	sessions *snoozeSessions
}

func New(api *tgbotapi.BotAPI, repos *Repositories, aiClient *ai.Client, sched Scheduler, log zerolog.Logger) *Handlers {
	return &Handlers{
		api:      api,
		repos:    repos,
		ai:       aiClient,
		sched:    sched,
		log:      log.With().Str("component", "handlers").Logger(),
		sessions: newSnoozeSessions(),
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(msg)
	case "help":
		h.handleHelp(msg)
	case "list":
		h.handleList(ctx, msg)
	case "delete":
		h.handleDelete(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

// HandleMessage routes free text: an open snooze session consumes the
// next message as a duration; everything else goes to intent extraction.
func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if session, ok := h.sessions.get(msg.From.ID); ok {
		h.handleSnoozeReply(ctx, msg, session)
		return
	}
	h.handleCreate(ctx, msg)
}

func (h *Handlers) handleStart(msg *tgbotapi.Message) {
	text := `👋 Hi! Just tell me what to remind you about.

Examples:
• Remind me tomorrow at 9 pm to call Alice
• Remind me every Monday to send the report

/list shows your active reminders, /help everything else.`
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(msg *tgbotapi.Message) {
	text := `📖 *Commands*

/list - show active reminders
/delete <id> - delete a reminder

Everything else is plain language: describe the task and the time and I will schedule it. When a reminder fires you can mark it done, not done, or snooze it.`
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleList(ctx context.Context, msg *tgbotapi.Message) {
	reminders, err := h.repos.Reminder.ListPending(ctx, msg.From.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("list reminders failed")
		h.sendMessage(msg.Chat.ID, "Couldn't fetch your reminders, please try again.")
		return
	}
	if len(reminders) == 0 {
		h.sendMessage(msg.Chat.ID, "You have no active reminders.")
		return
	}

	var sb strings.Builder
	for _, r := range reminders {
		marker := "🕑"
		if r.IsRecurring {
			marker = "🔁"
		}
		sb.WriteString(fmt.Sprintf("%s #%d: %s - %s\n", marker, r.ID, r.Task,
			r.TriggerAt.Format("2006-01-02 15:04 MST")))
		if desc := rrule.Describe(r.RecurrenceRule); desc != "" {
			sb.WriteString("    " + desc + "\n")
		}
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

func (h *Handlers) handleDelete(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Usage: /delete <id> (see /list for ids)")
		return
	}

	deleted, err := h.repos.Reminder.SoftDelete(ctx, id, msg.From.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("reminder_id", id).Msg("delete reminder failed")
		h.sendMessage(msg.Chat.ID, "Couldn't delete that reminder, please try again.")
		return
	}
	if !deleted {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("No active reminder #%d.", id))
		return
	}

	h.sched.Cancel(id)
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("🗑 Reminder #%d deleted.", id))
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := h.api.Send(msg); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := h.api.Send(edit); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("edit message failed")
	}
}

func (h *Handlers) answerCallbackWithAlert(callbackID, text string) {
	answer := tgbotapi.NewCallbackWithAlert(callbackID, text)
	if _, err := h.api.Request(answer); err != nil {
		h.log.Error().Err(err).Msg("answer callback failed")
	}
}
