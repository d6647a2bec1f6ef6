package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"remindbot/internal/models"
	"remindbot/internal/rrule"
)

// Notifier delivers fired reminders over Telegram with the response
// keyboard attached. It satisfies scheduler.Notifier.
type Notifier struct {
	api *tgbotapi.BotAPI
	log zerolog.Logger
}

func NewNotifier(api *tgbotapi.BotAPI, log zerolog.Logger) *Notifier {
	return &Notifier{api: api, log: log.With().Str("component", "notifier").Logger()}
}

func (n *Notifier) NotifyFiring(ctx context.Context, reminder *models.Reminder, eventID int64) error {
	text := "⏰ *Reminder*: " + reminder.Task
	if desc := rrule.Describe(reminder.RecurrenceRule); reminder.IsRecurring && desc != "" {
		text += "\n🔁 " + desc
	}

	msg := tgbotapi.NewMessage(reminder.UserID, text)
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Did ✅", fmt.Sprintf("resp:%d:did", eventID)),
			tgbotapi.NewInlineKeyboardButtonData("Didn't ❌", fmt.Sprintf("resp:%d:didnt", eventID)),
			tgbotapi.NewInlineKeyboardButtonData("Snooze 💤", fmt.Sprintf("resp:%d:snooze", eventID)),
		),
	)

	// tgbotapi sends carry no context, so the call runs on the side;
	// a hung connection must not stall the dispatch path behind it.
	done := make(chan error, 1)
	go func() {
		_, err := n.api.Send(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send reminder to user %d: %w", reminder.UserID, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send reminder to user %d: %w", reminder.UserID, err)
		}
		return nil
	}
}
