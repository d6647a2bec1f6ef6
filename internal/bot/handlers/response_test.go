package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *tgbotapi.BotAPI {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"test","username":"test_bot"}}`)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithClient("token", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewBotAPIWithClient: %v", err)
	}
	return api
}

// Callbacks from old or inaccessible messages arrive without a Message.
// They must be acknowledged and otherwise ignored, never dereferenced.
func TestCallbackWithoutMessageIsAcknowledged(t *testing.T) {
	t.Parallel()
	var answered atomic.Bool
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/answerCallbackQuery") {
			answered.Store(true)
			fmt.Fprint(w, `{"ok":true,"result":true}`)
			return
		}
		t.Errorf("unexpected request %s", r.URL.Path)
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	})

	// Repositories stay empty: the guard must return before any lookup.
	h := New(api, &Repositories{}, nil, nil, zerolog.Nop())
	h.HandleCallbackQuery(context.Background(), &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: 7},
		Data: "resp:1:did",
	})

	if !answered.Load() {
		t.Fatal("expected the callback to be answered")
	}
}
