package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexYaroshenko/hades/internal/app"
	"github.com/AlexYaroshenko/hades/internal/config"
	"github.com/AlexYaroshenko/hades/internal/telegram"
)

func TestGreet(t *testing.T) {
	assert.Equal(t, "Ciao, @bob! Invia /lang per scegliere una lingua.", greet("it", "@bob"))
	assert.Equal(t, "Hello, a &lt;b&gt;! Send /lang to pick a language.", greet("xx", "a <b>"))
}

func TestLanguageKeyboard(t *testing.T) {
	kb := languageKeyboard()
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], len(languageOrder))
	assert.Equal(t, "lang:de", kb.InlineKeyboard[0][1].CallbackData)
}

func TestDefaultHandlersFlow(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []*http.Request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r)
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42,"type":"private"}}}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Telegram.Token = "123:secret"
	cfg.Telegram.APIURL = srv.URL
	cfg.Telegram.HTTPTimeout = 5 * time.Second
	cfg.KV.Driver = "bolt"
	cfg.KV.BoltPath = filepath.Join(t.TempDir(), "hades.db")

	a, err := app.New(context.Background(), &cfg, zerolog.Nop(), defaultHandlers)
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()
	d := a.Dispatcher()

	from := &telegram.User{ID: 42, Username: "bob", LanguageCode: "it-IT"}
	chat := &telegram.Chat{ID: 42, Type: "private"}

	_, err = d.Dispatch(ctx, telegram.Update{UpdateID: 1, Message: &telegram.Message{From: from, Chat: chat, Text: "/lang"}})
	require.NoError(t, err)
	status, err := a.Status().GetStatus(ctx, 42, -1)
	require.NoError(t, err)
	assert.Equal(t, statusPickLanguage, status)

	// No database: the choice cannot be stored and the user is told so.
	_, err = d.Dispatch(ctx, telegram.Update{UpdateID: 2, CallbackQuery: &telegram.CallbackQuery{ID: "cb", From: from, Data: "lang:de"}})
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, telegram.Update{UpdateID: 3, Message: &telegram.Message{From: from, Chat: chat, Text: "/start@hades_bot"}})
	require.NoError(t, err)
	status, err = a.Status().GetStatus(ctx, 42, -1)
	require.NoError(t, err)
	assert.Equal(t, statusIdle, status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 3)
	assert.Equal(t, "/bot123:secret/sendMessage", calls[0].URL.Path)
	assert.Equal(t, "/bot123:secret/answerCallbackQuery", calls[1].URL.Path)
	assert.Equal(t, "true", calls[1].URL.Query().Get("show_alert"))
	assert.Equal(t, "/bot123:secret/sendMessage", calls[2].URL.Path)
	assert.Contains(t, calls[2].URL.Query().Get("text"), "Hello, @bob!")
}
