package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexYaroshenko/hades/internal/config"
	"github.com/AlexYaroshenko/hades/internal/dispatch"
	"github.com/AlexYaroshenko/hades/internal/telegram"
)

// fakeBotAPI answers getUpdates with the queued batches, then with an
// empty result after a short wait, like a long poll that timed out.
type fakeBotAPI struct {
	mu      sync.Mutex
	batches []string
	offsets []string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
	var body string
	if len(f.batches) > 0 {
		body, f.batches = f.batches[0], f.batches[1:]
	}
	f.mu.Unlock()

	if body == "" {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
		body = `[]`
	}
	w.Write([]byte(`{"ok":true,"result":` + body + `}`))
}

func (f *fakeBotAPI) seenOffsets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.offsets...)
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Telegram.Token = "123:secret"
	cfg.Telegram.APIURL = apiURL
	cfg.Telegram.HTTPTimeout = 5 * time.Second
	cfg.Poll.Timeout = 0
	cfg.HTTP.Addr = ""
	return &cfg
}

type recorder struct {
	mu      sync.Mutex
	updates []int64
	chats   []int64
}

func (r *recorder) handlers(*App) dispatch.Handlers {
	h := func(_ context.Context, u telegram.Update, chatID int64) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.updates = append(r.updates, u.UpdateID)
		r.chats = append(r.chats, chatID)
		return nil
	}
	return dispatch.Handlers{Message: h, CallbackQuery: h}
}

func (r *recorder) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.updates...)
}

const twoUpdates = `[
	{"update_id":100,"message":{"message_id":1,"from":{"id":42},"chat":{"id":42,"type":"private"},"text":"hi"}},
	{"update_id":101,"callback_query":{"id":"cb","from":{"id":43},"data":"lang:it"}}
]`

func TestRunOnceWithBolt(t *testing.T) {
	api := &fakeBotAPI{batches: []string{twoUpdates}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Poll.Mode = "once"
	cfg.KV.Driver = "bolt"
	cfg.KV.BoltPath = filepath.Join(t.TempDir(), "hades.db")

	rec := &recorder{}
	a, err := New(context.Background(), cfg, zerolog.Nop(), rec.handlers)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []int64{100, 101}, rec.seen())
	assert.Equal(t, []int64{42, 43}, rec.chats)
	assert.Equal(t, []string{"0"}, api.seenOffsets())

	offset, err := a.offsets.LoadOffset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), offset)

	require.NotNil(t, a.Status())
	status, err := a.Status().GetStatus(context.Background(), 42, -1)
	require.NoError(t, err)
	assert.Equal(t, -1, status)
}

func TestRunOnceWithoutOffsetBackend(t *testing.T) {
	srv := httptest.NewServer(&fakeBotAPI{})
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Poll.Mode = "once"

	a, err := New(context.Background(), cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Status())
	assert.Error(t, a.Run(context.Background()))

	lang, err := a.Languages().GetLanguage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
}

func TestRunForeverUntilCancelled(t *testing.T) {
	api := &fakeBotAPI{batches: []string{twoUpdates}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	mr := miniredis.RunT(t)
	cfg := testConfig(t, srv.URL)
	cfg.KV.Driver = "redis"
	cfg.KV.RedisURL = mr.Addr()

	rec := &recorder{}
	a, err := New(context.Background(), cfg, zerolog.Nop(), rec.handlers)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		offs := api.seenOffsets()
		return len(offs) >= 2 && offs[1] == "102"
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, []int64{100, 101}, rec.seen())
	assert.Equal(t, "0", api.seenOffsets()[0])
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.KV.Driver = "redis"
	cfg.KV.RedisURL = addr

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, cfg, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.KV.Driver = "bolt"
	cfg.KV.BoltPath = filepath.Join(t.TempDir(), "hades.db")

	a, err := New(context.Background(), cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
