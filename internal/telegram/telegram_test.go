package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123:secret"

// newTestClient starts a fake Bot API server; every request is recorded.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(testToken, WithServerURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, &seen
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}

func TestFetchEncodesParamsAsQuery(t *testing.T) {
	c, seen := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"result":{"done":true}}`))
	})

	res, err := c.Fetch(context.Background(), "sendMessage", Params{
		"chat_id":      int64(42),
		"text":         "hi there",
		"silent":       true,
		"skip":         nil,
		"reply_markup": InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{{Text: "a", CallbackData: "b"}}}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"done":true}`, string(res))

	require.Len(t, *seen, 1)
	r := (*seen)[0]
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, "/bot"+testToken+"/sendMessage", r.URL.Path)

	q := r.URL.Query()
	assert.Equal(t, "42", q.Get("chat_id"))
	assert.Equal(t, "hi there", q.Get("text"))
	assert.Equal(t, "true", q.Get("silent"))
	assert.False(t, q.Has("skip"))
	assert.JSONEq(t, `{"inline_keyboard":[[{"text":"a","callback_data":"b"}]]}`, q.Get("reply_markup"))
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantDesc   string
	}{
		{name: "api error", status: http.StatusBadRequest, body: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, wantStatus: 400, wantDesc: "Bad Request: chat not found"},
		{name: "ok false on 200", status: http.StatusOK, body: `{"ok":false,"description":"nope"}`, wantStatus: 200, wantDesc: "nope"},
		{name: "html error page", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantStatus: 502, wantDesc: "<html>bad gateway</html>"},
		{name: "invalid json", status: http.StatusOK, body: `not json`, wantStatus: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Fetch(context.Background(), "getMe", nil)
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, "getMe", te.Endpoint)
			assert.Equal(t, tt.wantStatus, te.StatusCode)
			assert.Equal(t, tt.wantDesc, te.Description)
		})
	}
}

func TestFetchConnectionErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewClient(testToken, WithServerURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "getMe", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	var ue *url.Error
	assert.True(t, errors.As(err, &ue))
	assert.NotContains(t, err.Error(), testToken)
}

func TestGetUpdatesDecodesBatch(t *testing.T) {
	c, seen := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":100,"message":{"message_id":1,"from":{"id":42,"first_name":"Ann"},"text":"/start"}},
			{"update_id":101,"callback_query":{"id":"cb1","from":{"id":7},"data":"x"}}
		]}`))
	})

	updates, err := c.GetUpdates(context.Background(), 5, 100, 30)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	assert.Equal(t, int64(100), updates[0].UpdateID)
	require.NotNil(t, updates[0].Message)
	assert.Equal(t, int64(42), updates[0].Message.From.ID)
	assert.Contains(t, string(updates[0].Raw), `"/start"`)
	require.NotNil(t, updates[1].CallbackQuery)
	assert.Equal(t, "cb1", updates[1].CallbackQuery.ID)

	q := (*seen)[0].URL.Query()
	assert.Equal(t, "5", q.Get("offset"))
	assert.Equal(t, "100", q.Get("limit"))
	assert.Equal(t, "30", q.Get("timeout"))
}

func TestFormatUserName(t *testing.T) {
	assert.Equal(t, "Unknown", FormatUserName(nil))
	assert.Equal(t, "@ann", FormatUserName(&User{Username: "ann", FirstName: "Ann"}))
	assert.Equal(t, "Ann Lee", FormatUserName(&User{FirstName: "Ann", LastName: "Lee"}))
	assert.Equal(t, "Ann", FormatUserName(&User{FirstName: "Ann"}))
	assert.Equal(t, "Unknown", FormatUserName(&User{}))
}

func TestParamsSkipTypedNil(t *testing.T) {
	var markup *InlineKeyboardMarkup
	enc, err := Params{"chat_id": int64(1), "reply_markup": markup, "results": []any(nil)}.Encode()
	require.NoError(t, err)
	assert.Equal(t, "chat_id=1", enc)
}
