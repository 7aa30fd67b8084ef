package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/boxrelay/pkg/logger"
)

type recorded struct {
	method      string
	contentType string
	json        map[string]any
	form        map[string]string
	file        []byte
	filename    string
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []recorded
	reply func(method string) (int, string)
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]
		rec := recorded{method: method, contentType: r.Header.Get("Content-Type")}

		switch {
		case strings.HasPrefix(rec.contentType, "application/json"):
			_ = json.NewDecoder(r.Body).Decode(&rec.json)
		case strings.HasPrefix(rec.contentType, "multipart/form-data"):
			require.NoError(t, r.ParseMultipartForm(1<<20))
			rec.form = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				rec.form[k] = v[0]
			}
			for _, fhs := range r.MultipartForm.File {
				fh := fhs[0]
				rec.filename = fh.Filename
				f, err := fh.Open()
				require.NoError(t, err)
				rec.file, _ = io.ReadAll(f)
				_ = f.Close()
			}
		}

		f.mu.Lock()
		f.calls = append(f.calls, rec)
		f.mu.Unlock()

		status, body := http.StatusOK, `{"ok":true,"result":{"message_id":77,"chat":{"id":1}}}`
		if f.reply != nil {
			status, body = f.reply(method)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return New(Options{Token: "TOKEN", BaseURL: srv.URL, Logger: logger.Discard()})
}

func TestSendMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	markup := &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
		{Text: "ok", CallbackData: "confirm_alert:1"},
	}}}
	msg, err := c.SendMessage(context.Background(), 10, "<b>hi</b>", markup)
	require.NoError(t, err)
	assert.Equal(t, int64(77), msg.MessageID)

	require.Len(t, api.calls, 1)
	call := api.calls[0]
	assert.Equal(t, "sendMessage", call.method)
	assert.Equal(t, float64(10), call.json["chat_id"])
	assert.Equal(t, "HTML", call.json["parse_mode"])
	assert.NotNil(t, call.json["reply_markup"])
}

func TestSendPhoto_URL(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	_, err := c.SendPhoto(context.Background(), 10, InputFile{URL: "https://cdn/x.jpg"}, "cap", nil)
	require.NoError(t, err)
	require.Len(t, api.calls, 1)
	assert.Equal(t, "sendPhoto", api.calls[0].method)
	assert.Equal(t, "https://cdn/x.jpg", api.calls[0].json["photo"])
	assert.NotContains(t, api.calls[0].json, "reply_markup")
}

func TestSendPhoto_File(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	path := filepath.Join(t.TempDir(), "1.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))

	markup := &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{{Text: "a", CallbackData: "b"}}}}
	_, err := c.SendPhoto(context.Background(), 10, InputFile{Path: path}, "cap", markup)
	require.NoError(t, err)

	require.Len(t, api.calls, 1)
	call := api.calls[0]
	assert.Equal(t, "10", call.form["chat_id"])
	assert.Equal(t, "HTML", call.form["parse_mode"])
	assert.Contains(t, call.form["reply_markup"], "inline_keyboard")
	assert.Equal(t, "1.jpg", call.filename)
	assert.Equal(t, []byte("jpeg-bytes"), call.file)
}

func TestSendVideo_Bytes(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	_, err := c.SendVideo(context.Background(), 10, InputFile{Data: []byte("mp4"), Filename: "a.mp4"}, "cap", nil)
	require.NoError(t, err)
	require.Len(t, api.calls, 1)
	assert.Equal(t, "sendVideo", api.calls[0].method)
	assert.Equal(t, []byte("mp4"), api.calls[0].file)
}

func TestAPIError(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) {
		return http.StatusForbidden, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	}}
	c := newTestClient(t, api)

	_, err := c.SendMessage(context.Background(), 10, "x", nil)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.ErrorCode)
	assert.NotContains(t, err.Error(), "TOKEN")
}

func TestIsNotModified(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) {
		return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}`
	}}
	c := newTestClient(t, api)

	err := c.EditMessageReplyMarkup(context.Background(), 1, 2, nil)
	require.Error(t, err)
	assert.True(t, IsNotModified(err))
	assert.False(t, IsNotModified(&APIError{Description: "chat not found"}))

	require.Len(t, api.calls, 1)
	markup, ok := api.calls[0].json["reply_markup"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, markup["inline_keyboard"])
}

func TestIsMediaRejected(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) {
		return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: failed to get HTTP URL content"}`
	}}
	c := newTestClient(t, api)

	_, err := c.SendPhoto(context.Background(), 10, InputFile{URL: "https://cdn.example.com/x.jpg"}, "cap", nil)
	require.Error(t, err)
	assert.True(t, IsMediaRejected(err))

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"wrong file type", &APIError{StatusCode: 400, Description: "Bad Request: wrong file identifier/HTTP URL specified"}, true},
		{"chat not found", &APIError{StatusCode: 400, Description: "Bad Request: chat not found"}, false},
		{"blocked", &APIError{StatusCode: 403, Description: "Forbidden: bot was blocked by the user"}, false},
		{"transport", context.DeadlineExceeded, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMediaRejected(tt.err))
		})
	}
}

func TestAnswerCallbackQuery(t *testing.T) {
	api := &fakeAPI{reply: func(string) (int, string) { return http.StatusOK, `{"ok":true,"result":true}` }}
	c := newTestClient(t, api)

	require.NoError(t, c.AnswerCallbackQuery(context.Background(), "cb-1", "done", true))
	assert.Equal(t, "cb-1", api.calls[0].json["callback_query_id"])
	assert.Equal(t, true, api.calls[0].json["show_alert"])
}

func TestGetUpdates(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `{"ok":true,"result":[
			{"update_id":5,"message":{"message_id":1,"chat":{"id":9},"text":"/id"}},
			{"update_id":6,"callback_query":{"id":"q","data":"confirm_alert:1"}}
		]}`)
	}))
	defer srv.Close()

	c := New(Options{Token: "T", BaseURL: srv.URL, Logger: logger.Discard()})
	updates, next, err := c.GetUpdates(context.Background(), 3, time.Second)
	require.NoError(t, err)
	assert.Len(t, updates, 2)
	assert.Equal(t, int64(7), next)
	assert.Contains(t, gotQuery, "offset=3")
	assert.Equal(t, "/id", updates[0].Message.Text)
	assert.Equal(t, "confirm_alert:1", updates[1].CallbackQuery.Data)
}

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botT/getMe", r.URL.Path)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"username":"relay_bot"}}`)
	}))
	defer srv.Close()

	u, err := New(Options{Token: "T", BaseURL: srv.URL}).GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "relay_bot", u.Username)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ann Lee", DisplayName(&User{FirstName: "Ann", LastName: "Lee"}))
	assert.Equal(t, "Ann", DisplayName(&User{FirstName: " Ann "}))
	assert.Equal(t, "@ann", DisplayName(&User{Username: "ann"}))
	assert.Equal(t, "", DisplayName(nil))
}
