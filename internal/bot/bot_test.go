package bot

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/boxrelay/internal/media"
	"github.com/mr-karan/boxrelay/internal/render"
	"github.com/mr-karan/boxrelay/internal/telegram"
	"github.com/mr-karan/boxrelay/pkg/logger"
	"github.com/mr-karan/boxrelay/pkg/models"
)

type reply struct {
	to   models.RecipientID
	text string
}

type fakeTransport struct {
	mu      sync.Mutex
	replies []reply
	answers []string
}

func (f *fakeTransport) SendText(_ context.Context, to models.RecipientID, text string, _ *render.ControlLayout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{to, text})
	return nil
}

func (f *fakeTransport) SendMedia(context.Context, models.RecipientID, *media.Handle, string, *render.ControlLayout) error {
	return nil
}

func (f *fakeTransport) RemoveControls(context.Context, models.MessageRef) error { return nil }

func (f *fakeTransport) AnswerCallback(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, id)
	return nil
}

type fakeConfirmer struct{ events []models.ConfirmationEvent }

func (f *fakeConfirmer) Handle(_ context.Context, ev models.ConfirmationEvent) error {
	f.events = append(f.events, ev)
	return nil
}

type registration struct {
	actor models.Actor
	token string
}

type fakeRegistrar struct{ calls []registration }

func (f *fakeRegistrar) Handle(_ context.Context, actor models.Actor, token string) error {
	f.calls = append(f.calls, registration{actor, token})
	return nil
}

type fakeStats struct {
	query url.Values
	err   error
}

func (f *fakeStats) AlertStats(_ context.Context, q url.Values) (*models.AlertStats, error) {
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	return &models.AlertStats{Total: 5}, nil
}

type harness struct {
	bot       *Bot
	transport *fakeTransport
	confirmer *fakeConfirmer
	registrar *fakeRegistrar
	stats     *fakeStats
}

func newHarness() *harness {
	h := &harness{
		transport: &fakeTransport{},
		confirmer: &fakeConfirmer{},
		registrar: &fakeRegistrar{},
		stats:     &fakeStats{},
	}
	h.bot = New(Options{
		Transport: h.transport,
		Confirmer: h.confirmer,
		Registrar: h.registrar,
		Stats:     h.stats,
		Logger:    logger.Discard(),
		Now:       func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) },
	})
	return h
}

func textUpdate(text string) telegram.Update {
	return telegram.Update{UpdateID: 1, Message: &telegram.Message{
		MessageID: 3,
		Chat:      &telegram.Chat{ID: 777, Type: "private"},
		From:      &telegram.User{ID: 777, FirstName: "Ann", LastName: "Lee"},
		Text:      text,
	}}
}

func TestHandleUpdate_Messages(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "/start", want: render.RegistrationHint},
		{text: "/start hello", want: render.RegistrationHint},
		{text: "/start register_", want: render.RegistrationHint},
		{text: "/id", want: render.ChatID(777)},
		{text: "/id@relay_bot", want: render.ChatID(777)},
		{text: "hello there", want: render.EchoReply},
		{text: "", want: render.EchoReply},
		{text: "/stats tomorrow-ish", want: render.StatsUsage},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h := newHarness()
			h.bot.HandleUpdate(context.Background(), textUpdate(tt.text))
			require.Len(t, h.transport.replies, 1)
			assert.Equal(t, models.RecipientID(777), h.transport.replies[0].to)
			assert.Equal(t, tt.want, h.transport.replies[0].text)
			assert.Empty(t, h.registrar.calls)
		})
	}
}

func TestHandleUpdate_Register(t *testing.T) {
	h := newHarness()
	h.bot.HandleUpdate(context.Background(), textUpdate("/start register_abc123"))

	require.Len(t, h.registrar.calls, 1)
	call := h.registrar.calls[0]
	assert.Equal(t, "abc123", call.token)
	assert.Equal(t, int64(777), call.actor.ChatID)
	assert.Equal(t, "Ann Lee", call.actor.DisplayName)
	assert.Empty(t, h.transport.replies)
}

func TestHandleUpdate_Stats(t *testing.T) {
	h := newHarness()
	h.bot.HandleUpdate(context.Background(), textUpdate("/stats 2025-03-01 2025-03-10"))

	assert.Equal(t, "2025-03-01", h.stats.query.Get("start_date"))
	assert.Equal(t, "2025-03-10", h.stats.query.Get("end_date"))
	require.Len(t, h.transport.replies, 1)
	assert.Contains(t, h.transport.replies[0].text, "Всего: <b>5</b>")
}

func TestHandleUpdate_StatsFailure(t *testing.T) {
	h := newHarness()
	h.stats.err = errors.New("backend down")
	h.bot.HandleUpdate(context.Background(), textUpdate("/stats week"))

	assert.Equal(t, "week", h.stats.query.Get("period"))
	require.Len(t, h.transport.replies, 1)
	assert.Equal(t, render.StatsUnavailable, h.transport.replies[0].text)
}

func TestHandleUpdate_Callback(t *testing.T) {
	h := newHarness()
	h.bot.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb-9",
		From:    &telegram.User{ID: 10, Username: "ann"},
		Message: &telegram.Message{MessageID: 900, Chat: &telegram.Chat{ID: 10}},
		Data:    "confirm_alert:42",
	}})

	require.Len(t, h.confirmer.events, 1)
	ev := h.confirmer.events[0]
	assert.Equal(t, models.AlertID(42), ev.AlertID)
	assert.Equal(t, models.ActionConfirm, ev.Action)
	assert.Equal(t, "cb-9", ev.CallbackID)
	assert.Equal(t, models.MessageRef{ChatID: 10, MessageID: 900}, ev.Message)
	assert.Equal(t, "@ann", ev.Actor.DisplayName)
}

func TestHandleUpdate_UnknownCallback(t *testing.T) {
	h := newHarness()
	h.bot.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{ID: "cb-1", Data: "something_else"}})

	assert.Empty(t, h.confirmer.events)
	assert.Equal(t, []string{"cb-1"}, h.transport.answers)
}

type scriptedUpdater struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	offsets []int64
}

func (s *scriptedUpdater) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]telegram.Update, int64, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		next := offset
		for _, u := range batch {
			next = u.UpdateID + 1
		}
		return batch, next, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, offset, ctx.Err()
}

func TestStartStop(t *testing.T) {
	h := newHarness()
	up := &scriptedUpdater{batches: [][]telegram.Update{{
		{UpdateID: 5, Message: &telegram.Message{Chat: &telegram.Chat{ID: 1}, Text: "/id"}},
		{UpdateID: 6, Message: &telegram.Message{Chat: &telegram.Chat{ID: 2}, Text: "/id"}},
	}}}
	h.bot.updates = up

	h.bot.Start(context.Background())
	require.Eventually(t, func() bool {
		h.transport.mu.Lock()
		replies := len(h.transport.replies)
		h.transport.mu.Unlock()
		up.mu.Lock()
		polls := len(up.offsets)
		up.mu.Unlock()
		return replies == 2 && polls >= 2
	}, time.Second, 10*time.Millisecond)
	h.bot.Stop()

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, int64(0), up.offsets[0])
	assert.Equal(t, int64(7), up.offsets[1])
}
