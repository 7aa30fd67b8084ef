package relay

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/mr-karan/boxrelay/internal/media"
	"github.com/mr-karan/boxrelay/internal/render"
	"github.com/mr-karan/boxrelay/internal/telegram"
	"github.com/mr-karan/boxrelay/pkg/models"
)

// Transport is the messaging platform as the relay sees it.
type Transport interface {
	SendText(ctx context.Context, to models.RecipientID, text string, controls *render.ControlLayout) error
	// SendMedia marks errors with media.ErrMediaFetch when the platform
	// refused the media itself rather than the recipient.
	SendMedia(ctx context.Context, to models.RecipientID, m *media.Handle, caption string, controls *render.ControlLayout) error
	// RemoveControls strips inline controls from a delivered message.
	// Removing them twice is not an error.
	RemoveControls(ctx context.Context, msg models.MessageRef) error
	// AnswerCallback acknowledges a button press to the actor.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// TelegramTransport sends through the Bot API.
type TelegramTransport struct {
	client *telegram.Client
}

// NewTelegramTransport wraps a Bot API client.
func NewTelegramTransport(c *telegram.Client) *TelegramTransport {
	return &TelegramTransport{client: c}
}

func (t *TelegramTransport) SendText(ctx context.Context, to models.RecipientID, text string, controls *render.ControlLayout) error {
	_, err := t.client.SendMessage(ctx, int64(to), text, keyboard(controls))
	return err
}

func (t *TelegramTransport) SendMedia(ctx context.Context, to models.RecipientID, m *media.Handle, caption string, controls *render.ControlLayout) error {
	file := telegram.InputFile{URL: m.URL, Path: m.Path, Data: m.Data, Filename: m.Filename}
	var err error
	if m.Kind == models.MediaVideo {
		_, err = t.client.SendVideo(ctx, int64(to), file, caption, keyboard(controls))
	} else {
		_, err = t.client.SendPhoto(ctx, int64(to), file, caption, keyboard(controls))
	}
	if telegram.IsMediaRejected(err) {
		return errors.Mark(err, media.ErrMediaFetch)
	}
	return err
}

func (t *TelegramTransport) RemoveControls(ctx context.Context, msg models.MessageRef) error {
	err := t.client.EditMessageReplyMarkup(ctx, msg.ChatID, msg.MessageID, nil)
	if telegram.IsNotModified(err) {
		return nil
	}
	return err
}

func (t *TelegramTransport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return t.client.AnswerCallbackQuery(ctx, callbackID, text, true)
}

func keyboard(l *render.ControlLayout) *telegram.InlineKeyboardMarkup {
	if l == nil {
		return nil
	}
	rows := make([][]telegram.InlineKeyboardButton, 0, len(l.Rows))
	for _, row := range l.Rows {
		buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegram.InlineKeyboardButton{Text: b.Text, CallbackData: b.CallbackData})
		}
		rows = append(rows, buttons)
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}
