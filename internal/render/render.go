// Package render produces the recipient-facing text and inline controls for
// alerts and for every reply the bot sends. All text is Telegram HTML.
package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mr-karan/boxrelay/pkg/models"
)

// TimeLayout is how alert timestamps are shown to recipients.
const TimeLayout = "2006-01-02 15:04:05"

const unknownDevice = "Неизвестно"

// Callback data prefixes carried by the approval buttons.
const (
	confirmPrefix = "confirm_alert"
	rejectPrefix  = "reject_alert"
)

// Button is a single inline control.
type Button struct {
	Text         string
	CallbackData string
}

// ControlLayout is a grid of inline controls, one slice per row.
type ControlLayout struct {
	Rows [][]Button
}

// Buttons returns the controls in row order.
func (l *ControlLayout) Buttons() []Button {
	if l == nil {
		return nil
	}
	var out []Button
	for _, row := range l.Rows {
		out = append(out, row...)
	}
	return out
}

// Message is rendered alert content.
type Message struct {
	Text     string
	Controls *ControlLayout
}

// Render builds the alert notice. Controls are attached only when the alert
// requires approval. The function is pure.
func Render(alert models.AlertRecord) Message {
	device := strings.TrimSpace(alert.Device.Name)
	if device == "" {
		device = unknownDevice
	}

	var b strings.Builder
	b.WriteString("🚨 <b>Тревога обнаружена!</b>\n\n")
	fmt.Fprintf(&b, "📍 <b>Устройство:</b> %s\n", html.EscapeString(device))
	fmt.Fprintf(&b, "🎥 <b>Камера:</b> %s (%s)\n", html.EscapeString(alert.Source.SourceID), html.EscapeString(alert.Source.IPv4))
	fmt.Fprintf(&b, "⏰ <b>Время:</b> %s\n", alert.Timestamp.Format(TimeLayout))
	fmt.Fprintf(&b, "🤖 <b>Алгоритм:</b> %s\n", html.EscapeString(alert.Algorithm.Name))
	if level := strings.TrimSpace(alert.HazardLevel); level != "" {
		fmt.Fprintf(&b, "⚠️ <b>Уровень опасности:</b> %s\n", html.EscapeString(level))
	}
	fmt.Fprintf(&b, "🆔 <b>ID тревоги:</b> %s\n", html.EscapeString(alert.ExternalAlertID))

	msg := Message{Text: b.String()}
	if alert.RequiresApproval {
		msg.Controls = ApprovalControls(alert.ID)
	}
	return msg
}

// ApprovalControls returns the confirm/reject pair on a single row.
func ApprovalControls(id models.AlertID) *ControlLayout {
	return &ControlLayout{Rows: [][]Button{{
		{Text: "✅ Подтвердить", CallbackData: CallbackData(models.ActionConfirm, id)},
		{Text: "❌ Отклонить", CallbackData: CallbackData(models.ActionReject, id)},
	}}}
}

// CallbackData encodes an action and alert id as button payload.
func CallbackData(action models.Action, id models.AlertID) string {
	prefix := rejectPrefix
	if action == models.ActionConfirm {
		prefix = confirmPrefix
	}
	return prefix + ":" + strconv.FormatInt(int64(id), 10)
}

// ErrUnknownCallback is returned for button payloads this bot did not create.
var ErrUnknownCallback = errors.New("unknown callback data")

// ParseCallback recovers the action and alert id from button payload.
func ParseCallback(data string) (models.Action, models.AlertID, error) {
	prefix, rawID, ok := strings.Cut(strings.TrimSpace(data), ":")
	if !ok {
		return "", 0, errors.Wrapf(ErrUnknownCallback, "%q", data)
	}
	var action models.Action
	switch prefix {
	case confirmPrefix:
		action = models.ActionConfirm
	case rejectPrefix:
		action = models.ActionReject
	default:
		return "", 0, errors.Wrapf(ErrUnknownCallback, "%q", data)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", 0, errors.Wrapf(ErrUnknownCallback, "alert id %q", rawID)
	}
	return action, models.AlertID(id), nil
}

// IsApprovalCallback reports whether data looks like an approval button payload.
func IsApprovalCallback(data string) bool {
	return strings.HasPrefix(data, confirmPrefix+":") || strings.HasPrefix(data, rejectPrefix+":")
}
