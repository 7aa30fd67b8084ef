package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/mr-karan/boxrelay/pkg/models"
)

// Static replies.
const (
	MediaUnavailableNotice = "\n\n⚠️ <i>Медиафайл недоступен</i>"
	RegistrationHint       = "Привет! Используйте специальную ссылку для регистрации."
	EchoReply              = "Бот работает!"
	ServerUnreachable      = "❌ Не удалось связаться с сервером. Попробуйте позже."
	StatsUnavailable       = "❌ Не удалось получить статистику. Попробуйте позже."
	StatsUsage             = "Использование: /stats [day|week|month|year|7d|ГГГГ-ММ-ДД ГГГГ-ММ-ДД]"

	unknownCompany   = "Неизвестная компания"
	genericTryLater  = "Попробуйте позже."
	escalationHeader = "⚠️ <b>Подтвержденная тревога!</b>\n\n"
)

// ActionAck is the short notice shown to the actor who pressed a button.
func ActionAck(action models.Action, ok bool) string {
	switch {
	case action == models.ActionConfirm && ok:
		return "✅ Тревога подтверждена!"
	case action == models.ActionConfirm:
		return "❌ Ошибка подтверждения тревоги!"
	case ok:
		return "🚫 Тревога отклонена!"
	default:
		return "❌ Ошибка отклонения тревоги!"
	}
}

// Escalation is the notice delivered to executives once an alert is confirmed.
// The backend message is Telegram HTML and is passed through unchanged.
func Escalation(message string) string {
	return escalationHeader + message
}

// RegistrationSuccess greets a freshly linked user.
func RegistrationSuccess(displayName, company string) string {
	if strings.TrimSpace(company) == "" {
		company = unknownCompany
	}
	return fmt.Sprintf("✅ <b>%s</b>, ваш Telegram успешно привязан!\n🏢 <b>Компания:</b> %s",
		html.EscapeString(displayName), html.EscapeString(company))
}

// RegistrationFailure surfaces the backend's reason, or a generic retry notice.
func RegistrationFailure(reason string) string {
	if strings.TrimSpace(reason) == "" {
		reason = genericTryLater
	}
	return "❌ Ошибка: " + html.EscapeString(reason)
}

// ChatID answers the /id command.
func ChatID(id int64) string {
	return fmt.Sprintf("Ваш chat_id: <code>%d</code>", id)
}
