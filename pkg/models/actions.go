package models

import "time"

// Action is a user decision on an alert awaiting approval.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionReject  Action = "reject"
)

// Valid reports whether the action is one the backend understands.
func (a Action) Valid() bool {
	return a == ActionConfirm || a == ActionReject
}

// Actor is the Telegram user who triggered an interaction.
type Actor struct {
	ChatID      int64
	UserID      int64
	DisplayName string
}

// MessageRef locates a previously delivered Telegram message.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// ConfirmationEvent is created from an inbound button press and consumed
// immediately. It is never stored.
type ConfirmationEvent struct {
	AlertID    AlertID
	Action     Action
	Actor      Actor
	Message    MessageRef
	CallbackID string
}

// ActionResult is the backend's verdict on a send-action request.
type ActionResult struct {
	ExecutiveUsers []RecipientID `json:"executive_users"`
	Message        string        `json:"message"`
}

// RegistrationResult is returned when a Telegram chat is linked to a user.
type RegistrationResult struct {
	User struct {
		CompanyName string `json:"company_name"`
	} `json:"user"`
}

// AlertStats is the backend's alert summary for a period.
type AlertStats struct {
	Period      string           `json:"period,omitempty"`
	StartDate   string           `json:"start_date,omitempty"`
	EndDate     string           `json:"end_date,omitempty"`
	Total       int64            `json:"total_alerts"`
	ByStatus    map[string]int64 `json:"by_status,omitempty"`
	ByAlgorithm map[string]int64 `json:"by_algorithm,omitempty"`
	ByDevice    map[string]int64 `json:"by_device,omitempty"`
	GeneratedAt *time.Time       `json:"generated_at,omitempty"`
}
