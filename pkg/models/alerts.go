package models

import "time"

// AlertID is the backend's numeric alert identifier.
type AlertID int64

// RecipientID identifies a Telegram chat that receives alerts.
type RecipientID int64

// MediaKind describes how an attached media reference is delivered.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// MediaReference points at an image or video attached to an alert. The URL
// may reference a remote host, a loopback host serving the local media root,
// or be a bare path under that root.
type MediaReference struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// Device is the edge box that raised the alert.
type Device struct {
	ID          int64  `json:"id"`
	ExternalID  string `json:"aibox_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"desc,omitempty"`
}

// Source is the camera or stream the alert was detected on.
type Source struct {
	ID          int64  `json:"id"`
	SourceID    string `json:"source_id"`
	IPv4        string `json:"ipv4"`
	Description string `json:"desc,omitempty"`
}

// Algorithm is the detector that classified the event.
type Algorithm struct {
	ID   int64  `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Company owns the device and the recipients.
type Company struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AlertRecord is a validated alert pushed by the backend. It is treated as
// immutable once received.
type AlertRecord struct {
	ID               AlertID         `json:"id"`
	ExternalAlertID  string          `json:"aibox_alert_id"`
	Timestamp        time.Time       `json:"alert_time"`
	Device           Device          `json:"device"`
	Source           Source          `json:"source"`
	Algorithm        Algorithm       `json:"alg"`
	HazardLevel      string          `json:"hazard_level"`
	Media            *MediaReference `json:"media,omitempty"`
	ExtraData        map[string]any  `json:"reserved_data"`
	Company          Company         `json:"company"`
	RecipientIDs     []RecipientID   `json:"users_telegram_id"`
	RequiresApproval bool            `json:"for_security"`
}

// FailureKind classifies why a single delivery did not succeed.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureDelivery FailureKind = "delivery"
	FailureTimeout  FailureKind = "timeout"
	FailurePanic    FailureKind = "panic"
)

// DeliveryOutcome is the per-recipient result of a fan-out pass.
type DeliveryOutcome struct {
	RecipientID   RecipientID `json:"recipient_id"`
	Success       bool        `json:"success"`
	Failure       FailureKind `json:"failure,omitempty"`
	Detail        string      `json:"detail,omitempty"`
	MediaDegraded bool        `json:"media_degraded,omitempty"`
}

// CountSuccesses returns the number of successful outcomes.
func CountSuccesses(outcomes []DeliveryOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}
