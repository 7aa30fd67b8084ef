// Package intake validates alert payloads pushed by the backend and turns
// them into models.AlertRecord values.
package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/mr-karan/boxrelay/pkg/models"
)

// ErrMalformedPayload marks a body that is not a JSON object at all.
var ErrMalformedPayload = errors.New("malformed alert payload")

// ValidationError names the first structural problem found in a payload.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid alert: " + e.Reason
	}
	return fmt.Sprintf("invalid alert: %s: %s", e.Field, e.Reason)
}

// timeLayouts are the timestamp encodings the backend has been seen to emit.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

type wireDevice struct {
	ID          *int64  `json:"id" validate:"required"`
	ExternalID  *string `json:"aibox_id" validate:"required"`
	Name        *string `json:"name"`
	Description *string `json:"desc"`
}

type wireSource struct {
	ID          *int64  `json:"id" validate:"required"`
	SourceID    *string `json:"source_id" validate:"required"`
	IPv4        *string `json:"ipv4" validate:"required"`
	Description *string `json:"desc"`
}

type wireAlgorithm struct {
	ID   *int64  `json:"id" validate:"required"`
	Key  *string `json:"key" validate:"required"`
	Name *string `json:"name" validate:"required"`
	Type *string `json:"type"`
}

type wireCompany struct {
	ID          *int64  `json:"id" validate:"required"`
	Name        *string `json:"name" validate:"required"`
	Description *string `json:"description"`
}

type wireAlert struct {
	ID               *int64         `json:"id" validate:"required"`
	ExternalAlertID  *string        `json:"aibox_alert_id" validate:"required"`
	AlertTime        *string        `json:"alert_time" validate:"required"`
	Device           *wireDevice    `json:"device" validate:"required"`
	Source           *wireSource    `json:"source" validate:"required"`
	Algorithm        *wireAlgorithm `json:"alg" validate:"required"`
	HazardLevel      *string        `json:"hazard_level"`
	Image            *string        `json:"image" validate:"omitempty,http_url"`
	Video            *string        `json:"video"`
	ReservedData     map[string]any `json:"reserved_data"`
	Company          *wireCompany   `json:"company" validate:"required"`
	UsersTelegramIDs []int64        `json:"users_telegram_id" validate:"required"`
	ForSecurity      *bool          `json:"for_security" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes and validates an alert payload. Validation is all or nothing:
// either a complete record is returned or an error describing the first
// problem. Syntax errors are marked with ErrMalformedPayload, structural ones
// are returned as *ValidationError.
func Parse(body []byte) (models.AlertRecord, error) {
	var wire wireAlert
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&wire); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return models.AlertRecord{}, &ValidationError{
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type.String(), typeErr.Value),
			}
		}
		return models.AlertRecord{}, errors.Mark(errors.Wrap(err, "decode alert"), ErrMalformedPayload)
	}

	if err := validate.Struct(&wire); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return models.AlertRecord{}, fieldError(fieldErrs[0])
		}
		return models.AlertRecord{}, &ValidationError{Reason: err.Error()}
	}

	ts, err := parseTime(*wire.AlertTime)
	if err != nil {
		return models.AlertRecord{}, &ValidationError{Field: "alert_time", Reason: err.Error()}
	}

	media, err := mediaReference(wire.Image, wire.Video)
	if err != nil {
		return models.AlertRecord{}, err
	}

	recipients := make([]models.RecipientID, 0, len(wire.UsersTelegramIDs))
	for _, id := range wire.UsersTelegramIDs {
		recipients = append(recipients, models.RecipientID(id))
	}
	extra := wire.ReservedData
	if extra == nil {
		extra = map[string]any{}
	}

	return models.AlertRecord{
		ID:              models.AlertID(*wire.ID),
		ExternalAlertID: *wire.ExternalAlertID,
		Timestamp:       ts,
		Device: models.Device{
			ID:          *wire.Device.ID,
			ExternalID:  *wire.Device.ExternalID,
			Name:        deref(wire.Device.Name),
			Description: deref(wire.Device.Description),
		},
		Source: models.Source{
			ID:          *wire.Source.ID,
			SourceID:    *wire.Source.SourceID,
			IPv4:        *wire.Source.IPv4,
			Description: deref(wire.Source.Description),
		},
		Algorithm: models.Algorithm{
			ID:   *wire.Algorithm.ID,
			Key:  *wire.Algorithm.Key,
			Name: *wire.Algorithm.Name,
			Type: deref(wire.Algorithm.Type),
		},
		HazardLevel: deref(wire.HazardLevel),
		Media:       media,
		ExtraData:   extra,
		Company: models.Company{
			ID:          *wire.Company.ID,
			Name:        *wire.Company.Name,
			Description: deref(wire.Company.Description),
		},
		RecipientIDs:     recipients,
		RequiresApproval: *wire.ForSecurity,
	}, nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	// Namespace is "wireAlert.device.id"; drop the struct name.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	reason := "invalid value"
	switch fe.Tag() {
	case "required":
		reason = "field required"
	case "http_url":
		reason = "must be an absolute http(s) URL"
	}
	return &ValidationError{Field: field, Reason: reason}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime format: %q", s)
}

// mediaReference picks the image over the video when both are present.
func mediaReference(image, video *string) (*models.MediaReference, error) {
	if img := strings.TrimSpace(deref(image)); img != "" {
		return &models.MediaReference{URL: img, Kind: models.MediaPhoto}, nil
	}
	vid := strings.TrimSpace(deref(video))
	if vid == "" {
		return nil, nil
	}
	u, err := url.Parse(vid)
	switch {
	case err != nil:
		return nil, &ValidationError{Field: "video", Reason: "must be an http(s) URL or a path under the media directory"}
	case u.Scheme == "" && u.Host == "":
		// A bare path such as "recordings/1.mp4", resolved under the media directory.
		return &models.MediaReference{URL: vid, Kind: models.MediaVideo}, nil
	case u.Host == "" || (u.Scheme != "http" && u.Scheme != "https"):
		return nil, &ValidationError{Field: "video", Reason: "must be an http(s) URL or a path under the media directory"}
	}
	return &models.MediaReference{URL: vid, Kind: models.MediaVideo}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
