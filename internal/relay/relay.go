// Package relay moves alerts from the backend to recipients and moves their
// decisions back: alert fan-out, confirmation forwarding with escalation, and
// registration linking.
package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/mr-karan/boxrelay/internal/media"
	"github.com/mr-karan/boxrelay/internal/metrics"
	"github.com/mr-karan/boxrelay/internal/render"
	"github.com/mr-karan/boxrelay/pkg/models"
)

// Delivery passes, used as a metrics label.
const (
	passAlert      = "alert"
	passEscalation = "escalation"
)

// MediaResolver turns a media reference into something the transport can send.
type MediaResolver interface {
	Resolve(ctx context.Context, ref *models.MediaReference) (*media.Handle, error)
}

// Options encapsulates the dependencies of a Relay.
type Options struct {
	Transport  Transport
	Media      MediaResolver
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// Relay delivers validated alerts to their recipients.
type Relay struct {
	transport  Transport
	media      MediaResolver
	dispatcher *Dispatcher
	log        *slog.Logger
}

// New constructs a Relay.
func New(opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher(DispatcherOptions{Logger: opts.Logger})
	}
	return &Relay{
		transport:  opts.Transport,
		media:      opts.Media,
		dispatcher: opts.Dispatcher,
		log:        opts.Logger.With("component", "relay"),
	}
}

// Deliver renders the alert, resolves its media once and fans it out to every
// distinct recipient. Media problems degrade the message to text, including
// media the transport refuses for a single recipient; they never abort the
// fan-out. Outcomes follow the order of first appearance in
// alert.RecipientIDs.
func (r *Relay) Deliver(ctx context.Context, alert models.AlertRecord) []models.DeliveryOutcome {
	log := r.log.With("alert_id", alert.ID, "external_alert_id", alert.ExternalAlertID)
	msg := render.Render(alert)

	handle, degraded, notice := r.resolveMedia(ctx, log, alert.Media)
	text := msg.Text
	if notice {
		text += render.MediaUnavailableNotice
	}

	recipients := uniqueRecipients(alert.RecipientIDs)
	var (
		mu       sync.Mutex
		fellBack = make(map[models.RecipientID]bool)
	)
	outcomes := r.dispatcher.Dispatch(ctx, recipients, func(ctx context.Context, to models.RecipientID) error {
		if handle == nil {
			return r.transport.SendText(ctx, to, text, msg.Controls)
		}
		err := r.transport.SendMedia(ctx, to, handle, text, msg.Controls)
		if err == nil || !errors.Is(err, media.ErrMediaFetch) {
			return err
		}
		// The platform could not take the media; the alert still goes out as text.
		log.Warn("media rejected by transport, sending text only", "recipient_id", to, "error", err)
		metrics.MediaDegraded("rejected")
		mu.Lock()
		fellBack[to] = true
		mu.Unlock()
		return r.transport.SendText(ctx, to, msg.Text+render.MediaUnavailableNotice, msg.Controls)
	})

	for i := range outcomes {
		outcomes[i].MediaDegraded = degraded || fellBack[outcomes[i].RecipientID]
		metrics.Delivery(passAlert, outcomes[i].Success)
		if !outcomes[i].Success {
			log.Error("failed to deliver alert",
				"recipient_id", outcomes[i].RecipientID,
				"failure", outcomes[i].Failure,
				"error", outcomes[i].Detail)
		}
	}
	log.Info("alert dispatched",
		"recipients", len(recipients),
		"delivered", models.CountSuccesses(outcomes),
		"media_degraded", degraded,
		"media_fallbacks", len(fellBack))
	return outcomes
}

// resolveMedia reports whether the alert lost its media and whether recipients
// should be told about it. A missing local file is dropped silently; a failed
// remote fetch gets a notice.
func (r *Relay) resolveMedia(ctx context.Context, log *slog.Logger, ref *models.MediaReference) (h *media.Handle, degraded, notice bool) {
	if ref == nil || r.media == nil {
		return nil, false, false
	}
	h, err := r.media.Resolve(ctx, ref)
	if err == nil {
		return h, false, false
	}
	if errors.Is(err, media.ErrMediaNotFound) {
		log.Warn("media file not found, sending text only", "url", ref.URL, "error", err)
		metrics.MediaDegraded("not_found")
		return nil, true, false
	}
	log.Warn("media unavailable, sending text only", "url", ref.URL, "error", err)
	metrics.MediaDegraded("fetch")
	return nil, true, true
}

func uniqueRecipients(ids []models.RecipientID) []models.RecipientID {
	seen := make(map[models.RecipientID]struct{}, len(ids))
	out := make([]models.RecipientID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
