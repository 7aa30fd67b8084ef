package relay

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/mr-karan/boxrelay/internal/metrics"
	"github.com/mr-karan/boxrelay/internal/render"
	"github.com/mr-karan/boxrelay/pkg/models"
)

// ActionSender forwards approval decisions to the backend.
type ActionSender interface {
	SendAction(ctx context.Context, id models.AlertID, action models.Action) (*models.ActionResult, error)
}

// ConfirmerOptions encapsulates the dependencies of a Confirmer.
type ConfirmerOptions struct {
	Backend    ActionSender
	Transport  Transport
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// Confirmer forwards confirm/reject presses to the backend and escalates
// confirmed alerts. It keeps no state of its own; the backend decides whether
// a transition is legal, so repeated presses are forwarded every time.
type Confirmer struct {
	backend    ActionSender
	transport  Transport
	dispatcher *Dispatcher
	log        *slog.Logger
}

// NewConfirmer constructs a Confirmer.
func NewConfirmer(opts ConfirmerOptions) *Confirmer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher(DispatcherOptions{Logger: opts.Logger})
	}
	return &Confirmer{
		backend:    opts.Backend,
		transport:  opts.Transport,
		dispatcher: opts.Dispatcher,
		log:        opts.Logger.With("component", "confirmer"),
	}
}

// Handle processes one button press. The actor always gets an
// acknowledgment. On backend failure the original message is left untouched
// and nothing is escalated; the backend error is returned.
func (c *Confirmer) Handle(ctx context.Context, ev models.ConfirmationEvent) error {
	log := c.log.With("alert_id", ev.AlertID, "action", ev.Action, "actor_id", ev.Actor.UserID)
	if !ev.Action.Valid() {
		return errors.Newf("unknown action %q", ev.Action)
	}

	res, err := c.backend.SendAction(ctx, ev.AlertID, ev.Action)
	if err != nil {
		log.Error("backend rejected action", "error", err)
		c.acknowledge(ctx, log, ev, render.ActionAck(ev.Action, false))
		return errors.Wrapf(err, "send action %s for alert %d", ev.Action, ev.AlertID)
	}

	c.acknowledge(ctx, log, ev, render.ActionAck(ev.Action, true))
	if ev.Message.MessageID != 0 {
		if err := c.transport.RemoveControls(ctx, ev.Message); err != nil {
			log.Warn("failed to remove controls", "chat_id", ev.Message.ChatID, "message_id", ev.Message.MessageID, "error", err)
		}
	}

	if ev.Action != models.ActionConfirm || res == nil || len(res.ExecutiveUsers) == 0 {
		log.Info("action forwarded")
		return nil
	}

	text := render.Escalation(res.Message)
	outcomes := c.dispatcher.Dispatch(ctx, uniqueRecipients(res.ExecutiveUsers), func(ctx context.Context, to models.RecipientID) error {
		return c.transport.SendText(ctx, to, text, nil)
	})
	for _, o := range outcomes {
		metrics.Delivery(passEscalation, o.Success)
		if !o.Success {
			log.Error("failed to deliver escalation", "recipient_id", o.RecipientID, "failure", o.Failure, "error", o.Detail)
		}
	}
	log.Info("alert escalated", "executives", len(outcomes), "delivered", models.CountSuccesses(outcomes))
	return nil
}

// acknowledge answers the callback, or messages the actor directly when the
// event did not come from a button press.
func (c *Confirmer) acknowledge(ctx context.Context, log *slog.Logger, ev models.ConfirmationEvent, text string) {
	var err error
	if ev.CallbackID != "" {
		err = c.transport.AnswerCallback(ctx, ev.CallbackID, text)
	} else {
		err = c.transport.SendText(ctx, models.RecipientID(ev.Actor.ChatID), text, nil)
	}
	if err != nil {
		log.Warn("failed to acknowledge actor", "error", err)
	}
}
