package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mr-karan/boxrelay/pkg/models"
)

// SendFunc delivers one message to one recipient.
type SendFunc func(ctx context.Context, recipient models.RecipientID) error

// DispatcherOptions bounds a fan-out.
type DispatcherOptions struct {
	Concurrency int
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Dispatcher delivers to many recipients concurrently and reports one outcome
// per recipient. A failing recipient never cancels or delays its siblings.
type Dispatcher struct {
	concurrency int
	timeout     time.Duration
	log         *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		concurrency: opts.Concurrency,
		timeout:     opts.SendTimeout,
		log:         opts.Logger.With("component", "dispatcher"),
	}
}

// Dispatch calls send for every recipient and waits for all of them.
// outcomes[i] always describes recipients[i]. An empty list returns
// immediately without calling send.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []models.RecipientID, send SendFunc) []models.DeliveryOutcome {
	if len(recipients) == 0 {
		return []models.DeliveryOutcome{}
	}

	outcomes := make([]models.DeliveryOutcome, len(recipients))
	// A plain group, not WithContext: one failure must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, id := range recipients {
		g.Go(func() error {
			outcomes[i] = d.attempt(ctx, id, send)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) attempt(ctx context.Context, id models.RecipientID, send SendFunc) (out models.DeliveryOutcome) {
	out.RecipientID = id

	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Failure = models.FailurePanic
			out.Detail = fmt.Sprintf("panic: %v", r)
			d.log.Error("send panicked", "recipient_id", id, "panic", r)
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := send(ctx, id)
	switch {
	case err == nil:
		out.Success = true
	case errors.Is(err, context.DeadlineExceeded):
		out.Failure = models.FailureTimeout
		out.Detail = err.Error()
	default:
		out.Failure = models.FailureDelivery
		out.Detail = err.Error()
	}
	return out
}
