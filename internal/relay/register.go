package relay

import (
	"context"
	"log/slog"

	"github.com/mr-karan/boxrelay/internal/backend"
	"github.com/mr-karan/boxrelay/internal/render"
	"github.com/mr-karan/boxrelay/pkg/models"
)

// Registrant links Telegram chats to backend users.
type Registrant interface {
	RegisterTelegram(ctx context.Context, chatID int64, token string) (*models.RegistrationResult, error)
}

// Registrar handles deep-link registration.
type Registrar struct {
	backend   Registrant
	transport Transport
	log       *slog.Logger
}

// NewRegistrar constructs a Registrar.
func NewRegistrar(b Registrant, t Transport, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{backend: b, transport: t, log: logger.With("component", "registrar")}
}

// Handle posts the token for the actor's chat and replies with the result.
func (r *Registrar) Handle(ctx context.Context, actor models.Actor, token string) error {
	log := r.log.With("chat_id", actor.ChatID, "actor_id", actor.UserID)

	var reply string
	res, err := r.backend.RegisterTelegram(ctx, actor.ChatID, token)
	switch {
	case err == nil:
		company := ""
		if res != nil {
			company = res.User.CompanyName
		}
		reply = render.RegistrationSuccess(actor.DisplayName, company)
		log.Info("telegram linked", "company", company)
	case backend.IsTransport(err):
		reply = render.ServerUnreachable
		log.Error("registration backend unreachable", "error", err)
	default:
		reply = render.RegistrationFailure(backend.ErrorMessage(err))
		log.Warn("registration refused", "error", err)
	}

	if sendErr := r.transport.SendText(ctx, models.RecipientID(actor.ChatID), reply, nil); sendErr != nil {
		log.Error("failed to send registration reply", "error", sendErr)
		return sendErr
	}
	return err
}
