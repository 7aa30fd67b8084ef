// Package bot runs the Telegram long-polling loop and routes commands and
// button presses to the relay's handlers.
package bot

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mr-karan/boxrelay/internal/relay"
	"github.com/mr-karan/boxrelay/internal/render"
	"github.com/mr-karan/boxrelay/internal/stats"
	"github.com/mr-karan/boxrelay/internal/telegram"
	"github.com/mr-karan/boxrelay/pkg/models"
)

const registerPrefix = "register_"

// Updater fetches updates from Telegram.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
}

// StatsSource fetches alert summaries from the backend.
type StatsSource interface {
	AlertStats(ctx context.Context, query url.Values) (*models.AlertStats, error)
}

// ConfirmHandler handles approval button presses.
type ConfirmHandler interface {
	Handle(ctx context.Context, ev models.ConfirmationEvent) error
}

// RegisterHandler handles registration deep links.
type RegisterHandler interface {
	Handle(ctx context.Context, actor models.Actor, token string) error
}

// Options encapsulates the dependencies required to run the bot.
type Options struct {
	Updates        Updater
	Transport      relay.Transport
	Confirmer      ConfirmHandler
	Registrar      RegisterHandler
	Stats          StatsSource
	PollTimeout    time.Duration
	HandlerTimeout time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Bot polls Telegram and handles each update in its own goroutine.
type Bot struct {
	updates        Updater
	transport      relay.Transport
	confirmer      ConfirmHandler
	registrar      RegisterHandler
	stats          StatsSource
	pollTimeout    time.Duration
	handlerTimeout time.Duration
	log            *slog.Logger
	now            func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Bot.
func New(opts Options) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bot{
		updates:        opts.Updates,
		transport:      opts.Transport,
		confirmer:      opts.Confirmer,
		registrar:      opts.Registrar,
		stats:          opts.Stats,
		pollTimeout:    opts.PollTimeout,
		handlerTimeout: opts.HandlerTimeout,
		log:            opts.Logger.With("component", "bot"),
		now:            opts.Now,
		stop:           make(chan struct{}),
	}
}

// Start launches the polling loop.
func (b *Bot) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.log.Info("starting telegram poller", "poll_timeout", b.pollTimeout)

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		select {
		case <-b.stop:
		case <-ctx.Done():
		}
		cancel()
	}()
	go func() {
		defer b.wg.Done()
		b.poll(ctx)
	}()
}

// Stop ends polling and waits for in-flight updates to finish.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
}

func (b *Bot) poll(ctx context.Context) {
	var offset int64
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			b.log.Info("telegram poller stopping")
			return
		}
		updates, next, err := b.updates.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if telegram.IsPollTimeout(err) {
				continue
			}
			b.log.Error("getUpdates failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second
		offset = next

		for _, u := range updates {
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				// Handlers outlive a cancelled poll so replies are not cut off.
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.handlerTimeout)
				defer cancel()
				b.HandleUpdate(hctx, u)
			}()
		}
	}
}

// HandleUpdate routes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", "update_id", u.UpdateID, "panic", r)
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Chat != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) {
	log := b.log.With("callback_id", cq.ID)
	action, alertID, err := render.ParseCallback(cq.Data)
	if err != nil {
		log.Warn("ignoring unknown callback", "data", cq.Data)
		if err := b.transport.AnswerCallback(ctx, cq.ID, ""); err != nil {
			log.Warn("failed to answer callback", "error", err)
		}
		return
	}

	ev := models.ConfirmationEvent{
		AlertID:    alertID,
		Action:     action,
		Actor:      actorFrom(cq.From, cq.Message),
		CallbackID: cq.ID,
	}
	if cq.Message != nil && cq.Message.Chat != nil {
		ev.Message = models.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
	}
	// Failures are already acknowledged and logged by the confirmer.
	_ = b.confirmer.Handle(ctx, ev)
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) {
	chatID := m.Chat.ID
	cmd, args := parseCommand(m.Text)

	switch cmd {
	case "/start":
		if len(args) > 0 && strings.HasPrefix(args[0], registerPrefix) {
			if token := strings.TrimPrefix(args[0], registerPrefix); token != "" {
				_ = b.registrar.Handle(ctx, actorFrom(m.From, m), token)
				return
			}
		}
		b.reply(ctx, chatID, render.RegistrationHint)
	case "/id":
		b.reply(ctx, chatID, render.ChatID(chatID))
	case "/stats":
		b.reply(ctx, chatID, b.statsReply(ctx, chatID, args))
	default:
		b.reply(ctx, chatID, render.EchoReply)
	}
}

func (b *Bot) statsReply(ctx context.Context, chatID int64, args []string) string {
	q, err := stats.ParseArgs(args, b.now())
	if err != nil {
		return render.StatsUsage
	}
	if b.stats == nil {
		return render.StatsUnavailable
	}
	s, err := b.stats.AlertStats(ctx, q.Values())
	if err != nil {
		b.log.Error("failed to fetch alert stats", "chat_id", chatID, "error", err)
		return render.StatsUnavailable
	}
	if s == nil {
		return render.StatsUnavailable
	}
	return stats.Format(s, q)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.transport.SendText(ctx, models.RecipientID(chatID), text, nil); err != nil {
		b.log.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}

// parseCommand splits "/cmd@bot arg1 arg2". Non-commands return an empty cmd.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd), fields[1:]
}

func actorFrom(u *telegram.User, m *telegram.Message) models.Actor {
	var a models.Actor
	if u != nil {
		a.UserID = u.ID
		a.ChatID = u.ID
		a.DisplayName = telegram.DisplayName(u)
	}
	if m != nil && m.Chat != nil {
		a.ChatID = m.Chat.ID
	}
	return a
}
