package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr-karan/boxrelay/internal/backend"
	"github.com/mr-karan/boxrelay/internal/bot"
	"github.com/mr-karan/boxrelay/internal/config"
	"github.com/mr-karan/boxrelay/internal/media"
	"github.com/mr-karan/boxrelay/internal/relay"
	"github.com/mr-karan/boxrelay/internal/server"
	"github.com/mr-karan/boxrelay/internal/telegram"
	"github.com/mr-karan/boxrelay/pkg/logger"
)

// App represents the core application context, holding dependencies and configuration.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telegram  *telegram.Client
	Backend   *backend.Client
	Relay     *relay.Relay
	Bot       *bot.Bot
	server    *server.Server
	BuildInfo string
	Version   string
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	EnvFile    string
	Debug      bool // forces debug logging regardless of config
	BuildInfo  string
	Version    string
}

// New loads and validates configuration and creates an App.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigPath: opts.ConfigPath, EnvFile: opts.EnvFile})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger.NewWithOptions(logger.Options{
			Debug:  opts.Debug || cfg.Debug(),
			Format: cfg.Logging.Format,
		}),
		BuildInfo: opts.BuildInfo,
		Version:   opts.Version,
	}
	app.Telegram = telegram.New(telegram.Options{
		Token:         cfg.Telegram.Token,
		BaseURL:       cfg.Telegram.APIURL,
		Timeout:       cfg.Telegram.Timeout,
		RatePerSecond: cfg.Telegram.RatePerSecond,
		Burst:         cfg.Telegram.Burst,
		Logger:        app.Logger,
	})
	return app, nil
}

// Initialize wires the relay pipeline, the Telegram poller and the HTTP server.
func (a *App) Initialize(ctx context.Context) error {
	var err error
	a.Backend, err = backend.New(backend.Options{
		BaseURL:         a.Config.Backend.URL,
		Timeout:         a.Config.Backend.Timeout,
		BreakerFailures: a.Config.Backend.BreakerFailures,
		BreakerCooldown: a.Config.Backend.BreakerCooldown,
		Logger:          a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backend client: %w", err)
	}

	transport := relay.NewTelegramTransport(a.Telegram)
	dispatcher := relay.NewDispatcher(relay.DispatcherOptions{
		Concurrency: a.Config.Dispatch.Concurrency,
		SendTimeout: a.Config.Dispatch.SendTimeout,
		Logger:      a.Logger,
	})

	resolver := media.New(media.Options{
		BaseDir:  a.Config.Media.BaseDir,
		Mode:     a.Config.Media.Mode,
		MaxBytes: a.Config.Media.MaxBytes,
		Timeout:  a.Config.Media.DownloadTimeout,
		Logger:   a.Logger,
	})

	a.Relay = relay.New(relay.Options{
		Transport:  transport,
		Media:      resolver,
		Dispatcher: dispatcher,
		Logger:     a.Logger,
	})

	a.Bot = bot.New(bot.Options{
		Updates:   a.Telegram,
		Transport: transport,
		Confirmer: relay.NewConfirmer(relay.ConfirmerOptions{
			Backend:    a.Backend,
			Transport:  transport,
			Dispatcher: dispatcher,
			Logger:     a.Logger,
		}),
		Registrar:   relay.NewRegistrar(a.Backend, transport, a.Logger),
		Stats:       a.Backend,
		PollTimeout: a.Config.Telegram.PollTimeout,
		Logger:      a.Logger,
	})

	a.server = server.New(server.Options{
		Config:  a.Config.Server,
		Relay:   a.Relay,
		Logger:  a.Logger,
		Version: a.Version,
	})

	a.Bot.Start(ctx)
	return nil
}

// Start runs the HTTP server. It blocks until the server stops.
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("server not initialized")
	}
	a.Logger.Info("starting server", "version", a.Version)
	return a.server.Start()
}

// Shutdown gracefully stops all application components with timeouts.
//
//nolint:contextcheck // Shutdown receives its own context from caller (e.g., signal handler)
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	serverCtx, serverCancel := context.WithTimeout(ctx, 5*time.Second)
	defer serverCancel()

	// Stop accepting alerts first so no fan-out starts after the poller is gone.
	if a.server != nil {
		serverDone := make(chan error, 1)
		go func() {
			serverDone <- a.server.Shutdown(serverCtx)
		}()

		select {
		case err := <-serverDone:
			if err != nil {
				a.Logger.Error("error shutting down server", "error", err)
			} else {
				a.Logger.Info("HTTP server shut down successfully")
			}
		case <-serverCtx.Done():
			a.Logger.Warn("timeout shutting down HTTP server, continuing")
		}
	}

	if a.Bot != nil {
		botDone := make(chan struct{})
		go func() {
			a.Bot.Stop()
			close(botDone)
		}()

		select {
		case <-botDone:
			a.Logger.Info("telegram poller stopped")
		case <-ctx.Done():
			a.Logger.Warn("timeout stopping telegram poller, continuing")
		}
	}

	a.Logger.Info("application shutdown complete")
	return nil
}
