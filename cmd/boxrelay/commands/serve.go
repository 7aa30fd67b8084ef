package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mr-karan/boxrelay/internal/app"
)

// serveCommand runs the HTTP intake and the Telegram poller until interrupted.
func (a *App) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the alert relay",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := app.New(app.Options{
				ConfigPath: a.ConfigPath,
				EnvFile:    a.EnvFile,
				Debug:      a.Debug,
				Version:    a.Version,
				BuildInfo:  fmt.Sprintf("%s (%s)", a.Commit, a.Date),
			})
			if err != nil {
				return err
			}

			if err := application.Initialize(ctx); err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					application.Logger.Error("server stopped", "error", err)
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = application.Shutdown(shutdownCtx)
				return err
			case <-ctx.Done():
				application.Logger.Info("received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Shutdown(shutdownCtx)
		},
	}
}
