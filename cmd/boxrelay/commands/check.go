package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mr-karan/boxrelay/internal/config"
	"github.com/mr-karan/boxrelay/internal/telegram"
)

// checkCommand validates configuration and verifies the bot token.
func (a *App) checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "validate configuration and verify the Telegram token",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "skip the Telegram getMe call",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(config.LoadOptions{ConfigPath: a.ConfigPath, EnvFile: a.EnvFile})
			if err != nil {
				fmt.Println(errorStyle.Render("✗ failed to load config"))
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Println(errorStyle.Render("✗ invalid config"))
				return err
			}
			fmt.Println(successStyle.Render("✓ config is valid"))
			fmt.Printf("  listen:  %s\n", mutedStyle.Render(cfg.Server.Address))
			fmt.Printf("  backend: %s\n", mutedStyle.Render(cfg.Backend.URL))
			fmt.Printf("  media:   %s\n", mutedStyle.Render(fmt.Sprintf("%s (%s)", cfg.Media.Mode, cfg.Media.BaseDir)))

			if cmd.Bool("offline") {
				return nil
			}

			client := telegram.New(telegram.Options{
				Token:   cfg.Telegram.Token,
				BaseURL: cfg.Telegram.APIURL,
				Timeout: cfg.Telegram.Timeout,
			})
			me, err := client.GetMe(ctx)
			if err != nil {
				fmt.Println(errorStyle.Render("✗ telegram token rejected"))
				return err
			}
			fmt.Printf("%s @%s\n", successStyle.Render("✓ telegram bot"), me.Username)
			return nil
		},
	}
}
