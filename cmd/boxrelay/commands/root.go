// Package commands provides the CLI command definitions for boxrelay.
package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Styles for CLI output
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// App holds the shared application state
type App struct {
	ConfigPath string
	EnvFile    string
	Debug      bool
	Version    string
	Commit     string
	Date       string
}

// New creates the root CLI command with all subcommands
func New(version, commit, date string) *cli.Command {
	app := &App{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	return &cli.Command{
		Name:    "boxrelay",
		Usage:   "Relay AI-box alerts to Telegram and approvals back to the backend",
		Version: version,
		Description: `boxrelay accepts alerts pushed by the backend on POST /alerts/,
   delivers them to the listed Telegram chats and forwards confirm/reject
   decisions back to the backend.

   Configuration comes from a TOML file, a .env file and BOXRELAY_* variables.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Sources: cli.EnvVars("BOXRELAY_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "path to .env file",
				Value:   ".env",
				Sources: cli.EnvVars("BOXRELAY_ENV_FILE"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			app.ConfigPath = cmd.String("config")
			app.EnvFile = cmd.String("env-file")
			app.Debug = cmd.Bool("debug")
			if app.Debug {
				log.SetLevel(log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			app.serveCommand(),
			app.checkCommand(),
			app.versionCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
	}
}

// versionCommand shows version information
func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("%s version %s\n", logoStyle.Render("boxrelay"), a.Version)
			fmt.Printf("  commit: %s\n", mutedStyle.Render(a.Commit))
			fmt.Printf("  built:  %s\n", mutedStyle.Render(a.Date))
			return nil
		},
	}
}
