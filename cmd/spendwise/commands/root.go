package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/moneytrail/spendwise/internal/app"
	"github.com/moneytrail/spendwise/internal/observability"
)

var errNotLoggedIn = errors.New("not logged in: run spendwise login")

// resume controls whether a command restores the persisted session before running.
type resume int

const (
	resumeNone     resume = iota // command manages authentication itself
	resumeOptional               // try to restore, run either way
	resumeRequired               // fail with errNotLoggedIn when there is no session
)

// actionFunc is a command action that receives a configured App.
type actionFunc func(ctx context.Context, cmd *cli.Command, a *app.App) error

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "spendwise",
		Usage: "Personal finance API client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelWarn.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "where session cookies persist (file|env|keyring|memory)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.StringFlag{
				Name:  "auth--file",
				Usage: "session file for file storage",
			},
			&cli.StringFlag{
				Name:  "field",
				Usage: "print only this gjson path of the response",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			registerCommand(),
			logoutCommand(),
			sessionCommand(),
			categoriesCommand(),
			expensesCommand(),
			budgetsCommand(),
			meCommand(),
			accountCommand(),
			summaryCommand(),
			proxyCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// withApp loads configuration, sets up logging and builds the App before calling fn.
func withApp(mode resume, fn actionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		shutdown, err := observability.Instrument(ctx, observability.Options{
			Level:    cfg.LogLevel,
			Format:   cfg.LogFormat,
			Exporter: cfg.Telemetry.Exporter,
			Endpoint: cfg.Telemetry.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()

		application, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}
		defer application.Close()

		if mode != resumeNone {
			ok, err := application.Bootstrap(ctx)
			if err != nil {
				return err
			}
			if !ok && mode == resumeRequired {
				return errNotLoggedIn
			}
		}

		return fn(ctx, cmd, application)
	}
}
