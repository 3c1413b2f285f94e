package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/moneytrail/spendwise/internal/app"
)

func proxyCommand() *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "local gateway sharing the CLI session",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "serve the API locally with the session's credentials attached",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "server--host",
						Usage: "listen host",
						Value: app.DefaultConfigServerHost,
					},
					&cli.IntFlag{
						Name:  "server--port",
						Usage: "listen port",
						Value: app.DefaultConfigServerPort,
					},
					&cli.StringFlag{
						Name:  "server--prefix",
						Usage: "local path prefix mapped onto the API base URL",
						Value: app.DefaultConfigServerPrefix,
					},
					&cli.DurationFlag{
						Name:  "auth--refresh-timeout",
						Usage: "upper bound for a token refresh",
						Value: app.DefaultConfigRefreshTimeout,
					},
				},
				Action: withApp(resumeOptional, proxyStartAction),
			},
		},
	}
}

func proxyStartAction(ctx context.Context, _ *cli.Command, a *app.App) error {
	if _, ok := a.Session().AccessToken(); !ok {
		slog.WarnContext(ctx, "starting without a session; requests fail with 401 until spendwise login")
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("gateway failed: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
