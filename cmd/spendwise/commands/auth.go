package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/sjson"
	"github.com/urfave/cli/v3"

	"github.com/moneytrail/spendwise/internal/app"
	"github.com/moneytrail/spendwise/internal/session"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in and persist the session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
		},
		Action: withApp(resumeNone, loginAction),
	}
}

func loginAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	password, err := readSecret("Password: ")
	if err != nil {
		return err
	}
	raw, err := a.Client().Login(ctx, cmd.String("username"), password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return printJSON(cmd, withoutToken(raw))
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "create an account and log in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
			&cli.StringFlag{Name: "email", Required: true},
		},
		Action: withApp(resumeNone, registerAction),
	}
}

func registerAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	password, err := readSecret("Choose a password: ")
	if err != nil {
		return err
	}
	raw, err := a.Client().Register(ctx, cmd.String("username"), cmd.String("email"), password)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return printJSON(cmd, withoutToken(raw))
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "end the session and forget stored cookies",
		Action: withApp(resumeNone, func(ctx context.Context, _ *cli.Command, a *app.App) error {
			return a.Logout(ctx)
		}),
	}
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "inspect the stored session",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "show whether a session can be resumed",
				Action: withApp(resumeOptional, sessionStatusAction),
			},
		},
	}
}

type sessionStatus struct {
	Authenticated bool            `json:"authenticated"`
	Claims        *session.Claims `json:"claims,omitempty"`
	ExpiresIn     string          `json:"expires_in,omitempty"`
}

func sessionStatusAction(_ context.Context, cmd *cli.Command, a *app.App) error {
	var status sessionStatus
	if tok, err := a.Session().Token(); err == nil {
		status.Authenticated = true
		// Not every deployment issues JWTs; claims are informational only
		if claims, err := session.Inspect(tok.AccessToken); err == nil {
			status.Claims = &claims
			if !claims.ExpiresAt.IsZero() {
				status.ExpiresIn = time.Until(claims.ExpiresAt).Round(time.Second).String()
			}
		}
	}

	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return printJSON(cmd, raw)
}

// withoutToken removes the access token from an auth response before printing it.
func withoutToken(raw json.RawMessage) json.RawMessage {
	out, err := sjson.DeleteBytes(raw, "access_token")
	if err != nil {
		return raw
	}
	return out
}
