package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/moneytrail/spendwise/internal/api"
	"github.com/moneytrail/spendwise/internal/app"
)

// fetch adapts a call returning JSON into an authenticated command action.
func fetch(call func(ctx context.Context, cmd *cli.Command, c *api.Client) (json.RawMessage, error)) cli.ActionFunc {
	return withApp(resumeRequired, func(ctx context.Context, cmd *cli.Command, a *app.App) error {
		raw, err := call(ctx, cmd, a.API())
		if err != nil {
			return err
		}
		return printJSON(cmd, raw)
	})
}

// byID adapts a call taking the positional id argument.
func byID(call func(ctx context.Context, c *api.Client, id string) (json.RawMessage, error)) cli.ActionFunc {
	return fetch(func(ctx context.Context, cmd *cli.Command, c *api.Client) (json.RawMessage, error) {
		id, err := requireArg(cmd, "id")
		if err != nil {
			return nil, err
		}
		return call(ctx, c, id)
	})
}

// withPayload adapts a call taking the body built from --data and --set.
func withPayload(call func(ctx context.Context, c *api.Client, body json.RawMessage) (json.RawMessage, error)) cli.ActionFunc {
	return fetch(func(ctx context.Context, cmd *cli.Command, c *api.Client) (json.RawMessage, error) {
		body, err := buildPayload(cmd)
		if err != nil {
			return nil, err
		}
		return call(ctx, c, body)
	})
}

func deleteByID(call func(ctx context.Context, c *api.Client, id string) error) cli.ActionFunc {
	return byID(func(ctx context.Context, c *api.Client, id string) (json.RawMessage, error) {
		return nil, call(ctx, c, id)
	})
}

func dateRangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start-date", Usage: "range start (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "end-date", Usage: "range end (YYYY-MM-DD)"},
	}
}

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "manage expense categories",
		Commands: []*cli.Command{
			{
				Name: "list",
				Action: fetch(func(ctx context.Context, _ *cli.Command, c *api.Client) (json.RawMessage, error) {
					return c.Categories.List(ctx)
				}),
			},
			{
				Name:      "get",
				ArgsUsage: "<id>",
				Action: byID(func(ctx context.Context, c *api.Client, id string) (json.RawMessage, error) {
					return c.Categories.Get(ctx, id)
				}),
			},
			{
				Name:  "create",
				Flags: payloadFlags(),
				Action: withPayload(func(ctx context.Context, c *api.Client, body json.RawMessage) (json.RawMessage, error) {
					return c.Categories.Create(ctx, body)
				}),
			},
			{
				Name:  "update",
				Usage: "update a category; the body must carry its id",
				Flags: payloadFlags(),
				Action: withPayload(func(ctx context.Context, c *api.Client, body json.RawMessage) (json.RawMessage, error) {
					return c.Categories.Update(ctx, body)
				}),
			},
			{
				Name:      "delete",
				ArgsUsage: "<id>",
				Action: deleteByID(func(ctx context.Context, c *api.Client, id string) error {
					return c.Categories.Delete(ctx, id)
				}),
			},
		},
	}
}

func expensesCommand() *cli.Command {
	return &cli.Command{
		Name:  "expenses",
		Usage: "manage expenses",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list expenses, narrowed by a complete date range or else a category",
				Flags: append(dateRangeFlags(), &cli.StringFlag{Name: "category", Usage: "category id"}),
				Action: fetch(func(ctx context.Context, cmd *cli.Command, c *api.Client) (json.RawMessage, error) {
					return c.Expenses.ListWithFilters(ctx, api.ExpenseFilters{
						StartDate:  cmd.String("start-date"),
						EndDate:    cmd.String("end-date"),
						CategoryID: cmd.String("category"),
					})
				}),
			},
			{
				Name:      "get",
				ArgsUsage: "<id>",
				Action: byID(func(ctx context.Context, c *api.Client, id string) (json.RawMessage, error) {
					return c.Expenses.Get(ctx, id)
				}),
			},
			{
				Name:  "create",
				Flags: payloadFlags(),
				Action: withPayload(func(ctx context.Context, c *api.Client, body json.RawMessage) (json.RawMessage, error) {
					return c.Expenses.Create(ctx, body)
				}),
			},
			{
				Name:  "update",
				Usage: "update an expense; the body must carry its id",
				Flags: payloadFlags(),
				Action: withPayload(func(ctx context.Context, c *api.Client, body json.RawMessage) (json.RawMessage, error) {
					return c.Expenses.Update(ctx, body)
				}),
			},
			{
				Name:      "delete",
				ArgsUsage: "<id>",
				Action: deleteByID(func(ctx context.Context, c *api.Client, id string) error {
					return c.Expenses.Delete(ctx, id)
				}),
			},
		},
	}
}

func budgetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "budgets",
		Usage: "manage budgets",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list budgets; the first applicable filter wins (date range, category, period, current date)",
				Flags: append(dateRangeFlags(),
					&cli.StringFlag{Name: "category", Usage: "category id"},
					&cli.StringFlag{Name: "period", Usage: "WEEKLY, MONTHLY or YEARLY"},
					&cli.StringFlag{Name: "current-date", Usage: "only budgets active on this date"},
				),
				Action: fetch(func(ctx context.Context, cmd *cli.Command, c *api.Client) (json.RawMessage, error) {
					f := api.BudgetFilters{
						StartDate:   cmd.String("start-date"),
						EndDate:     cmd.String("end-date"),
						CategoryID:  cmd.String("category"),
						CurrentDate: cmd.String("current-date"),
					}
					if p := cmd.String("period"); p != "" {
						period, err := api.ParseBudgetPeriod(p)
						if err != nil {
							return nil, err
						}
						f.Period = period
					}
					return c.Budgets.ListWithFilters(ctx, f)
				}),
			},
			{
				Name:      "get",
				ArgsUsage: "<id>",
				Action: byID(func(ctx context.Context, c *api.Client, id string) (json.RawMessage, error) {
					return c.Budgets.Get(ctx, id)
				}),
			},
			{
				Name:  "total",
				Usage: "sum of budget amounts in a date range",
				Flags: requiredRange(),
				Action: fetch(func(ctx context.Context, cmd *cli.Command, c *api.Client) (json.RawMessage, error) {
					return c.Budgets.TotalAmount(ctx, cmd.String("start-date"), cmd.String("end-date"))
				}),
			},
			{
				Name:  "create",
				Flags: payloadFlags(),
				Action: withPayload(func(ctx context.Context, c *api.Client, body json.RawMessage) (json.RawMessage, error) {
					return c.Budgets.Create(ctx, body)
				}),
			},
			{
				Name:  "update",
				Usage: "update a budget; the body must carry its id",
				Flags: payloadFlags(),
				Action: withPayload(func(ctx context.Context, c *api.Client, body json.RawMessage) (json.RawMessage, error) {
					return c.Budgets.Update(ctx, body)
				}),
			},
			{
				Name:      "delete",
				ArgsUsage: "<id>",
				Action: deleteByID(func(ctx context.Context, c *api.Client, id string) error {
					return c.Budgets.Delete(ctx, id)
				}),
			},
		},
	}
}

func requiredRange() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start-date", Required: true},
		&cli.StringFlag{Name: "end-date", Required: true},
	}
}

func meCommand() *cli.Command {
	return &cli.Command{
		Name:  "me",
		Usage: "show or manage the current user",
		Action: fetch(func(ctx context.Context, _ *cli.Command, c *api.Client) (json.RawMessage, error) {
			return c.Users.Me(ctx)
		}),
		Commands: []*cli.Command{
			{
				Name:  "update",
				Flags: payloadFlags(),
				Action: withPayload(func(ctx context.Context, c *api.Client, body json.RawMessage) (json.RawMessage, error) {
					return c.Users.Update(ctx, body)
				}),
			},
			{
				Name:      "avatar",
				Usage:     "upload an image file as avatar",
				ArgsUsage: "<file>",
				Action:    fetch(uploadAvatar),
			},
			{
				Name: "remove-avatar",
				Action: fetch(func(ctx context.Context, _ *cli.Command, c *api.Client) (json.RawMessage, error) {
					return nil, c.Users.DeleteAvatar(ctx)
				}),
			},
			{
				Name:  "delete-account",
				Usage: "permanently delete the current user",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "yes", Usage: "confirm deletion"}},
				Action: withApp(resumeRequired, func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					if !cmd.Bool("yes") {
						return fmt.Errorf("refusing to delete the account without --yes")
					}
					if err := a.API().Users.Delete(ctx); err != nil {
						return err
					}
					return a.Logout(ctx)
				}),
			},
		},
	}
}

func uploadAvatar(ctx context.Context, cmd *cli.Command, c *api.Client) (json.RawMessage, error) {
	path, err := requireArg(cmd, "file")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		head := make([]byte, 512)
		n, _ := f.Read(head)
		contentType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}

	publicURL, err := c.Users.UploadAvatar(ctx, f, contentType)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"public_url": publicURL})
}

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "email verification and password reset",
		Commands: []*cli.Command{
			{
				Name:  "request-verification",
				Usage: "email a verification link to the current user",
				Action: fetch(func(ctx context.Context, _ *cli.Command, c *api.Client) (json.RawMessage, error) {
					return c.Account.RequestEmailVerification(ctx)
				}),
			},
			{
				Name:      "verify",
				ArgsUsage: "<email-token>",
				Action: withApp(resumeNone, func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					token, err := requireArg(cmd, "email-token")
					if err != nil {
						return err
					}
					raw, err := a.API().Account.VerifyEmail(ctx, token)
					if err != nil {
						return err
					}
					return printJSON(cmd, raw)
				}),
			},
			{
				Name:      "request-reset",
				ArgsUsage: "<email>",
				Action: withApp(resumeNone, func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					email, err := requireArg(cmd, "email")
					if err != nil {
						return err
					}
					raw, err := a.API().Account.RequestPasswordReset(ctx, email)
					if err != nil {
						return err
					}
					return printJSON(cmd, raw)
				}),
			},
			{
				Name:      "reset",
				ArgsUsage: "<password-token>",
				Action: withApp(resumeNone, func(ctx context.Context, cmd *cli.Command, a *app.App) error {
					token, err := requireArg(cmd, "password-token")
					if err != nil {
						return err
					}
					password, err := readSecret("New password: ")
					if err != nil {
						return err
					}
					raw, err := a.API().Account.ResetPassword(ctx, token, password)
					if err != nil {
						return err
					}
					return printJSON(cmd, raw)
				}),
			},
		},
	}
}
