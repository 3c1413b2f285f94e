package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/sjson"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/moneytrail/spendwise/internal/app"
)

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:   "summary",
		Usage:  "fetch profile, categories, expenses and budgets for a period in one go",
		Flags:  dateRangeFlags(),
		Action: withApp(resumeRequired, summaryAction),
	}
}

// summarySection is one concurrently fetched part of the summary.
type summarySection struct {
	key   string
	fetch func(context.Context) (json.RawMessage, error)
}

func summaryAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	start, end := cmd.String("start-date"), cmd.String("end-date")
	if start == "" || end == "" {
		now := time.Now()
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		start = first.Format(time.DateOnly)
		end = first.AddDate(0, 1, -1).Format(time.DateOnly)
	}

	c := a.API()
	sections := []summarySection{
		{key: "user", fetch: c.Users.Me},
		{key: "categories", fetch: c.Categories.List},
		{key: "expenses", fetch: func(ctx context.Context) (json.RawMessage, error) {
			return c.Expenses.ListByDateRange(ctx, start, end)
		}},
		{key: "budgets", fetch: func(ctx context.Context) (json.RawMessage, error) {
			return c.Budgets.ListByDateRange(ctx, start, end)
		}},
		{key: "budget_total", fetch: func(ctx context.Context) (json.RawMessage, error) {
			return c.Budgets.TotalAmount(ctx, start, end)
		}},
	}

	// A token that expires mid-fetch is refreshed once for all sections
	results := make([]json.RawMessage, len(sections))
	g, gCtx := errgroup.WithContext(ctx)
	for i, s := range sections {
		g.Go(func() error {
			raw, err := s.fetch(gCtx)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", s.key, err)
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, err := sjson.SetBytes([]byte("{}"), "period", map[string]string{"start_date": start, "end_date": end})
	if err != nil {
		return err
	}
	for i, s := range sections {
		raw := results[i]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		if out, err = sjson.SetRawBytes(out, s.key, raw); err != nil {
			return fmt.Errorf("assembling summary: %w", err)
		}
	}
	return printJSON(cmd, out)
}
