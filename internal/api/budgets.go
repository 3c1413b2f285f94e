package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// BudgetPeriod is the recurrence of a budget.
type BudgetPeriod string

const (
	BudgetPeriodWeekly  BudgetPeriod = "WEEKLY"
	BudgetPeriodMonthly BudgetPeriod = "MONTHLY"
	BudgetPeriodYearly  BudgetPeriod = "YEARLY"
)

// ParseBudgetPeriod accepts a period name in any case.
func ParseBudgetPeriod(s string) (BudgetPeriod, error) {
	switch p := BudgetPeriod(strings.ToUpper(strings.TrimSpace(s))); p {
	case BudgetPeriodWeekly, BudgetPeriodMonthly, BudgetPeriodYearly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown budget period %q (want WEEKLY, MONTHLY or YEARLY)", s)
	}
}

// BudgetFilters selects which budgets ListWithFilters returns. The first applicable
// filter wins, in field order; a date range needs both ends.
type BudgetFilters struct {
	StartDate   string
	EndDate     string
	CategoryID  string
	Period      BudgetPeriod
	CurrentDate string
}

// BudgetService manages budgets.
type BudgetService struct {
	d Doer
}

func (s *BudgetService) Get(ctx context.Context, id string) (json.RawMessage, error) {
	return get(ctx, s.d, "/budgets/get/"+url.PathEscape(id), nil)
}

func (s *BudgetService) List(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, s.d, "/budgets/get-by-user", nil)
}

func (s *BudgetService) ListByDateRange(ctx context.Context, start, end string) (json.RawMessage, error) {
	return get(ctx, s.d, "/budgets/get-by-user-date-range", dateRange(start, end))
}

func (s *BudgetService) ListByCategory(ctx context.Context, categoryID string) (json.RawMessage, error) {
	return get(ctx, s.d, "/budgets/get-by-user-category/"+url.PathEscape(categoryID), nil)
}

// ListActive returns budgets whose period covers currentDate.
func (s *BudgetService) ListActive(ctx context.Context, currentDate string) (json.RawMessage, error) {
	return get(ctx, s.d, "/budgets/get-active-by-user", url.Values{"current_date": {currentDate}})
}

func (s *BudgetService) ListByPeriod(ctx context.Context, period BudgetPeriod) (json.RawMessage, error) {
	if _, err := ParseBudgetPeriod(string(period)); err != nil {
		return nil, err
	}
	return get(ctx, s.d, "/budgets/get-by-user-period/"+string(period), nil)
}

func (s *BudgetService) ListWithFilters(ctx context.Context, f BudgetFilters) (json.RawMessage, error) {
	switch {
	case f.StartDate != "" && f.EndDate != "":
		return s.ListByDateRange(ctx, f.StartDate, f.EndDate)
	case f.CategoryID != "":
		return s.ListByCategory(ctx, f.CategoryID)
	case f.Period != "":
		return s.ListByPeriod(ctx, f.Period)
	case f.CurrentDate != "":
		return s.ListActive(ctx, f.CurrentDate)
	default:
		return s.List(ctx)
	}
}

func (s *BudgetService) Create(ctx context.Context, budget json.RawMessage) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPost, "/budgets/create", nil, budget)
}

func (s *BudgetService) Update(ctx context.Context, update json.RawMessage) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPut, "/budgets/update", nil, update)
}

func (s *BudgetService) Delete(ctx context.Context, id string) error {
	return del(ctx, s.d, "/budgets/delete/"+url.PathEscape(id))
}

// TotalAmount returns the summed budget amount over a date range.
func (s *BudgetService) TotalAmount(ctx context.Context, start, end string) (json.RawMessage, error) {
	return get(ctx, s.d, "/budgets/total-amount", dateRange(start, end))
}
