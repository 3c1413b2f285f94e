package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// ExpenseFilters selects which expenses ListWithFilters returns.
// A complete date range wins over a category; with neither, all expenses are listed.
type ExpenseFilters struct {
	StartDate  string
	EndDate    string
	CategoryID string
}

// ExpenseService manages expenses.
type ExpenseService struct {
	d Doer
}

func (s *ExpenseService) Get(ctx context.Context, id string) (json.RawMessage, error) {
	return get(ctx, s.d, "/expenses/get/"+url.PathEscape(id), nil)
}

func (s *ExpenseService) List(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, s.d, "/expenses/get-by-user", nil)
}

func (s *ExpenseService) ListByDateRange(ctx context.Context, start, end string) (json.RawMessage, error) {
	return get(ctx, s.d, "/expenses/get-by-date-range", dateRange(start, end))
}

func (s *ExpenseService) ListByCategory(ctx context.Context, categoryID string) (json.RawMessage, error) {
	return get(ctx, s.d, "/expenses/get-by-category/"+url.PathEscape(categoryID), nil)
}

func (s *ExpenseService) ListWithFilters(ctx context.Context, f ExpenseFilters) (json.RawMessage, error) {
	switch {
	case f.StartDate != "" && f.EndDate != "":
		return s.ListByDateRange(ctx, f.StartDate, f.EndDate)
	case f.CategoryID != "":
		return s.ListByCategory(ctx, f.CategoryID)
	default:
		return s.List(ctx)
	}
}

func (s *ExpenseService) Create(ctx context.Context, expense json.RawMessage) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPost, "/expenses/create", nil, expense)
}

func (s *ExpenseService) Update(ctx context.Context, update json.RawMessage) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPut, "/expenses/update", nil, update)
}

func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	return del(ctx, s.d, "/expenses/delete/"+url.PathEscape(id))
}
