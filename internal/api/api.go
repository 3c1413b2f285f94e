// Package api wraps the finance API's resource endpoints. Payloads are opaque JSON:
// request bodies are sent unchanged and responses are returned as json.RawMessage.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/moneytrail/spendwise/internal/client"
)

// Doer dispatches authorized API requests.
type Doer interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
}

// Compile-time check that *client.Client is a Doer
var _ Doer = (*client.Client)(nil)

// Client groups the resource services of the API.
type Client struct {
	Categories *CategoryService
	Expenses   *ExpenseService
	Budgets    *BudgetService
	Users      *UserService
	Account    *AccountService
}

// New creates a Client whose services share d.
func New(d Doer) *Client {
	return &Client{
		Categories: &CategoryService{d: d},
		Expenses:   &ExpenseService{d: d},
		Budgets:    &BudgetService{d: d},
		Users:      &UserService{d: d, uploader: http.DefaultClient},
		Account:    &AccountService{d: d},
	}
}

func get(ctx context.Context, d Doer, path string, query url.Values) (json.RawMessage, error) {
	resp, err := d.Do(ctx, client.Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	return resp.JSON(), nil
}

func send(ctx context.Context, d Doer, method, path string, query url.Values, body json.RawMessage) (json.RawMessage, error) {
	req, err := client.NewJSONRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	req.Query = query
	resp, err := d.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.JSON(), nil
}

func del(ctx context.Context, d Doer, path string) error {
	_, err := d.Do(ctx, client.Request{Method: http.MethodDelete, Path: path})
	return err
}

// dateRange builds the start_date/end_date query shared by range endpoints.
func dateRange(start, end string) url.Values {
	return url.Values{"start_date": {start}, "end_date": {end}}
}
