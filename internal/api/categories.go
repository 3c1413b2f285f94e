package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// CategoryService manages expense categories.
type CategoryService struct {
	d Doer
}

func (s *CategoryService) Get(ctx context.Context, id string) (json.RawMessage, error) {
	return get(ctx, s.d, "/categories/get/"+url.PathEscape(id), nil)
}

// List returns the current user's categories.
func (s *CategoryService) List(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, s.d, "/categories/get-by-user", nil)
}

func (s *CategoryService) Create(ctx context.Context, category json.RawMessage) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPost, "/categories/create", nil, category)
}

// Update applies a partial update; the payload carries the category id.
func (s *CategoryService) Update(ctx context.Context, update json.RawMessage) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPut, "/categories/update", nil, update)
}

func (s *CategoryService) Delete(ctx context.Context, id string) error {
	return del(ctx, s.d, "/categories/delete/"+url.PathEscape(id))
}
