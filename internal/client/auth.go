package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/moneytrail/spendwise/internal/metrics"
)

// Auth endpoints, relative to the base URL.
const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	RefreshPath  = "/auth/refresh"
	LogoutPath   = "/auth/logout"
)

// Login authenticates with username and password and stores the returned access token.
// The server sets the refresh and CSRF cookies on the same response.
func (c *Client) Login(ctx context.Context, username, password string) (json.RawMessage, error) {
	return c.authenticate(ctx, LoginPath, map[string]string{
		"username": username,
		"password": password,
	})
}

// Register creates an account and stores the returned access token.
func (c *Client) Register(ctx context.Context, username, email, password string) (json.RawMessage, error) {
	return c.authenticate(ctx, RegisterPath, map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body map[string]string) (json.RawMessage, error) {
	req, err := NewJSONRequest(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.NoRefresh = true

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	token, err := accessToken(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.session.SetToken(token)

	slog.DebugContext(ctx, "authenticated", "endpoint", path)
	return resp.JSON(), nil
}

// Refresh mints a new access token from the refresh cookie. It joins a refresh already
// in flight instead of starting another one.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.session.AwaitRefresh(ctx, c.session.Current().Generation, c.refreshAccessToken)
	return err
}

// Logout ends the server-side session. The access token is dropped even when the
// server call fails; that error is still returned.
func (c *Client) Logout(ctx context.Context) error {
	defer c.session.Clear()

	req, err := NewJSONRequest(http.MethodPost, LogoutPath, json.RawMessage("{}"))
	if err != nil {
		return err
	}
	req.CSRF = true

	if _, err := c.Do(ctx, req); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// refreshAccessToken is the session.RefreshFunc for this client. It bypasses Do so a
// failing refresh can never recurse into the refresh protocol.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	req, err := NewJSONRequest(http.MethodPost, RefreshPath, json.RawMessage("{}"))
	if err != nil {
		return "", err
	}
	req.CSRF = true

	// The refresh endpoint trusts the cookies, not the bearer token.
	resp, err := c.send(ctx, req, noCredential)
	if err != nil {
		if errors.Is(err, ErrMissingCSRFToken) {
			metrics.Refreshes.WithLabelValues("missing_csrf").Inc()
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, &APIError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       resp.Body,
		})
	}

	token, err := accessToken(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return token, nil
}

// accessToken extracts access_token from an auth endpoint response.
func accessToken(resp *Response) (string, error) {
	var tok oauth2.Token
	if err := resp.Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response has no access_token")
	}
	return tok.AccessToken, nil
}
