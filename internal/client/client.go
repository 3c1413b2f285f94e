package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"

	"github.com/moneytrail/spendwise/internal/metrics"
	"github.com/moneytrail/spendwise/internal/session"
)

const (
	// DefaultCSRFCookie is the script-readable cookie holding the CSRF token.
	DefaultCSRFCookie = "csrf_token"
	// CSRFHeader carries the CSRF token on refresh and logout.
	CSRFHeader = "X-CSRF-Token"

	defaultTimeout = 30 * time.Second
)

var tracer = otel.Tracer("github.com/moneytrail/spendwise/internal/client")

// noCredential sends a request without an Authorization header.
var noCredential session.Credential

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	httpClient *http.Client
	userAgent  string
	csrfCookie string
}

// WithHTTPClient sets the underlying HTTP client. A cookie jar is added if it has none.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) Option {
	return func(cfg *clientConfig) {
		cfg.userAgent = ua
	}
}

// WithCSRFCookie overrides the name of the CSRF cookie.
func WithCSRFCookie(name string) Option {
	return func(cfg *clientConfig) {
		cfg.csrfCookie = name
	}
}

// Client dispatches API requests with the session's access token and recovers
// from expired tokens through the session's refresh coordinator.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	session    *session.Session
	userAgent  string
	csrfCookie string
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, sess *session.Session, opts ...Option) (*Client, error) {
	if sess == nil {
		return nil, fmt.Errorf("missing session")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}

	cfg := &clientConfig{csrfCookie: DefaultCSRFCookie}
	for _, opt := range opts {
		opt(cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	return &Client{
		baseURL:    u,
		http:       httpClient,
		session:    sess,
		userAgent:  cfg.userAgent,
		csrfCookie: cfg.csrfCookie,
	}, nil
}

// Session returns the session the client authorizes requests with.
func (c *Client) Session() *session.Session {
	return c.session
}

// BaseURL returns a copy of the API base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Do sends req with the current access token.
//
// A 401 enters the session's refresh protocol once: on a successful refresh the request
// is replayed with the new token, on failure the original 401 is returned and the session
// is cleared. A refresh that fails for want of a CSRF cookie returns ErrMissingCSRFToken
// instead. A 401 on the replay is terminal. Requests to the refresh endpoint never
// trigger a refresh. Other non-2xx responses are returned as *APIError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	for {
		cred := c.session.Current()
		resp, err := c.send(ctx, req, cred)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		apiErr := &APIError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       resp.Body,
		}
		if resp.StatusCode != http.StatusUnauthorized {
			return nil, apiErr
		}

		switch {
		case isRefreshPath(req.Path):
			c.session.Clear()
			return nil, apiErr
		case req.Attempt > 0:
			return nil, fmt.Errorf("%w: %w", ErrTerminalAuthFailure, apiErr)
		case req.NoRefresh:
			return nil, apiErr
		}

		if _, err := c.session.AwaitRefresh(ctx, cred.Generation, c.refreshAccessToken); err != nil {
			switch {
			case errors.Is(err, ErrMissingCSRFToken):
				return nil, err
			case ctx.Err() != nil:
				return nil, ctx.Err()
			}
			slog.DebugContext(ctx, "refresh did not recover request", "method", req.Method, "path", req.Path, "error", err)
			return nil, apiErr
		}

		metrics.Replays.Inc()
		req = req.retry()
	}
}

// send performs a single HTTP round-trip and buffers the response.
func (c *Client) send(ctx context.Context, req Request, cred session.Credential) (*Response, error) {
	ctx, span := tracer.Start(ctx, req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("spendwise.attempt", req.Attempt)),
	)
	defer span.End()

	u := c.endpoint(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for key, values := range req.Header {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if req.CSRF {
		// Read at send time: the server may rotate the cookie on every refresh.
		csrf, ok := c.csrfToken()
		if !ok {
			return nil, ErrMissingCSRFToken
		}
		httpReq.Header.Set(CSRFHeader, csrf)
	}
	cred.SetAuthHeader(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.Requests.WithLabelValues(req.Method, "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.Requests.WithLabelValues(req.Method, "error").Inc()
		return nil, fmt.Errorf("reading %s %s response: %w", req.Method, req.Path, err)
	}

	metrics.Requests.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *Client) endpoint(p string) *url.URL {
	return c.baseURL.JoinPath(p)
}

// csrfToken reads the CSRF cookie from the jar. Never cached.
func (c *Client) csrfToken() (string, bool) {
	for _, cookie := range c.http.Jar.Cookies(c.endpoint(RefreshPath)) {
		if cookie.Name != c.csrfCookie || cookie.Value == "" {
			continue
		}
		if v, err := url.PathUnescape(cookie.Value); err == nil {
			return v, true
		}
		return cookie.Value, true
	}
	return "", false
}

// isRefreshPath reports whether p addresses the refresh endpoint.
func isRefreshPath(p string) bool {
	return path.Clean("/"+strings.TrimSpace(p)) == RefreshPath
}
