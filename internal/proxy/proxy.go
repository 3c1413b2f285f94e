// Package proxy serves a local HTTP gateway that forwards API calls through the
// shared session, so local tools reuse one login and one refresh coordinator.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moneytrail/spendwise/internal/client"
)

// DefaultPrefix is the local path prefix mapped onto the API base URL.
const DefaultPrefix = "/api"

// Option configures a Proxy.
type Option func(*Proxy)

// WithPrefix sets the local path prefix that is stripped before forwarding.
// An empty or root prefix keeps DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(p *Proxy) {
		if trimmed := strings.Trim(prefix, "/"); trimmed != "" {
			p.prefix = "/" + trimmed
		}
	}
}

// Proxy represents the local gateway server
type Proxy struct {
	client *client.Client
	prefix string
	mux    *http.ServeMux
	server *http.Server
}

// Prefix returns the local path prefix mapped onto the API base URL.
func (p *Proxy) Prefix() string {
	return p.prefix
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// New creates a gateway that forwards everything under the prefix through c.
func New(c *client.Client, opts ...Option) (*Proxy, error) {
	if c == nil {
		return nil, fmt.Errorf("missing API client")
	}

	p := &Proxy{client: c, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(p)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// The client transport resolves the path against the API base URL
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, p.prefix)
			pr.Out.URL.RawPath = ""
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport:      &client.Transport{Client: c},
		ModifyResponse: stripSessionCookies,
		ErrorHandler:   handleForwardError,
	}

	logger := slog.Default()

	mux := http.NewServeMux()

	// Session endpoints stay with the CLI; the gateway only borrows the session
	for _, path := range []string{client.LoginPath, client.RegisterPath, client.RefreshPath, client.LogoutPath} {
		mux.Handle(p.prefix+path, applyMiddlewares(http.HandlerFunc(forbidSessionEndpoint),
			Logging(logger),
		))
	}

	mux.Handle(p.prefix+"/", applyMiddlewares(reverseProxyHandler,
		Logging(logger),
		Recovery,
	))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", p.health)

	p.mux = mux
	return p, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // covers a refresh plus the replayed request
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

type healthResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	Refreshing    bool   `json:"refreshing"`
}

func (p *Proxy) health(w http.ResponseWriter, r *http.Request) {
	sess := p.client.Session()
	_, ok := sess.AccessToken()
	writeJSON(r.Context(), w, healthResponse{
		Status:        "ok",
		Authenticated: ok,
		Refreshing:    sess.Refreshing(),
	}, http.StatusOK)
}

// stripSessionCookies keeps the API's session cookies inside the gateway's jar.
func stripSessionCookies(resp *http.Response) error {
	resp.Header.Del("Set-Cookie")
	return nil
}

func handleForwardError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, client.ErrMissingCSRFToken), errors.Is(err, client.ErrTerminalAuthFailure):
		slog.WarnContext(ctx, "gateway request not authenticated", "path", r.URL.Path, "error", err)
		writeJSONError(ctx, w, "not authenticated: run spendwise login", http.StatusUnauthorized)
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is left to read a response
		slog.DebugContext(ctx, "gateway request canceled", "path", r.URL.Path)
	default:
		slog.ErrorContext(ctx, "forwarding request failed", "path", r.URL.Path, "error", err)
		writeJSONError(ctx, w, "upstream request failed", http.StatusBadGateway)
	}
}

func forbidSessionEndpoint(w http.ResponseWriter, r *http.Request) {
	writeJSONError(r.Context(), w, "session endpoints are not available through the gateway", http.StatusForbidden)
}
