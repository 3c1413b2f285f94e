package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/moneytrail/spendwise/internal/api"
	"github.com/moneytrail/spendwise/internal/client"
	"github.com/moneytrail/spendwise/internal/proxy"
	"github.com/moneytrail/spendwise/internal/session"
)

// App wires the session, the API client and the local gateway from configuration.
type App struct {
	cfg     *Config
	jar     *PersistentJar
	session *session.Session
	client  *client.Client
	api     *api.Client
	proxy   *proxy.Proxy
}

// New creates a new App instance. No I/O is performed until the first request.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Auth.NewCookieStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie store: %w", err)
	}

	jar, err := NewPersistentJar(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	sess := session.New(session.WithRefreshTimeout(cfg.Auth.RefreshTimeout))

	apiClient, err := client.New(cfg.API.BaseURL, sess,
		client.WithHTTPClient(&http.Client{Jar: jar, Timeout: cfg.API.Timeout}),
		client.WithUserAgent(cfg.API.UserAgent),
		client.WithCSRFCookie(cfg.Auth.CSRFCookie),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	gateway, err := proxy.New(apiClient, proxy.WithPrefix(cfg.Server.Prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &App{
		cfg:     cfg,
		jar:     jar,
		session: sess,
		client:  apiClient,
		api:     api.New(apiClient),
		proxy:   gateway,
	}, nil
}

// Client returns the authenticated dispatcher.
func (a *App) Client() *client.Client {
	return a.client
}

// API returns the resource services.
func (a *App) API() *api.Client {
	return a.api
}

// Session returns the token store shared by every request.
func (a *App) Session() *session.Session {
	return a.session
}

// Bootstrap restores the persisted session and mints an access token from it.
// It reports false without error when there is no usable session to resume.
func (a *App) Bootstrap(ctx context.Context) (bool, error) {
	if err := a.jar.Load(); err != nil {
		return false, err
	}

	err := a.client.Refresh(ctx)
	if err == nil {
		slog.DebugContext(ctx, "session resumed")
		return true, nil
	}

	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrMissingCSRFToken):
		return false, nil
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
		// Server no longer honours the stored refresh cookie
		slog.InfoContext(ctx, "stored session expired", "detail", apiErr.Detail())
		if err := a.jar.Clear(ctx); err != nil {
			slog.WarnContext(ctx, "failed to drop expired session", "error", err)
		}
		return false, nil
	default:
		return false, fmt.Errorf("resuming session: %w", err)
	}
}

// Logout ends the server-side session and forgets the persisted cookies.
// Local state is cleared even when the server call fails.
func (a *App) Logout(ctx context.Context) error {
	var errs []error
	if err := a.client.Logout(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.jar.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the session; callers waiting on a refresh are released with an error.
func (a *App) Close() {
	a.session.Close()
}

// Start runs the local gateway and blocks until ctx is canceled or the server fails.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting gateway", "address", address, "prefix", a.proxy.Prefix(), "api", a.client.BaseURL().Redacted())
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("gateway startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "gateway runtime error", "error", err)
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	a.Close()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
