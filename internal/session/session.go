package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"

	"github.com/moneytrail/spendwise/internal/metrics"
)

// DefaultRefreshTimeout bounds a refresh round-trip when no timeout is configured.
const DefaultRefreshTimeout = 10 * time.Second

var (
	// ErrNoToken is returned when the session holds no access token.
	ErrNoToken = errors.New("session has no access token")
	// ErrClosed is returned by a session that has been torn down.
	ErrClosed = errors.New("session closed")

	errRefreshPanicked = errors.New("refresh panicked")
)

var tracer = otel.Tracer("github.com/moneytrail/spendwise/internal/session")

// RefreshFunc performs the refresh round-trip and returns the new access token.
type RefreshFunc func(ctx context.Context) (string, error)

// Option configures a Session.
type Option func(*Session)

// WithRefreshTimeout bounds each refresh round-trip. A timeout counts as a failed refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithToken seeds the session with an access token.
func WithToken(token string) Option {
	return func(s *Session) {
		s.setLocked(token)
	}
}

// Credential is the access token a request was sent with, tagged with the generation
// of the session state it was read from.
type Credential struct {
	Token      string
	Generation uint64
}

// SetAuthHeader sets the Authorization header for the credential, or removes it when
// the credential carries no token.
func (c Credential) SetAuthHeader(r *http.Request) {
	if c.Token == "" {
		r.Header.Del("Authorization")
		return
	}
	(&oauth2.Token{AccessToken: c.Token, TokenType: "Bearer"}).SetAuthHeader(r)
}

// refreshResult is the outcome delivered to each waiter: a token or an error, never both.
type refreshResult struct {
	token string
	err   error
}

// Session stores the current access token and the refresh state shared by all
// requests of one authenticated client.
type Session struct {
	mu         sync.Mutex
	token      *oauth2.Token
	generation uint64
	refreshing bool
	waiters    []chan refreshResult
	closed     bool

	refreshTimeout time.Duration
}

// Compile-time check to ensure Session implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Session)(nil)

// New creates an active Session without a token.
func New(opts ...Option) *Session {
	s := &Session{
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetToken replaces the access token for every request issued afterwards.
// An empty token clears the session.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setLocked(token)
}

// Clear drops the access token.
func (s *Session) Clear() {
	s.SetToken("")
}

func (s *Session) setLocked(token string) {
	if token == "" {
		s.token = nil
	} else {
		s.token = &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	}
	s.generation++
}

// AccessToken returns the current access token, or false when there is none.
func (s *Session) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return "", false
	}
	return s.token.AccessToken, true
}

// Token implements oauth2.TokenSource. It never refreshes; it returns ErrNoToken
// when the session is empty.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, ErrNoToken
	}
	tok := *s.token
	return &tok, nil
}

// Current returns the token to send together with its generation.
func (s *Session) Current() Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred := Credential{Generation: s.generation}
	if s.token != nil {
		cred.Token = s.token.AccessToken
	}
	return cred
}

// Refreshing reports whether a refresh round-trip is in flight.
func (s *Session) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// Close tears the session down. The token is dropped and later refreshes fail with ErrClosed.
// A refresh already in flight still releases its waiters.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setLocked("")
	s.closed = true
}

// AwaitRefresh resolves a 401 observed by a request sent with the given generation.
//
// If a refresh is in flight the caller waits for it. If the generation has already been
// superseded, the caller gets the newer token without a new round-trip (or ErrNoToken when
// the session was cleared meanwhile). Otherwise the caller becomes the leader and runs
// refresh exactly once on behalf of everyone who arrives while it runs.
//
// The refresh is detached from the leader's cancellation and bounded by the refresh timeout.
// A waiter whose ctx ends returns ctx.Err() without affecting the others.
func (s *Session) AwaitRefresh(ctx context.Context, generation uint64, refresh RefreshFunc) (token string, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}

	if s.refreshing {
		ch := make(chan refreshResult, 1)
		s.waiters = append(s.waiters, ch)
		s.mu.Unlock()
		metrics.RefreshWaiters.Inc()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if s.generation != generation {
		// A refresh or login completed after this request was sent.
		var current string
		if s.token != nil {
			current = s.token.AccessToken
		}
		s.mu.Unlock()
		if current == "" {
			return "", ErrNoToken
		}
		return current, nil
	}

	s.refreshing = true
	s.mu.Unlock()

	// Stays set if refresh panics; the deferred release still runs while unwinding.
	res := refreshResult{err: errRefreshPanicked}
	defer func() {
		res = s.finishRefresh(res)
		token, err = res.token, res.err
	}()

	res = s.runRefresh(ctx, refresh)
	return res.token, res.err
}

// finishRefresh commits the outcome of the leader's refresh and releases every waiter.
func (s *Session) finishRefresh(res refreshResult) refreshResult {
	s.mu.Lock()
	if s.closed && res.err == nil {
		res = refreshResult{err: ErrClosed}
	}
	if !s.closed {
		s.setLocked(res.token)
	}
	s.refreshing = false
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	// Store is committed before any waiter observes the outcome.
	for _, ch := range waiters {
		ch <- res
	}
	return res
}

func (s *Session) runRefresh(ctx context.Context, refresh RefreshFunc) refreshResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "session.refresh")
	defer span.End()

	start := time.Now()
	token, err := refresh(ctx)
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())

	if err == nil && token == "" {
		err = errors.New("refresh returned an empty access token")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		metrics.Refreshes.WithLabelValues("failure").Inc()
		slog.WarnContext(ctx, "token refresh failed, session cleared", "error", err)
		return refreshResult{err: err}
	}

	span.SetAttributes(attribute.Bool("session.refreshed", true))
	metrics.Refreshes.WithLabelValues("success").Inc()
	slog.DebugContext(ctx, "access token refreshed")
	return refreshResult{token: token}
}
