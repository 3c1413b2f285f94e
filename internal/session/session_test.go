package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingRefresher returns a RefreshFunc that counts calls and blocks until release is closed.
func blockingRefresher(calls *atomic.Int32, release <-chan struct{}, token string, err error) RefreshFunc {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return token, err
	}
}

// waitForWaiters polls until n waiters are registered on the session.
func waitForWaiters(t *testing.T, s *Session, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		got := len(s.waiters)
		s.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d waiters", n)
}

func TestSetTokenAndAuthHeader(t *testing.T) {
	s := New()

	if _, ok := s.AccessToken(); ok {
		t.Fatal("new session should have no token")
	}
	if _, err := s.Token(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Token() error = %v, want ErrNoToken", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.test", nil)
	req.Header.Set("Authorization", "Bearer leftover")
	s.Current().SetAuthHeader(req)
	if got := req.Header.Values("Authorization"); len(got) != 0 {
		t.Fatalf("Authorization header should be omitted, got %q", got)
	}

	s.SetToken("abc")
	s.Current().SetAuthHeader(req)
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Fatalf("Authorization = %q, want %q", got, "Bearer abc")
	}

	tok, err := s.Token()
	if err != nil || tok.AccessToken != "abc" {
		t.Fatalf("Token() = %v, %v", tok, err)
	}

	s.Clear()
	if _, ok := s.AccessToken(); ok {
		t.Fatal("Clear should drop the token")
	}
}

func TestSetTokenAdvancesGeneration(t *testing.T) {
	s := New(WithToken("first"))
	before := s.Current()
	s.SetToken("second")
	after := s.Current()

	if after.Generation == before.Generation {
		t.Fatal("generation should change when the token is replaced")
	}
	if after.Token != "second" {
		t.Fatalf("token = %q, want second", after.Token)
	}
}

func TestAwaitRefreshSingleFlight(t *testing.T) {
	const n = 8
	s := New(WithToken("stale"))
	sent := s.Current()

	var calls atomic.Int32
	release := make(chan struct{})
	refresh := blockingRefresher(&calls, release, "fresh", nil)

	type result struct {
		token string
		err   error
	}
	results := make(chan result, n)

	// Leader first, so every other caller finds the refresh in flight.
	go func() {
		tok, err := s.AwaitRefresh(context.Background(), sent.Generation, refresh)
		results <- result{tok, err}
	}()
	for !s.Refreshing() {
		time.Sleep(time.Millisecond)
	}

	var wg sync.WaitGroup
	wg.Add(n - 1)
	for range n - 1 {
		go func() {
			defer wg.Done()
			tok, err := s.AwaitRefresh(context.Background(), sent.Generation, refresh)
			results <- result{tok, err}
		}()
	}
	waitForWaiters(t, s, n-1)
	close(release)
	wg.Wait()

	for range n {
		r := <-results
		if r.err != nil {
			t.Fatalf("unexpected error: %v", r.err)
		}
		if r.token != "fresh" {
			t.Fatalf("token = %q, want fresh", r.token)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("refresh called %d times, want 1", got)
	}
	if tok, _ := s.AccessToken(); tok != "fresh" {
		t.Fatalf("stored token = %q, want fresh", tok)
	}
	if s.Refreshing() {
		t.Fatal("session should be idle after refresh")
	}
}

func TestAwaitRefreshFailureClearsAndFansOut(t *testing.T) {
	const n = 5
	s := New(WithToken("stale"))
	sent := s.Current()
	refreshErr := errors.New("refresh rejected")

	var calls atomic.Int32
	release := make(chan struct{})
	refresh := blockingRefresher(&calls, release, "", refreshErr)

	errs := make(chan error, n)
	go func() {
		_, err := s.AwaitRefresh(context.Background(), sent.Generation, refresh)
		errs <- err
	}()
	for !s.Refreshing() {
		time.Sleep(time.Millisecond)
	}
	for range n - 1 {
		go func() {
			_, err := s.AwaitRefresh(context.Background(), sent.Generation, refresh)
			errs <- err
		}()
	}
	waitForWaiters(t, s, n-1)
	close(release)

	for range n {
		if err := <-errs; !errors.Is(err, refreshErr) {
			t.Fatalf("error = %v, want %v", err, refreshErr)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("refresh called %d times, want 1", calls.Load())
	}
	if _, ok := s.AccessToken(); ok {
		t.Fatal("failed refresh should clear the token")
	}
}

func TestAwaitRefreshPanicReleasesWaiters(t *testing.T) {
	s := New(WithToken("stale"))
	sent := s.Current()

	release := make(chan struct{})
	panicking := func(context.Context) (string, error) {
		<-release
		panic("refresh exploded")
	}

	recovered := make(chan any, 1)
	go func() {
		defer func() { recovered <- recover() }()
		_, _ = s.AwaitRefresh(context.Background(), sent.Generation, panicking)
	}()
	for !s.Refreshing() {
		time.Sleep(time.Millisecond)
	}

	waiterDone := make(chan error, 1)
	go func() {
		_, err := s.AwaitRefresh(context.Background(), sent.Generation, panicking)
		waiterDone <- err
	}()
	waitForWaiters(t, s, 1)
	close(release)

	if r := <-recovered; r == nil {
		t.Fatal("leader panic was swallowed")
	}
	if err := <-waiterDone; err == nil {
		t.Fatal("waiter released without an error")
	}
	if s.Refreshing() {
		t.Fatal("refreshing flag stuck after panic")
	}
	if _, ok := s.AccessToken(); ok {
		t.Fatal("panicked refresh should clear the token")
	}

	// The next 401 leads a fresh round-trip
	next := s.Current()
	tok, err := s.AwaitRefresh(context.Background(), next.Generation, func(context.Context) (string, error) {
		return "fresh", nil
	})
	if err != nil || tok != "fresh" {
		t.Fatalf("AwaitRefresh() after panic = %q, %v", tok, err)
	}
}

func TestAwaitRefreshSupersededGeneration(t *testing.T) {
	s := New(WithToken("stale"))
	sent := s.Current()
	s.SetToken("fresh")

	refresh := func(context.Context) (string, error) {
		t.Fatal("refresh must not run for a superseded generation")
		return "", nil
	}

	tok, err := s.AwaitRefresh(context.Background(), sent.Generation, refresh)
	if err != nil || tok != "fresh" {
		t.Fatalf("AwaitRefresh = %q, %v; want fresh, nil", tok, err)
	}

	s.Clear()
	if _, err := s.AwaitRefresh(context.Background(), sent.Generation, refresh); !errors.Is(err, ErrNoToken) {
		t.Fatalf("error = %v, want ErrNoToken", err)
	}
}

func TestAwaitRefreshWaiterCancellation(t *testing.T) {
	s := New(WithToken("stale"))
	sent := s.Current()

	var calls atomic.Int32
	release := make(chan struct{})
	refresh := blockingRefresher(&calls, release, "fresh", nil)

	leaderDone := make(chan error, 1)
	go func() {
		_, err := s.AwaitRefresh(context.Background(), sent.Generation, refresh)
		leaderDone <- err
	}()
	for !s.Refreshing() {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := s.AwaitRefresh(ctx, sent.Generation, refresh)
		waiterDone <- err
	}()
	waitForWaiters(t, s, 1)
	cancel()

	if err := <-waiterDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("waiter error = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-leaderDone; err != nil {
		t.Fatalf("leader error = %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) != 0 {
		t.Fatalf("waiters not drained: %d", len(s.waiters))
	}
}

func TestAwaitRefreshLeaderCancellationDoesNotAbortRefresh(t *testing.T) {
	s := New(WithToken("stale"))
	sent := s.Current()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tok, err := s.AwaitRefresh(ctx, sent.Generation, func(ctx context.Context) (string, error) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "fresh", nil
	})
	if err != nil || tok != "fresh" {
		t.Fatalf("AwaitRefresh = %q, %v", tok, err)
	}
}

func TestAwaitRefreshTimeout(t *testing.T) {
	s := New(WithToken("stale"), WithRefreshTimeout(20*time.Millisecond))
	sent := s.Current()

	_, err := s.AwaitRefresh(context.Background(), sent.Generation, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if _, ok := s.AccessToken(); ok {
		t.Fatal("timed out refresh should clear the token")
	}
}

func TestAwaitRefreshEmptyTokenIsFailure(t *testing.T) {
	s := New(WithToken("stale"))
	_, err := s.AwaitRefresh(context.Background(), s.Current().Generation, func(context.Context) (string, error) {
		return "", nil
	})
	if err == nil {
		t.Fatal("expected error for empty refreshed token")
	}
}

func TestClose(t *testing.T) {
	s := New(WithToken("abc"))
	s.Close()

	if _, ok := s.AccessToken(); ok {
		t.Fatal("Close should drop the token")
	}
	s.SetToken("ignored")
	if _, ok := s.AccessToken(); ok {
		t.Fatal("closed session should ignore SetToken")
	}
	if _, err := s.AwaitRefresh(context.Background(), s.Current().Generation, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("error = %v, want ErrClosed", err)
	}
}
