package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/moneytrail/spendwise/internal/session"
)

// fakeAPI is an in-process stand-in for the finance API's auth contract.
type fakeAPI struct {
	mu         sync.Mutex
	valid      string // access token accepted by protected endpoints
	next       string // access token issued by the next refresh
	csrf       string
	rotateCSRF bool

	refreshStatus int           // non-zero makes /auth/refresh fail with this status
	refreshGate   chan struct{} // when set, /auth/refresh blocks until closed
	logoutStatus  int

	refreshCalls  atomic.Int32
	refreshBearer atomic.Int32
	staleHits     atomic.Int32
	authSeen      []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{valid: "t1", next: "t2", csrf: "csrf-1"}
}

func (f *fakeAPI) expire(next string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = "expired"
	f.next = next
}

// set mutates the fake's behavior under its lock.
func (f *fakeAPI) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "secret" {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
			return
		}
		f.mu.Lock()
		token, csrf := f.valid, f.csrf
		f.mu.Unlock()
		setSessionCookies(w, csrf)
		writeTestJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
	})

	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if r.Header.Get("Authorization") != "" {
			f.refreshBearer.Add(1)
		}
		f.mu.Lock()
		gate := f.refreshGate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if _, err := r.Cookie("refresh_token"); err != nil || r.Header.Get(CSRFHeader) != f.csrf {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid refresh session"})
			return
		}
		if f.refreshStatus != 0 {
			writeTestJSON(w, f.refreshStatus, map[string]string{"detail": "Refresh token expired"})
			return
		}
		f.valid = f.next
		if f.rotateCSRF {
			f.csrf += "+"
		}
		setSessionCookies(w, f.csrf)
		writeTestJSON(w, http.StatusOK, map[string]string{"access_token": f.valid})
	})

	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		csrf, status := f.csrf, f.logoutStatus
		f.mu.Unlock()
		if status != 0 {
			writeTestJSON(w, status, map[string]string{"detail": "logout failed"})
			return
		}
		if r.Header.Get(CSRFHeader) != csrf {
			writeTestJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF mismatch"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Path: "/api/auth", MaxAge: -1})
		http.SetCookie(w, &http.Cookie{Name: "csrf_token", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/data/{name}", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		f.mu.Lock()
		f.authSeen = append(f.authSeen, auth)
		valid := f.valid
		f.mu.Unlock()

		if r.PathValue("name") == "locked" || auth != "Bearer "+valid {
			f.staleHits.Add(1)
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token expired"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]string{"name": r.PathValue("name")})
	})

	mux.HandleFunc("GET /api/missing", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusNotFound, map[string]string{"detail": "Category not found"})
	})

	return mux
}

func setSessionCookies(w http.ResponseWriter, csrf string) {
	http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt", Path: "/api/auth", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: csrf, Path: "/"})
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newTestClient starts the fake API and returns a client rooted at its /api prefix.
func newTestClient(t *testing.T, f *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api", session.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// loggedIn returns a client that has logged in against f.
func loggedIn(t *testing.T, f *fakeAPI) *Client {
	t.Helper()
	c := newTestClient(t, f)
	if _, err := c.Login(t.Context(), "alice", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return c
}

func bearerCount(seen []string, token string) int {
	n := 0
	for _, s := range seen {
		if strings.TrimPrefix(s, "Bearer ") == token {
			n++
		}
	}
	return n
}
