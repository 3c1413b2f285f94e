package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/moneytrail/spendwise/internal/cookiestore"
)

// storedCookie is one persisted cookie together with the URL that set it.
type storedCookie struct {
	URL      string        `json:"url"`
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Domain   string        `json:"domain,omitempty"`
	HostOnly bool          `json:"host_only,omitempty"`
	Expires  time.Time     `json:"expires,omitzero"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"http_only,omitempty"`
	SameSite http.SameSite `json:"same_site,omitempty"`
}

func (c storedCookie) key() string {
	return c.Domain + ";" + c.Path + ";" + c.Name
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

func (c storedCookie) cookie() *http.Cookie {
	domain := c.Domain
	if c.HostOnly {
		domain = ""
	}
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: c.SameSite,
	}
}

// PersistentJar is an http.CookieJar that mirrors the cookies it receives into a
// cookiestore.Store, so a later process resumes the same server session.
// The store is read lazily on first use to avoid I/O during startup.
type PersistentJar struct {
	store cookiestore.Store
	now   func() time.Time

	load func() error

	mu      sync.Mutex
	jar     *cookiejar.Jar
	cookies map[string]storedCookie

	lastSnapshot atomic.Pointer[string]
	writeMu      sync.Mutex
}

// Compile-time check to ensure PersistentJar implements http.CookieJar
var _ http.CookieJar = (*PersistentJar)(nil)

// NewPersistentJar creates a PersistentJar backed by store.
// No I/O is performed until the jar is first used.
func NewPersistentJar(store cookiestore.Store) (*PersistentJar, error) {
	if store == nil {
		return nil, fmt.Errorf("missing cookie store")
	}

	jar, err := newCookieJar()
	if err != nil {
		return nil, err
	}

	p := &PersistentJar{
		store:   store,
		now:     time.Now,
		jar:     jar,
		cookies: make(map[string]storedCookie),
	}
	p.load = sync.OnceValue(p.restore)

	return p, nil
}

func newCookieJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return jar, nil
}

// Load reads the persisted cookies if that has not happened yet and reports
// whether reading failed. A missing snapshot is not an error.
func (p *PersistentJar) Load() error {
	return p.load()
}

// restore performs the one-time read of the persisted snapshot.
func (p *PersistentJar) restore() error {
	// http.CookieJar has no context parameter
	ctx := context.Background()

	data, err := p.store.Read(ctx)
	if errors.Is(err, cookiestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read stored session", "error", err)
		return fmt.Errorf("reading stored session: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		slog.ErrorContext(ctx, "discarding unreadable stored session", "error", err)
		return fmt.Errorf("decoding stored session: %w", err)
	}

	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range stored {
		if c.expired(now) {
			continue
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			continue
		}
		p.jar.SetCookies(u, []*http.Cookie{c.cookie()})
		p.cookies[c.key()] = c
	}

	// Remember what is on disk to avoid a redundant write-back
	snapshot := string(data)
	p.lastSnapshot.Store(&snapshot)

	slog.DebugContext(ctx, "restored session cookies", "count", len(p.cookies))
	return nil
}

// Cookies returns the cookies to send in a request for u.
func (p *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	_ = p.load()

	p.mu.Lock()
	jar := p.jar
	p.mu.Unlock()
	return jar.Cookies(u)
}

// SetCookies stores cookies received from u and persists the jar when they change it.
func (p *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	_ = p.load()

	now := p.now()
	p.mu.Lock()
	p.jar.SetCookies(u, cookies)
	for _, c := range cookies {
		sc := storedCookie{
			URL:      (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String(),
			Name:     c.Name,
			Value:    c.Value,
			Path:     cookiePath(u, c),
			Domain:   cookieDomain(u, c),
			HostOnly: c.Domain == "",
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			SameSite: c.SameSite,
		}
		switch {
		case c.MaxAge < 0:
			sc.Expires = now
		case c.MaxAge > 0:
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		if sc.expired(now) {
			delete(p.cookies, sc.key())
			continue
		}
		p.cookies[sc.key()] = sc
	}
	p.mu.Unlock()

	p.persist()
}

// Clear drops every cookie and removes the persisted snapshot.
func (p *PersistentJar) Clear(ctx context.Context) error {
	_ = p.load()

	jar, err := newCookieJar()
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	p.jar = jar
	clear(p.cookies)
	p.mu.Unlock()

	if err := p.store.Delete(ctx); err != nil && !errors.Is(err, cookiestore.ErrReadOnly) {
		return fmt.Errorf("deleting stored session: %w", err)
	}
	p.lastSnapshot.Store(nil)
	return nil
}

// snapshotLocked serializes the unexpired cookies in a stable order.
func (p *PersistentJar) snapshotLocked(now time.Time) string {
	keys := make([]string, 0, len(p.cookies))
	for k, c := range p.cookies {
		if c.expired(now) {
			delete(p.cookies, k)
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	stored := make([]storedCookie, 0, len(keys))
	for _, k := range keys {
		stored = append(stored, p.cookies[k])
	}
	data, err := json.Marshal(stored)
	if err != nil {
		// storedCookie holds only plain values
		panic(err)
	}
	return string(data)
}

// persist writes the current cookies to the store. The snapshot is taken while
// writeMu is held so concurrent writers cannot store an older state last.
// Lock order is writeMu, then mu.
func (p *PersistentJar) persist() {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	snapshot := p.snapshotLocked(p.now())
	p.mu.Unlock()

	if last := p.lastSnapshot.Load(); last != nil && *last == snapshot {
		return
	}

	// http.CookieJar has no context parameter
	ctx := context.Background()
	if err := p.store.Write(ctx, []byte(snapshot)); err != nil {
		if errors.Is(err, cookiestore.ErrReadOnly) {
			slog.DebugContext(ctx, "session storage is read-only, cookies kept in memory")
			return
		}
		// The session still works for this process but will not survive a restart
		slog.ErrorContext(ctx, "failed to persist session cookies", "error", err)
		return
	}
	p.lastSnapshot.Store(&snapshot)
}

// cookiePath resolves the effective cookie path the way a browser does.
func cookiePath(u *url.URL, c *http.Cookie) string {
	if strings.HasPrefix(c.Path, "/") {
		return c.Path
	}
	dir := u.Path
	if i := strings.LastIndex(dir, "/"); i > 0 {
		return dir[:i]
	}
	return "/"
}

// cookieDomain returns the domain attribute, or the request host for host-only cookies.
func cookieDomain(u *url.URL, c *http.Cookie) string {
	if c.Domain != "" {
		return strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	}
	return strings.ToLower(u.Hostname())
}
