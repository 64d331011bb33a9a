package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"swvanews/internal/logger"
)

// Credentials are the e-edition login credentials.
type Credentials struct {
	Email    string
	Password string
}

// debugCapturer stores a login-page snapshot for post-mortems. Satisfied by
// the object cache; may be nil.
type debugCapturer interface {
	PutDebugCapture(ctx context.Context, label string, html []byte) (string, error)
}

// Manager maintains one authenticated session per (site, egress) pair.
type Manager struct {
	fetcher     *HTTPFetcher
	direct      *HTTPFetcher
	lockout     *LockoutStore
	creds       Credentials
	baseURL     string
	storagePath string
	debug       debugCapturer
}

// NewManager wires a session manager. The direct fetcher is the no-proxy
// fallback used when proxied login fails; it may equal fetcher when no
// proxy pool is configured.
func NewManager(fetcher, direct *HTTPFetcher, lockout *LockoutStore, creds Credentials, baseURL string) *Manager {
	if direct == nil {
		direct = fetcher
	}
	return &Manager{
		fetcher:     fetcher,
		direct:      direct,
		lockout:     lockout,
		creds:       creds,
		baseURL:     baseURL,
		storagePath: fetcher.storagePath,
	}
}

// SetDebugCapturer enables best-effort login page captures.
func (m *Manager) SetDebugCapturer(d debugCapturer) { m.debug = d }

// Fetcher exposes the session's page fetcher.
func (m *Manager) Fetcher() PageFetcher { return m.fetcher }

// Verify attempts an authenticated request to the protected base URL.
// It reports false when the response redirects to login or still shows the
// login form.
func (m *Manager) Verify(ctx context.Context) bool {
	result, err := m.fetcher.Fetch(ctx, m.baseURL)
	if err != nil {
		logger.Warn("Session verification fetch failed", "error", err.Error())
		return false
	}
	if result.StatusCode != 200 {
		return false
	}
	return !looksLikeLoginPage(result)
}

// Login authenticates with credentials, proxied first then direct. A 429 or
// a lockout banner activates the guard; while the guard is active Login
// fails immediately with ErrLockoutActive.
func (m *Manager) Login(ctx context.Context) error {
	if m.lockout.Active(ctx) {
		return ErrLockoutActive
	}

	fetchers := []*HTTPFetcher{m.fetcher}
	if m.direct != m.fetcher {
		fetchers = append(fetchers, m.direct)
	}

	var lastErr error
	for i, f := range fetchers {
		if m.lockout.Active(ctx) {
			return ErrLockoutActive
		}
		label := "proxied"
		if i > 0 {
			label = "direct"
		}
		err := m.loginOnce(ctx, f, label)
		if err == nil {
			m.lockout.Clear(ctx)
			if err := m.fetcher.SaveState(); err != nil {
				logger.Warn("Failed to persist session state", "error", err.Error())
			}
			logger.Info("Login successful", "via", label)
			return nil
		}
		if err == ErrLockoutActive {
			return err
		}
		lastErr = err
		logger.Warn("Login attempt failed", "via", label, "error", err.Error())
	}
	return fmt.Errorf("login failed: %w", lastErr)
}

func (m *Manager) loginOnce(ctx context.Context, f *HTTPFetcher, label string) error {
	values := url.Values{}
	values.Set("email", m.creds.Email)
	values.Set("password", m.creds.Password)

	result, err := f.PostForm(ctx, m.baseURL, values)
	if err != nil {
		return err
	}

	if result.StatusCode == 429 || hasLockoutBanner(result.Body) {
		m.captureDebug(ctx, "lockout-"+label, result.Body)
		reason := fmt.Sprintf("status=%d via %s", result.StatusCode, label)
		m.lockout.Activate(ctx, reason)
		return ErrLockoutActive
	}
	if result.StatusCode >= 400 {
		return fmt.Errorf("login returned status %d", result.StatusCode)
	}
	if looksLikeLoginPage(result) {
		m.captureDebug(ctx, "rejected-"+label, result.Body)
		return fmt.Errorf("login rejected for %s", m.creds.Email)
	}
	return nil
}

// WithSession takes the cross-process lock bound to the storage-state file,
// ensures the session is valid (verify, then at most one login), and runs
// fn with the fetcher. The lock prevents concurrent re-logins when several
// workers start together.
func (m *Manager) WithSession(ctx context.Context, fn func(PageFetcher) error) error {
	lock := flock.New(m.storagePath + ".lock")
	locked, err := lock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("session lock unavailable")
	}
	defer lock.Unlock()

	if !m.Verify(ctx) {
		logger.Info("Session invalid, attempting login")
		if err := m.Login(ctx); err != nil {
			return fmt.Errorf("failed to establish session: %w", err)
		}
	}
	return fn(m.fetcher)
}

func (m *Manager) captureDebug(ctx context.Context, label string, body []byte) {
	if m.debug == nil {
		return
	}
	if key, err := m.debug.PutDebugCapture(ctx, label, body); err == nil {
		logger.Debug("Stored login debug capture", "key", key)
	}
}

func looksLikeLoginPage(result *FetchResult) bool {
	if strings.Contains(strings.ToLower(result.FinalURL), "login") {
		return true
	}
	body := strings.ToLower(string(result.Body))
	return strings.Contains(body, `name="password"`) || strings.Contains(body, "name='password'")
}

func hasLockoutBanner(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "too many login attempts")
}
