package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStorageStatePathBindsToProxy(t *testing.T) {
	direct := StorageStatePath("storage", "")
	if !strings.Contains(direct, "no-proxy") {
		t.Errorf("direct path should mention no-proxy, got %q", direct)
	}

	p1 := StorageStatePath("storage", "http://user:pw@proxy.example.com:10001")
	p2 := StorageStatePath("storage", "http://user:pw@proxy.example.com:10002")
	if p1 == p2 {
		t.Error("different proxy ports must map to different state files")
	}
	for _, p := range []string{p1, p2} {
		base := filepath.Base(p)
		if strings.ContainsAny(base, ":/@") {
			t.Errorf("state filename %q contains unsafe characters", base)
		}
	}
}

func TestLockoutStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lockout.json")
	store := NewLockoutStore(path, nil, time.Hour)

	if store.Active(ctx) {
		t.Fatal("fresh store should not be active")
	}

	marker := store.Activate(ctx, "429 on login")
	if !store.Active(ctx) {
		t.Fatal("store should be active after Activate")
	}
	if marker.Reason != "429 on login" {
		t.Errorf("reason = %q", marker.Reason)
	}
	if got := marker.ActiveUntil.Sub(marker.ActivatedAt); got != time.Hour {
		t.Errorf("cooldown = %v, want 1h", got)
	}

	store.Clear(ctx)
	if store.Active(ctx) {
		t.Error("store should not be active after Clear")
	}
}

func TestLockoutStoreExpiry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lockout.json")
	store := NewLockoutStore(path, nil, time.Hour)

	store.Activate(ctx, "test")
	// Jump past the cooldown window.
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if store.Active(ctx) {
		t.Error("expired marker should not count as active")
	}
}

func newTestManager(t *testing.T, serverURL string) *Manager {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "state.json")
	fetcher, err := NewHTTPFetcher(statePath, "", serverURL)
	if err != nil {
		t.Fatal(err)
	}
	lockout := NewLockoutStore(filepath.Join(t.TempDir(), "lockout.json"), nil, time.Hour)
	return NewManager(fetcher, nil, lockout, Credentials{Email: "u@example.com", Password: "pw"}, serverURL)
}

func TestVerifyDetectsLoginForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><form><input name="email"><input name="password"></form></html>`))
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	if m.Verify(context.Background()) {
		t.Error("page showing a login form must not verify")
	}
}

func TestVerifyAcceptsAuthenticatedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><h1>Smyth County News eEdition</h1><a href="/page/1">Page 1</a></html>`))
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	if !m.Verify(context.Background()) {
		t.Error("authenticated page should verify")
	}
}

func TestLoginActivatesLockoutOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	if err := m.Login(ctx); err != ErrLockoutActive {
		t.Fatalf("Login = %v, want ErrLockoutActive", err)
	}
	if !m.lockout.Active(ctx) {
		t.Error("guard should be active after a 429")
	}
	// Subsequent attempts fail fast without touching the server.
	if err := m.Login(ctx); err != ErrLockoutActive {
		t.Errorf("second Login = %v, want ErrLockoutActive", err)
	}
}

func TestLoginActivatesLockoutOnBanner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>Too many login attempts. Try again later.</html>`))
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	if err := m.Login(context.Background()); err != ErrLockoutActive {
		t.Fatalf("Login = %v, want ErrLockoutActive", err)
	}
}

func TestWithSessionLoginsAtMostOnce(t *testing.T) {
	var loginPosts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			loginPosts++
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
			w.Write([]byte(`<html>welcome back</html>`))
			return
		}
		if _, err := r.Cookie("session"); err != nil {
			w.Write([]byte(`<input name="password">`))
			return
		}
		w.Write([]byte(`<html>eedition index</html>`))
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	var fetched bool
	err := m.WithSession(ctx, func(f PageFetcher) error {
		result, err := f.Fetch(ctx, srv.URL)
		if err != nil {
			return err
		}
		fetched = strings.Contains(string(result.Body), "eedition index")
		return nil
	})
	if err != nil {
		t.Fatalf("WithSession failed: %v", err)
	}
	if !fetched {
		t.Error("callback should see the authenticated page")
	}
	if loginPosts != 1 {
		t.Errorf("login posts = %d, want 1", loginPosts)
	}
}
