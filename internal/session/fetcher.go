// Package session owns the authenticated-session lifecycle for the
// paywalled e-edition: page fetching with persisted cookies, login, and the
// cooperative lockout guard.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"swvanews/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FetchResult is the outcome of one page fetch.
type FetchResult struct {
	StatusCode int
	Body       []byte
	FinalURL   string
}

// PageFetcher fetches a URL within the current session. Discovery and
// download are written against this interface, so the transport stays
// swappable.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*FetchResult, error)
}

// storageState is the persisted cookie file bound to one egress identity.
type storageState struct {
	Cookies []storedCookie `json:"cookies"`
}

type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
}

// HTTPFetcher is the production PageFetcher: a cookie-jar HTTP client whose
// cookies persist to a storage-state file, optionally egressing through one
// proxy of the pool.
type HTTPFetcher struct {
	client      *http.Client
	jar         *cookiejar.Jar
	storagePath string
	baseURL     string
}

// StorageStatePath binds a storage-state filename to the egress identity so
// each proxy keeps its own session.
func StorageStatePath(dir, proxyURL string) string {
	server := "no-proxy"
	if proxyURL != "" {
		server = proxyURL
		if u, err := url.Parse(proxyURL); err == nil && u.Host != "" {
			server = u.Scheme + "_" + u.Host
		}
	}
	server = strings.NewReplacer("://", "_", ":", "_", "/", "_", "@", "_").Replace(server)
	return filepath.Join(dir, fmt.Sprintf("eedition_%s.json", server))
}

// NewHTTPFetcher builds a fetcher whose cookies are loaded from (and saved
// back to) storagePath. An empty proxyURL means a direct connection.
func NewHTTPFetcher(storagePath, proxyURL, baseURL string) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{}
	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	f := &HTTPFetcher{
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		jar:         jar,
		storagePath: storagePath,
		baseURL:     baseURL,
	}
	if err := f.loadState(); err != nil {
		logger.Warn("Could not load session state, starting fresh",
			"path", storagePath, "error", err.Error())
	}
	return f, nil
}

// Fetch performs a GET with the session cookies and browser headers.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", pageURL, err)
	}

	return &FetchResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// PostForm submits a form with the session cookies and returns the result.
func (f *HTTPFetcher) PostForm(ctx context.Context, formURL string, values url.Values) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, formURL,
		strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post form to %s: %w", formURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read form response: %w", err)
	}

	return &FetchResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// SaveState persists the session cookies for the base URL's domain.
func (f *HTTPFetcher) SaveState() error {
	base, err := url.Parse(f.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}

	state := storageState{}
	for _, c := range f.jar.Cookies(base) {
		state.Cookies = append(state.Cookies, storedCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: base.Hostname(),
			Path:   "/",
		})
	}

	buf, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.storagePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := os.WriteFile(f.storagePath, buf, 0o600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

func (f *HTTPFetcher) loadState() error {
	buf, err := os.ReadFile(f.storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var state storageState
	if err := json.Unmarshal(buf, &state); err != nil {
		return fmt.Errorf("corrupt session state: %w", err)
	}

	base, err := url.Parse(f.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	f.jar.SetCookies(base, cookies)
	return nil
}
