// Package download fetches every page of an edition through the rotating
// proxy pool and writes the raw bytes into the object cache.
package download

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"swvanews/internal/cache"
	"swvanews/internal/core"
	"swvanews/internal/logger"
	"swvanews/internal/session"
)

// pageStore is the object-cache surface the downloader needs.
type pageStore interface {
	Exists(ctx context.Context, key string) bool
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, meta cache.BlobMeta) error
}

// FetcherFactory builds a page fetcher bound to one egress proxy. An empty
// proxy URL means a direct connection.
type FetcherFactory func(proxyURL string) (session.PageFetcher, error)

// PageResult is the outcome for a single page.
type PageResult struct {
	PageNumber int    `json:"page_number"`
	URL        string `json:"url"`
	Section    string `json:"section,omitempty"`
	Format     string `json:"format"`
	SizeBytes  int    `json:"size_bytes"`
	FromCache  bool   `json:"from_cache"`
	Error      string `json:"error,omitempty"`
}

// Result aggregates one edition download. Per-page errors are recorded but
// never fail the edition.
type Result struct {
	EditionDate string       `json:"edition_date"`
	TotalPages  int          `json:"total_pages"`
	Successful  int          `json:"successful"`
	Failed      int          `json:"failed"`
	FromCache   int          `json:"from_cache"`
	SuccessRate float64      `json:"success_rate"`
	Pages       []PageResult `json:"pages"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
}

// Downloader runs the bounded worker pool over edition pages.
type Downloader struct {
	store      pageStore
	newFetcher FetcherFactory
	proxies    []string
	pubSlug    string
	workers    int
	maxRetries int
	sleep      func(time.Duration)
}

// Option tweaks a Downloader.
type Option func(*Downloader)

// WithWorkers overrides the worker pool size (default 4).
func WithWorkers(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithMaxRetries overrides the proxied attempt count (default 3).
func WithMaxRetries(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.maxRetries = n
		}
	}
}

// withSleep replaces the backoff sleeper in tests.
func withSleep(fn func(time.Duration)) Option {
	return func(d *Downloader) { d.sleep = fn }
}

// New builds a downloader for one publication slug.
func New(store pageStore, newFetcher FetcherFactory, proxies []string, pubSlug string, opts ...Option) *Downloader {
	d := &Downloader{
		store:      store,
		newFetcher: newFetcher,
		proxies:    proxies,
		pubSlug:    pubSlug,
		workers:    4,
		maxRetries: 3,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DownloadEdition fetches all pages concurrently. Cached pages are returned
// without a network call unless forceRefresh is set.
func (d *Downloader) DownloadEdition(ctx context.Context, edition *core.Edition, forceRefresh bool) *Result {
	result := &Result{
		EditionDate: edition.Date.Format("2006-01-02"),
		TotalPages:  edition.TotalPages,
		StartTime:   time.Now().UTC(),
	}

	logger.Info("Starting edition download",
		"date", result.EditionDate, "pages", edition.TotalPages, "workers", d.workers)

	jobs := make(chan core.EditionPage)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				pr := d.downloadPage(ctx, edition, page, forceRefresh)
				mu.Lock()
				result.Pages = append(result.Pages, pr)
				if pr.Error == "" {
					result.Successful++
					if pr.FromCache {
						result.FromCache++
					}
				} else {
					result.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, page := range edition.Pages {
		jobs <- page
	}
	close(jobs)
	wg.Wait()

	result.EndTime = time.Now().UTC()
	if edition.TotalPages > 0 {
		result.SuccessRate = float64(result.Successful) / float64(edition.TotalPages)
	}

	logger.Info("Edition download complete",
		"date", result.EditionDate,
		"successful", result.Successful,
		"failed", result.Failed,
		"from_cache", result.FromCache)
	return result
}

func (d *Downloader) downloadPage(ctx context.Context, edition *core.Edition, page core.EditionPage, forceRefresh bool) PageResult {
	pr := PageResult{
		PageNumber: page.PageNumber,
		URL:        page.URL,
		Section:    page.Section,
		Format:     page.Format,
	}
	key := cache.Key(edition.Date, d.pubSlug, page.PageNumber, page.URL, page.Format)

	if !forceRefresh && d.store.Exists(ctx, key) {
		content, err := d.store.Get(ctx, key)
		if err == nil {
			pr.SizeBytes = len(content)
			pr.FromCache = true
			return pr
		}
		logger.Warn("Cached page unreadable, re-downloading", "key", key, "error", err.Error())
	}

	content, err := d.fetchWithRetries(ctx, page)
	if err != nil {
		pr.Error = err.Error()
		logger.Error("Page download failed", err, "page", page.PageNumber, "url", page.URL)
		return pr
	}
	pr.SizeBytes = len(content)

	meta := cache.BlobMeta{
		URL:         page.URL,
		PageNumber:  page.PageNumber,
		Format:      page.Format,
		Publication: edition.Publication,
		Section:     page.Section,
		Title:       page.Title,
	}
	if err := d.store.Put(ctx, key, content, meta); err != nil {
		logger.Warn("Downloaded page but caching failed", "key", key, "error", err.Error())
	}
	return pr
}

// fetchWithRetries attempts the proxied pool with backoff, then one direct
// fetch before giving up.
func (d *Downloader) fetchWithRetries(ctx context.Context, page core.EditionPage) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		content, err := d.fetchOnce(ctx, page.URL, d.randomProxy())
		if err == nil {
			return content, nil
		}
		lastErr = err
		logger.Warn("Download attempt failed",
			"url", page.URL, "attempt", attempt+1, "error", err.Error())
		if attempt < d.maxRetries-1 {
			backoff := time.Duration(attempt+1) * 2 * time.Second
			d.sleep(backoff)
		}
	}

	if len(d.proxies) > 0 {
		logger.Info("Proxied attempts exhausted, trying direct fetch", "url", page.URL)
		content, err := d.fetchOnce(ctx, page.URL, "")
		if err == nil {
			return content, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all download attempts failed: %w", lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, pageURL, proxyURL string) ([]byte, error) {
	fetcher, err := d.newFetcher(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetcher: %w", err)
	}
	result, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if result.StatusCode != 200 {
		return nil, fmt.Errorf("status %d from %s", result.StatusCode, pageURL)
	}
	return result.Body, nil
}

func (d *Downloader) randomProxy() string {
	if len(d.proxies) == 0 {
		return ""
	}
	return d.proxies[rand.Intn(len(d.proxies))]
}
