package download

import (
	"context"
	"sync"
	"testing"
	"time"

	"swvanews/internal/cache"
	"swvanews/internal/core"
	"swvanews/internal/session"
)

// memStore is an in-memory pageStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Exists(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.objects[key]; ok {
		return data, nil
	}
	return nil, cache.ErrNotCached
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ cache.BlobMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// scriptedFetcher returns queued status codes, then the final body.
type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []int
	body     []byte
	calls    int
}

func (s *scriptedFetcher) Fetch(_ context.Context, pageURL string) (*session.FetchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.statuses) > 0 {
		status := s.statuses[0]
		s.statuses = s.statuses[1:]
		return &session.FetchResult{StatusCode: status, FinalURL: pageURL}, nil
	}
	return &session.FetchResult{StatusCode: 200, Body: s.body, FinalURL: pageURL}, nil
}

func testEdition() *core.Edition {
	return &core.Edition{
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Publication: "smyth_county",
		Pages: []core.EditionPage{
			{URL: "https://example.com/p1.pdf", PageNumber: 1, Format: "pdf"},
		},
		TotalPages: 1,
	}
}

func TestRetryThenSuccessIsCached(t *testing.T) {
	store := newMemStore()
	fetcher := &scriptedFetcher{statuses: []int{503, 503}, body: []byte("%PDF-1.4 page one")}
	var slept []time.Duration
	d := New(store, func(string) (session.PageFetcher, error) { return fetcher, nil },
		[]string{"http://proxy:10001"}, "smyth-county",
		withSleep(func(dur time.Duration) { slept = append(slept, dur) }))

	edition := testEdition()
	result := d.DownloadEdition(context.Background(), edition, false)

	if result.Successful != 1 || result.Failed != 0 {
		t.Fatalf("result = %d ok / %d failed, want 1/0", result.Successful, result.Failed)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3 (two 503s then 200)", fetcher.calls)
	}

	var total time.Duration
	for _, dur := range slept {
		total += dur
	}
	if total < 6*time.Second {
		t.Errorf("backoff total = %v, want >= 6s (2s then 4s)", total)
	}

	// Second invocation must be served from cache with zero network calls.
	callsBefore := fetcher.calls
	result2 := d.DownloadEdition(context.Background(), edition, false)
	if result2.FromCache != 1 {
		t.Errorf("from_cache = %d, want 1", result2.FromCache)
	}
	if fetcher.calls != callsBefore {
		t.Errorf("cache hit made %d network calls", fetcher.calls-callsBefore)
	}
}

func TestDirectFallbackAfterProxiedExhaustion(t *testing.T) {
	store := newMemStore()
	var proxyCalls, directCalls int
	var mu sync.Mutex
	factory := func(proxyURL string) (session.PageFetcher, error) {
		mu.Lock()
		defer mu.Unlock()
		if proxyURL == "" {
			directCalls++
			return &scriptedFetcher{body: []byte("page")}, nil
		}
		proxyCalls++
		return &scriptedFetcher{statuses: []int{503}}, nil
	}

	d := New(store, factory, []string{"http://proxy:10001"}, "smyth-county",
		withSleep(func(time.Duration) {}))
	result := d.DownloadEdition(context.Background(), testEdition(), false)

	if result.Successful != 1 {
		t.Fatalf("successful = %d, want 1 via direct fallback", result.Successful)
	}
	if proxyCalls != 3 {
		t.Errorf("proxied attempts = %d, want 3", proxyCalls)
	}
	if directCalls != 1 {
		t.Errorf("direct attempts = %d, want exactly 1", directCalls)
	}
}

func TestPerPageFailureDoesNotFailEdition(t *testing.T) {
	store := newMemStore()
	factory := func(proxyURL string) (session.PageFetcher, error) {
		return &scriptedFetcher{statuses: []int{500, 500, 500, 500}}, nil
	}
	d := New(store, factory, nil, "smyth-county", withSleep(func(time.Duration) {}))

	edition := testEdition()
	edition.Pages = append(edition.Pages,
		core.EditionPage{URL: "https://example.com/p2.html", PageNumber: 2, Format: "html"})
	edition.TotalPages = 2

	result := d.DownloadEdition(context.Background(), edition, false)
	if result.Failed != 2 {
		t.Errorf("failed = %d, want 2", result.Failed)
	}
	if result.SuccessRate != 0 {
		t.Errorf("success rate = %v, want 0", result.SuccessRate)
	}
	if len(result.Pages) != 2 {
		t.Errorf("per-page results = %d, want 2", len(result.Pages))
	}
	for _, pr := range result.Pages {
		if pr.Error == "" {
			t.Errorf("page %d should record an error", pr.PageNumber)
		}
	}
}

func TestForceRefreshBypassesCache(t *testing.T) {
	store := newMemStore()
	fetcher := &scriptedFetcher{body: []byte("fresh")}
	d := New(store, func(string) (session.PageFetcher, error) { return fetcher, nil },
		nil, "smyth-county", withSleep(func(time.Duration) {}))

	edition := testEdition()
	d.DownloadEdition(context.Background(), edition, false)
	callsAfterFirst := fetcher.calls

	result := d.DownloadEdition(context.Background(), edition, true)
	if fetcher.calls == callsAfterFirst {
		t.Error("force refresh should hit the network")
	}
	if result.FromCache != 0 {
		t.Errorf("from_cache = %d, want 0 on force refresh", result.FromCache)
	}
}
