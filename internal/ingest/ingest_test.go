package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"swvanews/internal/config"
	"swvanews/internal/core"
	"swvanews/internal/persistence"
)

type fakeArticles struct {
	persistence.ArticleRepository
	stored []core.Article
	seen   map[string]bool
}

func (f *fakeArticles) InsertOrMerge(_ context.Context, a *core.Article) (int64, bool, error) {
	if a.ContentHash == "" {
		a.ContentHash = core.HashContent(a.Title, a.Content)
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	f.stored = append(f.stored, *a)
	if f.seen[a.ContentHash] {
		return int64(len(f.stored)), false, nil
	}
	f.seen[a.ContentHash] = true
	return int64(len(f.stored)), true, nil
}

type fakeHistory struct {
	persistence.HistoryRepository
	rows []core.ProcessingHistory
}

func (f *fakeHistory) Upsert(_ context.Context, h *core.ProcessingHistory) error {
	f.rows = append(f.rows, *h)
	return nil
}

type fakeTokens struct {
	stored map[string]*core.OAuthToken
}

func (f *fakeTokens) Upsert(_ context.Context, t *core.OAuthToken) error {
	if f.stored == nil {
		f.stored = make(map[string]*core.OAuthToken)
	}
	copied := *t
	f.stored[t.Provider+"/"+t.Account] = &copied
	return nil
}

func (f *fakeTokens) Get(_ context.Context, provider, account string) (*core.OAuthToken, error) {
	return f.stored[provider+"/"+account], nil
}

func redditServer(t *testing.T, tokenRequests *int, posts map[string][]map[string]any) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		*tokenRequests++
		if user, _, ok := r.BasicAuth(); !ok || user != "client-id" {
			t.Errorf("token request missing basic auth, got user %q", user)
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", r.PostForm.Get("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123", "expires_in": 3600, "scope": "read",
		})
	})
	mux.HandleFunc("/r/", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-123" {
			t.Errorf("listing auth = %q", auth)
		}
		sub := strings.Split(strings.TrimPrefix(r.URL.Path, "/r/"), "/")[0]
		children := []map[string]any{}
		for _, p := range posts[sub] {
			children = append(children, map[string]any{"data": p})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"children": children},
		})
	})
	return httptest.NewServer(mux)
}

func testRedditIngester(srv *httptest.Server, subs string, tokens persistence.TokenRepository) (*RedditIngester, *fakeArticles, *[]time.Duration) {
	articles := &fakeArticles{}
	var sleeps []time.Duration
	ing := NewRedditIngester(config.Reddit{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		UserAgent:    "test-agent",
		Subreddits:   subs,
	}, articles, &fakeHistory{}, tokens)
	ing.tokenURL = srv.URL + "/api/v1/access_token"
	ing.apiBase = srv.URL
	ing.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	ing.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
	return ing, articles, &sleeps
}

func TestRedditRunStoresRecentPosts(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	recent := float64(now.Add(-2 * time.Hour).Unix())
	stale := float64(now.Add(-48 * time.Hour).Unix())
	var tokenRequests int
	srv := redditServer(t, &tokenRequests, map[string][]map[string]any{
		"testsub": {
			{"title": "Road closed downtown", "selftext": "Main Street is closed.", "permalink": "/r/testsub/1", "author": "alice", "created_utc": recent, "score": 12, "num_comments": 3},
			{"title": "Linked story", "selftext": "", "url": "https://example.com/story", "permalink": "/r/testsub/2", "author": "bob", "created_utc": recent},
			{"title": "Old post", "selftext": "stale", "created_utc": stale},
		},
	})
	defer srv.Close()

	tokens := &fakeTokens{}
	ing, articles, _ := testRedditIngester(srv, "testsub", tokens)
	result, err := ing.Run(context.Background(), 24, 50)
	if err != nil {
		t.Fatal(err)
	}
	if result.Found != 2 || result.New != 2 {
		t.Fatalf("result = %+v, want 2 found / 2 new", result)
	}

	first := articles.stored[0]
	if first.Section != "Reddit/testsub" || first.SourceType != core.SourceReddit {
		t.Errorf("section/source = %q/%q", first.Section, first.SourceType)
	}
	if first.URL != "https://www.reddit.com/r/testsub/1" {
		t.Errorf("url = %q", first.URL)
	}
	if first.Metadata["score"] != 12 {
		t.Errorf("score metadata = %v", first.Metadata["score"])
	}

	// Link posts without selftext carry the outbound URL inline.
	second := articles.stored[1]
	if !strings.HasPrefix(second.Content, "Link: https://example.com/story") {
		t.Errorf("link post content = %q", second.Content)
	}

	if tokenRequests != 1 {
		t.Errorf("token requests = %d, want 1", tokenRequests)
	}
	stored := tokens.stored["reddit/app"]
	if stored == nil || stored.AccessToken != "tok-123" {
		t.Errorf("token not persisted: %+v", stored)
	}
}

func TestRedditReusesStoredToken(t *testing.T) {
	var tokenRequests int
	srv := redditServer(t, &tokenRequests, map[string][]map[string]any{"testsub": {}})
	defer srv.Close()

	expires := time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	tokens := &fakeTokens{}
	tokens.Upsert(context.Background(), &core.OAuthToken{
		Provider: "reddit", Account: "app", AccessToken: "tok-123", ExpiresAt: &expires,
	})

	ing, _, _ := testRedditIngester(srv, "testsub", tokens)
	if _, err := ing.Run(context.Background(), 24, 50); err != nil {
		t.Fatal(err)
	}
	if tokenRequests != 0 {
		t.Errorf("token requests = %d, want 0 with a fresh stored token", tokenRequests)
	}
}

func TestRedditSpacesRequestsBetweenSubreddits(t *testing.T) {
	var tokenRequests int
	srv := redditServer(t, &tokenRequests, map[string][]map[string]any{"one": {}, "two": {}, "three": {}})
	defer srv.Close()

	ing, _, sleeps := testRedditIngester(srv, "one,two,three", nil)
	if _, err := ing.Run(context.Background(), 24, 50); err != nil {
		t.Fatal(err)
	}
	// No pause before the first subreddit, one before each later one.
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2 pauses", *sleeps)
	}
	for _, d := range *sleeps {
		if d < redditRequestSpacing {
			t.Errorf("pause %v shorter than %v", d, redditRequestSpacing)
		}
	}
}

func TestNWSRunParsesAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/geo+json" {
			t.Errorf("accept header = %q", r.Header.Get("Accept"))
		}
		if r.URL.Query().Get("zone") != "VAZ022" {
			json.NewEncoder(w).Encode(map[string]any{"features": []any{}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"features": []map[string]any{{
				"properties": map[string]any{
					"@id":         "https://api.weather.gov/alerts/abc",
					"headline":    "Flood Warning issued for Smyth County",
					"event":       "Flood Warning",
					"description": "Heavy rain expected.",
					"instruction": "Move to higher ground.",
					"severity":    "Severe",
					"areaDesc":    "Smyth, VA",
					"onset":       "2025-06-10T08:00:00-04:00",
				},
			}},
		})
	}))
	defer srv.Close()

	articles := &fakeArticles{}
	history := &fakeHistory{}
	ing := NewNWSIngester(articles, history)
	ing.apiBase = srv.URL

	result, err := ing.Run(context.Background(), []string{"VAZ022", "VAZ023"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Found != 1 || result.New != 1 {
		t.Fatalf("result = %+v, want 1 found", result)
	}

	a := articles.stored[0]
	if a.Title != "Flood Warning issued for Smyth County" {
		t.Errorf("title = %q", a.Title)
	}
	if a.Author != "NWS" || a.Section != "NWS Alerts" || a.SourceType != core.SourceOSINT {
		t.Errorf("author/section/source = %q/%q/%q", a.Author, a.Section, a.SourceType)
	}
	if !strings.Contains(a.Content, "Instructions: Move to higher ground.") {
		t.Errorf("content = %q", a.Content)
	}
	if a.Metadata["severity"] != "Severe" {
		t.Errorf("severity = %v", a.Metadata["severity"])
	}
	if a.DatePublished == nil || a.DatePublished.UTC().Hour() != 12 {
		t.Errorf("published = %v, want 12:00 UTC", a.DatePublished)
	}

	if len(history.rows) != 1 || history.rows[0].SourceIdentifier != "nws-alerts" {
		t.Errorf("history rows = %+v", history.rows)
	}
}

func TestFacebookRunPaginates(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "user-token" {
			t.Errorf("token exchange used %q", r.URL.Query().Get("access_token"))
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "page-token"})
	})
	mux.HandleFunc("/page1/posts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "page-token" {
			t.Errorf("posts fetched with %q", r.URL.Query().Get("access_token"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "p1", "message": "Town council meets tonight\nAgenda includes budget.", "permalink_url": "https://facebook.com/p1", "created_time": "2025-06-01T12:00:00+0000"},
			},
			"paging": map[string]any{"next": srv.URL + "/page2"},
		})
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "p2", "message": "Festival photos posted.", "permalink_url": "https://facebook.com/p2"},
				{"id": "p3"},
			},
		})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	articles := &fakeArticles{}
	ing := NewFacebookIngester(config.Facebook{AccessToken: "user-token", PageIDs: "page1"},
		articles, &fakeHistory{})
	ing.graphBase = srv.URL

	result, err := ing.Run(context.Background(), nil, 25)
	if err != nil {
		t.Fatal(err)
	}
	// p3 has no message or story and is dropped.
	if result.Found != 2 {
		t.Fatalf("result = %+v, want 2 found", result)
	}

	first := articles.stored[0]
	if first.Title != "Town council meets tonight" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Section != "Facebook/page1" || first.SourceType != core.SourceFacebook {
		t.Errorf("section/source = %q/%q", first.Section, first.SourceType)
	}
	if first.DatePublished == nil || !first.DatePublished.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v", first.DatePublished)
	}
}

func TestFacebookRunRequiresConfig(t *testing.T) {
	ing := NewFacebookIngester(config.Facebook{}, &fakeArticles{}, nil)
	if _, err := ing.Run(context.Background(), nil, 25); err == nil {
		t.Fatal("missing token must error")
	}
	ing = NewFacebookIngester(config.Facebook{AccessToken: "tok"}, &fakeArticles{}, nil)
	if _, err := ing.Run(context.Background(), nil, 25); err == nil {
		t.Fatal("missing pages must error")
	}
}

func TestStoreArticlesCountsDuplicates(t *testing.T) {
	articles := &fakeArticles{}
	history := &fakeHistory{}
	batch := []core.Article{
		{Title: "A", Content: "one"},
		{Title: "A", Content: "one"},
		{Title: "B", Content: "two"},
	}
	result, err := storeArticles(context.Background(), batch, articles, history,
		core.SourceReddit, "r/testsub", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.Found != 3 || result.New != 2 || result.Duplicates != 1 {
		t.Fatalf("result = %+v, want 3/2/1", result)
	}
	if len(history.rows) != 1 {
		t.Fatalf("history rows = %d", len(history.rows))
	}
	row := history.rows[0]
	if row.ArticlesFound != 3 || row.ArticlesNew != 2 || row.ArticlesDup != 1 {
		t.Errorf("history row = %+v", row)
	}
}
