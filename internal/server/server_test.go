package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"swvanews/internal/config"
	"swvanews/internal/core"
	"swvanews/internal/persistence"
)

type fakeDB struct{ err error }

func (f *fakeDB) Ping(context.Context) error { return f.err }

type fakeArticles struct {
	persistence.ArticleRepository
	feed    []persistence.FeedArticle
	dates   []string
	pending []core.Article
	lastDay *time.Time
}

func (f *fakeArticles) ListFeed(_ context.Context, day *time.Time, _ int) ([]persistence.FeedArticle, error) {
	f.lastDay = day
	return f.feed, nil
}

func (f *fakeArticles) FeedDates(context.Context) ([]string, error) { return f.dates, nil }

func (f *fakeArticles) GetPending(_ context.Context, status core.Status, _ int) ([]core.Article, error) {
	if status != core.StatusExtracted {
		return nil, fmt.Errorf("unexpected status %s", status)
	}
	return f.pending, nil
}

func (f *fakeArticles) CountsByStatus(context.Context) (map[string]int, error) {
	return map[string]int{"extracted": 3, "summarized": 7}, nil
}

type fakeEvents struct {
	persistence.EventRepository
	events []core.ArticleEvent
}

func (f *fakeEvents) ListUpcoming(context.Context, int) ([]core.ArticleEvent, error) {
	return f.events, nil
}

type fakeHistory struct {
	persistence.HistoryRepository
}

func (f *fakeHistory) Stats(_ context.Context, days int) (*persistence.HistoryStats, error) {
	return &persistence.HistoryStats{TotalFound: 10, TotalNew: 8, TotalDuplicates: 2}, nil
}

func testServer(articles *fakeArticles, events *fakeEvents, dbErr error) *Server {
	return New(&fakeDB{err: dbErr}, articles, events, &fakeHistory{}, config.Server{Addr: ":0"})
}

func doRequest(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON from %s: %v", path, err)
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s := testServer(&fakeArticles{}, &fakeEvents{}, nil)
	rec, body := doRequest(t, s, "/health")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", rec.Code, body)
	}

	s = testServer(&fakeArticles{}, &fakeEvents{}, fmt.Errorf("down"))
	rec, body = doRequest(t, s, "/health")
	if rec.Code != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Errorf("unhealthy = %d %v", rec.Code, body)
	}
}

func TestFeed(t *testing.T) {
	articles := &fakeArticles{feed: []persistence.FeedArticle{
		{Article: core.Article{ID: 1, Title: "Budget passes"}, SummaryText: "The board approved it."},
	}}
	s := testServer(articles, &fakeEvents{}, nil)

	rec, body := doRequest(t, s, "/feed?date=2025-06-10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["date"] != "2025-06-10" || body["count"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	want := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	if articles.lastDay == nil || !articles.lastDay.Equal(want) {
		t.Errorf("queried day = %v", articles.lastDay)
	}

	rec, _ = doRequest(t, s, "/feed?date=junk")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", rec.Code)
	}
}

func TestFeedDates(t *testing.T) {
	s := testServer(&fakeArticles{dates: []string{"2025-06-10", "2025-06-09"}}, &fakeEvents{}, nil)
	_, body := doRequest(t, s, "/feed/dates")
	dates, _ := body["dates"].([]any)
	if len(dates) != 2 || dates[0] != "2025-06-10" {
		t.Errorf("dates = %v", dates)
	}

	// Empty store still returns an array, not null.
	s = testServer(&fakeArticles{}, &fakeEvents{}, nil)
	_, body = doRequest(t, s, "/feed/dates")
	if _, ok := body["dates"].([]any); !ok {
		t.Errorf("dates = %v, want empty array", body["dates"])
	}
}

func TestEventsGroupedByDate(t *testing.T) {
	soon := time.Now().UTC().AddDate(0, 0, 2)
	far := time.Now().UTC().AddDate(0, 0, 90)
	events := &fakeEvents{events: []core.ArticleEvent{
		{ID: 1, Title: "Farmers market", StartTime: soon},
		{ID: 2, Title: "Same day concert", StartTime: soon.Add(2 * time.Hour)},
		{ID: 3, Title: "Beyond horizon", StartTime: far},
		{ID: 4, Title: "Community potluck"},
	}}
	s := testServer(&fakeArticles{}, events, nil)

	_, body := doRequest(t, s, "/events?days=30")
	grouped, _ := body["events"].(map[string]any)

	day := soon.Format("2006-01-02")
	sameDay, _ := grouped[day].([]any)
	if len(sameDay) != 2 {
		t.Errorf("events on %s = %v", day, grouped[day])
	}
	if unscheduled, _ := grouped["unscheduled"].([]any); len(unscheduled) != 1 {
		t.Errorf("unscheduled = %v", grouped["unscheduled"])
	}
	// The 90-day event falls outside the 30-day window.
	if _, ok := grouped[far.Format("2006-01-02")]; ok {
		t.Error("event beyond the horizon leaked into the response")
	}
}

func TestStats(t *testing.T) {
	s := testServer(&fakeArticles{}, &fakeEvents{}, nil)
	_, body := doRequest(t, s, "/stats?days=7")
	if body["period_days"] != float64(7) {
		t.Errorf("period_days = %v", body["period_days"])
	}
	summary, _ := body["summary"].(map[string]any)
	if summary["total_found"] != float64(10) || summary["total_new"] != float64(8) {
		t.Errorf("summary = %v", summary)
	}
	counts, _ := body["status_counts"].(map[string]any)
	if counts["summarized"] != float64(7) {
		t.Errorf("status_counts = %v", counts)
	}
}

func TestPendingArticles(t *testing.T) {
	published := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	articles := &fakeArticles{pending: []core.Article{
		{ID: 5, Title: "Awaiting summary", Section: "News", WordCount: 120,
			DatePublished: &published, Status: core.StatusExtracted},
	}}
	s := testServer(articles, &fakeEvents{}, nil)

	_, body := doRequest(t, s, "/articles/pending")
	if body["count"] != float64(1) {
		t.Fatalf("count = %v", body["count"])
	}
	items, _ := body["articles"].([]any)
	item, _ := items[0].(map[string]any)
	if item["title"] != "Awaiting summary" || item["processing_status"] != "extracted" {
		t.Errorf("item = %v", item)
	}
}
