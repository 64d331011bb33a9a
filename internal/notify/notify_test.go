package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"swvanews/internal/config"
	"swvanews/internal/core"
	"swvanews/internal/persistence"
)

func digestArticles(n int) []core.Article {
	var articles []core.Article
	for i := 1; i <= n; i++ {
		articles = append(articles, core.Article{
			ID:      int64(i),
			Title:   fmt.Sprintf("Story %d", i),
			Section: "News",
			Content: "A longer article body that would be clipped without a summary present.",
		})
	}
	return articles
}

func TestSendDigestPayload(t *testing.T) {
	var captured map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/news-digest" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
	}))
	defer srv.Close()

	n := NewNtfyNotifier(config.Ntfy{URL: srv.URL, Topic: "news-digest", Token: "secret"})
	summaries := map[int64]core.Summary{
		1: {ArticleID: 1, SummaryText: "The council approved the budget.\n\nKey Points:\n- budget"},
	}
	if err := n.SendDigest(context.Background(), digestArticles(5), summaries); err != nil {
		t.Fatal(err)
	}

	if auth != "Bearer secret" {
		t.Errorf("auth header = %q", auth)
	}
	if captured["title"] != "📰 SW Virginia News - 5 new articles" {
		t.Errorf("title = %v", captured["title"])
	}
	if captured["priority"] != float64(3) {
		t.Errorf("priority = %v", captured["priority"])
	}
	if captured["click"] != digestClickURL {
		t.Errorf("click = %v", captured["click"])
	}

	message, _ := captured["message"].(string)
	// Only the top three stories appear, plus the overflow line.
	if strings.Count(message, "• ") != 3 {
		t.Errorf("message bullets:\n%s", message)
	}
	if !strings.Contains(message, "... and 2 more articles") {
		t.Errorf("missing overflow line:\n%s", message)
	}
	// The key-points block never reaches the notification.
	if strings.Contains(message, "Key Points") {
		t.Errorf("key points leaked into message:\n%s", message)
	}
	if !strings.Contains(message, "[News] Story 1") {
		t.Errorf("missing section prefix:\n%s", message)
	}
}

func TestSendDigestAttachesFullText(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
	}))
	defer srv.Close()

	n := NewNtfyNotifier(config.Ntfy{URL: srv.URL, AttachFull: true})
	n.now = func() time.Time { return time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC) }

	if err := n.SendDigest(context.Background(), digestArticles(1), nil); err != nil {
		t.Fatal(err)
	}
	attach, _ := captured["attach"].(string)
	if !strings.HasPrefix(attach, "data:text/plain;base64,") {
		t.Errorf("attach = %q", attach)
	}
	if captured["filename"] != "news-digest-2025-06-10.txt" {
		t.Errorf("filename = %v", captured["filename"])
	}
}

func TestClipSummary(t *testing.T) {
	long := strings.Repeat("x", 250)
	if got := clipSummary(long); len(got) != clipLength || !strings.HasSuffix(got, "...") {
		t.Errorf("clip len = %d", len(got))
	}
	if got := clipSummary("Short summary.\n\nKey Points:\n- one"); got != "Short summary." {
		t.Errorf("clip = %q", got)
	}
}

type fakeDigestArticles struct {
	persistence.ArticleRepository
	articles []core.Article
	notified []int64
}

func (f *fakeDigestArticles) ListForDigest(_ context.Context, _ time.Time, limit int) ([]core.Article, error) {
	if len(f.articles) > limit {
		return f.articles[:limit], nil
	}
	return f.articles, nil
}

func (f *fakeDigestArticles) UpdateStatusBulk(_ context.Context, ids []int64, status core.Status) error {
	if status != core.StatusNotified {
		return fmt.Errorf("unexpected status %s", status)
	}
	f.notified = append(f.notified, ids...)
	return nil
}

type fakeDigestSummaries struct {
	persistence.SummaryRepository
}

func (f *fakeDigestSummaries) GetForArticles(_ context.Context, ids []int64) (map[int64]core.Summary, error) {
	out := make(map[int64]core.Summary)
	for _, id := range ids {
		out[id] = core.Summary{ArticleID: id, SummaryText: fmt.Sprintf("Summary %d", id)}
	}
	return out, nil
}

type fakeNotifier struct {
	sent int
	err  error
}

func (f *fakeNotifier) SendDigest(_ context.Context, articles []core.Article, _ map[int64]core.Summary) error {
	if f.err != nil {
		return f.err
	}
	f.sent = len(articles)
	return nil
}

func TestSendDailyMarksNotified(t *testing.T) {
	articles := &fakeDigestArticles{articles: digestArticles(2)}
	notifier := &fakeNotifier{}
	svc := NewDigestService(articles, &fakeDigestSummaries{}, notifier)

	result, err := svc.SendDaily(context.Background(), time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Sent || result.Articles != 2 {
		t.Fatalf("result = %+v", result)
	}
	if len(articles.notified) != 2 {
		t.Errorf("notified ids = %v", articles.notified)
	}
}

func TestSendDailyKeepsStatusOnFailure(t *testing.T) {
	articles := &fakeDigestArticles{articles: digestArticles(2)}
	notifier := &fakeNotifier{err: fmt.Errorf("push rejected")}
	svc := NewDigestService(articles, &fakeDigestSummaries{}, notifier)

	result, err := svc.SendDaily(context.Background(), time.Now())
	if err == nil {
		t.Fatal("failed push must error")
	}
	if result.Sent || len(articles.notified) != 0 {
		t.Errorf("failed push must not mark articles notified: %+v", result)
	}
}

func TestSendDailyEmptyDay(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewDigestService(&fakeDigestArticles{}, &fakeDigestSummaries{}, notifier)
	result, err := svc.SendDaily(context.Background(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.Sent || result.Articles != 0 || notifier.sent != 0 {
		t.Errorf("empty day must not push: %+v", result)
	}
}
