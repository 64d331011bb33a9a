// Package notify delivers the daily digest as ntfy push notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"swvanews/internal/config"
	"swvanews/internal/core"
	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

const (
	digestLimit     = 50
	topStoryCount   = 3
	clipLength      = 200
	digestClickURL  = "https://swvatoday.com/eedition/"
	defaultNtfyPath = "news-digest"
)

// NtfyNotifier pushes digest notifications to an ntfy topic.
type NtfyNotifier struct {
	http *http.Client
	cfg  config.Ntfy
	now  func() time.Time
}

// NewNtfyNotifier wires a notifier for the configured topic.
func NewNtfyNotifier(cfg config.Ntfy) *NtfyNotifier {
	if cfg.Topic == "" {
		cfg.Topic = defaultNtfyPath
	}
	return &NtfyNotifier{
		http: &http.Client{Timeout: 20 * time.Second},
		cfg:  cfg,
		now:  time.Now,
	}
}

// SendDigest pushes one notification covering the day's articles.
func (n *NtfyNotifier) SendDigest(ctx context.Context, articles []core.Article, summaries map[int64]core.Summary) error {
	if n.cfg.URL == "" {
		return fmt.Errorf("ntfy url is not configured")
	}

	payload := n.buildPayload(articles, summaries)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(n.cfg.URL, "/") + "/" + n.cfg.Topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, string(raw))
	}

	logger.Info("Ntfy notification sent", "topic", n.cfg.Topic, "articles", len(articles))
	return nil
}

func (n *NtfyNotifier) buildPayload(articles []core.Article, summaries map[int64]core.Summary) map[string]any {
	top := articles
	if len(top) > topStoryCount {
		top = top[:topStoryCount]
	}

	var parts []string
	for _, a := range top {
		clip := clipSummary(summaryOrContent(a, summaries))
		section := ""
		if a.Section != "" {
			section = "[" + a.Section + "] "
		}
		parts = append(parts, fmt.Sprintf("• %s%s\n  %s", section, a.Title, clip))
	}
	if len(articles) > topStoryCount {
		parts = append(parts, fmt.Sprintf("\n... and %d more articles", len(articles)-topStoryCount))
	}

	payload := map[string]any{
		"topic":    n.cfg.Topic,
		"title":    fmt.Sprintf("📰 SW Virginia News - %d new articles", len(articles)),
		"message":  strings.Join(parts, "\n\n"),
		"priority": 3,
		"tags":     []string{"newspaper", "news"},
		"click":    digestClickURL,
		"actions": []map[string]any{
			{"action": "view", "label": "Read Digest", "url": digestClickURL},
		},
	}

	if n.cfg.AttachFull {
		digest := textDigest(articles, summaries, n.now())
		payload["attach"] = "data:text/plain;base64," +
			base64.StdEncoding.EncodeToString([]byte(digest))
		payload["filename"] = fmt.Sprintf("news-digest-%s.txt", n.now().Format("2006-01-02"))
	}
	return payload
}

func summaryOrContent(a core.Article, summaries map[int64]core.Summary) string {
	if s, ok := summaries[a.ID]; ok && s.SummaryText != "" {
		return s.SummaryText
	}
	clip := a.Content
	if len(clip) > 100 {
		clip = clip[:100]
	}
	return clip + "..."
}

// clipSummary strips any trailing key-points block and bounds the text for
// a notification body.
func clipSummary(text string) string {
	if idx := strings.Index(text, "Key Points:"); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}
	if len(text) > clipLength {
		text = text[:clipLength-3] + "..."
	}
	return text
}

// textDigest renders the full digest grouped by section, for attachment.
func textDigest(articles []core.Article, summaries map[int64]core.Summary, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SW VIRGINIA NEWS DIGEST\n%s • %d Articles\n\n",
		now.Format("January 2, 2006"), len(articles))

	sections := make(map[string][]core.Article)
	var order []string
	for _, a := range articles {
		section := a.Section
		if section == "" {
			section = "General"
		}
		if _, ok := sections[section]; !ok {
			order = append(order, section)
		}
		sections[section] = append(sections[section], a)
	}

	for _, section := range order {
		fmt.Fprintf(&b, "\n%s\n%s\n\n", strings.ToUpper(section), strings.Repeat("=", len(section)))
		for _, a := range sections[section] {
			fmt.Fprintf(&b, "%s\n%s\n", a.Title, summaryOrContent(a, summaries))
			if url := firstNonEmpty(a.URL, a.SourceURL); url != "" {
				fmt.Fprintf(&b, "\nRead more: %s\n", url)
			}
			b.WriteString("\n" + strings.Repeat("-", 50) + "\n\n")
		}
	}

	fmt.Fprintf(&b, "\nGenerated on %s\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("This is an automated digest from SW Virginia Today's e-edition.\n")
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// DigestResult reports one delivery attempt.
type DigestResult struct {
	Date     string `json:"date"`
	Articles int    `json:"articles_count"`
	Sent     bool   `json:"sent"`
}

// Notifier is the delivery channel behind the digest service.
type Notifier interface {
	SendDigest(ctx context.Context, articles []core.Article, summaries map[int64]core.Summary) error
}

// DigestService assembles the day's digest and marks delivered articles.
type DigestService struct {
	articles  persistence.ArticleRepository
	summaries persistence.SummaryRepository
	notifier  Notifier
}

// NewDigestService wires a digest service.
func NewDigestService(articles persistence.ArticleRepository,
	summaries persistence.SummaryRepository, notifier Notifier) *DigestService {
	return &DigestService{articles: articles, summaries: summaries, notifier: notifier}
}

// SendDaily sends the digest for one extraction date. Articles are marked
// notified only after the push succeeds.
func (s *DigestService) SendDaily(ctx context.Context, day time.Time) (*DigestResult, error) {
	result := &DigestResult{Date: day.Format("2006-01-02")}

	articles, err := s.articles.ListForDigest(ctx, day, digestLimit)
	if err != nil {
		return result, fmt.Errorf("failed to load digest articles: %w", err)
	}
	result.Articles = len(articles)
	if len(articles) == 0 {
		logger.Info("No articles for digest", "date", result.Date)
		return result, nil
	}

	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	summaries, err := s.summaries.GetForArticles(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to load digest summaries: %w", err)
	}

	if err := s.notifier.SendDigest(ctx, articles, summaries); err != nil {
		return result, err
	}
	result.Sent = true

	if err := s.articles.UpdateStatusBulk(ctx, ids, core.StatusNotified); err != nil {
		return result, fmt.Errorf("failed to mark articles notified: %w", err)
	}
	logger.Info("Digest delivered", "date", result.Date, "articles", len(articles))
	return result, nil
}
