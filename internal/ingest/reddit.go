package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"swvanews/internal/config"
	"swvanews/internal/core"
	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

const (
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIBase  = "https://oauth.reddit.com"

	// Reddit asks OAuth clients to stay under 60 requests per minute.
	redditRequestSpacing = 2 * time.Second

	defaultRedditUserAgent = "swvanews/0.1"
)

// RedditIngester pulls new posts from the configured subreddits.
type RedditIngester struct {
	http     *http.Client
	cfg      config.Reddit
	articles persistence.ArticleRepository
	history  persistence.HistoryRepository
	tokens   persistence.TokenRepository

	tokenURL string
	apiBase  string
	sleep    func(time.Duration)
	now      func() time.Time

	// IncludeComments appends top comments to link posts that have no
	// selftext, so the summarizer has something to work with.
	IncludeComments bool
}

// NewRedditIngester wires an ingester. tokens may be nil to skip token
// persistence across runs.
func NewRedditIngester(cfg config.Reddit, articles persistence.ArticleRepository,
	history persistence.HistoryRepository, tokens persistence.TokenRepository) *RedditIngester {
	return &RedditIngester{
		http:     &http.Client{Timeout: 30 * time.Second},
		cfg:      cfg,
		articles: articles,
		history:  history,
		tokens:   tokens,
		tokenURL: redditTokenURL,
		apiBase:  redditAPIBase,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

func (r *RedditIngester) userAgent() string {
	if r.cfg.UserAgent != "" {
		return r.cfg.UserAgent
	}
	return defaultRedditUserAgent
}

func (r *RedditIngester) tokenAccount() string {
	if r.cfg.Username != "" {
		return r.cfg.Username
	}
	return "app"
}

type redditToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// accessToken returns a cached unexpired token when one is stored,
// otherwise runs the configured grant and persists the result.
func (r *RedditIngester) accessToken(ctx context.Context) (string, error) {
	if r.tokens != nil {
		stored, err := r.tokens.Get(ctx, "reddit", r.tokenAccount())
		if err != nil {
			logger.Warn("Failed to load stored Reddit token", "error", err)
		} else if stored != nil && stored.ExpiresAt != nil &&
			stored.ExpiresAt.After(r.now().Add(time.Minute)) {
			return stored.AccessToken, nil
		}
	}

	if r.cfg.ClientID == "" {
		return "", fmt.Errorf("reddit client_id is not configured")
	}

	form := url.Values{}
	if strings.EqualFold(r.cfg.AppType, "script") && r.cfg.Username != "" && r.cfg.Password != "" {
		form.Set("grant_type", "password")
		form.Set("username", r.cfg.Username)
		form.Set("password", r.cfg.Password)
		form.Set("scope", "read")
	} else {
		form.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(r.cfg.ClientID, r.cfg.ClientSecret)
	req.Header.Set("User-Agent", r.userAgent())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request reddit token: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		detail := string(raw)
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return "", fmt.Errorf("reddit token error %d: %s", resp.StatusCode, detail)
	}

	var token redditToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", fmt.Errorf("failed to decode reddit token: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("reddit token response had no access_token")
	}

	if r.tokens != nil {
		expires := r.now().Add(time.Duration(token.ExpiresIn) * time.Second)
		err := r.tokens.Upsert(ctx, &core.OAuthToken{
			Provider:    "reddit",
			Account:     r.tokenAccount(),
			AccessToken: token.AccessToken,
			Scope:       token.Scope,
			ExpiresAt:   &expires,
		})
		if err != nil {
			logger.Warn("Failed to persist Reddit token", "error", err)
		}
	}
	return token.AccessToken, nil
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Stickied    bool    `json:"stickied"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Run ingests posts newer than sinceHours from every configured subreddit,
// up to limit posts per subreddit.
func (r *RedditIngester) Run(ctx context.Context, sinceHours, limit int) (Result, error) {
	token, err := r.accessToken(ctx)
	if err != nil {
		return Result{}, err
	}

	subs := r.cfg.SubredditList()
	cutoff := r.now().UTC().Add(-time.Duration(sinceHours) * time.Hour)
	logger.Info("Ingesting subreddits", "count", len(subs), "since_hours", sinceHours)

	var total Result
	for i, sub := range subs {
		if i > 0 {
			r.sleep(redditRequestSpacing)
		}
		started := r.now()

		posts, err := r.fetchNew(ctx, token, sub, limit)
		if err != nil {
			logger.Warn("Failed to fetch subreddit", "subreddit", sub, "error", err)
			continue
		}

		var articles []core.Article
		for _, p := range posts {
			created := time.Unix(int64(p.CreatedUTC), 0).UTC()
			if created.Before(cutoff) {
				continue
			}
			if r.IncludeComments && p.Selftext == "" && p.ID != "" {
				r.sleep(redditRequestSpacing)
				if comments := r.fetchComments(ctx, token, p.ID); len(comments) > 0 {
					p.Selftext = "Top comments:\n- " + strings.Join(comments, "\n- ")
				}
			}
			articles = append(articles, r.toArticle(p, sub, created))
		}

		result, err := storeArticles(ctx, articles, r.articles, r.history,
			core.SourceReddit, "r/"+sub, started)
		total.add(result)
		if err != nil {
			return total, fmt.Errorf("failed to store posts from r/%s: %w", sub, err)
		}
	}
	return total, nil
}

func (r *RedditIngester) toArticle(p redditPost, sub string, created time.Time) core.Article {
	postURL := p.URL
	if p.Permalink != "" {
		postURL = "https://www.reddit.com" + p.Permalink
	}

	content := strings.TrimSpace(p.Selftext)
	if content == "" && p.URL != "" {
		content = fmt.Sprintf("Link: %s\n\n(See discussion in thread)", p.URL)
	}

	now := r.now().UTC()
	return core.Article{
		Title:         p.Title,
		Content:       content,
		URL:           postURL,
		SourceType:    core.SourceReddit,
		SourceURL:     postURL,
		Section:       "Reddit/" + sub,
		Author:        p.Author,
		WordCount:     core.CountWords(content),
		DatePublished: &created,
		DateExtracted: now,
		Metadata: map[string]any{
			"subreddit":    sub,
			"score":        p.Score,
			"num_comments": p.NumComments,
		},
	}
}

func (r *RedditIngester) fetchNew(ctx context.Context, token, sub string, limit int) ([]redditPost, error) {
	endpoint := fmt.Sprintf("%s/r/%s/new?limit=%d", r.apiBase, sub, limit)
	var listing redditListing
	if err := r.getJSON(ctx, token, endpoint, &listing); err != nil {
		return nil, err
	}
	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

type redditComment struct {
	Body     string `json:"body"`
	Score    int    `json:"score"`
	Stickied bool   `json:"stickied"`
}

// fetchComments returns up to three top first-level comments for a link
// post. Errors are swallowed; comments are enrichment, not data.
func (r *RedditIngester) fetchComments(ctx context.Context, token, postID string) []string {
	endpoint := fmt.Sprintf("%s/comments/%s?limit=50&depth=1&sort=confidence", r.apiBase, postID)
	var payload []struct {
		Data struct {
			Children []struct {
				Data redditComment `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := r.getJSON(ctx, token, endpoint, &payload); err != nil || len(payload) < 2 {
		return nil
	}
	var comments []string
	for _, child := range payload[1].Data.Children {
		c := child.Data
		if c.Body != "" && !c.Stickied && c.Score >= 1 {
			comments = append(comments, c.Body)
		}
		if len(comments) == 3 {
			break
		}
	}
	return comments
}

func (r *RedditIngester) getJSON(ctx context.Context, token, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", r.userAgent())

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("reddit returned %s: %s", strconv.Itoa(resp.StatusCode), string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
