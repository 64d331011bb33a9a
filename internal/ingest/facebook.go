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

const facebookGraphBase = "https://graph.facebook.com/v19.0"

// FacebookIngester pulls posts from managed pages through the Graph API.
// It only touches pages the configured token administers; there is no
// scraping or automated login involved.
type FacebookIngester struct {
	http     *http.Client
	cfg      config.Facebook
	articles persistence.ArticleRepository
	history  persistence.HistoryRepository

	graphBase string
	now       func() time.Time
}

// NewFacebookIngester wires an ingester for the configured pages.
func NewFacebookIngester(cfg config.Facebook, articles persistence.ArticleRepository,
	history persistence.HistoryRepository) *FacebookIngester {
	return &FacebookIngester{
		http:      &http.Client{Timeout: 30 * time.Second},
		cfg:       cfg,
		articles:  articles,
		history:   history,
		graphBase: facebookGraphBase,
		now:       time.Now,
	}
}

type facebookPost struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	Story        string `json:"story"`
	PermalinkURL string `json:"permalink_url"`
	CreatedTime  string `json:"created_time"`
}

type facebookPage struct {
	Data   []facebookPost `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Run ingests posts from every configured page, optionally bounded by since.
func (f *FacebookIngester) Run(ctx context.Context, since *time.Time, limit int) (Result, error) {
	if f.cfg.AccessToken == "" {
		return Result{}, fmt.Errorf("facebook access_token is not configured")
	}
	pages := f.cfg.PageIDList()
	if len(pages) == 0 {
		return Result{}, fmt.Errorf("no facebook pages configured")
	}

	var total Result
	for _, pageID := range pages {
		started := f.now()
		posts, err := f.fetchPagePosts(ctx, pageID, since, limit)
		if err != nil {
			logger.Warn("Failed to fetch Facebook page", "page", pageID, "error", err)
			continue
		}

		articles := make([]core.Article, 0, len(posts))
		for _, post := range posts {
			if post.Message == "" && post.Story == "" {
				continue
			}
			articles = append(articles, f.toArticle(post, pageID))
		}

		result, err := storeArticles(ctx, articles, f.articles, f.history,
			core.SourceFacebook, "fb/"+pageID, started)
		total.add(result)
		if err != nil {
			return total, fmt.Errorf("failed to store posts from page %s: %w", pageID, err)
		}
	}
	return total, nil
}

// pageAccessToken exchanges the user token for the page's own token.
func (f *FacebookIngester) pageAccessToken(ctx context.Context, pageID string) (string, error) {
	params := url.Values{}
	params.Set("fields", "access_token")
	params.Set("access_token", f.cfg.AccessToken)

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := f.getJSON(ctx, f.graphBase+"/"+pageID+"?"+params.Encode(), &payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("no page access token for %s; check page permissions", pageID)
	}
	return payload.AccessToken, nil
}

func (f *FacebookIngester) fetchPagePosts(ctx context.Context, pageID string, since *time.Time, limit int) ([]facebookPost, error) {
	token, err := f.pageAccessToken(ctx, pageID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("access_token", token)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", "id,message,permalink_url,created_time,story")
	if since != nil {
		params.Set("since", strconv.FormatInt(since.Unix(), 10))
	}

	endpoint := f.graphBase + "/" + pageID + "/posts?" + params.Encode()
	var posts []facebookPost
	for endpoint != "" {
		var page facebookPage
		if err := f.getJSON(ctx, endpoint, &page); err != nil {
			return posts, err
		}
		posts = append(posts, page.Data...)
		endpoint = page.Paging.Next
	}
	return posts, nil
}

func (f *FacebookIngester) toArticle(post facebookPost, pageID string) core.Article {
	content := post.Message
	if content == "" {
		content = post.Story
	}

	title := post.Story
	if title == "" {
		// First line of the message, clipped like extracted titles.
		title = content
		if idx := strings.IndexByte(title, '\n'); idx > 0 {
			title = title[:idx]
		}
		if len(title) > 200 {
			title = title[:200]
		}
	}

	now := f.now().UTC()
	article := core.Article{
		Title:         title,
		Content:       content,
		URL:           post.PermalinkURL,
		SourceType:    core.SourceFacebook,
		SourceURL:     post.PermalinkURL,
		Section:       "Facebook/" + pageID,
		WordCount:     core.CountWords(content),
		DateExtracted: now,
		Metadata:      map[string]any{"post_id": post.ID, "page_id": pageID},
	}
	if post.CreatedTime != "" {
		// Graph API timestamps look like 2025-06-01T12:00:00+0000.
		for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
			if parsed, err := time.Parse(layout, post.CreatedTime); err == nil {
				created := parsed.UTC()
				article.DatePublished = &created
				break
			}
		}
	}
	return article
}

func (f *FacebookIngester) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("graph api returned %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
