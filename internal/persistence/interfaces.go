package persistence

import (
	"context"
	"time"

	"swvanews/internal/core"
)

// ArticleRepository persists canonical articles and their lifecycle state.
type ArticleRepository interface {
	// InsertOrMerge inserts the article, or merges it into the row sharing
	// its content hash. Reports the row id and whether a new row was created.
	InsertOrMerge(ctx context.Context, article *core.Article) (int64, bool, error)
	Get(ctx context.Context, id int64) (*core.Article, error)
	GetByHash(ctx context.Context, hash string) (*core.Article, error)
	// GetPending returns articles in the given status, oldest extraction first.
	GetPending(ctx context.Context, status core.Status, limit int) ([]core.Article, error)
	UpdateStatus(ctx context.Context, id int64, status core.Status) error
	UpdateStatusBulk(ctx context.Context, ids []int64, status core.Status) error
	SetEventDates(ctx context.Context, id int64, events []map[string]any) error
	// ListForDigest returns summarized/extracted articles for one extraction date.
	ListForDigest(ctx context.Context, day time.Time, limit int) ([]core.Article, error)
	// ListForIndex returns vector-index source docs: summarized articles
	// updated since the cutoff, with their latest brief summary attached.
	ListForIndex(ctx context.Context, since time.Time, limit int) ([]IndexDoc, error)
	ListFeed(ctx context.Context, day *time.Time, limit int) ([]FeedArticle, error)
	FeedDates(ctx context.Context) ([]string, error)
	Search(ctx context.Context, query string, limit int) ([]core.Article, error)
	CountsByStatus(ctx context.Context) (map[string]int, error)
	// CleanupOld deletes articles extracted more than the given number of
	// days ago. The interval is bound as a parameter, never interpolated.
	CleanupOld(ctx context.Context, days int) (int64, error)
}

// IndexDoc is the projection synced into the vector index.
type IndexDoc struct {
	ID            int64
	Title         string
	Section       string
	Content       string
	Summary       string
	DatePublished *time.Time
}

// FeedArticle is the feed API projection: article plus its brief summary.
type FeedArticle struct {
	core.Article
	SummaryText string `json:"summary_text,omitempty"`
}

// SummaryRepository persists LLM summaries, one per (article, type).
type SummaryRepository interface {
	Upsert(ctx context.Context, summary *core.Summary) error
	GetByArticle(ctx context.Context, articleID int64, summaryType string) (*core.Summary, error)
	GetForArticles(ctx context.Context, articleIDs []int64) (map[int64]core.Summary, error)
}

// EventRepository owns the article_events child rows.
type EventRepository interface {
	// ReplaceForArticle atomically swaps the article's event set.
	ReplaceForArticle(ctx context.Context, articleID int64, events []core.ArticleEvent) error
	ListUpcoming(ctx context.Context, limit int) ([]core.ArticleEvent, error)
}

// TaxonomyRepository persists the per-article tag/entity/topic rows that
// feed analytics.
type TaxonomyRepository interface {
	SetTags(ctx context.Context, articleID int64, tags []string) error
	SetEntities(ctx context.Context, articleID int64, entities []Entity) error
	SetTopics(ctx context.Context, articleID int64, topics []TopicScore) error
}

// Entity is a named entity extracted by the summarizer.
type Entity struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

// TopicScore is a topic label with its relevance score.
type TopicScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// HistoryRepository tracks extraction passes over source files.
type HistoryRepository interface {
	Upsert(ctx context.Context, h *core.ProcessingHistory) error
	// Stats aggregates the last N days of history. Days is parameterized.
	Stats(ctx context.Context, days int) (*HistoryStats, error)
}

// HistoryStats is the aggregate view over processing history.
type HistoryStats struct {
	TotalFound      int              `json:"total_found"`
	TotalNew        int              `json:"total_new"`
	TotalDuplicates int              `json:"total_duplicates"`
	Daily           []DailyHistoryRow `json:"daily"`
}

// DailyHistoryRow is one day/source aggregate of processing history.
type DailyHistoryRow struct {
	DateProcessed time.Time `json:"date_processed"`
	SourceType    string    `json:"source_type"`
	Found         int       `json:"articles_found"`
	New           int       `json:"articles_new"`
	Duplicates    int       `json:"articles_duplicate"`
}

// MetricsRepository runs the analytics aggregation and trending SQL.
type MetricsRepository interface {
	AggregateDaily(ctx context.Context, day time.Time) error
	ComputeTrending(ctx context.Context, day time.Time, window int) error
	ComputeForecasts(ctx context.Context, kind string, topN, horizon int) error
	Trending(ctx context.Context, day time.Time, limit int) ([]core.TrendingItem, error)
}

// TokenRepository stores provider OAuth tokens.
type TokenRepository interface {
	Upsert(ctx context.Context, token *core.OAuthToken) error
	Get(ctx context.Context, provider, account string) (*core.OAuthToken, error)
}
