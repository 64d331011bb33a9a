package core

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// SourceType identifies where an article came from.
const (
	SourcePDF      = "pdf"
	SourceHTML     = "html"
	SourceReddit   = "reddit"
	SourceOSINT    = "osint"
	SourceScanner  = "scanner"
	SourceFacebook = "facebook"
)

// Article is the canonical extracted unit. Exactly one row exists per
// content hash; duplicate extractions merge into the existing row.
type Article struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	ContentHash   string            `json:"content_hash"`
	URL           string            `json:"url,omitempty"`
	SourceType    string            `json:"source_type"`
	SourceURL     string            `json:"source_url,omitempty"`
	SourceFile    string            `json:"source_file,omitempty"`
	PageNumber    int               `json:"page_number,omitempty"`
	ColumnNumber  int               `json:"column_number,omitempty"`
	Section       string            `json:"section,omitempty"`
	Author        string            `json:"author,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	WordCount     int               `json:"word_count"`
	DatePublished *time.Time        `json:"date_published,omitempty"`
	DateExtracted time.Time         `json:"date_extracted"`
	DateCreated   time.Time         `json:"date_created,omitempty"`
	DateUpdated   time.Time         `json:"date_updated,omitempty"`
	Status        Status            `json:"processing_status"`
	RawHTML       string            `json:"raw_html,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	LocationName  string            `json:"location_name,omitempty"`
	LocationLat   *float64          `json:"location_lat,omitempty"`
	LocationLon   *float64          `json:"location_lon,omitempty"`
	EventDates    []map[string]any  `json:"event_dates,omitempty"`
}

// Summary is the LLM artifact for an article. One row per (article, type).
type Summary struct {
	ID               int64     `json:"id"`
	ArticleID        int64     `json:"article_id"`
	SummaryType      string    `json:"summary_type"` // "brief" for the pipeline default
	SummaryText      string    `json:"summary_text"`
	KeyPoints        []string  `json:"key_points,omitempty"`
	Sentiment        string    `json:"sentiment,omitempty"`
	ConfidenceScore  float64   `json:"confidence_score,omitempty"`
	ModelUsed        string    `json:"model_used"`
	TokensUsed       int       `json:"tokens_used"`
	GenerationTimeMs int64     `json:"generation_time_ms"`
	DateCreated      time.Time `json:"date_created,omitempty"`
}

// ArticleEvent is a calendar event mined from article text. Events are
// child rows of their article and are regenerated wholesale on update.
type ArticleEvent struct {
	ID           int64          `json:"id"`
	ArticleID    int64          `json:"article_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	LocationName string         `json:"location_name,omitempty"`
	LocationMeta map[string]any `json:"location_meta,omitempty"`
}

// ProcessingHistory records one extraction pass over one source file.
type ProcessingHistory struct {
	ID               int64     `json:"id"`
	DateProcessed    time.Time `json:"date_processed"`
	SourceType       string    `json:"source_type"`
	SourceIdentifier string    `json:"source_identifier"`
	ArticlesFound    int       `json:"articles_found"`
	ArticlesNew      int       `json:"articles_new"`
	ArticlesDup      int       `json:"articles_duplicate"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
}

// Metric kinds aggregated per day.
const (
	KindSection     = "section"
	KindPublication = "publication"
	KindTag         = "tag"
	KindTopic       = "topic"
	KindEntity      = "entity"
)

// DailyMetric is one (date, kind, key) aggregate row.
type DailyMetric struct {
	MetricDate time.Time `json:"metric_date"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	Count      int       `json:"count"`
	SumScore   float64   `json:"sum_score"`
}

// TrendingItem is the z-score result for a (date, kind, key).
type TrendingItem struct {
	MetricDate time.Time      `json:"metric_date"`
	Kind       string         `json:"kind"`
	Key        string         `json:"key"`
	Score      float64        `json:"score"`
	ZScore     float64        `json:"zscore"`
	Delta      float64        `json:"delta"`
	WinSize    int            `json:"win_size"`
	Details    map[string]any `json:"details,omitempty"`
}

// ForecastPoint is one day of a baseline forecast.
type ForecastPoint struct {
	Date string  `json:"date"`
	YHat float64 `json:"yhat"`
}

// TrendForecast holds a horizon of forecast points for one key.
type TrendForecast struct {
	DateGenerated time.Time       `json:"date_generated"`
	Kind          string          `json:"kind"`
	Key           string          `json:"key"`
	HorizonDays   int             `json:"horizon_days"`
	Forecast      []ForecastPoint `json:"forecast"`
}

// OAuthToken stores a provider token pair, one row per (provider, account).
type OAuthToken struct {
	Provider     string     `json:"provider"`
	Account      string     `json:"account"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// HashContent computes the dedup key for an article: md5 of title + content.
func HashContent(title, content string) string {
	sum := md5.Sum([]byte(title + content))
	return hex.EncodeToString(sum[:])
}

// CountWords returns the whitespace-separated token count of s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
