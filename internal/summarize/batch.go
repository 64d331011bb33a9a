// Package summarize runs the batched LLM summarization pass over extracted
// articles: one transaction per article writes the summary, taxonomy, and
// mined events, then flips the status.
package summarize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"swvanews/internal/core"
	"swvanews/internal/events"
	"swvanews/internal/llm"
	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

const (
	DefaultBatchSize  = 10
	DefaultMaxBatches = 10
	DefaultMaxRetries = 3

	launchStagger = 100 * time.Millisecond
	batchPause    = time.Second
)

// Store is the persistence surface the processor needs.
type Store interface {
	Articles() persistence.ArticleRepository
	BeginTx(ctx context.Context) (persistence.Transaction, error)
}

// ChatBackend issues one chat completion against a named model.
type ChatBackend interface {
	Chat(ctx context.Context, model, system, user string) (*llm.ChatResult, error)
}

// Stats aggregates one processor run.
type Stats struct {
	BatchesProcessed int       `json:"batches_processed"`
	TotalArticles    int       `json:"total_articles"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	Errors           int       `json:"errors"`
	TokensUsed       int       `json:"tokens_used"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
}

// Failure reports whether the run should exit nonzero: hard errors, or
// every attempted article failed.
func (s *Stats) Failure() bool {
	return s.Errors > 0 || (s.Failed > 0 && s.Successful == 0)
}

// BatchProcessor pulls extracted articles and summarizes them in batches.
type BatchProcessor struct {
	store      Store
	backend    ChatBackend
	failover   *llm.ModelFailover
	events     *events.Parser
	batchSize  int
	maxBatches int
	maxRetries int
	sleep      func(time.Duration)
}

// Option tweaks a BatchProcessor.
type Option func(*BatchProcessor)

// WithBatchSize overrides the per-batch article count.
func WithBatchSize(n int) Option {
	return func(p *BatchProcessor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMaxBatches overrides the batch cap for one run.
func WithMaxBatches(n int) Option {
	return func(p *BatchProcessor) {
		if n > 0 {
			p.maxBatches = n
		}
	}
}

// WithMaxRetries overrides the per-article attempt count.
func WithMaxRetries(n int) Option {
	return func(p *BatchProcessor) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// withSleep replaces the pacing sleeper in tests.
func withSleep(fn func(time.Duration)) Option {
	return func(p *BatchProcessor) { p.sleep = fn }
}

// NewBatchProcessor wires a processor over the given store and backend.
func NewBatchProcessor(store Store, backend ChatBackend, failover *llm.ModelFailover, opts ...Option) *BatchProcessor {
	p := &BatchProcessor{
		store:      store,
		backend:    backend,
		failover:   failover,
		events:     events.NewParser(),
		batchSize:  DefaultBatchSize,
		maxBatches: DefaultMaxBatches,
		maxRetries: DefaultMaxRetries,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes up to maxBatches batches of pending articles.
func (p *BatchProcessor) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now().UTC()}

	for batch := 0; batch < p.maxBatches; batch++ {
		articles, err := p.store.Articles().GetPending(ctx, core.StatusExtracted, p.batchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to fetch pending articles: %w", err)
		}
		if len(articles) == 0 {
			logger.Info("No more pending articles to process")
			break
		}

		logger.Info("Starting batch",
			"batch", batch+1, "max_batches", p.maxBatches, "articles", len(articles))
		p.processBatch(ctx, articles, stats)
		stats.BatchesProcessed++

		if batch < p.maxBatches-1 {
			p.sleep(batchPause)
		}
	}

	stats.EndTime = time.Now().UTC()
	logger.Info("Batch processing complete",
		"batches", stats.BatchesProcessed,
		"successful", stats.Successful,
		"failed", stats.Failed,
		"errors", stats.Errors,
		"tokens", stats.TokensUsed)
	return stats, nil
}

// processBatch summarizes one batch concurrently, staggering launches to
// spread load on the backend.
func (p *BatchProcessor) processBatch(ctx context.Context, articles []core.Article, stats *Stats) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range articles {
		if i > 0 {
			p.sleep(launchStagger)
		}
		wg.Add(1)
		go func(article core.Article) {
			defer wg.Done()
			tokens, err := p.processArticle(ctx, &article)
			mu.Lock()
			defer mu.Unlock()
			stats.TotalArticles++
			stats.TokensUsed += tokens
			if err != nil {
				stats.Failed++
				logger.Error("Failed to summarize article", err, "article_id", article.ID)
				return
			}
			stats.Successful++
		}(articles[i])
	}
	wg.Wait()
}

// processArticle runs the LLM call with retries and writes the result
// atomically.
func (p *BatchProcessor) processArticle(ctx context.Context, article *core.Article) (int, error) {
	start := time.Now()
	userPrompt := llm.BuildUserPrompt(article.Title, article.Section, article.DatePublished, article.Content)

	var result *llm.ChatResult
	var err error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		result, err = p.failover.Do(ctx, func(ctx context.Context, model string) (*llm.ChatResult, error) {
			return p.backend.Chat(ctx, model, llm.SystemPrompt, userPrompt)
		})
		if err == nil {
			break
		}
		logger.Warn("Summarization attempt failed",
			"article_id", article.ID, "attempt", attempt+1, "error", err.Error())
	}
	if err != nil {
		return 0, err
	}

	data, usedFallback := llm.ExtractJSONObject(result.Text)
	if usedFallback {
		logger.Warn("Using fallback parser for summarization response", "article_id", article.ID)
	}
	payload := llm.ParseSummaryPayload(data)
	if payload.Summary == "" {
		return result.TokensUsed, fmt.Errorf("model returned an empty summary for article %d", article.ID)
	}

	summary := &core.Summary{
		ArticleID:        article.ID,
		SummaryType:      "brief",
		SummaryText:      payload.Summary,
		KeyPoints:        payload.KeyPoints,
		Sentiment:        payload.Sentiment,
		ConfidenceScore:  payload.ConfidenceScore,
		ModelUsed:        result.Model,
		TokensUsed:       result.TokensUsed,
		GenerationTimeMs: time.Since(start).Milliseconds(),
	}

	if err := p.writeResult(ctx, article, summary, payload); err != nil {
		return result.TokensUsed, err
	}
	logger.Info("Summarized article",
		"article_id", article.ID, "model", result.Model, "tokens", result.TokensUsed)
	return result.TokensUsed, nil
}

// writeResult persists the summary, taxonomy, and events in one transaction
// and flips the article to summarized.
func (p *BatchProcessor) writeResult(ctx context.Context, article *core.Article, summary *core.Summary, payload llm.SummaryPayload) error {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.Summaries().Upsert(ctx, summary); err != nil {
		return err
	}
	if err := tx.Taxonomy().SetTags(ctx, article.ID, payload.Tags); err != nil {
		return err
	}
	entities := make([]persistence.Entity, 0, len(payload.Entities))
	for _, e := range payload.Entities {
		entities = append(entities, persistence.Entity{Name: e.Name, Kind: e.Kind})
	}
	if err := tx.Taxonomy().SetEntities(ctx, article.ID, entities); err != nil {
		return err
	}
	topics := make([]persistence.TopicScore, 0, len(payload.Topics))
	for _, label := range payload.Topics {
		topics = append(topics, persistence.TopicScore{Label: label, Score: payload.ConfidenceScore})
	}
	if err := tx.Taxonomy().SetTopics(ctx, article.ID, topics); err != nil {
		return err
	}
	if len(payload.EventDates) > 0 {
		if err := tx.Articles().SetEventDates(ctx, article.ID, payload.EventDates); err != nil {
			return err
		}
	}
	if mined := p.events.Extract(article.Content); len(mined) > 0 {
		if err := tx.Events().ReplaceForArticle(ctx, article.ID, mined); err != nil {
			return err
		}
	}
	if err := tx.Articles().UpdateStatus(ctx, article.ID, core.StatusSummarized); err != nil {
		return err
	}
	return tx.Commit()
}
