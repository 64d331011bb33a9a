package extract

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"swvanews/internal/cache"
	"swvanews/internal/core"
	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

// blobStore is the object-cache surface the processor reads from.
type blobStore interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Stat(ctx context.Context, key string) (*cache.BlobMeta, error)
}

// FileResult is the extraction outcome for one cached blob.
type FileResult struct {
	Key           string `json:"key"`
	Format        string `json:"format"`
	ArticlesFound int    `json:"articles_found"`
	ArticlesNew   int    `json:"articles_new"`
	ArticlesDup   int    `json:"articles_duplicate"`
	Error         string `json:"error,omitempty"`
}

// ProcessResult aggregates one extraction pass over an edition date.
type ProcessResult struct {
	EditionDate   string       `json:"edition_date"`
	FilesTotal    int          `json:"files_total"`
	FilesFailed   int          `json:"files_failed"`
	ArticlesFound int          `json:"articles_found"`
	ArticlesNew   int          `json:"articles_new"`
	ArticlesDup   int          `json:"articles_duplicate"`
	Files         []FileResult `json:"files"`
}

// Processor drives extraction for cached edition pages: it routes each blob
// to the right extractor and upserts the results into the article store.
type Processor struct {
	store    blobStore
	articles persistence.ArticleRepository
	history  persistence.HistoryRepository
	pdf      *PDFExtractor
	html     *HTMLExtractor
	now      func() time.Time
}

// NewProcessor wires a processor with the default extractors.
func NewProcessor(store blobStore, articles persistence.ArticleRepository, history persistence.HistoryRepository) *Processor {
	return &Processor{
		store:    store,
		articles: articles,
		history:  history,
		pdf:      NewPDFExtractor(),
		html:     NewHTMLExtractor(),
		now:      time.Now,
	}
}

// ProcessDate extracts every cached page blob for one edition date. Per-file
// failures are recorded and skipped, never fatal for the date.
func (p *Processor) ProcessDate(ctx context.Context, day time.Time) (*ProcessResult, error) {
	prefix := day.Format("2006-01-02") + "/"
	keys, err := p.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached pages for %s: %w", prefix, err)
	}

	result := &ProcessResult{EditionDate: day.Format("2006-01-02")}
	logger.Info("Starting extraction pass", "date", result.EditionDate, "files", len(keys))

	for _, key := range keys {
		if strings.HasSuffix(key, ".json") {
			continue // sidecar metadata, not page content
		}
		fr := p.processFile(ctx, key)
		result.Files = append(result.Files, fr)
		result.FilesTotal++
		result.ArticlesFound += fr.ArticlesFound
		result.ArticlesNew += fr.ArticlesNew
		result.ArticlesDup += fr.ArticlesDup
		if fr.Error != "" {
			result.FilesFailed++
		}
	}

	logger.Info("Extraction pass complete",
		"date", result.EditionDate,
		"files", result.FilesTotal,
		"failed", result.FilesFailed,
		"found", result.ArticlesFound,
		"new", result.ArticlesNew,
		"duplicate", result.ArticlesDup)
	return result, nil
}

func (p *Processor) processFile(ctx context.Context, key string) FileResult {
	start := p.now()
	fr := FileResult{Key: key}

	content, err := p.store.Get(ctx, key)
	if err != nil {
		fr.Error = err.Error()
		p.recordHistory(ctx, key, fr, "", start)
		return fr
	}

	meta, err := p.store.Stat(ctx, key)
	if err != nil {
		logger.Warn("No sidecar metadata for cached page", "key", key, "error", err.Error())
		meta = &cache.BlobMeta{}
	}

	format := DetectFormat(key, content)
	fr.Format = format

	var articles []core.Article
	switch format {
	case core.FormatPDF:
		articles, err = p.extractPDF(content, key, meta)
	default:
		articles, err = p.extractHTML(content, key, meta)
	}
	if err != nil {
		fr.Error = err.Error()
		logger.Error("Extraction failed", err, "key", key, "format", format)
		p.recordHistory(ctx, key, fr, format, start)
		return fr
	}

	for i := range articles {
		_, created, err := p.articles.InsertOrMerge(ctx, &articles[i])
		if err != nil {
			fr.Error = err.Error()
			logger.Error("Failed to store article", err, "key", key, "title", articles[i].Title)
			continue
		}
		fr.ArticlesFound++
		if created {
			fr.ArticlesNew++
		} else {
			fr.ArticlesDup++
		}
	}

	p.recordHistory(ctx, key, fr, format, start)
	return fr
}

func (p *Processor) extractPDF(content []byte, key string, meta *cache.BlobMeta) ([]core.Article, error) {
	candidates, err := p.pdf.ExtractFromBytes(content, key)
	if err != nil {
		return nil, err
	}
	now := p.now()
	articles := make([]core.Article, 0, len(candidates))
	for _, c := range candidates {
		if c.Section == "" {
			c.Section = core.NormalizeSection(meta.Section)
		}
		if meta.PageNumber > 0 {
			c.PageNumber = meta.PageNumber
		}
		a := c.ToArticle(now)
		a.SourceURL = meta.URL
		applyPublication(&a, meta)
		articles = append(articles, a)
	}
	return articles, nil
}

func (p *Processor) extractHTML(content []byte, key string, meta *cache.BlobMeta) ([]core.Article, error) {
	sourceURL := meta.URL
	if sourceURL == "" {
		sourceURL = key
	}
	candidates, err := p.html.ExtractFromHTML(string(content), sourceURL)
	if err != nil {
		return nil, err
	}
	now := p.now()
	articles := make([]core.Article, 0, len(candidates))
	for _, c := range candidates {
		if c.Section == "" {
			c.Section = core.NormalizeSection(meta.Section)
		}
		c.SourceFile = key
		a := c.ToArticle(now)
		if meta.PageNumber > 0 {
			a.PageNumber = meta.PageNumber
		}
		applyPublication(&a, meta)
		articles = append(articles, a)
	}
	return articles, nil
}

func applyPublication(a *core.Article, meta *cache.BlobMeta) {
	if meta.Publication == "" {
		return
	}
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata["publication"] = meta.Publication
}

func (p *Processor) recordHistory(ctx context.Context, key string, fr FileResult, sourceType string, start time.Time) {
	if p.history == nil {
		return
	}
	if sourceType == "" {
		sourceType = core.FormatHTML
	}
	status := "completed"
	if fr.Error != "" {
		status = "failed"
	}
	h := &core.ProcessingHistory{
		DateProcessed:    p.now().Truncate(24 * time.Hour),
		SourceType:       sourceType,
		SourceIdentifier: key,
		ArticlesFound:    fr.ArticlesFound,
		ArticlesNew:      fr.ArticlesNew,
		ArticlesDup:      fr.ArticlesDup,
		Status:           status,
		ErrorMessage:     fr.Error,
		ProcessingTimeMs: p.now().Sub(start).Milliseconds(),
	}
	if err := p.history.Upsert(ctx, h); err != nil {
		logger.Warn("Failed to record processing history", "key", key, "error", err.Error())
	}
}

// DetectFormat classifies a cached blob: extension first, then magic bytes.
// Anything that is not recognizably a PDF is treated as HTML.
func DetectFormat(key string, content []byte) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return core.FormatPDF
	case ".html", ".htm":
		return core.FormatHTML
	}
	if len(content) >= 5 && string(content[:5]) == "%PDF-" {
		return core.FormatPDF
	}
	return core.FormatHTML
}
