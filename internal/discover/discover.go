// Package discover enumerates the pages of an e-edition for a (date,
// publication) pair. It is pure HTML parsing over a session.PageFetcher and
// never mutates storage.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"swvanews/internal/core"
	"swvanews/internal/logger"
	"swvanews/internal/session"
)

// Publication maps a configured publication name onto the remote site.
type Publication struct {
	Name     string
	Slug     string // cache-key slug, [a-z0-9-]+
	SitePath string // path under the e-edition root
}

var publicationAliases = map[string]Publication{
	"smyth_county":      {Name: "smyth_county", Slug: "smyth-county", SitePath: "smyth_county"},
	"smyth":             {Name: "smyth_county", Slug: "smyth-county", SitePath: "smyth_county"},
	"washington_county": {Name: "washington_county", Slug: "washington-county", SitePath: "washington_county"},
	"wythe_county":      {Name: "wythe_county", Slug: "wythe-county", SitePath: "wythe_county"},
	"bristol":           {Name: "bristol", Slug: "bristol", SitePath: "bristol"},
}

const defaultPublication = "smyth_county"

// ResolvePublication maps a publication name through the alias table,
// falling back to the default publication.
func ResolvePublication(name string) Publication {
	key := strings.ToLower(strings.TrimSpace(name))
	if pub, ok := publicationAliases[key]; ok {
		return pub
	}
	if key != "" {
		// Unknown names become a slug directly so new publications work
		// without a table entry.
		slug := strings.ReplaceAll(key, "_", "-")
		if slugPattern.MatchString(slug) {
			return Publication{Name: key, Slug: slug, SitePath: key}
		}
	}
	return publicationAliases[defaultPublication]
}

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

var (
	pageNumPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)page\s*[a-z]?(\d+)`),
		regexp.MustCompile(`(?i)\bp[a-z]?(\d+)`),
		regexp.MustCompile(`(\d+)`),
	}
	totalPagesPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)of\s+(\d+)`),
		regexp.MustCompile(`/\s*(\d+)`),
		regexp.MustCompile(`(?i)total:\s*(\d+)`),
	}
	indexAnchorPattern = regexp.MustCompile(`(?i)^page\s*[a-z]?\d+`)
)

var knownSections = []string{
	"local", "sports", "opinion", "business", "obituaries",
	"classifieds", "entertainment", "news", "editorial",
}

// Discoverer finds edition pages through an authenticated fetcher.
type Discoverer struct {
	fetcher session.PageFetcher
	baseURL string
}

// New builds a discoverer rooted at the e-edition base URL.
func New(fetcher session.PageFetcher, baseURL string) *Discoverer {
	return &Discoverer{fetcher: fetcher, baseURL: baseURL}
}

// Discover enumerates the pages for one edition date. Strategies run in
// priority order and the first one yielding at least one page wins.
func (d *Discoverer) Discover(ctx context.Context, editionDate time.Time, publication string) (*core.Edition, error) {
	pub := ResolvePublication(publication)
	indexURL := d.indexURL(pub)

	result, err := d.fetcher.Fetch(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch edition index: %w", err)
	}
	if result.StatusCode != 200 {
		return nil, fmt.Errorf("edition index returned status %d", result.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse edition index: %w", err)
	}

	pages := d.indexAnchorPages(doc, indexURL)
	if len(pages) == 0 {
		pages = d.pdfAnchorPages(doc, indexURL)
	}
	if len(pages) == 0 {
		pages = d.thumbnailPages(doc, indexURL)
	}
	if len(pages) == 0 {
		pages = d.iframePages(ctx, doc, indexURL)
	}
	if len(pages) == 0 {
		pages = d.synthesizedPages(doc, indexURL)
	}
	if len(pages) == 0 {
		logger.Warn("No edition pages found, falling back to index page", "url", indexURL)
		pages = []core.EditionPage{{URL: indexURL, PageNumber: 1, Format: core.FormatHTML}}
	}

	pages = dedupeByURL(pages)
	logger.Info("Edition discovered",
		"date", editionDate.Format("2006-01-02"),
		"publication", pub.Name,
		"pages", len(pages))

	return &core.Edition{
		Date:        editionDate,
		Publication: pub.Name,
		BaseURL:     indexURL,
		Pages:       pages,
		TotalPages:  len(pages),
	}, nil
}

func (d *Discoverer) indexURL(pub Publication) string {
	base := strings.TrimRight(d.baseURL, "/")
	if strings.Contains(base, pub.SitePath) {
		return base + "/"
	}
	// Base points at the e-edition root; append the publication path.
	if idx := strings.Index(base, "/eedition"); idx >= 0 {
		base = base[:idx] + "/eedition"
	}
	return base + "/" + pub.SitePath + "/"
}

// indexAnchorPages parses "Page A1"-style index links.
func (d *Discoverer) indexAnchorPages(doc *goquery.Document, indexURL string) []core.EditionPage {
	var pages []core.EditionPage
	doc.Find("a").Each(func(i int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if !indexAnchorPattern.MatchString(text) {
			return
		}
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := absoluteURL(indexURL, href)
		pages = append(pages, core.EditionPage{
			URL:        abs,
			PageNumber: extractPageNumber(text, abs, len(pages)+1),
			Section:    extractSection(text, abs),
			Title:      text,
			Format:     formatForURL(abs),
		})
	})
	return pages
}

// pdfAnchorPages harvests direct PDF download links.
func (d *Discoverer) pdfAnchorPages(doc *goquery.Document, indexURL string) []core.EditionPage {
	var pages []core.EditionPage
	doc.Find("a[href*='.pdf']").Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := absoluteURL(indexURL, href)
		text := strings.TrimSpace(sel.Text())
		pages = append(pages, core.EditionPage{
			URL:        abs,
			PageNumber: extractPageNumber(text, abs, len(pages)+1),
			Section:    extractSection(text, abs),
			Title:      text,
			Format:     core.FormatPDF,
		})
	})
	return pages
}

// thumbnailPages parses a thumbnail grid of page previews.
func (d *Discoverer) thumbnailPages(doc *goquery.Document, indexURL string) []core.EditionPage {
	var pages []core.EditionPage
	doc.Find("[class*='thumb'] a, .page-thumbnail a").Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := absoluteURL(indexURL, href)
		label := strings.TrimSpace(sel.AttrOr("title", sel.AttrOr("alt", "")))
		pages = append(pages, core.EditionPage{
			URL:        abs,
			PageNumber: extractPageNumber(label, abs, len(pages)+1),
			Section:    extractSection(label, abs),
			Title:      label,
			Format:     formatForURL(abs),
		})
	})
	return pages
}

// iframePages recurses one level into a viewer iframe.
func (d *Discoverer) iframePages(ctx context.Context, doc *goquery.Document, indexURL string) []core.EditionPage {
	src, ok := doc.Find("iframe[src]").First().Attr("src")
	if !ok || src == "" {
		return nil
	}
	frameURL := absoluteURL(indexURL, src)
	result, err := d.fetcher.Fetch(ctx, frameURL)
	if err != nil || result.StatusCode != 200 {
		logger.Warn("Viewer iframe fetch failed", "url", frameURL)
		return nil
	}
	frameDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return nil
	}

	pages := d.indexAnchorPages(frameDoc, frameURL)
	if len(pages) == 0 {
		pages = d.pdfAnchorPages(frameDoc, frameURL)
	}
	if len(pages) == 0 {
		pages = d.synthesizedPages(frameDoc, frameURL)
	}
	return pages
}

// synthesizedPages reads a page-count indicator and constructs page URLs.
func (d *Discoverer) synthesizedPages(doc *goquery.Document, indexURL string) []core.EditionPage {
	navText := doc.Find(".page-nav, .pagination, [class*='page']").First().Text()
	total := extractTotalPages(navText)
	if total <= 0 {
		return nil
	}
	pages := make([]core.EditionPage, 0, total)
	for n := 1; n <= total; n++ {
		pages = append(pages, core.EditionPage{
			URL:        fmt.Sprintf("%s?page=%d", indexURL, n),
			PageNumber: n,
			Format:     core.FormatHTML,
		})
	}
	return pages
}

func extractPageNumber(text, pageURL string, fallback int) int {
	for _, pattern := range pageNumPatterns {
		if m := pattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
		if m := pattern.FindStringSubmatch(strings.ToLower(pageURL)); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return fallback
}

func extractSection(text, pageURL string) string {
	textLower := strings.ToLower(text)
	urlLower := strings.ToLower(pageURL)
	for _, section := range knownSections {
		if strings.Contains(textLower, section) || strings.Contains(urlLower, section) {
			return core.NormalizeSection(section)
		}
	}
	return ""
}

func extractTotalPages(navText string) int {
	for _, pattern := range totalPagesPatterns {
		if m := pattern.FindStringSubmatch(strings.ToLower(navText)); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return 0
}

func formatForURL(pageURL string) string {
	if strings.Contains(strings.ToLower(pageURL), ".pdf") {
		return core.FormatPDF
	}
	return core.FormatHTML
}

func absoluteURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// dedupeByURL keeps the first-seen page per URL, preserving order.
func dedupeByURL(pages []core.EditionPage) []core.EditionPage {
	seen := make(map[string]bool, len(pages))
	out := pages[:0]
	for _, p := range pages {
		if seen[p.URL] {
			continue
		}
		seen[p.URL] = true
		out = append(out, p)
	}
	return out
}
