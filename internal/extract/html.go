package extract

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"swvanews/internal/core"
	"swvanews/internal/logger"
)

// HTMLExtractor finds the main article of a page plus any secondary article
// containers.
type HTMLExtractor struct {
	MinArticleWords int
	IncludeRawHTML  bool
}

// NewHTMLExtractor returns an extractor with the production thresholds.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{MinArticleWords: 10}
}

var articleContainerSelectors = []string{
	"article",
	".article",
	".post",
	".news-item",
	".story",
	"[class*='article']",
	"[class*='story']",
	".content-item",
}

var (
	titleSelectors   = []string{"h1", "h2", "h3", ".title", ".headline", ".article-title", "[class*='title']", "[class*='headline']"}
	authorSelectors  = []string{".author", ".byline", ".writer", "[class*='author']", "[class*='byline']", "[rel='author']"}
	dateSelectors    = []string{".date", ".published", ".timestamp", "[class*='date']", "[class*='time']"}
	sectionSelectors = []string{".section", ".category", ".topic", "[class*='section']", "[class*='category']"}

	bylinePrefixPattern = regexp.MustCompile(`(?i)^(by|author|written by)\s*:?\s*`)
	pageNamePattern     = regexp.MustCompile(`(?i)page_(\d+)`)
)

// ExtractFromHTML returns the page's articles: the main article first when
// one is found, then unique secondary containers, deduplicated by content
// hash.
func (e *HTMLExtractor) ExtractFromHTML(htmlContent, sourceURL string) ([]core.HtmlArticle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	var articles []core.HtmlArticle
	if main := e.mainArticle(doc, htmlContent, sourceURL); main != nil {
		articles = append(articles, *main)
	}
	articles = append(articles, e.secondaryArticles(doc, sourceURL)...)
	articles = dedupeArticles(articles)

	logger.Info("HTML extraction complete", "url", sourceURL, "articles", len(articles))
	return articles, nil
}

// mainArticle extracts the page's primary story from the dominant content
// container.
func (e *HTMLExtractor) mainArticle(doc *goquery.Document, htmlContent, sourceURL string) *core.HtmlArticle {
	container := doc.Find("article").First()
	if container.Length() == 0 {
		container = doc.Find("main").First()
	}
	if container.Length() == 0 {
		container = doc.Find("#content, .content, body").First()
	}
	if container.Length() == 0 {
		return nil
	}

	// Headings are title material, not body text. Dropping them here keeps
	// the main pass and the container pass hashing identically.
	clone := container.Clone()
	clone.Find("h1, h2, h3").Remove()
	content := cleanText(containerText(clone))
	if core.CountWords(content) < e.MinArticleWords {
		return nil
	}

	rawTitle := strings.TrimSpace(doc.Find("head title").First().Text())
	if rawTitle == "" {
		rawTitle, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	}
	if rawTitle == "" {
		rawTitle = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	var published *time.Time
	if iso, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if t, err := dateparse.ParseAny(iso); err == nil {
			published = &t
		}
	}
	if published == nil {
		published = elementDate(container)
	}

	author, _ := doc.Find(`meta[name="author"]`).Attr("content")
	if author == "" {
		author = elementAuthor(container)
	}

	var tags []string
	if keywords, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		for _, kw := range strings.Split(keywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				tags = append(tags, kw)
			}
		}
	}
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, sel *goquery.Selection) {
		if tag, ok := sel.Attr("content"); ok && strings.TrimSpace(tag) != "" {
			tags = append(tags, strings.TrimSpace(tag))
		}
	})

	section := elementSection(container)
	if section == "" {
		section = sectionFromURL(sourceURL)
	}

	article := &core.HtmlArticle{
		Title:         ResolveTitle(rawTitle, content, sourceURL),
		Content:       content,
		URL:           sourceURL,
		Author:        strings.TrimSpace(author),
		Section:       section,
		Tags:          tags,
		DatePublished: published,
	}
	if e.IncludeRawHTML {
		article.RawHTML = htmlContent
	}
	return article
}

// secondaryArticles scans the common article-container selectors, dropping
// containers nested inside another candidate.
func (e *HTMLExtractor) secondaryArticles(doc *goquery.Document, sourceURL string) []core.HtmlArticle {
	var candidates []*goquery.Selection
	seen := make(map[*html.Node]bool)
	for _, selector := range articleContainerSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			node := sel.Get(0)
			if !seen[node] {
				seen[node] = true
				candidates = append(candidates, sel)
			}
		})
	}

	var articles []core.HtmlArticle
	for _, sel := range candidates {
		if hasCandidateAncestor(sel, seen) {
			continue
		}
		if a := e.articleFromElement(sel, sourceURL); a != nil {
			articles = append(articles, *a)
		}
	}
	return articles
}

func (e *HTMLExtractor) articleFromElement(sel *goquery.Selection, sourceURL string) *core.HtmlArticle {
	rawTitle := ""
	for _, selector := range titleSelectors {
		title := strings.TrimSpace(sel.Find(selector).First().Text())
		if len(title) > 5 {
			rawTitle = truncate(title, 200)
			break
		}
	}

	// Drop headings so the title does not duplicate into the body.
	clone := sel.Clone()
	clone.Find("h1, h2, h3").Remove()
	content := cleanText(containerText(clone))
	if core.CountWords(content) < e.MinArticleWords {
		return nil
	}

	section := elementSection(sel)
	if section == "" {
		section = sectionFromURL(sourceURL)
	}

	article := &core.HtmlArticle{
		Title:         ResolveTitle(rawTitle, content, sourceURL),
		Content:       content,
		URL:           sourceURL,
		Author:        elementAuthor(sel),
		Section:       section,
		DatePublished: elementDate(sel),
	}
	if e.IncludeRawHTML {
		if raw, err := goquery.OuterHtml(sel); err == nil {
			article.RawHTML = raw
		}
	}
	return article
}

// ResolveTitle picks a usable title: the raw title unless empty or a known
// placeholder, then the first content line of at least three words, then a
// name derived from the source URL, then "Untitled Article".
func ResolveTitle(rawTitle, content, sourceURL string) string {
	title := strings.TrimSpace(rawTitle)
	if title != "" && !strings.HasPrefix(strings.ToLower(title), "untitled") {
		return truncate(title, 200)
	}

	for _, lineText := range strings.Split(content, "\n") {
		lineText = strings.TrimSpace(lineText)
		if len(strings.Fields(lineText)) >= 3 {
			if len(lineText) > 200 {
				return lineText[:200] + "..."
			}
			return lineText
		}
	}

	if sourceURL != "" {
		name := sourceURL
		if u, err := url.Parse(sourceURL); err == nil && u.Path != "" {
			name = path.Base(u.Path)
		}
		if m := pageNamePattern.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return "Page " + strconv.Itoa(n)
			}
		}
		pretty := strings.NewReplacer("_", " ", "-", " ").Replace(name)
		pretty = strings.TrimSpace(pretty)
		if pretty != "" && pretty != "/" {
			return truncate(strings.Title(pretty), 200)
		}
	}
	return "Untitled Article"
}

func elementAuthor(sel *goquery.Selection) string {
	for _, selector := range authorSelectors {
		author := strings.TrimSpace(sel.Find(selector).First().Text())
		if author != "" {
			author = bylinePrefixPattern.ReplaceAllString(author, "")
			return truncate(strings.TrimSpace(author), 100)
		}
	}
	return ""
}

func elementDate(sel *goquery.Selection) *time.Time {
	var found *time.Time
	sel.Find("[datetime]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if iso, ok := el.Attr("datetime"); ok {
			if t, err := dateparse.ParseAny(iso); err == nil {
				found = &t
				return false
			}
		}
		return true
	})
	if found != nil {
		return found
	}

	for _, selector := range dateSelectors {
		dateText := strings.TrimSpace(sel.Find(selector).First().Text())
		if dateText == "" {
			continue
		}
		if t, err := dateparse.ParseAny(dateText); err == nil {
			return &t
		}
	}
	return nil
}

func elementSection(sel *goquery.Selection) string {
	for _, selector := range sectionSelectors {
		section := strings.TrimSpace(sel.Find(selector).First().Text())
		if section != "" {
			return truncate(section, 50)
		}
	}
	return ""
}

// sectionFromURL uses the first path segment as a section hint when the URL
// has at least two segments.
func sectionFromURL(sourceURL string) string {
	if sourceURL == "" {
		return ""
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 2 {
		return strings.Title(strings.ReplaceAll(parts[0], "-", " "))
	}
	return ""
}

// containerText extracts visible text, skipping script/style/nav chrome.
func containerText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("script, style, nav, header, footer, aside").Remove()
	return clone.Text()
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	s = spaceRunPattern.ReplaceAllString(s, " ")
	return s
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func hasCandidateAncestor(sel *goquery.Selection, candidates map[*html.Node]bool) bool {
	for parent := sel.Parent(); parent.Length() > 0; parent = parent.Parent() {
		if candidates[parent.Get(0)] {
			return true
		}
	}
	return false
}

func dedupeArticles(articles []core.HtmlArticle) []core.HtmlArticle {
	seen := make(map[string]bool, len(articles))
	out := articles[:0]
	for _, a := range articles {
		hash := core.HashContent(a.Title, a.Content)
		if seen[hash] {
			continue
		}
		seen[hash] = true
		out = append(out, a)
	}
	return out
}
