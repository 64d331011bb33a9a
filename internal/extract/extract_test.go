package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"swvanews/internal/cache"
	"swvanews/internal/core"
	"swvanews/internal/persistence"
)

func TestSegmentColumnsSplitsOnThreshold(t *testing.T) {
	e := NewPDFExtractor()
	blocks := []core.TextBlock{
		{Text: "left top", X0: 72, Y0: 700, Page: 1},
		{Text: "left bottom", X0: 72, Y0: 650, Page: 1},
		{Text: "near left", X0: 119, Y0: 600, Page: 1}, // 47pt jump, same column
		{Text: "right top", X0: 320, Y0: 700, Page: 1},
	}

	columns := e.SegmentColumns(blocks)
	if len(columns) != 2 {
		t.Fatalf("columns = %d, want 2", len(columns))
	}
	if len(columns[0]) != 3 {
		t.Errorf("left column blocks = %d, want 3 (47pt gap joins left)", len(columns[0]))
	}
	if columns[0][0].Text != "left top" {
		t.Errorf("column must read top-down, first block %q", columns[0][0].Text)
	}
	if columns[1][0].Text != "right top" {
		t.Errorf("right column first block = %q", columns[1][0].Text)
	}
}

func TestSegmentColumnsKeepsPagesApart(t *testing.T) {
	e := NewPDFExtractor()
	blocks := []core.TextBlock{
		{Text: "p1", X0: 72, Y0: 700, Page: 1},
		{Text: "p2", X0: 72, Y0: 700, Page: 2},
	}
	columns := e.SegmentColumns(blocks)
	if len(columns) != 2 {
		t.Fatalf("columns = %d, want one per page", len(columns))
	}
}

func TestIsLikelyTitle(t *testing.T) {
	e := NewPDFExtractor()
	tests := []struct {
		name  string
		block core.TextBlock
		avg   float64
		want  bool
	}{
		{"large font", core.TextBlock{Text: "a modest headline here", FontSize: 18}, 12, true},
		{"body font", core.TextBlock{Text: "just some ordinary sentence text in the column", FontSize: 12}, 12, false},
		{"all caps short", core.TextBlock{Text: "COUNCIL APPROVES BUDGET", FontSize: 12}, 12, true},
		{"title case no period", core.TextBlock{Text: "Fire Department Hosts Open House", FontSize: 12}, 12, true},
		{"title case with period", core.TextBlock{Text: "The quick brown fox jumped over it.", FontSize: 12}, 12, false},
		{"dateline", core.TextBlock{Text: "MARION: county seat news follows", FontSize: 12}, 12, true},
	}
	for _, tt := range tests {
		if got := e.isLikelyTitle(tt.block, tt.avg); got != tt.want {
			t.Errorf("%s: isLikelyTitle = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestArticlesFromColumnCutsAtTitles(t *testing.T) {
	e := NewPDFExtractor()
	body1 := "The county board of supervisors voted on Tuesday to approve the annual operating budget for the coming fiscal year."
	body2 := "Firefighters from three stations responded to a brush fire along the interstate late on Monday evening near mile marker fifty."
	column := []core.TextBlock{
		{Text: "BOARD PASSES BUDGET", FontSize: 18, Y0: 700, Page: 1},
		{Text: body1, FontSize: 12, Y0: 650, Page: 1},
		{Text: "CREWS CONTAIN BRUSH FIRE", FontSize: 18, Y0: 600, Page: 1},
		{Text: body2, FontSize: 12, Y0: 550, Page: 1},
	}

	articles := e.articlesFromColumn(column, "2025-06-01/smyth-county_page_001_abcd1234.pdf")
	if len(articles) != 2 {
		t.Fatalf("articles = %d, want 2", len(articles))
	}
	if articles[0].Title != "BOARD PASSES BUDGET" {
		t.Errorf("first title = %q", articles[0].Title)
	}
	if !strings.Contains(articles[1].Content, "brush fire") {
		t.Errorf("second article content = %q", articles[1].Content)
	}
}

func TestBuildArticleRejectsShortContent(t *testing.T) {
	e := NewPDFExtractor()
	_, ok := e.buildArticle([]core.TextBlock{{Text: "too few words here"}}, "A Title", "f.pdf")
	if ok {
		t.Error("content under the word minimum must be rejected")
	}
}

func TestBuildArticleTitleFallsBackToFirstLine(t *testing.T) {
	e := NewPDFExtractor()
	long := strings.Repeat("word ", 30)
	a, ok := e.buildArticle([]core.TextBlock{{Text: long}}, "", "f.pdf")
	if !ok {
		t.Fatal("expected an article")
	}
	if !strings.HasSuffix(a.Title, "...") || len(a.Title) != 103 {
		t.Errorf("fallback title = %q (len %d), want 100 chars plus ellipsis", a.Title, len(a.Title))
	}
}

func TestExtractFromHTMLMainAndSecondary(t *testing.T) {
	html := `<html><head>
		<title>Council Meeting Recap</title>
		<meta name="author" content="Jane Reporter">
		<meta property="article:published_time" content="2025-06-01T12:00:00Z">
	</head><body>
		<article>
			<h1>Council Meeting Recap</h1>
			<p>The town council met on Monday evening to discuss the sidewalk repair plan and the upcoming fall festival schedule.</p>
		</article>
		<div class="news-item">
			<h2>Library Book Sale</h2>
			<span class="byline">By Sam Writer</span>
			<p>The friends of the library will hold their annual used book sale this Saturday from nine in the morning until two.</p>
		</div>
	</body></html>`

	e := NewHTMLExtractor()
	articles, err := e.ExtractFromHTML(html, "https://swvatoday.com/news/local/council.html")
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 2 {
		t.Fatalf("articles = %d, want main plus one secondary", len(articles))
	}

	main := articles[0]
	if main.Title != "Council Meeting Recap" {
		t.Errorf("main title = %q", main.Title)
	}
	if main.Author != "Jane Reporter" {
		t.Errorf("main author = %q", main.Author)
	}
	if main.DatePublished == nil || main.DatePublished.Format("2006-01-02") != "2025-06-01" {
		t.Errorf("main date = %v", main.DatePublished)
	}

	secondary := articles[1]
	if secondary.Title != "Library Book Sale" {
		t.Errorf("secondary title = %q", secondary.Title)
	}
	if secondary.Author != "Sam Writer" {
		t.Errorf("byline prefix not stripped: %q", secondary.Author)
	}
	if secondary.Section != "News" {
		t.Errorf("section from URL = %q, want News", secondary.Section)
	}
}

func TestExtractFromHTMLSkipsNestedContainers(t *testing.T) {
	html := `<html><body><div class="story">
		<h2>Outer Story Headline</h2>
		<p>Residents gathered downtown for the farmers market on Saturday morning under clear skies and a light breeze.</p>
		<div class="article"><p>nested fragment that must not become its own article row in the result set at all</p></div>
	</div></body></html>`

	articles, err := NewHTMLExtractor().ExtractFromHTML(html, "https://example.com/a/b")
	if err != nil {
		t.Fatal(err)
	}
	// The body fallback main article and the outer .story dedupe to one row.
	for _, a := range articles {
		if strings.HasPrefix(a.Content, "nested fragment") {
			t.Errorf("nested container extracted as its own article")
		}
	}
}

func TestExtractFromHTMLDeduplicates(t *testing.T) {
	block := `<div class="story"><h2>Same Headline Again</h2>
		<p>Identical body text repeated across two containers should collapse into a single extracted article every time.</p></div>`
	html := "<html><body>" + block + block + "</body></html>"

	articles, err := NewHTMLExtractor().ExtractFromHTML(html, "https://example.com/a/b")
	if err != nil {
		t.Fatal(err)
	}
	titles := 0
	for _, a := range articles {
		if a.Title == "Same Headline Again" {
			titles++
		}
	}
	if titles != 1 {
		t.Errorf("duplicate containers produced %d articles, want 1", titles)
	}
}

func TestResolveTitle(t *testing.T) {
	tests := []struct {
		name, raw, content, url, want string
	}{
		{"raw wins", "Real Headline", "body text", "", "Real Headline"},
		{"untitled falls through", "Untitled Document", "First line with three words\nmore", "", "First line with three words"},
		{"short lines skipped", "", "one two\nThe actual first sentence here", "", "The actual first sentence here"},
		{"page url", "", "x y", "https://example.com/scans/page_007.html", "Page 7"},
		{"pretty filename", "", "x y", "https://example.com/scans/front-section", "Front Section"},
		{"nothing", "", "", "", "Untitled Article"},
	}
	for _, tt := range tests {
		if got := ResolveTitle(tt.raw, tt.content, tt.url); got != tt.want {
			t.Errorf("%s: ResolveTitle = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		key     string
		content []byte
		want    string
	}{
		{"2025-06-01/x_page_001_ab.pdf", nil, core.FormatPDF},
		{"2025-06-01/x_page_001_ab.html", []byte("%PDF-1.4"), core.FormatHTML},
		{"2025-06-01/x_page_001_ab", []byte("%PDF-1.4 stream"), core.FormatPDF},
		{"2025-06-01/x_page_001_ab", []byte("<html></html>"), core.FormatHTML},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.key, tt.content); got != tt.want {
			t.Errorf("DetectFormat(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

// fakeBlobStore serves canned blobs for processor tests.
type fakeBlobStore struct {
	objects map[string][]byte
	meta    map[string]*cache.BlobMeta
}

func (f *fakeBlobStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	if data, ok := f.objects[key]; ok {
		return data, nil
	}
	return nil, cache.ErrNotCached
}

func (f *fakeBlobStore) Stat(_ context.Context, key string) (*cache.BlobMeta, error) {
	if m, ok := f.meta[key]; ok {
		return m, nil
	}
	return nil, cache.ErrNotCached
}

// fakeArticleRepo records upserts, reporting duplicates by content hash.
// Only InsertOrMerge is implemented.
type fakeArticleRepo struct {
	persistence.ArticleRepository
	seen   map[string]int64
	nextID int64
}

func (f *fakeArticleRepo) InsertOrMerge(_ context.Context, a *core.Article) (int64, bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]int64)
	}
	if id, ok := f.seen[a.ContentHash]; ok {
		return id, false, nil
	}
	f.nextID++
	f.seen[a.ContentHash] = f.nextID
	return f.nextID, true, nil
}

func TestProcessDateRoutesAndCounts(t *testing.T) {
	htmlKey := "2025-06-01/smyth-county_page_002_cdef5678.html"
	htmlBody := `<html><head><title>Market Opens</title></head><body><article>
		<p>The seasonal farmers market opened for the year on Saturday with two dozen vendors lining the main street downtown.</p>
	</article></body></html>`

	store := &fakeBlobStore{
		objects: map[string][]byte{
			htmlKey:            []byte(htmlBody),
			htmlKey + ".json":  []byte(`{}`),
			"2025-06-02/other": []byte("outside the date prefix"),
		},
		meta: map[string]*cache.BlobMeta{
			htmlKey: {URL: "https://swvatoday.com/eedition/p2.html", PageNumber: 2, Section: "local news"},
		},
	}
	repo := &fakeArticleRepo{}
	p := NewProcessor(store, repo, nil)

	result, err := p.ProcessDate(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if result.FilesTotal != 1 {
		t.Fatalf("files = %d, want 1 (sidecar and other dates skipped)", result.FilesTotal)
	}
	if result.ArticlesNew != 1 || result.ArticlesDup != 0 {
		t.Errorf("new/dup = %d/%d, want 1/0", result.ArticlesNew, result.ArticlesDup)
	}

	// Re-running the same date must count everything as duplicate.
	result2, err := p.ProcessDate(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if result2.ArticlesNew != 0 || result2.ArticlesDup == 0 {
		t.Errorf("rerun new/dup = %d/%d, want 0 new", result2.ArticlesNew, result2.ArticlesDup)
	}
}
