package discover

import (
	"context"
	"fmt"
	"testing"
	"time"

	"swvanews/internal/core"
	"swvanews/internal/session"
)

// stubFetcher serves canned bodies per URL.
type stubFetcher struct {
	bodies map[string]string
	calls  []string
}

func (s *stubFetcher) Fetch(_ context.Context, pageURL string) (*session.FetchResult, error) {
	s.calls = append(s.calls, pageURL)
	body, ok := s.bodies[pageURL]
	if !ok {
		return &session.FetchResult{StatusCode: 404, FinalURL: pageURL}, nil
	}
	return &session.FetchResult{StatusCode: 200, Body: []byte(body), FinalURL: pageURL}, nil
}

const indexURL = "https://swvatoday.com/eedition/smyth_county/"

func TestResolvePublication(t *testing.T) {
	tests := []struct {
		input    string
		wantSlug string
	}{
		{"smyth_county", "smyth-county"},
		{"SMYTH", "smyth-county"},
		{"wythe_county", "wythe-county"},
		{"", "smyth-county"},
		{"new_town", "new-town"},
	}
	for _, tt := range tests {
		if got := ResolvePublication(tt.input); got.Slug != tt.wantSlug {
			t.Errorf("ResolvePublication(%q).Slug = %q, want %q", tt.input, got.Slug, tt.wantSlug)
		}
	}
}

func TestDiscoverIndexAnchors(t *testing.T) {
	html := `<html><body>
		<a href="/eedition/smyth_county/a1.html">Page A1 - Local</a>
		<a href="/eedition/smyth_county/a2.html">Page A2 - Sports</a>
		<a href="/eedition/smyth_county/a2.html">Page A2 - Sports</a>
		<a href="/about">About us</a>
	</body></html>`
	f := &stubFetcher{bodies: map[string]string{indexURL: html}}

	d := New(f, indexURL)
	edition, err := d.Discover(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "smyth_county")
	if err != nil {
		t.Fatal(err)
	}

	if edition.TotalPages != 2 {
		t.Fatalf("total pages = %d, want 2 (duplicate URL must collapse)", edition.TotalPages)
	}
	if edition.Pages[0].PageNumber != 1 || edition.Pages[1].PageNumber != 2 {
		t.Errorf("page numbers = %d, %d", edition.Pages[0].PageNumber, edition.Pages[1].PageNumber)
	}
	if edition.Pages[0].Section != "Local" {
		t.Errorf("section = %q, want Local", edition.Pages[0].Section)
	}
	if edition.Pages[1].Section != "Sports" {
		t.Errorf("section = %q, want Sports", edition.Pages[1].Section)
	}
	if edition.Pages[0].URL != "https://swvatoday.com/eedition/smyth_county/a1.html" {
		t.Errorf("relative href not resolved: %q", edition.Pages[0].URL)
	}
}

func TestDiscoverPdfAnchors(t *testing.T) {
	html := `<html><body>
		<a href="/pdfs/edition_p1.pdf">Front</a>
		<a href="/pdfs/edition_p2.pdf">Obituaries</a>
	</body></html>`
	f := &stubFetcher{bodies: map[string]string{indexURL: html}}

	edition, err := New(f, indexURL).Discover(context.Background(), time.Now(), "smyth_county")
	if err != nil {
		t.Fatal(err)
	}
	if edition.TotalPages != 2 {
		t.Fatalf("total pages = %d, want 2", edition.TotalPages)
	}
	for _, p := range edition.Pages {
		if p.Format != core.FormatPDF {
			t.Errorf("page %d format = %q, want pdf", p.PageNumber, p.Format)
		}
	}
	if edition.Pages[1].Section != "Obituaries" {
		t.Errorf("section = %q, want Obituaries", edition.Pages[1].Section)
	}
}

func TestDiscoverSynthesizesFromPageCount(t *testing.T) {
	html := `<html><body>
		<div class="pagination">Page 1 of 14</div>
	</body></html>`
	// The pagination div itself matches [class*='page'] but holds no links,
	// so synthesis from the total count should kick in.
	f := &stubFetcher{bodies: map[string]string{indexURL: html}}

	edition, err := New(f, indexURL).Discover(context.Background(), time.Now(), "smyth_county")
	if err != nil {
		t.Fatal(err)
	}
	if edition.TotalPages != 14 {
		t.Fatalf("total pages = %d, want 14", edition.TotalPages)
	}
	wantURL := fmt.Sprintf("%s?page=%d", indexURL, 14)
	if edition.Pages[13].URL != wantURL {
		t.Errorf("last page url = %q, want %q", edition.Pages[13].URL, wantURL)
	}
}

func TestDiscoverIframeRecursion(t *testing.T) {
	frameURL := "https://viewer.example.com/edition"
	index := fmt.Sprintf(`<html><body><iframe src="%s"></iframe></body></html>`, frameURL)
	frame := `<html><body>
		<a href="https://viewer.example.com/p1.pdf">Page 1</a>
	</body></html>`
	f := &stubFetcher{bodies: map[string]string{indexURL: index, frameURL: frame}}

	edition, err := New(f, indexURL).Discover(context.Background(), time.Now(), "smyth_county")
	if err != nil {
		t.Fatal(err)
	}
	if edition.TotalPages != 1 {
		t.Fatalf("total pages = %d, want 1", edition.TotalPages)
	}
	if edition.Pages[0].URL != "https://viewer.example.com/p1.pdf" {
		t.Errorf("page url = %q", edition.Pages[0].URL)
	}
}

func TestDiscoverSinglePageFallback(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{indexURL: `<html><body><p>nothing here</p></body></html>`}}

	edition, err := New(f, indexURL).Discover(context.Background(), time.Now(), "smyth_county")
	if err != nil {
		t.Fatal(err)
	}
	if edition.TotalPages != 1 || edition.Pages[0].URL != indexURL {
		t.Errorf("fallback should be the index page itself, got %+v", edition.Pages)
	}
}

func TestExtractPageNumber(t *testing.T) {
	tests := []struct {
		text, url string
		fallback  int
		want      int
	}{
		{"Page 5", "", 9, 5},
		{"Page A7", "", 9, 7},
		{"p3", "", 9, 3},
		{"Front", "https://example.com/edition/page12.html", 9, 12},
		{"Front", "https://example.com/edition/front", 9, 9},
	}
	for _, tt := range tests {
		if got := extractPageNumber(tt.text, tt.url, tt.fallback); got != tt.want {
			t.Errorf("extractPageNumber(%q, %q) = %d, want %d", tt.text, tt.url, got, tt.want)
		}
	}
}
