package core

import "time"

// BBox is the bounding box of an article on a PDF page, in points.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// TextBlock is a positioned run of text from a PDF page. Blocks are the
// unit of column segmentation.
type TextBlock struct {
	Text     string
	X0       float64
	Y0       float64
	X1       float64
	Y1       float64
	Page     int
	FontSize float64
}

// PdfArticle is an article candidate cut from a PDF column. It carries
// layout detail that the canonical Article keeps only partially.
type PdfArticle struct {
	Title        string
	Content      string
	PageNumber   int
	ColumnNumber int
	Section      string
	BBox         BBox
	SourceFile   string
	Metadata     map[string]any
}

// HtmlArticle is an article candidate from an HTML page.
type HtmlArticle struct {
	Title         string
	Content       string
	URL           string
	Author        string
	Section       string
	Tags          []string
	DatePublished *time.Time
	RawHTML       string
	SourceFile    string
	Metadata      map[string]any
}

// ToArticle converts a PDF candidate into the canonical record.
func (p PdfArticle) ToArticle(now time.Time) Article {
	return Article{
		Title:         p.Title,
		Content:       p.Content,
		ContentHash:   HashContent(p.Title, p.Content),
		SourceType:    SourcePDF,
		SourceFile:    p.SourceFile,
		PageNumber:    p.PageNumber,
		ColumnNumber:  p.ColumnNumber,
		Section:       p.Section,
		WordCount:     CountWords(p.Content),
		DateExtracted: now,
		Status:        StatusExtracted,
		Metadata:      p.Metadata,
	}
}

// ToArticle converts an HTML candidate into the canonical record.
func (h HtmlArticle) ToArticle(now time.Time) Article {
	return Article{
		Title:         h.Title,
		Content:       h.Content,
		ContentHash:   HashContent(h.Title, h.Content),
		URL:           h.URL,
		SourceType:    SourceHTML,
		SourceURL:     h.URL,
		SourceFile:    h.SourceFile,
		Section:       h.Section,
		Author:        h.Author,
		Tags:          h.Tags,
		WordCount:     CountWords(h.Content),
		DatePublished: h.DatePublished,
		DateExtracted: now,
		Status:        StatusExtracted,
		RawHTML:       h.RawHTML,
		Metadata:      h.Metadata,
	}
}
