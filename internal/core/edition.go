package core

import "time"

// Page formats within an edition.
const (
	FormatPDF  = "pdf"
	FormatHTML = "html"
)

// EditionPage is a single downloadable page of a day's edition.
type EditionPage struct {
	URL        string `json:"url"`
	PageNumber int    `json:"page_number"`
	Section    string `json:"section,omitempty"`
	Title      string `json:"title,omitempty"`
	Format     string `json:"format"`
}

// Edition is one day's issue of a publication: an ordered page list with
// unique URLs.
type Edition struct {
	Date        time.Time     `json:"date"`
	Publication string        `json:"publication"`
	BaseURL     string        `json:"base_url"`
	Pages       []EditionPage `json:"pages"`
	TotalPages  int           `json:"total_pages"`
}
