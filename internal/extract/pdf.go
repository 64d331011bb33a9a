// Package extract turns cached page blobs into canonical articles: PDF
// multi-column segmentation and HTML main/secondary article discovery.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"swvanews/internal/core"
	"swvanews/internal/logger"
)

// PDFExtractor cuts a PDF page layout into per-column article candidates.
type PDFExtractor struct {
	ColumnThreshold    float64 // min distance between column x origins, points
	TitleFontThreshold float64 // title font multiplier over column average
	MinArticleWords    int
}

// NewPDFExtractor returns an extractor with the production thresholds.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{
		ColumnThreshold:    50.0,
		TitleFontThreshold: 1.2,
		MinArticleWords:    10,
	}
}

// ExtractFromBytes parses PDF bytes and returns article candidates.
func (e *PDFExtractor) ExtractFromBytes(content []byte, sourceFile string) ([]core.PdfArticle, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", sourceFile, err)
	}

	blocks, err := e.textBlocks(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read text from %s: %w", sourceFile, err)
	}

	var articles []core.PdfArticle
	colPerPage := make(map[int]int)
	for _, column := range e.SegmentColumns(blocks) {
		page := column[0].Page
		colPerPage[page]++
		columnArticles := e.articlesFromColumn(column, sourceFile)
		for i := range columnArticles {
			columnArticles[i].ColumnNumber = colPerPage[page]
		}
		articles = append(articles, columnArticles...)
	}

	logger.Info("PDF extraction complete", "file", sourceFile, "articles", len(articles))
	return articles, nil
}

// textBlocks merges the reader's positioned text runs into line-level
// blocks: runs sharing a baseline become one line, adjacent lines with the
// same left edge become one block.
func (e *PDFExtractor) textBlocks(reader *pdf.Reader) ([]core.TextBlock, error) {
	var blocks []core.TextBlock

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		texts := page.Content().Text
		if len(texts) == 0 {
			continue
		}

		lines := groupIntoLines(texts)
		for _, line := range mergeLinesIntoBlocks(lines) {
			line.Page = pageNum
			if strings.TrimSpace(line.Text) != "" {
				line.Text = strings.TrimSpace(line.Text)
				blocks = append(blocks, line)
			}
		}
	}
	return blocks, nil
}

// line is an intermediate row of text runs sharing a baseline.
type line struct {
	text     strings.Builder
	x0, x1   float64
	y        float64
	fontSum  float64
	fontN    int
	lastEndX float64
}

func groupIntoLines(texts []pdf.Text) []core.TextBlock {
	// Runs arrive in drawing order; a new baseline starts a new line.
	var lines []core.TextBlock
	var cur *line
	const baselineTolerance = 2.0

	flush := func() {
		if cur == nil {
			return
		}
		fontSize := 0.0
		if cur.fontN > 0 {
			fontSize = cur.fontSum / float64(cur.fontN)
		}
		lines = append(lines, core.TextBlock{
			Text:     cur.text.String(),
			X0:       cur.x0,
			Y0:       cur.y,
			X1:       cur.x1,
			Y1:       cur.y + fontSize,
			FontSize: fontSize,
		})
		cur = nil
	}

	for _, t := range texts {
		if t.S == "" {
			continue
		}
		if cur == nil || absFloat(t.Y-cur.y) > baselineTolerance {
			flush()
			cur = &line{x0: t.X, x1: t.X + t.W, y: t.Y, lastEndX: t.X + t.W}
			cur.text.WriteString(t.S)
		} else {
			// Word gap when runs are not adjacent.
			if t.X-cur.lastEndX > 1.0 && !strings.HasSuffix(cur.text.String(), " ") {
				cur.text.WriteString(" ")
			}
			cur.text.WriteString(t.S)
			if t.X+t.W > cur.x1 {
				cur.x1 = t.X + t.W
			}
			cur.lastEndX = t.X + t.W
		}
		if t.FontSize > 0 {
			cur.fontSum += t.FontSize
			cur.fontN++
		}
	}
	flush()
	return lines
}

// mergeLinesIntoBlocks joins vertically adjacent lines sharing a left edge
// into paragraph blocks.
func mergeLinesIntoBlocks(lines []core.TextBlock) []core.TextBlock {
	var blocks []core.TextBlock
	for _, ln := range lines {
		if n := len(blocks); n > 0 {
			prev := &blocks[n-1]
			sameEdge := absFloat(ln.X0-prev.X0) < 3.0
			closeBelow := prev.Y0-ln.Y0 > 0 && prev.Y0-ln.Y0 < maxFloat(prev.FontSize, ln.FontSize)*1.8
			similarFont := absFloat(ln.FontSize-prev.FontSize) < 1.0
			if sameEdge && closeBelow && similarFont {
				prev.Text += "\n" + ln.Text
				if ln.X1 > prev.X1 {
					prev.X1 = ln.X1
				}
				prev.Y0 = ln.Y0
				continue
			}
		}
		blocks = append(blocks, ln)
	}
	return blocks
}

// SegmentColumns splits blocks into columns per page. Blocks are ordered by
// left edge; a jump of at least the column threshold starts a new column,
// and each column is then read top to bottom.
func (e *PDFExtractor) SegmentColumns(blocks []core.TextBlock) [][]core.TextBlock {
	if len(blocks) == 0 {
		return nil
	}

	byPage := make(map[int][]core.TextBlock)
	var pageOrder []int
	for _, b := range blocks {
		if _, ok := byPage[b.Page]; !ok {
			pageOrder = append(pageOrder, b.Page)
		}
		byPage[b.Page] = append(byPage[b.Page], b)
	}
	sort.Ints(pageOrder)

	var all [][]core.TextBlock
	for _, pageNum := range pageOrder {
		pageBlocks := byPage[pageNum]
		sort.SliceStable(pageBlocks, func(i, j int) bool {
			return pageBlocks[i].X0 < pageBlocks[j].X0
		})

		var columns [][]core.TextBlock
		var current []core.TextBlock
		lastX := 0.0
		haveLast := false

		for _, block := range pageBlocks {
			if !haveLast || absFloat(block.X0-lastX) < e.ColumnThreshold {
				current = append(current, block)
			} else {
				if len(current) > 0 {
					columns = append(columns, current)
				}
				current = []core.TextBlock{block}
			}
			lastX = block.X0
			haveLast = true
		}
		if len(current) > 0 {
			columns = append(columns, current)
		}

		for _, column := range columns {
			sort.SliceStable(column, func(i, j int) bool {
				return column[i].Y0 > column[j].Y0
			})
		}
		all = append(all, columns...)
	}
	return all
}

// articlesFromColumn walks a column top to bottom, cutting a new article at
// each likely title.
func (e *PDFExtractor) articlesFromColumn(column []core.TextBlock, sourceFile string) []core.PdfArticle {
	var articles []core.PdfArticle
	var currentBlocks []core.TextBlock
	currentTitle := ""

	avgFont := averageFontSize(column)

	for _, block := range column {
		if e.isLikelyTitle(block, avgFont) {
			if len(currentBlocks) > 0 {
				if a, ok := e.buildArticle(currentBlocks, currentTitle, sourceFile); ok {
					articles = append(articles, a)
				}
				currentBlocks = nil
			}
			currentTitle = strings.TrimSpace(block.Text)
			continue
		}
		currentBlocks = append(currentBlocks, block)
	}
	if len(currentBlocks) > 0 {
		if a, ok := e.buildArticle(currentBlocks, currentTitle, sourceFile); ok {
			articles = append(articles, a)
		}
	}
	return articles
}

var (
	allCapsPattern   = regexp.MustCompile(`^[A-Z][A-Z\s]{5,}$`)
	titleCasePattern = regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+`)
	datelinePattern  = regexp.MustCompile(`^\w+: `)
	spaceRunPattern  = regexp.MustCompile(`[ \t]+`)
	blankRunPattern  = regexp.MustCompile(`\n\s*\n`)
)

// isLikelyTitle applies the layout and typography heuristics for headline
// detection.
func (e *PDFExtractor) isLikelyTitle(block core.TextBlock, avgFont float64) bool {
	if block.FontSize > 0 && avgFont > 0 && block.FontSize > avgFont*e.TitleFontThreshold {
		return true
	}

	text := strings.TrimSpace(block.Text)
	words := len(strings.Fields(text))

	if isAllUpper(text) && words <= 8 {
		return true
	}
	if isTitleCase(text) && words <= 10 &&
		!strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		return true
	}
	return allCapsPattern.MatchString(text) ||
		titleCasePattern.MatchString(text) ||
		datelinePattern.MatchString(text)
}

func (e *PDFExtractor) buildArticle(blocks []core.TextBlock, title, sourceFile string) (core.PdfArticle, bool) {
	var parts []string
	for _, b := range blocks {
		parts = append(parts, strings.TrimSpace(b.Text))
	}
	content := strings.TrimSpace(strings.Join(parts, "\n"))
	content = blankRunPattern.ReplaceAllString(content, "\n\n")
	content = spaceRunPattern.ReplaceAllString(content, " ")

	if core.CountWords(content) < e.MinArticleWords {
		return core.PdfArticle{}, false
	}

	bbox := core.BBox{X0: blocks[0].X0, Y0: blocks[0].Y0, X1: blocks[0].X1, Y1: blocks[0].Y1}
	for _, b := range blocks[1:] {
		bbox.X0 = minFloat(bbox.X0, b.X0)
		bbox.Y0 = minFloat(bbox.Y0, b.Y0)
		bbox.X1 = maxFloat(bbox.X1, b.X1)
		bbox.Y1 = maxFloat(bbox.Y1, b.Y1)
	}

	if title != "" {
		title = strings.Join(strings.Fields(title), " ")
		if len(title) > 200 {
			title = title[:200]
		}
	} else {
		firstLine := content
		if idx := strings.Index(content, "\n"); idx >= 0 {
			firstLine = content[:idx]
		}
		if len(firstLine) > 100 {
			title = firstLine[:100] + "..."
		} else {
			title = firstLine
		}
	}

	return core.PdfArticle{
		Title:      title,
		Content:    content,
		PageNumber: blocks[0].Page,
		BBox:       bbox,
		SourceFile: sourceFile,
	}, true
}

func averageFontSize(blocks []core.TextBlock) float64 {
	sum, n := 0.0, 0
	for _, b := range blocks {
		if b.FontSize > 0 {
			sum += b.FontSize
			n++
		}
	}
	if n == 0 {
		return 12.0
	}
	return sum / float64(n)
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// isTitleCase reports whether every word starts with an uppercase letter
// followed by lowercase.
func isTitleCase(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		runes := []rune(w)
		if !unicode.IsUpper(runes[0]) {
			return false
		}
		for _, r := range runes[1:] {
			if unicode.IsUpper(r) {
				return false
			}
		}
	}
	return true
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
