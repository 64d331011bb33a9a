// Package events mines candidate calendar events from article text. The
// scanner is deliberately strict: a date phrase alone is not an event, it
// has to co-occur with a time-of-day cue and an event keyword inside a
// tight context window.
package events

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"swvanews/internal/core"
)

const (
	contextWindow  = 160
	maxContextLen  = 220
	maxEventsPer   = 5
	futureCapDays  = 180
	dedupePrefix   = 80
	maxTitleLen    = 200
	maxLocationLen = 200
)

var (
	weekdayPattern = regexp.MustCompile(`(?i)\b(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\b`)
	monthPattern   = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	numericPattern = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}(?:/\d{2,4})?|\d{4}-\d{2}-\d{2})\b`)

	timeOfDayPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?\b`)
	noonPattern      = regexp.MustCompile(`(?i)\b(noon|midnight)\b`)
	prepositionCue   = regexp.MustCompile(`(?i)\b(at|from)\b`)
	currencyPattern  = regexp.MustCompile(`\$\d`)
	locationPattern  = regexp.MustCompile(`\b(?:at|in|inside|outside|on)\s+([A-Z][^.,;\n]+)`)
	spaceRun         = regexp.MustCompile(`\s+`)

	eventKeywordPattern = regexp.MustCompile(`(?i)\b(meeting|festival|concert|workshop|class|fundraiser|parade|fair|market|game|tournament|ceremony|celebration|dinner|breakfast|luncheon|sale|show|performance|auction|clinic|registration|reunion|vigil|hearing|session|event)s?\b`)
)

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	"sunday": time.Sunday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// Parser extracts events from article content.
type Parser struct {
	Now func() time.Time
}

// NewParser returns a parser anchored at wall-clock time.
func NewParser() *Parser {
	return &Parser{Now: time.Now}
}

type candidate struct {
	snippet string
	index   int
}

// Extract returns up to five deduplicated events found in text. Start times
// are future-biased and clamped to [now-1d, now+180d].
func (p *Parser) Extract(text string) []core.ArticleEvent {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	now := p.Now()

	var events []core.ArticleEvent
	seen := make(map[string]bool)

	for _, cand := range findDatePhrases(text) {
		context := extractContext(text, cand.snippet, cand.index)
		if !passesFilter(context) {
			continue
		}

		start, ok := p.resolveStart(cand.snippet, context, now)
		if !ok {
			continue
		}
		if start.Before(now.AddDate(0, 0, -1)) || start.After(now.AddDate(0, 0, futureCapDays)) {
			continue
		}

		key := dedupeKey(start, context)
		if seen[key] {
			continue
		}
		seen[key] = true

		title := strings.TrimSpace(context)
		if len(title) > maxTitleLen {
			title = title[:maxTitleLen]
		}
		if title == "" {
			title = strings.TrimSpace(cand.snippet)
		}

		events = append(events, core.ArticleEvent{
			Title:        title,
			Description:  strings.TrimSpace(context),
			StartTime:    start,
			LocationName: extractLocation(context),
		})
		if len(events) >= maxEventsPer {
			break
		}
	}
	return events
}

// findDatePhrases scans the explicit date families in document order.
func findDatePhrases(text string) []candidate {
	var cands []candidate
	for _, pat := range []*regexp.Regexp{monthPattern, numericPattern, weekdayPattern} {
		for _, loc := range pat.FindAllStringIndex(text, -1) {
			cands = append(cands, candidate{snippet: text[loc[0]:loc[1]], index: loc[0]})
		}
	}
	// Keep document order so the per-article cap favors earlier mentions.
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].index < cands[j-1].index; j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
	return cands
}

// passesFilter applies the conjunction of signals over the context window.
func passesFilter(context string) bool {
	if len(context) > maxContextLen {
		return false
	}
	lower := strings.ToLower(context)
	if strings.Contains(lower, "key points:") {
		return false
	}
	if currencyPattern.MatchString(context) {
		return false
	}
	hasDate := weekdayPattern.MatchString(context) ||
		monthPattern.MatchString(context) ||
		numericPattern.MatchString(context)
	if !hasDate {
		return false
	}
	hasTimeCue := timeOfDayPattern.MatchString(context) ||
		noonPattern.MatchString(context) ||
		prepositionCue.MatchString(context)
	if !hasTimeCue {
		return false
	}
	return eventKeywordPattern.MatchString(context)
}

// resolveStart turns a date phrase into a concrete start time, attaching a
// time-of-day found in the surrounding context.
func (p *Parser) resolveStart(snippet, context string, now time.Time) (time.Time, bool) {
	var start time.Time

	switch {
	case numericPattern.MatchString(snippet):
		t, err := dateparse.ParseAny(snippet)
		if err != nil {
			return time.Time{}, false
		}
		start = t
		if start.Year() < 2000 || start.Year() > 2050 {
			return time.Time{}, false
		}
	case monthPattern.MatchString(snippet):
		m := monthPattern.FindStringSubmatch(snippet)
		month, ok := months[strings.ToLower(strings.TrimSuffix(m[1], "."))]
		if !ok {
			return time.Time{}, false
		}
		day, err := strconv.Atoi(m[2])
		if err != nil || day < 1 || day > 31 {
			return time.Time{}, false
		}
		year := now.Year()
		if m[3] != "" {
			if year, err = strconv.Atoi(m[3]); err != nil {
				return time.Time{}, false
			}
		}
		start = time.Date(year, month, day, 0, 0, 0, 0, now.Location())
		// No year given and the date already passed: assume next year.
		if m[3] == "" && start.Before(now.AddDate(0, 0, -1)) {
			start = start.AddDate(1, 0, 0)
		}
	default:
		m := weekdayPattern.FindStringSubmatch(snippet)
		if m == nil {
			return time.Time{}, false
		}
		target, ok := weekdays[strings.ToLower(m[1])]
		if !ok {
			return time.Time{}, false
		}
		start = nextWeekday(now, target)
	}

	if h, min, ok := timeFromContext(context); ok {
		start = time.Date(start.Year(), start.Month(), start.Day(), h, min, 0, 0, start.Location())
	}
	return start, true
}

// nextWeekday returns the next occurrence of target on or after today.
func nextWeekday(now time.Time, target time.Weekday) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (int(target) - int(now.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}

func timeFromContext(context string) (hour, minute int, ok bool) {
	if m := timeOfDayPattern.FindStringSubmatch(context); m != nil {
		h, err := strconv.Atoi(m[1])
		if err != nil || h < 1 || h > 12 {
			return 0, 0, false
		}
		minute := 0
		if m[2] != "" {
			if minute, err = strconv.Atoi(m[2]); err != nil || minute > 59 {
				return 0, 0, false
			}
		}
		if strings.EqualFold(m[3], "p") && h != 12 {
			h += 12
		}
		if strings.EqualFold(m[3], "a") && h == 12 {
			h = 0
		}
		return h, minute, true
	}
	if m := noonPattern.FindStringSubmatch(context); m != nil {
		if strings.EqualFold(m[1], "noon") {
			return 12, 0, true
		}
		return 0, 0, true
	}
	return 0, 0, false
}

// extractContext cuts a window around the phrase and trims it toward
// sentence boundaries.
func extractContext(text, snippet string, index int) string {
	start := index - contextWindow
	if start < 0 {
		start = 0
	}
	end := index + len(snippet) + contextWindow
	if end > len(text) {
		end = len(text)
	}
	context := text[start:end]
	pos := index - start

	if before := strings.LastIndex(context[:pos], ". "); before != -1 {
		context = context[before+2:]
		pos -= before + 2
	}
	if after := strings.Index(context[pos+len(snippet):], ". "); after != -1 {
		context = context[:pos+len(snippet)+after+1]
	}
	return context
}

// extractLocation pulls a capitalized place phrase after a preposition.
func extractLocation(context string) string {
	m := locationPattern.FindStringSubmatch(context)
	if m == nil {
		return ""
	}
	loc := spaceRun.ReplaceAllString(strings.TrimSpace(m[1]), " ")
	if len(loc) > maxLocationLen {
		loc = loc[:maxLocationLen]
	}
	return loc
}

func dedupeKey(start time.Time, context string) string {
	prefix := strings.TrimSpace(context)
	if len(prefix) > dedupePrefix {
		prefix = prefix[:dedupePrefix]
	}
	return start.Truncate(time.Minute).UTC().Format(time.RFC3339) + "|" + prefix
}
