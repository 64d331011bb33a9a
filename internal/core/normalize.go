package core

import (
	"strings"
	"unicode"
)

// sectionAliases maps free-form section labels to their canonical title.
// Discovery and extraction both write through this table so that feed,
// summaries, and notifications agree on labels.
var sectionAliases = map[string]string{
	"obituary":          "Obituaries",
	"obituaries":        "Obituaries",
	"obits":             "Obituaries",
	"sports":            "Sports",
	"news":              "News",
	"local":             "Local",
	"business":          "Business",
	"opinion":           "Opinion",
	"editorial":         "Opinion",
	"police":            "Public Safety",
	"police and courts": "Public Safety",
	"crime":             "Public Safety",
	"classifieds":       "Classifieds",
}

// NormalizeSection maps a section label to its canonical form. Empty input
// yields "General". Unknown labels are whitespace-collapsed and title-cased,
// except pure page designators like "A1" which pass through unchanged.
// The function is idempotent.
func NormalizeSection(section string) string {
	if strings.TrimSpace(section) == "" {
		return "General"
	}
	key := strings.ToLower(strings.TrimSpace(section))
	if canonical, ok := sectionAliases[key]; ok {
		return canonical
	}
	cleaned := strings.Join(strings.Fields(section), " ")
	if isDigits(strings.ReplaceAll(cleaned, " ", "")) {
		return cleaned
	}
	return titleCase(cleaned)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// titleCase upper-cases the first letter of each word and lower-cases the
// rest, matching how section labels read in print.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
