package core

import "encoding/json"

// MergeArticle folds a re-extracted duplicate into the stored article.
// Scalars already set on the stored row win; empty ones are filled from
// the duplicate. Tags become an ordered union, metadata a shallow merge
// with incoming keys overwriting, and event dates a union keyed by their
// canonical JSON encoding.
func MergeArticle(existing, incoming *Article) {
	existing.Tags = unionStrings(existing.Tags, incoming.Tags)
	existing.Metadata = mergeMetadata(existing.Metadata, incoming.Metadata)
	existing.EventDates = unionEventDates(existing.EventDates, incoming.EventDates)

	if existing.URL == "" {
		existing.URL = incoming.URL
	}
	if existing.SourceURL == "" {
		existing.SourceURL = incoming.SourceURL
	}
	if existing.SourceFile == "" {
		existing.SourceFile = incoming.SourceFile
	}
	if existing.Section == "" {
		existing.Section = incoming.Section
	}
	if existing.Author == "" {
		existing.Author = incoming.Author
	}
	if existing.PageNumber == 0 {
		existing.PageNumber = incoming.PageNumber
	}
	if existing.ColumnNumber == 0 {
		existing.ColumnNumber = incoming.ColumnNumber
	}
	if existing.DatePublished == nil {
		existing.DatePublished = incoming.DatePublished
	}
	if existing.RawHTML == "" {
		existing.RawHTML = incoming.RawHTML
	}
	if existing.LocationName == "" {
		existing.LocationName = incoming.LocationName
	}
	if existing.LocationLat == nil {
		existing.LocationLat = incoming.LocationLat
	}
	if existing.LocationLon == nil {
		existing.LocationLon = incoming.LocationLon
	}
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeMetadata(a, b map[string]any) map[string]any {
	if len(b) == 0 {
		return a
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func unionEventDates(a, b []map[string]any) []map[string]any {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]map[string]any, 0, len(a)+len(b))
	for _, ev := range a {
		key := canonicalJSON(ev)
		if !seen[key] {
			seen[key] = true
			out = append(out, ev)
		}
	}
	for _, ev := range b {
		key := canonicalJSON(ev)
		if !seen[key] {
			seen[key] = true
			out = append(out, ev)
		}
	}
	return out
}

// canonicalJSON relies on encoding/json sorting map keys.
func canonicalJSON(v map[string]any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(buf)
}
