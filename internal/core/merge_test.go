package core

import (
	"reflect"
	"testing"
	"time"
)

func TestMergeArticleFillsEmptyScalars(t *testing.T) {
	published := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	existing := &Article{
		Title:   "Council Approves Budget",
		Section: "Local",
	}
	incoming := &Article{
		Title:         "Council Approves Budget",
		Section:       "News",
		Author:        "Jane Reporter",
		URL:           "https://example.com/budget",
		PageNumber:    3,
		DatePublished: &published,
	}

	MergeArticle(existing, incoming)

	if existing.Section != "Local" {
		t.Errorf("existing section should win, got %q", existing.Section)
	}
	if existing.Author != "Jane Reporter" {
		t.Errorf("empty author should be filled, got %q", existing.Author)
	}
	if existing.URL != "https://example.com/budget" {
		t.Errorf("empty url should be filled, got %q", existing.URL)
	}
	if existing.PageNumber != 3 {
		t.Errorf("zero page number should be filled, got %d", existing.PageNumber)
	}
	if existing.DatePublished == nil || !existing.DatePublished.Equal(published) {
		t.Error("nil date_published should be filled")
	}
}

func TestMergeArticleTagUnionPreservesOrder(t *testing.T) {
	existing := &Article{Tags: []string{"festival", "downtown"}}
	incoming := &Article{Tags: []string{"downtown", "music", "festival", "food"}}

	MergeArticle(existing, incoming)

	want := []string{"festival", "downtown", "music", "food"}
	if !reflect.DeepEqual(existing.Tags, want) {
		t.Errorf("tags = %v, want %v", existing.Tags, want)
	}
}

func TestMergeArticleMetadataShallowMerge(t *testing.T) {
	existing := &Article{Metadata: map[string]any{"publication": "smyth_county", "edition": "2025-06-01"}}
	incoming := &Article{Metadata: map[string]any{"edition": "2025-06-02", "format": "pdf"}}

	MergeArticle(existing, incoming)

	if existing.Metadata["publication"] != "smyth_county" {
		t.Error("existing-only key should survive")
	}
	if existing.Metadata["edition"] != "2025-06-02" {
		t.Error("incoming value should overwrite on key conflict")
	}
	if existing.Metadata["format"] != "pdf" {
		t.Error("incoming-only key should be added")
	}
}

func TestMergeArticleEventDatesUnion(t *testing.T) {
	ev1 := map[string]any{"start": "2025-06-07T10:00:00Z", "title": "Farmers Market"}
	ev2 := map[string]any{"start": "2025-06-08T18:00:00Z", "title": "Concert"}

	existing := &Article{EventDates: []map[string]any{ev1}}
	incoming := &Article{EventDates: []map[string]any{
		{"title": "Farmers Market", "start": "2025-06-07T10:00:00Z"}, // same event, different key order
		ev2,
	}}

	MergeArticle(existing, incoming)

	if len(existing.EventDates) != 2 {
		t.Fatalf("event dates = %d entries, want 2", len(existing.EventDates))
	}
}

func TestMergeArticleIdempotent(t *testing.T) {
	existing := &Article{
		Tags:       []string{"a", "b"},
		Metadata:   map[string]any{"k": "v"},
		EventDates: []map[string]any{{"start": "2025-06-07T10:00:00Z"}},
	}
	incoming := &Article{
		Tags:       []string{"b", "c"},
		Metadata:   map[string]any{"k2": "v2"},
		EventDates: []map[string]any{{"start": "2025-06-08T10:00:00Z"}},
	}

	MergeArticle(existing, incoming)
	first := *existing
	firstTags := append([]string(nil), existing.Tags...)

	MergeArticle(existing, incoming)
	if !reflect.DeepEqual(existing.Tags, firstTags) {
		t.Errorf("second merge changed tags: %v vs %v", existing.Tags, firstTags)
	}
	if len(existing.EventDates) != len(first.EventDates) {
		t.Error("second merge changed event dates")
	}
}
