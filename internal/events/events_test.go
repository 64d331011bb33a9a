package events

import (
	"strings"
	"testing"
	"time"
)

func fixedParser(now time.Time) *Parser {
	return &Parser{Now: func() time.Time { return now }}
}

func TestExtractWeekdayEvent(t *testing.T) {
	// Wednesday June 4, 2025.
	now := time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC)
	p := fixedParser(now)

	events := p.Extract("The town council meeting will be held Saturday at noon at Marion Community Center.")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	want := time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)
	if !e.StartTime.Equal(want) {
		t.Errorf("start = %v, want %v", e.StartTime, want)
	}
	if e.LocationName != "Marion Community Center" {
		t.Errorf("location = %q", e.LocationName)
	}
	if !strings.Contains(e.Title, "council meeting") {
		t.Errorf("title = %q", e.Title)
	}
}

func TestExtractMonthDayRollsToNextYear(t *testing.T) {
	now := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	p := fixedParser(now)

	events := p.Extract("The winter festival returns on January 10 at noon downtown.")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	want := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	if !events[0].StartTime.Equal(want) {
		t.Errorf("start = %v, want %v (date already passed this year)", events[0].StartTime, want)
	}
}

func TestExtractDropsOutOfRangeDates(t *testing.T) {
	now := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	p := fixedParser(now)

	tests := []struct {
		name, text string
	}{
		{"past", "The festival was held on June 1, 2020 at the fairgrounds."},
		{"beyond horizon", "A concert is planned for December 25, 2026 at the arena."},
	}
	for _, tt := range tests {
		if got := p.Extract(tt.text); len(got) != 0 {
			t.Errorf("%s: events = %d, want 0", tt.name, len(got))
		}
	}
}

func TestExtractRequiresConjunction(t *testing.T) {
	now := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	p := fixedParser(now)

	tests := []struct {
		name, text string
	}{
		{"no keyword", "The forecast for Saturday at 9 a.m. calls for sunshine and light wind."},
		{"currency", "Tickets cost $15 for the concert on Saturday at 7 p.m."},
		{"no time cue", "A festival happened once, Saturday, long ago without specifics."},
		{"key points bullet", "Key points: the meeting is Saturday at 6 p.m. per the agenda."},
	}
	for _, tt := range tests {
		if got := p.Extract(tt.text); len(got) != 0 {
			t.Errorf("%s: events = %d, want 0", tt.name, len(got))
		}
	}
}

func TestExtractDeduplicatesAndCaps(t *testing.T) {
	now := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	p := fixedParser(now)

	sentence := "The farmers market opens Saturday at 9 a.m. on Main Street. "
	events := p.Extract(strings.Repeat(sentence, 4))
	if len(events) != 1 {
		t.Errorf("identical mentions produced %d events, want 1", len(events))
	}

	// Distinct days stay distinct, capped at five.
	var sb strings.Builder
	for _, day := range []string{"June 10", "June 11", "June 12", "June 13", "June 14", "June 15", "June 16"} {
		sb.WriteString("A community workshop is scheduled for " + day + " at noon sharp downtown. ")
	}
	events = p.Extract(sb.String())
	if len(events) != 5 {
		t.Errorf("events = %d, want cap of 5", len(events))
	}
}

func TestExtractEmptyText(t *testing.T) {
	if got := NewParser().Extract("   "); got != nil {
		t.Errorf("events = %v, want nil", got)
	}
}

func TestExtractStableKeys(t *testing.T) {
	now := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	text := "The library hosts a reading class June 12 at 4 p.m. in the annex."

	a := fixedParser(now).Extract(text)
	b := fixedParser(now).Extract(text)
	if len(a) != len(b) {
		t.Fatalf("runs differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].StartTime.Equal(b[i].StartTime) || a[i].Title != b[i].Title {
			t.Errorf("event %d differs between runs", i)
		}
	}
}
