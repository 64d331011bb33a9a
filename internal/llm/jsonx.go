package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var thinkTagPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)

// SanitizeResponse strips inference-server thinking annotations and trims
// whitespace.
func SanitizeResponse(raw string) string {
	return strings.TrimSpace(thinkTagPattern.ReplaceAllString(raw, ""))
}

// ExtractJSONObject parses a JSON object out of model output. It tries a
// direct decode, then the widest {...} substring, and finally synthesizes a
// minimal structure from the free-form text so callers can keep moving.
// The second return reports whether a fallback path was used.
func ExtractJSONObject(raw string) (map[string]any, bool) {
	cleaned := SanitizeResponse(raw)
	if cleaned == "" {
		return map[string]any{
			"summary":          "",
			"key_points":       []any{},
			"sentiment":        "neutral",
			"topics":           []any{},
			"confidence_score": 0.5,
		}, true
	}

	var direct map[string]any
	if err := json.Unmarshal([]byte(cleaned), &direct); err == nil {
		return direct, false
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		var nested map[string]any
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &nested); err == nil {
			return nested, true
		}
	}

	var bullets []any
	var prose []string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line[0] {
		case '-', '*':
			bullets = append(bullets, strings.TrimLeft(line, "-*• \t"))
		default:
			if strings.HasPrefix(line, "•") {
				bullets = append(bullets, strings.TrimLeft(line, "-*• \t"))
			} else {
				prose = append(prose, line)
			}
		}
	}
	summary := strings.TrimSpace(strings.Join(prose, " "))
	if summary == "" {
		summary = cleaned
	}
	if bullets == nil {
		bullets = []any{}
	}
	return map[string]any{
		"summary":          summary,
		"key_points":       bullets,
		"sentiment":        "neutral",
		"topics":           []any{},
		"confidence_score": 0.6,
	}, true
}

// SummaryPayload is the typed view of a summarization response.
type SummaryPayload struct {
	Summary         string
	KeyPoints       []string
	Sentiment       string
	Topics          []string
	Tags            []string
	Entities        []EntityRef
	EventDates      []map[string]any
	ConfidenceScore float64
}

// EntityRef is one named entity in the response taxonomy.
type EntityRef struct {
	Name string
	Kind string
}

// ParseSummaryPayload lifts the loose map from ExtractJSONObject into the
// typed payload, tolerating missing or oddly shaped fields.
func ParseSummaryPayload(data map[string]any) SummaryPayload {
	p := SummaryPayload{
		Summary:         stringField(data, "summary"),
		KeyPoints:       stringSlice(data["key_points"]),
		Sentiment:       stringField(data, "sentiment"),
		Topics:          stringSlice(data["topics"]),
		Tags:            stringSlice(data["tags"]),
		ConfidenceScore: floatField(data, "confidence_score", 0.8),
	}
	if p.Sentiment == "" {
		p.Sentiment = "neutral"
	}

	if rawEntities, ok := data["entities"].([]any); ok {
		for _, item := range rawEntities {
			switch v := item.(type) {
			case string:
				p.Entities = append(p.Entities, EntityRef{Name: v})
			case map[string]any:
				name := stringField(v, "name")
				if name != "" {
					p.Entities = append(p.Entities, EntityRef{Name: name, Kind: stringField(v, "kind")})
				}
			}
		}
	}

	if rawEvents, ok := data["event_dates"].([]any); ok {
		for _, item := range rawEvents {
			if m, ok := item.(map[string]any); ok {
				p.EventDates = append(p.EventDates, m)
			}
		}
	}
	return p
}

func stringField(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func floatField(data map[string]any, key string, def float64) float64 {
	if f, ok := data[key].(float64); ok {
		return f
	}
	return def
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
