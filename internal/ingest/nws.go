package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"swvanews/internal/core"
	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

const nwsAPIBase = "https://api.weather.gov"

// Smyth, Washington, and Wythe county forecast zones.
var defaultNWSZones = []string{"VAZ022", "VAZ023", "VAZ024"}

// NWSIngester stores active National Weather Service alerts as articles.
type NWSIngester struct {
	http     *http.Client
	articles persistence.ArticleRepository
	history  persistence.HistoryRepository

	apiBase   string
	userAgent string
	now       func() time.Time
}

// NewNWSIngester wires an ingester against api.weather.gov.
func NewNWSIngester(articles persistence.ArticleRepository, history persistence.HistoryRepository) *NWSIngester {
	return &NWSIngester{
		http:      &http.Client{Timeout: 20 * time.Second},
		articles:  articles,
		history:   history,
		apiBase:   nwsAPIBase,
		userAgent: defaultRedditUserAgent,
		now:       time.Now,
	}
}

type nwsAlert struct {
	Properties struct {
		ID          string `json:"@id"`
		Headline    string `json:"headline"`
		Event       string `json:"event"`
		Description string `json:"description"`
		Instruction string `json:"instruction"`
		Severity    string `json:"severity"`
		AreaDesc    string `json:"areaDesc"`
		Onset       string `json:"onset"`
		Effective   string `json:"effective"`
		Sent        string `json:"sent"`
	} `json:"properties"`
}

type nwsResponse struct {
	Features []nwsAlert `json:"features"`
}

// Run fetches active alerts for each zone and merges them into the store.
// An empty zone list falls back to the default coverage area.
func (n *NWSIngester) Run(ctx context.Context, zones []string) (Result, error) {
	if len(zones) == 0 {
		zones = defaultNWSZones
	}
	started := n.now()

	var alerts []nwsAlert
	for _, zone := range zones {
		fetched, err := n.fetchZone(ctx, zone)
		if err != nil {
			logger.Warn("NWS fetch failed", "zone", zone, "error", err)
			continue
		}
		alerts = append(alerts, fetched...)
	}

	articles := make([]core.Article, 0, len(alerts))
	for _, alert := range alerts {
		articles = append(articles, n.toArticle(alert))
	}
	return storeArticles(ctx, articles, n.articles, n.history,
		core.SourceOSINT, "nws-alerts", started)
}

func (n *NWSIngester) fetchZone(ctx context.Context, zone string) ([]nwsAlert, error) {
	endpoint := n.apiBase + "/alerts/active?zone=" + url.QueryEscape(zone)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nws returned %d for zone %s", resp.StatusCode, zone)
	}

	var payload nwsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode nws alerts: %w", err)
	}
	return payload.Features, nil
}

func (n *NWSIngester) toArticle(alert nwsAlert) core.Article {
	props := alert.Properties
	title := props.Headline
	if title == "" {
		title = props.Event
	}
	if title == "" {
		title = "NWS Alert"
	}

	body := props.Description
	if props.Instruction != "" {
		body += "\n\nInstructions: " + props.Instruction
	}

	issued := props.Onset
	if issued == "" {
		issued = props.Effective
	}
	if issued == "" {
		issued = props.Sent
	}
	published := n.now().UTC()
	if issued != "" {
		if parsed, err := time.Parse(time.RFC3339, issued); err == nil {
			published = parsed.UTC()
		}
	}

	return core.Article{
		Title:         title,
		Content:       body,
		URL:           props.ID,
		SourceType:    core.SourceOSINT,
		SourceURL:     props.ID,
		Section:       "NWS Alerts",
		Author:        "NWS",
		WordCount:     core.CountWords(body),
		DatePublished: &published,
		DateExtracted: n.now().UTC(),
		Metadata: map[string]any{
			"severity": props.Severity,
			"areaDesc": props.AreaDesc,
		},
	}
}
