package server

import (
	"net/http"
	"strconv"
	"time"

	"swvanews/internal/core"
)

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy", "checks": checks,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok", "checks": checks,
	})
}

// handleFeed returns the day's articles with their brief summaries.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid date format; use YYYY-MM-DD")
			return
		}
		day = parsed
	}
	limit := intQuery(r, "limit", 50)

	items, err := s.articles.ListFeed(r.Context(), &day, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"date":  day.Format("2006-01-02"),
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handleFeedDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.articles.FeedDates(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load feed dates")
		return
	}
	if dates == nil {
		dates = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// handleEvents returns upcoming community events grouped by start date.
// Events with no resolvable start land in the "unscheduled" bucket.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 30)
	limit := intQuery(r, "limit", 200)

	events, err := s.events.ListUpcoming(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	horizon := time.Now().UTC().AddDate(0, 0, days)
	grouped := make(map[string][]core.ArticleEvent)
	for _, event := range events {
		key := "unscheduled"
		if !event.StartTime.IsZero() {
			if event.StartTime.After(horizon) {
				continue
			}
			key = event.StartTime.Format("2006-01-02")
		}
		grouped[key] = append(grouped[key], event)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"days":   days,
		"events": grouped,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 7)

	stats, err := s.history.Stats(r.Context(), days)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	counts, err := s.articles.CountsByStatus(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load status counts")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"period_days": days,
		"summary": map[string]any{
			"total_found":      stats.TotalFound,
			"total_new":        stats.TotalNew,
			"total_duplicates": stats.TotalDuplicates,
		},
		"daily_stats":   stats.Daily,
		"status_counts": counts,
	})
}

func (s *Server) handlePendingArticles(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)

	articles, err := s.articles.GetPending(r.Context(), core.StatusExtracted, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load pending articles")
		return
	}

	items := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		var published *string
		if a.DatePublished != nil {
			formatted := a.DatePublished.Format(time.RFC3339)
			published = &formatted
		}
		items = append(items, map[string]any{
			"id":                a.ID,
			"title":             a.Title,
			"section":           a.Section,
			"date_published":    published,
			"word_count":        a.WordCount,
			"processing_status": a.Status,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(items),
		"articles": items,
	})
}
