package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/rank"
)

type searchItem struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	CanonicalURL   string     `json:"canonical_url"`
	SourceDomain   string     `json:"source_domain"`
	Byline         string     `json:"byline,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	SportsKeywords []string   `json:"sports_keywords,omitempty"`
	ContentType    string     `json:"content_type,omitempty"`
	QualityScore   float64    `json:"quality_score"`
	Score          float64    `json:"score"`
}

type searchResponse struct {
	Items      []searchItem `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
	Total      int          `json:"total"`
	Backend    string       `json:"backend"`
	FromCache  bool         `json:"from_cache"`
}

type trendingResponse struct {
	Terms         []content.TrendingTerm `json:"terms"`
	WindowSeconds int                    `json:"window_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	limit := s.opts.DefaultPageSize
	if raw := params.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	sortBy := params.Get("sort")
	if !rank.ValidSort(sortBy) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sort must be relevance or recent"})
		return
	}

	q := rank.Query{
		Text:         params.Get("q"),
		Sports:       splitParam(params.Get("sports")),
		Sources:      splitParam(params.Get("sources")),
		ContentTypes: splitParam(params.Get("types")),
		SortBy:       sortBy,
		IncludeSpam:  params.Get("include_spam") == "true",
		Limit:        limit,
		Cursor:       params.Get("cursor"),
		Now:          s.clock.Now(),
	}

	result, err := s.engine.Search(r.Context(), q)
	if errors.Is(err, rank.ErrBadCursor) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid or stale cursor"})
		return
	}
	if err != nil {
		s.logger.Error("search failed", zap.String("query", q.Text), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "search unavailable"})
		return
	}

	resp := searchResponse{
		Items:      make([]searchItem, 0, len(result.Hits)),
		NextCursor: result.NextCursor,
		Total:      result.Total,
		Backend:    result.Backend,
		FromCache:  result.FromCache,
	}
	for _, hit := range result.Hits {
		item := searchItem{
			ID:             hit.Item.ID,
			Title:          hit.Item.Title,
			CanonicalURL:   hit.Item.CanonicalURL,
			SourceDomain:   hit.Item.SourceDomain,
			Byline:         hit.Item.Byline,
			Summary:        hit.Item.Summary,
			SportsKeywords: hit.Item.SportsKeywords,
			ContentType:    hit.Item.ContentType,
			QualityScore:   hit.Item.QualityScore,
			Score:          hit.Score,
		}
		if !hit.Item.PublishedAt.IsZero() {
			published := hit.Item.PublishedAt
			item.PublishedAt = &published
		}
		resp.Items = append(resp.Items, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	terms := s.detector.Top(limit)
	if terms == nil {
		terms = []content.TrendingTerm{}
	}
	writeJSON(w, http.StatusOK, trendingResponse{
		Terms:         terms,
		WindowSeconds: int(s.detector.Window().Seconds()),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleJobCancel stops scheduling of a running job's remaining tasks.
// Tasks already in flight drain normally.
func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}
	if job.Status.Terminal() {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "job already " + string(job.Status)})
		return
	}

	job.Status = content.JobCancelled
	job.CompletedAt = s.clock.Now()
	if err := s.jobs.Update(r.Context(), job); err != nil {
		s.logger.Error("cancel job failed", zap.String("job", jobID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "cancel failed"})
		return
	}
	s.cancels.Cancel(jobID)
	writeJSON(w, http.StatusOK, job)
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
