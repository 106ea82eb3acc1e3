package samples

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/ratewatch/ratewatch/internal/api"
)

// chartMaxPoints caps the payload of the chart endpoint; longer windows
// are thinned by stride.
const chartMaxPoints = 500

// Handler handles sample HTTP requests
type Handler struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandler creates a new samples handler
func NewHandler(repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "samples").Logger(),
	}
}

// HandleGetData handles GET /data - paged sample listing.
// monitor_id here is the sample source id (webhook ids, funding_…, spot_…).
func (h *Handler) HandleGetData(w http.ResponseWriter, r *http.Request) {
	q := RangeQuery{
		SourceID: r.URL.Query().Get("monitor_id"),
		OrderBy:  r.URL.Query().Get("order_by"),
		OrderDir: r.URL.Query().Get("order_dir"),
	}

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
			return
		}
		q.Start = &t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
			return
		}
		// Inclusive end date: extend to end of day.
		end := t.Add(24*time.Hour - time.Nanosecond)
		q.End = &end
	}
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		api.Error(w, http.StatusBadRequest, "start_date must be <= end_date")
		return
	}

	q.Limit = 100
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit > MaxRangeLimit {
			api.Error(w, http.StatusBadRequest, fmt.Sprintf("limit must be <= %d", MaxRangeLimit))
			return
		}
		q.Limit = limit
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		offset, err := strconv.Atoi(s)
		if err != nil || offset < 0 {
			api.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		q.Offset = offset
	}

	data, err := h.repo.ByRange(q)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query samples")
		api.Error(w, http.StatusInternalServerError, "failed to retrieve data")
		return
	}
	if data == nil {
		data = []Sample{}
	}

	api.JSON(w, http.StatusOK, map[string]interface{}{
		"data":   data,
		"count":  len(data),
		"limit":  q.Limit,
		"offset": q.Offset,
	})
}

// HandleGetSummary handles GET /data/summary - per-source aggregates.
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.SummaryAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build summaries")
		api.Error(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	if summaries == nil {
		summaries = []SourceSummary{}
	}
	api.JSON(w, http.StatusOK, summaries)
}

// ChartPoint is a single downsampled chart coordinate.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ChartStats summarizes the returned window.
type ChartStats struct {
	Count  int      `json:"count"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"std_dev"`
}

// HandleGetChartData handles GET /chart-data/{monitor_id}?days=N.
// Returns up to chartMaxPoints points, thinned by stride, oldest first.
func (h *Handler) HandleGetChartData(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "monitor_id")
	if sourceID == "" {
		api.Error(w, http.StatusBadRequest, "monitor_id is required")
		return
	}

	days := 7
	if s := r.URL.Query().Get("days"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d < 1 || d > 365 {
			api.Error(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = d
	}

	start := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := h.repo.chartRows(sourceID, start)
	if err != nil {
		h.log.Error().Err(err).Str("source_id", sourceID).Msg("Failed to query chart data")
		api.Error(w, http.StatusInternalServerError, "failed to retrieve chart data")
		return
	}

	points := thinPoints(rows, chartMaxPoints)
	stats := chartStats(points)

	api.JSON(w, http.StatusOK, map[string]interface{}{
		"monitor_id": sourceID,
		"days":       days,
		"points":     points,
		"stats":      stats,
	})
}

// chartRows fetches all valued rows for a source since start, oldest first.
func (r *Repository) chartRows(sourceID string, start time.Time) ([]ChartPoint, error) {
	rows, err := r.db.Query(`
		SELECT timestamp, value FROM samples
		WHERE source_id = ? AND timestamp >= ? AND value IS NOT NULL
		ORDER BY timestamp ASC`, sourceID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to query chart rows: %w", err)
	}
	defer rows.Close()

	var points []ChartPoint
	for rows.Next() {
		var p ChartPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan chart row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// thinPoints reduces a series to at most maxPoints by stride, always
// keeping the first point of each stride group.
func thinPoints(points []ChartPoint, maxPoints int) []ChartPoint {
	if len(points) <= maxPoints {
		if points == nil {
			return []ChartPoint{}
		}
		return points
	}

	stride := len(points) / maxPoints
	if stride < 1 {
		stride = 1
	}

	out := make([]ChartPoint, 0, maxPoints)
	for i := 0; i < len(points) && len(out) < maxPoints; i += stride {
		out = append(out, points[i])
	}
	return out
}

func chartStats(points []ChartPoint) ChartStats {
	stats := ChartStats{Count: len(points)}
	if len(points) == 0 {
		return stats
	}

	values := make([]float64, len(points))
	min, max := points[0].Value, points[0].Value
	for i, p := range points {
		values[i] = p.Value
		if p.Value < min {
			min = p.Value
		}
		if p.Value > max {
			max = p.Value
		}
	}

	mean, std := stat.MeanStdDev(values, nil)
	stats.Min = &min
	stats.Max = &max
	stats.Mean = &mean
	if len(values) > 1 {
		stats.StdDev = &std
	}
	return stats
}
