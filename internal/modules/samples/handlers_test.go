package samples

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/data", h.HandleGetData)
	r.Get("/data/summary", h.HandleGetSummary)
	r.Get("/chart-data/{monitor_id}", h.HandleGetChartData)
	return r
}

func TestHandleGetData_LimitCeiling(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	router := newTestRouter(NewHandler(repo, zerolog.Nop()))

	// 1000 is accepted.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/data?limit=1000", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// 1001 is rejected with 400.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/data?limit=1001", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Contains(t, errResp["detail"], "limit")
}

func TestHandleGetData_InvalidDates(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	router := newTestRouter(NewHandler(repo, zerolog.Nop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/data?start_date=2024-13-99", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/data?start_date=2024-02-02&end_date=2024-01-01", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetData_FiltersBySource(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	router := newTestRouter(NewHandler(repo, zerolog.Nop()))

	now := time.Now().UTC()
	for _, id := range []string{"pricing", "pricing", "other"} {
		s := makeSample(id, 1, now)
		_, err := repo.Insert(&s)
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/data?monitor_id=pricing", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data  []Sample `json:"data"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
}

func TestHandleGetChartData_DaysBounds(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	router := newTestRouter(NewHandler(repo, zerolog.Nop()))

	for _, days := range []string{"0", "366", "abc"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/chart-data/pricing?days="+days, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "days=%s", days)
	}
}

func TestHandleGetChartData_DaysOneReturnsLast24h(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	router := newTestRouter(NewHandler(repo, zerolog.Nop()))

	now := time.Now().UTC()
	inside := makeSample("pricing", 1, now.Add(-23*time.Hour))
	outside := makeSample("pricing", 2, now.Add(-25*time.Hour))
	for _, s := range []*Sample{&inside, &outside} {
		_, err := repo.Insert(s)
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/chart-data/pricing?days=1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Points []ChartPoint `json:"points"`
		Stats  ChartStats   `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Points, 1)
	assert.InDelta(t, 1.0, resp.Points[0].Value, 1e-9)
	assert.Equal(t, 1, resp.Stats.Count)
}

func TestHandleGetChartData_ThinsTo500Points(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	router := newTestRouter(NewHandler(repo, zerolog.Nop()))

	now := time.Now().UTC()
	batch := make([]Sample, 0, 1200)
	for i := 0; i < 1200; i++ {
		batch = append(batch, makeSample("pricing", float64(i), now.Add(-time.Duration(1200-i)*time.Minute)))
	}
	require.NoError(t, repo.InsertBatch(batch))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/chart-data/pricing?days=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Points []ChartPoint `json:"points"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.LessOrEqual(t, len(resp.Points), 500)
	assert.Greater(t, len(resp.Points), 0)
}

func TestThinPoints(t *testing.T) {
	points := make([]ChartPoint, 1000)
	for i := range points {
		points[i] = ChartPoint{Value: float64(i)}
	}

	thinned := thinPoints(points, 500)
	assert.LessOrEqual(t, len(thinned), 500)
	assert.Equal(t, 0.0, thinned[0].Value)

	// Short series pass through unchanged.
	short := points[:10]
	assert.Equal(t, fmt.Sprint(short), fmt.Sprint(thinPoints(short, 500)))
}
