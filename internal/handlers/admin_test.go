package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"club-segment-series/internal/batch"
	"club-segment-series/internal/database"
	"club-segment-series/internal/strava"
)

type stubSweeper struct {
	summary *batch.Summary
	weekID  int64
}

func (s *stubSweeper) FetchWeekResults(ctx context.Context, weekID int64) (*batch.Summary, error) {
	s.weekID = weekID
	return s.summary, nil
}

type stubSegments struct{}

func (s *stubSegments) GetSegment(ctx context.Context, accessToken string, segmentID int64) (*strava.DetailedSegment, error) {
	return &strava.DetailedSegment{ID: segmentID, Name: "Col du Test"}, nil
}

type noTokens struct{}

func (noTokens) GetValidAccessToken(ctx context.Context, participantID int64) (string, error) {
	return "token", nil
}

func adminRouter(db *database.DB, sweeper Sweeper, apiKey string) http.Handler {
	h := NewAdminHandler(db, sweeper, &stubSegments{}, noTokens{}, apiKey)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(h.RequireKey)
		r.Post("/admin/seasons", h.HandleCreateSeason)
		r.Post("/admin/weeks", h.HandleCreateWeek)
		r.Post("/admin/weeks/{weekID}/fetch", h.HandleFetchWeek)
	})
	return r
}

func TestRequireKey(t *testing.T) {
	db := openTestDB(t)
	router := adminRouter(db, &stubSweeper{}, "secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/seasons", strings.NewReader(`{"name": "S"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/seasons", strings.NewReader(`{"name": "S"}`))
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/seasons", strings.NewReader(`{"name": "S"}`))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRequireKeyUnconfigured(t *testing.T) {
	db := openTestDB(t)
	router := adminRouter(db, &stubSweeper{}, "")

	// No key configured means no admin surface at all
	req := httptest.NewRequest(http.MethodPost, "/admin/seasons", strings.NewReader(`{"name": "S"}`))
	req.Header.Set("X-API-Key", "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleCreateWeek(t *testing.T) {
	db := openTestDB(t)
	router := adminRouter(db, &stubSweeper{}, "secret")

	seasonID, err := db.CreateSeason("Spring Series")
	require.NoError(t, err)

	now := time.Now().Unix()
	body, _ := json.Marshal(map[string]any{
		"season_id":     seasonID,
		"segment_id":    9001,
		"required_laps": 2,
		"start_at":      now,
		"end_at":        now + 7*24*3600,
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/weeks", strings.NewReader(string(body)))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	week, err := db.GetWeek(resp["week_id"])
	require.NoError(t, err)
	require.NotNil(t, week)
	assert.Equal(t, int64(9001), week.SegmentID)
	assert.Equal(t, 2, week.RequiredLaps)
}

func TestHandleCreateWeekValidation(t *testing.T) {
	db := openTestDB(t)
	router := adminRouter(db, &stubSweeper{}, "secret")

	seasonID, err := db.CreateSeason("Spring Series")
	require.NoError(t, err)

	cases := map[string]map[string]any{
		"zero laps":       {"season_id": seasonID, "segment_id": 9001, "required_laps": 0, "start_at": 100, "end_at": 200},
		"inverted window": {"season_id": seasonID, "segment_id": 9001, "required_laps": 1, "start_at": 200, "end_at": 100},
		"missing segment": {"season_id": seasonID, "required_laps": 1, "start_at": 100, "end_at": 200},
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			body, _ := json.Marshal(payload)
			req := httptest.NewRequest(http.MethodPost, "/admin/weeks", strings.NewReader(string(body)))
			req.Header.Set("X-API-Key", "secret")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	t.Run("unknown season", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"season_id": 999, "segment_id": 9001, "required_laps": 1, "start_at": 100, "end_at": 200,
		})
		req := httptest.NewRequest(http.MethodPost, "/admin/weeks", strings.NewReader(string(body)))
		req.Header.Set("X-API-Key", "secret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleFetchWeek(t *testing.T) {
	db := openTestDB(t)
	sweeper := &stubSweeper{summary: &batch.Summary{WeekID: 5, Processed: 3, Found: 2, NotFound: 1}}
	router := adminRouter(db, sweeper, "secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/weeks/5/fetch", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), sweeper.weekID)

	var summary batch.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Found)
}
