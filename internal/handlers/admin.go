package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"club-segment-series/internal/batch"
	"club-segment-series/internal/database"
	"club-segment-series/internal/strava"
)

// Sweeper runs batch fetch sweeps
type Sweeper interface {
	FetchWeekResults(ctx context.Context, weekID int64) (*batch.Summary, error)
}

// SegmentSource fetches segment reference data from the provider
type SegmentSource interface {
	GetSegment(ctx context.Context, accessToken string, segmentID int64) (*strava.DetailedSegment, error)
}

// TokenSource supplies valid access tokens
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, participantID int64) (string, error)
}

// AdminHandler serves the key-protected administrative endpoints
type AdminHandler struct {
	db       *database.DB
	sweeper  Sweeper
	segments SegmentSource
	tokens   TokenSource
	apiKey   string
	logger   *slog.Logger
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(db *database.DB, sweeper Sweeper, segments SegmentSource, tokenSource TokenSource, apiKey string) *AdminHandler {
	return &AdminHandler{
		db:       db,
		sweeper:  sweeper,
		segments: segments,
		tokens:   tokenSource,
		apiKey:   apiKey,
		logger:   slog.Default(),
	}
}

// RequireKey rejects requests without the configured admin API key
func (h *AdminHandler) RequireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey == "" {
			writeError(w, http.StatusForbidden, "admin API not configured")
			return
		}

		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleCreateSeason creates a new season.
// POST /admin/seasons {"name": "..."}
func (h *AdminHandler) HandleCreateSeason(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	seasonID, err := h.db.CreateSeason(req.Name)
	if err != nil {
		h.logger.Error("failed to create season", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create season")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"season_id": seasonID})
}

// HandleCreateWeek creates a new competition week.
// POST /admin/weeks {"season_id": 1, "segment_id": 123, "required_laps": 2, "start_at": ..., "end_at": ...}
func (h *AdminHandler) HandleCreateWeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SeasonID     int64 `json:"season_id"`
		SegmentID    int64 `json:"segment_id"`
		RequiredLaps int   `json:"required_laps"`
		StartAt      int64 `json:"start_at"`
		EndAt        int64 `json:"end_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SegmentID == 0 || req.RequiredLaps < 1 || req.StartAt >= req.EndAt {
		writeError(w, http.StatusBadRequest, "segment_id, required_laps >= 1 and start_at < end_at are required")
		return
	}

	season, err := h.db.GetSeason(req.SeasonID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load season")
		return
	}
	if season == nil {
		writeError(w, http.StatusNotFound, "season not found")
		return
	}

	week := &database.Week{
		SeasonID:     req.SeasonID,
		SegmentID:    req.SegmentID,
		RequiredLaps: req.RequiredLaps,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
	}
	if err := h.db.CreateWeek(week); err != nil {
		h.logger.Error("failed to create week", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create week")
		return
	}

	h.refreshSegment(r.Context(), req.SegmentID)

	writeJSON(w, http.StatusCreated, map[string]int64{"week_id": week.WeekID})
}

// HandleFetchWeek triggers a batch sweep for one week and returns the
// sweep summary.
// POST /admin/weeks/{weekID}/fetch
func (h *AdminHandler) HandleFetchWeek(w http.ResponseWriter, r *http.Request) {
	weekID, err := strconv.ParseInt(chi.URLParam(r, "weekID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid week ID")
		return
	}

	summary, err := h.sweeper.FetchWeekResults(r.Context(), weekID)
	if err != nil {
		h.logger.Error("batch fetch failed", "week_id", weekID, "error", err)
		writeError(w, http.StatusInternalServerError, "batch fetch failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// refreshSegment fetches segment reference data using any connected
// participant's token. Best effort: leaderboards render segment IDs
// without it.
func (h *AdminHandler) refreshSegment(ctx context.Context, segmentID int64) {
	participantIDs, err := h.db.ListConnectedParticipantIDs()
	if err != nil || len(participantIDs) == 0 {
		h.logger.Warn("no connected participant to refresh segment data", "segment_id", segmentID)
		return
	}

	accessToken, err := h.tokens.GetValidAccessToken(ctx, participantIDs[0])
	if err != nil {
		h.logger.Warn("failed to get token for segment refresh", "segment_id", segmentID, "error", err)
		return
	}

	seg, err := h.segments.GetSegment(ctx, accessToken, segmentID)
	if err != nil {
		h.logger.Warn("failed to fetch segment data", "segment_id", segmentID, "error", err)
		return
	}

	if err := h.db.UpsertSegment(&database.Segment{
		SegmentID: seg.ID,
		Name:      seg.Name,
		DistanceM: seg.Distance,
		AvgGrade:  seg.AverageGrade,
		City:      seg.City,
	}); err != nil {
		h.logger.Warn("failed to store segment data", "segment_id", segmentID, "error", err)
	}
}
