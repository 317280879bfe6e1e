package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"club-segment-series/internal/database"
	"club-segment-series/internal/scoring"
)

// LeaderboardHandler serves the public standings endpoints
type LeaderboardHandler struct {
	db     *database.DB
	engine *scoring.Engine
	logger *slog.Logger
}

// NewLeaderboardHandler creates a leaderboard handler
func NewLeaderboardHandler(db *database.DB, engine *scoring.Engine) *LeaderboardHandler {
	return &LeaderboardHandler{
		db:     db,
		engine: engine,
		logger: slog.Default(),
	}
}

type weekEntry struct {
	Rank             int    `json:"rank"`
	ParticipantID    int64  `json:"participant_id"`
	Name             string `json:"name,omitempty"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
	Points           int    `json:"points"`
}

type weekLeaderboard struct {
	WeekID       int64       `json:"week_id"`
	SegmentID    int64       `json:"segment_id"`
	SegmentName  string      `json:"segment_name,omitempty"`
	RequiredLaps int         `json:"required_laps"`
	StartAt      int64       `json:"start_at"`
	EndAt        int64       `json:"end_at"`
	Entries      []weekEntry `json:"entries"`
}

// HandleWeek returns one week's standings.
// GET /leaderboard/weeks/{weekID}
func (h *LeaderboardHandler) HandleWeek(w http.ResponseWriter, r *http.Request) {
	weekID, err := strconv.ParseInt(chi.URLParam(r, "weekID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid week ID")
		return
	}

	week, err := h.db.GetWeek(weekID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load week")
		return
	}
	if week == nil {
		writeError(w, http.StatusNotFound, "week not found")
		return
	}

	results, err := h.engine.GetWeekLeaderboard(weekID)
	if err != nil {
		h.logger.Error("failed to load week leaderboard", "week_id", weekID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	board := weekLeaderboard{
		WeekID:       week.WeekID,
		SegmentID:    week.SegmentID,
		RequiredLaps: week.RequiredLaps,
		StartAt:      week.StartAt,
		EndAt:        week.EndAt,
		Entries:      make([]weekEntry, 0, len(results)),
	}

	if segment, err := h.db.GetSegment(week.SegmentID); err == nil && segment != nil {
		board.SegmentName = segment.Name
	}

	for _, res := range results {
		board.Entries = append(board.Entries, weekEntry{
			Rank:             res.Rank,
			ParticipantID:    res.ParticipantID,
			Name:             h.participantName(res.ParticipantID),
			TotalTimeSeconds: res.TotalTimeSeconds,
			Points:           res.Points,
		})
	}

	writeJSON(w, http.StatusOK, board)
}

type seasonEntry struct {
	ParticipantID  int64  `json:"participant_id"`
	Name           string `json:"name,omitempty"`
	TotalPoints    int    `json:"total_points"`
	WeeksCompleted int    `json:"weeks_completed"`
}

// HandleSeason returns season aggregate standings.
// GET /leaderboard/seasons/{seasonID}
func (h *LeaderboardHandler) HandleSeason(w http.ResponseWriter, r *http.Request) {
	seasonID, err := strconv.ParseInt(chi.URLParam(r, "seasonID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid season ID")
		return
	}

	season, err := h.db.GetSeason(seasonID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load season")
		return
	}
	if season == nil {
		writeError(w, http.StatusNotFound, "season not found")
		return
	}

	standings, err := h.engine.GetSeasonLeaderboard(seasonID)
	if err != nil {
		h.logger.Error("failed to load season leaderboard", "season_id", seasonID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	entries := make([]seasonEntry, 0, len(standings))
	for _, s := range standings {
		entries = append(entries, seasonEntry{
			ParticipantID:  s.ParticipantID,
			Name:           h.participantName(s.ParticipantID),
			TotalPoints:    s.TotalPoints,
			WeeksCompleted: s.WeeksCompleted,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"season_id": season.SeasonID,
		"name":      season.Name,
		"entries":   entries,
	})
}

func (h *LeaderboardHandler) participantName(participantID int64) string {
	p, err := h.db.GetParticipant(participantID)
	if err != nil || p == nil {
		return ""
	}
	return p.FirstName + " " + p.LastName
}

// HandleHealth reports liveness and database health.
// GET /health
func HandleHealth(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
