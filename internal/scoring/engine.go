// Package scoring recomputes ranks and points. Standings are always
// rederived in full from the stored activities and efforts, never
// mutated incrementally, so they self-heal after any deletion.
package scoring

import (
	"fmt"
	"log/slog"

	"club-segment-series/internal/database"
)

// Engine computes week and season standings
type Engine struct {
	db     *database.DB
	logger *slog.Logger
}

// NewEngine creates a scoring engine
func NewEngine(db *database.DB) *Engine {
	return &Engine{
		db:     db,
		logger: slog.Default(),
	}
}

// RefreshWeek recomputes the week's result rows from scratch.
//
// Participants are ordered by total time ascending and assigned ranks
// 1..N. Points are (N - rank) + 1, plus 1 when any stored effort set a
// personal record. Equal totals are ordered by participant ID so the
// output is deterministic.
func (e *Engine) RefreshWeek(weekID int64) error {
	rows, err := e.db.ListWeekActivities(weekID)
	if err != nil {
		return fmt.Errorf("failed to load week activities: %w", err)
	}

	n := len(rows)
	results := make([]*database.Result, 0, n)
	for i, row := range rows {
		rank := i + 1

		points := (n - rank) + 1
		if row.PRAchieved {
			points++
		}

		results = append(results, &database.Result{
			WeekID:           weekID,
			ParticipantID:    row.ParticipantID,
			Rank:             rank,
			TotalTimeSeconds: row.TotalTimeSeconds,
			Points:           points,
		})
	}

	if err := e.db.ReplaceWeekResults(weekID, results); err != nil {
		return fmt.Errorf("failed to store week results: %w", err)
	}

	e.logger.Info("week standings refreshed", "week_id", weekID, "participants", n)

	return nil
}

// GetWeekLeaderboard returns a week's standings in rank order
func (e *Engine) GetWeekLeaderboard(weekID int64) ([]*database.Result, error) {
	results, err := e.db.ListWeekResults(weekID)
	if err != nil {
		return nil, fmt.Errorf("failed to load week leaderboard: %w", err)
	}
	return results, nil
}

// GetSeasonLeaderboard returns season aggregates ordered by total points
// descending, then weeks completed descending
func (e *Engine) GetSeasonLeaderboard(seasonID int64) ([]*database.SeasonStanding, error) {
	standings, err := e.db.ListSeasonStandings(seasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to load season leaderboard: %w", err)
	}
	return standings, nil
}
