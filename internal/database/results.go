package database

import (
	"fmt"
	"time"
)

// Result is a derived standings row. Never hand-edited: the scoring
// engine recomputes a whole week's rows on every change.
type Result struct {
	WeekID           int64
	ParticipantID    int64
	Rank             int
	TotalTimeSeconds int64
	Points           int
	ComputedAt       int64
}

// ReplaceWeekResults swaps in a freshly computed result set for a week
// in one transaction
func (db *DB) ReplaceWeekResults(weekID int64, results []*Result) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM results WHERE week_id = ?`, weekID); err != nil {
		return fmt.Errorf("failed to clear week results: %w", err)
	}

	now := time.Now().Unix()
	for _, r := range results {
		_, err := tx.Exec(`
			INSERT INTO results (week_id, participant_id, rank, total_time_seconds, points, computed_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, weekID, r.ParticipantID, r.Rank, r.TotalTimeSeconds, r.Points, now)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListWeekResults returns a week's standings in rank order
func (db *DB) ListWeekResults(weekID int64) ([]*Result, error) {
	rows, err := db.conn.Query(`
		SELECT week_id, participant_id, rank, total_time_seconds, points, computed_at
		FROM results WHERE week_id = ? ORDER BY rank ASC
	`, weekID)
	if err != nil {
		return nil, fmt.Errorf("failed to list week results: %w", err)
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		var r Result
		err := rows.Scan(&r.WeekID, &r.ParticipantID, &r.Rank, &r.TotalTimeSeconds, &r.Points, &r.ComputedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return results, nil
}

// SeasonStanding is a participant's aggregate over a season's weeks
type SeasonStanding struct {
	ParticipantID  int64
	TotalPoints    int
	WeeksCompleted int
}

// ListSeasonStandings aggregates weekly points across a season, ordered
// by total points descending then weeks completed descending
func (db *DB) ListSeasonStandings(seasonID int64) ([]*SeasonStanding, error) {
	rows, err := db.conn.Query(`
		SELECT r.participant_id, SUM(r.points), COUNT(r.week_id)
		FROM results r
		JOIN weeks w ON w.week_id = r.week_id
		WHERE w.season_id = ?
		GROUP BY r.participant_id
		ORDER BY SUM(r.points) DESC, COUNT(r.week_id) DESC, r.participant_id ASC
	`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list season standings: %w", err)
	}
	defer rows.Close()

	var standings []*SeasonStanding
	for rows.Next() {
		var s SeasonStanding
		if err := rows.Scan(&s.ParticipantID, &s.TotalPoints, &s.WeeksCompleted); err != nil {
			return nil, fmt.Errorf("failed to scan season standing: %w", err)
		}
		standings = append(standings, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating season standings: %w", err)
	}

	return standings, nil
}
