package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Activity is the current best qualifying activity for a (week, participant)
type Activity struct {
	WeekID             int64
	ParticipantID      int64
	ExternalActivityID int64
	TotalTimeSeconds   int64
	ValidationStatus   string
	FetchedAt          int64
}

// SegmentEffort is one timed completion of the week's segment within an activity
type SegmentEffort struct {
	ID             int64
	WeekID         int64
	ParticipantID  int64
	ElapsedSeconds int64
	PRAchieved     bool
}

// UpsertBestActivity atomically replaces the stored activity for a
// (week, participant) pair when the candidate is better.
//
// The candidate wins when no activity is stored, when its total time is
// strictly lower, or when it is the same external activity re-fetched
// (idempotent re-store, and an update that slowed the time still takes
// effect). Efforts are replaced together with the activity row.
//
// Returns true if the candidate was stored. The read-compare-write runs
// in one transaction so concurrent webhook and batch writers cannot
// lose updates: whichever writer observes the better time wins.
func (db *DB) UpsertBestActivity(candidate *Activity, efforts []*SegmentEffort) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentExternalID, currentTotal int64
	err = tx.QueryRow(`
		SELECT external_activity_id, total_time_seconds
		FROM activities WHERE week_id = ? AND participant_id = ?
	`, candidate.WeekID, candidate.ParticipantID).Scan(&currentExternalID, &currentTotal)

	switch {
	case err == sql.ErrNoRows:
		// No stored activity, candidate wins
	case err != nil:
		return false, fmt.Errorf("failed to read current best: %w", err)
	case currentExternalID == candidate.ExternalActivityID:
		// Same source activity: re-store (idempotent, and picks up edits)
	case candidate.TotalTimeSeconds >= currentTotal:
		return false, nil
	}

	candidate.FetchedAt = time.Now().Unix()
	if candidate.ValidationStatus == "" {
		candidate.ValidationStatus = "valid"
	}

	_, err = tx.Exec(`
		INSERT INTO activities (week_id, participant_id, external_activity_id, total_time_seconds, validation_status, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(week_id, participant_id) DO UPDATE SET
			external_activity_id = excluded.external_activity_id,
			total_time_seconds = excluded.total_time_seconds,
			validation_status = excluded.validation_status,
			fetched_at = excluded.fetched_at
	`, candidate.WeekID, candidate.ParticipantID, candidate.ExternalActivityID,
		candidate.TotalTimeSeconds, candidate.ValidationStatus, candidate.FetchedAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert activity: %w", err)
	}

	_, err = tx.Exec(`
		DELETE FROM segment_efforts WHERE week_id = ? AND participant_id = ?
	`, candidate.WeekID, candidate.ParticipantID)
	if err != nil {
		return false, fmt.Errorf("failed to clear efforts: %w", err)
	}

	for _, e := range efforts {
		_, err = tx.Exec(`
			INSERT INTO segment_efforts (week_id, participant_id, elapsed_seconds, pr_achieved)
			VALUES (?, ?, ?, ?)
		`, candidate.WeekID, candidate.ParticipantID, e.ElapsedSeconds, e.PRAchieved)
		if err != nil {
			return false, fmt.Errorf("failed to insert effort: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// GetActivity retrieves the stored activity for a (week, participant), or nil
func (db *DB) GetActivity(weekID, participantID int64) (*Activity, error) {
	var a Activity
	err := db.conn.QueryRow(`
		SELECT week_id, participant_id, external_activity_id, total_time_seconds, validation_status, fetched_at
		FROM activities WHERE week_id = ? AND participant_id = ?
	`, weekID, participantID).Scan(
		&a.WeekID, &a.ParticipantID, &a.ExternalActivityID,
		&a.TotalTimeSeconds, &a.ValidationStatus, &a.FetchedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return &a, nil
}

// ListActivityEfforts returns the stored efforts for a (week, participant),
// fastest first
func (db *DB) ListActivityEfforts(weekID, participantID int64) ([]*SegmentEffort, error) {
	rows, err := db.conn.Query(`
		SELECT id, week_id, participant_id, elapsed_seconds, pr_achieved
		FROM segment_efforts
		WHERE week_id = ? AND participant_id = ?
		ORDER BY elapsed_seconds ASC
	`, weekID, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list efforts: %w", err)
	}
	defer rows.Close()

	var efforts []*SegmentEffort
	for rows.Next() {
		var e SegmentEffort
		if err := rows.Scan(&e.ID, &e.WeekID, &e.ParticipantID, &e.ElapsedSeconds, &e.PRAchieved); err != nil {
			return nil, fmt.Errorf("failed to scan effort: %w", err)
		}
		efforts = append(efforts, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating efforts: %w", err)
	}

	return efforts, nil
}

// DeleteActivityByExternalID removes the stored activity, its efforts and
// its result rows across every week it was stored against. Returns the
// affected week IDs so the caller can refresh their standings.
func (db *DB) DeleteActivityByExternalID(externalActivityID int64) ([]int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT week_id, participant_id FROM activities WHERE external_activity_id = ?
	`, externalActivityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find activity rows: %w", err)
	}

	type key struct{ weekID, participantID int64 }
	var keys []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.weekID, &k.participantID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}

	var weekIDs []int64
	for _, k := range keys {
		// Efforts cascade from the activities delete
		if _, err := tx.Exec(`
			DELETE FROM activities WHERE week_id = ? AND participant_id = ?
		`, k.weekID, k.participantID); err != nil {
			return nil, fmt.Errorf("failed to delete activity: %w", err)
		}
		if _, err := tx.Exec(`
			DELETE FROM results WHERE week_id = ? AND participant_id = ?
		`, k.weekID, k.participantID); err != nil {
			return nil, fmt.Errorf("failed to delete result: %w", err)
		}
		weekIDs = append(weekIDs, k.weekID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return weekIDs, nil
}

// WeekActivityRow is a stored activity joined with its PR flag, as the
// scoring engine consumes it
type WeekActivityRow struct {
	ParticipantID      int64
	ExternalActivityID int64
	TotalTimeSeconds   int64
	PRAchieved         bool
}

// ListWeekActivities returns every stored qualifying activity for a week,
// fastest first with participant ID as the deterministic secondary order
func (db *DB) ListWeekActivities(weekID int64) ([]*WeekActivityRow, error) {
	rows, err := db.conn.Query(`
		SELECT a.participant_id, a.external_activity_id, a.total_time_seconds,
		       COALESCE(MAX(e.pr_achieved), 0)
		FROM activities a
		LEFT JOIN segment_efforts e
			ON e.week_id = a.week_id AND e.participant_id = a.participant_id
		WHERE a.week_id = ?
		GROUP BY a.participant_id, a.external_activity_id, a.total_time_seconds
		ORDER BY a.total_time_seconds ASC, a.participant_id ASC
	`, weekID)
	if err != nil {
		return nil, fmt.Errorf("failed to list week activities: %w", err)
	}
	defer rows.Close()

	var result []*WeekActivityRow
	for rows.Next() {
		var r WeekActivityRow
		if err := rows.Scan(&r.ParticipantID, &r.ExternalActivityID, &r.TotalTimeSeconds, &r.PRAchieved); err != nil {
			return nil, fmt.Errorf("failed to scan week activity: %w", err)
		}
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating week activities: %w", err)
	}

	return result, nil
}
