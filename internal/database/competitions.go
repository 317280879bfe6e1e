package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Season groups competition weeks
type Season struct {
	SeasonID  int64
	Name      string
	CreatedAt int64
}

// Segment mirrors Strava segment reference data
type Segment struct {
	SegmentID int64
	Name      string
	DistanceM float64
	AvgGrade  float64
	City      string
	UpdatedAt int64
}

// Week is one competition unit: a segment, a lap requirement, a time window
type Week struct {
	WeekID       int64
	SeasonID     int64
	SegmentID    int64
	RequiredLaps int
	StartAt      int64
	EndAt        int64
	CreatedAt    int64
}

// CreateSeason inserts a new season
func (db *DB) CreateSeason(name string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO seasons (name, created_at) VALUES (?, ?)
	`, name, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create season: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get season id: %w", err)
	}
	return id, nil
}

// GetSeason retrieves a season by ID, or nil if not found
func (db *DB) GetSeason(seasonID int64) (*Season, error) {
	var s Season
	err := db.conn.QueryRow(`
		SELECT season_id, name, created_at FROM seasons WHERE season_id = ?
	`, seasonID).Scan(&s.SeasonID, &s.Name, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get season: %w", err)
	}
	return &s, nil
}

// UpsertSegment stores segment reference data fetched from Strava
func (db *DB) UpsertSegment(s *Segment) error {
	_, err := db.conn.Exec(`
		INSERT INTO segments (segment_id, name, distance_m, avg_grade, city, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(segment_id) DO UPDATE SET
			name = excluded.name,
			distance_m = excluded.distance_m,
			avg_grade = excluded.avg_grade,
			city = excluded.city,
			updated_at = excluded.updated_at
	`, s.SegmentID, s.Name, s.DistanceM, s.AvgGrade, s.City, time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to upsert segment: %w", err)
	}
	return nil
}

// GetSegment retrieves a segment by ID, or nil if not found
func (db *DB) GetSegment(segmentID int64) (*Segment, error) {
	var s Segment
	err := db.conn.QueryRow(`
		SELECT segment_id, name, distance_m, avg_grade, city, updated_at
		FROM segments WHERE segment_id = ?
	`, segmentID).Scan(&s.SegmentID, &s.Name, &s.DistanceM, &s.AvgGrade, &s.City, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return &s, nil
}

// CreateWeek inserts a new competition week
func (db *DB) CreateWeek(w *Week) error {
	w.CreatedAt = time.Now().Unix()

	result, err := db.conn.Exec(`
		INSERT INTO weeks (season_id, segment_id, required_laps, start_at, end_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.SeasonID, w.SegmentID, w.RequiredLaps, w.StartAt, w.EndAt, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create week: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get week id: %w", err)
	}
	w.WeekID = id
	return nil
}

// GetWeek retrieves a week by ID, or nil if not found
func (db *DB) GetWeek(weekID int64) (*Week, error) {
	var w Week
	err := db.conn.QueryRow(`
		SELECT week_id, season_id, segment_id, required_laps, start_at, end_at, created_at
		FROM weeks WHERE week_id = ?
	`, weekID).Scan(&w.WeekID, &w.SeasonID, &w.SegmentID, &w.RequiredLaps, &w.StartAt, &w.EndAt, &w.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get week: %w", err)
	}
	return &w, nil
}

// ListWeeks returns all defined weeks, oldest first
func (db *DB) ListWeeks() ([]*Week, error) {
	rows, err := db.conn.Query(`
		SELECT week_id, season_id, segment_id, required_laps, start_at, end_at, created_at
		FROM weeks ORDER BY start_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}
	defer rows.Close()

	return scanWeeks(rows)
}

// ListWeeksBySeason returns all weeks in a season, oldest first
func (db *DB) ListWeeksBySeason(seasonID int64) ([]*Week, error) {
	rows, err := db.conn.Query(`
		SELECT week_id, season_id, segment_id, required_laps, start_at, end_at, created_at
		FROM weeks WHERE season_id = ? ORDER BY start_at ASC
	`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks by season: %w", err)
	}
	defer rows.Close()

	return scanWeeks(rows)
}

// DeleteWeek removes a week. Activities, efforts and results cascade.
func (db *DB) DeleteWeek(weekID int64) error {
	result, err := db.conn.Exec(`DELETE FROM weeks WHERE week_id = ?`, weekID)
	if err != nil {
		return fmt.Errorf("failed to delete week: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("week not found")
	}
	return nil
}

func scanWeeks(rows *sql.Rows) ([]*Week, error) {
	var weeks []*Week
	for rows.Next() {
		var w Week
		err := rows.Scan(&w.WeekID, &w.SeasonID, &w.SegmentID, &w.RequiredLaps, &w.StartAt, &w.EndAt, &w.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan week: %w", err)
		}
		weeks = append(weeks, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weeks: %w", err)
	}

	return weeks, nil
}
