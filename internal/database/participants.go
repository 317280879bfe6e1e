package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Participant represents a club member keyed by their Strava athlete ID
type Participant struct {
	ParticipantID int64
	FirstName     string
	LastName      string
	CreatedAt     int64
	UpdatedAt     int64
}

// OAuthToken holds a participant's Strava credentials
type OAuthToken struct {
	ParticipantID int64
	AccessToken   string
	RefreshToken  string
	ExpiresAt     int64
	CreatedAt     int64
	UpdatedAt     int64
}

// UpsertParticipant inserts or updates a participant record
func (db *DB) UpsertParticipant(p *Participant) error {
	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO participants (participant_id, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			updated_at = excluded.updated_at
	`, p.ParticipantID, p.FirstName, p.LastName, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves a participant by ID, or nil if not found
func (db *DB) GetParticipant(participantID int64) (*Participant, error) {
	var p Participant
	err := db.conn.QueryRow(`
		SELECT participant_id, first_name, last_name, created_at, updated_at
		FROM participants WHERE participant_id = ?
	`, participantID).Scan(&p.ParticipantID, &p.FirstName, &p.LastName, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

// UpsertToken stores a participant's OAuth token, replacing any existing one
func (db *DB) UpsertToken(t *OAuthToken) error {
	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO oauth_tokens (participant_id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, t.ParticipantID, t.AccessToken, t.RefreshToken, t.ExpiresAt, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

// GetToken retrieves a participant's token, or nil if they are not connected
func (db *DB) GetToken(participantID int64) (*OAuthToken, error) {
	var t OAuthToken
	err := db.conn.QueryRow(`
		SELECT participant_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM oauth_tokens WHERE participant_id = ?
	`, participantID).Scan(&t.ParticipantID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &t, nil
}

// UpdateTokens overwrites a participant's token triple after a refresh
func (db *DB) UpdateTokens(participantID int64, accessToken, refreshToken string, expiresAt int64) error {
	result, err := db.conn.Exec(`
		UPDATE oauth_tokens
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE participant_id = ?
	`, accessToken, refreshToken, expiresAt, time.Now().Unix(), participantID)

	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("token not found for participant %d", participantID)
	}

	return nil
}

// DeleteToken removes a participant's token. Historical activities and
// results are preserved for competition integrity.
func (db *DB) DeleteToken(participantID int64) error {
	_, err := db.conn.Exec(`DELETE FROM oauth_tokens WHERE participant_id = ?`, participantID)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// ListConnectedParticipantIDs returns the IDs of every participant
// currently holding a token
func (db *DB) ListConnectedParticipantIDs() ([]int64, error) {
	rows, err := db.conn.Query(`SELECT participant_id FROM oauth_tokens ORDER BY participant_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return ids, nil
}
