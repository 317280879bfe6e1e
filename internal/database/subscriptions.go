package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Subscription records the single active push-notification registration
type Subscription struct {
	ID          int64
	CallbackURL string
	CreatedAt   int64
}

// SaveSubscription stores the active subscription, replacing any previous one
func (db *DB) SaveSubscription(s *Subscription) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("failed to clear subscriptions: %w", err)
	}

	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}

	_, err = tx.Exec(`
		INSERT INTO subscriptions (id, callback_url, created_at) VALUES (?, ?, ?)
	`, s.ID, s.CallbackURL, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetSubscription returns the active subscription, or nil if none is recorded
func (db *DB) GetSubscription() (*Subscription, error) {
	var s Subscription
	err := db.conn.QueryRow(`
		SELECT id, callback_url, created_at FROM subscriptions LIMIT 1
	`).Scan(&s.ID, &s.CallbackURL, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &s, nil
}

// DeleteSubscription clears the recorded subscription
func (db *DB) DeleteSubscription() error {
	if _, err := db.conn.Exec(`DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}
