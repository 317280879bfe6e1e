// Package subscription establishes exactly one active push-notification
// subscription with the provider.
package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"club-segment-series/internal/database"
	"club-segment-series/internal/strava"
)

// State of the subscription lifecycle
type State string

const (
	StateUnsubscribed        State = "UNSUBSCRIBED"
	StatePendingVerification State = "PENDING_VERIFICATION"
	StateActive              State = "ACTIVE"
	StateDisabled            State = "DISABLED"
)

// SubscriptionAPI is the provider's push-subscription surface
type SubscriptionAPI interface {
	CreateSubscription(ctx context.Context, callbackURL, verifyToken string) (*strava.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*strava.Subscription, error)
}

// Manager drives UNSUBSCRIBED -> PENDING_VERIFICATION -> ACTIVE
type Manager struct {
	db          *database.DB
	client      SubscriptionAPI
	callbackURL string
	verifyToken string
	logger      *slog.Logger

	state State
}

// NewManager creates a subscription manager. Empty callbackURL or
// verifyToken leaves the feature disabled.
func NewManager(db *database.DB, client SubscriptionAPI, callbackURL, verifyToken string) *Manager {
	return &Manager{
		db:          db,
		client:      client,
		callbackURL: callbackURL,
		verifyToken: verifyToken,
		logger:      slog.Default(),
		state:       StateUnsubscribed,
	}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	return m.state
}

// EnsureSubscription adopts an existing provider subscription for our
// callback URL or registers a new one. The provider verifies the
// callback synchronously during registration (the challenge handshake
// is served by the webhook verification handler), so a successful
// create means ACTIVE.
//
// Missing configuration is a soft failure: the feature stays disabled
// and the rest of the system runs. Push delivery is then covered by
// manual batch fetches.
func (m *Manager) EnsureSubscription(ctx context.Context) error {
	if m.callbackURL == "" || m.verifyToken == "" {
		m.state = StateDisabled
		m.logger.Warn("webhook subscription disabled: callback URL or verify token not configured")
		return nil
	}

	existing, err := m.client.ListSubscriptions(ctx)
	if err != nil {
		m.state = StateDisabled
		m.logger.Error("failed to list provider subscriptions, webhooks disabled", "error", err)
		return nil
	}

	for _, sub := range existing {
		if sub.CallbackURL == m.callbackURL {
			m.state = StateActive
			m.logger.Info("adopted existing subscription",
				"subscription_id", sub.ID, "callback_url", sub.CallbackURL)
			return m.db.SaveSubscription(&database.Subscription{
				ID:          sub.ID,
				CallbackURL: sub.CallbackURL,
			})
		}
	}

	m.state = StatePendingVerification
	m.logger.Info("registering subscription", "callback_url", m.callbackURL)

	sub, err := m.client.CreateSubscription(ctx, m.callbackURL, m.verifyToken)
	if err != nil {
		m.state = StateDisabled
		m.logger.Error("subscription registration failed, webhooks disabled", "error", err)
		return nil
	}

	m.state = StateActive
	m.logger.Info("subscription active", "subscription_id", sub.ID)

	if err := m.db.SaveSubscription(&database.Subscription{
		ID:          sub.ID,
		CallbackURL: sub.CallbackURL,
	}); err != nil {
		return fmt.Errorf("failed to record subscription: %w", err)
	}

	return nil
}
