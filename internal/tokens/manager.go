package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"club-segment-series/internal/database"
	"club-segment-series/internal/metrics"
	"club-segment-series/internal/strava"
)

// Refresh when the access token expires within this window
const refreshWindow = time.Hour

var (
	// ErrNotConnected means the participant has never authorized or has
	// deauthorized; not an error for a batch sweep as a whole
	ErrNotConnected = errors.New("participant not connected")

	// ErrRefreshFailed means the provider rejected the refresh token.
	// The participant is unreachable until they re-authorize; the
	// manager does not retry.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// RefreshClient exchanges a refresh token at the provider
type RefreshClient interface {
	RefreshToken(ctx context.Context, refreshToken string) (*strava.TokenResponse, error)
}

// Manager owns the per-participant OAuth credential lifecycle. It is the
// only component that calls the provider's token endpoint.
type Manager struct {
	db     *database.DB
	client RefreshClient
	logger *slog.Logger

	// Strava rotates the refresh token on every use, so two concurrent
	// refreshes for one participant would invalidate each other and
	// strand the account. Refresh is therefore serialized per
	// participant; different participants proceed independently.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewManager creates a token manager
func NewManager(db *database.DB, client RefreshClient) *Manager {
	return &Manager{
		db:     db,
		client: client,
		logger: slog.Default(),
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (m *Manager) participantLock(participantID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[participantID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[participantID] = lock
	}
	return lock
}

// GetValidAccessToken returns a usable access token for the participant,
// refreshing and persisting the stored triple first when it expires
// within the next hour.
func (m *Manager) GetValidAccessToken(ctx context.Context, participantID int64) (string, error) {
	lock := m.participantLock(participantID)
	lock.Lock()
	defer lock.Unlock()

	token, err := m.db.GetToken(participantID)
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	if token == nil {
		return "", fmt.Errorf("participant %d: %w", participantID, ErrNotConnected)
	}

	if time.Until(time.Unix(token.ExpiresAt, 0)) > refreshWindow {
		return token.AccessToken, nil
	}

	m.logger.Info("refreshing token", "participant_id", participantID, "expires_at", token.ExpiresAt)

	resp, err := m.client.RefreshToken(ctx, token.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return "", fmt.Errorf("participant %d: %w: %w", participantID, ErrRefreshFailed, err)
	}
	metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	// Persist before returning: the old refresh token is dead now
	if err := m.db.UpdateTokens(participantID, resp.AccessToken, resp.RefreshToken, resp.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to store refreshed token: %w", err)
	}

	m.logger.Info("token refreshed", "participant_id", participantID, "new_expires_at", resp.ExpiresAt)

	return resp.AccessToken, nil
}
