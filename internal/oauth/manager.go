package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"club-segment-series/internal/database"
	"club-segment-series/internal/strava"
)

const (
	authorizationURL = "https://www.strava.com/oauth/authorize"
	scope            = "activity:read_all" // Read all activities including private ones
	stateTTL         = 10 * time.Minute
)

// Exchanger exchanges an authorization code at the provider
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*strava.TokenResponse, error)
}

// Manager handles the OAuth 2.0 connect flow with Strava
type Manager struct {
	clientID string
	db       *database.DB
	client   Exchanger
	logger   *slog.Logger
	states   *stateStore // CSRF protection
}

// stateStore tracks valid OAuth states for CSRF protection
type stateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
}

// NewManager creates a new OAuth manager
func NewManager(clientID string, db *database.DB, client Exchanger) *Manager {
	mgr := &Manager{
		clientID: clientID,
		db:       db,
		client:   client,
		logger:   slog.Default(),
		states: &stateStore{
			states: make(map[string]time.Time),
		},
	}

	go mgr.cleanupStates()

	return mgr
}

// GenerateAuthURL generates a Strava authorization URL with CSRF protection
func (m *Manager) GenerateAuthURL(redirectURI string) (string, string, error) {
	state, err := generateRandomState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	m.states.mu.Lock()
	m.states.states[state] = time.Now().Add(stateTTL)
	m.states.mu.Unlock()

	params := url.Values{
		"client_id":     {m.clientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {scope},
		"state":         {state},
	}

	authURL := fmt.Sprintf("%s?%s", authorizationURL, params.Encode())

	m.logger.Info("generated auth URL", "state", state)

	return authURL, state, nil
}

// HandleCallback processes the OAuth callback: exchanges the code and
// stores the participant and their token. Returns the participant ID.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (int64, error) {
	if !m.validateState(state) {
		return 0, fmt.Errorf("invalid or expired state")
	}

	tokenResp, err := m.client.ExchangeCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to exchange code: %w", err)
	}

	var athlete struct {
		ID        int64  `json:"id"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
	}
	if err := json.Unmarshal(tokenResp.Athlete, &athlete); err != nil {
		return 0, fmt.Errorf("failed to parse athlete data: %w", err)
	}

	if err := m.db.UpsertParticipant(&database.Participant{
		ParticipantID: athlete.ID,
		FirstName:     athlete.FirstName,
		LastName:      athlete.LastName,
	}); err != nil {
		return 0, fmt.Errorf("failed to upsert participant: %w", err)
	}

	if err := m.db.UpsertToken(&database.OAuthToken{
		ParticipantID: athlete.ID,
		AccessToken:   tokenResp.AccessToken,
		RefreshToken:  tokenResp.RefreshToken,
		ExpiresAt:     tokenResp.ExpiresAt,
	}); err != nil {
		return 0, fmt.Errorf("failed to store token: %w", err)
	}

	m.logger.Info("participant connected", "participant_id", athlete.ID)

	return athlete.ID, nil
}

// validateState checks a state and removes it (one-time use)
func (m *Manager) validateState(state string) bool {
	m.states.mu.Lock()
	defer m.states.mu.Unlock()

	expiry, exists := m.states.states[state]
	if !exists {
		return false
	}

	delete(m.states.states, state)

	return !time.Now().After(expiry)
}

// cleanupStates removes expired states every minute
func (m *Manager) cleanupStates() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.states.mu.Lock()
		now := time.Now()
		for state, expiry := range m.states.states {
			if now.After(expiry) {
				delete(m.states.states, state)
			}
		}
		m.states.mu.Unlock()
	}
}

// generateRandomState generates a cryptographically secure random state
func generateRandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
