package tokens

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"club-segment-series/internal/database"
	"club-segment-series/internal/strava"
)

type stubRefreshClient struct {
	calls atomic.Int64
	err   error
}

func (s *stubRefreshClient) RefreshToken(ctx context.Context, refreshToken string) (*strava.TokenResponse, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	// Rotate like the real provider does
	time.Sleep(10 * time.Millisecond)
	return &strava.TokenResponse{
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
		ExpiresAt:    time.Now().Add(6 * time.Hour).Unix(),
	}, nil
}

func setupManager(t *testing.T, client RefreshClient) (*Manager, *database.DB) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewManager(db, client), db
}

func storeToken(t *testing.T, db *database.DB, participantID int64, expiresAt time.Time) {
	t.Helper()

	require.NoError(t, db.UpsertParticipant(&database.Participant{ParticipantID: participantID}))
	require.NoError(t, db.UpsertToken(&database.OAuthToken{
		ParticipantID: participantID,
		AccessToken:   "stored-access",
		RefreshToken:  "stored-refresh",
		ExpiresAt:     expiresAt.Unix(),
	}))
}

func TestGetValidAccessTokenFreshTokenNoRefresh(t *testing.T) {
	client := &stubRefreshClient{}
	mgr, db := setupManager(t, client)
	storeToken(t, db, 42, time.Now().Add(6*time.Hour))

	token, err := mgr.GetValidAccessToken(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "stored-access", token)
	assert.Zero(t, client.calls.Load())
}

func TestGetValidAccessTokenRefreshesNearExpiry(t *testing.T) {
	client := &stubRefreshClient{}
	mgr, db := setupManager(t, client)
	storeToken(t, db, 42, time.Now().Add(10*time.Minute))

	token, err := mgr.GetValidAccessToken(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, int64(1), client.calls.Load())

	// The rotated triple was persisted
	stored, err := db.GetToken(42)
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
}

func TestGetValidAccessTokenNotConnected(t *testing.T) {
	mgr, _ := setupManager(t, &stubRefreshClient{})

	_, err := mgr.GetValidAccessToken(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGetValidAccessTokenRefreshFailed(t *testing.T) {
	client := &stubRefreshClient{err: fmt.Errorf("invalid grant")}
	mgr, db := setupManager(t, client)
	storeToken(t, db, 42, time.Now().Add(-time.Hour))

	_, err := mgr.GetValidAccessToken(context.Background(), 42)
	assert.ErrorIs(t, err, ErrRefreshFailed)

	// The stored triple is untouched so a later re-authorization or
	// manual fix still has the original state
	stored, err := db.GetToken(42)
	require.NoError(t, err)
	assert.Equal(t, "stored-refresh", stored.RefreshToken)
}

func TestConcurrentRefreshSerialized(t *testing.T) {
	client := &stubRefreshClient{}
	mgr, db := setupManager(t, client)
	storeToken(t, db, 42, time.Now().Add(10*time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := mgr.GetValidAccessToken(context.Background(), 42)
			assert.NoError(t, err)
			assert.Equal(t, "access-1", token)
		}()
	}
	wg.Wait()

	// One refresh, not ten: the rotated refresh token would be dead
	// after the first use
	assert.Equal(t, int64(1), client.calls.Load())
}
