package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

// seedWeek creates the season, participant and week rows a stored
// activity depends on
func seedWeek(t *testing.T, db *DB, participantIDs ...int64) *Week {
	t.Helper()

	seasonID, err := db.CreateSeason("Spring Series")
	require.NoError(t, err)

	for _, id := range participantIDs {
		require.NoError(t, db.UpsertParticipant(&Participant{
			ParticipantID: id,
			FirstName:     "Test",
			LastName:      "Rider",
		}))
	}

	now := time.Now().Unix()
	week := &Week{
		SeasonID:     seasonID,
		SegmentID:    9001,
		RequiredLaps: 2,
		StartAt:      now - 3600,
		EndAt:        now + 3600,
	}
	require.NoError(t, db.CreateWeek(week))

	return week
}

func TestParticipantRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertParticipant(&Participant{
		ParticipantID: 42,
		FirstName:     "Jo",
		LastName:      "Rider",
	}))

	p, err := db.GetParticipant(42)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Jo", p.FirstName)
	assert.Equal(t, "Rider", p.LastName)

	// Upsert updates in place
	require.NoError(t, db.UpsertParticipant(&Participant{
		ParticipantID: 42,
		FirstName:     "Joanna",
		LastName:      "Rider",
	}))
	p, err = db.GetParticipant(42)
	require.NoError(t, err)
	assert.Equal(t, "Joanna", p.FirstName)

	missing, err := db.GetParticipant(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTokenLifecycle(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertParticipant(&Participant{ParticipantID: 42}))

	token, err := db.GetToken(42)
	require.NoError(t, err)
	assert.Nil(t, token)

	require.NoError(t, db.UpsertToken(&OAuthToken{
		ParticipantID: 42,
		AccessToken:   "access-1",
		RefreshToken:  "refresh-1",
		ExpiresAt:     1000,
	}))

	token, err = db.GetToken(42)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "access-1", token.AccessToken)

	require.NoError(t, db.UpdateTokens(42, "access-2", "refresh-2", 2000))

	token, err = db.GetToken(42)
	require.NoError(t, err)
	assert.Equal(t, "access-2", token.AccessToken)
	assert.Equal(t, "refresh-2", token.RefreshToken)
	assert.Equal(t, int64(2000), token.ExpiresAt)

	// Updating a missing token errors rather than silently doing nothing
	assert.Error(t, db.UpdateTokens(999, "a", "r", 1))

	require.NoError(t, db.DeleteToken(42))
	token, err = db.GetToken(42)
	require.NoError(t, err)
	assert.Nil(t, token)
}

func TestListConnectedParticipantIDs(t *testing.T) {
	db := openTestDB(t)

	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, db.UpsertParticipant(&Participant{ParticipantID: id}))
	}
	// Only 1 and 3 hold tokens
	require.NoError(t, db.UpsertToken(&OAuthToken{ParticipantID: 3, AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, db.UpsertToken(&OAuthToken{ParticipantID: 1, AccessToken: "a", RefreshToken: "r"}))

	ids, err := db.ListConnectedParticipantIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestWeekCRUD(t *testing.T) {
	db := openTestDB(t)

	seasonID, err := db.CreateSeason("Spring Series")
	require.NoError(t, err)

	week := &Week{
		SeasonID:     seasonID,
		SegmentID:    9001,
		RequiredLaps: 3,
		StartAt:      100,
		EndAt:        200,
	}
	require.NoError(t, db.CreateWeek(week))
	assert.NotZero(t, week.WeekID)

	got, err := db.GetWeek(week.WeekID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.RequiredLaps)
	assert.Equal(t, int64(9001), got.SegmentID)

	weeks, err := db.ListWeeksBySeason(seasonID)
	require.NoError(t, err)
	assert.Len(t, weeks, 1)

	require.NoError(t, db.DeleteWeek(week.WeekID))
	got, err = db.GetWeek(week.WeekID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, db.DeleteWeek(week.WeekID))
}

func TestSegmentUpsert(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertSegment(&Segment{
		SegmentID: 9001,
		Name:      "Col du Test",
		DistanceM: 4200,
		AvgGrade:  7.5,
		City:      "Testville",
	}))

	seg, err := db.GetSegment(9001)
	require.NoError(t, err)
	require.NotNil(t, seg)
	assert.Equal(t, "Col du Test", seg.Name)

	require.NoError(t, db.UpsertSegment(&Segment{SegmentID: 9001, Name: "Renamed"}))
	seg, err = db.GetSegment(9001)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", seg.Name)
}

func TestSubscriptionSingleton(t *testing.T) {
	db := openTestDB(t)

	sub, err := db.GetSubscription()
	require.NoError(t, err)
	assert.Nil(t, sub)

	require.NoError(t, db.SaveSubscription(&Subscription{ID: 1, CallbackURL: "https://a.example/webhook-callback"}))
	require.NoError(t, db.SaveSubscription(&Subscription{ID: 2, CallbackURL: "https://b.example/webhook-callback"}))

	// Saving replaces, never accumulates
	sub, err = db.GetSubscription()
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, int64(2), sub.ID)

	require.NoError(t, db.DeleteSubscription())
	sub, err = db.GetSubscription()
	require.NoError(t, err)
	assert.Nil(t, sub)
}
