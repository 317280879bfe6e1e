package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceWeekResults(t *testing.T) {
	db := openTestDB(t)
	week := seedWeek(t, db, 1, 2)

	require.NoError(t, db.ReplaceWeekResults(week.WeekID, []*Result{
		{WeekID: week.WeekID, ParticipantID: 1, Rank: 1, TotalTimeSeconds: 500, Points: 2},
		{WeekID: week.WeekID, ParticipantID: 2, Rank: 2, TotalTimeSeconds: 600, Points: 1},
	}))

	results, err := db.ListWeekResults(week.WeekID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ParticipantID)
	assert.Equal(t, 2, results[0].Points)
	assert.NotZero(t, results[0].ComputedAt)

	// A replacement fully supersedes the previous set
	require.NoError(t, db.ReplaceWeekResults(week.WeekID, []*Result{
		{WeekID: week.WeekID, ParticipantID: 2, Rank: 1, TotalTimeSeconds: 450, Points: 1},
	}))

	results, err = db.ListWeekResults(week.WeekID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ParticipantID)
}

func TestListSeasonStandings(t *testing.T) {
	db := openTestDB(t)

	seasonID, err := db.CreateSeason("Spring Series")
	require.NoError(t, err)
	otherSeasonID, err := db.CreateSeason("Autumn Series")
	require.NoError(t, err)

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, db.UpsertParticipant(&Participant{ParticipantID: id}))
	}

	now := time.Now().Unix()
	makeWeek := func(seasonID int64) *Week {
		w := &Week{SeasonID: seasonID, SegmentID: 9001, RequiredLaps: 1, StartAt: now, EndAt: now + 3600}
		require.NoError(t, db.CreateWeek(w))
		return w
	}

	week1 := makeWeek(seasonID)
	week2 := makeWeek(seasonID)
	otherWeek := makeWeek(otherSeasonID)

	require.NoError(t, db.ReplaceWeekResults(week1.WeekID, []*Result{
		{WeekID: week1.WeekID, ParticipantID: 1, Rank: 1, TotalTimeSeconds: 500, Points: 3},
		{WeekID: week1.WeekID, ParticipantID: 2, Rank: 2, TotalTimeSeconds: 600, Points: 2},
	}))
	require.NoError(t, db.ReplaceWeekResults(week2.WeekID, []*Result{
		{WeekID: week2.WeekID, ParticipantID: 2, Rank: 1, TotalTimeSeconds: 400, Points: 3},
	}))
	// Points in another season must not leak in
	require.NoError(t, db.ReplaceWeekResults(otherWeek.WeekID, []*Result{
		{WeekID: otherWeek.WeekID, ParticipantID: 3, Rank: 1, TotalTimeSeconds: 300, Points: 10},
	}))

	standings, err := db.ListSeasonStandings(seasonID)
	require.NoError(t, err)
	require.Len(t, standings, 2)

	assert.Equal(t, int64(2), standings[0].ParticipantID)
	assert.Equal(t, 5, standings[0].TotalPoints)
	assert.Equal(t, 2, standings[0].WeeksCompleted)

	assert.Equal(t, int64(1), standings[1].ParticipantID)
	assert.Equal(t, 3, standings[1].TotalPoints)
	assert.Equal(t, 1, standings[1].WeeksCompleted)
}
