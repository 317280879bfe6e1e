package strava

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-client-id", "test-client-secret")
	client.baseURL = server.URL
	client.tokenURL = server.URL + "/oauth/token"

	return client
}

func TestExchangeCode(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-client-id", body["client_id"])
		assert.Equal(t, "the-code", body["code"])
		assert.Equal(t, "authorization_code", body["grant_type"])

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_at":    1700000000,
			"athlete":       map[string]any{"id": 42, "firstname": "Jo"},
		})
	}))

	resp, err := client.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "new-access", resp.AccessToken)
	assert.Equal(t, "new-refresh", resp.RefreshToken)
	assert.Equal(t, int64(1700000000), resp.ExpiresAt)
	assert.NotEmpty(t, resp.Athlete)
}

func TestRefreshTokenRejected(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "invalid grant"}`))
	}))

	_, err := client.RefreshToken(context.Background(), "dead-refresh-token")
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestGetActivityParsesEfforts(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activities/100", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_all_efforts"))
		assert.Equal(t, "Bearer the-token", r.Header.Get("Authorization"))

		w.Header().Set("X-RateLimit-Limit", "200,2000")
		w.Header().Set("X-RateLimit-Usage", "50,400")
		w.Write([]byte(`{
			"id": 100,
			"name": "Morning Ride",
			"athlete": {"id": 42},
			"start_date": "2026-03-03T08:00:00Z",
			"start_date_local": "2026-03-03T09:00:00Z",
			"elapsed_time": 3600,
			"segment_efforts": [
				{"id": 1, "elapsed_time": 300, "pr_rank": 1, "segment": {"id": 9001, "name": "Col du Test"}},
				{"id": 2, "elapsed_time": 320, "pr_rank": null, "segment": {"id": 9001, "name": "Col du Test"}}
			]
		}`))
	}))

	activity, err := client.GetActivity(context.Background(), "the-token", 100)
	require.NoError(t, err)

	assert.Equal(t, int64(100), activity.ID)
	assert.Equal(t, int64(42), activity.Athlete.ID)
	require.Len(t, activity.SegmentEfforts, 2)
	assert.True(t, activity.SegmentEfforts[0].IsPR())
	assert.False(t, activity.SegmentEfforts[1].IsPR())
	assert.Equal(t, int64(9001), activity.SegmentEfforts[0].Segment.ID)

	// Rate limit headers were captured
	limit15, usage15, limitDaily, usageDaily := client.RateLimitCounts()
	assert.Equal(t, 200, limit15)
	assert.Equal(t, 50, usage15)
	assert.Equal(t, 2000, limitDaily)
	assert.Equal(t, 400, usageDaily)
}

func TestGetActivityNotFound(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Record Not Found"}`))
	}))

	_, err := client.GetActivity(context.Background(), "the-token", 100)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTooManyRequests(err))
	assert.False(t, IsUnauthorized(err))
}

func TestListActivitiesPagination(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/athlete/activities", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("after"))
		assert.Equal(t, "2000", r.URL.Query().Get("before"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))

		w.Write([]byte(`[
			{"id": 1, "start_date": "2026-03-03T08:00:00Z"},
			{"id": 2, "start_date": "2026-03-04T08:00:00Z"}
		]`))
	}))

	summaries, hasMore, err := client.ListActivities(context.Background(), "the-token", 1000, 2000, 1, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// A full page means more may follow
	assert.True(t, hasMore)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter()

	// Defaults before any header is seen
	limit15, usage15, limitDaily, usageDaily := rl.Counts()
	assert.Equal(t, 200, limit15)
	assert.Zero(t, usage15)
	assert.Equal(t, 2000, limitDaily)
	assert.Zero(t, usageDaily)
	assert.False(t, rl.IsNearLimit(80))

	rl.Update(200, 180, 2000, 500)

	status := rl.Status()
	assert.InDelta(t, 90.0, status.Usage15MinPct, 0.01)
	assert.InDelta(t, 25.0, status.UsageDailyPct, 0.01)
	assert.True(t, rl.IsNearLimit(80))
}
