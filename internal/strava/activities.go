package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DetailedActivity is an activity with its segment efforts.
//
// StartDate is the provider's UTC timestamp and is the only field
// competition matching may use. StartDateLocal is carried for display
// but must never feed the time-window check: an activity ridden near a
// week boundary can sit on different sides of it in local and UTC time.
type DetailedActivity struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Athlete        ActivityAthlete `json:"athlete"`
	StartDate      time.Time       `json:"start_date"`
	StartDateLocal time.Time       `json:"start_date_local"`
	ElapsedTime    int64           `json:"elapsed_time"`
	SegmentEfforts []SegmentEffort `json:"segment_efforts"`
}

// ActivityAthlete identifies the activity's owner
type ActivityAthlete struct {
	ID int64 `json:"id"`
}

// SegmentEffort is one timed completion of a segment within an activity.
// PRRank is 1 when the effort is the athlete's all-time best on the segment.
type SegmentEffort struct {
	ID          int64          `json:"id"`
	ElapsedTime int64          `json:"elapsed_time"`
	PRRank      *int           `json:"pr_rank"`
	Segment     SegmentSummary `json:"segment"`
}

// IsPR reports whether the effort set a personal record
func (e *SegmentEffort) IsPR() bool {
	return e.PRRank != nil && *e.PRRank == 1
}

// SegmentSummary is the segment metadata embedded in an effort
type SegmentSummary struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Distance     float64 `json:"distance"`
	AverageGrade float64 `json:"average_grade"`
	City         string  `json:"city"`
}

// ActivitySummary is an entry from the activity list endpoint
type ActivitySummary struct {
	ID        int64     `json:"id"`
	StartDate time.Time `json:"start_date"`
}

// GetActivity fetches an activity with all of its segment efforts
func (c *Client) GetActivity(ctx context.Context, accessToken string, activityID int64) (*DetailedActivity, error) {
	path := fmt.Sprintf("/activities/%d?include_all_efforts=true", activityID)

	body, err := c.doRequest(ctx, http.MethodGet, path, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity %d: %w", activityID, err)
	}

	var activity DetailedActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity: %w", err)
	}

	return &activity, nil
}

// ListActivities fetches one page of the athlete's activities inside
// the [after, before) window. Returns the page and whether more pages
// may be available.
func (c *Client) ListActivities(ctx context.Context, accessToken string, after, before int64, page, perPage int) ([]ActivitySummary, bool, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 200 // Strava max
	}

	params := url.Values{
		"after":    {strconv.FormatInt(after, 10)},
		"before":   {strconv.FormatInt(before, 10)},
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}

	path := "/athlete/activities?" + params.Encode()

	body, err := c.doRequest(ctx, http.MethodGet, path, accessToken)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list activities: %w", err)
	}

	var activities []ActivitySummary
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal activities: %w", err)
	}

	hasMore := len(activities) == perPage

	return activities, hasMore, nil
}
