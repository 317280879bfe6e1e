package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DetailedSegment is the segment reference data from the segment endpoint
type DetailedSegment struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Distance     float64 `json:"distance"`
	AverageGrade float64 `json:"average_grade"`
	City         string  `json:"city"`
}

// GetSegment fetches segment metadata
func (c *Client) GetSegment(ctx context.Context, accessToken string, segmentID int64) (*DetailedSegment, error) {
	path := fmt.Sprintf("/segments/%d", segmentID)

	body, err := c.doRequest(ctx, http.MethodGet, path, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get segment %d: %w", segmentID, err)
	}

	var segment DetailedSegment
	if err := json.Unmarshal(body, &segment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal segment: %w", err)
	}

	return &segment, nil
}
