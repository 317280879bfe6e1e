// Package match decides which competition weeks an activity qualifies
// for. Matching is a pure function of its inputs so it can be tested
// without a database or provider stub.
package match

import (
	"sort"

	"club-segment-series/internal/database"
	"club-segment-series/internal/strava"
)

// Result is one week an activity qualifies for
type Result struct {
	WeekID           int64
	TotalTimeSeconds int64

	// The required_laps fastest efforts on the week's segment; exactly
	// these are persisted with the activity
	Efforts []strava.SegmentEffort
}

// Match returns every week the activity qualifies for and the qualifying
// time for each.
//
// A week qualifies iff the activity started inside [start_at, end_at)
// and contains at least required_laps efforts on the week's segment.
// The qualifying time is the sum of the fastest required_laps efforts,
// not the first encountered. Overlapping windows on different segments
// mean one activity can qualify for several weeks, so every week is
// checked.
//
// Only the UTC start timestamp is consulted. The local-time variant
// shifts boundary-straddling activities into the wrong week.
func Match(activity *strava.DetailedActivity, weeks []*database.Week) []Result {
	startUnix := activity.StartDate.Unix()

	var results []Result
	for _, week := range weeks {
		if startUnix < week.StartAt || startUnix >= week.EndAt {
			continue
		}

		efforts := effortsOnSegment(activity.SegmentEfforts, week.SegmentID)
		if len(efforts) < week.RequiredLaps {
			continue
		}

		sort.Slice(efforts, func(i, j int) bool {
			return efforts[i].ElapsedTime < efforts[j].ElapsedTime
		})
		fastest := efforts[:week.RequiredLaps]

		var total int64
		for _, e := range fastest {
			total += e.ElapsedTime
		}

		results = append(results, Result{
			WeekID:           week.WeekID,
			TotalTimeSeconds: total,
			Efforts:          fastest,
		})
	}

	return results
}

func effortsOnSegment(efforts []strava.SegmentEffort, segmentID int64) []strava.SegmentEffort {
	var matched []strava.SegmentEffort
	for _, e := range efforts {
		if e.Segment.ID == segmentID {
			matched = append(matched, e)
		}
	}
	return matched
}
