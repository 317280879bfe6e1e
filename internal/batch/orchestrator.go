// Package batch implements the admin-triggered sweep: fetch, match and
// store activities for every connected participant for one week. It is
// the manual fallback and reinforcement for webhook delivery.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"club-segment-series/internal/database"
	"club-segment-series/internal/match"
	"club-segment-series/internal/metrics"
	"club-segment-series/internal/strava"
	"club-segment-series/internal/tokens"
)

// Outcome classifies one participant's sweep result
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// TokenSource supplies valid access tokens
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, participantID int64) (string, error)
}

// ActivitySource lists and fetches a participant's activities
type ActivitySource interface {
	ListActivities(ctx context.Context, accessToken string, after, before int64, page, perPage int) ([]strava.ActivitySummary, bool, error)
	GetActivity(ctx context.Context, accessToken string, activityID int64) (*strava.DetailedActivity, error)
}

// Scorer refreshes a week's standings
type Scorer interface {
	RefreshWeek(weekID int64) error
}

// ParticipantOutcome is one participant's result in the sweep summary
type ParticipantOutcome struct {
	ParticipantID    int64  `json:"participant_id"`
	Outcome          string `json:"outcome"`
	ActivityID       int64  `json:"activity_id,omitempty"`
	TotalTimeSeconds int64  `json:"total_time_seconds,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// Summary aggregates a whole sweep
type Summary struct {
	WeekID       int64                `json:"week_id"`
	Processed    int                  `json:"processed"`
	Found        int                  `json:"found"`
	NotFound     int                  `json:"not_found"`
	Errored      int                  `json:"errored"`
	DurationMs   int64                `json:"duration_ms"`
	Participants []ParticipantOutcome `json:"participants"`
}

// Orchestrator runs batch fetch sweeps
type Orchestrator struct {
	db      *database.DB
	tokens  TokenSource
	client  ActivitySource
	scorer  Scorer
	logger  *slog.Logger
	workers int
	retries int
	backoff time.Duration
}

// NewOrchestrator creates a batch fetch orchestrator. workers bounds
// concurrent participants; retries bounds 429 backoff attempts per
// participant.
func NewOrchestrator(db *database.DB, tokenSource TokenSource, client ActivitySource, scorer Scorer, workers, retries int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if retries < 0 {
		retries = 0
	}
	return &Orchestrator{
		db:      db,
		tokens:  tokenSource,
		client:  client,
		scorer:  scorer,
		logger:  slog.Default(),
		workers: workers,
		retries: retries,
		backoff: 2 * time.Second,
	}
}

// FetchWeekResults sweeps every connected participant for one week.
// Individual participant failures are collected, never propagated: one
// stranded token must not abort the rest of the sweep. Standings are
// refreshed once at the end.
func (o *Orchestrator) FetchWeekResults(ctx context.Context, weekID int64) (*Summary, error) {
	start := time.Now()

	week, err := o.db.GetWeek(weekID)
	if err != nil {
		return nil, fmt.Errorf("failed to load week: %w", err)
	}
	if week == nil {
		return nil, fmt.Errorf("week %d not found", weekID)
	}

	participantIDs, err := o.db.ListConnectedParticipantIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list connected participants: %w", err)
	}

	o.logger.Info("starting batch sweep",
		"week_id", weekID,
		"participants", len(participantIDs),
		"workers", o.workers)

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make([]ParticipantOutcome, 0, len(participantIDs))
	)

	for _, participantID := range participantIDs {
		participantID := participantID
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			outcome := o.sweepParticipant(ctx, week, participantID)

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()

			metrics.BatchParticipantsTotal.WithLabelValues(outcome.Outcome).Inc()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			outcomes = append(outcomes, ParticipantOutcome{
				ParticipantID: participantID,
				Outcome:       OutcomeError,
				Reason:        fmt.Sprintf("failed to submit to pool: %v", submitErr),
			})
			mu.Unlock()
		}
	}

	wg.Wait()

	if err := o.scorer.RefreshWeek(weekID); err != nil {
		return nil, fmt.Errorf("failed to refresh week standings: %w", err)
	}

	summary := &Summary{
		WeekID:       weekID,
		Participants: outcomes,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	for _, oc := range outcomes {
		summary.Processed++
		switch oc.Outcome {
		case OutcomeFound:
			summary.Found++
		case OutcomeNotFound:
			summary.NotFound++
		case OutcomeError:
			summary.Errored++
		}
	}

	metrics.BatchSweepsTotal.Inc()
	metrics.BatchSweepDuration.Observe(time.Since(start).Seconds())

	o.logger.Info("batch sweep complete",
		"week_id", weekID,
		"processed", summary.Processed,
		"found", summary.Found,
		"not_found", summary.NotFound,
		"errored", summary.Errored,
		"duration_ms", summary.DurationMs)

	return summary, nil
}

// sweepParticipant fetches and matches one participant's activities
// against the single week being swept
func (o *Orchestrator) sweepParticipant(ctx context.Context, week *database.Week, participantID int64) ParticipantOutcome {
	accessToken, err := o.tokens.GetValidAccessToken(ctx, participantID)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrNotConnected):
			return ParticipantOutcome{ParticipantID: participantID, Outcome: OutcomeNotFound, Reason: "not connected"}
		case errors.Is(err, tokens.ErrRefreshFailed):
			return ParticipantOutcome{ParticipantID: participantID, Outcome: OutcomeError, Reason: "token refresh failed"}
		default:
			return ParticipantOutcome{ParticipantID: participantID, Outcome: OutcomeError, Reason: err.Error()}
		}
	}

	summaries, err := o.listWindow(ctx, accessToken, week)
	if err != nil {
		return ParticipantOutcome{ParticipantID: participantID, Outcome: OutcomeError, Reason: err.Error()}
	}

	var best *ParticipantOutcome
	for _, summary := range summaries {
		activity, err := o.getWithBackoff(ctx, accessToken, summary.ID)
		if err != nil {
			if strava.IsNotFound(err) {
				continue
			}
			return ParticipantOutcome{ParticipantID: participantID, Outcome: OutcomeError, Reason: err.Error()}
		}

		// Match against this week only
		matches := match.Match(activity, []*database.Week{week})
		if len(matches) == 0 {
			continue
		}
		m := matches[0]

		_, err = o.db.UpsertBestActivity(
			&database.Activity{
				WeekID:             week.WeekID,
				ParticipantID:      participantID,
				ExternalActivityID: activity.ID,
				TotalTimeSeconds:   m.TotalTimeSeconds,
			},
			effortRows(week.WeekID, participantID, m.Efforts),
		)
		if err != nil {
			return ParticipantOutcome{ParticipantID: participantID, Outcome: OutcomeError, Reason: err.Error()}
		}

		if best == nil || m.TotalTimeSeconds < best.TotalTimeSeconds {
			best = &ParticipantOutcome{
				ParticipantID:    participantID,
				Outcome:          OutcomeFound,
				ActivityID:       activity.ID,
				TotalTimeSeconds: m.TotalTimeSeconds,
			}
		}
	}

	if best == nil {
		return ParticipantOutcome{ParticipantID: participantID, Outcome: OutcomeNotFound, Reason: "no qualifying activity"}
	}
	return *best
}

// listWindow pages through the participant's activities inside the
// week's time window
func (o *Orchestrator) listWindow(ctx context.Context, accessToken string, week *database.Week) ([]strava.ActivitySummary, error) {
	var all []strava.ActivitySummary

	page := 1
	for {
		summaries, hasMore, err := o.listWithBackoff(ctx, accessToken, week.StartAt, week.EndAt, page)
		if err != nil {
			return nil, err
		}

		all = append(all, summaries...)

		if !hasMore {
			return all, nil
		}
		page++
	}
}

// listWithBackoff retries a rate-limited list call with bounded
// exponential backoff before giving up on this participant
func (o *Orchestrator) listWithBackoff(ctx context.Context, accessToken string, after, before int64, page int) ([]strava.ActivitySummary, bool, error) {
	delay := o.backoff

	for attempt := 0; ; attempt++ {
		summaries, hasMore, err := o.client.ListActivities(ctx, accessToken, after, before, page, 200)
		if err == nil {
			return summaries, hasMore, nil
		}
		if !strava.IsTooManyRequests(err) || attempt >= o.retries {
			return nil, false, err
		}

		o.logger.Warn("rate limited during sweep, backing off",
			"attempt", attempt+1, "delay_ms", delay.Milliseconds())

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// getWithBackoff retries a rate-limited activity fetch with bounded
// exponential backoff
func (o *Orchestrator) getWithBackoff(ctx context.Context, accessToken string, activityID int64) (*strava.DetailedActivity, error) {
	delay := o.backoff

	for attempt := 0; ; attempt++ {
		activity, err := o.client.GetActivity(ctx, accessToken, activityID)
		if err == nil {
			return activity, nil
		}
		if !strava.IsTooManyRequests(err) || attempt >= o.retries {
			return nil, err
		}

		o.logger.Warn("rate limited during sweep, backing off",
			"attempt", attempt+1, "delay_ms", delay.Milliseconds())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func effortRows(weekID, participantID int64, efforts []strava.SegmentEffort) []*database.SegmentEffort {
	rows := make([]*database.SegmentEffort, 0, len(efforts))
	for i := range efforts {
		rows = append(rows, &database.SegmentEffort{
			WeekID:         weekID,
			ParticipantID:  participantID,
			ElapsedSeconds: efforts[i].ElapsedTime,
			PRAchieved:     efforts[i].IsPR(),
		})
	}
	return rows
}
