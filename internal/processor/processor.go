// Package processor turns provider push notifications into stored
// competition results. Intake acknowledges immediately; the actual
// fetch/match/store/score work runs on a background dispatcher.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"club-segment-series/internal/database"
	"club-segment-series/internal/match"
	"club-segment-series/internal/metrics"
	"club-segment-series/internal/strava"
	"club-segment-series/internal/tokens"
)

// ErrMalformedEvent means the payload is missing required fields; it is
// rejected at ingestion and never dispatched
var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is a parsed provider push notification
type Event struct {
	ObjectType     string            `json:"object_type"`
	AspectType     string            `json:"aspect_type"`
	ObjectID       int64             `json:"object_id"`
	OwnerID        int64             `json:"owner_id"`
	SubscriptionID int64             `json:"subscription_id"`
	EventTime      int64             `json:"event_time"`
	Updates        map[string]string `json:"updates,omitempty"`
}

// ParseEvent decodes and validates a raw webhook payload
func ParseEvent(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	if e.ObjectType == "" || e.AspectType == "" || e.ObjectID == 0 || e.OwnerID == 0 {
		return nil, fmt.Errorf("%w: missing required fields", ErrMalformedEvent)
	}

	return &e, nil
}

// TokenSource supplies valid access tokens
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, participantID int64) (string, error)
}

// ActivityFetcher retrieves an activity with its segment efforts
type ActivityFetcher interface {
	GetActivity(ctx context.Context, accessToken string, activityID int64) (*strava.DetailedActivity, error)
}

// Scorer refreshes a week's standings
type Scorer interface {
	RefreshWeek(weekID int64) error
}

// Processor applies one webhook event to the result set
type Processor struct {
	db      *database.DB
	tokens  TokenSource
	fetcher ActivityFetcher
	scorer  Scorer
	logger  *slog.Logger
}

// NewProcessor creates a webhook event processor
func NewProcessor(db *database.DB, tokenSource TokenSource, fetcher ActivityFetcher, scorer Scorer) *Processor {
	return &Processor{
		db:      db,
		tokens:  tokenSource,
		fetcher: fetcher,
		scorer:  scorer,
		logger:  slog.Default(),
	}
}

// Process handles one event and annotates its ledger row as processed
// or failed. Failures are terminal per event: there is no automatic
// retry, only the manual batch-fetch fallback.
func (p *Processor) Process(ctx context.Context, event *Event, ledgerID int64) {
	start := time.Now()

	err := p.apply(ctx, event)

	result := metrics.ResultSuccess
	var errMsg *string
	if err != nil {
		result = metrics.ResultFailure
		msg := err.Error()
		errMsg = &msg
		p.logger.Error("webhook event failed",
			"ledger_id", ledgerID,
			"object_type", event.ObjectType,
			"aspect_type", event.AspectType,
			"object_id", event.ObjectID,
			"error", err)
	} else {
		p.logger.Info("webhook event processed",
			"ledger_id", ledgerID,
			"object_type", event.ObjectType,
			"aspect_type", event.AspectType,
			"object_id", event.ObjectID)
	}

	metrics.WebhookEventsProcessedTotal.WithLabelValues(event.ObjectType, event.AspectType, result).Inc()
	metrics.WebhookProcessingDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if markErr := p.db.MarkWebhookEventProcessed(ledgerID, errMsg); markErr != nil {
		p.logger.Error("failed to annotate ledger row", "ledger_id", ledgerID, "error", markErr)
	}
}

// apply routes the event by (object_type, aspect_type)
func (p *Processor) apply(ctx context.Context, event *Event) error {
	switch event.ObjectType {
	case "activity":
		switch event.AspectType {
		case "create", "update":
			return p.applyActivityUpsert(ctx, event.OwnerID, event.ObjectID)
		case "delete":
			return p.applyActivityDelete(event.ObjectID)
		default:
			p.logger.Warn("ignoring unknown activity aspect", "aspect_type", event.AspectType)
			return nil
		}

	case "athlete":
		if event.AspectType != "update" {
			p.logger.Warn("ignoring unknown athlete aspect", "aspect_type", event.AspectType)
			return nil
		}
		return p.applyAthleteUpdate(event)

	default:
		p.logger.Warn("ignoring unknown object type", "object_type", event.ObjectType)
		return nil
	}
}

// applyActivityUpsert fetches the activity and stores it for every week
// it qualifies for. Safe to run twice for the same source activity: the
// store's same-activity comparison makes the second run a no-op rewrite.
func (p *Processor) applyActivityUpsert(ctx context.Context, ownerID, activityID int64) error {
	participant, err := p.db.GetParticipant(ownerID)
	if err != nil {
		return fmt.Errorf("failed to resolve participant: %w", err)
	}
	if participant == nil {
		p.logger.Warn("event for unknown participant, skipping", "owner_id", ownerID)
		return nil
	}

	accessToken, err := p.tokens.GetValidAccessToken(ctx, ownerID)
	if err != nil {
		if errors.Is(err, tokens.ErrNotConnected) {
			p.logger.Warn("participant not connected, skipping", "participant_id", ownerID)
			return nil
		}
		return fmt.Errorf("failed to get access token: %w", err)
	}

	activity, err := p.fetcher.GetActivity(ctx, accessToken, activityID)
	if err != nil {
		if strava.IsNotFound(err) {
			p.logger.Warn("activity not found upstream, skipping", "activity_id", activityID)
			return nil
		}
		return fmt.Errorf("failed to fetch activity: %w", err)
	}

	weeks, err := p.db.ListWeeks()
	if err != nil {
		return fmt.Errorf("failed to load weeks: %w", err)
	}

	matches := match.Match(activity, weeks)
	if len(matches) == 0 {
		// Normal negative outcome, not an error
		p.logger.Info("no qualifying week for activity",
			"participant_id", ownerID, "activity_id", activityID)
		return nil
	}

	for _, m := range matches {
		stored, err := p.db.UpsertBestActivity(
			&database.Activity{
				WeekID:             m.WeekID,
				ParticipantID:      ownerID,
				ExternalActivityID: activity.ID,
				TotalTimeSeconds:   m.TotalTimeSeconds,
			},
			effortRows(m.WeekID, ownerID, m.Efforts),
		)
		if err != nil {
			return fmt.Errorf("failed to store activity for week %d: %w", m.WeekID, err)
		}

		if !stored {
			p.logger.Info("existing activity is faster, keeping it",
				"participant_id", ownerID, "week_id", m.WeekID, "candidate_total", m.TotalTimeSeconds)
			continue
		}

		if err := p.scorer.RefreshWeek(m.WeekID); err != nil {
			return fmt.Errorf("failed to refresh week %d: %w", m.WeekID, err)
		}
		metrics.ScoringRefreshesTotal.Inc()
	}

	return nil
}

// applyActivityDelete removes the stored activity wherever it was the
// best and refreshes the affected weeks
func (p *Processor) applyActivityDelete(activityID int64) error {
	weekIDs, err := p.db.DeleteActivityByExternalID(activityID)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}

	for _, weekID := range weekIDs {
		if err := p.scorer.RefreshWeek(weekID); err != nil {
			return fmt.Errorf("failed to refresh week %d: %w", weekID, err)
		}
		metrics.ScoringRefreshesTotal.Inc()
	}

	p.logger.Info("activity deleted", "activity_id", activityID, "weeks_affected", len(weekIDs))

	return nil
}

// applyAthleteUpdate handles deauthorization: the token is deleted but
// historical activities and results are preserved for competition
// integrity
func (p *Processor) applyAthleteUpdate(event *Event) error {
	if event.Updates["authorized"] != "false" {
		p.logger.Info("ignoring athlete update that is not a deauthorization",
			"participant_id", event.OwnerID)
		return nil
	}

	if err := p.db.DeleteToken(event.OwnerID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	p.logger.Info("participant deauthorized, token removed", "participant_id", event.OwnerID)

	return nil
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
