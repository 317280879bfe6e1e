package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookEventLedger(t *testing.T) {
	db := openTestDB(t)

	event := &WebhookEvent{
		ObjectType:     "activity",
		ObjectID:       12345,
		AspectType:     "create",
		OwnerID:        42,
		SubscriptionID: 7,
		EventTime:      1700000000,
		RawJSON:        `{"object_type":"activity"}`,
	}
	require.NoError(t, db.CreateWebhookEvent(event))
	assert.NotZero(t, event.ID)
	assert.NotZero(t, event.ReceivedAt)

	got, err := db.GetWebhookEvent(event.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Processed)
	assert.Nil(t, got.ProcessedAt)
	assert.Nil(t, got.Error)

	require.NoError(t, db.MarkWebhookEventProcessed(event.ID, nil))

	got, err = db.GetWebhookEvent(event.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.Error)
}

func TestMarkWebhookEventProcessedWithError(t *testing.T) {
	db := openTestDB(t)

	event := &WebhookEvent{
		ObjectType: "activity",
		ObjectID:   1,
		AspectType: "create",
		OwnerID:    42,
		RawJSON:    "{}",
	}
	require.NoError(t, db.CreateWebhookEvent(event))

	msg := "queue full, event dropped"
	require.NoError(t, db.MarkWebhookEventProcessed(event.ID, &msg))

	got, err := db.GetWebhookEvent(event.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Error)
	assert.Equal(t, msg, *got.Error)

	assert.Error(t, db.MarkWebhookEventProcessed(9999, nil))
}

func TestListWebhookEventsByOwner(t *testing.T) {
	db := openTestDB(t)

	for i, eventTime := range []int64{100, 300, 200} {
		require.NoError(t, db.CreateWebhookEvent(&WebhookEvent{
			ObjectType: "activity",
			ObjectID:   int64(i + 1),
			AspectType: "create",
			OwnerID:    42,
			EventTime:  eventTime,
			RawJSON:    "{}",
		}))
	}
	require.NoError(t, db.CreateWebhookEvent(&WebhookEvent{
		ObjectType: "activity",
		ObjectID:   99,
		AspectType: "create",
		OwnerID:    77,
		EventTime:  400,
		RawJSON:    "{}",
	}))

	events, err := db.ListWebhookEventsByOwner(42, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first
	assert.Equal(t, int64(300), events[0].EventTime)
	assert.Equal(t, int64(200), events[1].EventTime)
}
