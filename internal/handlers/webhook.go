package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"club-segment-series/internal/database"
	"club-segment-series/internal/metrics"
	"club-segment-series/internal/processor"
)

// Enqueuer accepts parsed events for background processing
type Enqueuer interface {
	Enqueue(event *processor.Event, ledgerID int64) bool
}

// WebhookHandler serves the provider's callback endpoint
type WebhookHandler struct {
	db          *database.DB
	dispatcher  Enqueuer
	verifyToken string
	logger      *slog.Logger
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(db *database.DB, dispatcher Enqueuer, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		db:          db,
		dispatcher:  dispatcher,
		verifyToken: verifyToken,
		logger:      slog.Default(),
	}
}

// HandleVerification answers the provider's subscription challenge.
// GET /webhook-callback?hub.mode=subscribe&hub.challenge=X&hub.verify_token=Y
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	challenge := r.URL.Query().Get("hub.challenge")
	token := r.URL.Query().Get("hub.verify_token")

	if mode != "subscribe" || challenge == "" {
		writeError(w, http.StatusBadRequest, "invalid verification request")
		return
	}

	if token != h.verifyToken {
		h.logger.Warn("webhook verification with wrong token")
		writeError(w, http.StatusForbidden, "verify token mismatch")
		return
	}

	h.logger.Info("webhook subscription verified")

	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
}

// HandleEvent ingests one push notification. The ledger row is written
// and the event queued before responding; all fetching and scoring
// happens on the dispatcher so the provider gets its 200 immediately.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	event, err := processor.ParseEvent(body)
	if err != nil {
		h.logger.Warn("rejected malformed webhook event", "error", err)
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	metrics.WebhookEventsReceivedTotal.WithLabelValues(event.ObjectType, event.AspectType).Inc()

	ledgerRow := &database.WebhookEvent{
		ObjectType:     event.ObjectType,
		ObjectID:       event.ObjectID,
		AspectType:     event.AspectType,
		OwnerID:        event.OwnerID,
		SubscriptionID: event.SubscriptionID,
		EventTime:      event.EventTime,
		Updates:        encodeUpdates(event.Updates),
		RawJSON:        string(body),
	}
	if err := h.db.CreateWebhookEvent(ledgerRow); err != nil {
		h.logger.Error("failed to record webhook event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	if !h.dispatcher.Enqueue(event, ledgerRow.ID) {
		// Still ack: the provider must not retry, the ledger row plus
		// the batch fetch is the recovery path
		h.logger.Error("webhook queue full, event dropped",
			"ledger_id", ledgerRow.ID, "object_id", event.ObjectID)
		metrics.WebhookEventsProcessedTotal.WithLabelValues(
			event.ObjectType, event.AspectType, metrics.ResultDropped).Inc()

		msg := "queue full, event dropped"
		if err := h.db.MarkWebhookEventProcessed(ledgerRow.ID, &msg); err != nil {
			h.logger.Error("failed to annotate dropped event", "ledger_id", ledgerRow.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func encodeUpdates(updates map[string]string) *string {
	if len(updates) == 0 {
		return nil
	}
	b, err := json.Marshal(updates)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
