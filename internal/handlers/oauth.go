package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"club-segment-series/internal/oauth"
)

// OAuthHandler serves the participant connect flow
type OAuthHandler struct {
	manager *oauth.Manager
	baseURL string
	logger  *slog.Logger
}

// NewOAuthHandler creates an OAuth handler. baseURL is the public base
// URL used to build the redirect URI.
func NewOAuthHandler(manager *oauth.Manager, baseURL string) *OAuthHandler {
	return &OAuthHandler{
		manager: manager,
		baseURL: baseURL,
		logger:  slog.Default(),
	}
}

// HandleStart redirects the participant to Strava's authorization page
func (h *OAuthHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	authURL, _, err := h.manager.GenerateAuthURL(h.baseURL + "/oauth-callback")
	if err != nil {
		h.logger.Error("failed to generate auth URL", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start authorization")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback completes the connect flow after Strava redirects back
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("authorization denied", "error", errParam)
		writeError(w, http.StatusBadRequest, "authorization denied")
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "missing code or state")
		return
	}

	participantID, err := h.manager.HandleCallback(r.Context(), code, state)
	if err != nil {
		h.logger.Error("oauth callback failed", "error", err)
		writeError(w, http.StatusBadRequest, "failed to complete authorization")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "connected",
		"participant_id": fmt.Sprintf("%d", participantID),
	})
}
