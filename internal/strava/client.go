package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://www.strava.com/api/v3"
	defaultTokenURL = "https://www.strava.com/oauth/token"
	maxRetries      = 3
	initialDelay    = 1 * time.Second
	maxDelay        = 2 * time.Minute
)

// Client is a Strava API client
type Client struct {
	httpClient   *http.Client
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	logger       *slog.Logger
	rateLimiter  *RateLimiter
}

// NewClient creates a new Strava API client
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      defaultBaseURL,
		tokenURL:     defaultTokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       slog.Default(),
		rateLimiter:  NewRateLimiter(),
	}
}

// HTTPError is a non-2xx response from the Strava API
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("strava api error (status %d): %s", e.StatusCode, e.Body)
}

// IsTooManyRequests reports whether err is a 429 response
func IsTooManyRequests(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports whether err is a 401 response
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// TokenResponse represents the response from a token exchange or refresh
type TokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    int64           `json:"expires_at"`
	ExpiresIn    int             `json:"expires_in"`
	Athlete      json.RawMessage `json:"athlete,omitempty"`
}

// ExchangeCode exchanges an authorization code for access and refresh tokens
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
	}, "token_exchange")
}

// RefreshToken exchanges a refresh token for a new token triple. Strava
// rotates the refresh token on every use, so the caller must persist the
// returned triple before using the access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	}, "token_refresh")
}

func (c *Client) tokenRequest(ctx context.Context, data map[string]string, op string) (*TokenResponse, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("token request failed", "op", op, "error", err, "duration_ms", duration.Milliseconds())
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Info(op, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &tokenResp, nil
}

// doRequest performs an authenticated API request with bounded retries
// on transient failures (429 and 5xx)
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string) ([]byte, error) {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying request", "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			c.logger.Error("request failed", "method", method, "path", path, "error", err, "attempt", attempt)
			continue
		}

		c.parseRateLimitHeaders(resp.Header)

		c.logger.Info("strava_api_request",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds())

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read response body: %w", err)
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if retryAfter := c.parseRetryAfter(resp.Header); retryAfter > 0 {
				delay = retryAfter
			}
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: "rate limited"}
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: "server error"}
			continue

		default:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseRateLimitHeaders extracts rate limit information from response headers
func (c *Client) parseRateLimitHeaders(headers http.Header) {
	limitHeader := headers.Get("X-RateLimit-Limit")
	usageHeader := headers.Get("X-RateLimit-Usage")

	if limitHeader == "" || usageHeader == "" {
		return
	}

	limits := strings.Split(limitHeader, ",")
	usages := strings.Split(usageHeader, ",")
	if len(limits) != 2 || len(usages) != 2 {
		return
	}

	limit15, _ := strconv.Atoi(strings.TrimSpace(limits[0]))
	limitDaily, _ := strconv.Atoi(strings.TrimSpace(limits[1]))
	usage15, _ := strconv.Atoi(strings.TrimSpace(usages[0]))
	usageDaily, _ := strconv.Atoi(strings.TrimSpace(usages[1]))

	c.rateLimiter.Update(limit15, usage15, limitDaily, usageDaily)

	c.logger.Debug("rate_limit",
		"limit_15min", limit15,
		"usage_15min", usage15,
		"limit_daily", limitDaily,
		"usage_daily", usageDaily)
}

// parseRetryAfter extracts retry delay from the Retry-After header
func (c *Client) parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// GetRateLimitStatus returns the current rate limit status
func (c *Client) GetRateLimitStatus() RateLimitStatus {
	return c.rateLimiter.Status()
}

// RateLimitCounts returns the raw rate limit numbers for metrics export
func (c *Client) RateLimitCounts() (limit15, usage15, limitDaily, usageDaily int) {
	return c.rateLimiter.Counts()
}
