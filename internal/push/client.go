// Package push delivers caregiver alerts through the Expo push gateway. The
// gateway is an independent collaborator: delivery failures are logged and
// never propagate into the event pipeline.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ohmguard/pkg/logging"
)

// DefaultGatewayURL is the Expo push endpoint
const DefaultGatewayURL = "https://exp.host/--/api/v2/push/send"

const (
	alertSound   = "notification_alert.wav"
	alertChannel = "fall-alerts"
	tokenPrefix  = "ExponentPushToken"
)

type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("push gateway returned status: %d", e.StatusCode)
}

// Message is the gateway request body for one notification
type Message struct {
	To        string                 `json:"to"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data"`
	Priority  string                 `json:"priority"`
	Sound     string                 `json:"sound"`
	ChannelID string                 `json:"channelId"`
}

type gatewayResponse struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
}

type Client struct {
	gatewayURL string
	client     *http.Client
	logger     logging.Logger
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// NewClient creates a push gateway client
func NewClient(gatewayURL string, logger logging.Logger, opts ...Option) *Client {
	if gatewayURL == "" {
		gatewayURL = DefaultGatewayURL
	}
	c := &Client{
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send delivers one notification with the fall-alert sound and channel.
// Returns false for invalid tokens and gateway rejections.
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]interface{}) (bool, error) {
	if !strings.HasPrefix(token, tokenPrefix) {
		c.logger.WithField("token", truncateToken(token)).Warn("Invalid push token")
		return false, nil
	}

	if data == nil {
		data = map[string]interface{}{}
	}

	message := Message{
		To:        token,
		Title:     title,
		Body:      body,
		Data:      data,
		Priority:  "high",
		Sound:     alertSound,
		ChannelID: alertChannel,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return false, fmt.Errorf("failed to marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.gatewayURL, bytes.NewBuffer(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("push gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, &APIError{StatusCode: resp.StatusCode}
	}

	var result gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode push gateway response: %w", err)
	}
	if result.Data.Status != "ok" {
		c.logger.WithField("status", result.Data.Status).Warn("Push notification rejected by gateway")
		return false, nil
	}

	c.logger.WithField("token", truncateToken(token)).Info("Push notification sent")
	return true, nil
}

// FallAlertResult reports the outcome per token
type FallAlertResult struct {
	Token   string `json:"token"`
	Success bool   `json:"success"`
}

// SendFallAlert fans a fall alert out to every registered token. Individual
// failures do not abort delivery to the remaining tokens.
func (c *Client) SendFallAlert(ctx context.Context, tokens []string, residentName, location string) []FallAlertResult {
	title := "🚨 ALERTE CHUTE"
	body := "Chute détectée - " + residentName
	if location != "" {
		body += " (" + location + ")"
	}

	data := map[string]interface{}{
		"type":      "fall_alert",
		"resident":  residentName,
		"location":  location,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	results := make([]FallAlertResult, 0, len(tokens))
	for _, token := range tokens {
		success, err := c.Send(ctx, token, title, body, data)
		if err != nil {
			c.logger.WithError(err).WithField("token", truncateToken(token)).Error("Error sending push notification")
		}
		results = append(results, FallAlertResult{Token: truncateToken(token), Success: success})
	}

	return results
}

// truncateToken shortens a token for logging so full tokens never land in logs
func truncateToken(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
