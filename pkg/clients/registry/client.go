// Package registry provides a client for the device registry service, which
// owns sensor inventory and tenant push-token bookkeeping. Watchman uses it to
// resolve a reporting device to its sensor/site/zone/tenant identity and to
// look up push tokens for alerting. Both lookups are best-effort: callers
// degrade gracefully when the registry is unavailable.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ohmguard/pkg/logging"
)

type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry returned status: %d", e.StatusCode)
}

// DeviceIdentity is the registry's view of a reporting device
type DeviceIdentity struct {
	DeviceID string  `json:"device_id"`
	SensorID *string `json:"sensor_id,omitempty"`
	SiteID   *string `json:"site_id,omitempty"`
	ZoneID   *string `json:"zone_id,omitempty"`
	TenantID *string `json:"tenant_id,omitempty"`
}

// Config holds client configuration
type Config struct {
	BaseURL      string
	ServiceToken string
	Logger       logging.Logger
	Timeout      time.Duration
}

type Client struct {
	baseURL      string
	serviceToken string
	client       *http.Client
	logger       logging.Logger
}

// NewClient creates a new registry client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		serviceToken: cfg.ServiceToken,
		client:       &http.Client{Timeout: timeout},
		logger:       cfg.Logger,
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// Resolve looks up the identity of a reporting device
func (c *Client) Resolve(ctx context.Context, deviceID string) (*DeviceIdentity, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	var identity DeviceIdentity
	path := "/api/devices/" + url.PathEscape(deviceID) + "/identity"
	if err := c.get(ctx, path, &identity); err != nil {
		return nil, fmt.Errorf("failed to resolve device %s: %w", deviceID, err)
	}
	return &identity, nil
}

// AlertTokens returns the push tokens registered for a tenant's caregivers
func (c *Client) AlertTokens(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	var payload struct {
		Tokens []string `json:"tokens"`
	}
	path := "/api/tenants/" + url.PathEscape(tenantID) + "/push-tokens"
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch push tokens for tenant %s: %w", tenantID, err)
	}
	return payload.Tokens, nil
}
