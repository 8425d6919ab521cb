// Package keygate is a small client for the keygate license validation
// API. Client software embeds it to activate a license key against the
// local hardware id and to heartbeat it afterwards.
package keygate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the configuration for the keygate client.
type Config struct {
	// BaseURL is the root URL of the keygate server, e.g.
	// "https://license.example.com".
	BaseURL string

	// AppID identifies the application the key belongs to.
	AppID string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Client is the keygate SDK client.
type Client struct {
	cfg Config
}

// NewClient creates a new keygate client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

type apiResponse struct {
	Result               string `json:"result"`
	Error                string `json:"error"`
	RemainingActivations *int   `json:"remaining_activations"`
}

// Check re-validates a key bound to the given hardware id without
// consuming activation budget.
func (c *Client) Check(ctx context.Context, token, hwid, deviceName string) error {
	q := url.Values{}
	q.Set("token", token)
	q.Set("app_id", c.cfg.AppID)
	q.Set("hwid", hwid)
	if deviceName != "" {
		q.Set("device_name", deviceName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/check?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("keygate: failed to create request: %w", err)
	}

	_, err = c.do(req)
	return err
}

// Activate consumes one activation and binds the key to the given hardware
// id. Returns the remaining activation budget (-1 for unlimited keys).
func (c *Client) Activate(ctx context.Context, token, hwid, deviceName string) (int, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("app_id", c.cfg.AppID)
	form.Set("hwid", hwid)
	if deviceName != "" {
		form.Set("device_name", deviceName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/activate", strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("keygate: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	if resp.RemainingActivations == nil {
		return 0, &APIError{StatusCode: http.StatusOK, Message: "missing remaining_activations in response"}
	}
	return *resp.RemainingActivations, nil
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keygate: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("keygate: failed to read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if parsed.Result == "ok" {
		return &parsed, nil
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrInvalidKey
	case resp.StatusCode == http.StatusGone && strings.Contains(parsed.Error, "activations"):
		return nil, ErrActivationsExhausted
	case resp.StatusCode == http.StatusGone:
		return nil, ErrKeyInactive
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: parsed.Error}
	}
}
