// Package controlplane is the outbound client for the approving
// authority. Calls are bounded by timeout and best effort: no core read
// path depends on the control plane being reachable.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redstack/redmem/internal/model"
)

// Client talks to the control plane at a configured base URL.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New builds a client. A nil client is valid and does nothing.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Ping checks reachability for health payloads.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("control plane health: %d", resp.StatusCode)
	}
	return nil
}

// NotifyTransition tells the control plane about a world-state change.
// Failures are logged, never propagated: the transition already committed.
func (c *Client) NotifyTransition(ctx context.Context, ev *model.WorldEvent) {
	if c == nil || ev == nil {
		return
	}

	body, _ := json.Marshal(ev)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/world/notify", bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("control plane notify failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("control plane notify failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		c.logger.Warn("control plane notify rejected", "status", resp.StatusCode)
	}
}
