// Package invalidate issues CDN cache invalidation requests after a
// successful publish.
package invalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docship/internal/config"
)

// Client talks to the CDN provider's invalidation API.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	distributionID string
	token          string
}

// Request is the invalidation payload. CallerReference deduplicates
// retried submissions on the provider side.
type Request struct {
	DistributionID  string   `json:"distribution_id"`
	Paths           []string `json:"paths"`
	CallerReference string   `json:"caller_reference"`
}

// Response is the provider's acknowledgement.
type Response struct {
	InvalidationID string `json:"invalidation_id"`
	Status         string `json:"status"`
}

// NewClient creates an invalidation client from CDN configuration.
// Returns nil when no endpoint is configured; callers treat a nil
// client as invalidation disabled.
func NewClient(cfg config.CDN) *Client {
	if cfg.Endpoint == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		endpoint:       strings.TrimSuffix(cfg.Endpoint, "/"),
		distributionID: cfg.DistributionID,
		token:          cfg.Token,
	}
}

// InvalidatePrefix evicts every cached object under the destination
// prefix. There is no completion polling: the provider acknowledges
// the request and propagation happens on its own schedule.
func (c *Client) InvalidatePrefix(ctx context.Context, destPrefix string) (*Response, error) {
	path := "/" + strings.Trim(destPrefix, "/") + "/*"
	return c.invalidate(ctx, []string{path})
}

func (c *Client) invalidate(ctx context.Context, paths []string) (*Response, error) {
	reqBody := Request{
		DistributionID:  c.distributionID,
		Paths:           paths,
		CallerReference: uuid.NewString(),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invalidation request: %w", err)
	}

	url := c.endpoint + "/invalidations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build invalidation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invalidation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("invalidation rejected: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var ack Response
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("failed to decode invalidation response: %w", err)
	}

	slog.Info("CDN invalidation submitted",
		slog.String("distribution", c.distributionID),
		slog.Any("paths", paths),
		slog.String("invalidation_id", ack.InvalidationID))
	return &ack, nil
}
