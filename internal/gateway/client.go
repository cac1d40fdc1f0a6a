package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// Client is an HTTP client for the coordinator's runner-facing API. Every
// request carries the runner's credentials.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new coordinator client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coordinator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return resp.StatusCode, fmt.Errorf("coordinator error: %s", errResp.Error)
		}
		return resp.StatusCode, fmt.Errorf("coordinator returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Forward relays a raw request to the coordinator with credentials
// attached, returning the upstream status and body.
func (c *Client) Forward(ctx context.Context, method, pathAndQuery string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("coordinator request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// Register calls POST /runner/runners.
func (c *Client) Register(ctx context.Context, req domain.RegisterRunnerRequest) (*domain.Runner, error) {
	var runner domain.Runner
	if _, err := c.do(ctx, http.MethodPost, "/runner/runners", req, &runner); err != nil {
		return nil, err
	}
	return &runner, nil
}

// Heartbeat calls POST /runner/runners/:id/heartbeat.
func (c *Client) Heartbeat(ctx context.Context, runnerID string) error {
	_, err := c.do(ctx, http.MethodPost, "/runner/runners/"+runnerID+"/heartbeat", nil, nil)
	return err
}

// Poll calls GET /runner/runs and returns nil when no run is available.
func (c *Client) Poll(ctx context.Context, runnerID string, tags []string, wait time.Duration) (*domain.Run, error) {
	q := url.Values{}
	q.Set("runner_id", runnerID)
	if len(tags) > 0 {
		q.Set("tags", strings.Join(tags, ","))
	}
	if wait > 0 {
		q.Set("wait_ms", fmt.Sprintf("%d", wait.Milliseconds()))
	}

	var run domain.Run
	status, err := c.do(ctx, http.MethodGet, "/runner/runs?"+q.Encode(), nil, &run)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &run, nil
}

// ReportStarted calls POST /runner/runs/:id/started.
func (c *Client) ReportStarted(ctx context.Context, runID string) error {
	_, err := c.do(ctx, http.MethodPost, "/runner/runs/"+runID+"/started", nil, nil)
	return err
}

// ReportCompleted calls POST /runner/runs/:id/completed.
func (c *Client) ReportCompleted(ctx context.Context, runID string) error {
	_, err := c.do(ctx, http.MethodPost, "/runner/runs/"+runID+"/completed", nil, nil)
	return err
}

// ReportFailed calls POST /runner/runs/:id/failed.
func (c *Client) ReportFailed(ctx context.Context, runID, reason string) error {
	_, err := c.do(ctx, http.MethodPost, "/runner/runs/"+runID+"/failed",
		domain.ReportFailedRequest{Reason: reason}, nil)
	return err
}

// ReportStopped calls POST /runner/runs/:id/stopped.
func (c *Client) ReportStopped(ctx context.Context, runID string) error {
	_, err := c.do(ctx, http.MethodPost, "/runner/runs/"+runID+"/stopped", nil, nil)
	return err
}

// BindSession calls POST /runner/sessions/:id/bind.
func (c *Client) BindSession(ctx context.Context, sessionID string, req domain.BindSessionRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/runner/sessions/"+sessionID+"/bind", req, nil)
	return err
}

// AppendEvent calls POST /runner/sessions/:id/events.
func (c *Client) AppendEvent(ctx context.Context, sessionID string, req domain.AppendEventRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/runner/sessions/"+sessionID+"/events", req, nil)
	return err
}

// PatchMetadata calls PATCH /runner/sessions/:id/metadata.
func (c *Client) PatchMetadata(ctx context.Context, sessionID string, patch json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPatch, "/runner/sessions/"+sessionID+"/metadata", patch, nil)
	return err
}
