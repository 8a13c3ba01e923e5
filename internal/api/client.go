package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"adspilot/internal/auth"
)

const defaultBaseURL = "http://localhost:8000/api"

// ErrUnauthenticated is returned when the backend rejects the credential.
// The stored token has already been cleared when this is returned; the caller
// decides how to prompt for a new login.
var ErrUnauthenticated = errors.New("unauthenticated — run 'adspilot login' to store a new token")

// Client talks to the copilot backend. The bearer credential comes from the
// injected auth store on every request, never from global state.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	creds        *auth.Store
	logger       *slog.Logger
}

func NewClient(baseURL string, creds *auth.Store, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		// Streams outlive any sane request timeout; the context governs them.
		streamClient: &http.Client{},
		creds:        creds,
		logger:       logger,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	token, err := c.creds.Token()
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	c.logger.Debug("API request", "method", method, "path", path)

	var resp *http.Response
	maxRetries := 3
	requestStart := time.Now()
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if attempt == maxRetries {
				c.logger.Error("API request transport error", "method", method, "path", path, "error", err, "elapsed", time.Since(requestStart))
				return nil, fmt.Errorf("sending request: %w", err)
			}
			c.logger.Debug("API request transport error, retrying", "method", method, "path", path, "attempt", attempt+1, "error", err)
			time.Sleep(backoff(attempt))
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				c.logger.Error("API request failed after retries", "method", method, "path", path, "status", resp.StatusCode, "attempts", maxRetries+1, "elapsed", time.Since(requestStart))
				return nil, fmt.Errorf("API returned status %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.logger.Debug("API request retryable error", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt+1)
			time.Sleep(backoff(attempt))
			continue
		}
		break
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("API response", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(respBody), "elapsed", time.Since(requestStart))

	if resp.StatusCode == http.StatusUnauthorized {
		if err := c.creds.Clear(); err != nil {
			c.logger.Error("clearing rejected credential", "error", err)
		}
		return nil, ErrUnauthenticated
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("API request failed", "method", method, "path", path, "status", resp.StatusCode, "response", truncate(string(respBody), 200))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	return respBody, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ListApprovals fetches proposals, optionally filtered by status. Order is
// whatever the backend returns; the client imposes no sort of its own.
func (c *Client) ListApprovals(ctx context.Context, status Status) ([]Approval, error) {
	path := "/approvals/"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}

	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("listing approvals: %w", err)
	}

	var approvals []Approval
	if err := json.Unmarshal(data, &approvals); err != nil {
		return nil, fmt.Errorf("parsing approvals response: %w", err)
	}

	return approvals, nil
}

// PendingCount returns the number of proposals awaiting a decision.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/approvals/pending/count", nil)
	if err != nil {
		return 0, fmt.Errorf("getting pending count: %w", err)
	}

	var out struct {
		Pending int `json:"pending"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("parsing pending count response: %w", err)
	}

	return out.Pending, nil
}

type decisionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// Approve approves a pending proposal and executes its action remotely.
func (c *Client) Approve(ctx context.Context, id int64, notes string) (*DecisionResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/approvals/%d/approve", id), decisionRequest{Notes: notes})
	if err != nil {
		return nil, fmt.Errorf("approving proposal %d: %w", id, err)
	}

	var result DecisionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing approve response: %w", err)
	}

	return &result, nil
}

// Reject rejects a pending proposal without executing anything.
func (c *Client) Reject(ctx context.Context, id int64, notes string) (*DecisionResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/approvals/%d/reject", id), decisionRequest{Notes: notes})
	if err != nil {
		return nil, fmt.Errorf("rejecting proposal %d: %w", id, err)
	}

	var result DecisionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing reject response: %w", err)
	}

	return &result, nil
}

// BulkApprove approves several pending proposals in one request.
func (c *Client) BulkApprove(ctx context.Context, ids []int64) (*BulkResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/approvals/bulk/approve", ids)
	if err != nil {
		return nil, fmt.Errorf("bulk approving %d proposals: %w", len(ids), err)
	}

	var result BulkResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing bulk approve response: %w", err)
	}

	return &result, nil
}

// Analyze runs the one-shot full analysis. The backend may create proposals
// as a side effect; the result reports how many.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/ai/analyze", req)
	if err != nil {
		return nil, fmt.Errorf("requesting analysis: %w", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing analysis response: %w", err)
	}

	return &result, nil
}
