package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type chatRequest struct {
	Message    string   `json:"message"`
	AccountIDs []string `json:"account_ids,omitempty"`
}

// Chat opens the streaming chat endpoint and hands the raw body to the
// caller, who owns closing it. No retries: a stream either opens or the turn
// fails. Cancellation runs through ctx, not a client timeout.
func (c *Client) Chat(ctx context.Context, message string, accountIDs []string) (io.ReadCloser, error) {
	payload, err := json.Marshal(chatRequest{Message: message, AccountIDs: accountIDs})
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/ai/chat", payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("opening chat stream", "bytes", len(payload))

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening chat stream: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := c.creds.Clear(); err != nil {
			c.logger.Error("clearing rejected credential", "error", err)
		}
		return nil, ErrUnauthenticated
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Error("chat stream refused", "status", resp.StatusCode, "response", truncate(string(body), 200))
		return nil, fmt.Errorf("chat API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	return resp.Body, nil
}
