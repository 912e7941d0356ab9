// Package backend adapts the text-generation service behind the opaque
// Capability contract. The pipeline never sees the wire protocol.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrUnavailable = errors.New("backend unavailable")
	ErrTimeout     = errors.New("backend timeout")
)

// Capability is the generate contract: one prompt in, one text completion
// out. Worker and Auditor are both Capabilities, usually pointed at
// different endpoints or system prompts.
type Capability interface {
	Invoke(ctx context.Context, systemPrompt, userContext, query string) (string, error)
}

// Func adapts a plain function to a Capability. Tests script backends
// with it.
type Func func(ctx context.Context, systemPrompt, userContext, query string) (string, error)

func (f Func) Invoke(ctx context.Context, systemPrompt, userContext, query string) (string, error) {
	return f(ctx, systemPrompt, userContext, query)
}

type generateRequest struct {
	System  string `json:"system"`
	Context string `json:"context,omitempty"`
	Query   string `json:"query"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// HTTPClient invokes a generation endpoint speaking a small JSON protocol:
// POST {system, context, query} -> {text}.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Invoke(ctx context.Context, systemPrompt, userContext, query string) (string, error) {
	body, err := json.Marshal(generateRequest{System: systemPrompt, Context: userContext, Query: query})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
	}
	return out.Text, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
