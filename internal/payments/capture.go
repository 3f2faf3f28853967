package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrDeclined means the processor rejected the capture; no money moved.
var ErrDeclined = errors.New("payments: capture declined")

// ErrUnavailable means the processor could not be reached or answered with a
// server error; the caller may retry.
var ErrUnavailable = errors.New("payments: processor unavailable")

// CaptureProvider confirms real money movement. Implementations must be safe
// for concurrent use.
type CaptureProvider interface {
	Capture(ctx context.Context, amountCents int64, methodRef string) (string, error)
}

// HTTPDoer defines the http.Client subset used by the capture client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client calls the external payment processor over HTTP.
type Client struct {
	baseURL string
	client  HTTPDoer
}

// NewClient builds a capture client with base URL.
func NewClient(baseURL string, client HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// NewDefaultHTTPClient returns *http.Client with timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type captureRequest struct {
	AmountCents int64  `json:"amount_cents"`
	MethodRef   string `json:"method_ref"`
}

type captureResponse struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// Capture asks the processor to move amountCents against the stored payment
// method. Returns the processor reference on success.
func (c *Client) Capture(ctx context.Context, amountCents int64, methodRef string) (string, error) {
	if amountCents <= 0 {
		return "", fmt.Errorf("payments: invalid amount %d", amountCents)
	}

	body, err := json.Marshal(captureRequest{AmountCents: amountCents, MethodRef: methodRef})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/captures", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusPaymentRequired, resp.StatusCode == http.StatusUnprocessableEntity:
		return "", ErrDeclined
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return "", fmt.Errorf("payments: unexpected status %d", resp.StatusCode)
	}

	var parsed captureResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("payments: decode response: %w", err)
	}
	if !parsed.Success {
		return "", ErrDeclined
	}
	return parsed.Reference, nil
}
