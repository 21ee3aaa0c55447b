package appointment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const createPath = "/api/appointments/phone"

// Client posts booking requests to the web application's appointment endpoint.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

func NewClient(baseURL string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) Create(ctx context.Context, req Request) (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("appointment service url missing")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+createPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create appointment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("appointment service unreachable: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read appointment response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("appointment service status=%d body=%s", resp.StatusCode, string(raw))
		}
		return "", fmt.Errorf("decode appointment response: %w", err)
	}
	if !out.Success || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status=%d %s", ErrRejected, resp.StatusCode, out.Error)
	}
	if out.AppointmentID == "" {
		return "", fmt.Errorf("%w: no appointment id in response", ErrRejected)
	}
	return out.AppointmentID, nil
}
