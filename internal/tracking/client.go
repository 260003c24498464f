// Package tracking looks up PRO numbers for purchase orders through the
// external shipment-tracking service.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tms-provisioning-api/internal/tms"
)

const maxResponseSize = 1 << 20

var (
	// ErrNotFound indicates the tracking service knows no PRO for the PO
	ErrNotFound = errors.New("tracking: po not found")
	// ErrNotConfigured indicates no tracking URL was provided
	ErrNotConfigured = errors.New("tracking: service not configured")
)

// Client queries the tracking service
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a tracking client. An empty baseURL yields ErrNotConfigured.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("tracking: invalid url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = tms.DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type lookupResponse struct {
	PRO       string `json:"pro"`
	PRONumber string `json:"pro_number"`
}

// LookupPRO returns the PRO number the tracking service holds for po
func (c *Client) LookupPRO(ctx context.Context, po string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("tracking: invalid url: %w", err)
	}
	q := u.Query()
	q.Set("po", po)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("tracking: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: tracking: %v", tms.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: tracking: failed to read response: %v", tms.ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: tracking: HTTP %d", tms.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: tracking: HTTP %d: %s", tms.ErrInvalidResponse, resp.StatusCode, tms.Truncate(string(body), 400))
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: tracking: %s", tms.ErrInvalidResponse, tms.Truncate(string(body), 400))
	}

	pro := strings.TrimSpace(out.PRO)
	if pro == "" {
		pro = strings.TrimSpace(out.PRONumber)
	}
	if pro == "" {
		return "", ErrNotFound
	}
	return pro, nil
}
