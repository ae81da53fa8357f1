// Package authlink exchanges one-time account-link codes for verified player ids.
//
// A player joins the auth service's game server, receives a short code, and
// sends it to the bot from the group chat. The service answers with the UUID
// of the player who was issued the code.
package authlink

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

	"github.com/google/uuid"
)

var (
	// ErrInvalidCode means the service does not know the code or it expired.
	ErrInvalidCode = errors.New("invalid or expired link code")
	// ErrUnavailable covers transport failures and unexpected statuses.
	ErrUnavailable = errors.New("auth service unavailable")
	// ErrNotConfigured is returned when no service URL is set.
	ErrNotConfigured = errors.New("auth service is not configured")
)

type exchangeRequest struct {
	Code string `json:"code"`
}

type exchangeResponse struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

// Client talks to the auth service.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a client for baseURL. An empty baseURL yields a client whose
// exchanges fail with ErrNotConfigured.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

// Exchange redeems code and returns the player it was issued to.
func (c *Client) Exchange(ctx context.Context, code string) (uuid.UUID, error) {
	if c.baseURL == "" {
		return uuid.Nil, ErrNotConfigured
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return uuid.Nil, ErrInvalidCode
	}

	body, err := json.Marshal(exchangeRequest{Code: code})
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/link", bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone:
		return uuid.Nil, ErrInvalidCode
	default:
		return uuid.Nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out exchangeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return uuid.Nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	player, err := uuid.Parse(out.UUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad uuid %q", ErrUnavailable, out.UUID)
	}
	return player, nil
}
