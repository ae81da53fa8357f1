// Package lookup queries the third-party player statistics API.
package lookup

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
)

var (
	// ErrNotFound means the API has no record of the player (HTTP 204).
	ErrNotFound = errors.New("player not found")
	// ErrUnavailable covers transport failures, timeouts and unexpected statuses.
	ErrUnavailable = errors.New("lookup service unavailable")
	// ErrMalformed means the API answered 200 with a body that did not parse.
	ErrMalformed = errors.New("malformed lookup response")
)

const maxBodyBytes = 1 << 20

// Client is a small REST client for the player statistics API.
type Client struct {
	http    *http.Client
	baseURL string
}

// Playtime is the total time a player has spent online.
type Playtime struct {
	Seconds int64 `json:"playtimeSeconds"`
}

// Duration converts the playtime into a time.Duration.
func (p Playtime) Duration() time.Duration {
	return time.Duration(p.Seconds) * time.Second
}

// Seen holds the first and most recent sightings of a player.
type Seen struct {
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// NewClient builds a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Playtime fetches the total playtime of name.
func (c *Client) Playtime(ctx context.Context, name string) (Playtime, error) {
	var out Playtime
	if err := c.get(ctx, "/playtime", name, &out); err != nil {
		return Playtime{}, err
	}
	return out, nil
}

// Seen fetches when name was first and last seen online.
func (c *Client) Seen(ctx context.Context, name string) (Seen, error) {
	var out Seen
	if err := c.get(ctx, "/seen", name, &out); err != nil {
		return Seen{}, err
	}
	if out.LastSeen.IsZero() {
		return Seen{}, fmt.Errorf("%w: missing lastSeen", ErrMalformed)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path, name string, out any) error {
	endpoint := c.baseURL + path + "?" + url.Values{"playerName": {name}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return ErrNotFound
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
