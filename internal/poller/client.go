package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/automize/chat-support-backend/internal/services"
)

// Client is the HTTP Fetcher implementation: it calls the backend's
// GET /sessions/changes endpoint.
type Client struct {
	// BaseURL is the API root including the base path, e.g.
	// "https://chat.example.com/api/v1".
	BaseURL string

	// HTTPClient defaults to a 10-second-timeout client when nil.
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// FetchChanges implements Fetcher over HTTP. A zero since is sent as an empty
// checkpoint, which the server treats as a last-minute window.
func (c *Client) FetchChanges(ctx context.Context, since time.Time, openSession string) (*services.ChangeSet, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if openSession != "" {
		q.Set("open_session", openSession)
	}

	u := strings.TrimRight(c.BaseURL, "/") + "/sessions/changes"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("changes poll: unexpected status %d", resp.StatusCode)
	}

	var set services.ChangeSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, err
	}
	return &set, nil
}
