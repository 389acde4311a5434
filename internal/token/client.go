// Package token fetches access credentials from the external token service.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Credential is a minted access token plus the realtime endpoint to use.
// URL may be empty, in which case the caller falls back to its configured
// default endpoint.
type Credential struct {
	Token string `json:"token"`
	URL   string `json:"livekit_url"`
}

// Client calls the token service over HTTP with a pooled transport.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a token client for the given service base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				ForceAttemptHTTP2:     true,
			},
		},
	}
}

// Fetch requests a credential for the room and identity. A non-2xx status,
// an unparseable body, or a response without a token all fail.
func (c *Client) Fetch(ctx context.Context, roomName, identity string) (*Credential, error) {
	q := url.Values{}
	q.Set("room_name", roomName)
	q.Set("identity", identity)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get-token?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token service status %d: %s", resp.StatusCode, string(body))
	}

	var cred Credential
	if err = json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if cred.Token == "" {
		return nil, fmt.Errorf("token service response omitted token")
	}
	return &cred, nil
}
