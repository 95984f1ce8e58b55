package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
)

// Client talks to peer coordinators over HTTP: pushing snapshots, pulling
// full state for sync, listing peers, and joining.
type Client struct {
	httpClient *http.Client
	authToken  string
	timeout    time.Duration
}

// NewClient creates a peer Client. authToken, if set, is sent as
// x-skyclaw-token on every outbound call so peers accept the request under
// the same shared-token rule as any other non-public route.
func NewClient(authToken string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		authToken:  authToken,
		timeout:    timeout,
	}
}

// PushSnapshot POSTs snap to peerBaseURL's replication endpoint. ok is true
// only for a 2xx response; network errors and non-2xx both count as not-ok
// and are reported via err for logging, never as a reason to fail the
// caller's ack count differently.
func (c *Client) PushSnapshot(ctx context.Context, peerBaseURL string, snap coordinator.Snapshot) (ok bool, changed bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result struct {
		OK      bool `json:"ok"`
		Changed bool `json:"changed"`
	}
	status, err := c.do(ctx, http.MethodPost, peerBaseURL+"/v1/replicate/snapshot", snap, &result)
	if err != nil {
		return false, false, err
	}
	return status >= 200 && status < 300, result.Changed, nil
}

// FetchState GETs the full snapshot from peerBaseURL.
func (c *Client) FetchState(ctx context.Context, peerBaseURL string) (coordinator.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var snap coordinator.Snapshot
	_, err := c.do(ctx, http.MethodGet, peerBaseURL+"/v1/state", nil, &snap)
	return snap, err
}

// FetchPeers GETs the known peer list from peerBaseURL.
func (c *Client) FetchPeers(ctx context.Context, peerBaseURL string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result struct {
		Peers []string `json:"peers"`
	}
	_, err := c.do(ctx, http.MethodGet, peerBaseURL+"/v1/network/peers", nil, &result)
	return result.Peers, err
}

// Join POSTs selfURL to peerBaseURL's join endpoint.
func (c *Client) Join(ctx context.Context, peerBaseURL, selfURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]string{"url": selfURL}
	_, err := c.do(ctx, http.MethodPost, peerBaseURL+"/v1/network/join", body, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, url string, body any, result any) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshalling request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("x-skyclaw-token", c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request to %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("peer %s returned status %d: %s", url, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response from %s: %w", url, err)
		}
	}
	return resp.StatusCode, nil
}
