package hostagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
)

// CoordinatorClient talks to a cluster of coordinators, trying each in
// round-robin order starting from the last one that succeeded, so a single
// unreachable peer doesn't stall every call.
type CoordinatorClient struct {
	httpClient *http.Client
	authToken  string

	mu       sync.Mutex
	urls     []string
	lastGood int
}

// NewCoordinatorClient builds a client over the given coordinator base
// URLs. authToken, if set, is sent as x-skyclaw-token.
func NewCoordinatorClient(urls []string, authToken string, timeout time.Duration) *CoordinatorClient {
	return &CoordinatorClient{
		httpClient: &http.Client{Timeout: timeout},
		authToken:  authToken,
		urls:       urls,
	}
}

// do tries every known coordinator starting from the last one that
// succeeded, returning the first successful response. The starting offset
// advances on success so a healthy coordinator stays "sticky" across calls.
func (c *CoordinatorClient) do(ctx context.Context, method, path string, body, result any) error {
	c.mu.Lock()
	start := c.lastGood
	urls := c.urls
	c.mu.Unlock()

	if len(urls) == 0 {
		return fmt.Errorf("no coordinator urls configured")
	}

	var lastErr error
	for i := 0; i < len(urls); i++ {
		idx := (start + i) % len(urls)
		err := c.doOnce(ctx, urls[idx], method, path, body, result)
		if err == nil {
			c.mu.Lock()
			c.lastGood = idx
			c.mu.Unlock()
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("all %d coordinators failed, last error: %w", len(urls), lastErr)
}

func (c *CoordinatorClient) doOnce(ctx context.Context, base, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("x-skyclaw-token", c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s: %w", base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("coordinator %s returned %d: %s", base, resp.StatusCode, string(respBody))
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", base, err)
		}
	}
	return nil
}

// Register registers this host (or re-registers under the same hostID).
func (c *CoordinatorClient) Register(ctx context.Context, hostID, name string, capabilities []string, maxParallel int) (coordinator.Host, error) {
	var out struct {
		Host coordinator.Host `json:"host"`
	}
	body := map[string]any{
		"hostId":       hostID,
		"name":         name,
		"capabilities": capabilities,
		"maxParallel":  maxParallel,
	}
	err := c.do(ctx, http.MethodPost, "/v1/hosts/register", body, &out)
	return out.Host, err
}

// Heartbeat reports the host's current active lease count.
func (c *CoordinatorClient) Heartbeat(ctx context.Context, hostID string, activeLeases int) error {
	body := map[string]any{"activeLeases": activeLeases}
	return c.do(ctx, http.MethodPost, "/v1/hosts/"+hostID+"/heartbeat", body, nil)
}

// Claim attempts to claim one job. A nil job with a nil error means no
// eligible job is currently queued.
func (c *CoordinatorClient) Claim(ctx context.Context, hostID string) (*coordinator.Job, error) {
	var out struct {
		Job *coordinator.Job `json:"job"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/hosts/"+hostID+"/claim", nil, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// Complete reports the outcome of a claimed job.
func (c *CoordinatorClient) Complete(ctx context.Context, jobID, hostID string, result ExecResult) error {
	body := map[string]any{
		"hostId":     hostID,
		"success":    result.Success,
		"durationMs": result.DurationMs,
		"exitCode":   result.ExitCode,
		"stdout":     result.Stdout,
		"stderr":     result.Stderr,
		"error":      result.Error,
	}
	return c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID+"/complete", body, nil)
}
