package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"terrier/pkg/platform/circuit"
	"terrier/pkg/platform/sentinel"
)

// HTTPClient talks to a ledger node over its REST gateway. A circuit breaker
// sits in front of every call: consecutive node failures open it, and while
// open the client fails fast with sentinel.ErrUnavailable instead of burning
// the caller's confirm window on a dead node.
type HTTPClient struct {
	base    string
	http    *http.Client
	breaker *circuit.Breaker

	mu         sync.Mutex
	lastProbe  time.Time
	probeEvery time.Duration
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		base:       strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 10 * time.Second},
		breaker:    circuit.New("ledger"),
		probeEvery: 5 * time.Second,
	}
}

// noteFailure records a failed call and stamps the probe clock when the
// circuit opens, so the first fallback window starts now.
func (c *HTTPClient) noteFailure() {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.mu.Lock()
		c.lastProbe = time.Now()
		c.mu.Unlock()
	}
}

// allow reports whether a call may go out. An open circuit still lets one
// probe through per probe window so the breaker can observe recovery.
func (c *HTTPClient) allow() bool {
	if !c.breaker.IsOpen() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastProbe) >= c.probeEvery {
		c.lastProbe = time.Now()
		return true
	}
	return false
}

func (c *HTTPClient) Submit(ctx context.Context, payload Payload) (string, error) {
	if !c.allow() {
		return "", fmt.Errorf("submit transaction: %w", sentinel.ErrUnavailable)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.noteFailure()
		return "", fmt.Errorf("submit transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		if resp.StatusCode >= http.StatusInternalServerError {
			c.noteFailure()
		}
		return "", fmt.Errorf("submit transaction: unexpected status %d", resp.StatusCode)
	}
	c.breaker.RecordSuccess()

	var out struct {
		SubmissionID string `json:"submission_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submission response: %w", err)
	}
	if out.SubmissionID == "" {
		return "", fmt.Errorf("submit transaction: empty submission id")
	}
	return out.SubmissionID, nil
}

func (c *HTTPClient) Status(ctx context.Context, submissionID string) (Submission, error) {
	var sub Submission
	err := c.getJSON(ctx, "/transactions/"+url.PathEscape(submissionID), &sub)
	return sub, err
}

func (c *HTTPClient) Record(ctx context.Context, propertyID string) (Record, error) {
	var rec Record
	err := c.getJSON(ctx, "/records/"+url.PathEscape(propertyID), &rec)
	return rec, err
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	if !c.allow() {
		return fmt.Errorf("get %s: %w", path, sentinel.ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.noteFailure()
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.breaker.RecordSuccess()
		return sentinel.ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		c.noteFailure()
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}
	c.breaker.RecordSuccess()
	return json.NewDecoder(resp.Body).Decode(out)
}
