// Package dispatch triggers the external worker that drains a run's
// queued targets. The trigger is fire-and-report: the engine never waits
// for sends to complete.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/pkg/httpretry"
)

// ErrNotConfigured is returned when no dispatcher URL is set.
var ErrNotConfigured = errors.New("dispatch: url not configured")

// TokenHeader authenticates calls between the engine and the dispatcher in
// both directions.
const TokenHeader = "X-Internal-Token"

// Payload is the body posted to the dispatcher for a freshly launched run.
type Payload struct {
	OrgID      string                `json:"org_id"`
	CampaignID string                `json:"campaign_id"`
	RunID      string                `json:"run_id"`
	Name       string                `json:"name"`
	Channel    string                `json:"channel"`
	Audience   domain.AudienceSpec   `json:"audience"`
	Message    *domain.MessageConfig `json:"message"`
	Options    domain.ThrottleConfig `json:"options"`
}

// Client posts launch notifications to the dispatcher.
type Client struct {
	url     string
	token   string
	timeout time.Duration
	http    httpretry.HTTPDoer
}

// NewClient builds a dispatch client. doer is normally a
// *httpretry.RetryClient; tests inject their own.
func NewClient(url, token string, timeout time.Duration, doer httpretry.HTTPDoer) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if doer == nil {
		doer = httpretry.NewRetryClient(&http.Client{Timeout: timeout}, httpretry.Options{})
	}
	return &Client{url: url, token: token, timeout: timeout, http: doer}
}

// Enabled reports whether a dispatcher URL is configured.
func (c *Client) Enabled() bool { return c != nil && c.url != "" }

// Dispatch notifies the dispatcher that a run has targets to drain.
func (c *Client) Dispatch(ctx context.Context, p Payload) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal dispatch payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch run %s: %w", p.RunID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatch run %s: status %d: %s", p.RunID, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
