package escalate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Compile-time interface check.
var _ Notifier = (*SlackWebhook)(nil)

// SlackWebhook posts escalations to a Slack incoming webhook. Posts are
// rate limited so a burst of escalations (a destination outage takes every
// in-flight session down at once) does not flood the channel.
type SlackWebhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// SlackOption configures the SlackWebhook.
type SlackOption func(*SlackWebhook)

// WithHTTPClient overrides the HTTP client used for webhook posts.
func WithHTTPClient(c *http.Client) SlackOption {
	return func(w *SlackWebhook) { w.client = c }
}

// WithRateLimit overrides the posting rate limit.
func WithRateLimit(limit rate.Limit, burst int) SlackOption {
	return func(w *SlackWebhook) { w.limiter = rate.NewLimiter(limit, burst) }
}

// NewSlackWebhook creates a notifier posting to the given incoming webhook
// URL. The default limit is one post per second with a burst of five.
func NewSlackWebhook(url string, opts ...SlackOption) *SlackWebhook {
	w := &SlackWebhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type slackPayload struct {
	Text string `json:"text"`
}

// Notify implements Notifier.
func (w *SlackWebhook) Notify(ctx context.Context, entry *Entry) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("escalate: slack rate limit wait: %w", err)
	}

	text := fmt.Sprintf(
		":rotating_light: Submission escalated\n"+
			"Session: `%s`\nDestination: `%s`\nAuthority: `%s`\n"+
			"Attempts: %d\nError: %s\nEntry: `%s`",
		entry.SessionID, entry.Destination, entry.Authority.Key,
		entry.Attempts, entry.Error, entry.ID.String(),
	)

	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return fmt.Errorf("escalate: marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("escalate: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("escalate: post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Slack returns a short text body explaining the rejection.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("escalate: slack webhook returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
