package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// criticalRetryS and criticalExpireS control emergency-priority redelivery
// on the push service side: retry every 30s, give up after 1h.
const (
	criticalRetryS  = 30
	criticalExpireS = 3600
)

// PushClient sends notifications through a Pushover-compatible REST API.
type PushClient struct {
	apiURL     string
	apiToken   string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewPushClient creates a new push client
func NewPushClient(apiURL, apiToken string, log zerolog.Logger) *PushClient {
	return &PushClient{
		apiURL:     apiURL,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("client", "push").Logger(),
	}
}

// priorityFor maps alert tiers onto push priorities. Heartbeat levels
// carry the tier of their underlying rule after the prefix.
func priorityFor(level string) int {
	switch strings.TrimPrefix(level, "heartbeat_") {
	case "low":
		return -1
	case "high":
		return 1
	case "critical":
		return 2
	default:
		return 0
	}
}

// Send implements Notifier. A per-target auth token may be encoded in the
// recipient as "userkey" (shared app token) — the target's key is always
// the user key.
func (c *PushClient) Send(ctx context.Context, recipient, level, title, body, urlStr string) error {
	priority := priorityFor(level)

	form := url.Values{}
	form.Set("token", c.apiToken)
	form.Set("user", recipient)
	form.Set("title", title)
	form.Set("message", body)
	form.Set("priority", fmt.Sprintf("%d", priority))
	if urlStr != "" {
		form.Set("url", urlStr)
	}
	if priority == 2 {
		form.Set("retry", fmt.Sprintf("%d", criticalRetryS))
		form.Set("expire", fmt.Sprintf("%d", criticalExpireS))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push service returned %d: %s", resp.StatusCode, string(payload))
	}

	c.log.Debug().Str("recipient", recipient).Str("level", level).Msg("Notification delivered")
	return nil
}
