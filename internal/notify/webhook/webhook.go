// Package webhook posts events to a chat webhook as a single embed.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Payload is the JSON body posted for each event.
type Payload struct {
	Content string  `json:"content"`
	Embeds  []embed `json:"embeds"`
}

// NewPayload renders evt as a single-embed message.
func NewPayload(evt harvest.Event) Payload {
	return Payload{
		Content: "",
		Embeds: []embed{{
			Title:       evt.Title,
			Description: evt.Description,
			Color:       evt.Severity.Color(),
		}},
	}
}

// Channel delivers events to a webhook URL.
type Channel struct {
	url    string
	client *http.Client
}

var _ harvest.Channel = (*Channel)(nil)

// New builds a webhook channel. A nil client gets a 10s timeout.
func New(url string, client *http.Client) (*Channel, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Channel{url: url, client: client}, nil
}

// Deliver posts one event. Non-2xx responses are failures.
func (c *Channel) Deliver(ctx context.Context, evt harvest.Event) error {
	body, err := json.Marshal(NewPayload(evt))
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", harvest.ErrNotifyFailure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", harvest.ErrNotifyFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post webhook: %w", harvest.ErrNotifyFailure, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %w", harvest.ErrNotifyFailure, &harvest.StatusError{StatusCode: resp.StatusCode})
	}
	return nil
}
