package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// pollSlack is added on top of the server-side wait so the HTTP request
// outlives the long poll instead of racing it.
const pollSlack = 5 * time.Second

// GetUpdates performs a single long-poll getUpdates call. timeout is the
// server-side wait; allowed restricts the update kinds Telegram sends
// (nil keeps the server default).
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration, allowed []string) ([]Update, error) {
	secs := int(timeout / time.Second)
	if secs < 0 {
		secs = 0
	}

	params := url.Values{}
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}
	params.Set("timeout", strconv.Itoa(secs))
	if len(allowed) > 0 {
		raw, err := json.Marshal(allowed)
		if err != nil {
			return nil, fmt.Errorf("telegram: poll: allowed updates: %w", err)
		}
		params.Set("allowed_updates", string(raw))
	}

	pollCtx, cancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second+pollSlack)
	defer cancel()

	data, status, err := c.doGet(pollCtx, "getUpdates", params)
	if err != nil {
		return nil, fmt.Errorf("telegram: poll: %w", err)
	}
	updates, err := decode[[]Update]("getUpdates", data, status)
	if err != nil {
		return nil, fmt.Errorf("telegram: poll: %w", err)
	}
	return updates, nil
}

// NextOffset returns the offset that acknowledges every update in the batch.
func NextOffset(offset int64, updates []Update) int64 {
	for _, u := range updates {
		if u.UpdateID >= offset {
			offset = u.UpdateID + 1
		}
	}
	return offset
}

// SetWebhook registers the public URL Telegram should push updates to.
func (c *Client) SetWebhook(ctx context.Context, params WebhookParams) error {
	data, status, err := c.doPost(ctx, "setWebhook", params)
	if err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	if _, err := decode[bool]("setWebhook", data, status); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes any registered webhook. getUpdates is refused by
// Telegram while a webhook is set.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	data, status, err := c.doPost(ctx, "deleteWebhook", deleteWebhookRequest{DropPendingUpdates: dropPending})
	if err != nil {
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	if _, err := decode[bool]("deleteWebhook", data, status); err != nil {
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	return nil
}
