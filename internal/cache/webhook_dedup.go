package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const webhookSeenTTL = 48 * time.Hour

func webhookEventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

// WebhookSeen reports whether the event id was already processed. With redis
// disabled every delivery reads as new; the redemption uniqueness downstream
// keeps replays harmless.
func WebhookSeen(ctx context.Context, eventID string) (bool, error) {
	trimmed := strings.TrimSpace(eventID)
	if trimmed == "" || !Enabled() {
		return false, nil
	}
	count, err := redisClient.Exists(ctx, buildKey(webhookEventKey(trimmed))).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkWebhookSeen records a gateway event id after it was processed. It
// returns true when this call is the first to record it.
func MarkWebhookSeen(ctx context.Context, eventID string) (bool, error) {
	trimmed := strings.TrimSpace(eventID)
	if trimmed == "" {
		return true, nil
	}
	if !Enabled() {
		return true, nil
	}
	return redisClient.SetNX(ctx, buildKey(webhookEventKey(trimmed)), 1, webhookSeenTTL).Result()
}
