package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"report-scheduler/internal/models"
	"report-scheduler/internal/notify"
	"report-scheduler/internal/store"
	"report-scheduler/internal/telemetry"
)

// Enqueue writes a notification to the outbox through q, normally the caller's
// transaction, so the notification commits together with the event that caused it.
func Enqueue(ctx context.Context, q store.Queries, to []string, action notify.Action, now time.Time) error {
	payload, err := notify.Marshal(action)
	if err != nil {
		return err
	}
	email := models.OutboxEmail{
		ID:          uuid.NewString(),
		ToAddresses: cleanRecipients(to),
		Action:      payload,
		CreatedAt:   now,
	}
	if err := q.InsertOutboxEmail(ctx, email); err != nil {
		return fmt.Errorf("enqueue %s: %w", action.Kind(), err)
	}
	telemetry.EmailsEnqueued.WithLabelValues(string(action.Kind())).Inc()
	return nil
}

// cleanRecipients trims addresses, drops empty ones and removes case-insensitive duplicates.
func cleanRecipients(to []string) []string {
	seen := make(map[string]struct{}, len(to))
	out := make([]string, 0, len(to))
	for _, addr := range to {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}
