package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
	"go.uber.org/zap"
)

const defaultBatchSize = 100

// Relay drains the notification outbox into a Publisher.
type Relay struct {
	Outbox    storage.NotificationOutbox
	Publisher Publisher
	Logger    *zap.Logger
	BatchSize int
	Now       func() time.Time
}

// Flush delivers one batch of due notifications and returns how many rows
// it processed, delivered or rescheduled.
func (r Relay) Flush(ctx context.Context) (int, error) {
	if r.Outbox == nil {
		return 0, fmt.Errorf("notification outbox is required")
	}
	if r.Publisher == nil {
		return 0, fmt.Errorf("notification publisher is required")
	}
	batch := r.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now().UTC()
	}

	processed, err := r.Outbox.ProcessNotificationOutbox(ctx, now, batch, r.Publisher.Publish)
	if err != nil {
		return processed, fmt.Errorf("process notification outbox: %w", err)
	}
	if processed > 0 && r.Logger != nil {
		r.Logger.Debug("notification outbox flushed", zap.Int("processed", processed))
	}
	return processed, nil
}
