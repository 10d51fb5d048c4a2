package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/dailydrop/rewards/internal/platform/database"
)

const (
	defaultRetentionInterval  = time.Hour
	defaultRetentionBatchSize = 500
)

// RetentionWorker periodically deletes audit events past their retention.
type RetentionWorker struct {
	db        database.Querier
	store     *Store
	retention time.Duration
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewRetentionWorker(db database.Querier, store *Store, retention, interval time.Duration, batchSize int, logger *slog.Logger) *RetentionWorker {
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	if batchSize <= 0 {
		batchSize = defaultRetentionBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionWorker{
		db:        db,
		store:     store,
		retention: retention,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps once immediately, then on every interval until ctx is done.
// A nil worker or a non-positive retention disables cleanup.
func (w *RetentionWorker) Run(ctx context.Context) error {
	if w == nil || w.db == nil || w.retention <= 0 {
		return nil
	}

	w.Sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep deletes expired events in batches and returns the total removed.
func (w *RetentionWorker) Sweep(ctx context.Context) int {
	cutoff := w.now().UTC().Add(-w.retention)

	total := 0
	for ctx.Err() == nil {
		deleted, err := w.store.DeleteOlderThan(ctx, w.db, cutoff, w.batchSize)
		if err != nil {
			w.logger.Error("audit retention sweep failed", "error", err)
			break
		}
		total += deleted
		if deleted < w.batchSize {
			break
		}
	}

	if total > 0 {
		w.logger.Info("audit retention cleanup completed", "deleted_rows", total, "cutoff", cutoff)
	}
	return total
}
