package service

import (
	"context"
	"fmt"
	"time"

	"supplychain-ledger/internal/metrics"
	"supplychain-ledger/internal/mirror"
	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/pkg/logger"
)

const maxMirrorBackoff = 5 * time.Minute

// MirrorWorker drains the outbox into the external mirror. It never touches
// products or transactions, so mirror outages cannot affect the ledger.
type MirrorWorker struct {
	outbox    repository.OutboxRepository
	mirror    mirror.Mirror
	metrics   *metrics.LedgerMetrics
	log       *logger.Logger
	interval  time.Duration
	batchSize int
	clock     func() time.Time
}

func NewMirrorWorker(outbox repository.OutboxRepository, m mirror.Mirror, lm *metrics.LedgerMetrics, log *logger.Logger, interval time.Duration, batchSize int) *MirrorWorker {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &MirrorWorker{
		outbox:    outbox,
		mirror:    m,
		metrics:   lm,
		log:       log.Named("mirror"),
		interval:  interval,
		batchSize: batchSize,
		clock:     time.Now,
	}
}

// Run polls until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info().Dur("interval", w.interval).Int("batch", w.batchSize).Msg("mirror worker started")
	for {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("mirror batch failed")
		}
		select {
		case <-ctx.Done():
			w.log.Info().Msg("mirror worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce claims one batch of due rows and delivers them.
func (w *MirrorWorker) ProcessOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := w.clock().UTC()
	rows, err := w.outbox.ClaimDue(ctx, now, w.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, row := range rows {
		ref, appendErr := w.mirror.Append(ctx, mirror.Record{
			TransactionID: row.TransactionID.String(),
			ProductID:     row.ProductID,
			Sequence:      row.Sequence,
			Payload:       row.Payload,
		})
		if appendErr != nil {
			attempt := row.AttemptCount + 1
			nextAttempt := now.Add(mirrorRetryBackoff(attempt))
			if err := w.outbox.MarkRetry(ctx, row.ID, attempt, nextAttempt, fmt.Sprintf("mirror append: %v", appendErr), now); err != nil {
				return processed, err
			}
			outcome := "retry"
			if attempt >= repository.OutboxDeadLetterThreshold {
				outcome = model.OutboxDead
				w.log.Error().Err(appendErr).Str("productId", row.ProductID).Int64("sequence", row.Sequence).Msg("mirror row dead-lettered")
			} else {
				w.log.Warn().Err(appendErr).Str("productId", row.ProductID).Int64("sequence", row.Sequence).Int("attempt", attempt).Msg("mirror append failed")
			}
			w.metrics.MirrorAttempt(outcome)
			processed++
			continue
		}

		if err := w.outbox.MarkDone(ctx, row.ID, ref, now); err != nil {
			return processed, err
		}
		w.metrics.MirrorAttempt(model.OutboxDone)
		w.metrics.ObserveMirrorLag(now.Sub(row.CreatedAt).Seconds())
		processed++
	}
	return processed, nil
}

func mirrorRetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if attempt > 10 {
		return maxMirrorBackoff
	}
	backoff := time.Second << (attempt - 1)
	if backoff > maxMirrorBackoff {
		return maxMirrorBackoff
	}
	return backoff
}
