package repository

import (
	"context"
	"fmt"
	"time"

	"supplychain-ledger/internal/model"

	"gorm.io/gorm"
)

// OutboxProcessingLease is how long a claimed row may stay in processing
// before another worker may reclaim it.
const OutboxProcessingLease = 2 * time.Minute

// OutboxDeadLetterThreshold is the attempt count at which a row stops retrying.
const OutboxDeadLetterThreshold = 8

// OutboxSummary counts rows per status.
type OutboxSummary struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Done       int64 `json:"done"`
}

type OutboxRepository interface {
	WithTx(tx *gorm.DB) OutboxRepository
	Enqueue(ctx context.Context, row *model.MirrorOutbox) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.MirrorOutbox, error)
	MarkDone(ctx context.Context, id uint, externalRef string, now time.Time) error
	MarkRetry(ctx context.Context, id uint, attempt int, nextAttempt time.Time, lastError string, now time.Time) error
	RequeueDead(ctx context.Context, limit int, now time.Time) (int, error)
	Summary(ctx context.Context) (*OutboxSummary, error)
}

type outboxRepo struct {
	db *gorm.DB
}

func NewOutboxRepo(db *gorm.DB) OutboxRepository {
	return &outboxRepo{db}
}

func (r *outboxRepo) WithTx(tx *gorm.DB) OutboxRepository {
	return &outboxRepo{tx}
}

func (r *outboxRepo) Enqueue(ctx context.Context, row *model.MirrorOutbox) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("enqueue mirror row %s#%d: %w", row.ProductID, row.Sequence, translate(err))
	}
	return nil
}

// ClaimDue moves due pending/failed rows (and processing rows whose lease expired)
// to processing and returns the ones this caller won.
func (r *outboxRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.MirrorOutbox, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC()
	staleBefore := now.Add(-OutboxProcessingLease)
	due := func(tx *gorm.DB) *gorm.DB {
		return tx.Where("(status IN ? AND next_attempt_at <= ?) OR (status = ? AND updated_at <= ?)",
			[]string{model.OutboxPending, model.OutboxFailed}, now,
			model.OutboxProcessing, staleBefore)
	}

	var claimed []model.MirrorOutbox
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []model.MirrorOutbox
		if err := due(tx.Model(&model.MirrorOutbox{})).
			Order("next_attempt_at ASC, id ASC").
			Limit(limit).
			Find(&candidates).Error; err != nil {
			return fmt.Errorf("list due mirror rows: %w", err)
		}

		for _, c := range candidates {
			res := due(tx.Model(&model.MirrorOutbox{}).Where("id = ?", c.ID)).
				Updates(map[string]interface{}{
					"status":     model.OutboxProcessing,
					"updated_at": now,
				})
			if res.Error != nil {
				return fmt.Errorf("claim mirror row %d: %w", c.ID, res.Error)
			}
			if res.RowsAffected == 1 {
				c.Status = model.OutboxProcessing
				c.UpdatedAt = now
				claimed = append(claimed, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *outboxRepo) MarkDone(ctx context.Context, id uint, externalRef string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.MirrorOutbox{}).
		Where("id = ? AND status = ?", id, model.OutboxProcessing).
		Updates(map[string]interface{}{
			"status":       model.OutboxDone,
			"external_ref": externalRef,
			"last_error":   "",
			"updated_at":   now.UTC(),
		})
	return singleRow(res, "complete mirror row", id)
}

// MarkRetry records a failed attempt; the row goes dead once attempt reaches the threshold.
func (r *outboxRepo) MarkRetry(ctx context.Context, id uint, attempt int, nextAttempt time.Time, lastError string, now time.Time) error {
	status := model.OutboxFailed
	if attempt >= OutboxDeadLetterThreshold {
		status = model.OutboxDead
	}
	res := r.db.WithContext(ctx).Model(&model.MirrorOutbox{}).
		Where("id = ? AND status = ?", id, model.OutboxProcessing).
		Updates(map[string]interface{}{
			"status":          status,
			"attempt_count":   attempt,
			"next_attempt_at": nextAttempt.UTC(),
			"last_error":      lastError,
			"updated_at":      now.UTC(),
		})
	return singleRow(res, "mark mirror row retry", id)
}

// RequeueDead moves up to limit dead rows back to pending.
func (r *outboxRepo) RequeueDead(ctx context.Context, limit int, now time.Time) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("requeue limit must be greater than zero")
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.MirrorOutbox{}).
		Where("status = ?", model.OutboxDead).
		Order("next_attempt_at ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("list dead mirror rows: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).Model(&model.MirrorOutbox{}).
		Where("id IN ? AND status = ?", ids, model.OutboxDead).
		Updates(map[string]interface{}{
			"status":          model.OutboxPending,
			"attempt_count":   0,
			"next_attempt_at": now.UTC(),
			"last_error":      "",
			"updated_at":      now.UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("requeue dead mirror rows: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *outboxRepo) Summary(ctx context.Context) (*OutboxSummary, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.MirrorOutbox{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarize mirror outbox: %w", err)
	}

	var s OutboxSummary
	for _, row := range rows {
		switch row.Status {
		case model.OutboxPending:
			s.Pending = row.Count
		case model.OutboxProcessing:
			s.Processing = row.Count
		case model.OutboxFailed:
			s.Failed = row.Count
		case model.OutboxDead:
			s.Dead = row.Count
		case model.OutboxDone:
			s.Done = row.Count
		}
	}
	return &s, nil
}

func singleRow(res *gorm.DB, operation string, id uint) error {
	if res.Error != nil {
		return fmt.Errorf("%s %d: %w", operation, id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%s %d: expected 1 row updated, got %d", operation, id, res.RowsAffected)
	}
	return nil
}
