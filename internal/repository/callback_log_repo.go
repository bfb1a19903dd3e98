package repository

import (
	"context"
	"fmt"

	"github.com/saccohub/settlement/internal/domain"
)

// CallbackLogRepo journals processed webhook payloads by content hash.
type CallbackLogRepo struct {
	db DBTX
}

func NewCallbackLogRepo(db DBTX) *CallbackLogRepo {
	return &CallbackLogRepo{db: db}
}

func (r *CallbackLogRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM callback_log WHERE payload_hash = ?", hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check callback hash: %w", err)
	}
	return n > 0, nil
}

func (r *CallbackLogRepo) Insert(ctx context.Context, rec *domain.CallbackRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO callback_log (id, kind, payload_hash, payload, outcome, received_at)
		VALUES (?,?,?,?,?,?)`,
		rec.ID, rec.Kind, rec.PayloadHash, rec.Payload, rec.Outcome, formatTime(rec.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert callback record: %w", err)
	}
	return nil
}

func (r *CallbackLogRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM callback_log").Scan(&n)
	return n, err
}
