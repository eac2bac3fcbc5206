package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couponlab/waitroom/internal/domain/coupon"
	"github.com/couponlab/waitroom/internal/domain/queue"
)

// admissionLockKey is the advisory lock key serializing apply-and-admit
// sequences. The lock is transaction-scoped and released on commit/rollback.
const admissionLockKey = 0x77616974 // "wait"

const (
	createItemSQL = `INSERT INTO queue_items (vip, user_name, order_ref, coupon_name, final_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	countWaitingSQL = `SELECT count(*) FROM queue_items WHERE completed_at IS NULL`

	countAheadSQL = `SELECT count(*) FROM queue_items
		WHERE completed_at IS NULL AND (vip > $1 OR (vip = $1 AND id < $2))`

	listWaitingSQL = `SELECT id, created_at, vip, user_name, order_ref, coupon_name, final_price, completed_at
		FROM queue_items WHERE completed_at IS NULL
		ORDER BY vip DESC, id ASC`

	shiftFrontSQL = `DELETE FROM queue_items WHERE id IN (
		SELECT id FROM queue_items WHERE completed_at IS NULL
		ORDER BY vip DESC, id ASC LIMIT $1)`

	countCouponUsesSQL = `SELECT count(*) FROM queue_items WHERE coupon_name = $1`

	countCouponUsesByUserSQL = `SELECT count(*) FROM queue_items
		WHERE coupon_name = $1 AND user_name = $2`

	countCompletedOrdersSQL = `SELECT count(*) FROM queue_items
		WHERE user_name = $1 AND completed_at IS NOT NULL`

	admissionLockSQL = `SELECT pg_advisory_xact_lock($1)`
)

var (
	_ queue.Repository    = (*QueueRepository)(nil)
	_ coupon.UsageCounter = (*QueueRepository)(nil)
	_ coupon.OrderHistory = (*QueueRepository)(nil)
)

// QueueRepository implements queue.Repository backed by PostgreSQL. It also
// serves as the coupon engine's UsageCounter and OrderHistory, since both
// are counts over queue items.
type QueueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository returns a QueueRepository that uses the given pool.
func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

// WithTx runs fn inside a transaction bound to the context.
func (r *QueueRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// AcquireAdmissionLock takes the transaction-scoped admission lock. It must
// be called inside WithTx.
func (r *QueueRepository) AcquireAdmissionLock(ctx context.Context) error {
	_, err := from(ctx, r.pool).Exec(ctx, admissionLockSQL, admissionLockKey)
	if err != nil {
		return fmt.Errorf("acquiring admission lock: %w", err)
	}
	return nil
}

// Create persists a new queue item, filling in its sequence number and
// creation timestamp.
func (r *QueueRepository) Create(ctx context.Context, item *queue.Item) error {
	err := from(ctx, r.pool).QueryRow(ctx, createItemSQL,
		item.VIP, item.UserName, item.OrderRef, item.CouponName, item.FinalPrice,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating queue item for %q: %w", item.UserName, err)
	}
	return nil
}

// CountWaiting returns the number of items with no completion timestamp.
func (r *QueueRepository) CountWaiting(ctx context.Context) (int64, error) {
	return r.count(ctx, countWaitingSQL)
}

// CountWaitingAhead counts waiting items ranked ahead of (vip, id) in the
// VIP-descending, sequence-ascending order.
func (r *QueueRepository) CountWaitingAhead(ctx context.Context, vip int, id int64) (int64, error) {
	return r.count(ctx, countAheadSQL, vip, id)
}

// ListWaiting returns all waiting items in queue order.
func (r *QueueRepository) ListWaiting(ctx context.Context) ([]queue.Item, error) {
	rows, err := from(ctx, r.pool).Query(ctx, listWaitingSQL)
	if err != nil {
		return nil, fmt.Errorf("listing waiting items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanQueueItem)
	if err != nil {
		return nil, fmt.Errorf("listing waiting items: %w", err)
	}
	return items, nil
}

// ShiftFront deletes up to count items from the front of the waiting order.
func (r *QueueRepository) ShiftFront(ctx context.Context, count int64) (int64, error) {
	tag, err := from(ctx, r.pool).Exec(ctx, shiftFrontSQL, count)
	if err != nil {
		return 0, fmt.Errorf("shifting %d queue items: %w", count, err)
	}
	return tag.RowsAffected(), nil
}

// CountCouponUses counts queue items ever created with the coupon, waiting
// or completed.
func (r *QueueRepository) CountCouponUses(ctx context.Context, couponName string) (int64, error) {
	return r.count(ctx, countCouponUsesSQL, couponName)
}

// CountCouponUsesByUser counts queue items ever created by one user with the
// coupon.
func (r *QueueRepository) CountCouponUsesByUser(ctx context.Context, couponName, userName string) (int64, error) {
	return r.count(ctx, countCouponUsesByUserSQL, couponName, userName)
}

// CountCompletedOrders counts the user's completed orders.
func (r *QueueRepository) CountCompletedOrders(ctx context.Context, userName string) (int64, error) {
	return r.count(ctx, countCompletedOrdersSQL, userName)
}

func (r *QueueRepository) count(ctx context.Context, sql string, args ...any) (int64, error) {
	var n int64
	if err := from(ctx, r.pool).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting queue items: %w", err)
	}
	return n, nil
}

func scanQueueItem(row pgx.CollectableRow) (queue.Item, error) {
	var item queue.Item
	err := row.Scan(
		&item.ID, &item.CreatedAt, &item.VIP, &item.UserName,
		&item.OrderRef, &item.CouponName, &item.FinalPrice, &item.CompletedAt,
	)
	return item, err
}
