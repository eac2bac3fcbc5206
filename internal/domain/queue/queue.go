// Package queue implements the bounded waiting queue: admission control,
// VIP-first ordering, and the shift drain operation.
package queue

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrFull is returned when the queue is at capacity and the order does
	// not carry a reopen override. The message is part of the API contract.
	ErrFull = errors.New("Sorry, the waiting room is full. Please try again later")
	// ErrNegativePrice is returned when an order's list price is negative.
	ErrNegativePrice = errors.New("list_price must not be negative")
)

// Item is a persisted queue entry. The ID is an auto-incrementing sequence
// number reflecting insertion order; it is never reused.
type Item struct {
	ID         int64
	CreatedAt  time.Time
	VIP        int
	UserName   string
	OrderRef   string
	CouponName *string
	FinalPrice decimal.Decimal
	// CompletedAt is nil while the item is waiting. Once set it is never
	// cleared; completion itself happens outside this package.
	CompletedAt *time.Time
}

// PositionedItem is an Item annotated with its zero-based rank in the
// waiting order (VIP tier descending, sequence ascending). Positions are
// computed on each read, never stored: a later higher-tier arrival changes
// the rank of earlier items.
type PositionedItem struct {
	Item
	Position int64
}

// Repository provides persistence for queue items.
//
// WithTx runs fn inside a single database transaction; repository calls made
// with the context fn receives join that transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// AcquireAdmissionLock serializes apply-and-admit sequences for the
	// duration of the surrounding transaction, making usage caps and the
	// capacity limit strict rather than best-effort.
	AcquireAdmissionLock(ctx context.Context) error
	// Create persists the item and fills in its ID and CreatedAt.
	Create(ctx context.Context, item *Item) error
	CountWaiting(ctx context.Context) (int64, error)
	// CountWaitingAhead counts waiting items ranked ahead of an item with
	// the given VIP tier and sequence number.
	CountWaitingAhead(ctx context.Context, vip int, id int64) (int64, error)
	// ListWaiting returns waiting items ordered by VIP desc, sequence asc.
	ListWaiting(ctx context.Context) ([]Item, error)
	// ShiftFront deletes up to count items from the front of the waiting
	// order and returns how many were removed.
	ShiftFront(ctx context.Context, count int64) (int64, error)
}
