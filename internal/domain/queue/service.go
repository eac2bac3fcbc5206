package queue

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/couponlab/waitroom/internal/domain/coupon"
	"github.com/couponlab/waitroom/internal/domain/user"
)

// EnqueueRequest holds the input for placing an order into the queue.
type EnqueueRequest struct {
	UserName   string
	CouponName string // empty = no coupon
	ListPrice  int64
	OrderRef   string
}

// EnqueueResult holds the outcome of a successful admission.
type EnqueueResult struct {
	Item Item
	// Position is the item's zero-based rank at the moment of admission.
	Position int64
	// QueueLen is the waiting count observed before the insert.
	QueueLen int64
}

// ShiftResult reports a shift operation's outcome.
type ShiftResult struct {
	Shifted  int64
	QueueLen int64
}

// Service implements queue admission, ordering, and the shift drain.
type Service struct {
	users  user.Repository
	engine *coupon.Engine
	items  Repository
	maxLen int64
}

// NewService creates a queue Service. maxLen is the queue capacity enforced
// on admission.
func NewService(users user.Repository, engine *coupon.Engine, items Repository, maxLen int64) *Service {
	return &Service{
		users:  users,
		engine: engine,
		items:  items,
		maxLen: maxLen,
	}
}

// Enqueue runs the full apply-and-admit sequence: coupon application,
// capacity check, insert, and position computation. The sequence runs in one
// transaction behind the admission lock, so the usage-cap and occupancy
// checks cannot race with a concurrent admission.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	if req.ListPrice < 0 {
		return nil, ErrNegativePrice
	}
	if _, err := s.users.GetByName(ctx, req.UserName); err != nil {
		return nil, err
	}

	var result *EnqueueResult
	err := s.items.WithTx(ctx, func(ctx context.Context) error {
		if err := s.items.AcquireAdmissionLock(ctx); err != nil {
			return errors.Wrap(err, "acquire admission lock")
		}

		d := &coupon.Draft{
			UserName:   req.UserName,
			OrderRef:   req.OrderRef,
			CouponName: req.CouponName,
			FinalPrice: decimal.NewFromInt(req.ListPrice),
		}
		if err := s.engine.Apply(ctx, d); err != nil {
			return err
		}

		waiting, err := s.items.CountWaiting(ctx)
		if err != nil {
			return errors.Wrap(err, "count waiting items")
		}
		if !d.SkipCapacityCheck && waiting >= s.maxLen {
			return ErrFull
		}

		item := &Item{
			VIP:        d.VIP,
			UserName:   d.UserName,
			OrderRef:   d.OrderRef,
			FinalPrice: d.FinalPrice,
		}
		if req.CouponName != "" {
			item.CouponName = &req.CouponName
		}
		if err := s.items.Create(ctx, item); err != nil {
			return errors.Wrap(err, "create queue item")
		}

		position, err := s.items.CountWaitingAhead(ctx, item.VIP, item.ID)
		if err != nil {
			return errors.Wrap(err, "compute queue position")
		}

		result = &EnqueueResult{Item: *item, Position: position, QueueLen: waiting}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// List returns all waiting items with freshly computed positions.
func (s *Service) List(ctx context.Context) ([]PositionedItem, error) {
	items, err := s.items.ListWaiting(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list waiting items")
	}
	out := make([]PositionedItem, len(items))
	for i, item := range items {
		out[i] = PositionedItem{Item: item, Position: int64(i)}
	}
	return out, nil
}

// Len returns the waiting item count.
func (s *Service) Len(ctx context.Context) (int64, error) {
	return s.items.CountWaiting(ctx)
}

// Shift removes up to count items from the front of the waiting order and
// returns how many were removed along with the resulting queue length.
// Removed items are deleted outright, not marked completed.
func (s *Service) Shift(ctx context.Context, count int64) (*ShiftResult, error) {
	if count < 0 {
		count = 0
	}
	var result *ShiftResult
	err := s.items.WithTx(ctx, func(ctx context.Context) error {
		shifted, err := s.items.ShiftFront(ctx, count)
		if err != nil {
			return errors.Wrap(err, "shift queue items")
		}
		remaining, err := s.items.CountWaiting(ctx)
		if err != nil {
			return errors.Wrap(err, "count waiting items")
		}
		result = &ShiftResult{Shifted: shifted, QueueLen: remaining}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
