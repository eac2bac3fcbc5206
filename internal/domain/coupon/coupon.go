// Package coupon implements the coupon model and the rule engine that
// applies a coupon's pricing and queuing rules to a draft order.
package coupon

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// User-correctable failures. The messages are part of the API contract.
var (
	// ErrNotFound is returned when no coupon exists with the requested name.
	ErrNotFound = errors.New("No such coupon_name")
	// ErrDuplicateName is returned when creating a coupon whose name is taken.
	ErrDuplicateName = errors.New("coupon_name already in use")
	// ErrReserved is returned when a coupon restricted to one user is
	// presented by another.
	ErrReserved = errors.New("This coupon is reserved for another user")
	// ErrUserLimitReached is returned when the per-user use cap is exhausted.
	ErrUserLimitReached = errors.New("You cannot use this coupon more")
	// ErrGlobalLimitReached is returned when the global use cap is exhausted.
	ErrGlobalLimitReached = errors.New("Sorry, the framework for this coupon has been exhausted by customers")
	// ErrConflictingRules is returned when a coupon combines an amount rule
	// with any percent rule.
	ErrConflictingRules = errors.New("must not use amount and percent rules together")
)

// ErrNameExhausted indicates the name generator ran out of attempts. This is
// a system fault, not a user error.
var ErrNameExhausted = errors.New("could not generate a unique coupon name")

// InvalidArgumentError indicates a rule received an argument outside its
// allowed range.
type InvalidArgumentError struct {
	Rule   string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument for %s: %s", e.Rule, e.Reason)
}

// UnknownRuleError indicates a stored coupon references a rule that is not in
// the registry. It points at a corrupt or hand-edited coupon record.
type UnknownRuleError struct {
	Namespace string
	Name      string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("unknown coupon rule %s.%s", e.Namespace, e.Name)
}

// Coupon is a named bundle of rules with optional usage caps and an optional
// ownership restriction. Coupons are immutable after creation.
type Coupon struct {
	Name           string
	Params         Params
	MaxUsesPerUser *int    // nil = unlimited
	MaxUsesGlobal  *int    // nil = unlimited
	UserName       *string // nil = usable by anyone
}

// Draft is the mutable order record rules operate on. It lives for the
// duration of a single apply-and-admit sequence and is discarded on failure.
type Draft struct {
	UserName   string
	OrderRef   string
	CouponName string // empty when the order carries no coupon
	FinalPrice decimal.Decimal
	VIP        int
	// SkipCapacityCheck admits the order even when the queue is full.
	// Set by the queuing.reopen rule.
	SkipCapacityCheck bool
}

// Repository provides persistence for coupons.
type Repository interface {
	GetByName(ctx context.Context, name string) (*Coupon, error)
	// Create persists a new coupon, returning ErrDuplicateName when the
	// name is already taken.
	Create(ctx context.Context, c *Coupon) error
	List(ctx context.Context) ([]Coupon, error)
}

// UsageCounter reports how many queue items have ever been created with a
// given coupon. Usage is never returned: completed items still count.
type UsageCounter interface {
	CountCouponUses(ctx context.Context, couponName string) (int64, error)
	CountCouponUsesByUser(ctx context.Context, couponName, userName string) (int64, error)
}

// OrderHistory reports a user's completed order count, used by the
// frequenter_percent rule.
type OrderHistory interface {
	CountCompletedOrders(ctx context.Context, userName string) (int64, error)
}
