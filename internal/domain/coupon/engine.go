package coupon

import (
	"context"

	"github.com/go-faster/errors"
)

// Engine validates coupon use and runs the coupon's rules against a draft
// order. All checks are reads; the only mutation is to the draft itself, so
// a failed application needs no rollback.
type Engine struct {
	coupons  Repository
	usage    UsageCounter
	registry *Registry
}

// NewEngine creates an Engine with the required dependencies.
func NewEngine(coupons Repository, usage UsageCounter, registry *Registry) *Engine {
	return &Engine{
		coupons:  coupons,
		usage:    usage,
		registry: registry,
	}
}

// Apply fetches the draft's coupon, enforces ownership and usage caps, and
// executes the coupon's rules in their configured order, mutating the draft
// in place. A draft without a coupon name is a no-op.
//
// Failures are fail-fast: the first violated precondition or rule error is
// returned and the draft must be discarded by the caller.
func (e *Engine) Apply(ctx context.Context, d *Draft) error {
	if d.CouponName == "" {
		return nil
	}

	c, err := e.coupons.GetByName(ctx, d.CouponName)
	if err != nil {
		return err
	}

	if c.UserName != nil && *c.UserName != d.UserName {
		return ErrReserved
	}

	if c.MaxUsesPerUser != nil {
		used, err := e.usage.CountCouponUsesByUser(ctx, c.Name, d.UserName)
		if err != nil {
			return errors.Wrap(err, "count per-user coupon uses")
		}
		if used >= int64(*c.MaxUsesPerUser) {
			return ErrUserLimitReached
		}
	}

	if c.MaxUsesGlobal != nil {
		used, err := e.usage.CountCouponUses(ctx, c.Name)
		if err != nil {
			return errors.Wrap(err, "count global coupon uses")
		}
		if used >= int64(*c.MaxUsesGlobal) {
			return ErrGlobalLimitReached
		}
	}

	return e.runRules(ctx, d, c.Params)
}

// runRules resolves every rule first, then executes them in order. Resolving
// up front keeps a corrupt rule name from partially mutating the draft.
func (e *Engine) runRules(ctx context.Context, d *Draft, params Params) error {
	type step struct {
		fn  RuleFunc
		arg RuleArg
	}
	var steps []step
	for _, ns := range params {
		for _, r := range ns.Rules {
			fn, err := e.registry.Lookup(ns.Namespace, r.Name)
			if err != nil {
				return err
			}
			steps = append(steps, step{fn: fn, arg: r})
		}
	}
	for _, s := range steps {
		if err := s.fn(ctx, d, s.arg.Arg, params); err != nil {
			return err
		}
	}
	return nil
}
