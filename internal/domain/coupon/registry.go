package coupon

import (
	"context"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

var (
	hundred      = decimal.NewFromInt(100)
	minusHundred = decimal.NewFromInt(-100)
)

// RuleFunc applies one rule to the draft. arg is the rule's raw JSON
// argument; params is the coupon's full rule set, for cross-rule checks.
type RuleFunc func(ctx context.Context, d *Draft, arg jx.Raw, params Params) error

// RulesConfig holds tunables for the built-in rules.
type RulesConfig struct {
	// MinFrequenterOrders is the completed-order count at which a user
	// qualifies for the frequenter_percent discount.
	MinFrequenterOrders int64
}

// Registry resolves (namespace, rule name) pairs to handlers. It is built
// once at startup; unknown pairs fail with UnknownRuleError.
type Registry struct {
	rules map[string]RuleFunc
}

// NewRegistry builds the registry with the built-in pricing and queuing rules.
func NewRegistry(history OrderHistory, cfg RulesConfig) *Registry {
	r := &Registry{rules: make(map[string]RuleFunc)}
	r.register("pricing", "percent", rulePercent)
	r.register("pricing", "frequenter_percent", ruleFrequenterPercent(history, cfg.MinFrequenterOrders))
	r.register("pricing", "amount", ruleAmount)
	r.register("queuing", "vip", ruleVIP)
	r.register("queuing", "reopen", ruleReopen)
	return r
}

func (r *Registry) register(namespace, name string, fn RuleFunc) {
	r.rules[namespace+"."+name] = fn
}

// Lookup returns the handler for the given namespace and rule name.
func (r *Registry) Lookup(namespace, name string) (RuleFunc, error) {
	fn, ok := r.rules[namespace+"."+name]
	if !ok {
		return nil, &UnknownRuleError{Namespace: namespace, Name: name}
	}
	return fn, nil
}

// decodeNumber parses a rule argument as a decimal. Fractional arguments
// are valid, e.g. a -12.5 percent discount.
func decodeNumber(arg jx.Raw) (decimal.Decimal, error) {
	n, err := jx.DecodeBytes(arg).Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(string(n))
}

// rulePercent deducts a percentage from the final price. The argument must
// satisfy -100 <= v < 0. The result is rounded half away from zero to whole
// currency units; prices are non-negative so this is round-half-up.
func rulePercent(_ context.Context, d *Draft, arg jx.Raw, _ Params) error {
	v, err := decodeNumber(arg)
	if err != nil {
		return &InvalidArgumentError{Rule: "pricing.percent", Reason: "percent must be a number"}
	}
	if !v.IsNegative() || v.LessThan(minusHundred) {
		return &InvalidArgumentError{Rule: "pricing.percent", Reason: "must be 0 > percent >= -100"}
	}
	d.FinalPrice = d.FinalPrice.Mul(hundred.Add(v)).Div(hundred).Round(0)
	return nil
}

// ruleFrequenterPercent applies percent only when the user has enough
// completed orders; otherwise it is a no-op.
func ruleFrequenterPercent(history OrderHistory, minOrders int64) RuleFunc {
	return func(ctx context.Context, d *Draft, arg jx.Raw, params Params) error {
		completed, err := history.CountCompletedOrders(ctx, d.UserName)
		if err != nil {
			return err
		}
		if completed < minOrders {
			return nil
		}
		return rulePercent(ctx, d, arg, params)
	}
}

// ruleAmount deducts a fixed amount from the final price, floored at zero.
// The argument must be negative, and the coupon must not also carry any
// percent rule.
func ruleAmount(_ context.Context, d *Draft, arg jx.Raw, params Params) error {
	v, err := decodeNumber(arg)
	if err != nil {
		return &InvalidArgumentError{Rule: "pricing.amount", Reason: "amount must be a number"}
	}
	if !v.IsNegative() {
		return &InvalidArgumentError{Rule: "pricing.amount", Reason: "must be amount < 0"}
	}
	if params.containsRuleName("percent") {
		return ErrConflictingRules
	}
	price := d.FinalPrice.Add(v).Round(0)
	if price.IsNegative() {
		price = decimal.Zero
	}
	d.FinalPrice = price
	return nil
}

// ruleVIP sets the draft's VIP tier.
func ruleVIP(_ context.Context, d *Draft, arg jx.Raw, _ Params) error {
	v, err := jx.DecodeBytes(arg).Int64()
	if err != nil {
		return &InvalidArgumentError{Rule: "queuing.vip", Reason: "vip must be an integer"}
	}
	d.VIP = int(v)
	return nil
}

// ruleReopen toggles the capacity check: a true argument admits the order
// even when the queue is full.
func ruleReopen(_ context.Context, d *Draft, arg jx.Raw, _ Params) error {
	v, err := jx.DecodeBytes(arg).Bool()
	if err != nil {
		return &InvalidArgumentError{Rule: "queuing.reopen", Reason: "reopen must be a boolean"}
	}
	d.SkipCapacityCheck = v
	return nil
}
