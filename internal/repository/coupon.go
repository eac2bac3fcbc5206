package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couponlab/waitroom/internal/domain/coupon"
)

const (
	getCouponSQL = `SELECT coupon_name, params, max_uses_per_user, max_uses_global, user_name
		FROM coupons WHERE coupon_name = $1`

	listCouponsSQL = `SELECT coupon_name, params, max_uses_per_user, max_uses_global, user_name
		FROM coupons ORDER BY coupon_name`

	createCouponSQL = `INSERT INTO coupons (coupon_name, params, max_uses_per_user, max_uses_global, user_name)
		VALUES ($1, $2, $3, $4, $5)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByName looks up a coupon by its name.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) GetByName(ctx context.Context, name string) (*coupon.Coupon, error) {
	rows, err := from(ctx, r.pool).Query(ctx, getCouponSQL, name)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", name, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", name, err)
	}
	return &c, nil
}

// Create persists a new coupon. The ordered params are stored as JSON text
// so rule order survives the round trip. Returns coupon.ErrDuplicateName
// when the name is taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := from(ctx, r.pool).Exec(ctx, createCouponSQL,
		c.Name, string(c.Params.Encode()), c.MaxUsesPerUser, c.MaxUsesGlobal, c.UserName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateName
		}
		return fmt.Errorf("creating coupon %q: %w", c.Name, err)
	}
	return nil
}

// List returns all coupons ordered by name.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := from(ctx, r.pool).Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c      coupon.Coupon
		params string
	)
	if err := row.Scan(&c.Name, &params, &c.MaxUsesPerUser, &c.MaxUsesGlobal, &c.UserName); err != nil {
		return coupon.Coupon{}, err
	}
	parsed, err := coupon.ParseParams([]byte(params))
	if err != nil {
		return coupon.Coupon{}, fmt.Errorf("coupon %q: %w", c.Name, err)
	}
	c.Params = parsed
	return c, nil
}
