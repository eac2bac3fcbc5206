// Command seed-db provisions the user table and a few demo coupons. Safe to
// run repeatedly: existing records are left alone.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/couponlab/waitroom/internal/domain/coupon"
	"github.com/couponlab/waitroom/internal/repository"
)

var seedUsers = []string{"john_smith", "maria_de_silva"}

type seedCoupon struct {
	name   string
	params string
}

var seedCoupons = []seedCoupon{
	{name: "P15", params: `{"pricing":{"percent":-15}}`},
	{name: "A2000", params: `{"pricing":{"amount":-2000}}`},
	{name: "VIP", params: `{"queuing":{"vip":1}}`},
	{name: "REOPEN", params: `{"queuing":{"reopen":true}}`},
}

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	for _, name := range seedUsers {
		_, err := pool.Exec(ctx,
			`INSERT INTO users (user_name) VALUES ($1) ON CONFLICT DO NOTHING`, name)
		if err != nil {
			return errors.Wrapf(err, "seed user %s", name)
		}
		slog.Info("seeded user", slog.String("user_name", name))
	}

	couponRepo := repository.NewCouponRepository(pool)
	for _, sc := range seedCoupons {
		params, err := coupon.ParseParams([]byte(sc.params))
		if err != nil {
			return errors.Wrapf(err, "parse params for %s", sc.name)
		}
		err = couponRepo.Create(ctx, &coupon.Coupon{Name: sc.name, Params: params})
		if errors.Is(err, coupon.ErrDuplicateName) {
			slog.Info("coupon already exists", slog.String("coupon_name", sc.name))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "seed coupon %s", sc.name)
		}
		slog.Info("seeded coupon", slog.String("coupon_name", sc.name))
	}

	return nil
}
