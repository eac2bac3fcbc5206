package coupon

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/go-faster/errors"

	"github.com/couponlab/waitroom/internal/domain/user"
)

// nameAlphabet is the character set generated coupon names are drawn from.
const nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Config holds coupon service tunables.
type Config struct {
	// NameLen is the length of generated coupon names.
	NameLen int
	// NameAttempts bounds the generate-and-insert retry loop.
	NameAttempts int
}

// CreateRequest holds the input for creating a coupon.
type CreateRequest struct {
	// Name is the requested coupon name; empty means generate one.
	Name           string
	Params         Params
	MaxUsesPerUser *int
	MaxUsesGlobal  *int
	// UserName restricts the coupon to one user when set.
	UserName *string
}

// Service creates and reads coupons.
type Service struct {
	coupons Repository
	users   user.Repository
	cfg     Config

	// pickIndex selects a random index into nameAlphabet. Overridable in tests.
	pickIndex func(n int) int
}

// NewService creates a coupon Service.
func NewService(coupons Repository, users user.Repository, cfg Config) *Service {
	return &Service{
		coupons:   coupons,
		users:     users,
		cfg:       cfg,
		pickIndex: rand.IntN,
	}
}

// Create persists a new coupon. When the request names the coupon, a taken
// name fails with ErrDuplicateName. When the name is omitted, a random name
// is generated and the insert retried on collision; uniqueness is enforced
// by the store, so the retry loop is safe under concurrent creation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	if req.UserName != nil {
		if _, err := s.users.GetByName(ctx, *req.UserName); err != nil {
			return nil, err
		}
	}

	c := &Coupon{
		Name:           req.Name,
		Params:         req.Params,
		MaxUsesPerUser: req.MaxUsesPerUser,
		MaxUsesGlobal:  req.MaxUsesGlobal,
		UserName:       req.UserName,
	}

	if c.Name != "" {
		if err := s.coupons.Create(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	for range s.cfg.NameAttempts {
		c.Name = s.generateName()
		err := s.coupons.Create(ctx, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrDuplicateName) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrNameExhausted, "%d attempts", s.cfg.NameAttempts)
}

// GetByName returns the coupon with the given name, or ErrNotFound.
func (s *Service) GetByName(ctx context.Context, name string) (*Coupon, error) {
	return s.coupons.GetByName(ctx, name)
}

// List returns all coupons.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.coupons.List(ctx)
}

func (s *Service) generateName() string {
	var b strings.Builder
	b.Grow(s.cfg.NameLen)
	for range s.cfg.NameLen {
		b.WriteByte(nameAlphabet[s.pickIndex(len(nameAlphabet))])
	}
	return b.String()
}
