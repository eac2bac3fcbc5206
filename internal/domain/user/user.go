// Package user holds the minimal user model. Users are pre-provisioned;
// there is no registration or authentication here.
package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no user exists with the requested name.
var ErrNotFound = errors.New("No such user_name")

// User is an opaque identity referenced by coupons and queue items.
type User struct {
	Name string
}

// Repository provides lookup of users by name.
type Repository interface {
	GetByName(ctx context.Context, name string) (*User, error)
}
