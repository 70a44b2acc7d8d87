package service

import (
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not allowed to access this resource")
)

// Actor is the authenticated caller, as extracted from the bearer token.
type Actor struct {
	UserID string
	Admin  bool
}

func (a Actor) requireUser() error {
	if a.UserID == "" {
		return ErrUnauthenticated
	}
	return nil
}

func (a Actor) requireAdmin() error {
	if err := a.requireUser(); err != nil {
		return err
	}
	if !a.Admin {
		return ErrForbidden
	}
	return nil
}

func (a Actor) canRead(o *domain.Order) bool {
	return a.Admin || o.OwnedBy(a.UserID)
}
