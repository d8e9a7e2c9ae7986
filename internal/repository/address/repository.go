package address

import (
	"context"
	"time"

	"storefront-checkout/internal/domain"
)

// Repository stores customer addresses and their version history.
type Repository interface {
	GetByID(ctx context.Context, customerID, id string) (*domain.Address, error)
	// FindMatch returns the non-archived address of the same owner, type,
	// country and phone whose line, city, state and postal fields match
	// case-insensitively.
	FindMatch(ctx context.Context, a domain.Address) (*domain.Address, error)
	Create(ctx context.Context, a domain.Address) (*domain.Address, error)
	// Touch bumps the version of an existing address and refreshes its
	// contact name and email.
	Touch(ctx context.Context, id, name, email string) (*domain.Address, error)
	InsertVersion(ctx context.Context, a domain.Address) error
	ListVersions(ctx context.Context, addressID string) ([]domain.AddressVersion, error)
	List(ctx context.Context, customerID string, typ domain.AddressType, includeArchived bool) ([]domain.Address, error)
	GetDefault(ctx context.Context, customerID string, typ domain.AddressType) (*domain.Address, error)
	ClearDefault(ctx context.Context, customerID string, typ domain.AddressType) error
	MarkDefault(ctx context.Context, id string) error
	// SetArchived archives the address when at is set and restores it when
	// at is nil. Archiving also drops the default flag.
	SetArchived(ctx context.Context, id string, at *time.Time) (*domain.Address, error)
	// InUse reports whether an order or cart references the address.
	InUse(ctx context.Context, id string) (bool, error)
	// Delete removes the address. It returns domain.ErrInUse while an order
	// or cart still references it.
	Delete(ctx context.Context, customerID, id string) error
	// LatestActive returns the most recently updated non-archived address of
	// the type, or domain.ErrNotFound.
	LatestActive(ctx context.Context, customerID string, typ domain.AddressType) (*domain.Address, error)
}
