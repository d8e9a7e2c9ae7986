package customer

import (
	"context"

	"storefront-checkout/internal/domain"
)

// Repository persists and fetches customers.
type Repository interface {
	Create(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	GetByEmail(ctx context.Context, projectID, email string) (*domain.Customer, error)
	GetByPhone(ctx context.Context, projectID, phone string) (*domain.Customer, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Customer, error)
	// SetDefaultAddress points the customer at addressID, or clears the
	// pointer when addressID is nil.
	SetDefaultAddress(ctx context.Context, customerID string, addressID *string) error
}
