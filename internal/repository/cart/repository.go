package cart

import (
	"context"

	"storefront-checkout/internal/domain"
)

type CreateCartInput struct {
	ProjectID   string
	CustomerID  *string
	AnonymousID *string
	Currency    string
}

// NewLine is a line about to enter a cart. UnitPriceCents is the price the
// shopper saw and is frozen on the row.
type NewLine struct {
	VariantID      string
	Quantity       int
	UnitPriceCents int64
	Snapshot       map[string]interface{}
}

// Adjustments are the cart-level amounts applied on top of the subtotal.
type Adjustments struct {
	DiscountCents int64
	TaxCents      int64
	ShippingCents int64
}

// Repository stores carts and their lines. Mutations are expected to run
// inside a unit of work so totals stay consistent with the lines.
type Repository interface {
	Create(ctx context.Context, in CreateCartInput) (*domain.Cart, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error)
	GetActiveByCustomer(ctx context.Context, projectID, customerID string) (*domain.Cart, error)
	GetActiveByAnonymous(ctx context.Context, projectID, anonymousID string) (*domain.Cart, error)
	// LockActive returns the owner's newest active cart and row-locks it.
	// The customer id is tried first, then the anonymous id.
	LockActive(ctx context.Context, projectID string, owner domain.CartOwner) (*domain.Cart, error)
	AssignCustomerToAnonymous(ctx context.Context, projectID, anonymousID, customerID string) (*domain.Cart, error)
	AddLineItem(ctx context.Context, cartID string, line NewLine) error
	ChangeLineItemQuantity(ctx context.Context, cartID, lineItemID string, quantity int) error
	// SetAdjustments stores discount, tax and shipping and re-derives the
	// grand total.
	SetAdjustments(ctx context.Context, cartID string, adj Adjustments) error
	// MarkConverted flips an active cart to converted. It returns
	// domain.ErrCartNotActive when the cart was already converted.
	MarkConverted(ctx context.Context, cartID, shippingAddressID string, billingAddressID *string) error
}
