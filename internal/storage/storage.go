package storage

import (
	"context"

	"storefront-checkout/internal/repository/address"
	"storefront-checkout/internal/repository/cart"
	"storefront-checkout/internal/repository/customer"
	"storefront-checkout/internal/repository/order"
	"storefront-checkout/internal/repository/product"
	"storefront-checkout/internal/repository/project"
)

// Repos is a set of repositories bound to one connection or transaction.
type Repos struct {
	Projects  project.Repository
	Carts     cart.Repository
	Products  product.Repository
	Customers customer.Repository
	Addresses address.Repository
	Orders    order.Repository
}

// Store hands out repositories and runs units of work.
type Store interface {
	// Repos returns repositories that run each call on its own.
	Repos() Repos
	// WithinTx runs fn against tx-scoped repositories. A nil return commits;
	// any error rolls back everything fn wrote.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
}
