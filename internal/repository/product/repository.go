package product

import (
	"context"

	"storefront-checkout/internal/domain"
)

// Repository covers the catalog rows the checkout reads and the stock
// counters it mutates.
type Repository interface {
	ListByProject(ctx context.Context, projectID string) ([]domain.Product, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)

	GetVariant(ctx context.Context, projectID, id string) (*domain.Variant, error)
	GetVariantBySKU(ctx context.Context, projectID, sku string) (*domain.Variant, error)
	UpsertVariant(ctx context.Context, v domain.Variant) (*domain.Variant, error)
	UpsertInventory(ctx context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error)
	ListInventory(ctx context.Context, variantID string) ([]domain.InventoryRecord, error)

	// LockVariants row-locks the given variants in id order and returns the
	// ones that exist.
	LockVariants(ctx context.Context, projectID string, ids []string) ([]domain.Variant, error)
	// LockInventory row-locks inventory records of the given variants, grouped
	// by variant and ordered oldest first.
	LockInventory(ctx context.Context, variantIDs []string) (map[string][]domain.InventoryRecord, error)

	// DecrementInventoryRecord takes qty off on_hand and releases the same
	// amount of reserved, floored at zero. Unless allowNegative is set it
	// returns domain.ErrInsufficientStock when on_hand would go negative.
	DecrementInventoryRecord(ctx context.Context, recordID string, qty int, allowNegative bool) error
	// RefreshVariantAvailable recomputes the variant's available counter
	// from its inventory records.
	RefreshVariantAvailable(ctx context.Context, variantID string) error
	// DecrementVariantStock takes qty off the variant-level counters for
	// variants without inventory records.
	DecrementVariantStock(ctx context.Context, variantID string, qty int, allowNegative bool) error
}
