package order

import (
	"context"

	"storefront-checkout/internal/domain"
)

// Repository persists orders, their items and the audit trail.
type Repository interface {
	// NextNumber draws the next value of the order number sequence.
	NextNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, o domain.Order) (*domain.Order, error)
	CreateItems(ctx context.Context, orderID string, items []domain.OrderItem) ([]domain.OrderItem, error)
	AppendEvent(ctx context.Context, e domain.OrderEvent) (*domain.OrderEvent, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Order, error)
	ListEvents(ctx context.Context, orderID string) ([]domain.OrderEvent, error)
}
