package project

import (
	"context"

	"storefront-checkout/internal/domain"
)

// Repository resolves storefront tenants.
type Repository interface {
	GetByKey(ctx context.Context, key string) (*domain.Project, error)
	Create(ctx context.Context, project *domain.Project) (*domain.Project, error)
}
