// Package seed loads a demo storefront whose variants cover every stock
// shape the checkout tolerates.
package seed

import (
	"context"
	"fmt"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/storage"

	"go.uber.org/zap"
)

const ProjectKey = "demo"

type variantSeed struct {
	SKU        string
	Name       string
	PriceCents *int64
	Backorder  bool
	Available  *int
	Imported   *int
	OnHand     *int
	Reserved   *int
	External   *int
	Initial    *int
	Inventory  []domain.InventoryRecord
}

type productSeed struct {
	Key         string
	Name        string
	Description string
	PriceCents  int64
	Variants    []variantSeed
}

func catalog() []productSeed {
	return []productSeed{
		{
			Key:         "demo-shirt",
			Name:        "Demo T-Shirt",
			Description: "Soft cotton tee for demo purposes",
			PriceCents:  1999,
			Variants: []variantSeed{
				{SKU: "SKU-DEMO-TSHIRT-M", Name: "Demo T-Shirt M", PriceCents: i64(1999), Available: intp(5)},
				{SKU: "SKU-DEMO-TSHIRT-L", Name: "Demo T-Shirt L", Available: intp(2), Imported: intp(4)},
				{SKU: "SKU-DEMO-TSHIRT-XL", Name: "Demo T-Shirt XL", OnHand: intp(6), Reserved: intp(1)},
			},
		},
		{
			Key:         "demo-mug",
			Name:        "Demo Mug",
			Description: "Ceramic mug with demo logo",
			PriceCents:  1299,
			Variants: []variantSeed{
				{SKU: "SKU-DEMO-MUG", Name: "Demo Mug", Inventory: []domain.InventoryRecord{
					{Location: "dhaka", OnHand: 4, Reserved: 1},
					{Location: "chattogram", OnHand: 3, SafetyStock: 1},
				}},
				{SKU: "SKU-DEMO-MUG-GIFT", Name: "Demo Mug Gift Box", PriceCents: i64(1599), External: intp(10), Initial: intp(3)},
			},
		},
		{
			Key:         "demo-poster",
			Name:        "Demo Poster",
			Description: "Printed on demand",
			PriceCents:  899,
			Variants: []variantSeed{
				{SKU: "SKU-DEMO-POSTER", Name: "Demo Poster", Backorder: true, Available: intp(0)},
				{SKU: "SKU-DEMO-POSTER-SIGNED", Name: "Signed Demo Poster", PriceCents: i64(4999)},
			},
		},
	}
}

// Apply upserts the demo project and catalog and returns the project. It
// is idempotent.
func Apply(ctx context.Context, repos storage.Repos, logger *zap.Logger) (*domain.Project, error) {
	logger = logging.OrNop(logger)
	proj, err := repos.Projects.Create(ctx, &domain.Project{Key: ProjectKey, Name: "Demo Project"})
	if err != nil {
		return nil, fmt.Errorf("ensure project: %w", err)
	}

	for _, ps := range catalog() {
		price := ps.PriceCents
		p, err := repos.Products.Upsert(ctx, domain.Product{
			ProjectID:   proj.ID,
			Key:         ps.Key,
			Name:        ps.Name,
			Description: ps.Description,
			PriceCents:  &price,
			Currency:    "BDT",
		})
		if err != nil {
			return nil, fmt.Errorf("upsert product %s: %w", ps.Key, err)
		}
		for _, vs := range ps.Variants {
			v, err := repos.Products.UpsertVariant(ctx, domain.Variant{
				ProjectID:         proj.ID,
				ProductID:         p.ID,
				SKU:               vs.SKU,
				Name:              vs.Name,
				PriceCents:        vs.PriceCents,
				BackorderAllowed:  vs.Backorder,
				AvailableStock:    vs.Available,
				ImportedAvailable: vs.Imported,
				OnHand:            vs.OnHand,
				Reserved:          vs.Reserved,
				ExternalStock:     vs.External,
				InitialStock:      vs.Initial,
			})
			if err != nil {
				return nil, fmt.Errorf("upsert variant %s: %w", vs.SKU, err)
			}
			for _, rec := range vs.Inventory {
				rec.VariantID = v.ID
				if _, err := repos.Products.UpsertInventory(ctx, rec); err != nil {
					return nil, fmt.Errorf("upsert inventory %s@%s: %w", vs.SKU, rec.Location, err)
				}
			}
		}
		logger.Debug("seeded product", zap.String("key", ps.Key), zap.Int("variants", len(ps.Variants)))
	}
	return proj, nil
}

func i64(v int64) *int64 { return &v }
func intp(v int) *int    { return &v }
