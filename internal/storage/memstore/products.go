package memstore

import (
	"context"
	"sort"

	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
)

type productRepo struct{ b *binding }

func (r *productRepo) ListByProject(_ context.Context, projectID string) ([]domain.Product, error) {
	var out []domain.Product
	err := r.b.run(func(st *state) error {
		for _, p := range st.products {
			if p.ProjectID == projectID {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r *productRepo) GetByID(_ context.Context, projectID, id string) (*domain.Product, error) {
	var out *domain.Product
	err := r.b.run(func(st *state) error {
		p, ok := st.products[id]
		if !ok || p.ProjectID != projectID {
			return domain.ErrNotFound
		}
		out = ptr(p)
		return nil
	})
	return out, err
}

func (r *productRepo) Upsert(_ context.Context, product domain.Product) (*domain.Product, error) {
	var out *domain.Product
	err := r.b.run(func(st *state) error {
		for id, p := range st.products {
			if p.ProjectID == product.ProjectID && p.Key == product.Key {
				product.ID = id
				product.CreatedAt = p.CreatedAt
				st.products[id] = product
				out = ptr(product)
				return nil
			}
		}
		if product.ID == "" {
			product.ID = uuid.NewString()
		}
		product.CreatedAt = r.b.now()
		st.products[product.ID] = product
		out = ptr(product)
		return nil
	})
	return out, err
}

func (r *productRepo) GetVariant(_ context.Context, projectID, id string) (*domain.Variant, error) {
	var out *domain.Variant
	err := r.b.run(func(st *state) error {
		v, ok := st.variants[id]
		if !ok || v.ProjectID != projectID {
			return domain.ErrNotFound
		}
		out = ptr(withProduct(st, v))
		return nil
	})
	return out, err
}

func (r *productRepo) GetVariantBySKU(_ context.Context, projectID, sku string) (*domain.Variant, error) {
	var out *domain.Variant
	err := r.b.run(func(st *state) error {
		for _, v := range st.variants {
			if v.ProjectID == projectID && v.SKU == sku {
				out = ptr(withProduct(st, v))
				return nil
			}
		}
		return domain.ErrNotFound
	})
	return out, err
}

func (r *productRepo) UpsertVariant(_ context.Context, v domain.Variant) (*domain.Variant, error) {
	var out *domain.Variant
	err := r.b.run(func(st *state) error {
		if _, ok := st.products[v.ProductID]; !ok {
			return domain.ErrNotFound
		}
		for id, existing := range st.variants {
			if existing.ProjectID == v.ProjectID && existing.SKU == v.SKU {
				v.ID = id
				v.CreatedAt = existing.CreatedAt
				st.variants[id] = v
				out = ptr(withProduct(st, v))
				return nil
			}
		}
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		v.CreatedAt = r.b.now()
		st.variants[v.ID] = v
		out = ptr(withProduct(st, v))
		return nil
	})
	return out, err
}

func (r *productRepo) UpsertInventory(_ context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error) {
	var out *domain.InventoryRecord
	err := r.b.run(func(st *state) error {
		if _, ok := st.variants[rec.VariantID]; !ok {
			return domain.ErrNotFound
		}
		for id, existing := range st.inventory {
			if existing.VariantID == rec.VariantID && existing.Location == rec.Location {
				rec.ID = id
				rec.CreatedAt = existing.CreatedAt
				st.inventory[id] = rec
				out = ptr(rec)
				return nil
			}
		}
		rec.ID = uuid.NewString()
		rec.CreatedAt = r.b.now()
		st.inventory[rec.ID] = rec
		out = ptr(rec)
		return nil
	})
	return out, err
}

func (r *productRepo) ListInventory(_ context.Context, variantID string) ([]domain.InventoryRecord, error) {
	var out []domain.InventoryRecord
	err := r.b.run(func(st *state) error {
		out = inventoryOf(st, variantID)
		return nil
	})
	return out, err
}

func (r *productRepo) LockVariants(_ context.Context, projectID string, ids []string) ([]domain.Variant, error) {
	var out []domain.Variant
	err := r.b.run(func(st *state) error {
		seen := map[string]bool{}
		for _, id := range ids {
			v, ok := st.variants[id]
			if !ok || v.ProjectID != projectID || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, withProduct(st, v))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *productRepo) LockInventory(_ context.Context, variantIDs []string) (map[string][]domain.InventoryRecord, error) {
	out := make(map[string][]domain.InventoryRecord, len(variantIDs))
	err := r.b.run(func(st *state) error {
		for _, id := range variantIDs {
			if recs := inventoryOf(st, id); len(recs) > 0 {
				out[id] = recs
			}
		}
		return nil
	})
	return out, err
}

func (r *productRepo) DecrementInventoryRecord(_ context.Context, recordID string, qty int, allowNegative bool) error {
	return r.b.run(func(st *state) error {
		rec, ok := st.inventory[recordID]
		if !ok || (!allowNegative && rec.OnHand < qty) {
			return domain.ErrInsufficientStock
		}
		rec.OnHand -= qty
		rec.Reserved -= qty
		if rec.Reserved < 0 {
			rec.Reserved = 0
		}
		st.inventory[recordID] = rec
		return nil
	})
}

func (r *productRepo) RefreshVariantAvailable(_ context.Context, variantID string) error {
	return r.b.run(func(st *state) error {
		v, ok := st.variants[variantID]
		if !ok {
			return nil
		}
		sum := 0
		for _, rec := range inventoryOf(st, variantID) {
			sum += rec.Net()
		}
		v.AvailableStock = ptr(sum)
		v.ImportedAvailable = nil
		st.variants[variantID] = v
		return nil
	})
}

func (r *productRepo) DecrementVariantStock(_ context.Context, variantID string, qty int, allowNegative bool) error {
	return r.b.run(func(st *state) error {
		v, ok := st.variants[variantID]
		if !ok {
			return domain.ErrInsufficientStock
		}
		cur := variantLevelAvailable(v)
		if cur == nil {
			if allowNegative {
				return nil
			}
			return domain.ErrInsufficientStock
		}
		if !allowNegative && *cur < qty {
			return domain.ErrInsufficientStock
		}
		v.AvailableStock = ptr(*cur - qty)
		v.ImportedAvailable = nil
		if v.OnHand != nil {
			v.OnHand = ptr(*v.OnHand - qty)
		}
		st.variants[variantID] = v
		return nil
	})
}

// variantLevelAvailable matches the counter expression the Postgres
// repository re-validates against.
func variantLevelAvailable(v domain.Variant) *int {
	reserved := 0
	if v.Reserved != nil {
		reserved = *v.Reserved
	}
	switch {
	case v.AvailableStock != nil && v.ImportedAvailable != nil:
		return ptr(max(*v.AvailableStock, *v.ImportedAvailable))
	case v.AvailableStock != nil:
		return ptr(*v.AvailableStock)
	case v.ImportedAvailable != nil:
		return ptr(*v.ImportedAvailable)
	case v.OnHand != nil:
		return ptr(*v.OnHand - reserved)
	case v.ExternalStock != nil:
		return ptr(*v.ExternalStock - reserved)
	case v.InitialStock != nil:
		return ptr(*v.InitialStock - reserved)
	}
	return nil
}

func withProduct(st *state, v domain.Variant) domain.Variant {
	if p, ok := st.products[v.ProductID]; ok {
		v.ProductPriceCents = p.PriceCents
		v.Currency = p.Currency
	}
	return v
}

func inventoryOf(st *state, variantID string) []domain.InventoryRecord {
	var out []domain.InventoryRecord
	for _, rec := range st.inventory {
		if rec.VariantID == variantID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
