// Package stock computes the effective available quantity of a variant from
// whichever inventory representation the catalog carries for it.
package stock

import "storefront-checkout/internal/domain"

// Strategy reads one inventory representation. It returns nil when that
// representation is absent.
type Strategy struct {
	Name string
	Read func(v domain.Variant, records []domain.InventoryRecord) *int
}

var strategies = []Strategy{
	{Name: "variant_available", Read: variantAvailable},
	{Name: "variant_counters", Read: variantCounters},
	{Name: "external_figures", Read: externalFigures},
	{Name: "inventory_records", Read: inventoryRecords},
}

// Strategies returns the strategies in the order Resolve tries them.
func Strategies() []Strategy {
	out := make([]Strategy, len(strategies))
	copy(out, strategies)
	return out
}

// Resolve returns the effective available quantity, floored at zero, or nil
// when the variant carries no stock signal at all.
func Resolve(v domain.Variant, records []domain.InventoryRecord) *int {
	qty, _ := ResolveNamed(v, records)
	return qty
}

// ResolveNamed is Resolve that also reports which strategy answered.
func ResolveNamed(v domain.Variant, records []domain.InventoryRecord) (*int, string) {
	for _, s := range strategies {
		if qty := s.Read(v, records); qty != nil {
			n := *qty
			if n < 0 {
				n = 0
			}
			return &n, s.Name
		}
	}
	return nil, ""
}

// variantAvailable takes the larger of the manual and imported figures.
func variantAvailable(v domain.Variant, _ []domain.InventoryRecord) *int {
	switch {
	case v.AvailableStock != nil && v.ImportedAvailable != nil:
		n := max(*v.AvailableStock, *v.ImportedAvailable)
		return &n
	case v.AvailableStock != nil:
		n := *v.AvailableStock
		return &n
	case v.ImportedAvailable != nil:
		n := *v.ImportedAvailable
		return &n
	}
	return nil
}

func variantCounters(v domain.Variant, _ []domain.InventoryRecord) *int {
	if v.OnHand == nil {
		return nil
	}
	n := *v.OnHand - reserved(v)
	return &n
}

func externalFigures(v domain.Variant, _ []domain.InventoryRecord) *int {
	base := v.ExternalStock
	if base == nil {
		base = v.InitialStock
	}
	if base == nil {
		return nil
	}
	n := *base - reserved(v)
	return &n
}

func inventoryRecords(_ domain.Variant, records []domain.InventoryRecord) *int {
	if len(records) == 0 {
		return nil
	}
	n := 0
	for _, r := range records {
		n += r.Net()
	}
	return &n
}

func reserved(v domain.Variant) int {
	if v.Reserved == nil {
		return 0
	}
	return *v.Reserved
}
