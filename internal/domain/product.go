package domain

import "time"

type Product struct {
	ID          string                 `json:"id"`
	ProjectID   string                 `json:"-"`
	Key         string                 `json:"key"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	PriceCents  *int64                 `json:"priceCents,omitempty"`
	Currency    string                 `json:"currency"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Variant is a sellable unit. The stock counters are denormalized and may be
// populated by different upstream paths; any of them can be nil.
type Variant struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"-"`
	ProductID         string    `json:"productId"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	PriceCents        *int64    `json:"priceCents,omitempty"`
	ProductPriceCents *int64    `json:"-"`
	Currency          string    `json:"currency"`
	BackorderAllowed  bool      `json:"backorderAllowed"`
	AvailableStock    *int      `json:"availableStock,omitempty"`
	ImportedAvailable *int      `json:"importedAvailable,omitempty"`
	OnHand            *int      `json:"onHand,omitempty"`
	Reserved          *int      `json:"reserved,omitempty"`
	ExternalStock     *int      `json:"externalStock,omitempty"`
	InitialStock      *int      `json:"initialStock,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// InventoryRecord tracks stock for a variant at one fulfillment location.
type InventoryRecord struct {
	ID          string    `json:"id"`
	VariantID   string    `json:"variantId"`
	Location    string    `json:"location"`
	OnHand      int       `json:"onHand"`
	Reserved    int       `json:"reserved"`
	SafetyStock int       `json:"safetyStock"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Net returns on-hand minus reserved and safety stock, floored at zero.
func (r InventoryRecord) Net() int {
	n := r.OnHand - r.Reserved - r.SafetyStock
	if n < 0 {
		return 0
	}
	return n
}
