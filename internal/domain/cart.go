package domain

import "time"

const (
	CartStateActive    = "active"
	CartStateConverted = "converted"
)

// CartOwner identifies who a cart belongs to. Either field may be empty.
type CartOwner struct {
	CustomerID  string
	AnonymousID string
}

// CartTotals holds the totals precomputed by the cart API. A nil field was never computed.
type CartTotals struct {
	SubtotalCents *int64 `json:"subtotalCents,omitempty"`
	DiscountCents *int64 `json:"discountCents,omitempty"`
	TaxCents      *int64 `json:"taxCents,omitempty"`
	ShippingCents *int64 `json:"shippingCents,omitempty"`
	TotalCents    *int64 `json:"totalCents,omitempty"`
}

type Cart struct {
	ID                string     `json:"id"`
	ProjectID         string     `json:"-"`
	CustomerID        *string    `json:"customerId,omitempty"`
	AnonymousID       *string    `json:"-"`
	Currency          string     `json:"currency"`
	State             string     `json:"state"`
	Totals            CartTotals `json:"totals"`
	ShippingAddressID *string    `json:"shippingAddressId,omitempty"`
	BillingAddressID  *string    `json:"billingAddressId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ConvertedAt       *time.Time `json:"convertedAt,omitempty"`
	Lines             []CartLine `json:"lineItems,omitempty"`
}

// CartLine carries the unit price and line total frozen when the item entered the cart.
type CartLine struct {
	ID             string                 `json:"id"`
	CartID         string                 `json:"cartId"`
	VariantID      string                 `json:"variantId"`
	Quantity       int                    `json:"quantity"`
	UnitPriceCents *int64                 `json:"unitPriceCents,omitempty"`
	TotalCents     *int64                 `json:"totalCents,omitempty"`
	Snapshot       map[string]interface{} `json:"snapshot,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}
