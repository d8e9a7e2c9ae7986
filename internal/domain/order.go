package domain

import "time"

const (
	OrderStatusPlaced            = "PLACED"
	PaymentStatusUnpaid          = "UNPAID"
	FulfillmentStatusUnfulfilled = "UNFULFILLED"

	OrderEventCreated = "CREATED"
)

type OrderTotals struct {
	SubtotalCents int64 `json:"subtotalCents"`
	DiscountCents int64 `json:"discountCents"`
	TaxCents      int64 `json:"taxCents"`
	ShippingCents int64 `json:"shippingCents"`
	TotalCents    int64 `json:"grandTotalCents"`
}

// Order is immutable once created; later workflows only move its statuses.
type Order struct {
	ID                string                 `json:"id"`
	ProjectID         string                 `json:"-"`
	OrderNumber       string                 `json:"orderNumber"`
	CustomerID        string                 `json:"customerId"`
	CartID            string                 `json:"cartId"`
	Currency          string                 `json:"currency"`
	Status            string                 `json:"status"`
	PaymentStatus     string                 `json:"paymentStatus"`
	FulfillmentStatus string                 `json:"fulfillmentStatus"`
	PaymentMethod     string                 `json:"paymentMethod"`
	Notes             string                 `json:"notes,omitempty"`
	Totals            OrderTotals            `json:"totals"`
	ShippingAddressID string                 `json:"shippingAddressId"`
	BillingAddressID  *string                `json:"billingAddressId,omitempty"`
	IsGuest           bool                   `json:"isGuest"`
	Metadata          map[string]interface{} `json:"metadata"`
	CreatedAt         time.Time              `json:"createdAt"`
	Items             []OrderItem            `json:"items"`
}

type OrderItem struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"orderId"`
	VariantID      string    `json:"variantId"`
	ProductID      string    `json:"productId"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	TotalCents     int64     `json:"totalCents"`
	CreatedAt      time.Time `json:"createdAt"`
}

// OrderEvent is an append-only audit entry.
type OrderEvent struct {
	ID        string                 `json:"id"`
	OrderID   string                 `json:"orderId"`
	Kind      string                 `json:"kind"`
	ActorID   string                 `json:"actorId"`
	ActorType string                 `json:"actorType"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"createdAt"`
}
