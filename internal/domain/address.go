package domain

import "time"

type AddressType string

const (
	AddressShipping AddressType = "SHIPPING"
	AddressBilling  AddressType = "BILLING"
)

// Valid reports whether t is a known address type.
func (t AddressType) Valid() bool {
	return t == AddressShipping || t == AddressBilling
}

// Address is a versioned, customer-owned postal record.
type Address struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customerId"`
	Type       AddressType `json:"type"`
	Name       string      `json:"name"`
	Phone      string      `json:"phone"`
	Email      string      `json:"email,omitempty"`
	Line1      string      `json:"line1"`
	Line2      string      `json:"line2,omitempty"`
	City       string      `json:"city"`
	State      string      `json:"state,omitempty"`
	PostalCode string      `json:"postalCode,omitempty"`
	Country    string      `json:"country"`
	IsDefault  bool        `json:"isDefault"`
	ArchivedAt *time.Time  `json:"archivedAt,omitempty"`
	Version    int         `json:"version"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// AddressVersion is an immutable copy of an address row after a write.
type AddressVersion struct {
	AddressID string    `json:"addressId"`
	Version   int       `json:"version"`
	Snapshot  Address   `json:"snapshot"`
	CreatedAt time.Time `json:"createdAt"`
}
