package domain

import "time"

// Customer is a storefront account. Guest accounts are created during checkout
// from contact details alone.
type Customer struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"projectId"`
	Email            *string   `json:"email,omitempty"`
	Phone            *string   `json:"phone,omitempty"`
	Name             string    `json:"name,omitempty"`
	IsGuest          bool      `json:"isGuest"`
	DefaultAddressID *string   `json:"defaultAddressId"`
	CreatedAt        time.Time `json:"createdAt"`
}
