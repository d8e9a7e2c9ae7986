package memstore

import (
	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
)

// PutCart stores c as-is, assigning ids where missing. It lets tests build
// carts in shapes the cart repository never produces, such as absent totals.
func (s *Store) PutCart(c domain.Cart) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &binding{store: s}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.State == "" {
		c.State = domain.CartStateActive
	}
	c.CreatedAt = b.now()
	c.UpdatedAt = c.CreatedAt
	c = copyCart(c)
	for i := range c.Lines {
		if c.Lines[i].ID == "" {
			c.Lines[i].ID = uuid.NewString()
		}
		c.Lines[i].CartID = c.ID
		c.Lines[i].CreatedAt = b.now()
	}
	s.st.carts[c.ID] = c
	return copyCart(c)
}

// PutVariant stores v as-is so tests can set any mix of stock counters.
func (s *Store) PutVariant(v domain.Variant) domain.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &binding{store: s}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = b.now()
	s.st.variants[v.ID] = v
	return withProduct(s.st, v)
}

// Variant returns the committed variant, or false.
func (s *Store) Variant(id string) (domain.Variant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.variants[id]
	return v, ok
}

// Inventory returns the committed inventory records of a variant.
func (s *Store) Inventory(variantID string) []domain.InventoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return inventoryOf(s.st, variantID)
}

// Cart returns the committed cart, or false.
func (s *Store) Cart(id string) (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.carts[id]
	return copyCart(c), ok
}
