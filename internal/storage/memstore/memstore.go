// Package memstore is an in-memory storage.Store for tests. Units of work are
// serialized and run against a private copy of the state that replaces the
// live state only when the work succeeds.
package memstore

import (
	"context"
	"sync"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/storage"
)

type state struct {
	projects  map[string]domain.Project
	products  map[string]domain.Product
	variants  map[string]domain.Variant
	inventory map[string]domain.InventoryRecord
	customers map[string]domain.Customer
	addresses map[string]domain.Address
	versions  []domain.AddressVersion
	carts     map[string]domain.Cart
	orders    map[string]domain.Order
	events    []domain.OrderEvent
	seq       int64
}

func newState() *state {
	return &state{
		projects:  map[string]domain.Project{},
		products:  map[string]domain.Product{},
		variants:  map[string]domain.Variant{},
		inventory: map[string]domain.InventoryRecord{},
		customers: map[string]domain.Customer{},
		addresses: map[string]domain.Address{},
		carts:     map[string]domain.Cart{},
		orders:    map[string]domain.Order{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.projects {
		out.projects[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.variants {
		out.variants[k] = v
	}
	for k, v := range s.inventory {
		out.inventory[k] = v
	}
	for k, v := range s.customers {
		out.customers[k] = v
	}
	for k, v := range s.addresses {
		out.addresses[k] = v
	}
	for k, v := range s.carts {
		out.carts[k] = copyCart(v)
	}
	for k, v := range s.orders {
		out.orders[k] = copyOrder(v)
	}
	out.versions = append([]domain.AddressVersion(nil), s.versions...)
	out.events = append([]domain.OrderEvent(nil), s.events...)
	out.seq = s.seq
	return out
}

// Store implements storage.Store in memory. Stored structs are only ever
// replaced, never written through, so a shallow clone is a safe snapshot.
type Store struct {
	mu    sync.Mutex
	st    *state
	clock time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Repos() storage.Repos {
	return s.reposFor(nil)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, s.reposFor(work)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) reposFor(work *state) storage.Repos {
	b := &binding{store: s, work: work}
	return storage.Repos{
		Projects:  &projectRepo{b},
		Carts:     &cartRepo{b},
		Products:  &productRepo{b},
		Customers: &customerRepo{b},
		Addresses: &addressRepo{b},
		Orders:    &orderRepo{b},
	}
}

// binding routes repository calls either to a unit of work's private state
// or, outside a transaction, to the live state under the store lock.
type binding struct {
	store *Store
	work  *state
}

func (b *binding) run(fn func(st *state) error) error {
	if b.work != nil {
		return fn(b.work)
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	work := b.store.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	b.store.st = work
	return nil
}

// now returns strictly increasing timestamps so ordering by time is stable.
func (b *binding) now() time.Time {
	t := time.Now().UTC()
	if !t.After(b.store.clock) {
		t = b.store.clock.Add(time.Microsecond)
	}
	b.store.clock = t
	return t
}

// CountOrders reports how many orders were committed.
func (s *Store) CountOrders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

// CountEvents reports how many order events were committed.
func (s *Store) CountEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.events)
}

// CountCustomers reports how many customers exist in the project.
func (s *Store) CountCustomers(projectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.st.customers {
		if c.ProjectID == projectID {
			n++
		}
	}
	return n
}

// CountAddresses reports how many address rows the customer owns,
// archived ones included.
func (s *Store) CountAddresses(customerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.st.addresses {
		if a.CustomerID == customerID {
			n++
		}
	}
	return n
}

func copyCart(c domain.Cart) domain.Cart {
	c.Lines = append([]domain.CartLine(nil), c.Lines...)
	return c
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func ptr[T any](v T) *T {
	return &v
}
