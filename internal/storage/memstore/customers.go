package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
)

type customerRepo struct{ b *binding }

func (r *customerRepo) Create(_ context.Context, c domain.Customer) (*domain.Customer, error) {
	var out *domain.Customer
	err := r.b.run(func(st *state) error {
		if c.Email != nil && *c.Email != "" {
			lower := strings.ToLower(*c.Email)
			for _, existing := range st.customers {
				if existing.ProjectID == c.ProjectID && existing.Email != nil && *existing.Email == lower {
					return domain.ErrAlreadyExists
				}
			}
			c.Email = &lower
		} else {
			c.Email = nil
		}
		c.ID = uuid.NewString()
		c.DefaultAddressID = nil
		c.CreatedAt = r.b.now()
		st.customers[c.ID] = c
		out = ptr(c)
		return nil
	})
	return out, err
}

func (r *customerRepo) GetByEmail(_ context.Context, projectID, email string) (*domain.Customer, error) {
	return r.find(projectID, func(c domain.Customer) bool {
		return c.Email != nil && strings.EqualFold(*c.Email, email)
	})
}

func (r *customerRepo) GetByPhone(_ context.Context, projectID, phone string) (*domain.Customer, error) {
	return r.find(projectID, func(c domain.Customer) bool {
		return c.Phone != nil && *c.Phone == phone
	})
}

func (r *customerRepo) GetByID(_ context.Context, projectID, id string) (*domain.Customer, error) {
	return r.find(projectID, func(c domain.Customer) bool { return c.ID == id })
}

func (r *customerRepo) SetDefaultAddress(_ context.Context, customerID string, addressID *string) error {
	return r.b.run(func(st *state) error {
		c, ok := st.customers[customerID]
		if !ok {
			return domain.ErrNotFound
		}
		c.DefaultAddressID = addressID
		st.customers[customerID] = c
		return nil
	})
}

// find prefers registered accounts over guests, then the oldest row.
func (r *customerRepo) find(projectID string, match func(domain.Customer) bool) (*domain.Customer, error) {
	var out *domain.Customer
	err := r.b.run(func(st *state) error {
		var found []domain.Customer
		for _, c := range st.customers {
			if c.ProjectID == projectID && match(c) {
				found = append(found, c)
			}
		}
		if len(found) == 0 {
			return domain.ErrNotFound
		}
		sort.Slice(found, func(i, j int) bool {
			if found[i].IsGuest != found[j].IsGuest {
				return !found[i].IsGuest
			}
			return found[i].CreatedAt.Before(found[j].CreatedAt)
		})
		out = ptr(found[0])
		return nil
	})
	return out, err
}

type addressRepo struct{ b *binding }

func (r *addressRepo) GetByID(_ context.Context, customerID, id string) (*domain.Address, error) {
	var out *domain.Address
	err := r.b.run(func(st *state) error {
		a, ok := st.addresses[id]
		if !ok || a.CustomerID != customerID {
			return domain.ErrNotFound
		}
		out = ptr(a)
		return nil
	})
	return out, err
}

func (r *addressRepo) FindMatch(_ context.Context, want domain.Address) (*domain.Address, error) {
	var out *domain.Address
	err := r.b.run(func(st *state) error {
		var best *domain.Address
		for _, a := range st.addresses {
			if a.CustomerID != want.CustomerID || a.Type != want.Type || a.ArchivedAt != nil ||
				a.Country != want.Country || a.Phone != want.Phone {
				continue
			}
			if !strings.EqualFold(a.Line1, want.Line1) || !strings.EqualFold(a.Line2, want.Line2) ||
				!strings.EqualFold(a.City, want.City) || !strings.EqualFold(a.State, want.State) ||
				!strings.EqualFold(a.PostalCode, want.PostalCode) {
				continue
			}
			if best == nil || a.UpdatedAt.After(best.UpdatedAt) {
				best = ptr(a)
			}
		}
		if best == nil {
			return domain.ErrNotFound
		}
		out = best
		return nil
	})
	return out, err
}

func (r *addressRepo) Create(_ context.Context, a domain.Address) (*domain.Address, error) {
	var out *domain.Address
	err := r.b.run(func(st *state) error {
		if a.IsDefault && hasDefault(st, a.CustomerID, a.Type) {
			return domain.ErrAlreadyExists
		}
		now := r.b.now()
		a.ID = uuid.NewString()
		a.Version = 1
		a.ArchivedAt = nil
		a.CreatedAt = now
		a.UpdatedAt = now
		st.addresses[a.ID] = a
		out = ptr(a)
		return nil
	})
	return out, err
}

func (r *addressRepo) Touch(_ context.Context, id, name, email string) (*domain.Address, error) {
	var out *domain.Address
	err := r.b.run(func(st *state) error {
		a, ok := st.addresses[id]
		if !ok {
			return domain.ErrNotFound
		}
		a.Name = name
		a.Email = email
		a.Version++
		a.UpdatedAt = r.b.now()
		st.addresses[id] = a
		out = ptr(a)
		return nil
	})
	return out, err
}

func (r *addressRepo) InsertVersion(_ context.Context, a domain.Address) error {
	return r.b.run(func(st *state) error {
		for _, v := range st.versions {
			if v.AddressID == a.ID && v.Version == a.Version {
				return nil
			}
		}
		st.versions = append(st.versions, domain.AddressVersion{
			AddressID: a.ID,
			Version:   a.Version,
			Snapshot:  a,
			CreatedAt: r.b.now(),
		})
		return nil
	})
}

func (r *addressRepo) ListVersions(_ context.Context, addressID string) ([]domain.AddressVersion, error) {
	var out []domain.AddressVersion
	err := r.b.run(func(st *state) error {
		for _, v := range st.versions {
			if v.AddressID == addressID {
				out = append(out, v)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
		return nil
	})
	return out, err
}

func (r *addressRepo) List(_ context.Context, customerID string, typ domain.AddressType, includeArchived bool) ([]domain.Address, error) {
	var out []domain.Address
	err := r.b.run(func(st *state) error {
		for _, a := range st.addresses {
			if a.CustomerID != customerID || (typ != "" && a.Type != typ) {
				continue
			}
			if !includeArchived && a.ArchivedAt != nil {
				continue
			}
			out = append(out, a)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].IsDefault != out[j].IsDefault {
				return out[i].IsDefault
			}
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		})
		return nil
	})
	return out, err
}

func (r *addressRepo) GetDefault(_ context.Context, customerID string, typ domain.AddressType) (*domain.Address, error) {
	var out *domain.Address
	err := r.b.run(func(st *state) error {
		for _, a := range st.addresses {
			if a.CustomerID == customerID && a.Type == typ && a.IsDefault && a.ArchivedAt == nil {
				out = ptr(a)
				return nil
			}
		}
		return domain.ErrNotFound
	})
	return out, err
}

func (r *addressRepo) ClearDefault(_ context.Context, customerID string, typ domain.AddressType) error {
	return r.b.run(func(st *state) error {
		for id, a := range st.addresses {
			if a.CustomerID == customerID && a.Type == typ && a.IsDefault {
				a.IsDefault = false
				st.addresses[id] = a
			}
		}
		return nil
	})
}

func (r *addressRepo) MarkDefault(_ context.Context, id string) error {
	return r.b.run(func(st *state) error {
		a, ok := st.addresses[id]
		if !ok || a.ArchivedAt != nil {
			return domain.ErrNotFound
		}
		if !a.IsDefault && hasDefault(st, a.CustomerID, a.Type) {
			return domain.ErrAlreadyExists
		}
		a.IsDefault = true
		a.UpdatedAt = r.b.now()
		st.addresses[id] = a
		return nil
	})
}

func (r *addressRepo) SetArchived(_ context.Context, id string, at *time.Time) (*domain.Address, error) {
	var out *domain.Address
	err := r.b.run(func(st *state) error {
		a, ok := st.addresses[id]
		if !ok {
			return domain.ErrNotFound
		}
		a.ArchivedAt = at
		if at != nil {
			a.IsDefault = false
		}
		a.UpdatedAt = r.b.now()
		st.addresses[id] = a
		out = ptr(a)
		return nil
	})
	return out, err
}

func (r *addressRepo) InUse(_ context.Context, id string) (bool, error) {
	var used bool
	err := r.b.run(func(st *state) error {
		used = addressReferenced(st, id)
		return nil
	})
	return used, err
}

func (r *addressRepo) Delete(_ context.Context, customerID, id string) error {
	return r.b.run(func(st *state) error {
		a, ok := st.addresses[id]
		if !ok || a.CustomerID != customerID {
			return domain.ErrNotFound
		}
		if addressReferenced(st, id) {
			return domain.ErrInUse
		}
		delete(st.addresses, id)
		kept := st.versions[:0:0]
		for _, v := range st.versions {
			if v.AddressID != id {
				kept = append(kept, v)
			}
		}
		st.versions = kept
		if c, ok := st.customers[customerID]; ok && c.DefaultAddressID != nil && *c.DefaultAddressID == id {
			c.DefaultAddressID = nil
			st.customers[customerID] = c
		}
		return nil
	})
}

func (r *addressRepo) LatestActive(_ context.Context, customerID string, typ domain.AddressType) (*domain.Address, error) {
	var out *domain.Address
	err := r.b.run(func(st *state) error {
		for _, a := range st.addresses {
			if a.CustomerID != customerID || a.Type != typ || a.ArchivedAt != nil {
				continue
			}
			if out == nil || a.UpdatedAt.After(out.UpdatedAt) {
				out = ptr(a)
			}
		}
		if out == nil {
			return domain.ErrNotFound
		}
		return nil
	})
	return out, err
}

func hasDefault(st *state, customerID string, typ domain.AddressType) bool {
	for _, a := range st.addresses {
		if a.CustomerID == customerID && a.Type == typ && a.IsDefault && a.ArchivedAt == nil {
			return true
		}
	}
	return false
}

func addressReferenced(st *state, id string) bool {
	for _, o := range st.orders {
		if o.ShippingAddressID == id || (o.BillingAddressID != nil && *o.BillingAddressID == id) {
			return true
		}
	}
	for _, c := range st.carts {
		if (c.ShippingAddressID != nil && *c.ShippingAddressID == id) || (c.BillingAddressID != nil && *c.BillingAddressID == id) {
			return true
		}
	}
	return false
}
