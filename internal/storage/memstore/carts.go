package memstore

import (
	"context"
	"sort"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/repository/cart"

	"github.com/google/uuid"
)

type projectRepo struct{ b *binding }

func (r *projectRepo) GetByKey(_ context.Context, key string) (*domain.Project, error) {
	var out *domain.Project
	err := r.b.run(func(st *state) error {
		for _, p := range st.projects {
			if p.Key == key {
				out = ptr(p)
				return nil
			}
		}
		return domain.ErrNotFound
	})
	return out, err
}

func (r *projectRepo) Create(_ context.Context, project *domain.Project) (*domain.Project, error) {
	var out *domain.Project
	err := r.b.run(func(st *state) error {
		for id, p := range st.projects {
			if p.Key == project.Key {
				p.Name = project.Name
				st.projects[id] = p
				out = ptr(p)
				return nil
			}
		}
		p := domain.Project{ID: uuid.NewString(), Key: project.Key, Name: project.Name, CreatedAt: r.b.now()}
		st.projects[p.ID] = p
		out = ptr(p)
		return nil
	})
	return out, err
}

type cartRepo struct{ b *binding }

func (r *cartRepo) Create(_ context.Context, in cart.CreateCartInput) (*domain.Cart, error) {
	var out *domain.Cart
	err := r.b.run(func(st *state) error {
		now := r.b.now()
		c := domain.Cart{
			ID:          uuid.NewString(),
			ProjectID:   in.ProjectID,
			CustomerID:  in.CustomerID,
			AnonymousID: in.AnonymousID,
			Currency:    in.Currency,
			State:       domain.CartStateActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		st.carts[c.ID] = c
		out = ptr(copyCart(c))
		return nil
	})
	return out, err
}

func (r *cartRepo) GetByID(_ context.Context, projectID, id string) (*domain.Cart, error) {
	var out *domain.Cart
	err := r.b.run(func(st *state) error {
		c, ok := st.carts[id]
		if !ok || c.ProjectID != projectID {
			return domain.ErrNotFound
		}
		out = ptr(copyCart(c))
		return nil
	})
	return out, err
}

func (r *cartRepo) GetActiveByCustomer(_ context.Context, projectID, customerID string) (*domain.Cart, error) {
	var out *domain.Cart
	err := r.b.run(func(st *state) error {
		c, ok := newestActive(st, projectID, func(c domain.Cart) bool {
			return c.CustomerID != nil && *c.CustomerID == customerID
		})
		if !ok {
			return domain.ErrNotFound
		}
		out = ptr(copyCart(c))
		return nil
	})
	return out, err
}

func (r *cartRepo) GetActiveByAnonymous(_ context.Context, projectID, anonymousID string) (*domain.Cart, error) {
	var out *domain.Cart
	err := r.b.run(func(st *state) error {
		c, ok := newestActive(st, projectID, func(c domain.Cart) bool {
			return c.AnonymousID != nil && *c.AnonymousID == anonymousID
		})
		if !ok {
			return domain.ErrNotFound
		}
		out = ptr(copyCart(c))
		return nil
	})
	return out, err
}

func (r *cartRepo) LockActive(ctx context.Context, projectID string, owner domain.CartOwner) (*domain.Cart, error) {
	if owner.CustomerID != "" {
		c, err := r.GetActiveByCustomer(ctx, projectID, owner.CustomerID)
		if err == nil || owner.AnonymousID == "" {
			return c, err
		}
	}
	if owner.AnonymousID == "" {
		return nil, domain.ErrNotFound
	}
	return r.GetActiveByAnonymous(ctx, projectID, owner.AnonymousID)
}

func (r *cartRepo) AssignCustomerToAnonymous(_ context.Context, projectID, anonymousID, customerID string) (*domain.Cart, error) {
	var out *domain.Cart
	err := r.b.run(func(st *state) error {
		c, ok := newestActive(st, projectID, func(c domain.Cart) bool {
			return c.AnonymousID != nil && *c.AnonymousID == anonymousID
		})
		if !ok {
			return domain.ErrNotFound
		}
		c.CustomerID = ptr(customerID)
		c.AnonymousID = nil
		c.UpdatedAt = r.b.now()
		st.carts[c.ID] = c
		out = ptr(copyCart(c))
		return nil
	})
	return out, err
}

func (r *cartRepo) AddLineItem(_ context.Context, cartID string, line cart.NewLine) error {
	return r.b.run(func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok {
			return domain.ErrNotFound
		}
		c = copyCart(c)
		found := false
		for i, l := range c.Lines {
			if l.VariantID != line.VariantID {
				continue
			}
			unit := line.UnitPriceCents
			if l.UnitPriceCents != nil {
				unit = *l.UnitPriceCents
			}
			l.Quantity += line.Quantity
			l.TotalCents = ptr(unit * int64(l.Quantity))
			c.Lines[i] = l
			found = true
			break
		}
		if !found {
			snapshot := line.Snapshot
			if snapshot == nil {
				snapshot = map[string]interface{}{}
			}
			c.Lines = append(c.Lines, domain.CartLine{
				ID:             uuid.NewString(),
				CartID:         cartID,
				VariantID:      line.VariantID,
				Quantity:       line.Quantity,
				UnitPriceCents: ptr(line.UnitPriceCents),
				TotalCents:     ptr(line.UnitPriceCents * int64(line.Quantity)),
				Snapshot:       snapshot,
				CreatedAt:      r.b.now(),
			})
		}
		st.carts[cartID] = r.withTotals(c)
		return nil
	})
}

func (r *cartRepo) ChangeLineItemQuantity(_ context.Context, cartID, lineItemID string, quantity int) error {
	return r.b.run(func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok {
			return domain.ErrNotFound
		}
		c = copyCart(c)
		idx := -1
		for i, l := range c.Lines {
			if l.ID == lineItemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.ErrNotFound
		}
		if quantity <= 0 {
			c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
		} else {
			l := c.Lines[idx]
			l.Quantity = quantity
			if l.UnitPriceCents != nil {
				l.TotalCents = ptr(*l.UnitPriceCents * int64(quantity))
			}
			c.Lines[idx] = l
		}
		st.carts[cartID] = r.withTotals(c)
		return nil
	})
}

func (r *cartRepo) SetAdjustments(_ context.Context, cartID string, adj cart.Adjustments) error {
	return r.b.run(func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok || c.State != domain.CartStateActive {
			return domain.ErrNotFound
		}
		c = copyCart(c)
		c.Totals.DiscountCents = ptr(adj.DiscountCents)
		c.Totals.TaxCents = ptr(adj.TaxCents)
		c.Totals.ShippingCents = ptr(adj.ShippingCents)
		st.carts[cartID] = r.withTotals(c)
		return nil
	})
}

func (r *cartRepo) MarkConverted(_ context.Context, cartID, shippingAddressID string, billingAddressID *string) error {
	return r.b.run(func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok || c.State != domain.CartStateActive {
			return domain.ErrCartNotActive
		}
		now := r.b.now()
		c.State = domain.CartStateConverted
		c.ShippingAddressID = ptr(shippingAddressID)
		c.BillingAddressID = billingAddressID
		c.ConvertedAt = ptr(now)
		c.UpdatedAt = now
		st.carts[cartID] = c
		return nil
	})
}

func (r *cartRepo) withTotals(c domain.Cart) domain.Cart {
	var sub int64
	for _, l := range c.Lines {
		if l.TotalCents != nil {
			sub += *l.TotalCents
		}
	}
	total := sub - deref(c.Totals.DiscountCents) + deref(c.Totals.TaxCents) + deref(c.Totals.ShippingCents)
	c.Totals.SubtotalCents = ptr(sub)
	c.Totals.TotalCents = ptr(total)
	c.UpdatedAt = r.b.now()
	return c
}

func newestActive(st *state, projectID string, match func(domain.Cart) bool) (domain.Cart, bool) {
	var found []domain.Cart
	for _, c := range st.carts {
		if c.ProjectID == projectID && c.State == domain.CartStateActive && match(c) {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		return domain.Cart{}, false
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	return found[0], true
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
