package memstore

import (
	"context"
	"sort"

	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
)

type orderRepo struct{ b *binding }

func (r *orderRepo) NextNumber(_ context.Context) (int64, error) {
	var n int64
	err := r.b.run(func(st *state) error {
		st.seq++
		n = st.seq
		return nil
	})
	return n, err
}

func (r *orderRepo) Create(_ context.Context, o domain.Order) (*domain.Order, error) {
	var out *domain.Order
	err := r.b.run(func(st *state) error {
		for _, existing := range st.orders {
			if existing.OrderNumber == o.OrderNumber || existing.CartID == o.CartID {
				return domain.ErrAlreadyExists
			}
		}
		if o.Metadata == nil {
			o.Metadata = map[string]interface{}{}
		}
		o.ID = uuid.NewString()
		o.Items = nil
		o.CreatedAt = r.b.now()
		st.orders[o.ID] = o
		out = ptr(copyOrder(o))
		return nil
	})
	return out, err
}

func (r *orderRepo) CreateItems(_ context.Context, orderID string, items []domain.OrderItem) ([]domain.OrderItem, error) {
	var out []domain.OrderItem
	err := r.b.run(func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return domain.ErrNotFound
		}
		o = copyOrder(o)
		for _, it := range items {
			it.ID = uuid.NewString()
			it.OrderID = orderID
			it.CreatedAt = r.b.now()
			o.Items = append(o.Items, it)
			out = append(out, it)
		}
		st.orders[orderID] = o
		return nil
	})
	return out, err
}

func (r *orderRepo) AppendEvent(_ context.Context, e domain.OrderEvent) (*domain.OrderEvent, error) {
	var out *domain.OrderEvent
	err := r.b.run(func(st *state) error {
		if _, ok := st.orders[e.OrderID]; !ok {
			return domain.ErrNotFound
		}
		if e.Metadata == nil {
			e.Metadata = map[string]interface{}{}
		}
		e.ID = uuid.NewString()
		e.CreatedAt = r.b.now()
		st.events = append(st.events, e)
		out = ptr(e)
		return nil
	})
	return out, err
}

func (r *orderRepo) GetByID(_ context.Context, projectID, id string) (*domain.Order, error) {
	var out *domain.Order
	err := r.b.run(func(st *state) error {
		o, ok := st.orders[id]
		if !ok || o.ProjectID != projectID {
			return domain.ErrNotFound
		}
		out = ptr(copyOrder(o))
		return nil
	})
	return out, err
}

func (r *orderRepo) ListEvents(_ context.Context, orderID string) ([]domain.OrderEvent, error) {
	var out []domain.OrderEvent
	err := r.b.run(func(st *state) error {
		for _, e := range st.events {
			if e.OrderID == orderID {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}
