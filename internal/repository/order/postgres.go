package order

import (
	"context"
	"errors"

	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const orderColumns = `id::text, project_id::text, order_number, customer_id::text, cart_id::text, currency,
       status, payment_status, fulfillment_status, payment_method, notes,
       subtotal_cents, discount_cents, tax_cents, shipping_cents, total_cents,
       shipping_address_id::text, billing_address_id::text, is_guest, metadata, created_at`

type postgresRepo struct {
	q      db.Querier
	logger *zap.Logger
}

func NewPostgres(q db.Querier, logger *zap.Logger) Repository {
	return &postgresRepo{q: q, logger: logging.OrNop(logger)}
}

func (r *postgresRepo) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *postgresRepo) Create(ctx context.Context, o domain.Order) (*domain.Order, error) {
	const q = `
INSERT INTO orders (
    project_id, order_number, customer_id, cart_id, currency,
    status, payment_status, fulfillment_status, payment_method, notes,
    subtotal_cents, discount_cents, tax_cents, shipping_cents, total_cents,
    shipping_address_id, billing_address_id, is_guest, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING ` + orderColumns
	metadata := o.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	out, err := scanOrder(r.q.QueryRow(ctx, q,
		o.ProjectID, o.OrderNumber, o.CustomerID, o.CartID, o.Currency,
		o.Status, o.PaymentStatus, o.FulfillmentStatus, o.PaymentMethod, o.Notes,
		o.Totals.SubtotalCents, o.Totals.DiscountCents, o.Totals.TaxCents, o.Totals.ShippingCents, o.Totals.TotalCents,
		o.ShippingAddressID, o.BillingAddressID, o.IsGuest, metadata,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("order repo: create", zap.String("cart_id", o.CartID), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) CreateItems(ctx context.Context, orderID string, items []domain.OrderItem) ([]domain.OrderItem, error) {
	const q = `
INSERT INTO order_items (order_id, variant_id, product_id, sku, name, quantity, unit_price_cents, total_cents)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id::text, created_at
`
	out := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		it.OrderID = orderID
		if err := r.q.QueryRow(ctx, q,
			orderID, it.VariantID, it.ProductID, it.SKU, it.Name, it.Quantity, it.UnitPriceCents, it.TotalCents,
		).Scan(&it.ID, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *postgresRepo) AppendEvent(ctx context.Context, e domain.OrderEvent) (*domain.OrderEvent, error) {
	const q = `
INSERT INTO order_events (order_id, kind, actor_id, actor_type, message, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id::text, created_at
`
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	if err := r.q.QueryRow(ctx, q, e.OrderID, e.Kind, e.ActorID, e.ActorType, e.Message, e.Metadata).Scan(&e.ID, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Order, error) {
	q := `
SELECT ` + orderColumns + `
FROM orders
WHERE project_id = $1 AND id = $2
`
	o, err := scanOrder(r.q.QueryRow(ctx, q, projectID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.q.Query(ctx, `
SELECT id::text, order_id::text, variant_id::text, product_id::text, sku, name, quantity, unit_price_cents, total_cents, created_at
FROM order_items
WHERE order_id = $1
ORDER BY created_at ASC, id ASC
`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProductID, &it.SKU, &it.Name, &it.Quantity, &it.UnitPriceCents, &it.TotalCents, &it.CreatedAt); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *postgresRepo) ListEvents(ctx context.Context, orderID string) ([]domain.OrderEvent, error) {
	rows, err := r.q.Query(ctx, `
SELECT id::text, order_id::text, kind, actor_id, actor_type, message, metadata, created_at
FROM order_events
WHERE order_id = $1
ORDER BY created_at ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.OrderEvent
	for rows.Next() {
		var e domain.OrderEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Kind, &e.ActorID, &e.ActorType, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.ProjectID,
		&o.OrderNumber,
		&o.CustomerID,
		&o.CartID,
		&o.Currency,
		&o.Status,
		&o.PaymentStatus,
		&o.FulfillmentStatus,
		&o.PaymentMethod,
		&o.Notes,
		&o.Totals.SubtotalCents,
		&o.Totals.DiscountCents,
		&o.Totals.TaxCents,
		&o.Totals.ShippingCents,
		&o.Totals.TotalCents,
		&o.ShippingAddressID,
		&o.BillingAddressID,
		&o.IsGuest,
		&o.Metadata,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
