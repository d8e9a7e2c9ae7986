package cart

import (
	"context"
	"errors"

	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const cartColumns = `id::text, project_id::text, customer_id::text, anonymous_id, currency, state,
       subtotal_cents, discount_cents, tax_cents, shipping_cents, total_cents,
       shipping_address_id::text, billing_address_id::text, created_at, updated_at, converted_at`

type postgresRepo struct {
	q      db.Querier
	logger *zap.Logger
}

func NewPostgres(q db.Querier, logger *zap.Logger) Repository {
	return &postgresRepo{q: q, logger: logging.OrNop(logger)}
}

func (r *postgresRepo) Create(ctx context.Context, in CreateCartInput) (*domain.Cart, error) {
	const q = `
INSERT INTO carts (project_id, customer_id, anonymous_id, currency, state)
VALUES ($1, $2, $3, $4, 'active')
RETURNING ` + cartColumns
	cart, err := scanCart(r.q.QueryRow(ctx, q, in.ProjectID, in.CustomerID, in.AnonymousID, in.Currency))
	if err != nil {
		r.logger.Error("cart repo: create", zap.String("project_id", in.ProjectID), zap.Error(err))
		return nil, err
	}
	return cart, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error) {
	q := `
SELECT ` + cartColumns + `
FROM carts
WHERE project_id = $1 AND id = $2
`
	return r.fetchCart(ctx, q, projectID, id)
}

func (r *postgresRepo) GetActiveByCustomer(ctx context.Context, projectID, customerID string) (*domain.Cart, error) {
	q := `
SELECT ` + cartColumns + `
FROM carts
WHERE project_id = $1 AND customer_id = $2 AND state = 'active'
ORDER BY created_at DESC
LIMIT 1
`
	return r.fetchCart(ctx, q, projectID, customerID)
}

func (r *postgresRepo) GetActiveByAnonymous(ctx context.Context, projectID, anonymousID string) (*domain.Cart, error) {
	q := `
SELECT ` + cartColumns + `
FROM carts
WHERE project_id = $1 AND anonymous_id = $2 AND state = 'active'
ORDER BY created_at DESC
LIMIT 1
`
	return r.fetchCart(ctx, q, projectID, anonymousID)
}

func (r *postgresRepo) LockActive(ctx context.Context, projectID string, owner domain.CartOwner) (*domain.Cart, error) {
	if owner.CustomerID != "" {
		q := `
SELECT ` + cartColumns + `
FROM carts
WHERE project_id = $1 AND customer_id = $2 AND state = 'active'
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE
`
		cart, err := r.fetchCart(ctx, q, projectID, owner.CustomerID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) || owner.AnonymousID == "" {
			return cart, err
		}
	}
	if owner.AnonymousID == "" {
		return nil, domain.ErrNotFound
	}
	q := `
SELECT ` + cartColumns + `
FROM carts
WHERE project_id = $1 AND anonymous_id = $2 AND state = 'active'
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE
`
	return r.fetchCart(ctx, q, projectID, owner.AnonymousID)
}

func (r *postgresRepo) AssignCustomerToAnonymous(ctx context.Context, projectID, anonymousID, customerID string) (*domain.Cart, error) {
	const q = `
UPDATE carts
SET customer_id = $1,
    anonymous_id = NULL,
    updated_at = now()
WHERE project_id = $2 AND anonymous_id = $3 AND state = 'active'
RETURNING id::text
`
	var cartID string
	if err := r.q.QueryRow(ctx, q, customerID, projectID, anonymousID).Scan(&cartID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return r.GetByID(ctx, projectID, cartID)
}

func (r *postgresRepo) AddLineItem(ctx context.Context, cartID string, line NewLine) error {
	var lineID string
	var existingQty int
	var unitPrice int64
	err := r.q.QueryRow(ctx, `
SELECT id::text, quantity, COALESCE(unit_price_cents, $3)
FROM cart_lines
WHERE cart_id = $1 AND variant_id = $2
FOR UPDATE
`, cartID, line.VariantID, line.UnitPriceCents).Scan(&lineID, &existingQty, &unitPrice)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if err == nil {
		newQty := existingQty + line.Quantity
		if _, err := r.q.Exec(ctx, `
UPDATE cart_lines
SET quantity = $1, total_cents = $2
WHERE id = $3
`, newQty, unitPrice*int64(newQty), lineID); err != nil {
			return err
		}
	} else {
		snapshot := line.Snapshot
		if snapshot == nil {
			snapshot = map[string]interface{}{}
		}
		if _, err := r.q.Exec(ctx, `
INSERT INTO cart_lines (cart_id, variant_id, quantity, unit_price_cents, total_cents, snapshot)
VALUES ($1, $2, $3, $4, $5, $6)
`, cartID, line.VariantID, line.Quantity, line.UnitPriceCents, line.UnitPriceCents*int64(line.Quantity), snapshot); err != nil {
			return err
		}
	}

	return r.updateCartTotals(ctx, cartID)
}

func (r *postgresRepo) ChangeLineItemQuantity(ctx context.Context, cartID, lineItemID string, quantity int) error {
	if quantity <= 0 {
		cmd, err := r.q.Exec(ctx, `
DELETE FROM cart_lines
WHERE id = $1 AND cart_id = $2
`, lineItemID, cartID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
	} else {
		cmd, err := r.q.Exec(ctx, `
UPDATE cart_lines
SET quantity = $1,
    total_cents = unit_price_cents * $1
WHERE id = $2 AND cart_id = $3
`, quantity, lineItemID, cartID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
	}

	return r.updateCartTotals(ctx, cartID)
}

func (r *postgresRepo) SetAdjustments(ctx context.Context, cartID string, adj Adjustments) error {
	cmd, err := r.q.Exec(ctx, `
UPDATE carts
SET discount_cents = $2,
    tax_cents = $3,
    shipping_cents = $4
WHERE id = $1 AND state = 'active'
`, cartID, adj.DiscountCents, adj.TaxCents, adj.ShippingCents)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return r.updateCartTotals(ctx, cartID)
}

func (r *postgresRepo) MarkConverted(ctx context.Context, cartID, shippingAddressID string, billingAddressID *string) error {
	cmd, err := r.q.Exec(ctx, `
UPDATE carts
SET state = 'converted',
    shipping_address_id = $2,
    billing_address_id = $3,
    converted_at = now(),
    updated_at = now()
WHERE id = $1 AND state = 'active'
`, cartID, shippingAddressID, billingAddressID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		r.logger.Warn("cart repo: convert on inactive cart", zap.String("cart_id", cartID))
		return domain.ErrCartNotActive
	}
	return nil
}

func (r *postgresRepo) fetchCart(ctx context.Context, cartQuery string, args ...interface{}) (*domain.Cart, error) {
	cart, err := scanCart(r.q.QueryRow(ctx, cartQuery, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	const linesQuery = `
SELECT id::text, cart_id::text, variant_id::text, quantity, unit_price_cents, total_cents, snapshot, created_at
FROM cart_lines
WHERE cart_id = $1
ORDER BY created_at ASC, id ASC
`
	rows, err := r.q.Query(ctx, linesQuery, cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(
			&line.ID,
			&line.CartID,
			&line.VariantID,
			&line.Quantity,
			&line.UnitPriceCents,
			&line.TotalCents,
			&line.Snapshot,
			&line.CreatedAt,
		); err != nil {
			return nil, err
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

// updateCartTotals keeps subtotal in line with the lines and derives the
// grand total from the adjustments already stored on the cart.
func (r *postgresRepo) updateCartTotals(ctx context.Context, cartID string) error {
	_, err := r.q.Exec(ctx, `
WITH sums AS (
	SELECT COALESCE(SUM(total_cents), 0) AS subtotal
	FROM cart_lines
	WHERE cart_id = $1
)
UPDATE carts
SET subtotal_cents = sums.subtotal,
    total_cents = sums.subtotal - COALESCE(discount_cents, 0) + COALESCE(tax_cents, 0) + COALESCE(shipping_cents, 0),
    updated_at = now()
FROM sums
WHERE id = $1
`, cartID)
	return err
}

func scanCart(row pgx.Row) (*domain.Cart, error) {
	var cart domain.Cart
	err := row.Scan(
		&cart.ID,
		&cart.ProjectID,
		&cart.CustomerID,
		&cart.AnonymousID,
		&cart.Currency,
		&cart.State,
		&cart.Totals.SubtotalCents,
		&cart.Totals.DiscountCents,
		&cart.Totals.TaxCents,
		&cart.Totals.ShippingCents,
		&cart.Totals.TotalCents,
		&cart.ShippingAddressID,
		&cart.BillingAddressID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
		&cart.ConvertedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}
