package product

import (
	"context"
	"errors"
	"fmt"

	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const variantColumns = `v.id::text, v.project_id::text, v.product_id::text, v.sku, v.name, v.price_cents, p.price_cents, p.currency,
       v.backorder_allowed, v.available_stock, v.imported_available, v.on_hand, v.reserved, v.external_stock, v.initial_stock, v.created_at`

// variantAvailableExpr mirrors the variant-level stock strategies so a
// decrement can be re-validated in the same statement that applies it.
const variantAvailableExpr = `COALESCE(
    GREATEST(available_stock, imported_available),
    on_hand - COALESCE(reserved, 0),
    COALESCE(external_stock, initial_stock) - COALESCE(reserved, 0)
)`

type postgresRepo struct {
	q      db.Querier
	logger *zap.Logger
}

func NewPostgres(q db.Querier, logger *zap.Logger) Repository {
	return &postgresRepo{q: q, logger: logging.OrNop(logger)}
}

func (r *postgresRepo) ListByProject(ctx context.Context, projectID string) ([]domain.Product, error) {
	const q = `
SELECT id::text, project_id::text, key, name, COALESCE(description, ''), price_cents, currency, attributes, created_at
FROM products
WHERE project_id = $1
ORDER BY created_at DESC
`
	rows, err := r.q.Query(ctx, q, projectID)
	if err != nil {
		r.logger.Error("product repo: list", zap.String("project_id", projectID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Key, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Attributes, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.logger.Debug("product repo: list", zap.String("project_id", projectID), zap.Int("count", len(result)))
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Product, error) {
	const q = `
SELECT id::text, project_id::text, key, name, COALESCE(description, ''), price_cents, currency, attributes, created_at
FROM products
WHERE project_id = $1 AND id = $2
`
	var p domain.Product
	err := r.q.QueryRow(ctx, q, projectID, id).Scan(&p.ID, &p.ProjectID, &p.Key, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Attributes, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("product repo: get", zap.String("project_id", projectID), zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (id, project_id, key, name, description, price_cents, currency, attributes)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, NULLIF($5, ''), $6, $7, COALESCE($8, '{}'::jsonb))
ON CONFLICT (project_id, key) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price_cents = EXCLUDED.price_cents,
    currency = EXCLUDED.currency,
    attributes = EXCLUDED.attributes
RETURNING id::text, created_at
`
	res := product
	err := r.q.QueryRow(ctx, q,
		product.ID,
		product.ProjectID,
		product.Key,
		product.Name,
		product.Description,
		product.PriceCents,
		product.Currency,
		product.Attributes,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		r.logger.Error("product repo: upsert", zap.String("key", product.Key), zap.String("project_id", product.ProjectID), zap.Error(err))
		return nil, err
	}
	if product.ID != "" && res.ID != product.ID {
		return nil, fmt.Errorf("product repo: id mismatch for key=%s project_id=%s existing_id=%s import_id=%s", product.Key, product.ProjectID, res.ID, product.ID)
	}
	r.logger.Debug("product repo: upserted", zap.String("key", res.Key), zap.String("id", res.ID))
	return &res, nil
}

func (r *postgresRepo) GetVariant(ctx context.Context, projectID, id string) (*domain.Variant, error) {
	q := `
SELECT ` + variantColumns + `
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.project_id = $1 AND v.id = $2
`
	v, err := scanVariant(r.q.QueryRow(ctx, q, projectID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *postgresRepo) GetVariantBySKU(ctx context.Context, projectID, sku string) (*domain.Variant, error) {
	q := `
SELECT ` + variantColumns + `
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.project_id = $1 AND v.sku = $2
`
	v, err := scanVariant(r.q.QueryRow(ctx, q, projectID, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *postgresRepo) UpsertVariant(ctx context.Context, v domain.Variant) (*domain.Variant, error) {
	const q = `
INSERT INTO product_variants (
    project_id, product_id, sku, name, price_cents, backorder_allowed,
    available_stock, imported_available, on_hand, reserved, external_stock, initial_stock
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (project_id, sku) DO UPDATE SET
    product_id = EXCLUDED.product_id,
    name = EXCLUDED.name,
    price_cents = EXCLUDED.price_cents,
    backorder_allowed = EXCLUDED.backorder_allowed,
    available_stock = EXCLUDED.available_stock,
    imported_available = EXCLUDED.imported_available,
    on_hand = EXCLUDED.on_hand,
    reserved = EXCLUDED.reserved,
    external_stock = EXCLUDED.external_stock,
    initial_stock = EXCLUDED.initial_stock,
    updated_at = now()
RETURNING id::text, created_at
`
	res := v
	err := r.q.QueryRow(ctx, q,
		v.ProjectID, v.ProductID, v.SKU, v.Name, v.PriceCents, v.BackorderAllowed,
		v.AvailableStock, v.ImportedAvailable, v.OnHand, v.Reserved, v.ExternalStock, v.InitialStock,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		r.logger.Error("product repo: upsert variant", zap.String("sku", v.SKU), zap.Error(err))
		return nil, err
	}
	return &res, nil
}

func (r *postgresRepo) UpsertInventory(ctx context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error) {
	const q = `
INSERT INTO inventory_records (variant_id, location, on_hand, reserved, safety_stock)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (variant_id, location) DO UPDATE SET
    on_hand = EXCLUDED.on_hand,
    reserved = EXCLUDED.reserved,
    safety_stock = EXCLUDED.safety_stock,
    updated_at = now()
RETURNING id::text, created_at
`
	res := rec
	if err := r.q.QueryRow(ctx, q, rec.VariantID, rec.Location, rec.OnHand, rec.Reserved, rec.SafetyStock).Scan(&res.ID, &res.CreatedAt); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *postgresRepo) ListInventory(ctx context.Context, variantID string) ([]domain.InventoryRecord, error) {
	const q = `
SELECT id::text, variant_id::text, location, on_hand, reserved, safety_stock, created_at
FROM inventory_records
WHERE variant_id = $1
ORDER BY created_at ASC, id ASC
`
	rows, err := r.q.Query(ctx, q, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.InventoryRecord
	for rows.Next() {
		rec, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *postgresRepo) LockVariants(ctx context.Context, projectID string, ids []string) ([]domain.Variant, error) {
	q := `
SELECT ` + variantColumns + `
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.project_id = $1 AND v.id = ANY($2::uuid[])
ORDER BY v.id
FOR UPDATE OF v
`
	rows, err := r.q.Query(ctx, q, projectID, ids)
	if err != nil {
		r.logger.Error("product repo: lock variants", zap.Strings("ids", ids), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *postgresRepo) LockInventory(ctx context.Context, variantIDs []string) (map[string][]domain.InventoryRecord, error) {
	const q = `
SELECT id::text, variant_id::text, location, on_hand, reserved, safety_stock, created_at
FROM inventory_records
WHERE variant_id = ANY($1::uuid[])
ORDER BY variant_id, created_at ASC, id ASC
FOR UPDATE
`
	rows, err := r.q.Query(ctx, q, variantIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.InventoryRecord, len(variantIDs))
	for rows.Next() {
		rec, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out[rec.VariantID] = append(out[rec.VariantID], rec)
	}
	return out, rows.Err()
}

func (r *postgresRepo) DecrementInventoryRecord(ctx context.Context, recordID string, qty int, allowNegative bool) error {
	cmd, err := r.q.Exec(ctx, `
UPDATE inventory_records
SET on_hand = on_hand - $2,
    reserved = GREATEST(reserved - $2, 0),
    updated_at = now()
WHERE id = $1 AND ($3 OR on_hand >= $2)
`, recordID, qty, allowNegative)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		r.logger.Info("product repo: inventory decrement rejected", zap.String("record_id", recordID), zap.Int("qty", qty))
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *postgresRepo) RefreshVariantAvailable(ctx context.Context, variantID string) error {
	// Records are authoritative once they exist, so the imported figure is
	// cleared to keep it from masking the recomputed counter.
	_, err := r.q.Exec(ctx, `
UPDATE product_variants
SET available_stock = (
        SELECT COALESCE(SUM(GREATEST(on_hand - reserved - safety_stock, 0)), 0)
        FROM inventory_records
        WHERE variant_id = $1
    ),
    imported_available = NULL,
    updated_at = now()
WHERE id = $1
`, variantID)
	return err
}

func (r *postgresRepo) DecrementVariantStock(ctx context.Context, variantID string, qty int, allowNegative bool) error {
	cmd, err := r.q.Exec(ctx, `
UPDATE product_variants
SET available_stock = `+variantAvailableExpr+` - $2,
    imported_available = NULL,
    on_hand = on_hand - $2,
    updated_at = now()
WHERE id = $1 AND ($3 OR `+variantAvailableExpr+` >= $2)
`, variantID, qty, allowNegative)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		r.logger.Info("product repo: variant decrement rejected", zap.String("variant_id", variantID), zap.Int("qty", qty))
		return domain.ErrInsufficientStock
	}
	return nil
}

func scanVariant(row pgx.Row) (*domain.Variant, error) {
	var v domain.Variant
	err := row.Scan(
		&v.ID,
		&v.ProjectID,
		&v.ProductID,
		&v.SKU,
		&v.Name,
		&v.PriceCents,
		&v.ProductPriceCents,
		&v.Currency,
		&v.BackorderAllowed,
		&v.AvailableStock,
		&v.ImportedAvailable,
		&v.OnHand,
		&v.Reserved,
		&v.ExternalStock,
		&v.InitialStock,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanInventory(row pgx.Row) (domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := row.Scan(&rec.ID, &rec.VariantID, &rec.Location, &rec.OnHand, &rec.Reserved, &rec.SafetyStock, &rec.CreatedAt)
	return rec, err
}
