package address

import (
	"context"
	"errors"
	"time"

	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const addressColumns = `id::text, customer_id::text, type, name, phone, email, line1, line2, city, state, postal_code, country,
       is_default, archived_at, version, created_at, updated_at`

type postgresRepo struct {
	q      db.Querier
	logger *zap.Logger
}

func NewPostgres(q db.Querier, logger *zap.Logger) Repository {
	return &postgresRepo{q: q, logger: logging.OrNop(logger)}
}

func (r *postgresRepo) GetByID(ctx context.Context, customerID, id string) (*domain.Address, error) {
	const q = `
SELECT ` + addressColumns + `
FROM addresses
WHERE customer_id = $1 AND id = $2
FOR UPDATE
`
	return scanAddress(r.q.QueryRow(ctx, q, customerID, id))
}

func (r *postgresRepo) FindMatch(ctx context.Context, a domain.Address) (*domain.Address, error) {
	const q = `
SELECT ` + addressColumns + `
FROM addresses
WHERE customer_id = $1
  AND type = $2
  AND country = $3
  AND phone = $4
  AND lower(line1) = lower($5)
  AND lower(line2) = lower($6)
  AND lower(city) = lower($7)
  AND lower(state) = lower($8)
  AND lower(postal_code) = lower($9)
  AND archived_at IS NULL
ORDER BY updated_at DESC
LIMIT 1
FOR UPDATE
`
	return scanAddress(r.q.QueryRow(ctx, q,
		a.CustomerID, a.Type, a.Country, a.Phone, a.Line1, a.Line2, a.City, a.State, a.PostalCode))
}

func (r *postgresRepo) Create(ctx context.Context, a domain.Address) (*domain.Address, error) {
	const q = `
INSERT INTO addresses (customer_id, type, name, phone, email, line1, line2, city, state, postal_code, country, is_default)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + addressColumns
	out, err := scanAddress(r.q.QueryRow(ctx, q,
		a.CustomerID, a.Type, a.Name, a.Phone, a.Email, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.IsDefault))
	if err != nil {
		r.logger.Error("address repo: create", zap.String("customer_id", a.CustomerID), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) Touch(ctx context.Context, id, name, email string) (*domain.Address, error) {
	const q = `
UPDATE addresses
SET name = $2,
    email = $3,
    version = version + 1,
    updated_at = now()
WHERE id = $1
RETURNING ` + addressColumns
	return scanAddress(r.q.QueryRow(ctx, q, id, name, email))
}

func (r *postgresRepo) InsertVersion(ctx context.Context, a domain.Address) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO address_versions (address_id, version, snapshot)
VALUES ($1, $2, $3)
ON CONFLICT (address_id, version) DO NOTHING
`, a.ID, a.Version, a)
	return err
}

func (r *postgresRepo) ListVersions(ctx context.Context, addressID string) ([]domain.AddressVersion, error) {
	rows, err := r.q.Query(ctx, `
SELECT address_id::text, version, snapshot, created_at
FROM address_versions
WHERE address_id = $1
ORDER BY version ASC
`, addressID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AddressVersion
	for rows.Next() {
		var v domain.AddressVersion
		if err := rows.Scan(&v.AddressID, &v.Version, &v.Snapshot, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *postgresRepo) List(ctx context.Context, customerID string, typ domain.AddressType, includeArchived bool) ([]domain.Address, error) {
	const q = `
SELECT ` + addressColumns + `
FROM addresses
WHERE customer_id = $1
  AND ($2 = '' OR type = $2)
  AND ($3 OR archived_at IS NULL)
ORDER BY is_default DESC, updated_at DESC
`
	rows, err := r.q.Query(ctx, q, customerID, string(typ), includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *postgresRepo) GetDefault(ctx context.Context, customerID string, typ domain.AddressType) (*domain.Address, error) {
	const q = `
SELECT ` + addressColumns + `
FROM addresses
WHERE customer_id = $1 AND type = $2 AND is_default AND archived_at IS NULL
LIMIT 1
`
	return scanAddress(r.q.QueryRow(ctx, q, customerID, typ))
}

func (r *postgresRepo) ClearDefault(ctx context.Context, customerID string, typ domain.AddressType) error {
	_, err := r.q.Exec(ctx, `
UPDATE addresses
SET is_default = false
WHERE customer_id = $1 AND type = $2 AND is_default
`, customerID, typ)
	return err
}

func (r *postgresRepo) MarkDefault(ctx context.Context, id string) error {
	cmd, err := r.q.Exec(ctx, `
UPDATE addresses
SET is_default = true,
    updated_at = now()
WHERE id = $1 AND archived_at IS NULL
`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) SetArchived(ctx context.Context, id string, at *time.Time) (*domain.Address, error) {
	const q = `
UPDATE addresses
SET archived_at = $2,
    is_default = CASE WHEN $2::timestamptz IS NULL THEN is_default ELSE false END,
    updated_at = now()
WHERE id = $1
RETURNING ` + addressColumns
	return scanAddress(r.q.QueryRow(ctx, q, id, at))
}

func (r *postgresRepo) InUse(ctx context.Context, id string) (bool, error) {
	var used bool
	err := r.q.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM orders WHERE shipping_address_id = $1 OR billing_address_id = $1)
    OR EXISTS (SELECT 1 FROM carts WHERE shipping_address_id = $1 OR billing_address_id = $1)
`, id).Scan(&used)
	return used, err
}

func (r *postgresRepo) Delete(ctx context.Context, customerID, id string) error {
	cmd, err := r.q.Exec(ctx, `DELETE FROM addresses WHERE customer_id = $1 AND id = $2`, customerID, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return domain.ErrInUse
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) LatestActive(ctx context.Context, customerID string, typ domain.AddressType) (*domain.Address, error) {
	const q = `
SELECT ` + addressColumns + `
FROM addresses
WHERE customer_id = $1 AND type = $2 AND archived_at IS NULL
ORDER BY updated_at DESC, created_at DESC
LIMIT 1
`
	return scanAddress(r.q.QueryRow(ctx, q, customerID, typ))
}

func scanAddress(row pgx.Row) (*domain.Address, error) {
	var a domain.Address
	err := row.Scan(
		&a.ID,
		&a.CustomerID,
		&a.Type,
		&a.Name,
		&a.Phone,
		&a.Email,
		&a.Line1,
		&a.Line2,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.IsDefault,
		&a.ArchivedAt,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
