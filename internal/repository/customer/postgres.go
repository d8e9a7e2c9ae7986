package customer

import (
	"context"
	"errors"
	"strings"

	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const customerColumns = `id::text, project_id::text, email, phone, name, is_guest, default_address_id::text, created_at`

type postgresRepo struct {
	q      db.Querier
	logger *zap.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(q db.Querier, logger *zap.Logger) Repository {
	return &postgresRepo{q: q, logger: logging.OrNop(logger)}
}

func (r *postgresRepo) Create(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	var email *string
	if c.Email != nil && *c.Email != "" {
		lower := strings.ToLower(*c.Email)
		email = &lower
	}
	const q = `
INSERT INTO customers (project_id, email, phone, name, is_guest)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + customerColumns
	return r.scanCustomer(r.q.QueryRow(ctx, q, c.ProjectID, email, c.Phone, c.Name, c.IsGuest))
}

func (r *postgresRepo) GetByEmail(ctx context.Context, projectID, email string) (*domain.Customer, error) {
	const q = `
SELECT ` + customerColumns + `
FROM customers
WHERE project_id = $1 AND lower(email) = lower($2)
LIMIT 1
`
	return r.scanCustomer(r.q.QueryRow(ctx, q, projectID, email))
}

func (r *postgresRepo) GetByPhone(ctx context.Context, projectID, phone string) (*domain.Customer, error) {
	// Registered accounts win over guest rows sharing the number.
	const q = `
SELECT ` + customerColumns + `
FROM customers
WHERE project_id = $1 AND phone = $2
ORDER BY is_guest ASC, created_at ASC
LIMIT 1
`
	return r.scanCustomer(r.q.QueryRow(ctx, q, projectID, phone))
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Customer, error) {
	const q = `
SELECT ` + customerColumns + `
FROM customers
WHERE project_id = $1 AND id = $2
LIMIT 1
`
	return r.scanCustomer(r.q.QueryRow(ctx, q, projectID, id))
}

func (r *postgresRepo) SetDefaultAddress(ctx context.Context, customerID string, addressID *string) error {
	cmd, err := r.q.Exec(ctx, `UPDATE customers SET default_address_id = $2 WHERE id = $1`, customerID, addressID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&c.Email,
		&c.Phone,
		&c.Name,
		&c.IsGuest,
		&c.DefaultAddressID,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("customer repo: scan", zap.Error(err))
		return nil, err
	}
	return &c, nil
}
