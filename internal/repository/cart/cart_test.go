package cart

import (
	"context"
	"errors"
	"os"
	"testing"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/migrate"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPostgres_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pool := testPool(ctx, t)
	projectID := resetTables(ctx, t, pool)

	anon := "anon-1"
	repo := NewPostgres(pool, nil)
	created, err := repo.Create(ctx, CreateCartInput{
		ProjectID:   projectID,
		AnonymousID: &anon,
		Currency:    "BDT",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ProjectID != projectID || created.Currency != "BDT" || created.State != domain.CartStateActive {
		t.Fatalf("unexpected cart %+v", created)
	}

	fetched, err := repo.GetActiveByAnonymous(ctx, projectID, anon)
	if err != nil {
		t.Fatalf("GetActiveByAnonymous: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("fetched mismatch %+v", fetched)
	}
	if _, err := repo.GetByID(ctx, projectID, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgres_LinesAndTotals(t *testing.T) {
	ctx := context.Background()
	pool := testPool(ctx, t)
	projectID := resetTables(ctx, t, pool)
	variantID := insertVariant(ctx, t, pool, projectID)

	customer := insertCustomer(ctx, t, pool, projectID)
	repo := NewPostgres(pool, nil)
	c, err := repo.Create(ctx, CreateCartInput{ProjectID: projectID, CustomerID: &customer, Currency: "BDT"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.AddLineItem(ctx, c.ID, NewLine{VariantID: variantID, Quantity: 2, UnitPriceCents: 500}); err != nil {
		t.Fatalf("AddLineItem: %v", err)
	}
	if err := repo.SetAdjustments(ctx, c.ID, Adjustments{DiscountCents: 100, ShippingCents: 60}); err != nil {
		t.Fatalf("SetAdjustments: %v", err)
	}

	got, err := repo.LockActive(ctx, projectID, domain.CartOwner{CustomerID: customer})
	if err != nil {
		t.Fatalf("LockActive: %v", err)
	}
	if len(got.Lines) != 1 || *got.Lines[0].UnitPriceCents != 500 || *got.Lines[0].TotalCents != 1000 {
		t.Fatalf("unexpected lines %+v", got.Lines)
	}
	if got.Totals.SubtotalCents == nil || *got.Totals.SubtotalCents != 1000 || *got.Totals.TotalCents != 960 {
		t.Fatalf("unexpected totals %+v", got.Totals)
	}

	if err := repo.ChangeLineItemQuantity(ctx, c.ID, got.Lines[0].ID, 0); err != nil {
		t.Fatalf("ChangeLineItemQuantity: %v", err)
	}
	got, err = repo.GetByID(ctx, projectID, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Lines) != 0 {
		t.Fatalf("expected line removed, got %+v", got.Lines)
	}
}

func TestPostgres_MarkConvertedOnce(t *testing.T) {
	ctx := context.Background()
	pool := testPool(ctx, t)
	projectID := resetTables(ctx, t, pool)

	customerID := insertCustomer(ctx, t, pool, projectID)
	var addressID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO addresses (customer_id, type, name, phone, line1, city, country)
		VALUES ($1, 'SHIPPING', 'Guest', '+8801712345678', '12, 5', 'Dhanmondi', 'BD')
		RETURNING id::text`, customerID).Scan(&addressID); err != nil {
		t.Fatalf("insert address: %v", err)
	}

	anon := "anon-2"
	repo := NewPostgres(pool, nil)
	c, err := repo.Create(ctx, CreateCartInput{ProjectID: projectID, AnonymousID: &anon, Currency: "BDT"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.MarkConverted(ctx, c.ID, addressID, nil); err != nil {
		t.Fatalf("MarkConverted: %v", err)
	}
	if err := repo.MarkConverted(ctx, c.ID, addressID, nil); !errors.Is(err, domain.ErrCartNotActive) {
		t.Fatalf("expected ErrCartNotActive, got %v", err)
	}
	if _, err := repo.GetActiveByAnonymous(ctx, projectID, anon); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("converted cart must not be active, got %v", err)
	}
}

func testPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool
}

func resetTables(ctx context.Context, t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE cart_lines, carts, addresses, customers, product_variants, products, projects RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	var projectID string
	err := pool.QueryRow(ctx, `INSERT INTO projects (key, name) VALUES (gen_random_uuid()::text, 'Proj') RETURNING id::text`).Scan(&projectID)
	if err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return projectID
}

func insertVariant(ctx context.Context, t *testing.T, pool *pgxpool.Pool, projectID string) string {
	t.Helper()
	var productID, variantID string
	if err := pool.QueryRow(ctx, `INSERT INTO products (project_id, key, name, currency) VALUES ($1, 'tee', 'Tee', 'BDT') RETURNING id::text`, projectID).Scan(&productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO product_variants (project_id, product_id, sku, name) VALUES ($1, $2, 'TEE-M', 'Tee M') RETURNING id::text`, projectID, productID).Scan(&variantID); err != nil {
		t.Fatalf("insert variant: %v", err)
	}
	return variantID
}

func insertCustomer(ctx context.Context, t *testing.T, pool *pgxpool.Pool, projectID string) string {
	t.Helper()
	var id string
	if err := pool.QueryRow(ctx, `INSERT INTO customers (project_id, name, is_guest) VALUES ($1, 'Guest', true) RETURNING id::text`, projectID).Scan(&id); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	return id
}
