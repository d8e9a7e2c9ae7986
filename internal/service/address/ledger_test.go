package address

import (
	"context"
	"testing"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/storage"
	"storefront-checkout/internal/storage/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerFixture(t *testing.T) (*memstore.Store, *Service, string) {
	t.Helper()
	store := memstore.New()
	c, err := store.Repos().Customers.Create(context.Background(), domain.Customer{ProjectID: "p1", Name: "Rahim"})
	require.NoError(t, err)
	svc := NewService(store, NewLedger(nil), NewNormalizer("BD"))
	return store, svc, c.ID
}

func dhakaInput() Input {
	return Input{
		"name":     "Rahim",
		"mobile":   "01712345678",
		"street":   "House 7, Road 2",
		"city":     "Dhaka",
		"district": "Dhaka",
		"zip":      "1209",
	}
}

func defaultPointer(t *testing.T, store *memstore.Store, customerID string) *string {
	t.Helper()
	c, err := store.Repos().Customers.GetByID(context.Background(), "p1", customerID)
	require.NoError(t, err)
	return c.DefaultAddressID
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, svc, owner := newLedgerFixture(t)

	first, err := svc.Save(ctx, owner, domain.AddressShipping, dhakaInput())
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	assert.Equal(t, 1, first.Version)

	again := dhakaInput()
	again["city"] = "DHAKA"
	second, err := svc.Save(ctx, owner, domain.AddressShipping, again)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 1, store.CountAddresses(owner))

	versions, err := svc.Versions(ctx, owner, first.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "Dhaka", versions[0].Snapshot.City)

	ptr := defaultPointer(t, store, owner)
	require.NotNil(t, ptr)
	assert.Equal(t, first.ID, *ptr)
}

func TestSecondAddressIsNotDefault(t *testing.T) {
	ctx := context.Background()
	store, svc, owner := newLedgerFixture(t)

	first, err := svc.Save(ctx, owner, domain.AddressShipping, dhakaInput())
	require.NoError(t, err)
	other := dhakaInput()
	other["street"] = "House 9, Road 4"
	second, err := svc.Save(ctx, owner, domain.AddressShipping, other)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, second.IsDefault)
	assert.Equal(t, 2, store.CountAddresses(owner))
}

func TestArchiveOnlyDefaultClearsPointer(t *testing.T) {
	ctx := context.Background()
	store, svc, owner := newLedgerFixture(t)

	a, err := svc.Save(ctx, owner, domain.AddressShipping, dhakaInput())
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, archived.ArchivedAt)
	assert.False(t, archived.IsDefault)
	assert.Nil(t, defaultPointer(t, store, owner))

	active, err := svc.List(ctx, owner, domain.AddressShipping, false)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestArchiveDefaultPromotesLatest(t *testing.T) {
	ctx := context.Background()
	store, svc, owner := newLedgerFixture(t)

	first, err := svc.Save(ctx, owner, domain.AddressShipping, dhakaInput())
	require.NoError(t, err)
	var lastID string
	for _, street := range []string{"House 1", "House 2"} {
		in := dhakaInput()
		in["street"] = street
		a, err := svc.Save(ctx, owner, domain.AddressShipping, in)
		require.NoError(t, err)
		lastID = a.ID
	}

	_, err = svc.Archive(ctx, owner, first.ID)
	require.NoError(t, err)

	list, err := svc.List(ctx, owner, domain.AddressShipping, false)
	require.NoError(t, err)
	defaults := 0
	for _, a := range list {
		if a.IsDefault {
			defaults++
			assert.Equal(t, lastID, a.ID)
		}
	}
	assert.Equal(t, 1, defaults)
	ptr := defaultPointer(t, store, owner)
	require.NotNil(t, ptr)
	assert.Equal(t, lastID, *ptr)
}

func TestSetDefaultAndBillingLeavesPointer(t *testing.T) {
	ctx := context.Background()
	store, svc, owner := newLedgerFixture(t)

	ship, err := svc.Save(ctx, owner, domain.AddressShipping, dhakaInput())
	require.NoError(t, err)
	in := dhakaInput()
	in["street"] = "Office"
	office, err := svc.Save(ctx, owner, domain.AddressShipping, in)
	require.NoError(t, err)

	_, err = svc.SetDefault(ctx, owner, office.ID)
	require.NoError(t, err)
	assert.Equal(t, office.ID, *defaultPointer(t, store, owner))

	list, err := svc.List(ctx, owner, domain.AddressShipping, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, office.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault)

	bill, err := svc.Save(ctx, owner, domain.AddressBilling, dhakaInput())
	require.NoError(t, err)
	assert.True(t, bill.IsDefault)
	assert.Equal(t, office.ID, *defaultPointer(t, store, owner))
	assert.NotEqual(t, ship.ID, bill.ID)
}

func TestRestorePromotesWhenNoDefault(t *testing.T) {
	ctx := context.Background()
	store, svc, owner := newLedgerFixture(t)

	a, err := svc.Save(ctx, owner, domain.AddressShipping, dhakaInput())
	require.NoError(t, err)
	_, err = svc.Archive(ctx, owner, a.ID)
	require.NoError(t, err)

	_, err = svc.SetDefault(ctx, owner, a.ID)
	assert.ErrorIs(t, err, ErrArchived)

	restored, err := svc.Restore(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.ArchivedAt)
	assert.True(t, restored.IsDefault)
	assert.Equal(t, a.ID, *defaultPointer(t, store, owner))
}

func TestDeleteReferencedAddressArchives(t *testing.T) {
	ctx := context.Background()
	store, svc, owner := newLedgerFixture(t)

	a, err := svc.Save(ctx, owner, domain.AddressShipping, dhakaInput())
	require.NoError(t, err)
	store.PutCart(domain.Cart{ProjectID: "p1", State: domain.CartStateConverted, ShippingAddressID: &a.ID})

	archived, err := svc.Delete(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.True(t, archived)
	assert.Equal(t, 1, store.CountAddresses(owner))

	in := dhakaInput()
	in["street"] = "Spare"
	spare, err := svc.Save(ctx, owner, domain.AddressShipping, in)
	require.NoError(t, err)
	archived, err = svc.Delete(ctx, owner, spare.ID)
	require.NoError(t, err)
	assert.False(t, archived)
	assert.Equal(t, 1, store.CountAddresses(owner))
	assert.Nil(t, defaultPointer(t, store, owner))
}

func TestLedgerRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	store, _, owner := newLedgerFixture(t)
	ledger := NewLedger(nil)
	f, err := NewNormalizer("BD").Normalize(dhakaInput())
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Repos) error {
		if _, err := ledger.Upsert(ctx, ReposOf(tx), owner, domain.AddressShipping, f); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, store.CountAddresses(owner))
	assert.Nil(t, defaultPointer(t, store, owner))
}
