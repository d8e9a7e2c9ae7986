package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/notifier"
	"storefront-checkout/internal/repository/product"
	"storefront-checkout/internal/service/address"
	"storefront-checkout/internal/storage"
	"storefront-checkout/internal/storage/memstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const project = "p1"

type captureNotifier struct {
	mu     sync.Mutex
	events []notifier.OrderPlaced
}

func (n *captureNotifier) Dispatch(evt notifier.OrderPlaced) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return true
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	store   *memstore.Store
	svc     *Service
	notes   *captureNotifier
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memstore.New(), nil)
}

func newFixtureWithStore(t *testing.T, mem *memstore.Store, wrap func(storage.Store) storage.Store) *fixture {
	t.Helper()
	numbers, err := NewNumberEncoder("test-salt")
	require.NoError(t, err)
	var store storage.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	notes := &captureNotifier{}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(Options{
		Store:      store,
		Normalizer: address.NewNormalizer("BD"),
		Numbers:    numbers,
		Notifier:   notes,
		Metrics:    m,
	})
	return &fixture{store: mem, svc: svc, notes: notes, metrics: m}
}

func i64(v int64) *int64 { return &v }
func intp(v int) *int    { return &v }
func strp(s string) *string {
	return &s
}

// availableVariant stores a variant whose only stock signal is its available
// counter.
func (f *fixture) availableVariant(available int) domain.Variant {
	return f.store.PutVariant(domain.Variant{
		ProjectID:      project,
		SKU:            "TEE-M",
		Name:           "Tee M",
		PriceCents:     i64(500),
		Currency:       "BDT",
		AvailableStock: intp(available),
	})
}

// anonymousCart holds one line of qty units at 500 each plus 60 shipping.
func (f *fixture) anonymousCart(anonID, variantID string, qty int) domain.Cart {
	total := int64(qty) * 500
	return f.store.PutCart(domain.Cart{
		ProjectID:   project,
		AnonymousID: strp(anonID),
		Currency:    "BDT",
		Totals: domain.CartTotals{
			SubtotalCents: i64(total),
			ShippingCents: i64(60),
			TotalCents:    i64(total + 60),
		},
		Lines: []domain.CartLine{{
			VariantID:      variantID,
			Quantity:       qty,
			UnitPriceCents: i64(500),
			TotalCents:     i64(total),
			Snapshot:       map[string]interface{}{"name": "Tee M", "sku": "TEE-M", "price": 5},
		}},
	})
}

func guestRequest() Request {
	return Request{
		GuestCheckout:        true,
		UseBillingAsShipping: true,
		PaymentMethod:        "COD",
		Shipping: address.Input{
			"fullName": "Rahim Uddin",
			"mobile":   "01712345678",
			"house":    "House 7",
			"road":     "Road 2",
			"upazila":  "Dhanmondi",
			"district": "Dhaka",
		},
	}
}

func TestInsufficientStockLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.availableVariant(2)
	c := f.anonymousCart("anon-1", v.ID, 3)

	_, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientStock, CodeOf(err))

	assert.Equal(t, 0, f.store.CountOrders())
	assert.Equal(t, 0, f.store.CountEvents())
	assert.Equal(t, 0, f.store.CountCustomers(project))
	got, _ := f.store.Variant(v.ID)
	assert.Equal(t, 2, *got.AvailableStock)
	cart, _ := f.store.Cart(c.ID)
	assert.Equal(t, domain.CartStateActive, cart.State)
	assert.Equal(t, 0, f.notes.count())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CheckoutAttempts.WithLabelValues(string(CodeInsufficientStock))))
}

func TestPlaceOrderKeepsCartTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.availableVariant(5)
	c := f.anonymousCart("anon-1", v.ID, 3)

	o, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1560), o.Totals.TotalCents)
	assert.Equal(t, int64(1500), o.Totals.SubtotalCents)
	assert.Equal(t, int64(60), o.Totals.ShippingCents)
	assert.Equal(t, "cart", o.Metadata["totalsSource"])
	assert.Equal(t, domain.OrderStatusPlaced, o.Status)
	assert.Equal(t, domain.PaymentStatusUnpaid, o.PaymentStatus)
	assert.Equal(t, domain.FulfillmentStatusUnfulfilled, o.FulfillmentStatus)
	assert.Regexp(t, `^ORD-[A-Z2-9]{8,}$`, o.OrderNumber)
	assert.True(t, o.IsGuest)
	assert.Nil(t, o.BillingAddressID)

	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, int64(500), o.Items[0].UnitPriceCents)
	assert.Equal(t, "TEE-M", o.Items[0].SKU)

	got, _ := f.store.Variant(v.ID)
	assert.Equal(t, 2, *got.AvailableStock)

	cart, _ := f.store.Cart(c.ID)
	assert.Equal(t, domain.CartStateConverted, cart.State)
	require.NotNil(t, cart.ShippingAddressID)
	assert.Equal(t, o.ShippingAddressID, *cart.ShippingAddressID)

	events, err := f.store.Repos().Orders.ListEvents(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.OrderEventCreated, events[0].Kind)
	assert.Equal(t, "guest", events[0].ActorType)
	assert.Equal(t, 1, events[0].Metadata["itemCount"])
	assert.Equal(t, "COD", events[0].Metadata["paymentMethod"])
	assert.Equal(t, true, events[0].Metadata["guest"])

	require.Equal(t, 1, f.notes.count())
	assert.Equal(t, o.ID, f.notes.events[0].OrderID)
	assert.Equal(t, 3, f.notes.events[0].Items[0].Quantity)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CheckoutAttempts.WithLabelValues("OK")))
}

func TestFrozenPriceWinsOverLivePrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.availableVariant(10)
	f.anonymousCart("anon-1", v.ID, 2)

	v.PriceCents = i64(900)
	f.store.PutVariant(v)

	o, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(500), o.Items[0].UnitPriceCents)
	assert.Equal(t, int64(1000), o.Items[0].TotalCents)
}

func TestTotalsRecomputedWhenCartHasNone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.availableVariant(10)
	f.store.PutCart(domain.Cart{
		ProjectID:   project,
		AnonymousID: strp("anon-1"),
		Currency:    "BDT",
		Lines:       []domain.CartLine{{VariantID: v.ID, Quantity: 2, UnitPriceCents: i64(450)}},
	})

	o, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(900), o.Totals.SubtotalCents)
	assert.Equal(t, int64(900), o.Totals.TotalCents)
	assert.Equal(t, "computed", o.Metadata["totalsSource"])
}

func TestInventoryRecordsDecrementFirstLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.store.PutVariant(domain.Variant{ProjectID: project, SKU: "MUG", PriceCents: i64(300), Currency: "BDT"})
	products := f.store.Repos().Products
	_, err := products.UpsertInventory(ctx, domain.InventoryRecord{VariantID: v.ID, Location: "dhaka", OnHand: 4, Reserved: 1})
	require.NoError(t, err)
	_, err = products.UpsertInventory(ctx, domain.InventoryRecord{VariantID: v.ID, Location: "ctg", OnHand: 3})
	require.NoError(t, err)
	f.store.PutCart(domain.Cart{
		ProjectID:   project,
		AnonymousID: strp("anon-1"),
		Currency:    "BDT",
		Lines:       []domain.CartLine{{VariantID: v.ID, Quantity: 2, UnitPriceCents: i64(300)}},
	})

	o, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	require.NoError(t, err)

	recs := f.store.Inventory(v.ID)
	require.Len(t, recs, 2)
	assert.Equal(t, "dhaka", recs[0].Location)
	assert.Equal(t, 2, recs[0].OnHand)
	assert.Equal(t, 0, recs[0].Reserved)
	assert.Equal(t, 3, recs[1].OnHand)

	got, _ := f.store.Variant(v.ID)
	require.NotNil(t, got.AvailableStock)
	assert.Equal(t, 5, *got.AvailableStock)

	stock := o.Metadata["stock"].(map[string]interface{})[v.ID].(map[string]interface{})
	assert.Equal(t, "inventory_records", stock["strategy"])
	assert.Equal(t, 6, stock["available"])
}

func TestBackorderSkipsStockCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.store.PutVariant(domain.Variant{
		ProjectID: project, SKU: "PRE", PriceCents: i64(500), BackorderAllowed: true, AvailableStock: intp(1),
	})
	f.anonymousCart("anon-1", v.ID, 3)

	_, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	require.NoError(t, err)
	got, _ := f.store.Variant(v.ID)
	assert.Equal(t, -2, *got.AvailableStock)
}

func TestUntrackedVariantIsSold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.store.PutVariant(domain.Variant{ProjectID: project, SKU: "GIFT", PriceCents: i64(500)})
	f.anonymousCart("anon-1", v.ID, 3)

	_, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	require.NoError(t, err)
	got, _ := f.store.Variant(v.ID)
	assert.Nil(t, got.AvailableStock)
}

func TestGuestMatchedByPhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	existing, err := f.store.Repos().Customers.Create(ctx, domain.Customer{ProjectID: project, Name: "Rahim", Phone: strp("+8801712345678")})
	require.NoError(t, err)
	v := f.availableVariant(5)
	f.anonymousCart("anon-1", v.ID, 1)

	o, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, o.CustomerID)
	assert.Equal(t, 1, f.store.CountCustomers(project))
}

func TestSignedInCustomerCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.store.Repos().Customers.Create(ctx, domain.Customer{ProjectID: project, Name: "Karim", Email: strp("karim@example.com")})
	require.NoError(t, err)
	v := f.availableVariant(10)
	put := func() {
		f.store.PutCart(domain.Cart{
			ProjectID:  project,
			CustomerID: strp(c.ID),
			Currency:   "BDT",
			Lines:      []domain.CartLine{{VariantID: v.ID, Quantity: 1, UnitPriceCents: i64(500)}},
		})
	}
	put()

	req := guestRequest()
	req.GuestCheckout = false
	req.UseBillingAsShipping = false
	req.Billing = address.Input{"name": "Karim", "phone": "+8801812345678", "line1": "Office 3", "city": "Gulshan"}

	first, err := f.svc.PlaceOrder(ctx, project, Session{CustomerID: c.ID}, req)
	require.NoError(t, err)
	assert.Equal(t, c.ID, first.CustomerID)
	assert.False(t, first.IsGuest)
	require.NotNil(t, first.BillingAddressID)
	assert.NotEqual(t, first.ShippingAddressID, *first.BillingAddressID)

	owner, err := f.store.Repos().Customers.GetByID(ctx, project, c.ID)
	require.NoError(t, err)
	require.NotNil(t, owner.DefaultAddressID)
	assert.Equal(t, first.ShippingAddressID, *owner.DefaultAddressID)

	put()
	second, err := f.svc.PlaceOrder(ctx, project, Session{CustomerID: c.ID}, req)
	require.NoError(t, err)
	assert.Equal(t, first.ShippingAddressID, second.ShippingAddressID)
	assert.Equal(t, *first.BillingAddressID, *second.BillingAddressID)
	assert.Equal(t, 2, f.store.CountAddresses(c.ID))
	assert.NotEqual(t, first.OrderNumber, second.OrderNumber)

	got, err := f.svc.GetOrder(ctx, project, c.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.OrderNumber, got.OrderNumber)
	_, err = f.svc.GetOrder(ctx, project, "someone-else", second.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnauthorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.availableVariant(5)
	f.anonymousCart("anon-1", v.ID, 1)

	req := guestRequest()
	req.GuestCheckout = false

	_, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, req)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))

	_, err = f.svc.PlaceOrder(ctx, project, Session{CustomerID: "c1", Invalid: true}, req)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))

	f.store.PutCart(domain.Cart{
		ProjectID:  project,
		CustomerID: strp("ghost"),
		Lines:      []domain.CartLine{{VariantID: v.ID, Quantity: 1, UnitPriceCents: i64(500)}},
	})
	_, err = f.svc.PlaceOrder(ctx, project, Session{CustomerID: "ghost"}, req)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))

	req.Mode = "guest"
	_, err = f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1", Invalid: true}, req)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.CountOrders())
}

func TestCartEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(ctx, project, Session{}, guestRequest())
	assert.Equal(t, CodeCartEmpty, CodeOf(err))

	_, err = f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	assert.Equal(t, CodeCartEmpty, CodeOf(err))

	f.store.PutCart(domain.Cart{ProjectID: project, AnonymousID: strp("anon-1")})
	_, err = f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
	assert.Equal(t, CodeCartEmpty, CodeOf(err))
}

func TestAddressErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.availableVariant(5)
	f.anonymousCart("anon-1", v.ID, 1)

	req := guestRequest()
	delete(req.Shipping, "upazila")
	_, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, req)
	assert.Equal(t, CodeAddressIncomplete, CodeOf(err))
	assert.Equal(t, []string{"city"}, FieldsOf(err))

	req = guestRequest()
	delete(req.Shipping, "mobile")
	_, err = f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, req)
	assert.Equal(t, CodeMobileRequired, CodeOf(err))

	req = guestRequest()
	req.UseBillingAsShipping = false
	req.Billing = address.Input{"name": "Rahim", "phone": "01712345678"}
	_, err = f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, req)
	assert.Equal(t, CodeAddressIncomplete, CodeOf(err))
	assert.Equal(t, []string{"city", "line1"}, FieldsOf(err))

	assert.Equal(t, 0, f.store.CountOrders())
	assert.Equal(t, 0, f.store.CountCustomers(project))
}

type brokenProducts struct {
	product.Repository
	err error
}

func (p brokenProducts) DecrementVariantStock(context.Context, string, int, bool) error {
	return p.err
}

type brokenStore struct {
	storage.Store
	err error
}

func (s brokenStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Repos) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx storage.Repos) error {
		tx.Products = brokenProducts{Repository: tx.Products, err: s.err}
		return fn(ctx, tx)
	})
}

func TestDecrementFailureRollsBackEverything(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code Code
	}{
		{"lost race", domain.ErrInsufficientStock, CodeInsufficientStock},
		{"store error", errors.New("connection reset"), CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mem := memstore.New()
			f := newFixtureWithStore(t, mem, func(s storage.Store) storage.Store {
				return brokenStore{Store: s, err: tc.err}
			})
			v := f.availableVariant(5)
			c := f.anonymousCart("anon-1", v.ID, 3)

			_, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: "anon-1"}, guestRequest())
			require.Error(t, err)
			assert.Equal(t, tc.code, CodeOf(err))
			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, StagePersisted, ce.Stage)

			assert.Equal(t, 0, mem.CountOrders())
			assert.Equal(t, 0, mem.CountEvents())
			assert.Equal(t, 0, mem.CountCustomers(project))
			cart, _ := mem.Cart(c.ID)
			assert.Equal(t, domain.CartStateActive, cart.State)
			assert.Nil(t, cart.ShippingAddressID)
			got, _ := mem.Variant(v.ID)
			assert.Equal(t, 5, *got.AvailableStock)
			assert.Equal(t, 0, f.notes.count())
		})
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.availableVariant(5)

	const shoppers = 12
	for i := 0; i < shoppers; i++ {
		f.anonymousCart(anonID(i), v.ID, 1)
	}

	var wg sync.WaitGroup
	codes := make([]Code, shoppers)
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := guestRequest()
			req.Shipping["mobile"] = "0171234567" + string(rune('0'+i%10))
			_, err := f.svc.PlaceOrder(ctx, project, Session{AnonymousID: anonID(i)}, req)
			codes[i] = CodeOf(err)
		}(i)
	}
	wg.Wait()

	placed, rejected := 0, 0
	for _, c := range codes {
		switch c {
		case "":
			placed++
		case CodeInsufficientStock:
			rejected++
		default:
			t.Fatalf("unexpected code %q", c)
		}
	}
	assert.Equal(t, 5, placed)
	assert.Equal(t, shoppers-5, rejected)
	assert.Equal(t, 5, f.store.CountOrders())
	got, _ := f.store.Variant(v.ID)
	assert.Equal(t, 0, *got.AvailableStock)
}

func anonID(i int) string {
	return "anon-" + string(rune('a'+i))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	wrapped := errors.Join(errors.New("ctx"), &Error{Code: CodeCartEmpty})
	assert.Equal(t, CodeCartEmpty, CodeOf(wrapped))
}
