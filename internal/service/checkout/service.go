// Package checkout turns a shopper's active cart into an order in a single
// unit of work: stock is checked and decremented, the prices the shopper saw
// are kept, the owning account and addresses are resolved, and the cart is
// converted. Nothing is kept when any step fails.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/notifier"
	"storefront-checkout/internal/service/address"
	"storefront-checkout/internal/service/identity"
	"storefront-checkout/internal/service/pricing"
	"storefront-checkout/internal/service/stock"
	"storefront-checkout/internal/storage"

	"go.uber.org/zap"
)

// Session is what the authentication layer resolved for the request. The
// zero value is an anonymous shopper with no cart token.
type Session struct {
	CustomerID  string
	AnonymousID string
	// Invalid is set when credentials were presented but did not verify.
	Invalid bool
}

// Request is a checkout submission.
type Request struct {
	GuestCheckout        bool          `json:"guestCheckout"`
	Mode                 string        `json:"mode"`
	UseBillingAsShipping bool          `json:"useBillingAsShipping"`
	PaymentMethod        string        `json:"paymentMethod"`
	Notes                string        `json:"notes"`
	Shipping             address.Input `json:"shipping"`
	Billing              address.Input `json:"billing"`
}

func (r Request) guest() bool {
	return r.GuestCheckout || strings.EqualFold(strings.TrimSpace(r.Mode), "guest")
}

// Notifier receives committed orders. Dispatch must not block.
type Notifier interface {
	Dispatch(evt notifier.OrderPlaced) bool
}

type Options struct {
	Store      storage.Store
	Normalizer *address.Normalizer
	Ledger     *address.Ledger
	Identity   *identity.Resolver
	Numbers    *NumberEncoder
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type Service struct {
	store      storage.Store
	normalizer *address.Normalizer
	ledger     *address.Ledger
	identity   *identity.Resolver
	numbers    *NumberEncoder
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(opts Options) *Service {
	logger := logging.OrNop(opts.Logger)
	s := &Service{
		store:      opts.Store,
		normalizer: opts.Normalizer,
		ledger:     opts.Ledger,
		identity:   opts.Identity,
		numbers:    opts.Numbers,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		logger:     logger,
		now:        time.Now,
	}
	if s.normalizer == nil {
		s.normalizer = address.NewNormalizer("")
	}
	if s.ledger == nil {
		s.ledger = address.NewLedger(logger)
	}
	if s.identity == nil {
		s.identity = identity.NewResolver(logger)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}
	return s
}

// assembly carries one checkout through its stages.
type assembly struct {
	projectID string
	session   Session
	req       Request
	guest     bool
	stage     Stage

	cart         *domain.Cart
	variantOrder []string
	requested    map[string]int
	variants     map[string]domain.Variant
	records      map[string][]domain.InventoryRecord
	available    map[string]*int
	strategy     map[string]string

	items  []domain.OrderItem
	prices []pricing.Line

	customer       identity.Result
	shippingFields address.Fields
	shipping       *domain.Address
	billing        *domain.Address

	totals       domain.OrderTotals
	totalsSource string

	order *domain.Order
}

// PlaceOrder converts the requester's active cart into an order. Failures
// are returned as *Error; use CodeOf to read the public code.
func (s *Service) PlaceOrder(ctx context.Context, projectID string, sess Session, req Request) (*domain.Order, error) {
	started := s.now()
	a := &assembly{
		projectID: projectID,
		session:   sess,
		req:       req,
		guest:     req.guest(),
		stage:     StageValidating,
	}

	order, err := s.place(ctx, a)
	code := CodeOf(err)
	if err == nil {
		code = "OK"
	}
	s.metrics.ObserveCheckout(string(code), started)
	if err != nil {
		fields := []zap.Field{
			zap.String("project_id", projectID),
			zap.String("code", string(code)),
			zap.String("stage", string(stageOf(err, a.stage))),
			zap.Error(err),
		}
		if code == CodeUnknown {
			s.logger.Error("checkout failed", fields...)
		} else {
			s.logger.Info("checkout rejected", fields...)
		}
		return nil, err
	}

	a.stage = StageCommitted
	s.logger.Info("order placed",
		zap.String("project_id", projectID),
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("items", len(order.Items)),
		zap.Bool("guest", order.IsGuest),
		zap.Duration("took", time.Since(started)),
	)
	s.dispatch(order)
	return order, nil
}

func (s *Service) place(ctx context.Context, a *assembly) (*domain.Order, error) {
	if !a.guest && (a.session.Invalid || a.session.CustomerID == "") {
		return nil, fail(CodeUnauthorized, a.stage, errors.New("non-guest checkout without a valid session"))
	}
	if a.guest && a.session.Invalid {
		a.session.CustomerID = ""
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repos) error {
		steps := []func(context.Context, storage.Repos, *assembly) error{
			s.resolveCart,
			s.snapshotStock,
			s.checkStock,
			s.buildItems,
			s.resolveIdentity,
			s.upsertAddresses,
			s.computeTotals,
			s.persist,
			s.decrementStock,
			s.convertCart,
			s.emitEvent,
		}
		for _, step := range steps {
			if err := step(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, fail(CodeUnknown, a.stage, err)
	}
	return a.order, nil
}

// 1. the requester's active cart, customer first
func (s *Service) resolveCart(ctx context.Context, tx storage.Repos, a *assembly) error {
	owner := domain.CartOwner{CustomerID: a.session.CustomerID, AnonymousID: a.session.AnonymousID}
	if owner.CustomerID == "" && owner.AnonymousID == "" {
		return fail(CodeCartEmpty, a.stage, errors.New("no cart owner in session"))
	}
	c, err := tx.Carts.LockActive(ctx, a.projectID, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fail(CodeCartEmpty, a.stage, errors.New("no active cart"))
		}
		return fmt.Errorf("load cart: %w", err)
	}
	if len(c.Lines) == 0 {
		return fail(CodeCartEmpty, a.stage, fmt.Errorf("cart %s has no lines", c.ID))
	}
	a.cart = c

	a.requested = map[string]int{}
	for _, l := range c.Lines {
		if _, seen := a.requested[l.VariantID]; !seen {
			a.variantOrder = append(a.variantOrder, l.VariantID)
		}
		a.requested[l.VariantID] += l.Quantity
	}
	sort.Strings(a.variantOrder)
	return nil
}

// 2. lock variants and their inventory, then resolve availability
func (s *Service) snapshotStock(ctx context.Context, tx storage.Repos, a *assembly) error {
	variants, err := tx.Products.LockVariants(ctx, a.projectID, a.variantOrder)
	if err != nil {
		return fmt.Errorf("lock variants: %w", err)
	}
	records, err := tx.Products.LockInventory(ctx, a.variantOrder)
	if err != nil {
		return fmt.Errorf("lock inventory: %w", err)
	}

	a.variants = make(map[string]domain.Variant, len(variants))
	a.available = make(map[string]*int, len(variants))
	a.strategy = make(map[string]string, len(variants))
	for _, v := range variants {
		a.variants[v.ID] = v
		a.available[v.ID], a.strategy[v.ID] = stock.ResolveNamed(v, records[v.ID])
	}
	a.records = records
	return nil
}

// 3. reject lines that exceed what is available
func (s *Service) checkStock(_ context.Context, _ storage.Repos, a *assembly) error {
	for _, id := range a.variantOrder {
		v, ok := a.variants[id]
		if !ok || v.BackorderAllowed {
			continue
		}
		avail := a.available[id]
		if avail == nil {
			s.logger.Warn("checkout: variant has no stock signal", zap.String("variant_id", id), zap.String("sku", v.SKU))
			continue
		}
		if a.requested[id] > *avail {
			return fail(CodeInsufficientStock, a.stage,
				fmt.Errorf("variant %s: requested %d, available %d", v.SKU, a.requested[id], *avail))
		}
	}
	a.stage = StagePricing
	return nil
}

// 4. one order item per cart line at the price the shopper saw
func (s *Service) buildItems(_ context.Context, _ storage.Repos, a *assembly) error {
	a.items = make([]domain.OrderItem, 0, len(a.cart.Lines))
	a.prices = make([]pricing.Line, 0, len(a.cart.Lines))
	for _, l := range a.cart.Lines {
		v, ok := a.variants[l.VariantID]
		if !ok {
			return fmt.Errorf("cart line %s: variant %s: %w", l.ID, l.VariantID, domain.ErrNotFound)
		}
		p, err := pricing.Read(l, &v)
		if err != nil {
			return fmt.Errorf("price cart line %s: %w", l.ID, err)
		}
		name := v.Name
		if n, ok := l.Snapshot["name"].(string); ok && n != "" {
			name = n
		}
		a.items = append(a.items, domain.OrderItem{
			VariantID:      v.ID,
			ProductID:      v.ProductID,
			SKU:            v.SKU,
			Name:           name,
			Quantity:       l.Quantity,
			UnitPriceCents: p.UnitPriceCents,
			TotalCents:     p.TotalCents,
		})
		a.prices = append(a.prices, p)
	}
	return nil
}

// 5. the owning account; guest accounts are created inside the transaction
func (s *Service) resolveIdentity(ctx context.Context, tx storage.Repos, a *assembly) error {
	shipping, err := s.normalize(a.req.Shipping, a.stage)
	if err != nil {
		return err
	}
	contact := identity.Contact{Name: shipping.Name, Email: shipping.Email, Phone: shipping.Phone}

	res, err := s.identity.Resolve(ctx, tx.Customers, a.projectID, a.session.CustomerID, contact)
	if errors.Is(err, identity.ErrUnknownCustomer) {
		if !a.guest {
			return fail(CodeUnauthorized, a.stage, err)
		}
		res, err = s.identity.Resolve(ctx, tx.Customers, a.projectID, "", contact)
	}
	if err != nil {
		return fmt.Errorf("resolve customer: %w", err)
	}
	if a.guest {
		res.Guest = true
	}
	a.customer = res
	a.shippingFields = shipping
	a.stage = StageIdentityResolved
	return nil
}

// 6. shipping address, and billing when it differs
func (s *Service) upsertAddresses(ctx context.Context, tx storage.Repos, a *assembly) error {
	repos := address.ReposOf(tx)
	ship, err := s.ledger.Upsert(ctx, repos, a.customer.CustomerID, domain.AddressShipping, a.shippingFields)
	if err != nil {
		return fmt.Errorf("upsert shipping address: %w", err)
	}
	a.shipping = ship

	if !a.req.UseBillingAsShipping && len(a.req.Billing) > 0 {
		f, err := s.normalize(a.req.Billing, a.stage)
		if err != nil {
			return err
		}
		bill, err := s.ledger.Upsert(ctx, repos, a.customer.CustomerID, domain.AddressBilling, f)
		if err != nil {
			return fmt.Errorf("upsert billing address: %w", err)
		}
		a.billing = bill
	}
	a.stage = StageAddressesUpserted
	return nil
}

// 7. the cart's own totals, recomputed only when it carries none
func (s *Service) computeTotals(_ context.Context, _ storage.Repos, a *assembly) error {
	var itemsTotal int64
	for _, it := range a.items {
		itemsTotal += it.TotalCents
	}

	t := a.cart.Totals
	if totalsAbsent(t) {
		a.totals = domain.OrderTotals{SubtotalCents: itemsTotal, TotalCents: itemsTotal}
		a.totalsSource = "computed"
	} else {
		a.totals = domain.OrderTotals{
			SubtotalCents: valueOr(t.SubtotalCents, itemsTotal),
			DiscountCents: valueOr(t.DiscountCents, 0),
			TaxCents:      valueOr(t.TaxCents, 0),
			ShippingCents: valueOr(t.ShippingCents, 0),
		}
		a.totals.TotalCents = valueOr(t.TotalCents,
			a.totals.SubtotalCents-a.totals.DiscountCents+a.totals.TaxCents+a.totals.ShippingCents)
		a.totalsSource = "cart"
	}
	a.stage = StageTotalsComputed
	return nil
}

// 8. the order row and its items
func (s *Service) persist(ctx context.Context, tx storage.Repos, a *assembly) error {
	seq, err := tx.Orders.NextNumber(ctx)
	if err != nil {
		return fmt.Errorf("next order number: %w", err)
	}
	number, err := s.numbers.Encode(seq)
	if err != nil {
		return err
	}

	o := domain.Order{
		ProjectID:         a.projectID,
		OrderNumber:       number,
		CustomerID:        a.customer.CustomerID,
		CartID:            a.cart.ID,
		Currency:          a.cart.Currency,
		Status:            domain.OrderStatusPlaced,
		PaymentStatus:     domain.PaymentStatusUnpaid,
		FulfillmentStatus: domain.FulfillmentStatusUnfulfilled,
		PaymentMethod:     strings.TrimSpace(a.req.PaymentMethod),
		Notes:             strings.TrimSpace(a.req.Notes),
		Totals:            a.totals,
		ShippingAddressID: a.shipping.ID,
		IsGuest:           a.customer.Guest,
		Metadata:          a.metadata(),
	}
	if a.billing != nil {
		o.BillingAddressID = &a.billing.ID
	}

	created, err := tx.Orders.Create(ctx, o)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	items, err := tx.Orders.CreateItems(ctx, created.ID, a.items)
	if err != nil {
		return fmt.Errorf("create order items: %w", err)
	}
	created.Items = items
	a.order = created
	a.stage = StagePersisted
	return nil
}

// 9. take the ordered quantities off stock, re-checking each decrement
func (s *Service) decrementStock(ctx context.Context, tx storage.Repos, a *assembly) error {
	for _, id := range a.variantOrder {
		v := a.variants[id]
		qty := a.requested[id]
		records := a.records[id]

		if len(records) > 0 {
			// only the oldest location is drawn from
			err := tx.Products.DecrementInventoryRecord(ctx, records[0].ID, qty, v.BackorderAllowed)
			if err != nil {
				return s.decrementFailed(a, v, err)
			}
			if err := tx.Products.RefreshVariantAvailable(ctx, id); err != nil {
				return fmt.Errorf("refresh available for %s: %w", v.SKU, err)
			}
			continue
		}
		if a.available[id] == nil {
			s.logger.Warn("checkout: stock not tracked, nothing decremented", zap.String("variant_id", id), zap.String("sku", v.SKU))
			continue
		}
		if err := tx.Products.DecrementVariantStock(ctx, id, qty, v.BackorderAllowed); err != nil {
			return s.decrementFailed(a, v, err)
		}
	}
	a.stage = StageStockDecremented
	return nil
}

func (s *Service) decrementFailed(a *assembly, v domain.Variant, err error) error {
	if errors.Is(err, domain.ErrInsufficientStock) {
		return fail(CodeInsufficientStock, a.stage, fmt.Errorf("decrement %s: %w", v.SKU, err))
	}
	return fmt.Errorf("decrement %s: %w", v.SKU, err)
}

// 10. flip the cart, carrying the resolved addresses
func (s *Service) convertCart(ctx context.Context, tx storage.Repos, a *assembly) error {
	var billingID *string
	if a.billing != nil {
		billingID = &a.billing.ID
	}
	if err := tx.Carts.MarkConverted(ctx, a.cart.ID, a.shipping.ID, billingID); err != nil {
		if errors.Is(err, domain.ErrCartNotActive) {
			return fail(CodeCartEmpty, a.stage, err)
		}
		return fmt.Errorf("convert cart: %w", err)
	}
	a.stage = StageCartConverted
	return nil
}

// 11. the CREATED audit entry
func (s *Service) emitEvent(ctx context.Context, tx storage.Repos, a *assembly) error {
	actorType := "customer"
	if a.customer.Guest {
		actorType = "guest"
	}
	quantity := 0
	for _, it := range a.items {
		quantity += it.Quantity
	}
	_, err := tx.Orders.AppendEvent(ctx, domain.OrderEvent{
		OrderID:   a.order.ID,
		Kind:      domain.OrderEventCreated,
		ActorID:   a.customer.CustomerID,
		ActorType: actorType,
		Message:   "Order " + a.order.OrderNumber + " placed",
		Metadata: map[string]interface{}{
			"itemCount":     len(a.items),
			"quantity":      quantity,
			"currency":      a.order.Currency,
			"paymentMethod": a.order.PaymentMethod,
			"guest":         a.customer.Guest,
		},
	})
	if err != nil {
		return fmt.Errorf("append order event: %w", err)
	}
	a.stage = StageEventEmitted
	return nil
}

func (s *Service) normalize(in address.Input, stage Stage) (address.Fields, error) {
	f, err := s.normalizer.Normalize(in)
	if err == nil {
		return f, nil
	}
	var inc *address.IncompleteError
	switch {
	case errors.As(err, &inc):
		e := fail(CodeAddressIncomplete, stage, err)
		e.Fields = inc.Fields
		return address.Fields{}, e
	case errors.Is(err, address.ErrMobileRequired):
		return address.Fields{}, fail(CodeMobileRequired, stage, err)
	default:
		return address.Fields{}, err
	}
}

func (s *Service) dispatch(o *domain.Order) {
	if s.notifier == nil {
		return
	}
	evt := notifier.OrderPlaced{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		ProjectID:   o.ProjectID,
		CustomerID:  o.CustomerID,
		Currency:    o.Currency,
		TotalCents:  o.Totals.TotalCents,
		Guest:       o.IsGuest,
		PlacedAt:    o.CreatedAt,
	}
	for _, it := range o.Items {
		evt.Items = append(evt.Items, notifier.Item{VariantID: it.VariantID, SKU: it.SKU, Quantity: it.Quantity})
	}
	s.notifier.Dispatch(evt)
}

// GetOrder returns an order to the customer who owns it.
func (s *Service) GetOrder(ctx context.Context, projectID, customerID, orderID string) (*domain.Order, error) {
	o, err := s.store.Repos().Orders.GetByID(ctx, projectID, orderID)
	if err != nil {
		return nil, err
	}
	if customerID == "" || o.CustomerID != customerID {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

// metadata is the cart and pricing snapshot stored with the order.
func (a *assembly) metadata() map[string]interface{} {
	lines := make([]map[string]interface{}, 0, len(a.cart.Lines))
	for i, l := range a.cart.Lines {
		line := map[string]interface{}{
			"lineId":         l.ID,
			"variantId":      l.VariantID,
			"quantity":       l.Quantity,
			"unitPriceCents": a.prices[i].UnitPriceCents,
			"totalCents":     a.prices[i].TotalCents,
			"unitSource":     string(a.prices[i].UnitSource),
			"totalSource":    string(a.prices[i].TotalSource),
		}
		if len(l.Snapshot) > 0 {
			line["snapshot"] = l.Snapshot
		}
		lines = append(lines, line)
	}
	stockSeen := make(map[string]interface{}, len(a.variantOrder))
	for _, id := range a.variantOrder {
		entry := map[string]interface{}{"strategy": a.strategy[id]}
		if avail := a.available[id]; avail != nil {
			entry["available"] = *avail
		}
		stockSeen[id] = entry
	}
	return map[string]interface{}{
		"cart": map[string]interface{}{
			"id":       a.cart.ID,
			"currency": a.cart.Currency,
			"totals":   a.cart.Totals,
			"lines":    lines,
		},
		"totalsSource": a.totalsSource,
		"stock":        stockSeen,
		"guest":        a.customer.Guest,
	}
}

func totalsAbsent(t domain.CartTotals) bool {
	for _, v := range []*int64{t.SubtotalCents, t.DiscountCents, t.TaxCents, t.ShippingCents, t.TotalCents} {
		if v != nil && *v != 0 {
			return false
		}
	}
	return true
}

func valueOr(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}

func stageOf(err error, fallback Stage) Stage {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return fallback
}
