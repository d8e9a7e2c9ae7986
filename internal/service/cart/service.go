// Package cart is the pre-checkout cart editor. Lines enter the cart with the
// price the shopper is shown, and that price stays frozen on the line.
package cart

import (
	"context"
	"errors"
	"strings"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	cartrepo "storefront-checkout/internal/repository/cart"
	"storefront-checkout/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrVariantNotFound = errors.New("variant not found")
	ErrNoPrice         = errors.New("variant has no price")
)

// ValidationError reports a request the cart editor refuses to apply.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

type Service struct {
	store  storage.Store
	logger *zap.Logger
}

func New(store storage.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logging.OrNop(logger)}
}

type UpdateInput struct {
	Actions []UpdateAction `json:"actions"`
}

type UpdateAction struct {
	Action        string `json:"action"`
	SKU           string `json:"sku,omitempty"`
	VariantID     string `json:"variantId,omitempty"`
	LineItemID    string `json:"lineItemId,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	DiscountCents int64  `json:"discountCents,omitempty"`
	TaxCents      int64  `json:"taxCents,omitempty"`
	ShippingCents int64  `json:"shippingCents,omitempty"`
}

// Create opens a cart for the owner. A signed-in owner takes precedence over
// the anonymous id.
func (s *Service) Create(ctx context.Context, projectID string, owner domain.CartOwner, currency string) (*domain.Cart, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, invalid("currency required")
	}
	in := cartrepo.CreateCartInput{ProjectID: projectID, Currency: currency}
	switch {
	case owner.CustomerID != "":
		in.CustomerID = &owner.CustomerID
	case owner.AnonymousID != "":
		in.AnonymousID = &owner.AnonymousID
	default:
		return nil, domain.ErrNotFound
	}
	return s.store.Repos().Carts.Create(ctx, in)
}

// Get returns the cart when owner may see it.
func (s *Service) Get(ctx context.Context, projectID string, owner domain.CartOwner, id string) (*domain.Cart, error) {
	c, err := s.store.Repos().Carts.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if !owns(c, owner) {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// Active returns the owner's current cart, customer first.
func (s *Service) Active(ctx context.Context, projectID string, owner domain.CartOwner) (*domain.Cart, error) {
	carts := s.store.Repos().Carts
	if owner.CustomerID != "" {
		c, err := carts.GetActiveByCustomer(ctx, projectID, owner.CustomerID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return c, err
		}
	}
	if owner.AnonymousID != "" {
		return carts.GetActiveByAnonymous(ctx, projectID, owner.AnonymousID)
	}
	return nil, domain.ErrNotFound
}

func (s *Service) AssignCustomerFromAnonymous(ctx context.Context, projectID, anonymousID, customerID string) (*domain.Cart, error) {
	return s.store.Repos().Carts.AssignCustomerToAnonymous(ctx, projectID, anonymousID, customerID)
}

// Update applies the actions in order inside one unit of work.
func (s *Service) Update(ctx context.Context, projectID string, owner domain.CartOwner, cartID string, in UpdateInput) (*domain.Cart, error) {
	if len(in.Actions) == 0 {
		return nil, invalid("actions required")
	}
	var out *domain.Cart
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repos) error {
		c, err := tx.Carts.GetByID(ctx, projectID, cartID)
		if err != nil {
			return err
		}
		if !owns(c, owner) {
			return domain.ErrNotFound
		}
		if c.State != domain.CartStateActive {
			return domain.ErrCartNotActive
		}
		for _, action := range in.Actions {
			if err := s.apply(ctx, tx, projectID, cartID, action); err != nil {
				return err
			}
		}
		out, err = tx.Carts.GetByID(ctx, projectID, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, tx storage.Repos, projectID, cartID string, action UpdateAction) error {
	switch strings.ToLower(strings.TrimSpace(action.Action)) {
	case "addlineitem":
		sku := strings.TrimSpace(action.SKU)
		variantID := strings.TrimSpace(action.VariantID)
		if sku == "" && variantID == "" {
			return invalid("sku required")
		}
		if action.Quantity <= 0 {
			return invalid("quantity must be positive")
		}
		var (
			v   *domain.Variant
			err error
		)
		if variantID != "" {
			v, err = tx.Products.GetVariant(ctx, projectID, variantID)
		} else {
			v, err = tx.Products.GetVariantBySKU(ctx, projectID, sku)
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ErrVariantNotFound
			}
			return err
		}
		price, ok := shownPrice(*v)
		if !ok {
			return ErrNoPrice
		}
		s.logger.Debug("cart: add line", zap.String("cart_id", cartID), zap.String("sku", v.SKU), zap.Int64("unit_price_cents", price))
		return tx.Carts.AddLineItem(ctx, cartID, cartrepo.NewLine{
			VariantID:      v.ID,
			Quantity:       action.Quantity,
			UnitPriceCents: price,
			Snapshot:       snapshotFromVariant(*v, price),
		})
	case "changelineitemquantity":
		lineID := strings.TrimSpace(action.LineItemID)
		if lineID == "" {
			return invalid("lineItemId required")
		}
		if action.Quantity < 0 {
			return invalid("quantity must not be negative")
		}
		return tx.Carts.ChangeLineItemQuantity(ctx, cartID, lineID, action.Quantity)
	case "setadjustments":
		if action.DiscountCents < 0 || action.TaxCents < 0 || action.ShippingCents < 0 {
			return invalid("adjustments must not be negative")
		}
		return tx.Carts.SetAdjustments(ctx, cartID, cartrepo.Adjustments{
			DiscountCents: action.DiscountCents,
			TaxCents:      action.TaxCents,
			ShippingCents: action.ShippingCents,
		})
	default:
		return invalid("unsupported action")
	}
}

func owns(c *domain.Cart, owner domain.CartOwner) bool {
	if owner.CustomerID != "" && c.CustomerID != nil && *c.CustomerID == owner.CustomerID {
		return true
	}
	return owner.AnonymousID != "" && c.AnonymousID != nil && *c.AnonymousID == owner.AnonymousID
}

func shownPrice(v domain.Variant) (int64, bool) {
	switch {
	case v.PriceCents != nil && *v.PriceCents >= 0:
		return *v.PriceCents, true
	case v.ProductPriceCents != nil && *v.ProductPriceCents >= 0:
		return *v.ProductPriceCents, true
	}
	return 0, false
}

func snapshotFromVariant(v domain.Variant, price int64) map[string]interface{} {
	return map[string]interface{}{
		"name":           v.Name,
		"sku":            v.SKU,
		"productId":      v.ProductID,
		"unitPriceCents": price,
		"currency":       v.Currency,
	}
}
