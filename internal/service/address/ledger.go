// Package address normalizes inbound addresses and keeps each customer's
// versioned address book with one default per address type.
package address

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	addressrepo "storefront-checkout/internal/repository/address"
	customerrepo "storefront-checkout/internal/repository/customer"

	"go.uber.org/zap"
)

// ErrArchived is returned when an archived address is made default.
var ErrArchived = errors.New("address archived")

// Repos are the repositories the ledger writes through, normally bound to
// one transaction.
type Repos struct {
	Addresses addressrepo.Repository
	Customers customerrepo.Repository
}

// Ledger implements the address book rules. Its methods do not open
// transactions; callers run them inside one.
type Ledger struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(logger *zap.Logger) *Ledger {
	return &Ledger{logger: logging.OrNop(logger), now: time.Now}
}

// Upsert reuses the owner's matching address or creates one, and records a
// version either way. The first address of a type becomes the default.
func (l *Ledger) Upsert(ctx context.Context, r Repos, ownerID string, typ domain.AddressType, f Fields) (*domain.Address, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("address type %q", typ)
	}
	hasDefault, err := l.hasDefault(ctx, r, ownerID, typ)
	if err != nil {
		return nil, err
	}

	want := domain.Address{
		CustomerID: ownerID,
		Type:       typ,
		Name:       f.Name,
		Phone:      f.Phone,
		Email:      f.Email,
		Line1:      f.Line1,
		Line2:      f.Line2,
		City:       f.City,
		State:      f.State,
		PostalCode: f.PostalCode,
		Country:    f.Country,
	}

	var addr *domain.Address
	existing, err := r.Addresses.FindMatch(ctx, want)
	switch {
	case err == nil:
		addr, err = r.Addresses.Touch(ctx, existing.ID, f.Name, f.Email)
		if err != nil {
			return nil, fmt.Errorf("refresh address: %w", err)
		}
		if !hasDefault {
			if err := r.Addresses.MarkDefault(ctx, addr.ID); err != nil {
				return nil, fmt.Errorf("mark default: %w", err)
			}
			addr.IsDefault = true
		}
		l.logger.Debug("address reused", zap.String("address_id", addr.ID), zap.Int("version", addr.Version))
	case errors.Is(err, domain.ErrNotFound):
		want.IsDefault = !hasDefault
		addr, err = r.Addresses.Create(ctx, want)
		if err != nil {
			return nil, fmt.Errorf("create address: %w", err)
		}
		l.logger.Debug("address created", zap.String("address_id", addr.ID), zap.Bool("default", addr.IsDefault))
	default:
		return nil, fmt.Errorf("match address: %w", err)
	}

	if err := r.Addresses.InsertVersion(ctx, *addr); err != nil {
		return nil, fmt.Errorf("record address version: %w", err)
	}
	if !hasDefault && typ == domain.AddressShipping {
		if err := r.Customers.SetDefaultAddress(ctx, ownerID, &addr.ID); err != nil {
			return nil, fmt.Errorf("point customer at default: %w", err)
		}
	}
	return addr, nil
}

// SetDefault makes the address the owner's default of its type.
func (l *Ledger) SetDefault(ctx context.Context, r Repos, ownerID, addressID string) (*domain.Address, error) {
	a, err := r.Addresses.GetByID(ctx, ownerID, addressID)
	if err != nil {
		return nil, err
	}
	if a.ArchivedAt != nil {
		return nil, ErrArchived
	}
	if !a.IsDefault {
		if err := r.Addresses.ClearDefault(ctx, ownerID, a.Type); err != nil {
			return nil, err
		}
		if err := r.Addresses.MarkDefault(ctx, a.ID); err != nil {
			return nil, err
		}
		a.IsDefault = true
	}
	if a.Type == domain.AddressShipping {
		if err := r.Customers.SetDefaultAddress(ctx, ownerID, &a.ID); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Archive soft-deletes the address. Archiving the default promotes the most
// recently updated remaining address, or clears the default.
func (l *Ledger) Archive(ctx context.Context, r Repos, ownerID, addressID string) (*domain.Address, error) {
	a, err := r.Addresses.GetByID(ctx, ownerID, addressID)
	if err != nil {
		return nil, err
	}
	if a.ArchivedAt != nil {
		return a, nil
	}
	at := l.now().UTC()
	archived, err := r.Addresses.SetArchived(ctx, a.ID, &at)
	if err != nil {
		return nil, err
	}
	if a.IsDefault {
		if err := l.promote(ctx, r, ownerID, a.Type); err != nil {
			return nil, err
		}
	}
	return archived, nil
}

// Restore brings an archived address back, as default if the owner has
// none of that type.
func (l *Ledger) Restore(ctx context.Context, r Repos, ownerID, addressID string) (*domain.Address, error) {
	a, err := r.Addresses.GetByID(ctx, ownerID, addressID)
	if err != nil {
		return nil, err
	}
	if a.ArchivedAt == nil {
		return a, nil
	}
	restored, err := r.Addresses.SetArchived(ctx, a.ID, nil)
	if err != nil {
		return nil, err
	}
	hasDefault, err := l.hasDefault(ctx, r, ownerID, a.Type)
	if err != nil {
		return nil, err
	}
	if !hasDefault {
		return l.SetDefault(ctx, r, ownerID, restored.ID)
	}
	return restored, nil
}

// Delete removes the address. An address still referenced by an order is
// archived instead, and the returned flag reports that.
func (l *Ledger) Delete(ctx context.Context, r Repos, ownerID, addressID string) (archived bool, err error) {
	a, err := r.Addresses.GetByID(ctx, ownerID, addressID)
	if err != nil {
		return false, err
	}
	inUse, err := r.Addresses.InUse(ctx, a.ID)
	if err != nil {
		return false, err
	}
	if inUse {
		l.logger.Info("address in use, archiving instead", zap.String("address_id", a.ID))
		if _, err := l.Archive(ctx, r, ownerID, a.ID); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := r.Addresses.Delete(ctx, ownerID, a.ID); err != nil {
		return false, err
	}
	if a.IsDefault {
		if err := l.promote(ctx, r, ownerID, a.Type); err != nil {
			return false, err
		}
	}
	return false, nil
}

// List returns the owner's addresses, default first.
func (l *Ledger) List(ctx context.Context, r Repos, ownerID string, typ domain.AddressType, includeArchived bool) ([]domain.Address, error) {
	return r.Addresses.List(ctx, ownerID, typ, includeArchived)
}

func (l *Ledger) promote(ctx context.Context, r Repos, ownerID string, typ domain.AddressType) error {
	next, err := r.Addresses.LatestActive(ctx, ownerID, typ)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if typ == domain.AddressShipping {
			return r.Customers.SetDefaultAddress(ctx, ownerID, nil)
		}
		return nil
	}
	if err := r.Addresses.MarkDefault(ctx, next.ID); err != nil {
		return err
	}
	l.logger.Debug("address promoted to default", zap.String("address_id", next.ID), zap.String("type", string(typ)))
	if typ == domain.AddressShipping {
		return r.Customers.SetDefaultAddress(ctx, ownerID, &next.ID)
	}
	return nil
}

func (l *Ledger) hasDefault(ctx context.Context, r Repos, ownerID string, typ domain.AddressType) (bool, error) {
	_, err := r.Addresses.GetDefault(ctx, ownerID, typ)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
