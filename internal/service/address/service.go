package address

import (
	"context"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/storage"
)

// Service runs ledger operations in their own unit of work for the address
// book endpoints.
type Service struct {
	store      storage.Store
	ledger     *Ledger
	normalizer *Normalizer
}

func NewService(store storage.Store, ledger *Ledger, normalizer *Normalizer) *Service {
	return &Service{store: store, ledger: ledger, normalizer: normalizer}
}

// ReposOf narrows a transaction's repositories to the ones the ledger uses.
func ReposOf(tx storage.Repos) Repos {
	return Repos{Addresses: tx.Addresses, Customers: tx.Customers}
}

func (s *Service) Save(ctx context.Context, ownerID string, typ domain.AddressType, in Input) (*domain.Address, error) {
	f, err := s.normalizer.Normalize(in)
	if err != nil {
		return nil, err
	}
	var out *domain.Address
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repos) error {
		var err error
		out, err = s.ledger.Upsert(ctx, ReposOf(tx), ownerID, typ, f)
		return err
	})
	return out, err
}

func (s *Service) SetDefault(ctx context.Context, ownerID, addressID string) (*domain.Address, error) {
	return s.run(ctx, func(ctx context.Context, r Repos) (*domain.Address, error) {
		return s.ledger.SetDefault(ctx, r, ownerID, addressID)
	})
}

func (s *Service) Archive(ctx context.Context, ownerID, addressID string) (*domain.Address, error) {
	return s.run(ctx, func(ctx context.Context, r Repos) (*domain.Address, error) {
		return s.ledger.Archive(ctx, r, ownerID, addressID)
	})
}

func (s *Service) Restore(ctx context.Context, ownerID, addressID string) (*domain.Address, error) {
	return s.run(ctx, func(ctx context.Context, r Repos) (*domain.Address, error) {
		return s.ledger.Restore(ctx, r, ownerID, addressID)
	})
}

func (s *Service) Delete(ctx context.Context, ownerID, addressID string) (archived bool, err error) {
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repos) error {
		var err error
		archived, err = s.ledger.Delete(ctx, ReposOf(tx), ownerID, addressID)
		return err
	})
	return archived, err
}

func (s *Service) List(ctx context.Context, ownerID string, typ domain.AddressType, includeArchived bool) ([]domain.Address, error) {
	return s.ledger.List(ctx, ReposOf(s.store.Repos()), ownerID, typ, includeArchived)
}

func (s *Service) Versions(ctx context.Context, ownerID, addressID string) ([]domain.AddressVersion, error) {
	repos := s.store.Repos()
	if _, err := repos.Addresses.GetByID(ctx, ownerID, addressID); err != nil {
		return nil, err
	}
	return repos.Addresses.ListVersions(ctx, addressID)
}

func (s *Service) run(ctx context.Context, fn func(ctx context.Context, r Repos) (*domain.Address, error)) (*domain.Address, error) {
	var out *domain.Address
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repos) error {
		var err error
		out, err = fn(ctx, ReposOf(tx))
		return err
	})
	return out, err
}
