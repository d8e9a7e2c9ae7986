package storage

import (
	"context"
	"fmt"
	"time"

	"storefront-checkout/internal/db"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/repository/address"
	"storefront-checkout/internal/repository/cart"
	"storefront-checkout/internal/repository/customer"
	"storefront-checkout/internal/repository/order"
	"storefront-checkout/internal/repository/product"
	"storefront-checkout/internal/repository/project"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Options bound how long a unit of work may hold its connection and locks.
type Options struct {
	// TxTimeout caps the whole transaction. Zero means no cap beyond ctx.
	TxTimeout time.Duration
	// LockTimeout caps each wait on a row lock.
	LockTimeout time.Duration
}

// Postgres is a Store backed by a pgx pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	opts   Options
	repos  Repos
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger, opts Options) *Postgres {
	logger = logging.OrNop(logger)
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	return &Postgres{
		pool:   pool,
		logger: logger,
		opts:   opts,
		repos:  newRepos(pool, logger),
	}
}

func (s *Postgres) Repos() Repos {
	return s.repos
}

func (s *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error {
	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// safe after commit; a cancelled ctx must not leak the connection
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.opts.LockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	if s.opts.TxTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", s.opts.TxTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(ctx, newRepos(tx, s.logger)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("storage: commit", zap.Error(err))
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func newRepos(q db.Querier, logger *zap.Logger) Repos {
	return Repos{
		Projects:  project.NewPostgres(q, logger),
		Carts:     cart.NewPostgres(q, logger),
		Products:  product.NewPostgres(q, logger),
		Customers: customer.NewPostgres(q, logger),
		Addresses: address.NewPostgres(q, logger),
		Orders:    order.NewPostgres(q, logger),
	}
}
