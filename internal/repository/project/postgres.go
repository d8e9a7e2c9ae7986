package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type postgresRepo struct {
	q      db.Querier
	logger *zap.Logger
}

func NewPostgres(q db.Querier, logger *zap.Logger) Repository {
	return &postgresRepo{q: q, logger: logging.OrNop(logger)}
}

func (r *postgresRepo) GetByKey(ctx context.Context, key string) (*domain.Project, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrNotFound
	}
	var p domain.Project
	err := r.q.QueryRow(ctx, `
SELECT id::text, key, name, created_at
FROM projects
WHERE key = $1
`, key).Scan(&p.ID, &p.Key, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %q: %w", key, err)
	}
	return &p, nil
}

// Create inserts the project, or renames an existing one with the same key.
func (r *postgresRepo) Create(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	out := domain.Project{Key: strings.TrimSpace(project.Key), Name: project.Name}
	if out.Key == "" {
		return nil, errors.New("project key required")
	}
	if out.Name == "" {
		out.Name = out.Key
	}
	err := r.q.QueryRow(ctx, `
INSERT INTO projects (key, name)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text, created_at
`, out.Key, out.Name).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert project %q: %w", out.Key, err)
	}
	r.logger.Debug("project repo: upserted", zap.String("project_id", out.ID), zap.String("key", out.Key))
	return &out, nil
}
