// Package directory adapts agent directories to the eligible-operator query
// the assignment worker needs.
package directory

import (
	"context"

	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/repository"
)

// Directory lists operators eligible for concern assignment.
type Directory interface {
	ListEligible(ctx context.Context, group string, limit int) ([]domain.Operator, error)
}

// PostgresDirectory reads operators from the operators table of one pool.
type PostgresDirectory struct {
	poolID string
	repo   repository.OperatorRepository
}

// NewPostgresDirectory builds a directory over an operator repository.
func NewPostgresDirectory(poolID string, repo repository.OperatorRepository) *PostgresDirectory {
	return &PostgresDirectory{poolID: poolID, repo: repo}
}

func (d *PostgresDirectory) ListEligible(ctx context.Context, group string, limit int) ([]domain.Operator, error) {
	return d.repo.ListEligible(ctx, repository.OperatorFilter{
		PoolID: d.poolID,
		Group:  group,
		Limit:  limit,
	})
}
