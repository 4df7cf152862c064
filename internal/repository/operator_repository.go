package repository

import (
	"context"

	"github.com/dalscooter/concern-service/internal/domain"
)

// OperatorRepository reads the operator directory table.
type OperatorRepository interface {
	ListEligible(ctx context.Context, filter OperatorFilter) ([]domain.Operator, error)
}

// OperatorFilter defines query params for eligible operator listing.
type OperatorFilter struct {
	PoolID string
	Group  string
	Limit  int
}

type operatorRepository struct {
	db DB
}

// NewOperatorRepository instantiates the repository.
func NewOperatorRepository(db DB) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) ListEligible(ctx context.Context, filter OperatorFilter) ([]domain.Operator, error) {
	const query = `
        SELECT operator_id, group_name, email, name
        FROM operators
        WHERE pool_id=$1 AND group_name=$2 AND enabled
        ORDER BY operator_id
        LIMIT $3`

	limit := filter.Limit
	if limit <= 0 {
		limit = 60
	}

	rows, err := r.db.Query(ctx, query, filter.PoolID, filter.Group, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Operator
	for rows.Next() {
		var op domain.Operator
		if err := rows.Scan(&op.ID, &op.Group, &op.Email, &op.Name); err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	return result, rows.Err()
}
