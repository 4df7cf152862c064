package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dalscooter/concern-service/internal/domain"
)

// ErrConcernNotFound is returned by Get when no record exists.
var ErrConcernNotFound = errors.New("concern not found")

// ConcernRepository persists concern records keyed by concern id.
type ConcernRepository interface {
	// Upsert stores c unless a record with the same id exists. It returns the
	// record held by the store and whether this call created it.
	Upsert(ctx context.Context, c *domain.Concern) (*domain.Concern, bool, error)
	Get(ctx context.Context, id string) (*domain.Concern, error)
}

type concernRepository struct {
	db          DB
	insertQuery string
	selectQuery string
}

const concernColumns = `concern_id, submitter_email, booking_ref, concern_text, type, submitted_at,
        assigned_operator_id, assigned_operator_email, assigned_operator_name, status, correlation_id, created_at`

// NewConcernRepository instantiates the repository over the given table.
func NewConcernRepository(db DB, table string) ConcernRepository {
	if table == "" {
		table = "concerns"
	}
	ident := pgx.Identifier{table}.Sanitize()
	return &concernRepository{
		db: db,
		insertQuery: fmt.Sprintf(`
        INSERT INTO %s (concern_id, submitter_email, booking_ref, concern_text, type, submitted_at,
            assigned_operator_id, assigned_operator_email, assigned_operator_name, status, correlation_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (concern_id) DO NOTHING
        RETURNING created_at`, ident),
		selectQuery: fmt.Sprintf(`
        SELECT %s
        FROM %s WHERE concern_id=$1`, concernColumns, ident),
	}
}

func (r *concernRepository) Upsert(ctx context.Context, c *domain.Concern) (*domain.Concern, bool, error) {
	err := r.db.QueryRow(ctx, r.insertQuery,
		c.ID,
		c.SubmitterEmail,
		c.BookingRef,
		c.ConcernText,
		c.Type,
		c.SubmittedAt,
		c.AssignedOperatorID,
		c.AssignedOperatorEmail,
		c.AssignedOperatorName,
		string(c.Status),
		c.CorrelationID,
	).Scan(&c.CreatedAt)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Another delivery stored this id first; its record is authoritative.
	existing, err := r.Get(ctx, c.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *concernRepository) Get(ctx context.Context, id string) (*domain.Concern, error) {
	var (
		c      domain.Concern
		status string
	)
	if err := r.db.QueryRow(ctx, r.selectQuery, id).Scan(
		&c.ID,
		&c.SubmitterEmail,
		&c.BookingRef,
		&c.ConcernText,
		&c.Type,
		&c.SubmittedAt,
		&c.AssignedOperatorID,
		&c.AssignedOperatorEmail,
		&c.AssignedOperatorName,
		&status,
		&c.CorrelationID,
		&c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConcernNotFound
		}
		return nil, err
	}
	c.Status = domain.ConcernStatus(status)
	return &c, nil
}
