package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository looks up membership roles.
type Repository interface {
	// FindMembership returns the membership of userID in companyID. A nil
	// companyID selects the user's earliest membership.
	FindMembership(ctx context.Context, userID, companyID uuid.UUID) (Membership, error)
}

// Querier is the subset of pgxpool.Pool used by PGRepository.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository reads memberships from the company_user table.
type PGRepository struct {
	db Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool}
}

// NewRepositoryWithQuerier builds a repository over any Querier.
func NewRepositoryWithQuerier(q Querier) *PGRepository {
	return &PGRepository{db: q}
}

const (
	findMembershipSQL = `SELECT user_id, company_id, role, created_at FROM company_user WHERE user_id = $1 AND company_id = $2`
	findPrimarySQL    = `SELECT user_id, company_id, role, created_at FROM company_user WHERE user_id = $1 ORDER BY created_at, company_id LIMIT 1`
)

// FindMembership implements Repository. Missing rows map to ErrNotFound and
// every other failure is wrapped in ErrBackendUnavailable.
func (r *PGRepository) FindMembership(ctx context.Context, userID, companyID uuid.UUID) (Membership, error) {
	var row pgx.Row
	if companyID == uuid.Nil {
		row = r.db.QueryRow(ctx, findPrimarySQL, userID)
	} else {
		row = r.db.QueryRow(ctx, findMembershipSQL, userID, companyID)
	}
	var m Membership
	if err := row.Scan(&m.UserID, &m.CompanyID, &m.Role, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrNotFound
		}
		return Membership{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return m, nil
}

var _ Repository = (*PGRepository)(nil)
