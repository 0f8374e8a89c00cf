package companies

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/worksite-pm/worksite/internal/platform/db"
)

// ErrCodeTaken reports a join code collision on insert.
var ErrCodeTaken = errors.New("join code already in use")

type Repository interface {
	CreateWithAdmin(ctx context.Context, company Company, adminRole string) (Company, error)
	FindByCode(ctx context.Context, code string) (Company, error)
	AddMember(ctx context.Context, companyID, userID uuid.UUID, role string) error
	MemberRole(ctx context.Context, companyID, userID uuid.UUID) (string, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error)
	ListMembers(ctx context.Context, companyID uuid.UUID) ([]Member, error)
	// UpdateMemberRole sets the role of userID and returns the role it
	// replaced. It fails with ErrLastAdmin instead of demoting the only
	// holder of adminRole.
	UpdateMemberRole(ctx context.Context, companyID, userID uuid.UUID, role, adminRole string) (string, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const companyColumns = `c.id, c.name, c.address, c.contact_number, c.email, c.premium, c.unique_code, c.creator_id, c.created_at`

func scanCompany(row pgx.Row, extra ...any) (Company, error) {
	var c Company
	dest := append([]any{&c.ID, &c.Name, &c.Address, &c.ContactNumber, &c.Email, &c.Premium, &c.UniqueCode, &c.CreatorID, &c.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Company{}, err
	}
	return c, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// CreateWithAdmin inserts the company and the creator's membership in one
// transaction.
func (r *repository) CreateWithAdmin(ctx context.Context, company Company, adminRole string) (Company, error) {
	var created Company
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO companies AS c (id, name, address, contact_number, email, premium, unique_code, creator_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW()) RETURNING `+companyColumns,
			company.ID, company.Name, company.Address, company.ContactNumber, company.Email, company.Premium, company.UniqueCode, company.CreatorID)
		var err error
		created, err = scanCompany(row)
		if err != nil {
			if isUniqueViolation(err, "companies_unique_code_key") {
				return ErrCodeTaken
			}
			return fmt.Errorf("insert company: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO company_user (company_id, user_id, role, created_at) VALUES ($1, $2, $3, NOW())`,
			created.ID, company.CreatorID, adminRole); err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return Company{}, err
	}
	return created, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies c WHERE c.unique_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, ErrNotFound
	}
	return c, err
}

func (r *repository) AddMember(ctx context.Context, companyID, userID uuid.UUID, role string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO company_user (company_id, user_id, role, created_at) VALUES ($1, $2, $3, NOW())`,
		companyID, userID, role)
	if isUniqueViolation(err, "") {
		return ErrAlreadyMember
	}
	return err
}

func (r *repository) MemberRole(ctx context.Context, companyID, userID uuid.UUID) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM company_user WHERE company_id = $1 AND user_id = $2`, companyID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotMember
	}
	return role, err
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+`, cu.role, cu.created_at
FROM company_user cu JOIN companies c ON c.id = cu.company_id
WHERE cu.user_id = $1 ORDER BY cu.created_at, c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		c, err := scanCompany(rows, &m.Role, &m.JoinedAt)
		if err != nil {
			return nil, err
		}
		m.Company = c
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) ListMembers(ctx context.Context, companyID uuid.UUID) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT cu.user_id, u.email, cu.role, cu.created_at
FROM company_user cu JOIN users u ON u.id = cu.user_id
WHERE cu.company_id = $1 ORDER BY cu.created_at, u.email`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) UpdateMemberRole(ctx context.Context, companyID, userID uuid.UUID, role, adminRole string) (string, error) {
	var previous string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Row locks on the whole company serialize concurrent demotions.
		rows, err := tx.Query(ctx, `SELECT user_id, role FROM company_user WHERE company_id = $1 FOR UPDATE`, companyID)
		if err != nil {
			return fmt.Errorf("lock members: %w", err)
		}
		admins, found := 0, false
		for rows.Next() {
			var (
				member uuid.UUID
				held   string
			)
			if err := rows.Scan(&member, &held); err != nil {
				rows.Close()
				return err
			}
			if held == adminRole {
				admins++
			}
			if member == userID {
				previous, found = held, true
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !found {
			return ErrNotMember
		}
		if previous == role {
			return nil
		}
		if previous == adminRole && admins <= 1 {
			return ErrLastAdmin
		}
		if _, err := tx.Exec(ctx, `UPDATE company_user SET role = $3 WHERE company_id = $1 AND user_id = $2`, companyID, userID, role); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}
