package companies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/worksite-pm/worksite/internal/shared"
)

const codeAttempts = 3

// RoleCatalog reports which roles the loaded policy defines.
type RoleCatalog interface {
	HasRole(role string) bool
}

// RoleCache drops cached role resolutions.
type RoleCache interface {
	Invalidate(ctx context.Context, p shared.Principal) error
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
}

// Auditor records membership changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo    Repository
	catalog RoleCatalog
	cache   RoleCache
	audit   Auditor
	logger  *slog.Logger
	newCode func() string
}

func NewService(repo Repository, catalog RoleCatalog, cache RoleCache, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   cache,
		audit:   audit,
		logger:  logger,
		newCode: generateCode,
	}
}

func generateCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// Create registers a company with creator as its first admin.
func (s *Service) Create(ctx context.Context, creator shared.Principal, form CreateForm) (Company, error) {
	company := Company{
		Name:          strings.TrimSpace(form.Name),
		Address:       strings.TrimSpace(form.Address),
		ContactNumber: strings.TrimSpace(form.ContactNumber),
		Email:         strings.TrimSpace(form.Email),
		Premium:       form.Premium,
		CreatorID:     creator.UserID,
	}
	for attempt := 0; ; attempt++ {
		company.ID = uuid.New()
		company.UniqueCode = s.newCode()
		created, err := s.repo.CreateWithAdmin(ctx, company, shared.RoleAdmin)
		if errors.Is(err, ErrCodeTaken) && attempt+1 < codeAttempts {
			continue
		}
		if err != nil {
			return Company{}, err
		}
		s.invalidateUser(ctx, creator.UserID)
		s.record(ctx, creator, created.ID, "company.create", created.ID.String(), map[string]any{"name": created.Name})
		return created, nil
	}
}

// Join adds p to the company identified by the join code. An empty role
// joins as employee.
func (s *Service) Join(ctx context.Context, p shared.Principal, form JoinForm) (Membership, error) {
	role := strings.TrimSpace(form.Role)
	if role == "" {
		role = shared.RoleEmployee
	}
	if !s.catalog.HasRole(role) {
		return Membership{}, ErrUnknownRole
	}
	if role == shared.RoleAdmin {
		return Membership{}, ErrRoleNotJoinable
	}
	company, err := s.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(form.UniqueCode)))
	if err != nil {
		return Membership{}, err
	}
	if err := s.repo.AddMember(ctx, company.ID, p.UserID, role); err != nil {
		return Membership{}, err
	}
	s.invalidateUser(ctx, p.UserID)
	s.record(ctx, p, company.ID, "company.join", p.UserID.String(), map[string]any{"role": role})
	return Membership{Company: company, Role: role}, nil
}

// Mine lists the companies p belongs to, earliest membership first.
func (s *Service) Mine(ctx context.Context, p shared.Principal) ([]Membership, error) {
	return s.repo.ListForUser(ctx, p.UserID)
}

// Switch verifies that p belongs to companyID and drops the cached role so
// the next decision uses the new tenant. The caller stores companyID in the
// session.
func (s *Service) Switch(ctx context.Context, p shared.Principal, companyID uuid.UUID) (string, error) {
	role, err := s.repo.MemberRole(ctx, companyID, p.UserID)
	if err != nil {
		return "", err
	}
	if err := s.cache.Invalidate(ctx, p); err != nil {
		return "", fmt.Errorf("invalidate role: %w", err)
	}
	s.record(ctx, p, companyID, "company.switch", companyID.String(), map[string]any{"from": p.CompanyID.String()})
	return role, nil
}

// Members lists the members of p's active company.
func (s *Service) Members(ctx context.Context, p shared.Principal) ([]Member, error) {
	companyID, err := s.activeCompany(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, companyID)
}

// SetMemberRole changes the role of userID in p's active company and drops
// that user's cached role.
func (s *Service) SetMemberRole(ctx context.Context, p shared.Principal, userID uuid.UUID, role string) error {
	role = strings.TrimSpace(role)
	if !s.catalog.HasRole(role) {
		return ErrUnknownRole
	}
	companyID, err := s.activeCompany(ctx, p)
	if err != nil {
		return err
	}
	current, err := s.repo.UpdateMemberRole(ctx, companyID, userID, role, shared.RoleAdmin)
	if err != nil {
		return err
	}
	if current == role {
		return nil
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		return fmt.Errorf("invalidate role: %w", err)
	}
	s.record(ctx, p, companyID, "company.member_role", userID.String(), map[string]any{"from": current, "to": role})
	return nil
}

// activeCompany resolves uuid.Nil to the principal's earliest membership.
func (s *Service) activeCompany(ctx context.Context, p shared.Principal) (uuid.UUID, error) {
	if p.CompanyID != uuid.Nil {
		return p.CompanyID, nil
	}
	memberships, err := s.repo.ListForUser(ctx, p.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(memberships) == 0 {
		return uuid.Nil, ErrNotMember
	}
	return memberships[0].Company.ID, nil
}

func (s *Service) invalidateUser(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("invalidate role", slog.String("user", userID.String()), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, p shared.Principal, companyID uuid.UUID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   p.UserID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "company_user",
		EntityID:  entityID,
		Meta:      meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
