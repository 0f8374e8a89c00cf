package companies_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/worksite-pm/worksite/internal/companies"
	"github.com/worksite-pm/worksite/internal/policy"
	"github.com/worksite-pm/worksite/internal/rbac"
	"github.com/worksite-pm/worksite/internal/roles"
	"github.com/worksite-pm/worksite/internal/shared"
)

type memberRow struct {
	role   string
	joined time.Time
}

// memRepo backs both the company service and the role resolver so role
// changes are observable through the gate.
type memRepo struct {
	mu        sync.Mutex
	companies map[uuid.UUID]companies.Company
	members   map[uuid.UUID]map[uuid.UUID]memberRow
	clock     time.Time
	codeTaken int
}

func newMemRepo() *memRepo {
	return &memRepo{
		companies: map[uuid.UUID]companies.Company{},
		members:   map[uuid.UUID]map[uuid.UUID]memberRow{},
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memRepo) CreateWithAdmin(ctx context.Context, c companies.Company, adminRole string) (companies.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codeTaken > 0 {
		m.codeTaken--
		return companies.Company{}, companies.ErrCodeTaken
	}
	c.CreatedAt = m.tick()
	m.companies[c.ID] = c
	m.members[c.ID] = map[uuid.UUID]memberRow{c.CreatorID: {role: adminRole, joined: c.CreatedAt}}
	return c, nil
}

func (m *memRepo) FindByCode(ctx context.Context, code string) (companies.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if c.UniqueCode == code {
			return c, nil
		}
	}
	return companies.Company{}, companies.ErrNotFound
}

func (m *memRepo) AddMember(ctx context.Context, companyID, userID uuid.UUID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[companyID][userID]; ok {
		return companies.ErrAlreadyMember
	}
	m.members[companyID][userID] = memberRow{role: role, joined: m.tick()}
	return nil
}

func (m *memRepo) MemberRole(ctx context.Context, companyID, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.members[companyID][userID]
	if !ok {
		return "", companies.ErrNotMember
	}
	return row.role, nil
}

func (m *memRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]companies.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []companies.Membership
	for companyID, rows := range m.members {
		if row, ok := rows[userID]; ok {
			out = append(out, companies.Membership{Company: m.companies[companyID], Role: row.role, JoinedAt: row.joined})
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].JoinedAt.Before(out[j-1].JoinedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (m *memRepo) ListMembers(ctx context.Context, companyID uuid.UUID) ([]companies.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []companies.Member
	for userID, row := range m.members[companyID] {
		out = append(out, companies.Member{UserID: userID, Email: userID.String() + "@test.local", Role: row.role, JoinedAt: row.joined})
	}
	return out, nil
}

func (m *memRepo) UpdateMemberRole(ctx context.Context, companyID, userID uuid.UUID, role, adminRole string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.members[companyID][userID]
	if !ok {
		return "", companies.ErrNotMember
	}
	previous := row.role
	if previous == adminRole && role != adminRole {
		admins := 0
		for _, r := range m.members[companyID] {
			if r.role == adminRole {
				admins++
			}
		}
		if admins <= 1 {
			return "", companies.ErrLastAdmin
		}
	}
	row.role = role
	m.members[companyID][userID] = row
	return previous, nil
}

func (m *memRepo) FindMembership(ctx context.Context, userID, companyID uuid.UUID) (roles.Membership, error) {
	if companyID == uuid.Nil {
		list, _ := m.ListForUser(ctx, userID)
		if len(list) == 0 {
			return roles.Membership{}, roles.ErrNotFound
		}
		return roles.Membership{UserID: userID, CompanyID: list[0].Company.ID, Role: list[0].Role}, nil
	}
	role, err := m.MemberRole(ctx, companyID, userID)
	if err != nil {
		return roles.Membership{}, roles.ErrNotFound
	}
	return roles.Membership{UserID: userID, CompanyID: companyID, Role: role}, nil
}

type activeSessions struct{}

func (activeSessions) SessionActive(ctx context.Context, p shared.Principal) (bool, error) {
	return p.Authenticated(), nil
}

type auditTrail struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditTrail) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type env struct {
	repo     *memRepo
	resolver *roles.Resolver
	gate     *rbac.Gate
	audit    *auditTrail
	svc      *companies.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	set, err := policy.Default()
	require.NoError(t, err)
	eval, err := policy.NewEvaluator(set)
	require.NoError(t, err)
	repo := newMemRepo()
	resolver := roles.NewResolver(repo, roles.NewMemoryCache(0))
	trail := &auditTrail{}
	return &env{
		repo:     repo,
		resolver: resolver,
		gate:     rbac.NewGate(activeSessions{}, resolver, eval),
		audit:    trail,
		svc:      companies.NewService(repo, set, resolver, trail, nil),
	}
}

func newPrincipal() shared.Principal {
	return shared.Principal{UserID: uuid.New(), SessionID: uuid.NewString()}
}

func TestCreateMakesCreatorAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := newPrincipal()

	company, err := e.svc.Create(ctx, owner, companies.CreateForm{Name: " Acme Build ", Email: "ops@acme.test"})
	require.NoError(t, err)
	require.Equal(t, "Acme Build", company.Name)
	require.Len(t, company.UniqueCode, 10)
	require.Equal(t, owner.UserID, company.CreatorID)

	require.True(t, e.gate.Can(ctx, owner, shared.ResourceAdministration, shared.ActionList))
	require.Equal(t, []string{"company.create"}, e.audit.actions)
}

func TestCreateRetriesOnCodeCollision(t *testing.T) {
	e := newEnv(t)
	e.repo.codeTaken = 2
	_, err := e.svc.Create(context.Background(), newPrincipal(), companies.CreateForm{Name: "Acme"})
	require.NoError(t, err)

	e.repo.codeTaken = 3
	_, err = e.svc.Create(context.Background(), newPrincipal(), companies.CreateForm{Name: "Acme"})
	require.ErrorIs(t, err, companies.ErrCodeTaken)
}

func TestJoin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	company, err := e.svc.Create(ctx, newPrincipal(), companies.CreateForm{Name: "Acme"})
	require.NoError(t, err)
	worker := newPrincipal()

	_, err = e.svc.Join(ctx, worker, companies.JoinForm{UniqueCode: company.UniqueCode, Role: "admin"})
	require.ErrorIs(t, err, companies.ErrRoleNotJoinable)
	_, err = e.svc.Join(ctx, worker, companies.JoinForm{UniqueCode: company.UniqueCode, Role: "foreman"})
	require.ErrorIs(t, err, companies.ErrUnknownRole)
	_, err = e.svc.Join(ctx, worker, companies.JoinForm{UniqueCode: "NOPE"})
	require.ErrorIs(t, err, companies.ErrNotFound)

	require.False(t, e.gate.Can(ctx, worker, shared.ResourceProject, shared.ActionList))

	membership, err := e.svc.Join(ctx, worker, companies.JoinForm{UniqueCode: " " + company.UniqueCode + " "})
	require.NoError(t, err)
	require.Equal(t, shared.RoleEmployee, membership.Role)
	require.True(t, e.gate.Can(ctx, worker, shared.ResourceProject, shared.ActionList))
	require.False(t, e.gate.Can(ctx, worker, shared.ResourceProject, shared.ActionCreate))

	_, err = e.svc.Join(ctx, worker, companies.JoinForm{UniqueCode: company.UniqueCode})
	require.ErrorIs(t, err, companies.ErrAlreadyMember)
}

func TestSwitchChangesEffectiveRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := newPrincipal()

	other, err := e.svc.Create(ctx, newPrincipal(), companies.CreateForm{Name: "Other"})
	require.NoError(t, err)
	_, err = e.svc.Join(ctx, user, companies.JoinForm{UniqueCode: other.UniqueCode})
	require.NoError(t, err)
	own, err := e.svc.Create(ctx, user, companies.CreateForm{Name: "Own"})
	require.NoError(t, err)

	// Earliest membership is the primary company.
	require.False(t, e.gate.Can(ctx, user, shared.ResourceTask, shared.ActionDelete))

	_, err = e.svc.Switch(ctx, user, uuid.New())
	require.ErrorIs(t, err, companies.ErrNotMember)

	role, err := e.svc.Switch(ctx, user, own.ID)
	require.NoError(t, err)
	require.Equal(t, shared.RoleAdmin, role)
	user.CompanyID = own.ID
	require.True(t, e.gate.Can(ctx, user, shared.ResourceTask, shared.ActionDelete))
	require.Contains(t, e.audit.actions, "company.switch")
}

func TestSetMemberRoleInvalidatesCachedRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := newPrincipal()
	company, err := e.svc.Create(ctx, owner, companies.CreateForm{Name: "Acme"})
	require.NoError(t, err)
	worker := newPrincipal()
	_, err = e.svc.Join(ctx, worker, companies.JoinForm{UniqueCode: company.UniqueCode})
	require.NoError(t, err)

	require.False(t, e.gate.Can(ctx, worker, shared.ResourceSettings, shared.ActionRead))

	require.ErrorIs(t, e.svc.SetMemberRole(ctx, owner, worker.UserID, "foreman"), companies.ErrUnknownRole)
	require.ErrorIs(t, e.svc.SetMemberRole(ctx, owner, uuid.New(), shared.RoleAdmin), companies.ErrNotMember)

	require.NoError(t, e.svc.SetMemberRole(ctx, owner, worker.UserID, shared.RoleAdmin))
	require.True(t, e.gate.Can(ctx, worker, shared.ResourceSettings, shared.ActionRead))

	require.NoError(t, e.svc.SetMemberRole(ctx, worker, owner.UserID, shared.RoleEmployee))
	require.False(t, e.gate.Can(ctx, owner, shared.ResourceSettings, shared.ActionRead))
}

func TestSetMemberRoleKeepsLastAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := newPrincipal()
	_, err := e.svc.Create(ctx, owner, companies.CreateForm{Name: "Acme"})
	require.NoError(t, err)

	require.ErrorIs(t, e.svc.SetMemberRole(ctx, owner, owner.UserID, shared.RoleEmployee), companies.ErrLastAdmin)
	require.True(t, e.gate.Can(ctx, owner, shared.ResourceAdministration, shared.ActionUpdate))
}

func TestSetMemberRoleConcurrentDemotionsKeepOneAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := newPrincipal()
	company, err := e.svc.Create(ctx, owner, companies.CreateForm{Name: "Acme"})
	require.NoError(t, err)
	owner.CompanyID = company.ID
	partner := newPrincipal()
	partner.CompanyID = company.ID
	_, err = e.svc.Join(ctx, partner, companies.JoinForm{UniqueCode: company.UniqueCode})
	require.NoError(t, err)
	require.NoError(t, e.svc.SetMemberRole(ctx, owner, partner.UserID, shared.RoleAdmin))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range [][2]shared.Principal{{owner, partner}, {partner, owner}} {
		wg.Add(1)
		go func(i int, actor, target shared.Principal) {
			defer wg.Done()
			errs[i] = e.svc.SetMemberRole(ctx, actor, target.UserID, shared.RoleEmployee)
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, companies.ErrLastAdmin)
			failed++
		}
	}
	require.Equal(t, 1, failed)

	members, err := e.repo.ListMembers(ctx, company.ID)
	require.NoError(t, err)
	admins := 0
	for _, m := range members {
		if m.Role == shared.RoleAdmin {
			admins++
		}
	}
	require.Equal(t, 1, admins)
}

func TestMembersOfActiveCompany(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := newPrincipal()
	company, err := e.svc.Create(ctx, owner, companies.CreateForm{Name: "Acme"})
	require.NoError(t, err)
	_, err = e.svc.Join(ctx, newPrincipal(), companies.JoinForm{UniqueCode: company.UniqueCode})
	require.NoError(t, err)

	members, err := e.svc.Members(ctx, owner)
	require.NoError(t, err)
	require.Len(t, members, 2)

	_, err = e.svc.Members(ctx, newPrincipal())
	require.ErrorIs(t, err, companies.ErrNotMember)
}
