package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/worksite-pm/worksite/internal/auth"
	"github.com/worksite-pm/worksite/internal/shared"
	_ "github.com/worksite-pm/worksite/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	users    map[string]*auth.User
	sessions map[string]*auth.SessionRecord
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: map[string]*auth.User{}, sessions: map[string]*auth.SessionRecord{}}
}

func (s *stubRepo) addUser(t *testing.T, email, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &auth.User{ID: uuid.New(), Email: email, PasswordHash: string(hashed), IsActive: true}
	s.mu.Lock()
	s.users[email] = u
	s.mu.Unlock()
	return u
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) CreateUser(ctx context.Context, email, passwordHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return nil, shared.ErrEmailTaken
	}
	u := &auth.User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, IsActive: true}
	s.users[email] = u
	return u, nil
}

func (s *stubRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return shared.ErrNotFound
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &auth.SessionRecord{ID: id, UserID: userID, CreatedAt: time.Now(), ExpiresAt: expiresAt}
	return nil
}

func (s *stubRepo) FindSession(ctx context.Context, id string) (*auth.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[id]; ok {
		return rec, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.sessions {
		if rec.ExpiresAt.Before(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

type recordingInvalidator struct {
	calls []shared.Principal
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, p shared.Principal) error {
	r.calls = append(r.calls, p)
	return nil
}

type authFixture struct {
	repo     *stubRepo
	sessions *shared.SessionManager
	roles    *recordingInvalidator
	router   chi.Router
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := &authFixture{
		repo:     newStubRepo(),
		sessions: shared.NewSessionManager(client, "test_session", time.Hour, false),
		roles:    &recordingInvalidator{},
		router:   chi.NewRouter(),
	}
	handler := auth.NewHandler(nil, auth.NewService(f.repo), f.sessions, shared.NewCSRFManager("csrfsecret"), f.roles)
	handler.MountRoutes(f.router)
	return f
}

// do runs a request through the session load/commit cycle the app middleware
// performs and returns the response plus the committed session.
func (f *authFixture) do(t *testing.T, method, path, body string, cookie *http.Cookie) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req.WithContext(ctx))
	require.NoError(t, f.sessions.Commit(ctx, res, sess))
	return res, sess
}

func sessionCookie(sm *shared.SessionManager, sess *shared.Session) *http.Cookie {
	return &http.Cookie{Name: sm.CookieName(), Value: sess.ID}
}

func TestLoginSuccessRenewsSessionAndRegistersIt(t *testing.T) {
	f := newAuthFixture(t)
	user := f.repo.addUser(t, "user@test.local", "correctpass")

	_, anon := f.do(t, http.MethodGet, "/csrf", "", nil)
	anonID := anon.ID

	res, sess := f.do(t, http.MethodPost, "/login", `{"email":"user@test.local","password":"correctpass"}`, sessionCookie(f.sessions, anon))
	require.Equal(t, http.StatusOK, res.Code)
	require.NotEqual(t, anonID, sess.ID)
	require.Equal(t, user.ID.String(), sess.User())

	var identity auth.Identity
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &identity))
	require.Equal(t, "user@test.local", identity.Name)

	rec, err := f.repo.FindSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, rec.UserID)

	res, _ = f.do(t, http.MethodGet, "/check", "", sessionCookie(f.sessions, sess))
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestLoginDropsCachedRoles(t *testing.T) {
	f := newAuthFixture(t)
	user := f.repo.addUser(t, "user@test.local", "correctpass")

	res, sess := f.do(t, http.MethodPost, "/login", `{"email":"user@test.local","password":"correctpass"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, f.roles.calls, 1)
	require.Equal(t, user.ID, f.roles.calls[0].UserID)
	require.Equal(t, sess.ID, f.roles.calls[0].SessionID)

	res, _ = f.do(t, http.MethodPost, "/login", `{"email":"user@test.local","password":"wrongpass"}`, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Len(t, f.roles.calls, 1)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.addUser(t, "user@test.local", "correctpass")

	res, sess := f.do(t, http.MethodPost, "/login", `{"email":"user@test.local","password":"wrongpass"}`, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Empty(t, sess.User())
	require.Empty(t, f.repo.sessions)

	res, _ = f.do(t, http.MethodPost, "/login", `{"email":"nobody@test.local","password":"correctpass"}`, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginValidation(t *testing.T) {
	f := newAuthFixture(t)
	res, _ := f.do(t, http.MethodPost, "/login", `{"email":"not-an-email","password":"x"}`, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res, _ = f.do(t, http.MethodPost, "/login", `{"email":"a@b.c","password":"longenough","extra":1}`, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	res, _ := f.do(t, http.MethodPost, "/register", `{"email":"new@test.local","password":"longenough"}`, nil)
	require.Equal(t, http.StatusCreated, res.Code)

	res, _ = f.do(t, http.MethodPost, "/register", `{"email":"new@test.local","password":"longenough"}`, nil)
	require.Equal(t, http.StatusConflict, res.Code)

	res, _ = f.do(t, http.MethodPost, "/login", `{"email":"new@test.local","password":"longenough"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	f := newAuthFixture(t)
	user := f.repo.addUser(t, "user@test.local", "correctpass")
	_, sess := f.do(t, http.MethodPost, "/login", `{"email":"user@test.local","password":"correctpass"}`, nil)
	cookie := sessionCookie(f.sessions, sess)

	res, _ := f.do(t, http.MethodPost, "/logout", "", cookie)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Empty(t, f.repo.sessions)
	require.Len(t, f.roles.calls, 2)
	require.Equal(t, user.ID, f.roles.calls[1].UserID)

	res, _ = f.do(t, http.MethodGet, "/check", "", cookie)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	res, _ = f.do(t, http.MethodGet, "/identity", "", cookie)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestIdentityAndPasswordUpdate(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.addUser(t, "user@test.local", "correctpass")
	_, sess := f.do(t, http.MethodPost, "/login", `{"email":"user@test.local","password":"correctpass"}`, nil)
	cookie := sessionCookie(f.sessions, sess)

	res, _ := f.do(t, http.MethodGet, "/identity", "", cookie)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"email":"user@test.local"`)

	res, _ = f.do(t, http.MethodPut, "/password", `{"password":"anotherpass"}`, cookie)
	require.Equal(t, http.StatusNoContent, res.Code)

	res, _ = f.do(t, http.MethodPost, "/login", `{"email":"user@test.local","password":"correctpass"}`, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	res, _ = f.do(t, http.MethodPost, "/login", `{"email":"user@test.local","password":"anotherpass"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
}
