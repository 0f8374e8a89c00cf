package companies_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/worksite-pm/worksite/internal/companies"
	"github.com/worksite-pm/worksite/internal/rbac"
	"github.com/worksite-pm/worksite/internal/shared"
	_ "github.com/worksite-pm/worksite/testing"
)

type httpEnv struct {
	*env
	sessions *shared.SessionManager
	router   chi.Router
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()
	e := newEnv(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	router := chi.NewRouter()
	companies.NewHandler(nil, e.svc, rbac.Middleware{Gate: e.gate}).MountRoutes(router)
	return &httpEnv{env: e, sessions: shared.NewSessionManager(client, "test_session", time.Hour, false), router: router}
}

func (h *httpEnv) do(t *testing.T, p *shared.Principal, method, path, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	if p != nil {
		sess.SetUser(p.UserID.String())
		if p.CompanyID != uuid.Nil {
			sess.SetCompany(p.CompanyID.String())
		}
		p.SessionID = sess.ID
	}
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	return res, sess
}

func TestCompanyRoutesRequireLogin(t *testing.T) {
	h := newHTTPEnv(t)
	res, _ := h.do(t, nil, http.MethodGet, "/", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
	res, _ = h.do(t, nil, http.MethodGet, "/members", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestCreateJoinAndListOverHTTP(t *testing.T) {
	h := newHTTPEnv(t)
	owner := newPrincipal()

	res, _ := h.do(t, &owner, http.MethodPost, "/", `{"name":"Acme","email":"ops@acme.test","premium":true}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var company companies.Company
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &company))
	require.True(t, company.Premium)

	res, _ = h.do(t, &owner, http.MethodPost, "/", `{"name":""}`)
	require.Equal(t, http.StatusBadRequest, res.Code)

	worker := newPrincipal()
	res, _ = h.do(t, &worker, http.MethodPost, "/join", `{"unique_code":"`+company.UniqueCode+`","role":"admin"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	res, _ = h.do(t, &worker, http.MethodPost, "/join", `{"unique_code":"`+company.UniqueCode+`"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	res, _ = h.do(t, &worker, http.MethodPost, "/join", `{"unique_code":"`+company.UniqueCode+`"}`)
	require.Equal(t, http.StatusConflict, res.Code)

	res, _ = h.do(t, &worker, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"role":"employee"`)

	// Member administration is admin only.
	res, _ = h.do(t, &worker, http.MethodGet, "/members", "")
	require.Equal(t, http.StatusForbidden, res.Code)
	res, _ = h.do(t, &owner, http.MethodGet, "/members", "")
	require.Equal(t, http.StatusOK, res.Code)

	res, _ = h.do(t, &worker, http.MethodPut, "/members/"+owner.UserID.String(), `{"role":"employee"}`)
	require.Equal(t, http.StatusForbidden, res.Code)
	res, _ = h.do(t, &owner, http.MethodPut, "/members/"+worker.UserID.String(), `{"role":"admin"}`)
	require.Equal(t, http.StatusNoContent, res.Code)
	res, _ = h.do(t, &worker, http.MethodGet, "/members", "")
	require.Equal(t, http.StatusOK, res.Code)

	res, _ = h.do(t, &owner, http.MethodPut, "/members/not-a-uuid", `{"role":"admin"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestSwitchStoresCompanyInSession(t *testing.T) {
	h := newHTTPEnv(t)
	user := newPrincipal()
	res, _ := h.do(t, &user, http.MethodPost, "/", `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var company companies.Company
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &company))

	res, sess := h.do(t, &user, http.MethodPost, "/switch", `{"company_id":"`+company.ID.String()+`"}`)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, company.ID.String(), sess.Company())

	stranger := newPrincipal()
	res, sess = h.do(t, &stranger, http.MethodPost, "/switch", `{"company_id":"`+company.ID.String()+`"}`)
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Empty(t, sess.Company())
}
