package filters

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdesk/taskdesk/internal/auth"
	"github.com/taskdesk/taskdesk/internal/rbac"
)

const testReviewerRole = "/formsflow/formsflow-reviewer"

var client = auth.Principal{UserName: "carl", Tenant: "acme", Roles: []string{"/formsflow/formsflow-client"}}

type testServer struct {
	t        *testing.T
	router   http.Handler
	verifier *auth.Verifier
}

func newTestServer(t *testing.T, svc FilterService) *testServer {
	t.Helper()
	verifier := auth.NewVerifier("test-secret", "")
	handler := NewHandler(nil, svc, NewSchema(), rbac.Middleware{}, testReviewerRole)

	r := chi.NewRouter()
	r.Use(auth.Middleware{Verifier: verifier}.Authenticate)
	r.Route("/filter", handler.MountRoutes)
	return &testServer{t: t, router: r, verifier: verifier}
}

func (s *testServer) do(caller auth.Principal, method, target, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	token, err := s.verifier.Issue(caller, time.Minute)
	require.NoError(s.t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestNonReviewerIsForbiddenEverywhere(t *testing.T) {
	repo := newMemRepository()
	seeded := repo.seed(Filter{Name: "a", Tenant: "acme", CreatedBy: "carl"})
	srv := newTestServer(t, NewService(repo, nil, nil, nil))

	requests := []struct{ method, target, body string }{
		{http.MethodGet, "/filter", ""},
		{http.MethodPost, "/filter", `{"name":"Test"}`},
		{http.MethodPost, "/filter", `not json`},
		{http.MethodGet, "/filter/user", ""},
		{http.MethodGet, "/filter/1", ""},
		{http.MethodPut, "/filter/1", `{"name":"Test"}`},
		{http.MethodDelete, "/filter/1", ""},
	}
	for _, rq := range requests {
		t.Run(rq.method+" "+rq.target, func(t *testing.T) {
			rr := srv.do(client, rq.method, rq.target, rq.body)
			assert.Equal(t, http.StatusForbidden, rr.Code)
			assert.JSONEq(t, `{"type":"Authorization error","message":"Permission denied"}`, rr.Body.String())
		})
	}

	stored, err := repo.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stored.Status)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	srv := newTestServer(t, NewService(newMemRepository(), nil, nil, nil))

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/filter", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	srv := newTestServer(t, NewService(newMemRepository(), nil, nil, nil))

	body := `{"name":"Test","criteria":{"includeAssignedTasks":true},"roles":["/reviewer"]}`
	rr := srv.do(reviewer, http.MethodPost, "/filter", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	created := decodeMap(t, rr)
	assert.Equal(t, float64(1), created["id"])
	assert.Equal(t, "active", created["status"])
	assert.Equal(t, "Test", created["name"])
	assert.Equal(t, []any{"/reviewer"}, created["roles"])
	assert.Equal(t, "acme", created["tenant"])
	assert.Equal(t, "jane", created["createdBy"])
	assert.NotEmpty(t, created["created"])

	rr = srv.do(reviewer, http.MethodGet, "/filter/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, created, decodeMap(t, rr))
}

func TestCreateRejectsInvalidPayloadWithoutDetail(t *testing.T) {
	repo := newMemRepository()
	srv := newTestServer(t, NewService(repo, nil, nil, nil))

	rr := srv.do(reviewer, http.MethodPost, "/filter", `{"name":"","criteria":{"condition":"NEVER"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"type":"Bad request error","message":"Invalid request data"}`, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "condition")
	assert.NotContains(t, rr.Body.String(), "required")

	list, err := repo.ListActive(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListEndpoints(t *testing.T) {
	repo := newMemRepository()
	repo.seed(Filter{Name: "mine", Tenant: "acme", CreatedBy: "jane"})
	repo.seed(Filter{Name: "theirs", Tenant: "acme", CreatedBy: "joe", Users: []string{"joe"}})
	srv := newTestServer(t, NewService(repo, nil, nil, nil))

	rr := srv.do(reviewer, http.MethodGet, "/filter", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var all []Filter
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rr = srv.do(reviewer, http.MethodGet, "/filter/user", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var mine []Filter
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "mine", mine[0].Name)

	rr = srv.do(outsider, http.MethodGet, "/filter", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestRowLevelPermissionMentionsFilterID(t *testing.T) {
	repo := newMemRepository()
	repo.seed(Filter{ID: 17, Name: "a", Tenant: "acme", CreatedBy: "jane"})
	srv := newTestServer(t, NewService(repo, nil, nil, nil))

	cases := []struct {
		caller auth.Principal
		method string
		body   string
	}{
		{outsider, http.MethodGet, ""},
		{peer, http.MethodPut, `{"name":"renamed"}`},
		{peer, http.MethodDelete, ""},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			rr := srv.do(tc.caller, tc.method, "/filter/17", tc.body)
			assert.Equal(t, http.StatusForbidden, rr.Code)
			assert.JSONEq(t, `{"type":"Permission Denied","message":"Access to filter id - 17 is prohibited."}`, rr.Body.String())
		})
	}
}

func TestBusinessErrorIsPassedThrough(t *testing.T) {
	repo := newMemRepository()
	repo.seed(Filter{ID: 9, Name: "gone", Tenant: "acme", CreatedBy: "jane", Status: StatusInactive})
	srv := newTestServer(t, NewService(repo, nil, nil, nil))

	cases := []struct {
		name, method, target, body string
	}{
		{"get missing", http.MethodGet, "/filter/5", ""},
		{"delete missing", http.MethodDelete, "/filter/5", ""},
		{"put missing", http.MethodPut, "/filter/5", `{"name":"x"}`},
		{"get inactive", http.MethodGet, "/filter/9", ""},
		{"put inactive", http.MethodPut, "/filter/9", `{"name":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := srv.do(reviewer, tc.method, tc.target, tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.JSONEq(t, `{"type":"Bad request error","code":"FILTER_NOT_FOUND","message":"The specified filter not found"}`, rr.Body.String())
		})
	}

	stored, err := repo.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "gone", stored.Name)
}

func TestUpdateFilterEndpoint(t *testing.T) {
	repo := newMemRepository()
	repo.seed(Filter{ID: 3, Name: "old", Tenant: "acme", CreatedBy: "jane"})
	srv := newTestServer(t, NewService(repo, nil, nil, nil))

	rr := srv.do(reviewer, http.MethodPut, "/filter/3", `{"name":"new","variables":[{"name":"amount","label":"Amount"}],"properties":{"priority":2}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeMap(t, rr)
	assert.Equal(t, "new", body["name"])
	assert.Equal(t, "jane", body["modifiedBy"])
	assert.NotNil(t, body["modified"])

	rr = srv.do(reviewer, http.MethodPut, "/filter/3", `{"variables":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"type":"Bad request error","message":"Invalid request data"}`, rr.Body.String())
}

func TestDeleteIsRepeatable(t *testing.T) {
	repo := newMemRepository()
	repo.seed(Filter{ID: 8, Name: "a", Tenant: "acme", CreatedBy: "jane"})
	srv := newTestServer(t, NewService(repo, nil, nil, nil))

	for i := 0; i < 2; i++ {
		rr := srv.do(reviewer, http.MethodDelete, "/filter/8", "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `"Deleted"`, rr.Body.String())
	}

	rr := srv.do(reviewer, http.MethodGet, "/filter/8", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNonNumericIDDoesNotMatch(t *testing.T) {
	srv := newTestServer(t, NewService(newMemRepository(), nil, nil, nil))

	rr := srv.do(reviewer, http.MethodGet, "/filter/abc", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type failingService struct {
	FilterService
	err error
}

func (s failingService) ListFilters(context.Context, auth.Principal) ([]Filter, error) {
	return nil, s.err
}

func (s failingService) UpdateFilter(context.Context, auth.Principal, int64, FilterInput) (Filter, error) {
	return Filter{}, s.err
}

func TestUnexpectedErrorsAreInternal(t *testing.T) {
	srv := newTestServer(t, failingService{err: errors.New("database is on fire")})

	rr := srv.do(reviewer, http.MethodGet, "/filter", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "fire")

	rr = srv.do(reviewer, http.MethodPut, "/filter/1", `{"name":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"type":"Internal server error","message":"Unexpected error"}`, rr.Body.String())
}
