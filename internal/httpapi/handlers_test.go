package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/students"
)

var testSecret = []byte("httpapi-test-secret-0123456789abcdef")

type apiClient struct {
	baseURL    string
	client     *http.Client
	t          *testing.T
	identities *auth.MemoryStore
	api        *API
}

func newTestAPI(t *testing.T, opts ...Option) *apiClient {
	t.Helper()

	identities := auth.NewMemoryStore()
	tokens, err := auth.NewTokens(testSecret, auth.WithTokenTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	gate, err := auth.NewGate(identities, tokens, auth.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	svc, err := students.NewService(students.NewMemoryStore(), gate.Authorizer(), students.WithOwnerLookup(identities))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api, err := New(gate, svc, append([]Option{WithVersion("test")}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:    srv.URL,
		client:     srv.Client(),
		t:          t,
		identities: identities,
		api:        api,
	}
}

// seed stores an enabled identity directly, bypassing registration rules.
func (c *apiClient) seed(email, password string, role auth.Role, affiliation string) *auth.Identity {
	c.t.Helper()
	hash, err := auth.HashPasswordCost(password, bcrypt.MinCost)
	if err != nil {
		c.t.Fatalf("hash: %v", err)
	}
	id, err := c.identities.Save(context.Background(), &auth.Identity{
		Email: email, PasswordHash: hash, Role: role, Affiliation: affiliation, Enabled: true,
	})
	if err != nil {
		c.t.Fatalf("seed %s: %v", email, err)
	}
	return id
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) login(email, password string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, "")
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.t.Fatalf("login %s: unexpected status %d", email, resp.StatusCode)
	}
	payload := decode[tokenResponse](c.t, resp)
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

func TestStudentOwnershipScenario(t *testing.T) {
	c := newTestAPI(t)
	c.seed("a@x.com", "pw123", auth.RoleStudent, "")
	c.seed("b@y.com", "pw456", auth.RoleStudent, "")

	resp := c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "pw123"}, "")
	expectStatus(t, resp, http.StatusOK)
	session := decode[tokenResponse](t, resp)
	if session.Type != "Bearer" || session.Subject != "a@x.com" || session.Role != "STUDENT" {
		t.Fatalf("unexpected login response %+v", session)
	}
	tokenA := session.Token
	tokenB := c.login("b@y.com", "pw456")

	resp = c.do(http.MethodPost, "/api/students", map[string]any{"student_number": "S-1", "total_budget": 1000}, tokenA)
	expectStatus(t, resp, http.StatusCreated)
	own := decode[studentView](t, resp)
	if own.Owner != "a@x.com" {
		t.Fatalf("expected owner a@x.com, got %q", own.Owner)
	}

	resp = c.do(http.MethodPost, "/api/students", map[string]any{"student_number": "S-2"}, tokenB)
	expectStatus(t, resp, http.StatusCreated)
	other := decode[studentView](t, resp)

	resp = c.do(http.MethodGet, "/api/students/"+own.ID, nil, tokenA)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/students/"+other.ID, nil, tokenA)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["error"] != "forbidden" {
		t.Fatalf("unexpected forbidden body %v", body)
	}

	resp = c.do(http.MethodGet, "/api/admin/students", nil, tokenA)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/students/"+own.ID+"/profile", nil, tokenA)
	expectStatus(t, resp, http.StatusOK)
	profile := decode[map[string]any](t, resp)
	alloc, ok := profile["budget_allocation"].(map[string]any)
	if !ok || alloc["rent"] != 400.0 || profile["student_number"] != "S-1" {
		t.Fatalf("unexpected profile %v", profile)
	}
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	c := newTestAPI(t)
	c.seed("a@x.com", "pw123", auth.RoleStudent, "")

	var bodies []map[string]any
	for _, creds := range []map[string]string{
		{"email": "a@x.com", "password": "wrong"},
		{"email": "nobody@x.com", "password": "pw123"},
	} {
		resp := c.do(http.MethodPost, "/api/auth/login", creds, "")
		expectStatus(t, resp, http.StatusUnauthorized)
		body := decode[map[string]any](t, resp)
		delete(body, "request_id")
		bodies = append(bodies, body)
	}
	if bodies[0]["error"] != "invalid credentials" || bodies[0]["error"] != bodies[1]["error"] || len(bodies[0]) != len(bodies[1]) {
		t.Fatalf("login failures differ: %v vs %v", bodies[0], bodies[1])
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	c := newTestAPI(t)
	id := c.seed("a@x.com", "pw123", auth.RoleStudent, "")
	token := c.login("a@x.com", "pw123")

	for _, tok := range []string{"", "garbage", token[:len(token)-2] + "xx"} {
		resp := c.do(http.MethodGet, "/api/users/me", nil, tok)
		expectStatus(t, resp, http.StatusUnauthorized)
		if resp.Header.Get("WWW-Authenticate") == "" {
			t.Fatalf("expected WWW-Authenticate header")
		}
		body := decode[map[string]any](t, resp)
		if body["error"] != "unauthenticated" {
			t.Fatalf("unexpected body %v", body)
		}
	}

	resp := c.do(http.MethodGet, "/api/users/me", nil, token)
	expectStatus(t, resp, http.StatusOK)
	me := decode[identityView](t, resp)
	if me.Email != "a@x.com" || me.Role != "STUDENT" || me.ID != id.ID {
		t.Fatalf("unexpected me %+v", me)
	}

	// Disabling the identity revokes outstanding tokens.
	id.Enabled = false
	if _, err := c.identities.Save(context.Background(), id); err != nil {
		t.Fatalf("disable: %v", err)
	}
	resp = c.do(http.MethodGet, "/api/users/me", nil, token)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestPublicEndpoints(t *testing.T) {
	c := newTestAPI(t, WithReadyProbe(ReadyFunc(func(context.Context) error { return nil })))
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := c.do(http.MethodGet, path, nil, "")
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestReadyzReportsProbeFailure(t *testing.T) {
	c := newTestAPI(t, WithReadyProbe(ReadyFunc(func(context.Context) error { return context.DeadlineExceeded })))
	resp := c.do(http.MethodGet, "/readyz", nil, "")
	expectStatus(t, resp, http.StatusServiceUnavailable)
	body := decode[map[string]any](t, resp)
	if body["status"] != "not_ready" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRegisterFlow(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/api/auth/register", map[string]any{
		"email": "new@x.com", "password": "pw", "first_name": "Ada", "last_name": "Lovelace",
	}, "")
	expectStatus(t, resp, http.StatusCreated)
	session := decode[tokenResponse](t, resp)
	if session.Role != "USER" || session.Token == "" {
		t.Fatalf("unexpected register response %+v", session)
	}

	resp = c.do(http.MethodGet, "/api/users/me", nil, session.Token)
	expectStatus(t, resp, http.StatusOK)
	me := decode[identityView](t, resp)
	if me.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected me %+v", me)
	}

	cases := []struct {
		body map[string]any
		want int
	}{
		{map[string]any{"email": "new@x.com", "password": "pw"}, http.StatusConflict},
		{map[string]any{"email": "bad", "password": "pw"}, http.StatusBadRequest},
		{map[string]any{"email": "adm@x.com", "password": "pw", "role": "ADMIN"}, http.StatusBadRequest},
		{map[string]any{"email": "r@x.com", "password": "pw", "role": "wizard"}, http.StatusBadRequest},
		{map[string]any{"email": "r@x.com", "password": "pw", "extra": true}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := c.do(http.MethodPost, "/api/auth/register", tc.body, "")
		expectStatus(t, resp, tc.want)
		resp.Body.Close()
	}

	resp = c.do(http.MethodPost, "/api/auth/register", map[string]any{
		"email": "s@x.com", "password": "pw", "role": "role_student",
	}, "")
	expectStatus(t, resp, http.StatusCreated)
	if got := decode[tokenResponse](t, resp); got.Role != "STUDENT" || got.ExpiresIn != 3600 {
		t.Fatalf("unexpected student registration %+v", got)
	}
}

func TestRegisterCannotClaimInstitution(t *testing.T) {
	c := newTestAPI(t)
	c.seed("root@x.com", "pw", auth.RoleAdmin, "")
	c.seed("a@x.com", "pw", auth.RoleStudent, "")
	adminToken := c.login("root@x.com", "pw")

	resp := c.do(http.MethodPost, "/api/students", map[string]any{
		"owner": "a@x.com", "university_id": "uni-1", "student_number": "S-1",
	}, adminToken)
	expectStatus(t, resp, http.StatusCreated)
	rec := decode[studentView](t, resp)

	for _, body := range []map[string]any{
		{"email": "evil@x.com", "password": "pw", "role": "UNIVERSITY"},
		{"email": "evil@x.com", "password": "pw", "role": "SPONSOR"},
		{"email": "evil@x.com", "password": "pw", "role": "UNIVERSITY", "affiliation": "uni-1"},
		{"email": "evil@x.com", "password": "pw", "affiliation": "uni-1"},
	} {
		resp = c.do(http.MethodPost, "/api/auth/register", body, "")
		expectStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	}
	resp = c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "evil@x.com", "password": "pw"}, "")
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/auth/register", map[string]any{"email": "evil@x.com", "password": "pw"}, "")
	expectStatus(t, resp, http.StatusCreated)
	evil := decode[tokenResponse](t, resp)

	resp = c.do(http.MethodDelete, "/api/students/"+rec.ID, nil, evil.Token)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
	resp = c.do(http.MethodGet, "/api/students/"+rec.ID, nil, adminToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestAdminAssignsAffiliation(t *testing.T) {
	c := newTestAPI(t)
	c.seed("root@x.com", "pw", auth.RoleAdmin, "")
	c.seed("a@x.com", "pw", auth.RoleStudent, "")
	office := c.seed("office@uni1.edu", "pw", auth.RoleUniversity, "")
	adminToken := c.login("root@x.com", "pw")
	officeToken := c.login("office@uni1.edu", "pw")

	resp := c.do(http.MethodPost, "/api/students", map[string]any{
		"owner": "a@x.com", "university_id": "uni-1", "student_number": "S-1",
	}, adminToken)
	expectStatus(t, resp, http.StatusCreated)
	rec := decode[studentView](t, resp)

	// Without an affiliation the office reaches no record.
	resp = c.do(http.MethodGet, "/api/students/"+rec.ID, nil, officeToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodPut, "/api/users/"+office.ID+"/affiliation", map[string]string{"affiliation": "uni-1"}, officeToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodPut, "/api/users/"+office.ID+"/affiliation", map[string]any{}, adminToken)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.do(http.MethodPut, "/api/users/"+office.ID+"/affiliation", map[string]string{"affiliation": " uni-1 "}, adminToken)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[identityView](t, resp); got.Affiliation != "uni-1" {
		t.Fatalf("unexpected affiliation %q", got.Affiliation)
	}

	resp = c.do(http.MethodGet, "/api/students/"+rec.ID, nil, officeToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestGetUserSelfOrAdmin(t *testing.T) {
	c := newTestAPI(t)
	c.seed("root@x.com", "pw", auth.RoleAdmin, "")
	a := c.seed("a@x.com", "pw", auth.RoleUser, "")
	b := c.seed("b@x.com", "pw", auth.RoleUser, "")
	adminToken := c.login("root@x.com", "pw")
	aToken := c.login("a@x.com", "pw")

	resp := c.do(http.MethodGet, "/api/users/"+a.ID, nil, aToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/users/"+b.ID, nil, aToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/users/missing", nil, aToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/users/"+b.ID, nil, adminToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/users/missing", nil, adminToken)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestAdminManagesRoles(t *testing.T) {
	c := newTestAPI(t)
	c.seed("root@x.com", "pw", auth.RoleAdmin, "")
	user := c.seed("u@x.com", "pw", auth.RoleUser, "")
	adminToken := c.login("root@x.com", "pw")
	userToken := c.login("u@x.com", "pw")

	resp := c.do(http.MethodPut, "/api/users/"+user.ID+"/role", map[string]string{"role": "ADMIN"}, userToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/users", nil, userToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/users", nil, adminToken)
	expectStatus(t, resp, http.StatusOK)
	list := decode[map[string][]identityView](t, resp)
	if len(list["users"]) != 2 {
		t.Fatalf("unexpected users %v", list)
	}

	resp = c.do(http.MethodPut, "/api/users/"+user.ID+"/role", map[string]string{"role": "sponsor"}, adminToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// The existing token picks up the new role on the next request.
	resp = c.do(http.MethodGet, "/api/users/me", nil, userToken)
	expectStatus(t, resp, http.StatusOK)
	if me := decode[identityView](t, resp); me.Role != "SPONSOR" {
		t.Fatalf("expected SPONSOR, got %s", me.Role)
	}

	resp = c.do(http.MethodPut, "/api/users/"+user.ID+"/enabled", map[string]bool{"enabled": false}, adminToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = c.do(http.MethodGet, "/api/users/me", nil, userToken)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = c.do(http.MethodPut, "/api/users/missing/role", map[string]string{"role": "USER"}, adminToken)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestChangePasswordEndpoint(t *testing.T) {
	c := newTestAPI(t)
	c.seed("a@x.com", "pw123", auth.RoleStudent, "")
	token := c.login("a@x.com", "pw123")

	resp := c.do(http.MethodPut, "/api/users/me/password", map[string]string{"current_password": "nope", "new_password": "next"}, token)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = c.do(http.MethodPut, "/api/users/me/password", map[string]string{"current_password": "pw123", "new_password": "next"}, token)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	c.login("a@x.com", "next")
}

func TestUniversityAffiliation(t *testing.T) {
	c := newTestAPI(t)
	c.seed("a@x.com", "pw", auth.RoleStudent, "")
	c.seed("office@uni1.edu", "pw", auth.RoleUniversity, "uni-1")
	c.seed("office@uni2.edu", "pw", auth.RoleUniversity, "uni-2")
	uni1 := c.login("office@uni1.edu", "pw")
	uni2 := c.login("office@uni2.edu", "pw")

	resp := c.do(http.MethodPost, "/api/students", map[string]any{"owner": "a@x.com", "student_number": "S-1"}, uni1)
	expectStatus(t, resp, http.StatusCreated)
	rec := decode[studentView](t, resp)
	if rec.UniversityID != "uni-1" {
		t.Fatalf("expected affiliation defaulted, got %q", rec.UniversityID)
	}

	resp = c.do(http.MethodPut, "/api/students/"+rec.ID, map[string]any{"major": "Law"}, uni2)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodPut, "/api/students/"+rec.ID, map[string]any{"major": "Law"}, uni1)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[studentView](t, resp); got.Major != "Law" {
		t.Fatalf("unexpected update %+v", got)
	}

	resp = c.do(http.MethodDelete, "/api/students/"+rec.ID, nil, uni2)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
	resp = c.do(http.MethodDelete, "/api/students/"+rec.ID, nil, uni1)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
	resp = c.do(http.MethodGet, "/api/students/"+rec.ID, nil, uni1)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/students", map[string]any{"owner": "ghost@x.com", "student_number": "S-2"}, uni1)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}
