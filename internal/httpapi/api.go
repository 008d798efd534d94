package httpapi

import (
	"context"
	"errors"
	"net/http"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/obs"
	"abroadguide.org/internal/students"
)

const defaultMaxBodyBytes = int64(1 << 20)

// ReadyProbe checks readiness, typically by pinging the database.
type ReadyProbe interface {
	Check(ctx context.Context) error
}

// ReadyFunc adapts a function to ReadyProbe.
type ReadyFunc func(ctx context.Context) error

func (f ReadyFunc) Check(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// API is the HTTP layer of the gateway.
type API struct {
	mux        *http.ServeMux
	gate       *auth.Gate
	students   *students.Service
	readyProbe ReadyProbe
	version    string
	maxBody    int64
}

// Option configures API behavior.
type Option func(*API)

// WithReadyProbe sets the readiness check behind /readyz.
func WithReadyProbe(p ReadyProbe) Option {
	return func(a *API) {
		if p != nil {
			a.readyProbe = p
		}
	}
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// New wires the routes. gate and svc are required.
func New(gate *auth.Gate, svc *students.Service, opts ...Option) (*API, error) {
	if gate == nil {
		return nil, errors.New("httpapi: auth gate is required")
	}
	if svc == nil {
		return nil, errors.New("httpapi: students service is required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		gate:       gate,
		students:   svc,
		readyProbe: ReadyFunc(nil),
		version:    "dev",
		maxBody:    defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	adminOnly := a.RequireRole()

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /api/auth/register", a.handleRegister)

	a.mux.HandleFunc("GET /api/users/me", a.handleMe)
	a.mux.HandleFunc("PUT /api/users/me/password", a.handleChangePassword)
	a.mux.Handle("GET /api/users", adminOnly(http.HandlerFunc(a.handleListUsers)))
	a.mux.HandleFunc("GET /api/users/{id}", a.handleGetUser)
	a.mux.Handle("PUT /api/users/{id}/role", adminOnly(http.HandlerFunc(a.handleSetRole)))
	a.mux.Handle("PUT /api/users/{id}/enabled", adminOnly(http.HandlerFunc(a.handleSetEnabled)))
	a.mux.Handle("PUT /api/users/{id}/affiliation", adminOnly(http.HandlerFunc(a.handleSetAffiliation)))

	a.mux.HandleFunc("POST /api/students", a.handleCreateStudent)
	a.mux.HandleFunc("GET /api/students/{id}", a.handleGetStudent)
	a.mux.HandleFunc("PUT /api/students/{id}", a.handleUpdateStudent)
	a.mux.HandleFunc("DELETE /api/students/{id}", a.handleDeleteStudent)
	a.mux.HandleFunc("GET /api/students/{id}/profile", a.handleStudentProfile)
	a.mux.Handle("GET /api/admin/students", adminOnly(http.HandlerFunc(a.handleListStudents)))
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "auth-gateway",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.Warn("readiness check failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
