package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/obs"
)

const (
	authHeader   = "Authorization"
	bearerScheme = "Bearer"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errBadScheme    = errors.New("invalid authorization scheme")
)

var publicPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/metrics",
	"/healthz",
	"/readyz",
}

// withAuth is the single point where unauthenticated requests are rejected.
// Every non-public request must carry a valid bearer token of an enabled
// identity; the resolved IdentityContext is attached to the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.RecordTokenValidation("missing")
			writeUnauthenticated(w, r, "unauthenticated")
			return
		}

		ic, err := a.gate.AuthenticateRequest(r.Context(), token)
		if err != nil {
			obs.RecordTokenValidation(tokenFailure(err))
			if !errors.Is(err, auth.ErrUnauthenticated) {
				obs.Error("authenticate request", err, map[string]any{"request_id": RequestIDFromContext(r.Context())})
				writeError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
			writeUnauthenticated(w, r, "unauthenticated")
			return
		}
		obs.RecordTokenValidation("valid")

		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), ic)))
	})
}

// RequireRole admits callers whose role passes the gate built from roles.
// ADMIN always passes.
func (a *API) RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	gate := auth.AllowRoles(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ic, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeUnauthenticated(w, r, "unauthenticated")
				return
			}
			if err := a.gate.Authorizer().Require(ic, gate, nil); err != nil {
				a.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFailure(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrTokenSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, auth.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, auth.ErrAccountDisabled):
		return "disabled"
	case errors.Is(err, auth.ErrNotFound):
		return "unknown_subject"
	case errors.Is(err, auth.ErrInvalidRole):
		return "invalid_role"
	default:
		return "error"
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", errBadScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
