package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrInvalidRole   = errors.New("auth: invalid role")
)

// Credential failures. Callers outside this package only ever need
// ErrUnauthenticated; the precise kind is kept for audit and tests.
var (
	ErrBadCredentials  = errors.New("auth: bad credentials")
	ErrAccountDisabled = errors.New("auth: account disabled")
)

// Token failures returned by Tokens.Validate.
var (
	ErrTokenMalformed        = errors.New("auth: token malformed")
	ErrTokenExpired          = errors.New("auth: token expired")
	ErrTokenSignatureInvalid = errors.New("auth: token signature invalid")
)

// Authorization denials. Each maps to a DenyReason.
var (
	ErrRoleNotPermitted = errors.New("auth: role not permitted")
	ErrNotOwner         = errors.New("auth: not owner")
	ErrNotAffiliated    = errors.New("auth: not affiliated")
)

// Boundary outcomes.
var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
)

// boundaryError collapses a precise failure into a boundary outcome while
// keeping the cause reachable through errors.Is.
type boundaryError struct {
	outcome error
	cause   error
}

func (e *boundaryError) Error() string { return e.outcome.Error() }

func (e *boundaryError) Unwrap() []error { return []error{e.outcome, e.cause} }

func unauthenticated(cause error) error {
	return &boundaryError{outcome: ErrUnauthenticated, cause: cause}
}

func forbidden(cause error) error {
	return &boundaryError{outcome: ErrForbidden, cause: cause}
}
