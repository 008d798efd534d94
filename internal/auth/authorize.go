package auth

import "errors"

// DenyReason explains a DENY decision. It is meant for logs and metrics and
// must not be echoed to callers.
type DenyReason string

const (
	ReasonRoleNotPermitted DenyReason = "RoleNotPermitted"
	ReasonNotOwner         DenyReason = "NotOwner"
	ReasonNotAffiliated    DenyReason = "NotAffiliated"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Err returns nil for ALLOW, otherwise an error matching both ErrForbidden
// and the precise reason (ErrRoleNotPermitted, ErrNotOwner, ErrNotAffiliated).
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonNotOwner:
		return forbidden(ErrNotOwner)
	case ReasonNotAffiliated:
		return forbidden(ErrNotAffiliated)
	default:
		return forbidden(ErrRoleNotPermitted)
	}
}

// DenyReasonOf recovers the reason code from an error returned by Decision.Err.
func DenyReasonOf(err error) (DenyReason, bool) {
	switch {
	case errors.Is(err, ErrNotOwner):
		return ReasonNotOwner, true
	case errors.Is(err, ErrNotAffiliated):
		return ReasonNotAffiliated, true
	case errors.Is(err, ErrRoleNotPermitted):
		return ReasonRoleNotPermitted, true
	default:
		return "", false
	}
}

// RoleGate is the set of roles admitted to an operation. ADMIN always passes.
type RoleGate struct {
	allowed map[Role]struct{}
}

// AllowRoles admits exactly the listed roles (plus ADMIN).
func AllowRoles(roles ...Role) RoleGate {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		if r.Valid() {
			set[r] = struct{}{}
		}
	}
	return RoleGate{allowed: set}
}

// AdminOnly admits ADMIN alone.
func AdminOnly() RoleGate { return AllowRoles() }

// Authenticated admits every known role.
func Authenticated() RoleGate { return AllowRoles(Roles...) }

// AtLeast admits min and every role ranked above it. UNIVERSITY and SPONSOR
// share a rank, so AtLeast(RoleUniversity) also admits SPONSOR.
func AtLeast(min Role) RoleGate {
	floor, ok := roleRank[min]
	if !ok {
		return AdminOnly()
	}
	var roles []Role
	for _, r := range Roles {
		if roleRank[r] >= floor {
			roles = append(roles, r)
		}
	}
	return AllowRoles(roles...)
}

var roleRank = map[Role]int{
	RoleUser:       0,
	RoleStudent:    1,
	RoleUniversity: 2,
	RoleSponsor:    2,
	RoleAdmin:      3,
}

// Permits reports whether r passes the gate.
func (g RoleGate) Permits(r Role) bool {
	if r == RoleAdmin {
		return true
	}
	if !r.Valid() {
		return false
	}
	_, ok := g.allowed[r]
	return ok
}

// OwnedResource is a record subject to the ownership-gate.
type OwnedResource interface {
	// OwnerSubject is the email of the identity that owns the record.
	OwnerSubject() string
	// Affiliation is the institution the record belongs to, empty when none.
	Affiliation() string
}

// AffiliationFunc decides whether a UNIVERSITY or SPONSOR caller is
// affiliated with target.
type AffiliationFunc func(ic IdentityContext, target OwnedResource) bool

// MatchAffiliation admits the caller when both sides carry the same
// non-empty institution identifier.
func MatchAffiliation(ic IdentityContext, target OwnedResource) bool {
	if target == nil {
		return false
	}
	theirs := target.Affiliation()
	return ic.Affiliation != "" && theirs != "" && ic.Affiliation == theirs
}

// Authorizer combines the role-gate and ownership-gate. It holds no
// per-request state and may be shared across goroutines.
type Authorizer struct {
	affiliated AffiliationFunc
	observe    func(IdentityContext, Decision)
}

// AuthorizerOption configures Authorizer behavior.
type AuthorizerOption func(*Authorizer)

// WithAffiliation replaces the affiliation predicate.
func WithAffiliation(fn AffiliationFunc) AuthorizerOption {
	return func(a *Authorizer) {
		if fn != nil {
			a.affiliated = fn
		}
	}
}

// WithDecisionObserver registers fn to be called with every decision.
func WithDecisionObserver(fn func(IdentityContext, Decision)) AuthorizerOption {
	return func(a *Authorizer) {
		a.observe = fn
	}
}

// NewAuthorizer constructs an Authorizer using MatchAffiliation by default.
func NewAuthorizer(opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{affiliated: MatchAffiliation}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize decides whether ic may act through gate, and on target when it is
// non-nil. Unknown roles and roles without an ownership rule are denied.
func (a *Authorizer) Authorize(ic IdentityContext, gate RoleGate, target OwnedResource) Decision {
	d := a.decide(ic, gate, target)
	if a.observe != nil {
		a.observe(ic, d)
	}
	return d
}

func (a *Authorizer) decide(ic IdentityContext, gate RoleGate, target OwnedResource) Decision {
	if ic.IsZero() || !gate.Permits(ic.Role) {
		return deny(ReasonRoleNotPermitted)
	}
	if target == nil {
		return allow()
	}
	switch ic.Role {
	case RoleAdmin:
		return allow()
	case RoleStudent:
		if NormalizeEmail(target.OwnerSubject()) != NormalizeEmail(ic.Subject) {
			return deny(ReasonNotOwner)
		}
		return allow()
	case RoleUniversity, RoleSponsor:
		if !a.affiliated(ic, target) {
			return deny(ReasonNotAffiliated)
		}
		return allow()
	default:
		return deny(ReasonRoleNotPermitted)
	}
}

// AuthorizeSelf decides whether ic may act on target as its owner. ADMIN
// passes; every other role passes only on a target it owns, whatever its
// affiliation. It serves records that are the caller's own account.
func (a *Authorizer) AuthorizeSelf(ic IdentityContext, target OwnedResource) Decision {
	d := decideSelf(ic, target)
	if a.observe != nil {
		a.observe(ic, d)
	}
	return d
}

func decideSelf(ic IdentityContext, target OwnedResource) Decision {
	switch {
	case ic.IsZero() || !ic.Role.Valid():
		return deny(ReasonRoleNotPermitted)
	case ic.Role == RoleAdmin:
		return allow()
	case target == nil || target.OwnerSubject() == "":
		return deny(ReasonNotOwner)
	case NormalizeEmail(target.OwnerSubject()) != NormalizeEmail(ic.Subject):
		return deny(ReasonNotOwner)
	default:
		return allow()
	}
}

// RequireSelf is AuthorizeSelf returning Decision.Err.
func (a *Authorizer) RequireSelf(ic IdentityContext, target OwnedResource) error {
	return a.AuthorizeSelf(ic, target).Err()
}

// Require is Authorize returning Decision.Err.
func (a *Authorizer) Require(ic IdentityContext, gate RoleGate, target OwnedResource) error {
	return a.Authorize(ic, gate, target).Err()
}
