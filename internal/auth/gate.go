package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Gate authenticates callers: it verifies credentials, issues tokens and
// turns presented tokens into an IdentityContext.
type Gate struct {
	store      IdentityStore
	tokens     *Tokens
	authz      *Authorizer
	bcryptCost int
}

// GateOption configures Gate behavior.
type GateOption func(*Gate)

// WithBcryptCost sets the cost used when hashing new passwords.
func WithBcryptCost(cost int) GateOption {
	return func(g *Gate) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			g.bcryptCost = cost
		}
	}
}

// WithAuthorizer sets the authorizer guarding administrative operations.
func WithAuthorizer(a *Authorizer) GateOption {
	return func(g *Gate) {
		if a != nil {
			g.authz = a
		}
	}
}

// NewGate constructs a Gate.
func NewGate(store IdentityStore, tokens *Tokens, opts ...GateOption) (*Gate, error) {
	if store == nil {
		return nil, errors.New("auth: identity store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	g := &Gate{
		store:      store,
		tokens:     tokens,
		authz:      NewAuthorizer(),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authorizer returns the authorizer used by the gate.
func (g *Gate) Authorizer() *Authorizer { return g.authz }

// TokenTTL returns the lifetime of issued tokens.
func (g *Gate) TokenTTL() time.Duration { return g.tokens.TTL() }

// Session is returned by Login and Register.
type Session struct {
	Subject  string
	Role     Role
	Token    IssuedToken
	Identity *Identity
}

// Login verifies email and password and issues a token. Every credential
// failure matches ErrUnauthenticated and carries the same message; the
// precise cause (ErrNotFound, ErrBadCredentials, ErrAccountDisabled) is
// only reachable through errors.Is.
func (g *Gate) Login(ctx context.Context, email, password string) (Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, unauthenticated(ErrBadCredentials)
	}
	identity, err := g.store.FindBySubject(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			VerifyPassword(password, dummyHash)
			return Session{}, unauthenticated(ErrNotFound)
		}
		return Session{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !VerifyPassword(password, identity.PasswordHash) {
		return Session{}, unauthenticated(ErrBadCredentials)
	}
	if !identity.Enabled {
		return Session{}, unauthenticated(ErrAccountDisabled)
	}
	return g.session(identity)
}

// AuthenticateRequest validates a presented bearer token and resolves the
// caller's current role from the store.
func (g *Gate) AuthenticateRequest(ctx context.Context, token string) (IdentityContext, error) {
	subject, err := g.tokens.Validate(token)
	if err != nil {
		return IdentityContext{}, unauthenticated(err)
	}
	identity, err := g.store.FindBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return IdentityContext{}, unauthenticated(ErrNotFound)
		}
		return IdentityContext{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !identity.Enabled {
		return IdentityContext{}, unauthenticated(ErrAccountDisabled)
	}
	if !identity.Role.Valid() {
		return IdentityContext{}, unauthenticated(ErrInvalidRole)
	}
	return newIdentityContext(identity), nil
}

// Registration is the input of Register. It has no affiliation: institution
// membership is granted by an administrator through SetAffiliation.
type Registration struct {
	Email     string
	Password  string
	Role      Role
	FirstName string
	LastName  string
}

// selfAssignable lists the roles open to self-registration. UNIVERSITY and
// SPONSOR act on other people's records through their affiliation, so they
// are assigned by an administrator together with that affiliation.
var selfAssignable = map[Role]bool{
	RoleUser:    true,
	RoleStudent: true,
}

// Register creates an enabled identity and issues its first token. The role
// defaults to USER; only USER and STUDENT can be self-assigned.
func (g *Gate) Register(ctx context.Context, reg Registration) (Session, error) {
	email := NormalizeEmail(reg.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return Session{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(reg.Password) == "" {
		return Session{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	role := reg.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidInput, ErrInvalidRole)
	}
	if !selfAssignable[role] {
		return Session{}, fmt.Errorf("%w: role %s cannot be self-assigned", ErrInvalidInput, role)
	}
	hash, err := HashPasswordCost(reg.Password, g.bcryptCost)
	if err != nil {
		return Session{}, err
	}
	saved, err := g.store.Save(ctx, &Identity{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Enabled:      true,
	})
	if err != nil {
		return Session{}, err
	}
	return g.session(saved)
}

// Me loads the full identity of the caller.
func (g *Gate) Me(ctx context.Context, ic IdentityContext) (*Identity, error) {
	if ic.IsZero() {
		return nil, unauthenticated(ErrNotFound)
	}
	if err := g.authz.Require(ic, Authenticated(), nil); err != nil {
		return nil, err
	}
	identity, err := g.store.FindBySubject(ctx, ic.Subject)
	if errors.Is(err, ErrNotFound) {
		return nil, unauthenticated(ErrNotFound)
	}
	return identity, err
}

// ChangePassword replaces the caller's password after checking the current one.
func (g *Gate) ChangePassword(ctx context.Context, ic IdentityContext, current, next string) error {
	if strings.TrimSpace(next) == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	identity, err := g.Me(ctx, ic)
	if err != nil {
		return err
	}
	if !VerifyPassword(current, identity.PasswordHash) {
		return unauthenticated(ErrBadCredentials)
	}
	hash, err := HashPasswordCost(next, g.bcryptCost)
	if err != nil {
		return err
	}
	identity.PasswordHash = hash
	_, err = g.store.Save(ctx, identity)
	return err
}

// ListIdentities returns every identity. ADMIN only.
func (g *Gate) ListIdentities(ctx context.Context, ic IdentityContext) ([]*Identity, error) {
	if err := g.authz.Require(ic, AdminOnly(), nil); err != nil {
		return nil, err
	}
	return g.store.List(ctx)
}

// accountRecord presents an identity as a resource owned by itself.
type accountRecord struct{ identity *Identity }

func (r accountRecord) OwnerSubject() string {
	if r.identity == nil {
		return ""
	}
	return r.identity.Email
}

func (r accountRecord) Affiliation() string {
	if r.identity == nil {
		return ""
	}
	return r.identity.Affiliation
}

// GetIdentity returns one identity. ADMIN or the identity itself. Callers
// other than ADMIN get ErrForbidden for unknown ids as well.
func (g *Gate) GetIdentity(ctx context.Context, ic IdentityContext, id string) (*Identity, error) {
	identity, err := g.store.FindByID(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := g.authz.RequireSelf(ic, accountRecord{identity}); err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrNotFound
	}
	return identity, nil
}

// SetRole changes the role of identity id. ADMIN only.
func (g *Gate) SetRole(ctx context.Context, ic IdentityContext, id string, role Role) (*Identity, error) {
	if err := g.authz.Require(ic, AdminOnly(), nil); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, ErrInvalidRole)
	}
	identity, err := g.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	identity.Role = role
	return g.store.Save(ctx, identity)
}

// SetEnabled enables or disables identity id. ADMIN only; an admin cannot
// disable itself.
func (g *Gate) SetEnabled(ctx context.Context, ic IdentityContext, id string, enabled bool) (*Identity, error) {
	if err := g.authz.Require(ic, AdminOnly(), nil); err != nil {
		return nil, err
	}
	if !enabled && id == ic.IdentityID {
		return nil, fmt.Errorf("%w: cannot disable own account", ErrInvalidInput)
	}
	identity, err := g.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	identity.Enabled = enabled
	return g.store.Save(ctx, identity)
}

// SetAffiliation assigns the institution of identity id. ADMIN only; an
// empty affiliation clears it.
func (g *Gate) SetAffiliation(ctx context.Context, ic IdentityContext, id, affiliation string) (*Identity, error) {
	if err := g.authz.Require(ic, AdminOnly(), nil); err != nil {
		return nil, err
	}
	identity, err := g.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	identity.Affiliation = strings.TrimSpace(affiliation)
	return g.store.Save(ctx, identity)
}

func (g *Gate) session(identity *Identity) (Session, error) {
	issued, err := g.tokens.Issue(identity.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Subject:  identity.Email,
		Role:     identity.Role,
		Token:    issued,
		Identity: identity,
	}, nil
}
