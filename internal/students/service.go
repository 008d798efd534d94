package students

import (
	"context"
	"errors"
	"fmt"

	"abroadguide.org/internal/auth"
)

// Role gates for student operations. ADMIN passes every gate.
var (
	createGate = auth.AllowRoles(auth.RoleStudent, auth.RoleUniversity)
	readGate   = auth.AllowRoles(auth.RoleStudent, auth.RoleUniversity, auth.RoleSponsor)
	deleteGate = auth.AllowRoles(auth.RoleUniversity)
	listGate   = auth.AdminOnly()
)

// OwnerLookup resolves identities so that records are only created for
// registered owners.
type OwnerLookup interface {
	FindBySubject(ctx context.Context, email string) (*auth.Identity, error)
}

// Service guards every student operation with the role-gate and, for
// existing records, the ownership-gate before touching the store.
type Service struct {
	store  Store
	authz  *auth.Authorizer
	owners OwnerLookup
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithOwnerLookup makes Create reject owners that are not registered.
func WithOwnerLookup(owners OwnerLookup) ServiceOption {
	return func(s *Service) {
		s.owners = owners
	}
}

func NewService(store Store, authz *auth.Authorizer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("students: store is required")
	}
	if authz == nil {
		authz = auth.NewAuthorizer()
	}
	s := &Service{store: store, authz: authz}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create stores a new record. A STUDENT may only create its own record and
// a UNIVERSITY only within its affiliation; missing owner or university
// default to the caller's.
func (s *Service) Create(ctx context.Context, ic auth.IdentityContext, st Student) (*Student, error) {
	if err := s.authz.Require(ic, createGate, nil); err != nil {
		return nil, err
	}
	switch ic.Role {
	case auth.RoleStudent:
		if st.Owner == "" {
			st.Owner = ic.Subject
		}
	case auth.RoleUniversity:
		if st.UniversityID == "" {
			st.UniversityID = ic.Affiliation
		}
	}
	st.ID = ""
	st.normalize()
	if err := s.authz.Require(ic, createGate, st); err != nil {
		return nil, err
	}
	if err := st.validate(); err != nil {
		return nil, err
	}
	if s.owners != nil {
		if _, err := s.owners.FindBySubject(ctx, st.Owner); err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				return nil, fmt.Errorf("%w: owner %s is not registered", auth.ErrInvalidInput, st.Owner)
			}
			return nil, err
		}
	}
	return s.store.Create(ctx, &st)
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, ic auth.IdentityContext, id string) (*Student, error) {
	return s.load(ctx, ic, readGate, id)
}

// Update applies patch to a record. Owner and university are not editable.
func (s *Service) Update(ctx context.Context, ic auth.IdentityContext, id string, patch Patch) (*Student, error) {
	st, err := s.load(ctx, ic, readGate, id)
	if err != nil {
		return nil, err
	}
	patch.apply(st)
	st.normalize()
	if err := st.validate(); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, st)
}

// Delete removes a record. ADMIN or an affiliated UNIVERSITY only.
func (s *Service) Delete(ctx context.Context, ic auth.IdentityContext, id string) error {
	if _, err := s.load(ctx, ic, deleteGate, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// List returns every record. ADMIN only.
func (s *Service) List(ctx context.Context, ic auth.IdentityContext) ([]*Student, error) {
	if err := s.authz.Require(ic, listGate, nil); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

// Profile returns a record with its budget allocation.
func (s *Service) Profile(ctx context.Context, ic auth.IdentityContext, id string) (Profile, error) {
	st, err := s.load(ctx, ic, readGate, id)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Student: *st, Allocation: AllocateBudget(st.TotalBudget)}, nil
}

// load checks the role-gate before the lookup so that callers outside the
// allowed set cannot probe which ids exist.
func (s *Service) load(ctx context.Context, ic auth.IdentityContext, gate auth.RoleGate, id string) (*Student, error) {
	if err := s.authz.Require(ic, gate, nil); err != nil {
		return nil, err
	}
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Require(ic, gate, *st); err != nil {
		return nil, err
	}
	return st, nil
}
