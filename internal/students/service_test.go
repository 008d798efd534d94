package students

import (
	"context"
	"errors"
	"testing"

	"abroadguide.org/internal/auth"
)

var (
	admin   = auth.IdentityContext{IdentityID: "1", Subject: "root@x.com", Role: auth.RoleAdmin}
	alice   = auth.IdentityContext{IdentityID: "2", Subject: "a@x.com", Role: auth.RoleStudent}
	bob     = auth.IdentityContext{IdentityID: "3", Subject: "b@y.com", Role: auth.RoleStudent}
	uni1    = auth.IdentityContext{IdentityID: "4", Subject: "office@uni1.edu", Role: auth.RoleUniversity, Affiliation: "uni-1"}
	uni2    = auth.IdentityContext{IdentityID: "5", Subject: "office@uni2.edu", Role: auth.RoleUniversity, Affiliation: "uni-2"}
	sponsor = auth.IdentityContext{IdentityID: "6", Subject: "fund@x.com", Role: auth.RoleSponsor, Affiliation: "uni-1"}
	user    = auth.IdentityContext{IdentityID: "7", Subject: "u@x.com", Role: auth.RoleUser}
)

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(NewMemoryStore(), auth.NewAuthorizer(), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func mustCreate(t *testing.T, svc *Service, ic auth.IdentityContext, st Student) *Student {
	t.Helper()
	created, err := svc.Create(context.Background(), ic, st)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return created
}

func TestStudentCreatesOwnRecord(t *testing.T) {
	svc := newTestService(t)
	created := mustCreate(t, svc, alice, Student{StudentNumber: "S-1", TotalBudget: 1000})
	if created.Owner != "a@x.com" || created.ID == "" {
		t.Fatalf("unexpected record %+v", created)
	}

	_, err := svc.Create(context.Background(), alice, Student{Owner: "b@y.com", StudentNumber: "S-2"})
	if !errors.Is(err, auth.ErrNotOwner) {
		t.Fatalf("expected NotOwner creating for someone else, got %v", err)
	}
}

func TestOwnershipGate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rec := mustCreate(t, svc, admin, Student{Owner: "a@x.com", UniversityID: "uni-1", StudentNumber: "S-1"})

	allowed := []auth.IdentityContext{admin, alice, uni1, sponsor}
	for _, ic := range allowed {
		if _, err := svc.Get(ctx, ic, rec.ID); err != nil {
			t.Fatalf("%s: expected access, got %v", ic.Subject, err)
		}
	}

	denied := map[string]struct {
		ic   auth.IdentityContext
		want error
	}{
		"other student":    {bob, auth.ErrNotOwner},
		"other university": {uni2, auth.ErrNotAffiliated},
		"plain user":       {user, auth.ErrRoleNotPermitted},
	}
	for name, tc := range denied {
		_, err := svc.Get(ctx, tc.ic, rec.ID)
		if !errors.Is(err, auth.ErrForbidden) || !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}

func TestRoleGateCheckedBeforeLookup(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Get(context.Background(), user, "missing"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected forbidden before not-found, got %v", err)
	}
	if _, err := svc.Get(context.Background(), alice, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUniversityCreateWithinAffiliation(t *testing.T) {
	svc := newTestService(t)
	rec := mustCreate(t, svc, uni1, Student{Owner: "a@x.com", StudentNumber: "S-1"})
	if rec.UniversityID != "uni-1" {
		t.Fatalf("expected university defaulted to caller affiliation, got %q", rec.UniversityID)
	}
	_, err := svc.Create(context.Background(), uni1, Student{Owner: "b@y.com", UniversityID: "uni-2", StudentNumber: "S-2"})
	if !errors.Is(err, auth.ErrNotAffiliated) {
		t.Fatalf("expected NotAffiliated, got %v", err)
	}
	if _, err := svc.Create(context.Background(), sponsor, Student{Owner: "a@x.com", StudentNumber: "S-3"}); !errors.Is(err, auth.ErrRoleNotPermitted) {
		t.Fatalf("expected sponsor create forbidden, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rec := mustCreate(t, svc, alice, Student{StudentNumber: "S-1", Major: "Physics"})

	major := "Mathematics"
	budget := 2500.0
	updated, err := svc.Update(ctx, alice, rec.ID, Patch{Major: &major, TotalBudget: &budget})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Major != "Mathematics" || updated.TotalBudget != 2500 || updated.StudentNumber != "S-1" {
		t.Fatalf("unexpected update %+v", updated)
	}

	if _, err := svc.Update(ctx, bob, rec.ID, Patch{Major: &major}); !errors.Is(err, auth.ErrNotOwner) {
		t.Fatalf("expected NotOwner, got %v", err)
	}
	negative := -1.0
	if _, err := svc.Update(ctx, alice, rec.ID, Patch{TotalBudget: &negative}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rec := mustCreate(t, svc, admin, Student{Owner: "a@x.com", UniversityID: "uni-1", StudentNumber: "S-1"})

	if err := svc.Delete(ctx, alice, rec.ID); !errors.Is(err, auth.ErrRoleNotPermitted) {
		t.Fatalf("expected student delete forbidden, got %v", err)
	}
	if err := svc.Delete(ctx, uni2, rec.ID); !errors.Is(err, auth.ErrNotAffiliated) {
		t.Fatalf("expected foreign university forbidden, got %v", err)
	}
	if err := svc.Delete(ctx, uni1, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, admin, rec.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected deleted record gone, got %v", err)
	}
}

func TestListAdminOnly(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, alice, Student{StudentNumber: "S-1"})
	mustCreate(t, svc, bob, Student{StudentNumber: "S-2"})

	if _, err := svc.List(context.Background(), uni1); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected list forbidden, got %v", err)
	}
	list, err := svc.List(context.Background(), admin)
	if err != nil || len(list) != 2 {
		t.Fatalf("List: %v (%d)", err, len(list))
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, admin, Student{StudentNumber: "S-1"}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected owner required, got %v", err)
	}
	if _, err := svc.Create(ctx, alice, Student{}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected student number required, got %v", err)
	}
	mustCreate(t, svc, alice, Student{StudentNumber: "S-1"})
	if _, err := svc.Create(ctx, bob, Student{StudentNumber: "S-1"}); !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected duplicate number rejected, got %v", err)
	}
}

type ownerSet map[string]bool

func (o ownerSet) FindBySubject(_ context.Context, email string) (*auth.Identity, error) {
	if !o[email] {
		return nil, auth.ErrNotFound
	}
	return &auth.Identity{Email: email}, nil
}

func TestCreateRequiresRegisteredOwner(t *testing.T) {
	svc := newTestService(t, WithOwnerLookup(ownerSet{"a@x.com": true}))
	if _, err := svc.Create(context.Background(), admin, Student{Owner: "ghost@x.com", StudentNumber: "S-1"}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected unknown owner rejected, got %v", err)
	}
	mustCreate(t, svc, admin, Student{Owner: "A@x.com", StudentNumber: "S-1"})
}

func TestProfileAllocation(t *testing.T) {
	svc := newTestService(t)
	rec := mustCreate(t, svc, alice, Student{StudentNumber: "S-1", TotalBudget: 1234.56})
	profile, err := svc.Profile(context.Background(), alice, rec.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	want := BudgetAllocation{Rent: 493.82, Food: 246.91, Transport: 123.46, Utilities: 123.46, Miscellaneous: 246.91}
	if profile.Allocation != want {
		t.Fatalf("unexpected allocation %+v", profile.Allocation)
	}
	if profile.Student.ID != rec.ID {
		t.Fatalf("profile carries wrong record")
	}
}
