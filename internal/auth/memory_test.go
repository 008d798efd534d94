package auth

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreSaveAndFind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	saved, err := store.Save(ctx, &Identity{Email: " B@Y.com", Role: RoleStudent, Enabled: true})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == "" || saved.Email != "b@y.com" || saved.CreatedAt.IsZero() {
		t.Fatalf("unexpected saved identity %+v", saved)
	}

	got, err := store.FindBySubject(ctx, "b@y.COM")
	if err != nil || got.ID != saved.ID {
		t.Fatalf("FindBySubject: %v %+v", err, got)
	}
	got.Role = RoleAdmin
	again, _ := store.FindByID(ctx, saved.ID)
	if again.Role != RoleStudent {
		t.Fatalf("store leaked internal record")
	}

	if _, err := store.Save(ctx, &Identity{Email: "b@y.com", Role: RoleUser}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected duplicate email rejected, got %v", err)
	}
	if _, err := store.Save(ctx, &Identity{ID: "missing", Email: "c@y.com", Role: RoleUser}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unknown id rejected, got %v", err)
	}
	if _, err := store.Save(ctx, &Identity{Email: "c@y.com", Role: Role("x")}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role rejected, got %v", err)
	}
	if _, err := store.FindBySubject(ctx, "nobody@y.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreEmailChange(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a, _ := store.Save(ctx, &Identity{Email: "a@x.com", Role: RoleUser})
	if _, err := store.Save(ctx, &Identity{Email: "b@x.com", Role: RoleUser}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	a.Email = "b@x.com"
	if _, err := store.Save(ctx, a); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected conflict on rename, got %v", err)
	}
	a.Email = "c@x.com"
	if _, err := store.Save(ctx, a); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := store.FindBySubject(ctx, "a@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old email still resolves")
	}
	list, _ := store.List(ctx)
	if len(list) != 2 || list[0].Email != "b@x.com" || list[1].Email != "c@x.com" {
		t.Fatalf("unexpected list %+v", list)
	}
}
