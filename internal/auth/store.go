package auth

import "context"

// IdentityStore describes persistence operations required by the auth
// subsystem. Lookups return ErrNotFound when no identity matches.
type IdentityStore interface {
	FindBySubject(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	// Save inserts the identity when ID is empty and updates it otherwise.
	// Inserting an email that already exists fails with ErrAlreadyExists.
	Save(ctx context.Context, id *Identity) (*Identity, error)
	List(ctx context.Context) ([]*Identity, error)
}
