package students

import "context"

// Store persists student records. Get, Update and Delete return
// auth.ErrNotFound for unknown ids; a duplicate student number fails with
// auth.ErrAlreadyExists.
type Store interface {
	Create(ctx context.Context, s *Student) (*Student, error)
	Get(ctx context.Context, id string) (*Student, error)
	Update(ctx context.Context, s *Student) (*Student, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Student, error)
}
