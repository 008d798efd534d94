package pg

import (
	"context"
	"database/sql"
	"errors"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/ids"
)

var _ auth.IdentityStore = (*Store)(nil)

const identityColumns = `id, email, password_hash, role, affiliation, first_name, last_name, enabled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*auth.Identity, error) {
	var (
		id          auth.Identity
		role        string
		affiliation sql.NullString
		first, last sql.NullString
	)
	if err := row.Scan(&id.ID, &id.Email, &id.PasswordHash, &role, &affiliation, &first, &last, &id.Enabled, &id.CreatedAt, &id.UpdatedAt); err != nil {
		return nil, err
	}
	if parsed, err := auth.ParseRole(role); err == nil {
		id.Role = parsed
	} else {
		// Left unparsed so the gate rejects the identity.
		id.Role = auth.Role(role)
	}
	id.Affiliation = affiliation.String
	id.FirstName = first.String
	id.LastName = last.String
	return &id, nil
}

func (s *Store) FindBySubject(ctx context.Context, email string) (*auth.Identity, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where email = $1`, auth.NormalizeEmail(email))
	id, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return id, err
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.Identity, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	if !ids.Valid(id) {
		return nil, auth.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where id = $1`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return identity, err
}

func (s *Store) Save(ctx context.Context, identity *auth.Identity) (*auth.Identity, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	if identity == nil {
		return nil, auth.ErrInvalidInput
	}
	if !identity.Role.Valid() {
		return nil, auth.ErrInvalidRole
	}
	rec := *identity
	rec.Email = auth.NormalizeEmail(rec.Email)

	var row *sql.Row
	if rec.ID == "" {
		rec.ID = ids.New()
		row = s.db.QueryRowContext(ctx, `
			insert into identities (id, email, password_hash, role, affiliation, first_name, last_name, enabled)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
			returning created_at, updated_at
		`, rec.ID, rec.Email, rec.PasswordHash, rec.Role.String(), nullIfEmpty(rec.Affiliation), nullIfEmpty(rec.FirstName), nullIfEmpty(rec.LastName), rec.Enabled)
	} else {
		row = s.db.QueryRowContext(ctx, `
			update identities
			set email = $2, password_hash = $3, role = $4, affiliation = $5,
			    first_name = $6, last_name = $7, enabled = $8, updated_at = now()
			where id = $1
			returning created_at, updated_at
		`, rec.ID, rec.Email, rec.PasswordHash, rec.Role.String(), nullIfEmpty(rec.Affiliation), nullIfEmpty(rec.FirstName), nullIfEmpty(rec.LastName), rec.Enabled)
	}
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, auth.ErrNotFound
		case isPgCode(err, pgErrUniqueViolation):
			return nil, auth.ErrAlreadyExists
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) List(ctx context.Context) ([]*auth.Identity, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+identityColumns+` from identities order by email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
