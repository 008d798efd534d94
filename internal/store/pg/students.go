package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/ids"
	"abroadguide.org/internal/students"
)

var _ students.Store = (*StudentStore)(nil)

// StudentStore persists student records in the students table.
type StudentStore struct {
	db *sql.DB
}

// Students returns the student store sharing this connection pool.
func (s *Store) Students() *StudentStore { return &StudentStore{db: s.db} }

const studentColumns = `id, owner_subject, university_id, student_number, first_name, last_name, major, enrollment_year, total_budget, created_at, updated_at`

func scanStudent(row rowScanner) (*students.Student, error) {
	var (
		st                 students.Student
		university         sql.NullString
		first, last, major sql.NullString
		year               sql.NullInt64
	)
	if err := row.Scan(&st.ID, &st.Owner, &university, &st.StudentNumber, &first, &last, &major, &year, &st.TotalBudget, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.UniversityID = university.String
	st.FirstName = first.String
	st.LastName = last.String
	st.Major = major.String
	st.EnrollmentYear = int(year.Int64)
	return &st, nil
}

func nullIfZero(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func mapStudentWriteError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return auth.ErrNotFound
	case isPgCode(err, pgErrUniqueViolation):
		return auth.ErrAlreadyExists
	case isPgCode(err, pgErrForeignKeyViolation):
		return fmt.Errorf("%w: owner is not registered", auth.ErrInvalidInput)
	}
	return err
}

func (s *StudentStore) Create(ctx context.Context, st *students.Student) (*students.Student, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rec := *st
	rec.ID = ids.New()
	err := s.db.QueryRowContext(ctx, `
		insert into students (id, owner_subject, university_id, student_number, first_name, last_name, major, enrollment_year, total_budget)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, rec.ID, rec.Owner, nullIfEmpty(rec.UniversityID), rec.StudentNumber, nullIfEmpty(rec.FirstName), nullIfEmpty(rec.LastName), nullIfEmpty(rec.Major), nullIfZero(rec.EnrollmentYear), rec.TotalBudget,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, mapStudentWriteError(err)
	}
	return &rec, nil
}

func (s *StudentStore) Get(ctx context.Context, id string) (*students.Student, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	st, err := scanStudent(s.db.QueryRowContext(ctx, `select `+studentColumns+` from students where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return st, err
}

func (s *StudentStore) Update(ctx context.Context, st *students.Student) (*students.Student, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rec := *st
	err := s.db.QueryRowContext(ctx, `
		update students
		set student_number = $2, first_name = $3, last_name = $4, major = $5,
		    enrollment_year = $6, total_budget = $7, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, rec.ID, rec.StudentNumber, nullIfEmpty(rec.FirstName), nullIfEmpty(rec.LastName), nullIfEmpty(rec.Major), nullIfZero(rec.EnrollmentYear), rec.TotalBudget,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, mapStudentWriteError(err)
	}
	return &rec, nil
}

func (s *StudentStore) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from students where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *StudentStore) List(ctx context.Context) ([]*students.Student, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+studentColumns+` from students order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*students.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
