package httpapi

import (
	"net/http"
	"time"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/students"
)

type createStudentRequest struct {
	Owner          string  `json:"owner"`
	UniversityID   string  `json:"university_id"`
	StudentNumber  string  `json:"student_number"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Major          string  `json:"major"`
	EnrollmentYear int     `json:"enrollment_year"`
	TotalBudget    float64 `json:"total_budget"`
}

type updateStudentRequest struct {
	StudentNumber  *string  `json:"student_number"`
	FirstName      *string  `json:"first_name"`
	LastName       *string  `json:"last_name"`
	Major          *string  `json:"major"`
	EnrollmentYear *int     `json:"enrollment_year"`
	TotalBudget    *float64 `json:"total_budget"`
}

type studentView struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	UniversityID   string    `json:"university_id,omitempty"`
	StudentNumber  string    `json:"student_number"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	FullName       string    `json:"full_name,omitempty"`
	Major          string    `json:"major,omitempty"`
	EnrollmentYear int       `json:"enrollment_year,omitempty"`
	TotalBudget    float64   `json:"total_budget"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type profileView struct {
	studentView
	BudgetAllocation students.BudgetAllocation `json:"budget_allocation"`
}

func viewStudent(s *students.Student) studentView {
	return studentView{
		ID:             s.ID,
		Owner:          s.Owner,
		UniversityID:   s.UniversityID,
		StudentNumber:  s.StudentNumber,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		FullName:       s.FullName(),
		Major:          s.Major,
		EnrollmentYear: s.EnrollmentYear,
		TotalBudget:    s.TotalBudget,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func (a *API) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	ic, _ := auth.IdentityFromContext(r.Context())
	created, err := a.students.Create(r.Context(), ic, students.Student{
		Owner:          req.Owner,
		UniversityID:   req.UniversityID,
		StudentNumber:  req.StudentNumber,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Major:          req.Major,
		EnrollmentYear: req.EnrollmentYear,
		TotalBudget:    req.TotalBudget,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/students/"+created.ID)
	writeJSON(w, http.StatusCreated, viewStudent(created))
}

func (a *API) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	ic, _ := auth.IdentityFromContext(r.Context())
	st, err := a.students.Get(r.Context(), ic, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewStudent(st))
}

func (a *API) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req updateStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	ic, _ := auth.IdentityFromContext(r.Context())
	updated, err := a.students.Update(r.Context(), ic, r.PathValue("id"), students.Patch{
		StudentNumber:  req.StudentNumber,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Major:          req.Major,
		EnrollmentYear: req.EnrollmentYear,
		TotalBudget:    req.TotalBudget,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewStudent(updated))
}

func (a *API) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	ic, _ := auth.IdentityFromContext(r.Context())
	if err := a.students.Delete(r.Context(), ic, r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStudentProfile(w http.ResponseWriter, r *http.Request) {
	ic, _ := auth.IdentityFromContext(r.Context())
	profile, err := a.students.Profile(r.Context(), ic, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView{
		studentView:      viewStudent(&profile.Student),
		BudgetAllocation: profile.Allocation,
	})
}

func (a *API) handleListStudents(w http.ResponseWriter, r *http.Request) {
	ic, _ := auth.IdentityFromContext(r.Context())
	list, err := a.students.List(r.Context(), ic)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]studentView, 0, len(list))
	for _, st := range list {
		out = append(out, viewStudent(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": out})
}
