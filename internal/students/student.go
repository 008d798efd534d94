package students

import (
	"fmt"
	"math"
	"strings"
	"time"

	"abroadguide.org/internal/auth"
)

// Student is a student record owned by one identity and optionally attached
// to a university.
type Student struct {
	ID             string
	Owner          string
	UniversityID   string
	StudentNumber  string
	FirstName      string
	LastName       string
	Major          string
	EnrollmentYear int
	TotalBudget    float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var _ auth.OwnedResource = Student{}

// OwnerSubject is the email of the owning identity.
func (s Student) OwnerSubject() string { return s.Owner }

// Affiliation is the university the record belongs to.
func (s Student) Affiliation() string { return s.UniversityID }

// FullName joins first and last name.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func (s *Student) normalize() {
	s.Owner = auth.NormalizeEmail(s.Owner)
	s.UniversityID = strings.TrimSpace(s.UniversityID)
	s.StudentNumber = strings.TrimSpace(s.StudentNumber)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Major = strings.TrimSpace(s.Major)
}

func (s Student) validate() error {
	switch {
	case s.Owner == "":
		return fmt.Errorf("%w: owner is required", auth.ErrInvalidInput)
	case s.StudentNumber == "":
		return fmt.Errorf("%w: student number is required", auth.ErrInvalidInput)
	case s.TotalBudget < 0 || math.IsNaN(s.TotalBudget) || math.IsInf(s.TotalBudget, 0):
		return fmt.Errorf("%w: total budget must be a non-negative amount", auth.ErrInvalidInput)
	case s.EnrollmentYear < 0:
		return fmt.Errorf("%w: enrollment year must not be negative", auth.ErrInvalidInput)
	}
	return nil
}

// Patch carries the fields of an update; nil fields are left unchanged.
type Patch struct {
	StudentNumber  *string
	FirstName      *string
	LastName       *string
	Major          *string
	EnrollmentYear *int
	TotalBudget    *float64
}

func (p Patch) apply(s *Student) {
	if p.StudentNumber != nil {
		s.StudentNumber = *p.StudentNumber
	}
	if p.FirstName != nil {
		s.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		s.LastName = *p.LastName
	}
	if p.Major != nil {
		s.Major = *p.Major
	}
	if p.EnrollmentYear != nil {
		s.EnrollmentYear = *p.EnrollmentYear
	}
	if p.TotalBudget != nil {
		s.TotalBudget = *p.TotalBudget
	}
}

// BudgetAllocation splits a total budget into monthly spending categories.
type BudgetAllocation struct {
	Rent          float64 `json:"rent"`
	Food          float64 `json:"food"`
	Transport     float64 `json:"transport"`
	Utilities     float64 `json:"utilities"`
	Miscellaneous float64 `json:"miscellaneous"`
}

// Allocation shares; they sum to 1.
const (
	shareRent          = 0.40
	shareFood          = 0.20
	shareTransport     = 0.10
	shareUtilities     = 0.10
	shareMiscellaneous = 0.20
)

// AllocateBudget splits total by the fixed shares, rounded to cents.
func AllocateBudget(total float64) BudgetAllocation {
	return BudgetAllocation{
		Rent:          cents(total * shareRent),
		Food:          cents(total * shareFood),
		Transport:     cents(total * shareTransport),
		Utilities:     cents(total * shareUtilities),
		Miscellaneous: cents(total * shareMiscellaneous),
	}
}

func cents(v float64) float64 { return math.Round(v*100) / 100 }

// Profile is a student record together with its budget split.
type Profile struct {
	Student    Student
	Allocation BudgetAllocation
}
