package models

import (
	"fmt"
	"strings"
	"time"

	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
)

// ExternalPartyCode is the policy sub-type code for files held for outside parties.
const ExternalPartyCode = "EXT"

// EmploymentType is the sub-type of a personal file.
type EmploymentType string

const (
	EmploymentPermanent EmploymentType = "permanent"
	EmploymentLocum     EmploymentType = "locum"
	EmploymentContract  EmploymentType = "contract"
	EmploymentNYSC      EmploymentType = "nysc"
)

var employmentCodes = map[EmploymentType]string{
	EmploymentPermanent: "PS",
	EmploymentLocum:     "LS",
	EmploymentContract:  "CS",
	EmploymentNYSC:      "NYSC",
}

// ParseEmploymentType normalizes an employment type.
func ParseEmploymentType(raw string) (EmploymentType, error) {
	e := EmploymentType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := employmentCodes[e]; !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown employment type %q", raw)
	}
	return e, nil
}

// Code is the numbering code of the employment type.
func (e EmploymentType) Code() string { return employmentCodes[e] }

// File is a custody-tracked record.
//
// Invariants:
//   - FileNumber is assigned once at creation and never changes
//   - a personal file has an owner, and an owner has at most one personal file
//   - a policy file has exactly one of DepartmentCode or ExternalParty
//   - CustodianID is nil only before activation or after deactivation/archival
type File struct {
	ID               domain.FileID
	FileNumber       string
	Title            string
	Category         domain.FileCategory
	SubType          string
	Status           Status
	OwnerID          *domain.UserID
	DepartmentCode   string
	ExternalParty    string
	CustodianID      *domain.UserID
	CreatedBy        domain.UserID
	SecondLevelAuth  bool
	ArchiveDirective string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsHeldBy reports whether user is the current custodian.
func (f *File) IsHeldBy(user domain.UserID) bool {
	return f.CustodianID != nil && *f.CustodianID == user
}

// IsOwnedBy reports whether user owns the file.
func (f *File) IsOwnedBy(user domain.UserID) bool {
	return f.OwnerID != nil && *f.OwnerID == user
}

// Apply moves the file along t. Call CheckTransition first.
func (f *File) Apply(t Transition, now time.Time) {
	if _, to, ok := t.Edge(); ok {
		f.Status = to
		f.UpdatedAt = now
	}
}

// ApplyActivation activates the file into custodian's hands.
func (f *File) ApplyActivation(t Transition, custodian domain.UserID, now time.Time) {
	f.Apply(t, now)
	f.CustodianID = &custodian
}

// ApplyDeactivation returns the file to inactive with no custodian.
func (f *File) ApplyDeactivation(now time.Time) {
	f.Apply(TransitionDeactivate, now)
	f.CustodianID = nil
}

// ApplyArchive archives the file under directive, clearing custody.
func (f *File) ApplyArchive(directive string, now time.Time) {
	f.Apply(TransitionArchive, now)
	f.ArchiveDirective = directive
	f.CustodianID = nil
}

// ApplyCustody hands the file to custodian without changing status.
func (f *File) ApplyCustody(custodian domain.UserID, now time.Time) {
	f.CustodianID = &custodian
	f.UpdatedAt = now
}

// CanDispatch checks that sender may send the file on.
func (f *File) CanDispatch(sender domain.UserID) error {
	if f.Status != StatusActive {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("cannot dispatch: file is %s, must be %s", f.Status, StatusActive))
	}
	if !f.IsHeldBy(sender) {
		return dErrors.New(dErrors.CodeForbidden, "only the current custodian can dispatch this file")
	}
	return nil
}

// CanRecall checks that the file is in a status where custody can be reclaimed.
// The current holder does not matter, recalling a file the registry already
// holds restarts its custody clock.
func (f *File) CanRecall() error {
	if f.Status != StatusActive && f.Status != StatusClosed {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("cannot recall: file is %s", f.Status))
	}
	return nil
}

// CreateRequest is the input to file creation.
type CreateRequest struct {
	Category       domain.FileCategory
	SubType        string
	Title          string
	OwnerID        *domain.UserID
	DepartmentCode string
	ExternalParty  string
	// SecondLevelAuth marks files whose activation needs a second sign-off.
	SecondLevelAuth bool
}

// Normalize trims and upper-cases free text the way registry clerks file it.
func (r *CreateRequest) Normalize() {
	r.SubType = strings.TrimSpace(r.SubType)
	r.Title = strings.ToUpper(strings.TrimSpace(r.Title))
	r.DepartmentCode = strings.ToUpper(strings.TrimSpace(r.DepartmentCode))
	r.ExternalParty = strings.TrimSpace(r.ExternalParty)
}

// Validate checks the scope rules and returns the numbering code for the request.
func (r *CreateRequest) Validate() (subType, code string, err error) {
	switch r.Category {
	case domain.CategoryPersonal:
		if r.OwnerID == nil || r.OwnerID.IsNil() {
			return "", "", dErrors.New(dErrors.CodeValidation, "personal files require an owner")
		}
		if r.ExternalParty != "" {
			return "", "", dErrors.New(dErrors.CodeValidation, "personal files cannot name an external party")
		}
		emp, err := ParseEmploymentType(r.SubType)
		if err != nil {
			return "", "", err
		}
		return string(emp), emp.Code(), nil

	case domain.CategoryPolicy:
		hasDept, hasExt := r.DepartmentCode != "", r.ExternalParty != ""
		if hasDept == hasExt {
			return "", "", dErrors.New(dErrors.CodeValidation, "policy files require exactly one of department or external party")
		}
		if hasExt {
			return ExternalPartyCode, ExternalPartyCode, nil
		}
		return r.DepartmentCode, r.DepartmentCode, nil
	}
	return "", "", dErrors.Newf(dErrors.CodeValidation, "unknown file category %q", r.Category)
}

// ListFilter narrows file listings. Archived files are hidden unless requested.
type ListFilter struct {
	Status          *Status
	Category        *domain.FileCategory
	CustodianID     *domain.UserID
	IncludeArchived bool
}

// Matches applies the filter to f.
func (lf ListFilter) Matches(f *File) bool {
	if lf.Status != nil {
		if f.Status != *lf.Status {
			return false
		}
	} else if f.Status == StatusArchived && !lf.IncludeArchived {
		return false
	}
	if lf.Category != nil && f.Category != *lf.Category {
		return false
	}
	if lf.CustodianID != nil && !f.IsHeldBy(*lf.CustodianID) {
		return false
	}
	return true
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (f *File) Clone() *File {
	c := *f
	if f.OwnerID != nil {
		o := *f.OwnerID
		c.OwnerID = &o
	}
	if f.CustodianID != nil {
		h := *f.CustodianID
		c.CustodianID = &h
	}
	return &c
}
