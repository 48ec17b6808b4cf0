package domain

import (
	"strings"

	dErrors "pims/pkg/domain-errors"
)

// Role is the closed set of actor roles supplied by the identity provider.
type Role string

const (
	RoleStaff    Role = "staff"
	RoleHOD      Role = "hod"
	RoleRegistry Role = "registry"
	RoleAdmin    Role = "admin"
)

// Capability is a single permission granted to one or more roles.
type Capability int

const (
	// CapOverrideWorkflow moves a workflow along any edge, comment rules still apply.
	CapOverrideWorkflow Capability = iota
	// CapApproveWorkflow approves or rejects workflows addressed to others.
	CapApproveWorkflow
	// CapEscalateWorkflow escalates workflows addressed to others.
	CapEscalateWorkflow
	// CapProceedWorkflow performs the remaining workflow moves on behalf of the receiver.
	CapProceedWorkflow
	// CapManageFiles covers Registry custody operations: activation decisions,
	// recall, deactivation, archival and access grants.
	CapManageFiles
	// CapCreateFile opens files for other owners or departments.
	CapCreateFile
	// CapManageTemplates defines multi-step workflow templates.
	CapManageTemplates
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleStaff: {},
	RoleHOD: {
		CapApproveWorkflow:  true,
		CapEscalateWorkflow: true,
		CapProceedWorkflow:  true,
		CapCreateFile:       true,
	},
	RoleRegistry: {
		CapManageFiles: true,
		CapCreateFile:  true,
	},
	RoleAdmin: {
		CapOverrideWorkflow: true,
		CapEscalateWorkflow: true,
		CapManageFiles:      true,
		CapCreateFile:       true,
		CapManageTemplates:  true,
	},
}

// ParseRole normalizes a role claim. Unknown roles are rejected.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleCapabilities[r]; !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", s)
	}
	return r, nil
}

func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

func (r Role) String() string { return string(r) }

// Can reports whether the role holds capability c.
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}

// Actor is the authenticated caller as asserted by the identity provider.
type Actor struct {
	ID   UserID
	Role Role
}

func (a Actor) Can(c Capability) bool { return a.Role.Can(c) }
