package scheduling

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ads/dental/internal/domain/directory"
	"github.com/ads/dental/internal/platform/auth"
)

type Role string

const (
	RoleNone          Role = ""
	RoleOfficeManager Role = Role(auth.RoleOfficeManager)
	RolePatient       Role = Role(auth.RolePatient)
	RoleDentist       Role = Role(auth.RoleDentist)
)

// Caller is the authenticated identity an operation runs on behalf of. ID is
// the token subject: the patient or dentist id for those roles.
type Caller struct {
	ID    string
	Email string
	Role  Role
}

// NewCaller picks the most privileged known role from roles.
func NewCaller(id, email string, roles []string) Caller {
	c := Caller{ID: strings.TrimSpace(id), Email: strings.TrimSpace(email)}
	for _, want := range []Role{RoleOfficeManager, RoleDentist, RolePatient} {
		for _, r := range roles {
			if Role(r) == want {
				c.Role = want
				return c
			}
		}
	}
	return c
}

func OfficeManager(id string) Caller { return Caller{ID: id, Role: RoleOfficeManager} }

func (c Caller) IsOperator() bool { return c.Role == RoleOfficeManager }

func (c Caller) subject() (uuid.UUID, bool) {
	id, err := uuid.Parse(c.ID)
	return id, err == nil
}

// ownsPatient matches on the token subject first, then on e-mail.
func (c Caller) ownsPatient(p *directory.Patient) bool {
	if c.Role != RolePatient || p == nil {
		return false
	}
	if id, ok := c.subject(); ok && id == p.ID {
		return true
	}
	return p.HasEmail(c.Email)
}

func (c Caller) isDentist(d *directory.Dentist) bool {
	if c.Role != RoleDentist || d == nil {
		return false
	}
	if id, ok := c.subject(); ok && id == d.ID {
		return true
	}
	return d.HasEmail(c.Email)
}

func forbidden() error { return ErrForbidden }

func authorizeOperator(c Caller) error {
	if c.IsOperator() {
		return nil
	}
	return forbidden()
}

// authorizeBooking: the operator books for anyone, a patient only for themself.
func authorizeBooking(c Caller, p *directory.Patient) error {
	if c.IsOperator() || c.ownsPatient(p) {
		return nil
	}
	return forbidden()
}

// authorizeOwnerAction covers cancel and reschedule.
func authorizeOwnerAction(c Caller, p *directory.Patient) error {
	return authorizeBooking(c, p)
}

// authorizeView: operator, the owning patient, or the assigned dentist.
func authorizeView(c Caller, p *directory.Patient, d *directory.Dentist) error {
	if c.IsOperator() || c.ownsPatient(p) || c.isDentist(d) {
		return nil
	}
	return forbidden()
}
