package domain

import dErrors "terrier/pkg/domain-errors"

// Role is the coarse actor role attached to each authenticated call by the
// identity collaborator. The registry trusts it; it performs no authentication
// of its own.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleRegistrar Role = "registrar"
	RoleAdmin     Role = "admin"
	RoleCourt     Role = "court"
)

var validRoles = map[Role]bool{
	RoleCitizen:   true,
	RoleRegistrar: true,
	RoleAdmin:     true,
	RoleCourt:     true,
}

func (r Role) IsValid() bool { return validRoles[r] }

func (r Role) String() string { return string(r) }

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported role %q", s)
	}
	return r, nil
}
