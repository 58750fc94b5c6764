package domain

type Role string

const (
	RoleClient Role = "client"
	RoleModel  Role = "model"
	// RoleSystem is used by internal callers (billing scheduler, payment webhook).
	RoleSystem Role = "system"
)

// Participant reports whether the role can be paired into a session.
func (r Role) Participant() bool {
	return r == RoleClient || r == RoleModel
}

// Complement returns the role a participant of r is paired with.
func (r Role) Complement() Role {
	switch r {
	case RoleClient:
		return RoleModel
	case RoleModel:
		return RoleClient
	default:
		return ""
	}
}

// Billable reports whether time in a session is charged to this role.
func (r Role) Billable() bool {
	return r == RoleClient
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleClient, RoleModel, RoleSystem:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}
