package domain

// Role mirrors the directory's panel member roles.
type Role string

const (
	RoleHost     Role = "host"
	RoleCoHost   Role = "co_host"
	RoleSpeaker  Role = "speaker"
	RoleListener Role = "listener"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleCoHost, RoleSpeaker, RoleListener:
		return true
	}
	return false
}

// Member represents user's participation meta for a panel.
// No transport or lifecycle logic here.
type Member struct {
	User  User
	Panel PanelID
	Role  Role
}

func NewMember(user User, panel PanelID, role Role) *Member {
	if !role.Valid() {
		role = RoleListener
	}
	return &Member{User: user, Panel: panel, Role: role}
}
