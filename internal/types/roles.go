package types

import "fmt"

// Role is the closed set of role labels a user can hold. Labels are
// derived from edge reality (teams owned, project edges held) and are
// reconciled by the roles package, never edited directly.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleTeamOwner      Role = "team_owner"
	RoleProjectManager Role = "project_manager"
	RoleMember         Role = "member"
)

// EdgeRole is the role attribute carried on a project worker edge.
// Exactly one worker per project holds EdgeManager at any time.
const (
	EdgeManager Role = RoleProjectManager
	EdgeMember  Role = RoleMember
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleTeamOwner, RoleProjectManager, RoleMember:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ParentKind tags the owning side of a polymorphic association.
type ParentKind string

const (
	ParentProject ParentKind = "project"
	ParentTask    ParentKind = "task"
	ParentComment ParentKind = "comment"
)
