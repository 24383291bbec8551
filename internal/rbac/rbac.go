package rbac

// OrgRole is a member's role within an organization.
type OrgRole string

// TeamRole is a member's role within a team.
type TeamRole string

type Action string

const (
	OrgOwner  OrgRole = "owner"
	OrgAdmin  OrgRole = "admin"
	OrgMember OrgRole = "member"
	OrgViewer OrgRole = "viewer"
)

const (
	TeamLead   TeamRole = "lead"
	TeamMember TeamRole = "member"
	TeamViewer TeamRole = "viewer"
)

const (
	ActionRead       Action = "read"
	ActionWrite      Action = "write"
	ActionApprove    Action = "approve"
	ActionAdminister Action = "administer"
)

// Can reports whether an organization role may perform action.
func Can(role OrgRole, action Action) bool {
	switch role {
	case OrgOwner, OrgAdmin:
		return true
	case OrgMember:
		return action == ActionRead || action == ActionWrite || action == ActionApprove
	case OrgViewer:
		return action == ActionRead
	default:
		return false
	}
}

func CanAdminister(role OrgRole) bool {
	return Can(role, ActionAdminister)
}

func NormalizeOrgRole(role string) OrgRole {
	switch OrgRole(role) {
	case OrgOwner, OrgAdmin, OrgMember, OrgViewer:
		return OrgRole(role)
	default:
		return OrgViewer
	}
}

// NormalizeTeamRole maps unknown or empty roles to member.
func NormalizeTeamRole(role string) TeamRole {
	switch TeamRole(role) {
	case TeamLead, TeamMember, TeamViewer:
		return TeamRole(role)
	default:
		return TeamMember
	}
}
