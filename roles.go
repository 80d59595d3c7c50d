package accounts

// MemberRole is the role a user holds inside an organization
type MemberRole string

const (
	// RoleMember can work on the organization projects
	RoleMember MemberRole = "member"
	// RoleAdmin can manage members
	RoleAdmin MemberRole = "admin"
	// RoleOwner created the organization
	RoleOwner MemberRole = "owner"
)

// IsValid checks if the role is one of the predefined roles
func (r MemberRole) IsValid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// CanManageMembers reports whether the role may remove other members
func (r MemberRole) CanManageMembers() bool {
	return r.IsAtLeast(RoleAdmin)
}

// IsAtLeast checks if this role meets the minimum required level
func (r MemberRole) IsAtLeast(minRole MemberRole) bool {
	hierarchy := map[MemberRole]int{
		RoleMember: 1,
		RoleAdmin:  2,
		RoleOwner:  3,
	}

	current, ok := hierarchy[r]
	if !ok {
		return false
	}

	required, ok := hierarchy[minRole]
	if !ok {
		return false
	}

	return current >= required
}
