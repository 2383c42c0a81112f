package auth

// Role is the access tier carried in a token. Higher tiers include the
// capabilities of the lower ones.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole maps a claim string onto a known role. Unknown values are
// rejected, never defaulted.
func NormalizeRole(value string) (Role, bool) {
	role := Role(value)
	if _, known := roleRanks[role]; !known {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role meets the required tier.
func RoleAtLeast(role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}
