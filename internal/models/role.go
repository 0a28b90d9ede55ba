package models

import "strings"

// UserRole is the caller's role as carried in the access token.
type UserRole string

const (
	RoleSuperAdmin     UserRole = "superadmin"
	RoleRegionAdmin    UserRole = "regionadmin"
	RoleRegionOperator UserRole = "regionoperator"
	RoleSectorAdmin    UserRole = "sektoradmin"
	RoleSectorOperator UserRole = "sektoroperator"
	RoleSchoolAdmin    UserRole = "schooladmin"
	RoleTeacher        UserRole = "teacher"
)

var knownRoles = map[UserRole]struct{}{
	RoleSuperAdmin:     {},
	RoleRegionAdmin:    {},
	RoleRegionOperator: {},
	RoleSectorAdmin:    {},
	RoleSectorOperator: {},
	RoleSchoolAdmin:    {},
	RoleTeacher:        {},
}

// roleAliases maps the local-language role names some tokens carry.
var roleAliases = map[string]UserRole{
	"məktəbadmin": RoleSchoolAdmin,
	"müəllim":     RoleTeacher,
}

// ParseRole normalises a role name. Unknown roles report false.
func ParseRole(raw string) (UserRole, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := roleAliases[name]; ok {
		return alias, true
	}
	role := UserRole(name)
	_, ok := knownRoles[role]
	return role, ok
}

// InstitutionBound reports whether the role only ever sees its own institution.
func (r UserRole) InstitutionBound() bool {
	return r == RoleSchoolAdmin || r == RoleTeacher
}
