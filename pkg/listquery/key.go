package listquery

import (
	"net/url"
	"strconv"
	"strings"
)

// Scope identifies whose data a cached entry belongs to.
type Scope struct {
	Role          string
	InstitutionID int64
}

func (s Scope) String() string {
	role := s.Role
	if role == "" {
		role = "anon"
	}
	if s.InstitutionID <= 0 {
		return role + "@-"
	}
	return role + "@" + strconv.FormatInt(s.InstitutionID, 10)
}

// CacheKey renders "<resource>:<scope>:<params>". url.Values.Encode sorts by
// parameter name, so equal inputs always give equal keys.
func CacheKey(resource string, scope Scope, params url.Values) string {
	return Prefix(resource) + scope.String() + ":" + params.Encode()
}

// Prefix is the invalidation prefix of every key of resource.
func Prefix(resource string) string {
	return strings.ReplaceAll(resource, ":", "_") + ":"
}
