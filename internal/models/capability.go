package models

import "github.com/noah-isme/atis-gateway/pkg/listquery"

// Resource names a list family. It doubles as the cache key prefix.
type Resource string

const (
	ResourceInstitutions  Resource = "institutions"
	ResourceSurveys       Resource = "surveys"
	ResourceSurveyStats   Resource = "survey-stats"
	ResourceStudents      Resource = "students"
	ResourceTasks         Resource = "tasks"
	ResourceAssignedTasks Resource = "assigned-tasks"
	ResourceLinks         Resource = "links"
	ResourceAssessments   Resource = "assessments"
	ResourceAttendance    Resource = "attendance"
	ResourceExports       Resource = "exports"
)

// Capabilities is the per-request permission set for one resource.
type Capabilities = listquery.Capabilities

var (
	full     = Capabilities{CanView: true, CanCreate: true, CanEdit: true, CanDelete: true}
	manage   = Capabilities{CanView: true, CanCreate: true, CanEdit: true}
	readOnly = Capabilities{CanView: true}
)

var capabilityPolicy = map[UserRole]map[Resource]Capabilities{
	RoleSuperAdmin: {
		ResourceInstitutions: full, ResourceSurveys: full, ResourceSurveyStats: readOnly,
		ResourceStudents: full, ResourceTasks: full, ResourceAssignedTasks: full,
		ResourceLinks: full, ResourceAssessments: full, ResourceAttendance: readOnly,
		ResourceExports: full,
	},
	RoleRegionAdmin: {
		ResourceInstitutions: manage, ResourceSurveys: full, ResourceSurveyStats: readOnly,
		ResourceStudents: readOnly, ResourceTasks: full, ResourceAssignedTasks: readOnly,
		ResourceLinks: full, ResourceAssessments: readOnly, ResourceAttendance: readOnly,
		ResourceExports: manage,
	},
	RoleRegionOperator: {
		ResourceInstitutions: readOnly, ResourceSurveys: manage, ResourceSurveyStats: readOnly,
		ResourceStudents: readOnly, ResourceTasks: manage, ResourceAssignedTasks: readOnly,
		ResourceLinks: readOnly, ResourceAssessments: readOnly, ResourceAttendance: readOnly,
		ResourceExports: readOnly,
	},
	RoleSectorAdmin: {
		ResourceInstitutions: readOnly, ResourceSurveys: manage, ResourceSurveyStats: readOnly,
		ResourceStudents: readOnly, ResourceTasks: manage, ResourceAssignedTasks: readOnly,
		ResourceLinks: manage, ResourceAssessments: readOnly, ResourceAttendance: readOnly,
		ResourceExports: manage,
	},
	RoleSectorOperator: {
		ResourceInstitutions: readOnly, ResourceSurveys: readOnly, ResourceSurveyStats: readOnly,
		ResourceStudents: readOnly, ResourceTasks: readOnly, ResourceAssignedTasks: readOnly,
		ResourceLinks: readOnly, ResourceAssessments: readOnly, ResourceAttendance: readOnly,
	},
	RoleSchoolAdmin: {
		ResourceInstitutions: readOnly, ResourceSurveys: readOnly,
		ResourceStudents: full, ResourceAssignedTasks: manage,
		ResourceLinks: readOnly, ResourceAssessments: manage, ResourceAttendance: readOnly,
	},
	RoleTeacher: {
		ResourceStudents: readOnly, ResourceAssignedTasks: readOnly,
		ResourceLinks: readOnly, ResourceAssessments: manage, ResourceAttendance: readOnly,
	},
}

// CapabilitiesFor derives what role may do with resource. Unknown pairs get nothing.
func CapabilitiesFor(role UserRole, resource Resource) Capabilities {
	return capabilityPolicy[role][resource]
}

// Dependents lists the resource families whose cached data a write to r makes stale.
func (r Resource) Dependents() []Resource {
	switch r {
	case ResourceSurveys:
		return []Resource{ResourceSurveyStats}
	case ResourceTasks:
		return []Resource{ResourceAssignedTasks}
	case ResourceStudents:
		return []Resource{ResourceAttendance, ResourceAssessments}
	case ResourceInstitutions:
		return []Resource{ResourceStudents, ResourceAttendance}
	}
	return nil
}

var knownResources = []Resource{
	ResourceInstitutions, ResourceSurveys, ResourceSurveyStats, ResourceStudents, ResourceTasks,
	ResourceAssignedTasks, ResourceLinks, ResourceAssessments, ResourceAttendance, ResourceExports,
}

// ParseResource reports whether raw names a known resource family.
func ParseResource(raw string) (Resource, bool) {
	for _, r := range knownResources {
		if string(r) == raw {
			return r, true
		}
	}
	return "", false
}
