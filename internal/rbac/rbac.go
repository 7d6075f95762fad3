package rbac

import (
	"path"
	"strconv"
	"strings"
)

type Role string
type Action string

const (
	RoleOrgAdmin  Role = "org_admin"
	RoleDeptAdmin Role = "dept_admin"
	RoleUser      Role = "user"
)

const (
	ActionRead              Action = "read"
	ActionSubmitComplaint   Action = "submit_complaint"
	ActionUpdateComplaint   Action = "update_complaint"
	ActionRespond           Action = "respond"
	ActionExport            Action = "export"
	ActionViewAdminPages    Action = "view_admin_pages"
	ActionManageDepartments Action = "manage_departments"
	ActionManageDeptAdmins  Action = "manage_dept_admins"
	ActionInvite            Action = "invite"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOrgAdmin:
		return action != ActionSubmitComplaint
	case RoleDeptAdmin:
		return action == ActionRead || action == ActionUpdateComplaint || action == ActionRespond || action == ActionExport
	case RoleUser:
		return action == ActionRead || action == ActionSubmitComplaint || action == ActionRespond
	default:
		return false
	}
}

// ParseRole returns the role named by value and whether it is one of the three known roles.
func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleOrgAdmin, RoleDeptAdmin, RoleUser:
		return Role(value), true
	default:
		return "", false
	}
}

// Subject is the part of a session the authorization state machine looks at.
type Subject struct {
	Role         Role
	OrgSlug      string
	DepartmentID *int64
}

// DashboardPath is the landing page for the subject's role.
func DashboardPath(s Subject) string {
	base := "/org/" + s.OrgSlug
	switch s.Role {
	case RoleOrgAdmin:
		return base + "/admin"
	case RoleDeptAdmin:
		if s.DepartmentID == nil {
			return base
		}
		return base + "/dept/" + strconv.FormatInt(*s.DepartmentID, 10)
	case RoleUser:
		return base
	default:
		return "/login"
	}
}

type Outcome int

const (
	Allow Outcome = iota
	Redirect
)

type Decision struct {
	Outcome  Outcome
	Location string
}

func allow() Decision { return Decision{Outcome: Allow} }

func redirect(location string) Decision {
	return Decision{Outcome: Redirect, Location: location}
}

// Authorize decides whether a page request may proceed. subject is nil for
// unauthenticated callers.
func Authorize(rawPath string, subject *Subject) Decision {
	segments := splitPath(rawPath)
	authPage := isAuthPage(segments)
	protected := len(segments) >= 2 && segments[0] == "org"

	if subject == nil {
		if protected && !authPage {
			return redirect("/login")
		}
		return allow()
	}

	dashboard := DashboardPath(*subject)
	if authPage {
		return redirect(dashboard)
	}
	if !protected {
		return allow()
	}

	if segments[1] != subject.OrgSlug {
		return redirect(dashboard)
	}
	rest := segments[2:]
	if hasSegment(rest, "admin") && subject.Role != RoleOrgAdmin {
		return redirect(dashboard)
	}
	if idx := indexOf(rest, "dept"); idx >= 0 {
		if subject.Role != RoleDeptAdmin {
			return redirect(dashboard)
		}
		if idx+1 < len(rest) && !ownsDepartment(subject, rest[idx+1]) {
			return redirect(dashboard)
		}
	}
	return allow()
}

func isAuthPage(segments []string) bool {
	if len(segments) == 1 && segments[0] == "login" {
		return true
	}
	return len(segments) == 3 && segments[0] == "org" && segments[2] == "register"
}

func ownsDepartment(subject *Subject, raw string) bool {
	if subject.DepartmentID == nil {
		return false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return id == *subject.DepartmentID
}

func splitPath(rawPath string) []string {
	cleaned := path.Clean("/" + rawPath)
	trimmed := strings.Trim(cleaned, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func hasSegment(segments []string, want string) bool {
	return indexOf(segments, want) >= 0
}

func indexOf(segments []string, want string) int {
	for i, segment := range segments {
		if segment == want {
			return i
		}
	}
	return -1
}
