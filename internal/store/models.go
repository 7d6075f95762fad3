package store

import (
	"time"

	"grievanceos/api/internal/rbac"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a row from one of the three identity tables. Role says which.
type Account struct {
	ID             int64     `json:"id"`
	Role           rbac.Role `json:"role"`
	OrganizationID int64     `json:"organization_id"`
	DepartmentID   *int64    `json:"department_id,omitempty"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	FullName       string    `json:"full_name"`
	CreatedAt      time.Time `json:"created_at"`
}

type Department struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

// DeptAdmin is a department admin joined with the name of their department.
type DeptAdmin struct {
	ID             int64     `json:"id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	DepartmentID   int64     `json:"department_id"`
	DepartmentName string    `json:"department_name"`
	CreatedAt      time.Time `json:"created_at"`
}

type Complaint struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	DepartmentID   *int64    `json:"department_id"`
	UserID         int64     `json:"user_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	AssignedTo     *int64    `json:"assigned_to"`
	FileURL        *string   `json:"file_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Response struct {
	ID          int64     `json:"id"`
	ComplaintID int64     `json:"complaint_id"`
	AuthorType  rbac.Role `json:"author_type"`
	AuthorID    int64     `json:"author_id"`
	Message     string    `json:"message"`
	FileURL     *string   `json:"file_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ComplaintScope narrows complaint queries to what a caller may see.
// OrganizationID is always applied; the optional fields add further filters.
type ComplaintScope struct {
	OrganizationID int64
	UserID         *int64
	DepartmentID   *int64
}

// ComplaintUpdate carries the fields a PATCH may change. The Set* flags
// distinguish "clear to null" from "leave unchanged".
type ComplaintUpdate struct {
	Status        *string
	Priority      *string
	SetDepartment bool
	DepartmentID  *int64
	SetAssignee   bool
	AssignedTo    *int64
}

func (u ComplaintUpdate) Empty() bool {
	return u.Status == nil && u.Priority == nil && !u.SetDepartment && !u.SetAssignee
}

type StatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
	Total      int `json:"total"`
}

type OrgCounts struct {
	Departments int `json:"departments"`
	DeptAdmins  int `json:"dept_admins"`
	Users       int `json:"users"`
}
