package app

import (
	"context"
	"database/sql"
	"errors"

	"grievanceos/api/internal/rbac"
	"grievanceos/api/internal/session"
	"grievanceos/api/internal/store"
)

// ComplaintSummary is a complaint with the number of responses it has received.
type ComplaintSummary struct {
	store.Complaint
	ResponseCount int `json:"response_count"`
}

const recentComplaintLimit = 5

func (s *Service) summarize(ctx context.Context, complaints []store.Complaint) ([]ComplaintSummary, error) {
	ids := make([]int64, 0, len(complaints))
	for _, c := range complaints {
		ids = append(ids, c.ID)
	}
	counts, err := s.store.CountResponsesByComplaint(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ComplaintSummary, 0, len(complaints))
	for _, c := range complaints {
		out = append(out, ComplaintSummary{Complaint: c, ResponseCount: counts[c.ID]})
	}
	return out, nil
}

// HomePage reports where the caller should go next.
func (s *Service) HomePage(sess *session.Session) map[string]any {
	if sess == nil {
		return map[string]any{"authenticated": false, "loginUrl": "/login", "setupUrl": "/setup"}
	}
	return map[string]any{
		"authenticated": true,
		"role":          sess.Role,
		"dashboard":     rbac.DashboardPath(*sess.Subject()),
	}
}

func (s *Service) RegisterPage(ctx context.Context, slug string) (map[string]any, error) {
	org, err := s.store.GetOrganizationBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(errNotFound.Status, errNotFound.Code, "Organization not found.", nil)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"organization": map[string]any{"name": org.Name, "slug": org.Slug}}, nil
}

// UserDashboard lists the caller's own complaints and the departments they can file under.
func (s *Service) UserDashboard(ctx context.Context, sess session.Session) (map[string]any, error) {
	org, err := s.store.GetOrganizationByID(ctx, sess.OrganizationID)
	if err != nil {
		return nil, err
	}
	complaints, err := s.ListComplaints(ctx, sess, nil)
	if err != nil {
		return nil, err
	}
	summaries, err := s.summarize(ctx, complaints)
	if err != nil {
		return nil, err
	}
	departments, err := s.store.ListDepartments(ctx, sess.OrganizationID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"organization": org,
		"user":         map[string]any{"id": sess.ID, "fullName": sess.FullName, "email": sess.Email},
		"complaints":   summaries,
		"departments":  departments,
	}, nil
}

func (s *Service) AdminDashboard(ctx context.Context, sess session.Session) (map[string]any, error) {
	if err := authorizeAction(sess, rbac.ActionViewAdminPages); err != nil {
		return nil, err
	}
	org, err := s.store.GetOrganizationByID(ctx, sess.OrganizationID)
	if err != nil {
		return nil, err
	}
	scope := complaintScope(sess, nil)
	counts, err := s.store.CountComplaintsByStatus(ctx, scope)
	if err != nil {
		return nil, err
	}
	members, err := s.store.CountOrganizationMembers(ctx, sess.OrganizationID)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListComplaints(ctx, scope, recentComplaintLimit)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"organization":     org,
		"counts":           counts,
		"members":          members,
		"recentComplaints": recent,
	}, nil
}

func (s *Service) AdminComplaints(ctx context.Context, sess session.Session, departmentFilter *int64) (map[string]any, error) {
	if err := authorizeAction(sess, rbac.ActionViewAdminPages); err != nil {
		return nil, err
	}
	complaints, err := s.ListComplaints(ctx, sess, departmentFilter)
	if err != nil {
		return nil, err
	}
	summaries, err := s.summarize(ctx, complaints)
	if err != nil {
		return nil, err
	}
	departments, err := s.store.ListDepartments(ctx, sess.OrganizationID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"complaints":   summaries,
		"departments":  departments,
		"departmentId": departmentFilter,
	}, nil
}

func (s *Service) AdminDepartments(ctx context.Context, sess session.Session) (map[string]any, error) {
	if err := authorizeAction(sess, rbac.ActionViewAdminPages); err != nil {
		return nil, err
	}
	departments, err := s.store.ListDepartments(ctx, sess.OrganizationID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"departments": departments}, nil
}

func (s *Service) AdminDeptAdmins(ctx context.Context, sess session.Session) (map[string]any, error) {
	admins, err := s.ListDeptAdmins(ctx, sess)
	if err != nil {
		return nil, err
	}
	departments, err := s.store.ListDepartments(ctx, sess.OrganizationID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deptAdmins": admins, "departments": departments}, nil
}

// DeptDashboard shows one department's queue. Department admins only see their own.
func (s *Service) DeptDashboard(ctx context.Context, sess session.Session, departmentID int64) (map[string]any, error) {
	if sess.Role != rbac.RoleDeptAdmin || sess.DepartmentID == nil || *sess.DepartmentID != departmentID {
		return nil, errForbidden
	}
	dept, err := s.store.GetDepartment(ctx, sess.OrganizationID, departmentID)
	if err != nil {
		return nil, err
	}
	scope := complaintScope(sess, nil)
	complaints, err := s.store.ListComplaints(ctx, scope, 0)
	if err != nil {
		return nil, err
	}
	summaries, err := s.summarize(ctx, complaints)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountComplaintsByStatus(ctx, scope)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"department": dept,
		"complaints": summaries,
		"counts":     counts,
	}, nil
}

func (s *Service) ComplaintPage(ctx context.Context, sess session.Session, id int64) (map[string]any, error) {
	complaint, err := s.GetComplaint(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, complaint.ID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"complaint":  complaint,
		"responses":  responses,
		"department": nil,
		"canUpdate":  rbac.Can(sess.Role, rbac.ActionUpdateComplaint),
	}
	if complaint.DepartmentID != nil {
		dept, err := s.store.GetDepartment(ctx, sess.OrganizationID, *complaint.DepartmentID)
		switch {
		case err == nil:
			payload["department"] = dept
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}
	return payload, nil
}
