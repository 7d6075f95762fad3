package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grievanceos/api/internal/auth"
	"grievanceos/api/internal/authpw"
	"grievanceos/api/internal/config"
	"grievanceos/api/internal/export"
	"grievanceos/api/internal/rbac"
	"grievanceos/api/internal/search"
	"grievanceos/api/internal/session"
	"grievanceos/api/internal/storage"
	"grievanceos/api/internal/store"
	"grievanceos/api/internal/suggest"
)

type dataStore interface {
	GetOrganizationBySlug(context.Context, string) (store.Organization, error)
	GetOrganizationByID(context.Context, int64) (store.Organization, error)
	ListDepartments(context.Context, int64) ([]store.Department, error)
	GetDepartment(context.Context, int64, int64) (store.Department, error)
	CreateDepartment(context.Context, store.Department) (store.Department, error)
	DeleteDepartment(context.Context, int64, int64) error
	ListDeptAdmins(context.Context, int64) ([]store.DeptAdmin, error)
	DeptAdminInOrganization(context.Context, int64, int64) (bool, error)
	DeleteDeptAdmin(context.Context, int64, int64) error
	ListComplaints(context.Context, store.ComplaintScope, int) ([]store.Complaint, error)
	GetComplaint(context.Context, store.ComplaintScope, int64) (store.Complaint, error)
	CreateComplaint(context.Context, store.Complaint) (store.Complaint, error)
	UpdateComplaint(context.Context, store.ComplaintScope, int64, store.ComplaintUpdate) (store.Complaint, error)
	CountComplaintsByStatus(context.Context, store.ComplaintScope) (store.StatusCounts, error)
	CountOrganizationMembers(context.Context, int64) (store.OrgCounts, error)
	ListResponses(context.Context, int64) ([]store.Response, error)
	CreateResponse(context.Context, store.Response) (store.Response, error)
	CountResponsesByComplaint(context.Context, []int64) (map[int64]int, error)
	Ping(context.Context) error
}

type accountService interface {
	SignIn(context.Context, string, string) (authpw.Identity, error)
	SetupOrganization(context.Context, authpw.SetupRequest) (store.Organization, store.Account, error)
	RegisterUser(context.Context, authpw.RegisterRequest) (store.Organization, store.Account, error)
	CreateDeptAdmin(context.Context, int64, authpw.DeptAdminRequest) (store.Account, error)
}

type departmentSuggester interface {
	Suggest(ctx context.Context, description string, departments []suggest.Candidate) suggest.Result
}

type complaintSearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexComplaint(rec search.ComplaintRecord)
	ReindexOrganization(ctx context.Context, organizationID int64)
}

type complaintExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type inviteMailer interface {
	IsConfigured() bool
	SendInvitationEmail(to, organizationName, registerURL string, ttl time.Duration) error
}

// Deps are the collaborators of Service. Search, Exporter and Mailer may be nil.
type Deps struct {
	Store     dataStore
	Accounts  accountService
	Suggester departmentSuggester
	Objects   storage.ObjectStore
	Search    complaintSearch
	Exporter  complaintExporter
	Mailer    inviteMailer
	Logger    *slog.Logger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	accounts  accountService
	suggester departmentSuggester
	objects   storage.ObjectStore
	search    complaintSearch
	exporter  complaintExporter
	mailer    inviteMailer
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		accounts:  deps.Accounts,
		suggester: deps.Suggester,
		objects:   deps.Objects,
		search:    deps.Search,
		exporter:  deps.Exporter,
		mailer:    deps.Mailer,
		logger:    logger.With(slog.String("component", "app")),
		now:       time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) inviteSecret() []byte {
	return []byte(s.cfg.SessionSecret)
}

// complaintScope narrows complaint queries by role. departmentFilter is only
// honoured for organization admins.
func complaintScope(sess session.Session, departmentFilter *int64) store.ComplaintScope {
	scope := store.ComplaintScope{OrganizationID: sess.OrganizationID}
	switch sess.Role {
	case rbac.RoleUser:
		id := sess.ID
		scope.UserID = &id
	case rbac.RoleDeptAdmin:
		scope.DepartmentID = sess.DepartmentID
	case rbac.RoleOrgAdmin:
		scope.DepartmentID = departmentFilter
	}
	return scope
}

func authorizeAction(sess session.Session, action rbac.Action) error {
	if !rbac.Can(sess.Role, action) {
		return errForbidden
	}
	return nil
}

// identityFromAccount builds the session identity for a freshly authenticated account.
func identityFromAccount(account store.Account, orgSlug string) session.Session {
	return session.Session{
		ID:             account.ID,
		Email:          account.Email,
		FullName:       account.FullName,
		Role:           account.Role,
		OrganizationID: account.OrganizationID,
		OrgSlug:        orgSlug,
		DepartmentID:   account.DepartmentID,
	}
}

// Authentication

func (s *Service) Login(ctx context.Context, email, password string) (session.Session, error) {
	identity, err := s.accounts.SignIn(ctx, email, password)
	if err != nil {
		return session.Session{}, err
	}
	return identityFromAccount(identity.Account, identity.OrgSlug), nil
}

func (s *Service) SetupOrganization(ctx context.Context, req authpw.SetupRequest) (session.Session, error) {
	org, admin, err := s.accounts.SetupOrganization(ctx, req)
	if err != nil {
		return session.Session{}, err
	}
	admin.Role = rbac.RoleOrgAdmin
	s.logger.Info("organization created", slog.Int64("organization_id", org.ID), slog.String("slug", org.Slug))
	return identityFromAccount(admin, org.Slug), nil
}

// Register creates an end user. When invite is set it must have been issued
// for this organization and, if it names one, this email.
func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest, invite string) (session.Session, error) {
	if invite = strings.TrimSpace(invite); invite != "" {
		if err := auth.VerifyInvite(s.inviteSecret(), invite, req.OrgSlug, authpw.NormalizeEmail(req.Email)); err != nil {
			return session.Session{}, err
		}
	}
	org, user, err := s.accounts.RegisterUser(ctx, req)
	if errors.Is(err, authpw.ErrEmailInUse) {
		return session.Session{}, domainError(http.StatusConflict, "EMAIL_IN_USE", "An account with this email already exists.", nil)
	}
	if err != nil {
		return session.Session{}, err
	}
	user.Role = rbac.RoleUser
	return identityFromAccount(user, org.Slug), nil
}

// Departments

func (s *Service) ListDepartments(ctx context.Context, sess session.Session) ([]store.Department, error) {
	return s.store.ListDepartments(ctx, sess.OrganizationID)
}

func (s *Service) CreateDepartment(ctx context.Context, sess session.Session, name, description string) (store.Department, error) {
	if err := authorizeAction(sess, rbac.ActionManageDepartments); err != nil {
		return store.Department{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Department{}, badRequest("Department name is required")
	}
	dept := store.Department{OrganizationID: sess.OrganizationID, Name: name}
	if description = strings.TrimSpace(description); description != "" {
		dept.Description = &description
	}
	return s.store.CreateDepartment(ctx, dept)
}

func (s *Service) DeleteDepartment(ctx context.Context, sess session.Session, id int64) error {
	if err := authorizeAction(sess, rbac.ActionManageDepartments); err != nil {
		return err
	}
	if err := s.store.DeleteDepartment(ctx, sess.OrganizationID, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.ReindexOrganization(ctx, sess.OrganizationID)
	}
	return nil
}

// Department admins

// SessionActive reports whether the account behind sess still exists. Only
// dept admins can disappear under a live session, when they or their
// department are deleted.
func (s *Service) SessionActive(ctx context.Context, sess session.Session) (bool, error) {
	if sess.Role != rbac.RoleDeptAdmin {
		return true, nil
	}
	return s.store.DeptAdminInOrganization(ctx, sess.OrganizationID, sess.ID)
}

func (s *Service) ListDeptAdmins(ctx context.Context, sess session.Session) ([]store.DeptAdmin, error) {
	if err := authorizeAction(sess, rbac.ActionManageDeptAdmins); err != nil {
		return nil, err
	}
	return s.store.ListDeptAdmins(ctx, sess.OrganizationID)
}

func (s *Service) CreateDeptAdmin(ctx context.Context, sess session.Session, req authpw.DeptAdminRequest) (store.Account, error) {
	if err := authorizeAction(sess, rbac.ActionManageDeptAdmins); err != nil {
		return store.Account{}, err
	}
	return s.accounts.CreateDeptAdmin(ctx, sess.OrganizationID, req)
}

func (s *Service) DeleteDeptAdmin(ctx context.Context, sess session.Session, id int64) error {
	if err := authorizeAction(sess, rbac.ActionManageDeptAdmins); err != nil {
		return err
	}
	return s.store.DeleteDeptAdmin(ctx, sess.OrganizationID, id)
}

// Complaints

type SubmitComplaintInput struct {
	Title        string
	Description  string
	DepartmentID *int64
	Priority     string
	FileURL      string
}

func (s *Service) ListComplaints(ctx context.Context, sess session.Session, departmentFilter *int64) ([]store.Complaint, error) {
	return s.store.ListComplaints(ctx, complaintScope(sess, departmentFilter), 0)
}

func (s *Service) GetComplaint(ctx context.Context, sess session.Session, id int64) (store.Complaint, error) {
	return s.store.GetComplaint(ctx, complaintScope(sess, nil), id)
}

func (s *Service) SubmitComplaint(ctx context.Context, sess session.Session, input SubmitComplaintInput) (store.Complaint, error) {
	if !rbac.Can(sess.Role, rbac.ActionSubmitComplaint) {
		return store.Complaint{}, forbidden("Only users can submit complaints")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return store.Complaint{}, badRequest("Title and description are required")
	}

	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = store.PriorityMedium
	}
	if !store.ValidPriority(priority) {
		return store.Complaint{}, badRequest("Invalid priority")
	}
	if input.DepartmentID != nil {
		if err := s.requireDepartment(ctx, sess.OrganizationID, *input.DepartmentID); err != nil {
			return store.Complaint{}, err
		}
	}

	complaint := store.Complaint{
		OrganizationID: sess.OrganizationID,
		DepartmentID:   input.DepartmentID,
		UserID:         sess.ID,
		Title:          title,
		Description:    description,
		Status:         store.StatusPending,
		Priority:       priority,
	}
	if fileURL := strings.TrimSpace(input.FileURL); fileURL != "" {
		complaint.FileURL = &fileURL
	}

	created, err := s.store.CreateComplaint(ctx, complaint)
	if err != nil {
		return store.Complaint{}, err
	}
	s.index(created)
	return created, nil
}

// ComplaintPatch is a partial complaint update. Absent fields are left unchanged.
type ComplaintPatch struct {
	Status       *string    `json:"status"`
	Priority     *string    `json:"priority"`
	DepartmentID optionalID `json:"department_id"`
	AssignedTo   optionalID `json:"assigned_to"`
}

// UpdateComplaint applies patch inside the caller's scope. Applying the same
// patch twice leaves the complaint in the same state.
func (s *Service) UpdateComplaint(ctx context.Context, sess session.Session, id int64, patch ComplaintPatch) (store.Complaint, error) {
	if err := authorizeAction(sess, rbac.ActionUpdateComplaint); err != nil {
		return store.Complaint{}, err
	}

	var update store.ComplaintUpdate
	if patch.Status != nil {
		status := strings.TrimSpace(*patch.Status)
		if !store.ValidStatus(status) {
			return store.Complaint{}, badRequest("Invalid status")
		}
		update.Status = &status
	}
	if patch.Priority != nil {
		priority := strings.TrimSpace(*patch.Priority)
		if !store.ValidPriority(priority) {
			return store.Complaint{}, badRequest("Invalid priority")
		}
		update.Priority = &priority
	}
	if patch.DepartmentID.Set {
		if patch.DepartmentID.Value != nil {
			if err := s.requireDepartment(ctx, sess.OrganizationID, *patch.DepartmentID.Value); err != nil {
				return store.Complaint{}, err
			}
		}
		update.SetDepartment = true
		update.DepartmentID = patch.DepartmentID.Value
	}
	if patch.AssignedTo.Set {
		if patch.AssignedTo.Value != nil {
			ok, err := s.store.DeptAdminInOrganization(ctx, sess.OrganizationID, *patch.AssignedTo.Value)
			if err != nil {
				return store.Complaint{}, err
			}
			if !ok {
				return store.Complaint{}, badRequest("Assignee not found")
			}
		}
		update.SetAssignee = true
		update.AssignedTo = patch.AssignedTo.Value
	}

	updated, err := s.store.UpdateComplaint(ctx, complaintScope(sess, nil), id, update)
	if err != nil {
		return store.Complaint{}, err
	}
	if !update.Empty() {
		s.index(updated)
	}
	return updated, nil
}

func (s *Service) requireDepartment(ctx context.Context, orgID, departmentID int64) error {
	if _, err := s.store.GetDepartment(ctx, orgID, departmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return badRequest("Department not found")
		}
		return err
	}
	return nil
}

func (s *Service) index(c store.Complaint) {
	if s.search != nil {
		s.search.IndexComplaint(search.RecordFromComplaint(c))
	}
}

// Responses

func (s *Service) ListResponses(ctx context.Context, sess session.Session, complaintID int64) ([]store.Response, error) {
	if _, err := s.GetComplaint(ctx, sess, complaintID); err != nil {
		return nil, err
	}
	return s.store.ListResponses(ctx, complaintID)
}

func (s *Service) AddResponse(ctx context.Context, sess session.Session, complaintID int64, message, fileURL string) (store.Response, error) {
	if err := authorizeAction(sess, rbac.ActionRespond); err != nil {
		return store.Response{}, err
	}
	message = strings.TrimSpace(message)
	fileURL = strings.TrimSpace(fileURL)
	if message == "" && fileURL == "" {
		return store.Response{}, badRequest("Message or file is required")
	}
	if _, err := s.GetComplaint(ctx, sess, complaintID); err != nil {
		return store.Response{}, err
	}

	response := store.Response{
		ComplaintID: complaintID,
		AuthorType:  sess.Role,
		AuthorID:    sess.ID,
		Message:     message,
	}
	if fileURL != "" {
		response.FileURL = &fileURL
	}
	return s.store.CreateResponse(ctx, response)
}

// Search and export

func (s *Service) SearchComplaints(ctx context.Context, sess session.Session, text string, departmentFilter *int64, limit, offset int) search.Response {
	text = strings.TrimSpace(text)
	if text == "" || s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{
		Text:   text,
		Scope:  complaintScope(sess, departmentFilter),
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Service) ExportComplaint(ctx context.Context, sess session.Session, id int64, format export.Format) (*export.Result, error) {
	if err := authorizeAction(sess, rbac.ActionExport); err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	result, err := s.exporter.Export(ctx, export.Request{ComplaintID: id, Scope: complaintScope(sess, nil), Format: format})
	switch {
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, export.ErrUnsupportedFormat):
		return nil, badRequest("format must be pdf or docx")
	}
	return result, err
}

// Invitations

type InviteLinks struct {
	Organization store.Organization `json:"organization"`
	RegisterURL  string             `json:"registerUrl"`
	LoginURL     string             `json:"loginUrl"`
}

type InviteResult struct {
	Email string `json:"email"`
	Sent  bool   `json:"sent"`
	Link  string `json:"link,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Service) InviteLinks(ctx context.Context, sess session.Session) (InviteLinks, error) {
	if err := authorizeAction(sess, rbac.ActionInvite); err != nil {
		return InviteLinks{}, err
	}
	org, err := s.store.GetOrganizationByID(ctx, sess.OrganizationID)
	if err != nil {
		return InviteLinks{}, err
	}
	return InviteLinks{
		Organization: org,
		RegisterURL:  s.registerURL(org.Slug, ""),
		LoginURL:     s.cfg.BaseURL + "/login",
	}, nil
}

func (s *Service) registerURL(slug, token string) string {
	u := s.cfg.BaseURL + "/org/" + url.PathEscape(slug) + "/register"
	if token != "" {
		u += "?invite=" + url.QueryEscape(token)
	}
	return u
}

// SendInvites issues one invite token per address and mails it. Addresses that
// could not be mailed get their link back so the admin can share it.
func (s *Service) SendInvites(ctx context.Context, sess session.Session, emails []string) ([]InviteResult, error) {
	if err := authorizeAction(sess, rbac.ActionInvite); err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, badRequest("At least one email is required")
	}
	org, err := s.store.GetOrganizationByID(ctx, sess.OrganizationID)
	if err != nil {
		return nil, err
	}

	mailerReady := s.mailer != nil && s.mailer.IsConfigured()
	results := make([]InviteResult, 0, len(emails))
	for _, raw := range emails {
		email := authpw.NormalizeEmail(raw)
		if email == "" {
			continue
		}
		if !strings.Contains(email, "@") {
			results = append(results, InviteResult{Email: email, Error: "Invalid email"})
			continue
		}
		token, err := auth.IssueInvite(s.inviteSecret(), org.Slug, email, s.cfg.InviteTTL)
		if err != nil {
			return nil, fmt.Errorf("issue invite: %w", err)
		}
		link := s.registerURL(org.Slug, token)

		if !mailerReady {
			results = append(results, InviteResult{Email: email, Link: link})
			continue
		}
		if err := s.mailer.SendInvitationEmail(email, org.Name, link, s.cfg.InviteTTL); err != nil {
			s.logger.Error("send invitation failed", slog.String("email", email), slog.String("error", err.Error()))
			results = append(results, InviteResult{Email: email, Link: link, Error: "Email delivery failed"})
			continue
		}
		results = append(results, InviteResult{Email: email, Sent: true})
	}
	if len(results) == 0 {
		return nil, badRequest("At least one email is required")
	}
	return results, nil
}

// AI suggestion

func (s *Service) SuggestDepartment(ctx context.Context, description string, departments []suggest.Candidate) suggest.Result {
	if s.suggester == nil {
		return suggest.Result{Reason: suggest.ReasonNoAPIKey}
	}
	return s.suggester.Suggest(ctx, description, departments)
}

// Uploads

type UploadResult struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// Upload stores an attachment under the caller's organization. Size limits
// are enforced before any call to object storage.
func (s *Service) Upload(ctx context.Context, sess session.Session, fileName, contentType string, size int64, body io.Reader) (UploadResult, error) {
	if size <= 0 {
		return UploadResult{}, badRequest("No file provided")
	}
	if size > storage.MaxUploadBytes {
		return UploadResult{}, badRequest("File must be under 10 MB")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := storage.ObjectKey(sess.OrganizationID, fileName, s.now())
	if err := s.objects.Put(ctx, key, body, size, contentType); err != nil {
		s.logger.Error("upload failed", slog.String("key", key), slog.String("error", err.Error()))
		return UploadResult{}, domainError(http.StatusInternalServerError, "UPLOAD_FAILED", err.Error(), nil)
	}
	return UploadResult{URL: s.objects.PublicURL(key), FileName: fileName}, nil
}
