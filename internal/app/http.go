package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grievanceos/api/internal/authpw"
	"grievanceos/api/internal/export"
	"grievanceos/api/internal/rbac"
	"grievanceos/api/internal/session"
	"grievanceos/api/internal/storage"
	"grievanceos/api/internal/suggest"
)

// multipartOverhead is the slack allowed on top of the upload limit for
// multipart boundaries and headers.
const multipartOverhead = 1 << 20

type HTTPOptions struct {
	CORSOrigin string
	Logger     *slog.Logger
	Metrics    *Metrics
	Gatherer   prometheus.Gatherer
}

type HTTPServer struct {
	service    *Service
	sessions   *session.Manager
	corsOrigin string
	logger     *slog.Logger
	metrics    *Metrics
	gatherer   prometheus.Gatherer
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess session.Session)

type pageHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func NewHTTPServer(service *Service, sessions *session.Manager, opts HTTPOptions) *HTTPServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		service:    service,
		sessions:   sessions,
		corsOrigin: opts.CORSOrigin,
		logger:     logger.With(slog.String("component", "http")),
		metrics:    opts.Metrics,
		gatherer:   opts.Gatherer,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(s.withMiddleware)
	if s.metrics != nil {
		router.Use(s.metrics.middleware)
	}

	router.Get("/api/health", s.handleHealth)
	router.Get("/api/ready", s.handleReady)
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Form posts from the login, setup and registration pages.
	router.Post("/setup", s.page(s.handleSetup))
	router.Post("/login", s.page(s.handleLogin))
	router.Post("/org/{slug}/register", s.page(s.handleRegister))

	router.Post("/api/auth/logout", s.handleLogout)
	router.Get("/api/session", s.handleSession)

	router.Get("/api/departments", s.authed(s.handleListDepartments))
	router.Post("/api/departments", s.authed(s.handleCreateDepartment))
	router.Delete("/api/departments/{id}", s.authed(s.handleDeleteDepartment))

	router.Get("/api/dept-admins", s.authed(s.handleListDeptAdmins))
	router.Post("/api/dept-admins", s.authed(s.handleCreateDeptAdmin))
	router.Delete("/api/dept-admins/{id}", s.authed(s.handleDeleteDeptAdmin))

	router.Get("/api/complaints", s.authed(s.handleListComplaints))
	router.Post("/api/complaints/submit", s.authed(s.handleSubmitComplaint))
	router.Get("/api/complaints/search", s.authed(s.handleSearchComplaints))
	router.Get("/api/complaints/{id}", s.authed(s.handleGetComplaint))
	router.Patch("/api/complaints/{id}", s.authed(s.handleUpdateComplaint))
	router.Get("/api/complaints/{id}/responses", s.authed(s.handleListResponses))
	router.Post("/api/complaints/{id}/responses", s.authed(s.handleAddResponse))
	router.Get("/api/complaints/{id}/export", s.authed(s.handleExport))

	router.Get("/api/invite", s.authed(s.handleInviteLinks))
	router.Post("/api/invite", s.authed(s.handleSendInvites))

	router.Post("/api/ai/suggest-department", s.authed(s.handleSuggestDepartment))
	router.Post("/api/upload", s.authed(s.handleUpload))

	router.Get("/", s.page(s.handleHomePage))
	router.Get("/login", s.page(s.handleLoginPage))
	router.Get("/setup", s.page(s.handleSetupPage))
	router.Get("/org/{slug}/register", s.page(s.handleRegisterPage))
	router.Get("/org/{slug}", s.tenantPage(s.handleUserDashboard))
	router.Get("/org/{slug}/admin", s.tenantPage(s.handleAdminDashboard))
	router.Get("/org/{slug}/admin/complaints", s.tenantPage(s.handleAdminComplaints))
	router.Get("/org/{slug}/admin/departments", s.tenantPage(s.handleAdminDepartments))
	router.Get("/org/{slug}/admin/dept-admins", s.tenantPage(s.handleAdminDeptAdmins))
	router.Get("/org/{slug}/admin/invite", s.tenantPage(s.handleAdminInvite))
	router.Get("/org/{slug}/dept/{deptId}", s.tenantPage(s.handleDeptDashboard))
	router.Get("/org/{slug}/complaint/{id}", s.tenantPage(s.handleComplaintPage))
	router.HandleFunc("/org/*", s.page(s.handleUnknownPage))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return router
}

// authed runs next with the caller's session, or answers 401.
func (s *HTTPServer) authed(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentSession(w, r)
		if sess == nil {
			s.writeServiceError(w, r, errUnauthorized)
			return
		}
		next(w, r, *sess)
	}
}

// page applies the page authorization rules before next runs. next receives
// nil for anonymous callers on public pages.
func (s *HTTPServer) page(next pageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentSession(w, r)
		var subject *rbac.Subject
		if sess != nil {
			subject = sess.Subject()
		}
		decision := rbac.Authorize(r.URL.Path, subject)
		if decision.Outcome == rbac.Redirect {
			http.Redirect(w, r, decision.Location, http.StatusFound)
			return
		}
		next(w, r, sess)
	}
}

// currentSession reads the cookie session. A dept admin whose account is gone,
// directly or with its department, is signed out.
func (s *HTTPServer) currentSession(w http.ResponseWriter, r *http.Request) *session.Session {
	sess := s.sessions.Read(r)
	if sess == nil {
		return nil
	}
	active, err := s.service.SessionActive(r.Context(), *sess)
	if err != nil {
		s.logger.LogAttrs(r.Context(), slog.LevelError, "session check failed",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !active {
		s.sessions.Destroy(r.Context(), w, sess)
		return nil
	}
	return sess
}

func (s *HTTPServer) tenantPage(next sessionHandler) http.HandlerFunc {
	return s.page(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if sess == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next(w, r, *sess)
	})
}

// Health

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Authentication

func (s *HTTPServer) startSession(w http.ResponseWriter, r *http.Request, identity session.Session, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	established, err := s.sessions.Establish(w, identity)
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("establish session: %w", err))
		return
	}
	http.Redirect(w, r, rbac.DashboardPath(*established.Subject()), http.StatusSeeOther)
}

func (s *HTTPServer) handleSetup(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	identity, err := s.service.SetupOrganization(r.Context(), authpw.SetupRequest{
		OrgName:  r.PostFormValue("org_name"),
		FullName: r.PostFormValue("full_name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	s.startSession(w, r, identity, err)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	identity, err := s.service.Login(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	s.startSession(w, r, identity, err)
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	identity, err := s.service.Register(r.Context(), authpw.RegisterRequest{
		OrgSlug:  chi.URLParam(r, "slug"),
		FullName: r.PostFormValue("full_name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}, r.PostFormValue("invite"))
	s.startSession(w, r, identity, err)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Destroy(r.Context(), w, s.sessions.Read(r))
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":  true,
		"userId":         sess.ID,
		"email":          sess.Email,
		"fullName":       sess.FullName,
		"role":           sess.Role,
		"organizationId": sess.OrganizationID,
		"orgSlug":        sess.OrgSlug,
		"departmentId":   sess.DepartmentID,
		"dashboard":      rbac.DashboardPath(*sess.Subject()),
	})
}

// Departments

func (s *HTTPServer) handleListDepartments(w http.ResponseWriter, r *http.Request, sess session.Session) {
	departments, err := s.service.ListDepartments(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": departments})
}

func (s *HTTPServer) handleCreateDepartment(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	dept, err := s.service.CreateDepartment(r.Context(), sess, body.Name, body.Description)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"department": dept})
}

func (s *HTTPServer) handleDeleteDepartment(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.service.DeleteDepartment(r.Context(), sess, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Department admins

func (s *HTTPServer) handleListDeptAdmins(w http.ResponseWriter, r *http.Request, sess session.Session) {
	admins, err := s.service.ListDeptAdmins(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deptAdmins": admins})
}

func (s *HTTPServer) handleCreateDeptAdmin(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var body struct {
		FullName     string     `json:"full_name"`
		Email        string     `json:"email"`
		Password     string     `json:"password"`
		DepartmentID flexibleID `json:"department_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	req := authpw.DeptAdminRequest{FullName: body.FullName, Email: body.Email, Password: body.Password}
	if body.DepartmentID.Value != nil {
		req.DepartmentID = *body.DepartmentID.Value
	}
	admin, err := s.service.CreateDeptAdmin(r.Context(), sess, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"deptAdmin": admin})
}

func (s *HTTPServer) handleDeleteDeptAdmin(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.service.DeleteDeptAdmin(r.Context(), sess, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Complaints

func (s *HTTPServer) handleListComplaints(w http.ResponseWriter, r *http.Request, sess session.Session) {
	filter, ok := queryID(w, r, "department_id")
	if !ok {
		return
	}
	complaints, err := s.service.ListComplaints(r.Context(), sess, filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"complaints": complaints})
}

func (s *HTTPServer) handleSubmitComplaint(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var body struct {
		Title        string     `json:"title"`
		Description  string     `json:"description"`
		DepartmentID flexibleID `json:"department_id"`
		Priority     string     `json:"priority"`
		FileURL      string     `json:"file_url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	complaint, err := s.service.SubmitComplaint(r.Context(), sess, SubmitComplaintInput{
		Title:        body.Title,
		Description:  body.Description,
		DepartmentID: body.DepartmentID.Value,
		Priority:     body.Priority,
		FileURL:      body.FileURL,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"complaint": complaint})
}

func (s *HTTPServer) handleSearchComplaints(w http.ResponseWriter, r *http.Request, sess session.Session) {
	query := r.URL.Query()
	filter, ok := queryID(w, r, "department_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	writeJSON(w, http.StatusOK, s.service.SearchComplaints(r.Context(), sess, query.Get("q"), filter, limit, offset))
}

func (s *HTTPServer) handleGetComplaint(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	complaint, err := s.service.GetComplaint(r.Context(), sess, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"complaint": complaint})
}

func (s *HTTPServer) handleUpdateComplaint(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch ComplaintPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	complaint, err := s.service.UpdateComplaint(r.Context(), sess, id, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"complaint": complaint})
}

// Responses

func (s *HTTPServer) handleListResponses(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	responses, err := s.service.ListResponses(r.Context(), sess, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (s *HTTPServer) handleAddResponse(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Message string `json:"message"`
		FileURL string `json:"file_url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	response, err := s.service.AddResponse(r.Context(), sess, id, body.Message, body.FileURL)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"response": response})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "format must be pdf or docx", nil)
		return
	}
	result, err := s.service.ExportComplaint(r.Context(), sess, id, format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// Invitations

func (s *HTTPServer) handleInviteLinks(w http.ResponseWriter, r *http.Request, sess session.Session) {
	links, err := s.service.InviteLinks(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *HTTPServer) handleSendInvites(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var body struct {
		Emails []string `json:"emails"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	results, err := s.service.SendInvites(r.Context(), sess, body.Emails)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": results})
}

// AI suggestion. Every outcome, including a malformed body, is a 200 with a
// null department so the submit form can carry on without one.

func (s *HTTPServer) handleSuggestDepartment(w http.ResponseWriter, r *http.Request, sess session.Session) {
	var body struct {
		Description string              `json:"description"`
		Departments []suggest.Candidate `json:"departments"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"department_id": nil})
		return
	}
	result := s.service.SuggestDepartment(r.Context(), body.Description, body.Departments)
	payload := map[string]any{"department_id": result.DepartmentID}
	if result.Reason != "" {
		payload["error"] = result.Reason
	}
	writeJSON(w, http.StatusOK, payload)
}

// Uploads

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, sess session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(storage.MaxUploadBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeServiceError(w, r, badRequest("File must be under 10 MB"))
			return
		}
		s.writeServiceError(w, r, badRequest("No file provided"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeServiceError(w, r, badRequest("No file provided"))
		return
	}
	defer file.Close()

	result, err := s.service.Upload(r.Context(), sess, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Pages

func (s *HTTPServer) handleHomePage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, s.service.HomePage(sess))
}

func (s *HTTPServer) handleLoginPage(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"page": "login", "action": "/login"})
}

func (s *HTTPServer) handleSetupPage(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"page": "setup", "action": "/setup"})
}

func (s *HTTPServer) handleRegisterPage(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	s.writePage(w, r)(s.service.RegisterPage(r.Context(), chi.URLParam(r, "slug")))
}

// handleUnknownPage answers tenant paths with no page once the caller has
// cleared the redirect rules.
func (s *HTTPServer) handleUnknownPage(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUserDashboard(w http.ResponseWriter, r *http.Request, sess session.Session) {
	s.writePage(w, r)(s.service.UserDashboard(r.Context(), sess))
}

func (s *HTTPServer) handleAdminDashboard(w http.ResponseWriter, r *http.Request, sess session.Session) {
	s.writePage(w, r)(s.service.AdminDashboard(r.Context(), sess))
}

func (s *HTTPServer) handleAdminComplaints(w http.ResponseWriter, r *http.Request, sess session.Session) {
	filter, ok := queryID(w, r, "department_id")
	if !ok {
		return
	}
	s.writePage(w, r)(s.service.AdminComplaints(r.Context(), sess, filter))
}

func (s *HTTPServer) handleAdminDepartments(w http.ResponseWriter, r *http.Request, sess session.Session) {
	s.writePage(w, r)(s.service.AdminDepartments(r.Context(), sess))
}

func (s *HTTPServer) handleAdminDeptAdmins(w http.ResponseWriter, r *http.Request, sess session.Session) {
	s.writePage(w, r)(s.service.AdminDeptAdmins(r.Context(), sess))
}

func (s *HTTPServer) handleAdminInvite(w http.ResponseWriter, r *http.Request, sess session.Session) {
	links, err := s.service.InviteLinks(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *HTTPServer) handleDeptDashboard(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "deptId")
	if !ok {
		return
	}
	s.writePage(w, r)(s.service.DeptDashboard(r.Context(), sess, id))
}

func (s *HTTPServer) handleComplaintPage(w http.ResponseWriter, r *http.Request, sess session.Session) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.writePage(w, r)(s.service.ComplaintPage(r.Context(), sess, id))
}

func (s *HTTPServer) writePage(w http.ResponseWriter, r *http.Request) func(map[string]any, error) {
	return func(payload map[string]any, err error) {
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

// Plumbing

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, code, message, details)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, ok := parseID(chi.URLParam(r, name))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return id, ok
}

func queryID(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	id, ok := optionalQueryID(r.URL.Query().Get(name))
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("invalid %s", name), nil)
	}
	return id, ok
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		level := slog.LevelInfo
		switch {
		case writer.status >= 500:
			level = slog.LevelError
		case writer.status >= 400:
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(ctx, level, "request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", writer.status),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
