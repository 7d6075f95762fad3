package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"grievanceos/api/internal/authpw"
	"grievanceos/api/internal/export"
	"grievanceos/api/internal/rbac"
	"grievanceos/api/internal/session"
	"grievanceos/api/internal/store"
	"grievanceos/api/internal/suggest"
)

type httpEnv struct {
	*testEnv
	sessions *session.Manager
	handler  http.Handler
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()
	env := newTestEnv(t)
	codec, err := session.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	sessions := session.NewManager(codec, nil, false, time.Hour, nil)
	registry := prometheus.NewRegistry()
	server := NewHTTPServer(env.service, sessions, HTTPOptions{
		CORSOrigin: "http://localhost:3000",
		Metrics:    NewMetrics(registry),
		Gatherer:   registry,
	})
	return &httpEnv{testEnv: env, sessions: sessions, handler: server.Handler()}
}

func (e *httpEnv) cookieFor(t *testing.T, identity session.Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if _, err := e.sessions.Establish(rec, identity); err != nil {
		t.Fatalf("establish: %v", err)
	}
	return rec.Result().Cookies()[0]
}

func (e *httpEnv) do(t *testing.T, method, target string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestHealthAndReady(t *testing.T) {
	env := newHTTPEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK || decodeResponse(t, rec)["ok"] != true {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}

	rec = env.do(t, http.MethodGet, "/api/ready", nil, nil)
	if rec.Code != http.StatusOK || decodeResponse(t, rec)["status"] != "ready" {
		t.Fatalf("unexpected ready response %d %s", rec.Code, rec.Body.String())
	}

	env.store.pingFn = func(context.Context) error { return errors.New("connection refused") }
	rec = env.do(t, http.MethodGet, "/api/ready", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	database := payload["checks"].(map[string]any)["database"].(map[string]any)
	if payload["status"] != "not_ready" || database["error"] != "connection refused" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPreflightAndMetrics(t *testing.T) {
	env := newHTTPEnv(t)

	rec := env.do(t, http.MethodOptions, "/api/complaints/3", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("missing CORS header")
	}

	env.do(t, http.MethodGet, "/api/health", nil, nil)
	rec = env.do(t, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `grievanceos_http_requests_total{method="GET",path="/api/health",status="200"} 1`) {
		t.Fatalf("request counter missing from:\n%s", rec.Body.String())
	}
}

func TestAPIRequiresSession(t *testing.T) {
	env := newHTTPEnv(t)
	for _, target := range []string{"/api/departments", "/api/complaints", "/api/complaints/1", "/api/invite"} {
		rec := env.do(t, http.MethodGet, target, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, rec.Code)
		}
		if code := decodeResponse(t, rec)["code"]; code != "UNAUTHORIZED" {
			t.Fatalf("%s: unexpected code %v", target, code)
		}
	}

	forged := &http.Cookie{Name: session.CookieName, Value: "forged"}
	if rec := env.do(t, http.MethodGet, "/api/complaints", nil, forged); rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged cookie: expected 401, got %d", rec.Code)
	}
}

func postForm(env *httpEnv, target, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginUsesGenericErrorAndRedirectsToDashboard(t *testing.T) {
	env := newHTTPEnv(t)
	env.accounts.signInFn = func(_ context.Context, email, password string) (authpw.Identity, error) {
		if email == "admin@acme.test" && password == "secret1" {
			return authpw.Identity{
				Account: store.Account{ID: 1, Role: rbac.RoleOrgAdmin, OrganizationID: 1, Email: email},
				OrgSlug: "acme",
			}, nil
		}
		return authpw.Identity{}, authpw.ErrInvalidCredentials
	}

	for _, form := range []string{"email=nobody@acme.test&password=secret1", "email=admin@acme.test&password=wrong"} {
		rec := postForm(env, "/login", form)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if msg := decodeResponse(t, rec)["error"]; msg != "Invalid email or password." {
			t.Fatalf("unexpected message %v", msg)
		}
	}

	rec := postForm(env, "/login", "email=admin@acme.test&password=secret1")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/org/acme/admin" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != session.CookieName {
		t.Fatalf("expected a session cookie, got %+v", cookies)
	}

	rec = env.do(t, http.MethodGet, "/api/session", nil, cookies[0])
	payload := decodeResponse(t, rec)
	if payload["authenticated"] != true || payload["orgSlug"] != "acme" || payload["role"] != "org_admin" {
		t.Fatalf("unexpected session payload %+v", payload)
	}
}

func TestSignedInFormPostsRedirectToDashboard(t *testing.T) {
	env := newHTTPEnv(t)
	var calls int
	env.accounts.signInFn = func(context.Context, string, string) (authpw.Identity, error) {
		calls++
		return authpw.Identity{}, authpw.ErrInvalidCredentials
	}
	env.accounts.registerFn = func(context.Context, authpw.RegisterRequest) (store.Organization, store.Account, error) {
		calls++
		return store.Organization{}, store.Account{}, errors.New("unexpected register")
	}

	cases := []struct {
		name     string
		target   string
		identity session.Session
		location string
	}{
		{name: "user registers in another tenant", target: "/org/other/register", identity: userSession(1, 11, "acme"), location: "/org/acme"},
		{name: "user registers again", target: "/org/acme/register", identity: userSession(1, 11, "acme"), location: "/org/acme"},
		{name: "dept admin logs in again", target: "/login", identity: deptAdminSession(1, 4, "acme"), location: "/org/acme/dept/4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.target, strings.NewReader("full_name=Sam&email=sam@acme.test&password=secret1"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.AddCookie(env.cookieFor(t, tc.identity))
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusFound {
				t.Fatalf("expected 302, got %d", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tc.location {
				t.Fatalf("expected redirect to %q, got %q", tc.location, loc)
			}
			if cookies := rec.Result().Cookies(); len(cookies) != 0 {
				t.Fatalf("session must not be replaced, got %+v", cookies)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("accounts must not be touched, got %d calls", calls)
	}
}

func TestDeletedDeptAdminIsSignedOut(t *testing.T) {
	env := newHTTPEnv(t)
	cookie := env.cookieFor(t, deptAdminSession(1, 4, "acme"))

	if rec := env.do(t, http.MethodGet, "/api/complaints", nil, cookie); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 before deletion, got %d", rec.Code)
	}
	if err := env.service.DeleteDeptAdmin(context.Background(), orgAdminSession(1, "acme"), 21); err != nil {
		t.Fatalf("delete dept admin: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/complaints", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after deletion, got %d", rec.Code)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].Value != "" || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected a cleared cookie, got %+v", cleared)
	}

	rec = env.do(t, http.MethodGet, "/org/acme/dept/4", nil, cookie)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newHTTPEnv(t)
	cookie := env.cookieFor(t, userSession(1, 11, "acme"))

	rec := env.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].Value != "" || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected a cleared cookie, got %+v", cleared)
	}
}

func TestPageAuthorizationRedirects(t *testing.T) {
	env := newHTTPEnv(t)
	user := env.cookieFor(t, userSession(1, 11, "acme"))
	deptAdmin := env.cookieFor(t, deptAdminSession(1, 4, "acme"))
	orgAdmin := env.cookieFor(t, orgAdminSession(1, "acme"))

	cases := []struct {
		name     string
		path     string
		cookie   *http.Cookie
		location string
	}{
		{name: "anonymous tenant page", path: "/org/acme", location: "/login"},
		{name: "anonymous admin page", path: "/org/acme/admin", location: "/login"},
		{name: "user on admin page", path: "/org/acme/admin", cookie: user, location: "/org/acme"},
		{name: "user on other tenant", path: "/org/globex", cookie: user, location: "/org/acme"},
		{name: "org admin on dept page", path: "/org/acme/dept/4", cookie: orgAdmin, location: "/org/acme/admin"},
		{name: "dept admin on other department", path: "/org/acme/dept/5", cookie: deptAdmin, location: "/org/acme/dept/4"},
		{name: "signed in on login", path: "/login", cookie: deptAdmin, location: "/org/acme/dept/4"},
		{name: "signed in on register", path: "/org/acme/register", cookie: user, location: "/org/acme"},
		{name: "anonymous unknown admin path", path: "/org/acme/admin/", location: "/login"},
		{name: "user on unknown admin path", path: "/org/acme/admin/x", cookie: user, location: "/org/acme"},
		{name: "dept admin on unknown tenant path", path: "/org/globex/anything", cookie: deptAdmin, location: "/org/acme/dept/4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tc.path, nil, tc.cookie)
			if rec.Code != http.StatusFound {
				t.Fatalf("expected 302, got %d", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tc.location {
				t.Fatalf("expected redirect to %q, got %q", tc.location, loc)
			}
		})
	}

	if rec := env.do(t, http.MethodGet, "/org/acme/dept/4", nil, deptAdmin); rec.Code != http.StatusOK {
		t.Fatalf("dept admin should reach own dashboard, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/org/acme/admin/x", nil, orgAdmin); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown page past the redirect rules should be 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/org/acme/register", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("register page should be public, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/org/nope/register", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown organization should be 404, got %d", rec.Code)
	}
}

func TestSubmitThenListOverHTTP(t *testing.T) {
	env := newHTTPEnv(t)
	user := env.cookieFor(t, userSession(1, 11, "acme"))

	rec := env.do(t, http.MethodPost, "/api/complaints/submit", `{"title":"Heater","description":"Cold room","department_id":"4","priority":"high"}`, user)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	created := decodeResponse(t, rec)["complaint"].(map[string]any)

	rec = env.do(t, http.MethodGet, "/api/complaints", nil, user)
	complaints := decodeResponse(t, rec)["complaints"].([]any)
	if len(complaints) != 1 {
		t.Fatalf("expected one complaint, got %d", len(complaints))
	}
	listed := complaints[0].(map[string]any)
	if listed["id"] != created["id"] || listed["department_id"] != float64(4) || listed["priority"] != "high" {
		t.Fatalf("listed complaint differs: %+v", listed)
	}

	admin := env.cookieFor(t, orgAdminSession(1, "acme"))
	rec = env.do(t, http.MethodPost, "/api/complaints/submit", `{"title":"a","description":"b"}`, admin)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("org admin submit: expected 403, got %d", rec.Code)
	}
}

func TestPatchComplaintOverHTTP(t *testing.T) {
	env := newHTTPEnv(t)
	created, _ := env.service.SubmitComplaint(context.Background(), userSession(1, 11, "acme"), SubmitComplaintInput{Title: "t", Description: "d", DepartmentID: int64Ptr(4)})
	target := "/api/complaints/" + strconv.FormatInt(created.ID, 10)
	admin := env.cookieFor(t, orgAdminSession(1, "acme"))

	body := `{"status":"resolved","department_id":null,"assigned_to":"21"}`
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPatch, target, body, admin)
		if rec.Code != http.StatusOK {
			t.Fatalf("patch %d: %d %s", i, rec.Code, rec.Body.String())
		}
		complaint := decodeResponse(t, rec)["complaint"].(map[string]any)
		if complaint["status"] != "resolved" || complaint["department_id"] != nil || complaint["assigned_to"] != float64(21) {
			t.Fatalf("patch %d: unexpected complaint %+v", i, complaint)
		}
	}

	user := env.cookieFor(t, userSession(1, 11, "acme"))
	if rec := env.do(t, http.MethodPatch, target, `{"status":"closed"}`, user); rec.Code != http.StatusForbidden {
		t.Fatalf("user patch: expected 403, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/api/complaints/abc", `{}`, admin); rec.Code != http.StatusNotFound {
		t.Fatalf("bad id: expected 404, got %d", rec.Code)
	}
}

func TestSuggestDepartmentWithoutAPIKey(t *testing.T) {
	env := newHTTPEnv(t)
	user := env.cookieFor(t, userSession(1, 11, "acme"))

	rec := env.do(t, http.MethodPost, "/api/ai/suggest-department", `{"description":"Heater broken","departments":[{"id":4,"name":"Facilities"}]}`, user)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	if v, ok := payload["department_id"]; !ok || v != nil {
		t.Fatalf("expected null department_id, got %+v", payload)
	}
	if payload["error"] != "no_api_key" {
		t.Fatalf("expected no_api_key, got %+v", payload)
	}
}

func TestSuggestDepartmentReturnsMatch(t *testing.T) {
	env := newHTTPEnv(t)
	env.service.suggester = &fakeSuggester{result: suggest.Result{DepartmentID: int64Ptr(4)}}
	user := env.cookieFor(t, userSession(1, 11, "acme"))

	rec := env.do(t, http.MethodPost, "/api/ai/suggest-department", `{"description":"Heater","departments":[{"id":"4","name":"Facilities"}]}`, user)
	payload := decodeResponse(t, rec)
	if payload["department_id"] != float64(4) {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if _, ok := payload["error"]; ok {
		t.Fatalf("no error expected, got %+v", payload)
	}
}

func multipartBody(t *testing.T, field, fileName string, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if field != "" {
		part, err := writer.CreateFormFile(field, fileName)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := part.Write(bytes.Repeat([]byte("a"), size)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	} else if err := writer.WriteField("note", "nothing attached"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func (e *httpEnv) upload(t *testing.T, body *bytes.Buffer, contentType string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadOverHTTP(t *testing.T) {
	env := newHTTPEnv(t)
	user := env.cookieFor(t, userSession(1, 11, "acme"))

	// The first size fits the request cap and trips the file size check; the
	// second exceeds the request cap itself.
	for _, size := range []int{11 * 1000 * 1000, 12 << 20} {
		body, contentType := multipartBody(t, "file", "scan.pdf", size)
		rec := env.upload(t, body, contentType, user)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("size %d: expected 400, got %d", size, rec.Code)
		}
		if msg := decodeResponse(t, rec)["error"]; msg != "File must be under 10 MB" {
			t.Fatalf("size %d: unexpected message %v", size, msg)
		}
	}
	if env.objects.putCount() != 0 {
		t.Fatalf("storage must not be called for oversized uploads")
	}

	body, contentType := multipartBody(t, "", "", 0)
	rec := env.upload(t, body, contentType, user)
	if msg := decodeResponse(t, rec)["error"]; rec.Code != http.StatusBadRequest || msg != "No file provided" {
		t.Fatalf("expected missing file error, got %d %v", rec.Code, msg)
	}

	body, contentType = multipartBody(t, "file", "notes.txt", 12)
	rec = env.upload(t, body, contentType, user)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["fileName"] != "notes.txt" || !strings.HasSuffix(payload["url"].(string), ".txt") {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if env.objects.putCount() != 1 {
		t.Fatalf("expected one storage call, got %d", env.objects.putCount())
	}
}

func TestExportOverHTTP(t *testing.T) {
	env := newHTTPEnv(t)
	env.service.exporter = &fakeExporter{exportFn: func(_ context.Context, req export.Request) (*export.Result, error) {
		if req.Format != export.FormatDOCX {
			t.Errorf("unexpected format %s", req.Format)
		}
		return &export.Result{
			Data:     []byte("docx-bytes"),
			Filename: "complaint-3-Leak.docx",
			MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}, nil
	}}
	admin := env.cookieFor(t, orgAdminSession(1, "acme"))

	rec := env.do(t, http.MethodGet, "/api/complaints/3/export?format=docx", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="complaint-3-Leak.docx"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rec.Body.String() != "docx-bytes" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	if rec := env.do(t, http.MethodGet, "/api/complaints/3/export?format=odt", nil, admin); rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported format: expected 400, got %d", rec.Code)
	}
}

func TestDeptAdminsListIsOrgAdminOnly(t *testing.T) {
	env := newHTTPEnv(t)

	rec := env.do(t, http.MethodGet, "/api/dept-admins", nil, env.cookieFor(t, orgAdminSession(1, "acme")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if admins := decodeResponse(t, rec)["deptAdmins"].([]any); len(admins) != 1 {
		t.Fatalf("expected one dept admin, got %d", len(admins))
	}

	rec = env.do(t, http.MethodGet, "/api/dept-admins", nil, env.cookieFor(t, deptAdminSession(1, 4, "acme")))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCreateDeptAdminEmailInUse(t *testing.T) {
	env := newHTTPEnv(t)
	var got authpw.DeptAdminRequest
	env.accounts.createDeptAdminFn = func(_ context.Context, _ int64, req authpw.DeptAdminRequest) (store.Account, error) {
		got = req
		return store.Account{}, authpw.ErrEmailInUse
	}
	rec := env.do(t, http.MethodPost, "/api/dept-admins", `{"full_name":"Dee","email":"dee@acme.test","password":"secret1","department_id":"4"}`, env.cookieFor(t, orgAdminSession(1, "acme")))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if msg := decodeResponse(t, rec)["error"]; msg != "Email already in use." {
		t.Fatalf("unexpected message %v", msg)
	}
	if got.DepartmentID != 4 {
		t.Fatalf("expected department 4, got %d", got.DepartmentID)
	}
}
