package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievanceos/api/internal/rbac"
)

type memoryRevocations struct {
	revoked map[string]time.Time
	err     error
}

func (m *memoryRevocations) RevokeSession(_ context.Context, sid string, expiresAt time.Time) error {
	if m.revoked == nil {
		m.revoked = map[string]time.Time{}
	}
	m.revoked[sid] = expiresAt
	return nil
}

func (m *memoryRevocations) IsSessionRevoked(_ context.Context, sid string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.revoked[sid]
	return ok, nil
}

func int64Ptr(v int64) *int64 { return &v }

func newTestManager(t *testing.T, revocations RevocationStore) *Manager {
	t.Helper()
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)
	return NewManager(codec, revocations, false, time.Hour, nil)
}

func userIdentity() Session {
	return Session{
		ID:             11,
		Email:          "ada@example.com",
		FullName:       "Ada Lovelace",
		Role:           rbac.RoleUser,
		OrganizationID: 3,
		OrgSlug:        "acme",
	}
}

func establish(t *testing.T, m *Manager, identity Session) (Session, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	sess, err := m.Establish(rec, identity)
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return sess, cookies[0]
}

func requestWith(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestEstablishAndRead(t *testing.T) {
	m := newTestManager(t, &memoryRevocations{})
	sess, cookie := establish(t, m, userIdentity())

	assert.Equal(t, CookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.NotEmpty(t, sess.SID)

	got := m.Read(requestWith(cookie))
	require.NotNil(t, got)
	assert.Equal(t, sess, *got)
	assert.Equal(t, "acme", got.Subject().OrgSlug)
}

func TestEstablishSecureCookieInProduction(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)
	m := NewManager(codec, nil, true, 0, nil)

	_, cookie := establish(t, m, userIdentity())
	assert.True(t, cookie.Secure)
	assert.Equal(t, int(DefaultTTL.Seconds()), cookie.MaxAge)
}

func TestEstablishRejectsDeptAdminWithoutDepartment(t *testing.T) {
	m := newTestManager(t, nil)
	identity := userIdentity()
	identity.Role = rbac.RoleDeptAdmin

	_, err := m.Establish(httptest.NewRecorder(), identity)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestReadWithoutCookie(t *testing.T) {
	m := newTestManager(t, nil)
	assert.Nil(t, m.Read(requestWith(nil)))
}

func TestReadRejectsTamperedCookie(t *testing.T) {
	m := newTestManager(t, nil)
	_, cookie := establish(t, m, userIdentity())

	tampered := *cookie
	mid := len(tampered.Value) / 2
	replacement := "A"
	if tampered.Value[mid] == 'A' {
		replacement = "B"
	}
	tampered.Value = tampered.Value[:mid] + replacement + tampered.Value[mid+1:]
	assert.Nil(t, m.Read(requestWith(&tampered)))

	garbage := &http.Cookie{Name: CookieName, Value: "%%%not-base64"}
	assert.Nil(t, m.Read(requestWith(garbage)))
}

func TestReadRejectsCookieFromOtherSecret(t *testing.T) {
	m := newTestManager(t, nil)
	_, cookie := establish(t, m, userIdentity())

	otherCodec, err := NewCodec("another-secret")
	require.NoError(t, err)
	other := NewManager(otherCodec, nil, false, time.Hour, nil)
	assert.Nil(t, other.Read(requestWith(cookie)))
}

func TestReadRejectsExpiredSession(t *testing.T) {
	m := newTestManager(t, nil)
	_, cookie := establish(t, m, userIdentity())

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Nil(t, m.Read(requestWith(cookie)))
}

func TestReadRejectsUnknownRole(t *testing.T) {
	m := newTestManager(t, nil)
	forged := userIdentity()
	forged.SID = "sid_x"
	forged.Role = rbac.Role("superuser")
	forged.ExpiresAt = time.Now().Add(time.Hour).Unix()

	value, err := m.codec.Encode(forged)
	require.NoError(t, err)
	assert.Nil(t, m.Read(requestWith(&http.Cookie{Name: CookieName, Value: value})))
}

func TestDestroyRevokesSession(t *testing.T) {
	revocations := &memoryRevocations{}
	m := newTestManager(t, revocations)
	sess, cookie := establish(t, m, userIdentity())

	rec := httptest.NewRecorder()
	m.Destroy(context.Background(), rec, &sess)

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, CookieName, cleared[0].Name)
	assert.Equal(t, "", cleared[0].Value)
	assert.True(t, cleared[0].MaxAge < 0)

	assert.Contains(t, revocations.revoked, sess.SID)
	assert.Nil(t, m.Read(requestWith(cookie)), "a replayed cookie must not authenticate after logout")
}

func TestReadFailsClosedWhenRevocationLookupErrors(t *testing.T) {
	revocations := &memoryRevocations{}
	m := newTestManager(t, revocations)
	_, cookie := establish(t, m, userIdentity())

	revocations.err = errors.New("redis down")
	assert.Nil(t, m.Read(requestWith(cookie)))
}

func TestDeptAdminSessionCarriesDepartment(t *testing.T) {
	m := newTestManager(t, nil)
	identity := userIdentity()
	identity.Role = rbac.RoleDeptAdmin
	identity.DepartmentID = int64Ptr(9)

	_, cookie := establish(t, m, identity)
	got := m.Read(requestWith(cookie))
	require.NotNil(t, got)
	require.NotNil(t, got.DepartmentID)
	assert.Equal(t, int64(9), *got.DepartmentID)
	assert.Equal(t, "/org/acme/dept/9", rbac.DashboardPath(*got.Subject()))
}

func TestCookieValueIsOpaque(t *testing.T) {
	m := newTestManager(t, nil)
	_, cookie := establish(t, m, userIdentity())
	assert.False(t, strings.Contains(cookie.Value, "ada@example.com"))
}
