// Package session encrypts tenant sessions into HTTP cookies and tracks
// revoked session ids.
package session

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"grievanceos/api/internal/rbac"
	"grievanceos/api/internal/util"
)

const CookieName = "grievanceos-session"

const DefaultTTL = 7 * 24 * time.Hour

var (
	ErrMalformed = errors.New("malformed session")
	ErrExpired   = errors.New("expired session")
)

// Session is the identity, tenant and role context carried by the cookie.
type Session struct {
	SID            string    `json:"sid"`
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"fullName"`
	Role           rbac.Role `json:"role"`
	OrganizationID int64     `json:"organizationId"`
	OrgSlug        string    `json:"orgSlug"`
	DepartmentID   *int64    `json:"departmentId,omitempty"`
	ExpiresAt      int64     `json:"exp"`
}

// Subject projects the session onto what the authorization state machine needs.
func (s Session) Subject() *rbac.Subject {
	return &rbac.Subject{
		Role:         s.Role,
		OrgSlug:      s.OrgSlug,
		DepartmentID: s.DepartmentID,
	}
}

func (s Session) validate(now time.Time) error {
	if s.SID == "" || s.ID == 0 || s.OrganizationID == 0 || s.OrgSlug == "" || s.ExpiresAt == 0 {
		return ErrMalformed
	}
	if _, ok := rbac.ParseRole(string(s.Role)); !ok {
		return ErrMalformed
	}
	if s.Role == rbac.RoleDeptAdmin && s.DepartmentID == nil {
		return ErrMalformed
	}
	if now.Unix() >= s.ExpiresAt {
		return ErrExpired
	}
	return nil
}

// RevocationStore remembers logged-out session ids until they expire.
type RevocationStore interface {
	RevokeSession(ctx context.Context, sid string, expiresAt time.Time) error
	IsSessionRevoked(ctx context.Context, sid string) (bool, error)
}

// Codec seals sessions with AES-256-GCM. The nonce is prepended to the ciphertext.
type Codec struct {
	gcm cipher.AEAD
}

// NewCodec derives a 256-bit key from secret. An empty secret yields a random
// key, so sessions do not survive a restart.
func NewCodec(secret string) (*Codec, error) {
	var key []byte
	if secret == "" {
		key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	} else {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Codec{gcm: gcm}, nil
}

func (c *Codec) Encode(s Session) (string, error) {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, plaintext, []byte(CookieName))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Codec) Decode(value string) (Session, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return Session{}, ErrMalformed
	}
	nonceSize := c.gcm.NonceSize()
	if len(raw) < nonceSize {
		return Session{}, ErrMalformed
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, []byte(CookieName))
	if err != nil {
		return Session{}, ErrMalformed
	}
	var s Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return Session{}, ErrMalformed
	}
	return s, nil
}

// Manager reads and writes the session cookie.
type Manager struct {
	codec       *Codec
	revocations RevocationStore
	secure      bool
	ttl         time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewManager(codec *Codec, revocations RevocationStore, secure bool, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		codec:       codec,
		revocations: revocations,
		secure:      secure,
		ttl:         ttl,
		logger:      logger.With(slog.String("component", "session")),
		now:         time.Now,
	}
}

// Establish issues a fresh session id and expiry for identity and writes the cookie.
func (m *Manager) Establish(w http.ResponseWriter, identity Session) (Session, error) {
	identity.SID = util.NewID("sid")
	identity.ExpiresAt = m.now().Add(m.ttl).Unix()
	if err := identity.validate(m.now()); err != nil {
		return Session{}, fmt.Errorf("establish session: %w", err)
	}

	value, err := m.codec.Encode(identity)
	if err != nil {
		return Session{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return identity, nil
}

// Read returns the caller's session, or nil when the cookie is absent,
// undecodable, expired or revoked.
func (m *Manager) Read(r *http.Request) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	s, err := m.codec.Decode(cookie.Value)
	if err != nil {
		m.logger.Debug("session cookie rejected", slog.String("error", err.Error()), slog.String("remote_addr", r.RemoteAddr))
		return nil
	}
	if err := s.validate(m.now()); err != nil {
		m.logger.Debug("session rejected", slog.String("error", err.Error()), slog.String("sid", s.SID))
		return nil
	}
	if m.revocations != nil {
		revoked, err := m.revocations.IsSessionRevoked(r.Context(), s.SID)
		if err != nil {
			m.logger.Warn("session revocation lookup failed", slog.String("error", err.Error()))
			return nil
		}
		if revoked {
			return nil
		}
	}
	return &s
}

// Destroy clears the cookie and revokes the session id until it would have expired.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if s == nil || m.revocations == nil {
		return
	}
	if err := m.revocations.RevokeSession(ctx, s.SID, time.Unix(s.ExpiresAt, 0)); err != nil {
		m.logger.Error("revoke session failed", slog.String("sid", s.SID), slog.String("error", err.Error()))
	}
}
