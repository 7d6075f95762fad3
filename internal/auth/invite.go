// Package auth issues and verifies organization invitation tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const inviteIssuer = "grievanceos"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
	ErrWrongOrg     = errors.New("invite belongs to another organization")
	ErrWrongEmail   = errors.New("invite was issued for another email")
)

// InviteClaims binds an invitation to an organization and, optionally, a single email.
type InviteClaims struct {
	OrgSlug string `json:"org"`
	Email   string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func IssueInvite(secret []byte, orgSlug, email string, ttl time.Duration) (string, error) {
	if orgSlug == "" {
		return "", fmt.Errorf("issue invite: %w", ErrInvalidToken)
	}
	now := time.Now()
	claims := InviteClaims{
		OrgSlug: orgSlug,
		Email:   strings.ToLower(strings.TrimSpace(email)),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    inviteIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign invite: %w", err)
	}
	return signed, nil
}

func ParseInvite(secret []byte, token string) (InviteClaims, error) {
	var claims InviteClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(inviteIssuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return InviteClaims{}, ErrExpiredToken
		}
		return InviteClaims{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.OrgSlug == "" {
		return InviteClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// VerifyInvite checks that token admits email into the organization orgSlug.
func VerifyInvite(secret []byte, token, orgSlug, email string) error {
	claims, err := ParseInvite(secret, token)
	if err != nil {
		return err
	}
	if claims.OrgSlug != orgSlug {
		return ErrWrongOrg
	}
	if claims.Email != "" && !strings.EqualFold(claims.Email, strings.TrimSpace(email)) {
		return ErrWrongEmail
	}
	return nil
}
