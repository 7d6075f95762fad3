package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseInvite(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueInvite(secret, "acme", " Ada@Example.com ", time.Hour)
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}
	claims, err := ParseInvite(secret, issued)
	if err != nil {
		t.Fatalf("ParseInvite() error = %v", err)
	}
	if claims.OrgSlug != "acme" || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseInviteRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueInvite(secret, "acme", "", -time.Minute)
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}
	if _, err := ParseInvite(secret, issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("ParseInvite() error = %v, want ErrExpiredToken", err)
	}
}

func TestParseInviteRejectsWrongSecret(t *testing.T) {
	issued, err := IssueInvite([]byte("secret"), "acme", "", time.Hour)
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}
	if _, err := ParseInvite([]byte("other"), issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseInvite() error = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseInvite([]byte("secret"), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseInvite(garbage) error = %v, want ErrInvalidToken", err)
	}
}

func TestParseInviteRejectsNoneAlgorithm(t *testing.T) {
	claims := InviteClaims{
		OrgSlug: "acme",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    inviteIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := ParseInvite([]byte("secret"), unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseInvite() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyInvite(t *testing.T) {
	secret := []byte("secret")
	open, _ := IssueInvite(secret, "acme", "", time.Hour)
	bound, _ := IssueInvite(secret, "acme", "ada@example.com", time.Hour)

	cases := []struct {
		name  string
		token string
		slug  string
		email string
		want  error
	}{
		{name: "open invite any email", token: open, slug: "acme", email: "bob@example.com", want: nil},
		{name: "bound invite same email", token: bound, slug: "acme", email: "ADA@example.com", want: nil},
		{name: "bound invite other email", token: bound, slug: "acme", email: "bob@example.com", want: ErrWrongEmail},
		{name: "other organization", token: open, slug: "globex", email: "bob@example.com", want: ErrWrongOrg},
		{name: "malformed", token: "x.y.z", slug: "acme", email: "bob@example.com", want: ErrInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyInvite(secret, tc.token, tc.slug, tc.email)
			if !errors.Is(err, tc.want) {
				t.Fatalf("VerifyInvite() error = %v, want %v", err, tc.want)
			}
		})
	}
}
