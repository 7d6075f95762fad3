// Package authpw provides email/password authentication across the three
// account tables, plus organization setup and account creation.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"grievanceos/api/internal/store"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrEmailInUse           = errors.New("email already in use")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrDepartmentNotFound   = errors.New("department not found")
)

// ValidationError is returned for missing or malformed input. Its message is safe to show.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Service provides email/password authentication
type Service struct {
	store AccountStore
	cost  int
	dummy []byte
}

// AccountStore defines the storage interface for auth
type AccountStore interface {
	FindAccountByEmail(ctx context.Context, email string) (store.Account, string, error)
	EmailInUse(ctx context.Context, email string) (bool, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (store.Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateOrganizationWithAdmin(ctx context.Context, org store.Organization, admin store.Account) (store.Organization, store.Account, error)
	CreateUser(ctx context.Context, account store.Account) (store.Account, error)
	CreateDeptAdmin(ctx context.Context, account store.Account) (store.Account, error)
	GetDepartment(ctx context.Context, orgID, id int64) (store.Department, error)
}

// NewService creates a new auth service
func NewService(accounts AccountStore) *Service {
	return newService(accounts, bcrypt.DefaultCost)
}

func newService(accounts AccountStore, cost int) *Service {
	// compared against when the email is unknown so both failure paths cost a bcrypt round
	dummy, _ := bcrypt.GenerateFromPassword([]byte("grievanceos-dummy-password"), cost)
	return &Service{store: accounts, cost: cost, dummy: dummy}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Identity is an authenticated account together with its organization slug.
type Identity struct {
	Account store.Account
	OrgSlug string
}

// SignIn authenticates against organization admins, then department admins,
// then users. Unknown email and wrong password return the same error.
func (s *Service) SignIn(ctx context.Context, email, password string) (Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, invalid("Email and password are required.")
	}

	account, slug, err := s.store.FindAccountByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Account: account, OrgSlug: slug}, nil
}

// SetupRequest contains organization setup parameters
type SetupRequest struct {
	OrgName  string
	FullName string
	Email    string
	Password string
}

// SetupOrganization creates an organization and its first admin.
func (s *Service) SetupOrganization(ctx context.Context, req SetupRequest) (store.Organization, store.Account, error) {
	name := strings.TrimSpace(req.OrgName)
	fullName := strings.TrimSpace(req.FullName)
	email := NormalizeEmail(req.Email)
	if name == "" || fullName == "" || email == "" || req.Password == "" {
		return store.Organization{}, store.Account{}, invalid("All fields are required.")
	}
	if len(req.Password) < MinPasswordLength {
		return store.Organization{}, store.Account{}, invalid("Password must be at least 6 characters.")
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return store.Organization{}, store.Account{}, err
	}

	slug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return store.Organization{}, store.Account{}, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return store.Organization{}, store.Account{}, err
	}

	return s.store.CreateOrganizationWithAdmin(ctx,
		store.Organization{Name: name, Slug: slug},
		store.Account{Email: email, PasswordHash: hash, FullName: fullName},
	)
}

// RegisterRequest contains self-registration parameters
type RegisterRequest struct {
	OrgSlug  string
	FullName string
	Email    string
	Password string
}

// RegisterUser creates an end-user account in the organization named by slug.
func (s *Service) RegisterUser(ctx context.Context, req RegisterRequest) (store.Organization, store.Account, error) {
	fullName := strings.TrimSpace(req.FullName)
	email := NormalizeEmail(req.Email)
	if fullName == "" || email == "" || req.Password == "" {
		return store.Organization{}, store.Account{}, invalid("All fields are required.")
	}
	if len(req.Password) < MinPasswordLength {
		return store.Organization{}, store.Account{}, invalid("Password must be at least 6 characters.")
	}

	org, err := s.store.GetOrganizationBySlug(ctx, strings.TrimSpace(req.OrgSlug))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Organization{}, store.Account{}, ErrOrganizationNotFound
	}
	if err != nil {
		return store.Organization{}, store.Account{}, fmt.Errorf("lookup organization: %w", err)
	}

	if err := s.ensureEmailFree(ctx, email); err != nil {
		return store.Organization{}, store.Account{}, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return store.Organization{}, store.Account{}, err
	}

	user, err := s.store.CreateUser(ctx, store.Account{
		OrganizationID: org.ID,
		Email:          email,
		PasswordHash:   hash,
		FullName:       fullName,
	})
	if err != nil {
		return store.Organization{}, store.Account{}, err
	}
	return org, user, nil
}

// DeptAdminRequest contains department admin creation parameters
type DeptAdminRequest struct {
	FullName     string
	Email        string
	Password     string
	DepartmentID int64
}

// CreateDeptAdmin creates a department admin bound to a department of orgID.
func (s *Service) CreateDeptAdmin(ctx context.Context, orgID int64, req DeptAdminRequest) (store.Account, error) {
	fullName := strings.TrimSpace(req.FullName)
	email := NormalizeEmail(req.Email)
	if fullName == "" || email == "" || req.Password == "" || req.DepartmentID == 0 {
		return store.Account{}, invalid("All fields are required.")
	}
	if len(req.Password) < MinPasswordLength {
		return store.Account{}, invalid("Password must be at least 6 characters.")
	}

	if _, err := s.store.GetDepartment(ctx, orgID, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Account{}, ErrDepartmentNotFound
		}
		return store.Account{}, fmt.Errorf("lookup department: %w", err)
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return store.Account{}, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return store.Account{}, err
	}

	deptID := req.DepartmentID
	return s.store.CreateDeptAdmin(ctx, store.Account{
		OrganizationID: orgID,
		DepartmentID:   &deptID,
		Email:          email,
		PasswordHash:   hash,
		FullName:       fullName,
	})
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	inUse, err := s.store.EmailInUse(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if inUse {
		return ErrEmailInUse
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases name and collapses every run of other characters to a single dash.
func Slugify(name string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		return "org"
	}
	return slug
}

const maxSlugAttempts = 50

func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := Slugify(name)
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.store.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxSlugAttempts)
}
