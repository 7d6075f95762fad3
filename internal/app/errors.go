package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"grievanceos/api/internal/auth"
	"grievanceos/api/internal/authpw"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func badRequest(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

var (
	errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	errForbidden    = forbidden("Forbidden")
	errNotFound     = domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
)

// mapError turns service errors into an HTTP status, code and message.
// Constraint violations and unexpected errors keep the underlying message.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validation *authpw.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "VALIDATION_ERROR", validation.Message, nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password.", nil
	case errors.Is(err, authpw.ErrEmailInUse):
		return http.StatusConflict, "EMAIL_IN_USE", "Email already in use.", nil
	case errors.Is(err, authpw.ErrOrganizationNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Organization not found.", nil
	case errors.Is(err, authpw.ErrDepartmentNotFound):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Department not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongOrg), errors.Is(err, auth.ErrWrongEmail):
		return http.StatusBadRequest, "INVALID_INVITE", "Invitation link is invalid or has expired.", nil
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return http.StatusBadRequest, "CONSTRAINT_VIOLATION", pgErr.Message, nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", err.Error(), nil
}
