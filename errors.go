package provisioning

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	TextCodeValidation        = "VALIDATION_FAILED"
	TextCodeDuplicateEmail    = "DUPLICATE_EMAIL"
	TextCodeWorkshopsRequired = "WORKSHOPS_REQUIRED"
	TextCodeForeignWorkshops  = "FOREIGN_WORKSHOPS"
	TextCodeIdentity          = "IDENTITY_FAILURE"
	TextCodeAdminNotFound     = "ADMIN_NOT_FOUND"
	TextCodeTransient         = "TRANSIENT_FAILURE"
	TextCodeUnexpected        = "UNEXPECTED"
	TextCodeTokenInvalid      = "TOKEN_INVALID"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeUnauthorized      = "UNAUTHORIZED"
)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = errors.New("password does not match hash")

// ErrDuplicateEmail builds the validation error for an email already in use
func ErrDuplicateEmail(email string) *goerrors.Error {
	return goerrors.New("Cant create admin with duplicate email: "+email, goerrors.CategoryValidation).
		WithTextCode(TextCodeDuplicateEmail).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"email": email,
		})
}

// ErrWorkshopsRequired is returned when a non deputy workshop admin has no workshops
func ErrWorkshopsRequired(role AdminRole) *goerrors.Error {
	return goerrors.New("You have to specify related workshops to be able to create workshop admin", goerrors.CategoryValidation).
		WithTextCode(TextCodeWorkshopsRequired).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"role": role.String(),
		})
}

// ErrForeignWorkshops is returned when requested workshops are unknown or
// belong to another provider
func ErrForeignWorkshops(role AdminRole, providerID uuid.UUID, ids []uuid.UUID) *goerrors.Error {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}
	return goerrors.New("Workshops do not belong to the provider: "+strings.Join(names, ", "), goerrors.CategoryValidation).
		WithTextCode(TextCodeForeignWorkshops).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"role":        role.String(),
			"provider_id": providerID.String(),
			"workshops":   names,
		})
}

// ErrAdminNotFound is returned when the target admin account does not exist
func ErrAdminNotFound(role AdminRole, id string) *goerrors.Error {
	return goerrors.New(role.Label()+" not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeAdminNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"role": role.String(),
			"id":   id,
		})
}

// ErrMissingActor is returned when a request carries no verified subject
var ErrMissingActor = goerrors.New("missing or invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

// newValidationError wraps a request validation failure
func newValidationError(err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

// identityError wraps a failure reported by the identity store. The code
// defaults to 500, rejections of the identity payload use 400.
func identityError(err error, msg string, code int) *goerrors.Error {
	if IsTransient(err) {
		return transientError(err, msg)
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && (richErr.Category == goerrors.CategoryValidation || richErr.TextCode != "") {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode(TextCodeIdentity).
		WithCode(code)
}

// storeError wraps a domain store failure, keeping transient faults retryable
func storeError(err error, msg string) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr
	}
	if IsTransient(err) {
		return transientError(err, msg)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeUnexpected).
		WithCode(goerrors.CodeInternal)
}

func transientError(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode(TextCodeTransient).
		WithCode(503)
}

// IsTransient reports whether err is an infrastructure fault that is safe to
// retry by re-running the whole transactional core.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTransient {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return isTransientSQLState(pgErr.Field('C'))
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}

func isTransientSQLState(code string) bool {
	switch {
	case code == "40001", code == "40P01":
		// serialization failure, deadlock
		return true
	case strings.HasPrefix(code, "08"):
		return true
	case code == "57P01", code == "57P02", code == "57P03":
		return true
	}
	return false
}

// isUniqueViolation detects unique constraint failures across dialects
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation() && pgErr.Field('C') == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
