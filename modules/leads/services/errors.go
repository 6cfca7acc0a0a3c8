package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/salesunit"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/team"
	"github.com/iota-uz/leadrouter/pkg/authz"
)

const (
	CodeNotFound           = "LEADS_NOT_FOUND"
	CodeMembershipNotFound = "LEADS_MEMBERSHIP_NOT_FOUND"
	CodeAssignmentConflict = "LEADS_ASSIGNMENT_CONFLICT"
	CodeNotAssignee        = "LEADS_NOT_ASSIGNEE"
	CodeInvalidInput       = "LEADS_INVALID_INPUT"
	CodeForbidden          = "LEADS_FORBIDDEN"
	CodeUnauthenticated    = "LEADS_UNAUTHENTICATED"
	CodeInternal           = "LEADS_INTERNAL"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{
		Status:  status,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// mapDomainError converts repository sentinels and pg errors into ServiceErrors.
func mapDomainError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	switch {
	case errors.Is(err, lead.ErrLeadNotFound):
		return newServiceError(http.StatusNotFound, CodeNotFound, "lead not found", err)
	case errors.Is(err, lead.ErrCustomerNotFound):
		return newServiceError(http.StatusNotFound, CodeNotFound, "customer not found", err)
	case errors.Is(err, assignment.ErrAssignmentNotFound):
		return newServiceError(http.StatusNotFound, CodeNotFound, "assignment not found", err)
	case errors.Is(err, assignment.ErrWindowBusy):
		recordAssignmentConflict("window")
		return newServiceError(http.StatusConflict, CodeAssignmentConflict, "allocation is busy, retry later", err)
	case errors.Is(err, salesunit.ErrUnitNotFound):
		return newServiceError(http.StatusNotFound, CodeNotFound, "sales unit not found", err)
	case errors.Is(err, team.ErrMembershipNotFound):
		return newServiceError(http.StatusUnprocessableEntity, CodeMembershipNotFound, "user has no active team membership", err)
	case errors.Is(err, authz.ErrForbidden):
		return newServiceError(http.StatusForbidden, CodeForbidden, "permission denied", err)
	}
	return mapPgErrorToServiceError(err)
}

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, CodeNotFound, "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "55P03", "40001", "40P01": // lock_not_available, serialization_failure, deadlock_detected
		recordAssignmentConflict("lock")
		return newServiceError(http.StatusConflict, CodeAssignmentConflict, "lead is being modified concurrently", err)
	case "23505": // unique_violation
		recordAssignmentConflict("unique")
		return newServiceError(http.StatusConflict, CodeAssignmentConflict, "unique constraint violated", err)
	case "23503": // foreign_key_violation
		return newServiceError(http.StatusUnprocessableEntity, CodeInvalidInput, "referenced record not found", err)
	case "23514": // check_violation
		return newServiceError(http.StatusUnprocessableEntity, CodeInvalidInput, "check constraint violated", err)
	default:
		return newServiceError(http.StatusInternalServerError, CodeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}

// isRetryable reports whether err is a transient lock or serialization failure.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "55P03", "40001", "40P01":
		return true
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, assignment.ErrAssignmentNotFound) ||
		errors.Is(err, lead.ErrLeadNotFound) ||
		errors.Is(err, pgx.ErrNoRows)
}
