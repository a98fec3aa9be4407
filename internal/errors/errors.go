package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Client errors
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeTooManyRequests  ErrorCode = "TOO_MANY_REQUESTS"

	// Pull request template errors
	ErrCodeNoPrefixFound       ErrorCode = "NO_PREFIX_FOUND"
	ErrCodeInvalidPrefix       ErrorCode = "INVALID_PREFIX"
	ErrCodeTemplateFetchFailed ErrorCode = "TEMPLATE_FETCH_FAILED"
	ErrCodeUpdateFailed        ErrorCode = "UPDATE_FAILED"

	// Installation errors
	ErrCodeNoRepositoriesFound ErrorCode = "NO_REPOSITORIES_FOUND"
	ErrCodeOwnerUnresolved     ErrorCode = "OWNER_UNRESOLVED"

	// Remote API errors
	ErrCodeRemoteConflict ErrorCode = "REMOTE_CONFLICT"
	ErrCodeRemoteFailure  ErrorCode = "REMOTE_FAILURE"

	// Server errors
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code, so
// callers can match on kind with errors.Is(err, errors.New(code, "")).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new application error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCodeForError(code),
	}
}

// Wrap wraps an existing error with application context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCodeForError(code),
		Err:        err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: getStatusCodeForError(code),
		Err:        err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or an
// empty code when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// getStatusCodeForError maps error codes to HTTP status codes
func getStatusCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeValidationFailed, ErrCodeInvalidPrefix:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeNoPrefixFound, ErrCodeNoRepositoriesFound, ErrCodeOwnerUnresolved:
		return http.StatusUnprocessableEntity
	case ErrCodeRemoteConflict:
		return http.StatusConflict
	case ErrCodeTemplateFetchFailed, ErrCodeUpdateFailed, ErrCodeRemoteFailure:
		return http.StatusBadGateway
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeInternalError, ErrCodeDatabaseError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for convenience

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return New(ErrCodeValidationFailed, message)
}

// InvalidRequest creates an invalid request error
func InvalidRequest(message string) *AppError {
	return New(ErrCodeInvalidRequest, message)
}

// NoPrefixFound is returned when a pull request title has no [prefix]
func NoPrefixFound(title string) *AppError {
	return New(ErrCodeNoPrefixFound, fmt.Sprintf("No prefix found in title %q", title))
}

// InvalidPrefix is returned for prefixes that cannot name a template file
func InvalidPrefix(prefix, reason string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidPrefix,
		Message:    fmt.Sprintf("Invalid template prefix %q", prefix),
		Details:    reason,
		StatusCode: getStatusCodeForError(ErrCodeInvalidPrefix),
	}
}

// TemplateFetchFailed covers a missing, undecodable or unreachable template
func TemplateFetchFailed(path string, err error) *AppError {
	return Wrapf(err, ErrCodeTemplateFetchFailed, "Failed to fetch template %s", path)
}

// UpdateFailed creates a pull request update failure
func UpdateFailed(number int, err error) *AppError {
	return Wrapf(err, ErrCodeUpdateFailed, "Failed to update body of pull request #%d", number)
}

// NoRepositoriesFound creates an error for installation payloads without targets
func NoRepositoriesFound(message string) *AppError {
	return New(ErrCodeNoRepositoriesFound, message)
}

// OwnerUnresolved creates an error for a repository entry without an owner
func OwnerUnresolved(repository string) *AppError {
	return New(ErrCodeOwnerUnresolved, fmt.Sprintf("Could not resolve owner of repository %q", repository))
}

// RemoteConflict creates a benign remote conflict error
func RemoteConflict(err error, message string) *AppError {
	return Wrap(err, ErrCodeRemoteConflict, message)
}

// RemoteFailure creates a generic remote API failure
func RemoteFailure(err error, message string) *AppError {
	return Wrap(err, ErrCodeRemoteFailure, message)
}

// InternalError creates an internal server error
func InternalError(err error) *AppError {
	return Wrap(err, ErrCodeInternalError, "Internal server error")
}

// DatabaseError creates a database error
func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "Database operation failed")
}
