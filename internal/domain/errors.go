package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for business logic errors.
const (
	CodeNotFound      = 1
	CodeAlreadyExists = 2
	CodeValidation    = 3
	CodeInternal      = 4
	CodeUpstream      = 5
)

// AppError represents a business logic error with a code, message, and optional wrapped error.
//
// Status, when non-zero, is the transport status the error must be reported with and takes
// precedence over the status derived from Code.
type AppError struct {
	Code    int    `json:"code"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Detail returns the message of the wrapped error, or "" when nothing is wrapped.
func (e *AppError) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Predefined business errors.
//
// To check whether an error matches one of these categories, use the
// corresponding helper function (IsNotFound, IsValidation, etc.)
// instead of errors.Is. The helpers compare error codes through errors.As,
// so freshly constructed and wrapped errors match too.
var (
	ErrNotFound      = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &AppError{Code: CodeInternal, Message: "internal server error"}
)

// NewAppError creates a new AppError with the given code, message, and wrapped error.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// UserNotFound is the canonical not-found error for a user id. It is reported
// with a client-error status and the message "User with id <id> not found".
func UserNotFound(id string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("User with id %s not found", id),
	}
}

// NewInternalError wraps an unclassified failure as an internal server error,
// keeping the original error as detail.
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Err:     err,
	}
}

// NewRemoteError represents an error reply from a collaborator service that
// already carries a status and message.
func NewRemoteError(status int, message string) *AppError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &AppError{
		Code:    CodeUpstream,
		Status:  status,
		Message: message,
	}
}

// AsAppError returns err as an *AppError when it is or wraps one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil && errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is or wraps an AppError with CodeNotFound.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsAlreadyExists reports whether err is or wraps an AppError with CodeAlreadyExists.
func IsAlreadyExists(err error) bool {
	return hasCode(err, CodeAlreadyExists)
}

// IsValidation reports whether err is or wraps an AppError with CodeValidation.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsInternal reports whether err is or wraps an AppError with CodeInternal.
func IsInternal(err error) bool {
	return hasCode(err, CodeInternal)
}

// IsUpstream reports whether err is or wraps an AppError with CodeUpstream.
func IsUpstream(err error) bool {
	return hasCode(err, CodeUpstream)
}

func hasCode(err error, code int) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// HTTPStatusCode maps an error to an HTTP status code.
// An explicit AppError.Status wins; otherwise the code is mapped. Errors that are
// not an *AppError are reported as http.StatusInternalServerError.
func HTTPStatusCode(err error) int {
	appErr, ok := AsAppError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if appErr.Status != 0 {
		return appErr.Status
	}
	switch appErr.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
