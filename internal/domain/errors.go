package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: msg}
}

// ErrForbidden is used when the caller does not own the resource.
func ErrForbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg}
}

// ErrConflict is returned when a transition is attempted from a state that
// does not allow it.
func ErrConflict(msg string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: msg}
}

// ErrInvalidSignature is returned for callbacks whose secure hash does not match.
func ErrInvalidSignature() *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: "invalid signature"}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given status code.
func HasCode(err error, code int) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Repository sentinels.
var (
	// ErrDuplicateOrderID means the generated order id is already taken.
	ErrDuplicateOrderID = errors.New("order id already exists")
	// ErrOrderVanished means a transition matched no order row at all.
	ErrOrderVanished = errors.New("order row not found during transition")
)
