package http

import (
	"fmt"
	"net/http"
)

// Error codes shared by the control-plane handlers.
const (
	CodeBadRequest       = "ERR_BAD_REQUEST"
	CodeNotFound         = "ERR_NOT_FOUND"
	CodeConflict         = "ERR_CONFLICT"
	CodeRateLimited      = "ERR_RATE_LIMITED"
	CodeUnavailable      = "ERR_UNAVAILABLE"
	CodeInternal         = "ERR_INTERNAL"
	CodeInsufficientData = "ERR_INSUFFICIENT_DATA"
)

// AppError is an error carrying the HTTP status it should be answered with.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the underlying cause. It is logged, never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NewAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, message, http.StatusNotFound)
}

func BadRequestError(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ConflictError reports a lifecycle event arriving in the wrong state.
func ConflictError(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// UnprocessableError reports well-formed input that yields no result.
func UnprocessableError(code, message string) *AppError {
	return NewAppError(code, message, http.StatusUnprocessableEntity)
}

func TooManyRequestsError(message string) *AppError {
	return NewAppError(CodeRateLimited, message, http.StatusTooManyRequests)
}

// ServiceUnavailableError reports a missing or failing backend (upstream,
// storage, journal, queue).
func ServiceUnavailableError(message string) *AppError {
	return NewAppError(CodeUnavailable, message, http.StatusServiceUnavailable)
}

func InternalError(message string) *AppError {
	return NewAppError(CodeInternal, message, http.StatusInternalServerError)
}
