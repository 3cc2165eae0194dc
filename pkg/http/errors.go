package http

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with the HTTP status it maps to and a stable code
// clients can switch on.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithParam attaches a detail that is serialized under params.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError keeps the cause for logs. It is never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func newAppError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func BadRequestError(message string) *AppError {
	return newAppError(http.StatusBadRequest, "ERR_BAD_REQUEST", message)
}

func NotFoundError(message string) *AppError {
	return newAppError(http.StatusNotFound, "ERR_NOT_FOUND", message)
}

func ConflictError(message string) *AppError {
	return newAppError(http.StatusConflict, "ERR_CONFLICT", message)
}

// UnprocessableError is for well-formed input the engine cannot work with.
func UnprocessableError(message string) *AppError {
	return newAppError(http.StatusUnprocessableEntity, "ERR_UNPROCESSABLE", message)
}

func InternalError(message string) *AppError {
	return newAppError(http.StatusInternalServerError, "ERR_INTERNAL", message)
}

// AsAppError returns the AppError in err's chain, or a generic internal
// error whose message does not leak err.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError("Something went wrong").WithError(err)
}
