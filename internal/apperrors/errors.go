package apperrors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInFlight      Code = "REQUEST_IN_FLIGHT"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus int
	Retryable  bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {HTTPStatus: http.StatusBadRequest},
	CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized},
	CodeForbidden:     {HTTPStatus: http.StatusForbidden},
	CodeNotFound:      {HTTPStatus: http.StatusNotFound},
	CodeConflict:      {HTTPStatus: http.StatusConflict},
	CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity},
	CodeInFlight:      {HTTPStatus: http.StatusConflict, Retryable: true},
	CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, Retryable: true},
	CodeInternal:      {HTTPStatus: http.StatusInternalServerError, Retryable: true},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a user-facing failure. Message is shown to the user as-is.
type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// Dependency wraps a backend failure, keeping the backend's own message.
func Dependency(err error) *Error {
	if err == nil {
		return nil
	}
	return Wrap(CodeDependency, err, err.Error())
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}
