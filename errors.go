package permgate

import (
	"errors"
)

type Code string

const (
	CodeUnauthenticated   Code = "unauthenticated"
	CodeFetchFailed       Code = "fetch_failed"
	CodeInvalidPermission Code = "invalid_permission"
	CodeInvalidConfig     Code = "invalid_config"
	CodeLoginFailed       Code = "login_failed"
	CodeSessionStore      Code = "session_store"
)

// Error carries a machine-readable code alongside the cause.
type Error struct {
	Code    Code
	Message string
	Status  int // backend HTTP status, when one was received
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsCode(err error, code Code) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Code == code
}

// StatusOf returns the backend HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var typed *Error
	if !errors.As(err, &typed) {
		return 0
	}
	return typed.Status
}
