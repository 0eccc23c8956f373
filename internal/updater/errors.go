package updater

import (
	"errors"
	"fmt"
)

// Code classifies an update failure. The API maps codes to HTTP statuses.
type Code string

const (
	ErrCodeInvalidState   Code = "INVALID_STATE"
	ErrCodeCheckFailed    Code = "CHECK_FAILED"
	ErrCodeNotFound       Code = "NOT_FOUND"
	ErrCodeNoUpdate       Code = "NO_UPDATE"
	ErrCodeApplyFailed    Code = "APPLY_FAILED"
	ErrCodeBackupFailed   Code = "BACKUP_FAILED"
	ErrCodeRollbackFailed Code = "ROLLBACK_FAILED"
	ErrCodeNoBackup       Code = "NO_BACKUP"
	ErrCodeDisabled       Code = "DISABLED"
	ErrCodeBusy           Code = "BUSY"
)

// Error is returned by every Service operation.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("update %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("update %s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, &Error{Code: ErrCodeDisabled}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Code
	}
	return ""
}

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
