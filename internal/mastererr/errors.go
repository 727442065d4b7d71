// Package mastererr defines the master-side structured error type.
// It lives under internal/ so both the top-level subkernel package and
// internal/coordinator can depend on it without creating an import
// cycle between them.
package mastererr

import (
	"errors"
	"fmt"
)

// ErrorCode is a high-level master error category, reported to the
// host session.
type ErrorCode string

const (
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeSessionKilled     ErrorCode = "session killed"
	ErrCodeIncorrectState    ErrorCode = "incorrect state"
	ErrCodeDrtioError        ErrorCode = "drtio error"
	ErrCodeSchedError        ErrorCode = "scheduler error"
	ErrCodeRpcIoError        ErrorCode = "rpc i/o error"
	ErrCodeSubkernelFinished ErrorCode = "subkernel already finished"
)

// Error is a structured master-side error carrying the failing
// operation, the subkernel id it concerns (if any), a high-level code,
// a human message, and an optional wrapped cause.
type Error struct {
	Op    string
	ID    uint32
	HasID bool
	Code  ErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.HasID {
		return fmt.Sprintf("subkernel: %s: id=%d: %s", e.Op, e.ID, msg)
	}
	return fmt.Sprintf("subkernel: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// New builds an Error with no subkernel id attached.
func New(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewSubkernel builds an Error scoped to a specific subkernel id.
func NewSubkernel(op string, id uint32, code ErrorCode, msg string) *Error {
	return &Error{Op: op, ID: id, HasID: true, Code: code, Msg: msg}
}

// WrapDrtio wraps a transport failure as a DrtioError, the only way
// transport errors propagate to the host session.
func WrapDrtio(op string, id uint32, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{
		Op:    op,
		ID:    id,
		HasID: true,
		Code:  ErrCodeDrtioError,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
