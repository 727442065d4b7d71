// Package subkernel implements the master side of the subkernel
// lifecycle and interkernel-message protocol: a process-wide registry
// of subkernel images, their upload/load/run state machine, and the
// host-session-facing Coordinator API. See package satellite for the
// node-side counterpart.
package subkernel

import "github.com/rtio-systems/subkernel/internal/mastererr"

// Error, ErrorCode and the error-kind constants live in
// internal/mastererr so that internal/coordinator can construct them
// without importing this package (which itself imports coordinator),
// and are re-exported here as the public surface.
type Error = mastererr.Error
type ErrorCode = mastererr.ErrorCode

const (
	ErrCodeTimeout           = mastererr.ErrCodeTimeout
	ErrCodeSessionKilled     = mastererr.ErrCodeSessionKilled
	ErrCodeIncorrectState    = mastererr.ErrCodeIncorrectState
	ErrCodeDrtioError        = mastererr.ErrCodeDrtioError
	ErrCodeSchedError        = mastererr.ErrCodeSchedError
	ErrCodeRpcIoError        = mastererr.ErrCodeRpcIoError
	ErrCodeSubkernelFinished = mastererr.ErrCodeSubkernelFinished
)

// NewError builds an Error with no subkernel id attached.
func NewError(op string, code ErrorCode, msg string) *Error {
	return mastererr.New(op, code, msg)
}

// NewSubkernelError builds an Error scoped to a specific subkernel id.
func NewSubkernelError(op string, id uint32, code ErrorCode, msg string) *Error {
	return mastererr.NewSubkernel(op, id, code, msg)
}

// WrapDrtioError wraps a transport failure as a DrtioError.
func WrapDrtioError(op string, id uint32, inner error) *Error {
	return mastererr.WrapDrtio(op, id, inner)
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return mastererr.IsCode(err, code)
}

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool {
	return IsCode(err, ErrCodeTimeout)
}
