// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package apierrors provides the single error type used across SkyDriver's
// layers. Handlers never translate to an HTTP status themselves; they return
// an *Error (or a plain error) and the outermost Gin middleware does the
// translation, per the result/error-variant design used across the service.
package apierrors

import (
	"errors"
	"fmt"
	"runtime"
)

const (
	CodeValidation     = 4001
	CodeDataExists     = 4002
	CodeAuthFailed     = 4003
	CodeNotFound       = 4004
	CodePermissionDeny = 4005
	CodeConflict       = 4006

	CodeInternal       = 5000
	CodeDatabase       = 5002
	CodeServiceUnavail = 5003

	CodeK8sOperation  = 6002
	CodeDependency    = 6003

	CodeInitialize = 7001
)

// Error is SkyDriver's canonical error carrier: an HTTP-facing code, a
// caller-safe message, the wrapped cause (not serialised to the client) and
// a captured stack for logs.
type Error struct {
	Code       int
	Message    string
	InnerError error
	Stack      []uintptr
}

// New starts a new Error with its stack captured at the call site.
func New() *Error {
	stack := make([]uintptr, 32)
	n := runtime.Callers(2, stack)
	return &Error{Stack: stack[:n]}
}

func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	e.Message = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) WithError(err error) *Error {
	e.InnerError = err
	return e
}

func (e *Error) Error() string {
	if e.InnerError != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.InnerError)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.InnerError
}

// GetStackString renders the captured stack for log lines.
func (e *Error) GetStackString() string {
	frames := runtime.CallersFrames(e.Stack)
	out := ""
	for {
		frame, more := frames.Next()
		out += fmt.Sprintf("\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return out
}

// Helpers mirroring the common HTTP-shaped constructors used at the handler
// layer.

func NewValidation(msg string) *Error {
	return New().WithCode(CodeValidation).WithMessage(msg)
}

func NewValidationf(format string, args ...interface{}) *Error {
	return New().WithCode(CodeValidation).WithMessagef(format, args...)
}

func NewNotFound(msg string) *Error {
	return New().WithCode(CodeNotFound).WithMessage(msg)
}

func NewConflict(msg string) *Error {
	return New().WithCode(CodeConflict).WithMessage(msg)
}

func NewInternal(msg string, err error) *Error {
	return New().WithCode(CodeInternal).WithMessage(msg).WithError(err)
}

// IsNotFound reports whether err (or any error it wraps) is a not-found Error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeNotFound
}
