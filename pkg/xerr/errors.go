package xerr

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"google.golang.org/grpc/codes"
)

// Error 业务错误
// Code 沿用 grpc codes 作为错误码空间，Reason 是稳定的机器可读标识
type Error struct {
	Code    codes.Code `json:"code"`
	Reason  string     `json:"reason"`
	Message string     `json:"message"`

	cause error
	stack []uintptr
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.cause)
	}
	if e.Message == "" || e.Message == e.Reason {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is 按 Reason 比较，errors.Is(err, domain.ErrXxx) 可以穿透 WithMsg / Wrap 出来的副本
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Reason == "" {
		return e.Code == t.Code
	}
	return e.Reason == t.Reason
}

// WithMsg 基于哨兵错误生成带细节的新错误，哨兵本身不变
func (e *Error) WithMsg(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	cp.stack = callers()
	return &cp
}

// WithCause 挂上底层错误
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	cp.stack = callers()
	return &cp
}

// Stack 返回错误产生时的调用栈
func (e *Error) Stack() string {
	if len(e.stack) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// Define 定义哨兵错误（包级变量用）
func Define(code codes.Code, reason, msg string) *Error {
	return &Error{Code: code, Reason: reason, Message: msg}
}

func New(code codes.Code, msg string) error {
	return &Error{Code: code, Reason: code.String(), Message: msg, stack: callers()}
}

// Wrap 包装底层错误；如果 err 已经是 *Error 则保留原 code 和 reason
func Wrap(err error, code codes.Code, msg string) error {
	if err == nil {
		return nil
	}
	if xe, ok := As(err); ok {
		return &Error{Code: xe.Code, Reason: xe.Reason, Message: msg, cause: err, stack: callers()}
	}
	return &Error{Code: code, Reason: code.String(), Message: msg, cause: err, stack: callers()}
}

func As(err error) (*Error, bool) {
	var xe *Error
	if errors.As(err, &xe) {
		return xe, true
	}
	return nil, false
}

// CodeOf 非业务错误一律视为 Internal
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if xe, ok := As(err); ok {
		return xe.Code
	}
	return codes.Internal
}

func callers() []uintptr {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}
