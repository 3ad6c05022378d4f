package types

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode represents a unified error code across localpilot.
type ErrorCode string

// Request and transport error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrModelNotFound      ErrorCode = "MODEL_NOT_FOUND"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrConnectivity       ErrorCode = "CONNECTIVITY"
)

// Automation error codes
const (
	ErrBrowserLaunch         ErrorCode = "BROWSER_LAUNCH_FAILED"
	ErrNavigation            ErrorCode = "NAVIGATION_FAILED"
	ErrScreenshot            ErrorCode = "SCREENSHOT_FAILED"
	ErrCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"
	ErrAmbiguousIntent       ErrorCode = "AMBIGUOUS_INTENT"
	ErrCleanup               ErrorCode = "CLEANUP_FAILED"
	ErrAutomationBusy        ErrorCode = "AUTOMATION_BUSY"
)

// Error 是带错误码的结构化错误。handlers 按 Code 与 HTTPStatus 生成响应，
// Message 直接展示给用户，Cause 只进入日志与 details 字段。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`

	stack []uintptr
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError 创建错误并记录调用栈，StackTrace 从调用方开始输出
func NewError(code ErrorCode, message string) *Error {
	return newError(code, message, 3)
}

// Errorf 与 NewError 相同，消息按 fmt 格式化
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return newError(code, fmt.Sprintf(format, args...), 3)
}

func newError(code ErrorCode, message string, skip int) *Error {
	var pcs [32]uintptr
	n := runtime.Callers(skip, pcs[:])
	return &Error{Code: code, Message: message, stack: pcs[:n:n]}
}

// WithCause 设置底层错误
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus 覆盖按错误码推导的 HTTP 状态
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable 标记调用方可以稍后重试
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// StackTrace 输出 Error() 加上创建时的调用栈
func (e *Error) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Error())
	frames := runtime.CallersFrames(e.stack)
	for {
		f, more := frames.Next()
		if f.Function != "" {
			fmt.Fprintf(&b, "\n    at %s (%s:%d)", f.Function, f.File, f.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}

// AsError 返回错误链上第一个 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsRetryable 报告错误链上的 *Error 是否允许重试
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

// GetErrorCode 返回错误码，链上没有 *Error 时返回空串
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
