package automation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/localpilot/types"
)

// LaunchError 浏览器或页面无法创建
func LaunchError(err error) *types.Error {
	return types.NewError(types.ErrBrowserLaunch, "failed to launch browser").
		WithCause(err).WithHTTPStatus(http.StatusServiceUnavailable)
}

// NavigationError wraps a failed navigation. A deadline is reported as a
// timeout that names the bound that was hit.
func NavigationError(url string, timeout time.Duration, err error) *types.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Errorf(types.ErrTimeout, "navigation to %s timed out after %s", url, timeout).
			WithCause(err).WithHTTPStatus(http.StatusGatewayTimeout).WithRetryable(true)
	}
	return types.Errorf(types.ErrNavigation, "navigation to %s failed", url).
		WithCause(err).WithHTTPStatus(http.StatusBadGateway)
}

// ScreenshotError wraps a failed capture or write.
func ScreenshotError(name string, err error) *types.Error {
	return types.Errorf(types.ErrScreenshot, "failed to capture %s", name).
		WithCause(err).WithHTTPStatus(http.StatusInternalServerError)
}

// CapabilityUnavailable 增强后端不可用
func CapabilityUnavailable(reason string, err error) *types.Error {
	return types.NewError(types.ErrCapabilityUnavailable, "enhanced backend unavailable: "+reason).
		WithCause(err).WithHTTPStatus(http.StatusServiceUnavailable)
}

// AmbiguousIntent 提示词表达了导航意图但没有可识别的目标
func AmbiguousIntent(message string) *types.Error {
	return types.NewError(types.ErrAmbiguousIntent, message).
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

// CleanupError joins every teardown failure.
func CleanupError(errs ...error) *types.Error {
	return types.NewError(types.ErrCleanup, "failed to release browser resources").
		WithCause(errors.Join(errs...)).WithHTTPStatus(http.StatusInternalServerError)
}

// BusyError 已有操作在执行
func BusyError() *types.Error {
	return types.NewError(types.ErrAutomationBusy, "another automation operation is in progress").
		WithHTTPStatus(http.StatusConflict).WithRetryable(true)
}

// IsCapabilityUnavailable reports whether err means the enhanced backend
// cannot be used.
func IsCapabilityUnavailable(err error) bool {
	return types.GetErrorCode(err) == types.ErrCapabilityUnavailable
}
