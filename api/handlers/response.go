package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/localpilot/types"
)

// Response 是所有 JSON 端点共用的信封
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 是信封中的错误部分。Details 携带底层错误文本，便于排查推理服务问题。
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// WriteJSON 以指定状态码写出 v
func WriteJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func envelope(w http.ResponseWriter, data any, info *ErrorInfo) Response {
	return Response{
		Success:   info == nil,
		Data:      data,
		Error:     info,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	}
}

// WriteSuccess 写出 200 与 data
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, envelope(w, data, nil))
}

// WriteError 按错误码推导状态码后写出错误信封
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	writeFailure(w, err, nil, logger)
}

// WriteAppError 接受任意错误；非 *types.Error 按 INTERNAL_ERROR 处理
func WriteAppError(w http.ResponseWriter, err error, logger *zap.Logger) {
	e, ok := types.AsError(err)
	if !ok {
		e = types.NewError(types.ErrInternalError, err.Error()).WithCause(err)
	}
	WriteError(w, e, logger)
}

// WriteErrorMessage 用给定状态码与消息写出错误
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// writeFailure 写出失败信封，data 可携带部分结果，例如失败的 AutomationResult
func writeFailure(w http.ResponseWriter, err *types.Error, data any, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = statusForCode(err.Code)
	}
	info := &ErrorInfo{Code: string(err.Code), Message: err.Message, Retryable: err.Retryable, HTTPStatus: status}
	if err.Cause != nil {
		info.Details = err.Cause.Error()
	}

	if logger != nil {
		level := zapcore.WarnLevel
		if status >= http.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}
		logger.Log(level, "API error",
			zap.String("code", info.Code),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause))
	}

	WriteJSON(w, status, envelope(w, data, info))
}

// codeStatus 未列出的错误码按 500 处理
var codeStatus = map[types.ErrorCode]int{
	types.ErrInvalidRequest:  http.StatusBadRequest,
	types.ErrAuthentication:  http.StatusUnauthorized,
	types.ErrUnauthorized:    http.StatusUnauthorized,
	types.ErrForbidden:       http.StatusForbidden,
	types.ErrNotFound:        http.StatusNotFound,
	types.ErrModelNotFound:   http.StatusNotFound,
	types.ErrAutomationBusy:  http.StatusConflict,
	types.ErrAmbiguousIntent: http.StatusUnprocessableEntity,
	types.ErrRateLimited:     http.StatusTooManyRequests,

	types.ErrTimeout:               http.StatusGatewayTimeout,
	types.ErrBrowserLaunch:         http.StatusServiceUnavailable,
	types.ErrCapabilityUnavailable: http.StatusServiceUnavailable,
	types.ErrServiceUnavailable:    http.StatusServiceUnavailable,
	types.ErrConnectivity:          http.StatusBadGateway,
	types.ErrUpstreamError:         http.StatusBadGateway,
	types.ErrNavigation:            http.StatusBadGateway,
}

func statusForCode(code types.ErrorCode) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
