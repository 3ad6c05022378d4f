package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/BaSui01/localpilot/llm"
)

type statusRule struct {
	code      llm.ErrorCode
	retryable bool
}

// 本地推理服务常见的非 2xx 响应；未列出的 5xx 视为可重试的上游错误
var statusRules = map[int]statusRule{
	http.StatusBadRequest:         {llm.ErrInvalidRequest, false},
	http.StatusUnauthorized:       {llm.ErrUnauthorized, false},
	http.StatusForbidden:          {llm.ErrForbidden, false},
	http.StatusNotFound:           {llm.ErrModelNotFound, false},
	http.StatusRequestTimeout:     {llm.ErrUpstreamTimeout, true},
	http.StatusTooManyRequests:    {llm.ErrRateLimited, true},
	http.StatusServiceUnavailable: {llm.ErrModelLoading, true},
	http.StatusGatewayTimeout:     {llm.ErrUpstreamTimeout, true},
}

// StatusError 把推理服务的非 2xx 响应转换为 *llm.Error
func StatusError(status int, msg, provider string) *llm.Error {
	rule, ok := statusRules[status]
	if !ok {
		rule = statusRule{code: llm.ErrUpstreamError, retryable: status >= 500}
	}
	return &llm.Error{
		Code:       rule.code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  rule.retryable,
		Provider:   provider,
	}
}

// TransportError 把 http.Client.Do 的错误转换为 *llm.Error。
// 服务未启动（连接被拒绝、域名无法解析）时重试没有意义；超时可以重试。
func TransportError(err error, provider string) *llm.Error {
	e := &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
		Cause:      err,
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		e.Retryable = false
	case errors.Is(err, context.DeadlineExceeded):
		e.Code, e.HTTPStatus = llm.ErrUpstreamTimeout, http.StatusGatewayTimeout
	case errors.As(err, &dnsErr), refused(err):
		e.Code, e.HTTPStatus, e.Retryable = llm.ErrProviderUnavailable, http.StatusServiceUnavailable, false
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Code, e.HTTPStatus = llm.ErrUpstreamTimeout, http.StatusGatewayTimeout
	}
	return e
}

func refused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

// errorBody 兼容几种服务端的错误格式：
// OpenAI 的 {"error":{"message":..}}、LM Studio 的 {"error":"..."} 与 {"detail":"..."}
type errorBody struct {
	Error  json.RawMessage `json:"error"`
	Detail string          `json:"detail"`
}

// maxErrorBody 限制读取错误响应的字节数
const maxErrorBody = 64 << 10

// ErrorMessage 从错误响应体中提取可读的消息，无法解析时返回原文
func ErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}
	raw := strings.TrimSpace(string(data))

	var eb errorBody
	if json.Unmarshal(data, &eb) != nil {
		return raw
	}
	if eb.Detail != "" {
		return eb.Detail
	}
	var s string
	if json.Unmarshal(eb.Error, &s) == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if json.Unmarshal(eb.Error, &obj) == nil && obj.Message != "" {
		if obj.Type != "" {
			return obj.Message + " (type: " + obj.Type + ")"
		}
		return obj.Message
	}
	return raw
}
