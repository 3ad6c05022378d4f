package llm

import (
	"context"
	"errors"
	"time"
)

// Provider 是 OpenAI 兼容推理服务的最小抽象。
// 只覆盖 localpilot 需要的能力：单轮/流式补全、模型列表与存活检查。
type Provider interface {
	Name() string
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// Stream 建立连接后返回增量通道；通道关闭表示流结束，
	// 中途错误以 StreamChunk.Err 的形式送出。
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	ListModels(ctx context.Context) ([]Model, error)
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// ErrorCode 区分推理服务失败的类别，决定重试与面向用户的提示
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "invalid_request"
	ErrUnauthorized        ErrorCode = "unauthorized"
	ErrForbidden           ErrorCode = "forbidden"
	ErrModelNotFound       ErrorCode = "model_not_found"
	ErrModelLoading        ErrorCode = "model_loading" // 服务在线但模型仍在加载
	ErrRateLimited         ErrorCode = "rate_limited"
	ErrUpstreamTimeout     ErrorCode = "upstream_timeout"
	ErrUpstreamError       ErrorCode = "upstream_error"
	ErrProviderUnavailable ErrorCode = "provider_unavailable" // 连接被拒绝或域名无法解析
)

// Error 携带推理服务返回的状态码；Cause 保留传输层错误供 errors.Is/As 使用
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable 报告 err 链上是否存在可重试的 *Error
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest 的零值字段由服务端默认值补齐
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID       string       `json:"id,omitempty"`
	Provider string       `json:"provider,omitempty"`
	Model    string       `json:"model"`
	Choices  []ChatChoice `json:"choices"`
	Usage    ChatUsage    `json:"usage"`
	Created  time.Time    `json:"created,omitzero"`
}

// Answer 返回第一个候选的文本；服务端没有返回候选时报错
func (r *ChatResponse) Answer() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return r.Choices[0].Message.Content, nil
}

// StreamChunk 是一次增量输出；最后一个 chunk 可能只带 Usage
type StreamChunk struct {
	ID           string     `json:"id,omitempty"`
	Model        string     `json:"model,omitempty"`
	Delta        string     `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *ChatUsage `json:"usage,omitempty"`
	Err          *Error     `json:"error,omitempty"`
}

// Model 是 /models 返回的单个条目
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}
