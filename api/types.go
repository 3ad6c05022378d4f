package api

import (
	"fmt"
	"time"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/inference"
)

// =============================================================================
// 自动化请求类型
// =============================================================================

// AutomationOptions 是请求中可覆盖的浏览器选项；未设置的字段使用服务端默认值。
// @Description 浏览器运行选项
type AutomationOptions struct {
	// 是否无头运行
	Headless *bool `json:"headless,omitempty" example:"true"`
	// 每个动作之间的延迟
	SlowMo string `json:"slow_mo,omitempty" example:"50ms"`
	// 单次导航或增强后端执行的超时
	Timeout string `json:"timeout,omitempty" example:"60s"`
}

// Apply overlays the request options on the server defaults.
func (o *AutomationOptions) Apply(base automation.Options) (automation.Options, error) {
	if o == nil {
		return base, nil
	}
	if o.Headless != nil {
		base.Headless = *o.Headless
	}
	if o.SlowMo != "" {
		d, err := parseDuration("slow_mo", o.SlowMo)
		if err != nil {
			return base, err
		}
		base.SlowMo = d
	}
	if o.Timeout != "" {
		d, err := parseDuration("timeout", o.Timeout)
		if err != nil {
			return base, err
		}
		base.Timeout = d
	}
	return base, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// StartRequest 启动演示会话
// @Description 启动演示请求
type StartRequest struct {
	Options *AutomationOptions `json:"options,omitempty"`
}

// PromptRequest 执行一条自然语言自动化指令
// @Description 自动化指令请求
type PromptRequest struct {
	// 自然语言指令，例如 "Go to example.com and take a screenshot"
	Prompt  string             `json:"prompt" example:"Go to example.com and take a screenshot" binding:"required"`
	Options *AutomationOptions `json:"options,omitempty"`
}

// =============================================================================
// 推理请求类型
// =============================================================================

// CompletionRequest 单轮提示请求
// @Description 发送给本地推理服务的单轮提示
type CompletionRequest struct {
	Model       string  `json:"model,omitempty" example:"phi-4-mini"`
	Prompt      string  `json:"prompt" example:"Summarize this page" binding:"required"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" example:"1000"`
	Temperature float32 `json:"temperature,omitempty" example:"0.7"`
}

// ToInference converts the request for the inference client.
func (r CompletionRequest) ToInference() inference.CompletionRequest {
	return inference.CompletionRequest{
		Model:       r.Model,
		Prompt:      r.Prompt,
		System:      r.System,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	}
}

// ModelInfo 已加载模型
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelList 模型列表响应
type ModelList struct {
	Models  []ModelInfo `json:"models"`
	Default string      `json:"default"`
}
