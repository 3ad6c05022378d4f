package automation

import (
	"strings"
	"time"

	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/types"
)

// Kind identifies an automation request.
type Kind string

const (
	KindDemo   Kind = "demo"
	KindPrompt Kind = "prompt"
)

// 默认值。Options 中的零值表示使用这些默认值。
const (
	DefaultNavigationTimeout = 60 * time.Second
	DefaultEnhancedTimeout   = 120 * time.Second
	DefaultSlowMo            = 50 * time.Millisecond
)

// Options 控制一次自动化运行的浏览器行为
type Options struct {
	Headless bool          `json:"headless"`
	SlowMo   time.Duration `json:"slow_mo"`
	Timeout  time.Duration `json:"timeout"`
}

// NavigationTimeout bounds a single navigation plus its screenshot.
func (o Options) NavigationTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultNavigationTimeout
}

// EnhancedTimeout bounds one enhanced-backend prompt.
func (o Options) EnhancedTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultEnhancedTimeout
}

// SlowMotion returns the per-action delay.
func (o Options) SlowMotion() time.Duration {
	if o.SlowMo > 0 {
		return o.SlowMo
	}
	return DefaultSlowMo
}

// BrowserConfig overlays the options on a base launch config.
func (o Options) BrowserConfig(base browser.Config) browser.Config {
	base.Headless = o.Headless
	base.SlowMo = o.SlowMotion()
	return base
}

// Request 是一次自动化调用
type Request struct {
	Kind    Kind    `json:"kind"`
	Prompt  string  `json:"prompt,omitempty"`
	Options Options `json:"options"`
}

// Validate checks the request before any browser work happens.
func (r Request) Validate() error {
	switch r.Kind {
	case KindDemo:
		return nil
	case KindPrompt:
		if strings.TrimSpace(r.Prompt) == "" {
			return types.NewError(types.ErrInvalidRequest, "prompt is required").WithHTTPStatus(400)
		}
		return nil
	default:
		return types.Errorf(types.ErrInvalidRequest, "unknown automation kind %q", r.Kind).WithHTTPStatus(400)
	}
}

// Result 是每个操作统一的返回结构。
//
// 失败的结果总是带 Error；成功的结果不带 Error、Code 与 StackTrace。
type Result struct {
	Success              bool            `json:"success"`
	Message              string          `json:"message,omitempty"`
	UsingEnhancedBackend bool            `json:"using_enhanced_backend"`
	Backend              string          `json:"backend,omitempty"`
	Screenshots          []string        `json:"screenshots"`
	Output               []string        `json:"output"`
	Error                string          `json:"error,omitempty"`
	Code                 types.ErrorCode `json:"code,omitempty"`
	StackTrace           string          `json:"stack_trace,omitempty"`
	RunID                string          `json:"run_id,omitempty"`
	ContentAnalyzed      bool            `json:"content_analyzed,omitempty"`
}

// Succeeded returns a successful result.
func Succeeded(message string) *Result {
	return &Result{Success: true, Message: message}
}

// Failed converts err into a failed result. A *types.Error contributes its
// code and captured stack.
func Failed(err error) *Result {
	r := &Result{}
	if err == nil {
		return r.Normalize()
	}
	r.Error = err.Error()
	if e, ok := types.AsError(err); ok {
		r.Code = e.Code
		r.Error = e.Message
		if e.Cause != nil {
			r.Error = e.Message + ": " + e.Cause.Error()
		}
		r.StackTrace = e.StackTrace()
	}
	return r.Normalize()
}

// Normalize 修正结果使其满足不变式，返回 r 本身便于链式调用
func (r *Result) Normalize() *Result {
	if r.Screenshots == nil {
		r.Screenshots = []string{}
	}
	if r.Output == nil {
		r.Output = []string{}
	}
	if r.Success {
		r.Error = ""
		r.Code = ""
		r.StackTrace = ""
		return r
	}
	if strings.TrimSpace(r.Error) == "" {
		r.Error = "unknown error"
	}
	return r
}

// Capability 记录增强后端在当前会话中的可用性
type Capability int

const (
	CapabilityNotAttempted Capability = iota
	CapabilityAvailable
	CapabilityUnavailable
)

func (c Capability) String() string {
	switch c {
	case CapabilityAvailable:
		return "available"
	case CapabilityUnavailable:
		return "unavailable"
	default:
		return "not_attempted"
	}
}

// MarshalText encodes the capability by name.
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
