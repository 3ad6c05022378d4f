package enhanced

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/inference"
	"github.com/BaSui01/localpilot/llm/tokenizer"
	"go.uber.org/zap"
)

// Config 增强后端配置
type Config struct {
	Enabled           bool          `yaml:"enabled" env:"ENABLED" json:"enabled"`
	Name              string        `yaml:"name" env:"NAME" json:"name"`
	Model             string        `yaml:"model" env:"MODEL" json:"model,omitempty"`
	MaxSteps          int           `yaml:"max_steps" env:"MAX_STEPS" json:"max_steps"`
	ObservationTokens int           `yaml:"observation_tokens" env:"OBSERVATION_TOKENS" json:"observation_tokens"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT" json:"probe_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		Name:              AgenticName,
		MaxSteps:          8,
		ObservationTokens: 1500,
		ProbeTimeout:      3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.ObservationTokens <= 0 {
		c.ObservationTokens = def.ObservationTokens
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	return c
}

// LanguageModel 是规划器使用的推理能力，*inference.Client 满足该接口
type LanguageModel interface {
	IsLive(ctx context.Context) bool
	Complete(ctx context.Context, req inference.CompletionRequest) (*inference.Completion, error)
}

var _ LanguageModel = (*inference.Client)(nil)

// RawResult 是执行器的原始输出。Images 为 base64（可带 data: 前缀）。
type RawResult struct {
	Images  []string `json:"images,omitempty"`
	Output  []string `json:"output,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// Engine 在共享页面上执行一条提示
type Engine interface {
	Execute(ctx context.Context, prompt string) (*RawResult, error)
	Close(ctx context.Context) error
}

// Deps 是构造执行器所需的依赖
type Deps struct {
	Browser browser.Browser
	Page    browser.Page
	Model   LanguageModel
	Config  Config
	Logger  *zap.Logger
	// Tokenizer 为空时按 Config.Model 选择
	Tokenizer tokenizer.Tokenizer
}

// Factory 构造执行器
type Factory func(Deps) (Engine, error)

// Descriptor 描述一个可用的执行器。Probe 为 nil 表示无需运行时检查。
type Descriptor struct {
	Name    string
	Version string
	Exports []string
	New     Factory
	Probe   func(ctx context.Context, deps Deps) error
}

// RequiredExports 是适配器依赖的最小能力集合
var RequiredExports = []string{ExportNavigate, ExportScreenshot}

// Missing 返回 required 中未声明的能力
func (d Descriptor) Missing(required []string) []string {
	var out []string
	for _, r := range required {
		if !slices.Contains(d.Exports, r) {
			out = append(out, r)
		}
	}
	return out
}

// Registry 按名字保存执行器描述
type Registry struct {
	mu    sync.RWMutex
	descs map[string]Descriptor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{descs: make(map[string]Descriptor)}
}

// DefaultRegistry 返回已注册 agentic 执行器的注册表
func DefaultRegistry() *Registry {
	r := NewRegistry()
	if err := r.Register(AgenticDescriptor()); err != nil {
		panic(err)
	}
	return r
}

// Register 注册执行器描述，名字重复时返回错误
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return errors.New("descriptor name is required")
	}
	if d.New == nil {
		return fmt.Errorf("descriptor %q has no factory", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descs[d.Name]; exists {
		return fmt.Errorf("descriptor %q already registered", d.Name)
	}
	r.descs[d.Name] = d
	return nil
}

// Lookup 按名字查找
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[name]
	return d, ok
}

// Names 返回已注册的名字（有序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descs))
	for n := range r.descs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
