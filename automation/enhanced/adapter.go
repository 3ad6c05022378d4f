package enhanced

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/llm/tokenizer"
	"go.uber.org/zap"
)

// Adapter 把注册表中的执行器接到编排器上，实现 automation.EnhancedInitializer
type Adapter struct {
	registry  *Registry
	model     LanguageModel
	artifacts *automation.ArtifactSink
	tok       tokenizer.Tokenizer
	logger    *zap.Logger

	mu  sync.RWMutex
	cfg Config
}

var _ automation.EnhancedInitializer = (*Adapter)(nil)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithTokenizer fixes the tokenizer used for page observations.
func WithTokenizer(tok tokenizer.Tokenizer) AdapterOption {
	return func(a *Adapter) { a.tok = tok }
}

// NewAdapter 创建适配器。registry 为 nil 时使用 DefaultRegistry。
func NewAdapter(registry *Registry, model LanguageModel, artifacts *automation.ArtifactSink, cfg Config, logger *zap.Logger, opts ...AdapterOption) *Adapter {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		registry:  registry,
		model:     model,
		artifacts: artifacts,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(zap.String("component", "enhanced_adapter")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the settings the next Init will use.
func (a *Adapter) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// SetConfig 替换配置，只影响之后创建的会话
func (a *Adapter) SetConfig(cfg Config) {
	cfg = cfg.withDefaults()
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.logger.Info("enhanced backend settings updated",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("name", cfg.Name),
		zap.Int("max_steps", cfg.MaxSteps))
}

// Init 查找执行器、检查能力声明与运行时依赖并构造执行器。
// 任何失败都返回 CAPABILITY_UNAVAILABLE。
func (a *Adapter) Init(ctx context.Context, b browser.Browser, p browser.Page) (automation.EnhancedBackend, error) {
	cfg := a.Config()
	if !cfg.Enabled {
		return nil, automation.CapabilityUnavailable("disabled by configuration", nil)
	}
	d, ok := a.registry.Lookup(cfg.Name)
	if !ok {
		return nil, automation.CapabilityUnavailable(fmt.Sprintf("backend %q is not registered", cfg.Name), nil)
	}
	if missing := d.Missing(RequiredExports); len(missing) > 0 {
		return nil, automation.CapabilityUnavailable(
			fmt.Sprintf("backend %q does not export %s", d.Name, strings.Join(missing, ", ")), nil)
	}

	deps := Deps{Browser: b, Page: p, Model: a.model, Config: cfg, Logger: a.logger, Tokenizer: a.tok}
	if d.Probe != nil {
		pctx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		err := d.Probe(pctx, deps)
		cancel()
		if err != nil {
			return nil, automation.CapabilityUnavailable(err.Error(), err)
		}
	}
	eng, err := d.New(deps)
	if err != nil {
		return nil, automation.CapabilityUnavailable(err.Error(), err)
	}

	a.logger.Info("enhanced backend initialized", zap.String("name", d.Name), zap.String("version", d.Version))
	return &boundBackend{
		name:      d.Name,
		engine:    eng,
		artifacts: a.artifacts,
		logger:    a.logger,
	}, nil
}

// boundBackend 是绑定到某个会话的执行器
type boundBackend struct {
	name      string
	engine    Engine
	artifacts *automation.ArtifactSink
	logger    *zap.Logger
}

func (b *boundBackend) Name() string { return b.name }

// Run 执行提示并把原始结果转换为统一结果：解码并保存图片，按顺序收集输出行
func (b *boundBackend) Run(ctx context.Context, prompt string, _ automation.Options) (*automation.Result, error) {
	raw, err := b.engine.Execute(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = &RawResult{}
	}

	tr, ok := automation.TranscriptFrom(ctx)
	if !ok {
		tr = automation.NewTranscript("", nil, b.logger)
	}
	for _, line := range raw.Output {
		tr.Add(line)
	}

	shots := make([]string, 0, len(raw.Images))
	for i, img := range raw.Images {
		data, err := DecodeImage(img)
		if err != nil {
			tr.Warnf("Could not decode image %d: %v", i, err)
			continue
		}
		path, err := b.artifacts.Save(automation.EnhancedArtifact(i), data)
		if err != nil {
			return nil, automation.ScreenshotError(automation.EnhancedArtifact(i), err)
		}
		tr.Addf("Screenshot saved: %s", path)
		shots = append(shots, path)
	}

	res := automation.Succeeded("Enhanced prompt processed successfully")
	res.Screenshots = shots
	res.Output = tr.Lines()
	return res, nil
}

func (b *boundBackend) Dispose(ctx context.Context) error {
	return b.engine.Close(ctx)
}

// DecodeImage 解码 base64 图片，接受 data URL 前缀与无填充编码
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data url")
		}
		s = s[idx+1:]
	}
	if s == "" {
		return nil, fmt.Errorf("empty image")
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, nil
}
