package inference

import (
	"context"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/localpilot/llm"
	"github.com/BaSui01/localpilot/llm/providers"
	"github.com/BaSui01/localpilot/llm/providers/openaicompat"
	"github.com/BaSui01/localpilot/types"
	"go.uber.org/zap"
)

// ProviderName identifies the local inference server in logs and errors.
const ProviderName = "foundry-local"

// Config 推理服务客户端配置
type Config struct {
	BaseURL           string        `yaml:"base_url" env:"BASE_URL" json:"base_url"`
	APIPath           string        `yaml:"api_path" env:"API_PATH" json:"api_path"`
	StatusPath        string        `yaml:"status_path" env:"STATUS_PATH" json:"status_path"`
	APIKey            string        `yaml:"api_key" env:"API_KEY" json:"-"`
	DefaultModel      string        `yaml:"default_model" env:"DEFAULT_MODEL" json:"default_model"`
	LivenessTimeout   time.Duration `yaml:"liveness_timeout" env:"LIVENESS_TIMEOUT" json:"liveness_timeout"`
	ModelsTimeout     time.Duration `yaml:"models_timeout" env:"MODELS_TIMEOUT" json:"models_timeout"`
	CompletionTimeout time.Duration `yaml:"completion_timeout" env:"COMPLETION_TIMEOUT" json:"completion_timeout"`
	MaxRetries        int           `yaml:"max_retries" env:"MAX_RETRIES" json:"max_retries"`
	MaxTokens         int           `yaml:"max_tokens" env:"MAX_TOKENS" json:"max_tokens"`
	Temperature       float32       `yaml:"temperature" env:"TEMPERATURE" json:"temperature"`
	ProbePorts        []int         `yaml:"probe_ports" json:"probe_ports"`
}

// DefaultConfig 返回 Foundry Local 的默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:5273",
		APIPath:           "/v1",
		StatusPath:        "/openai/status",
		APIKey:            "foundry-local-key",
		DefaultModel:      "phi-4-mini",
		LivenessTimeout:   3 * time.Second,
		ModelsTimeout:     10 * time.Second,
		CompletionTimeout: 60 * time.Second,
		MaxRetries:        2,
		MaxTokens:         1000,
		Temperature:       0.7,
		ProbePorts:        []int{5000, 8080, 1234},
	}
}

// APIURL returns the OpenAI-compatible API root, e.g. http://localhost:5273/v1.
func (c Config) APIURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.APIPath
}

// StatusURL returns the liveness endpoint.
func (c Config) StatusURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.StatusPath
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	Model       string  `json:"model,omitempty"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// Completion is the model's answer plus the model actually used.
type Completion struct {
	Result         string        `json:"result"`
	Model          string        `json:"model"`
	ModelRequested string        `json:"model_requested"`
	Timestamp      time.Time     `json:"timestamp"`
	Usage          llm.ChatUsage `json:"usage"`
}

// Status 推理服务状态
type Status struct {
	Running   bool          `json:"running"`
	Endpoint  string        `json:"endpoint"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Observer receives per-call outcomes.
type Observer interface {
	ObserveInference(op string, success bool, d time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithObserver sets the call observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithProvider replaces the HTTP provider, mainly for tests.
func WithProvider(p llm.Provider) Option {
	return func(c *Client) { c.provider = p }
}

// Client 是本地推理服务的客户端门面
type Client struct {
	cfg      Config
	provider llm.Provider
	logger   *zap.Logger
	observer Observer
}

// NewClient 创建客户端。OPENAI_API_KEY 环境变量优先于配置中的 APIKey。
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.APIPath == "" {
		cfg.APIPath = def.APIPath
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = def.StatusPath
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if cfg.APIKey == "" {
		cfg.APIKey = def.APIKey
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = def.LivenessTimeout
	}
	if cfg.ModelsTimeout <= 0 {
		cfg.ModelsTimeout = def.ModelsTimeout
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = def.CompletionTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "inference")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.provider == nil {
		base := openaicompat.New(openaicompat.Config{
			Name:         ProviderName,
			BaseURL:      cfg.BaseURL,
			APIPath:      cfg.APIPath,
			StatusPath:   cfg.StatusPath,
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.DefaultModel,
			Timeout:      cfg.CompletionTimeout,
		}, logger)
		policy := providers.DefaultRetryPolicy()
		policy.MaxRetries = cfg.MaxRetries
		c.provider = providers.WithRetry(base, policy, logger)
	}

	c.logger.Info("inference client configured",
		zap.String("endpoint", cfg.BaseURL),
		zap.String("default_model", cfg.DefaultModel))
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

func (c *Client) observe(op string, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveInference(op, err == nil, time.Since(start))
	}
}

// IsLive 在 LivenessTimeout 内检查状态端点，2xx 视为在线
func (c *Client) IsLive(ctx context.Context) bool {
	return c.Status(ctx).Running
}

// Status 返回状态端点的检查结果
func (c *Client) Status(ctx context.Context) Status {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LivenessTimeout)
	defer cancel()

	st := Status{Endpoint: c.cfg.StatusURL(), CheckedAt: start}
	hs, err := c.provider.HealthCheck(ctx)
	c.observe("status", start, err)
	if hs != nil {
		st.Latency = hs.Latency
	}
	if err != nil {
		c.logger.Warn("inference status check failed", zap.String("endpoint", st.Endpoint), zap.Error(err))
		return st
	}
	st.Running = hs != nil && hs.Healthy
	c.logger.Debug("inference status check successful", zap.Duration("latency", st.Latency))
	return st
}

// ListModels 返回当前加载的模型
func (c *Client) ListModels(ctx context.Context) ([]llm.Model, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ModelsTimeout)
	defer cancel()

	models, err := c.provider.ListModels(ctx)
	c.observe("models", start, err)
	if err != nil {
		return nil, c.mapError(err, "")
	}
	c.logger.Info("listed models", zap.Int("count", len(models)))
	return models, nil
}

// resolveModel 请求的模型不在已加载列表中时退回第一个可用模型
func (c *Client) resolveModel(ctx context.Context, requested string) string {
	models, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Warn("could not retrieve available models, continuing with requested model",
			zap.String("model", requested), zap.Error(err))
		return requested
	}
	if len(models) == 0 {
		return requested
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	if slices.Contains(ids, requested) {
		return requested
	}
	c.logger.Warn("requested model is not available, falling back",
		zap.String("requested", requested),
		zap.String("fallback", ids[0]))
	return ids[0]
}

func (c *Client) chatRequest(req CompletionRequest, model string) *llm.ChatRequest {
	msgs := make([]llm.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: req.System})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	return &llm.ChatRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temp,
	}
}

// prepare 校验请求、确认服务在线并解析模型
func (c *Client) prepare(ctx context.Context, req CompletionRequest) (string, string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", "", types.NewError(types.ErrInvalidRequest, "prompt is required")
	}
	requested := req.Model
	if requested == "" {
		requested = c.cfg.DefaultModel
	}
	if !c.IsLive(ctx) {
		return "", "", types.Errorf(types.ErrConnectivity,
			"Inference server is not running at %s. Please start the service.", c.cfg.StatusURL()).
			WithHTTPStatus(503)
	}
	return requested, c.resolveModel(ctx, requested), nil
}

// Complete 发送单轮提示并返回完整回答
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	requested, model, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	c.logger.Info("sending request to model", zap.String("model", model), zap.String("endpoint", c.cfg.APIURL()))
	start := time.Now()
	resp, err := c.provider.Completion(ctx, c.chatRequest(req, model))
	c.observe("completion", start, err)
	if err != nil {
		c.logger.Error("completion failed", zap.String("model", model), zap.Error(err))
		return nil, c.mapError(err, model)
	}

	answer, err := resp.Answer()
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithCause(err)
	}
	c.logger.Info("response received",
		zap.String("model", model),
		zap.Int("chars", len(answer)),
		zap.Duration("latency", time.Since(start)))

	return &Completion{
		Result:         answer,
		Model:          model,
		ModelRequested: requested,
		Timestamp:      time.Now().UTC(),
		Usage:          resp.Usage,
	}, nil
}

// Stream 发送单轮提示并返回增量输出
func (c *Client) Stream(ctx context.Context, req CompletionRequest) (<-chan llm.StreamChunk, error) {
	_, model, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ch, err := c.provider.Stream(ctx, c.chatRequest(req, model))
	c.observe("stream", start, err)
	if err != nil {
		return nil, c.mapError(err, model)
	}
	return ch, nil
}
