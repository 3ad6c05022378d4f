package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/internal/tlsutil"
	"github.com/BaSui01/localpilot/llm"
	"github.com/BaSui01/localpilot/llm/providers"
)

const (
	defaultAPIPath = "/v1"
	defaultTimeout = 60 * time.Second
)

// Config 描述一个 OpenAI 兼容的推理服务
type Config struct {
	Name         string
	BaseURL      string // 服务根地址，如 http://localhost:5273
	APIPath      string // 默认 /v1
	StatusPath   string // 存活检查路径；为空时请求 {APIPath}/models
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	Header       providers.HeaderFunc // 为空时使用 Bearer
}

// Provider 通过 HTTP 调用一个推理服务
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New 创建 Provider。回环地址使用不走代理的明文 client，远端地址使用加固的 TLS client。
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.APIPath == "" {
		cfg.APIPath = defaultAPIPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Header == nil {
		cfg.Header = providers.Bearer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.ClientFor(cfg.BaseURL, cfg.Timeout),
		logger: logger.With(zap.String("provider", cfg.Name)),
	}
}

func (p *Provider) Name() string { return p.cfg.Name }

// APIURL 返回 OpenAI 兼容 API 的根，如 http://localhost:5273/v1
func (p *Provider) APIURL() string { return providers.JoinURL(p.cfg.BaseURL, p.cfg.APIPath) }

func (p *Provider) statusURL() string {
	if p.cfg.StatusPath == "" {
		return providers.JoinURL(p.APIURL(), "models")
	}
	return providers.JoinURL(p.cfg.BaseURL, p.cfg.StatusPath)
}

func (p *Provider) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	p.cfg.Header(req, p.cfg.APIKey)
	return req, nil
}

// HealthCheck 请求状态端点，2xx 视为在线
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	req, err := p.newRequest(ctx, http.MethodGet, p.statusURL(), nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := providers.Do(p.client, req, p.Name())
	status := &llm.HealthStatus{Latency: time.Since(start)}
	if err != nil {
		return status, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	status.Healthy = true
	return status, nil
}

func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	return providers.FetchModels(ctx, p.client, p.APIURL(), p.cfg.APIKey, p.Name(), p.cfg.Header)
}

func (p *Provider) model(req *llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.cfg.DefaultModel
}

func (p *Provider) post(ctx context.Context, req *llm.ChatRequest, stream bool) (*http.Response, error) {
	body := providers.NewChatCompletionRequest(req, p.model(req), stream)
	httpReq, err := p.newRequest(ctx, http.MethodPost, providers.JoinURL(p.APIURL(), "chat/completions"), body)
	if err != nil {
		return nil, err
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	p.logger.Debug("chat completion",
		zap.String("model", body.Model),
		zap.Int("messages", len(body.Messages)),
		zap.Bool("stream", stream))
	return providers.Do(p.client, httpReq, p.Name())
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cc providers.ChatCompletion
	if err := providers.DecodeJSON(resp.Body, &cc, "completion", p.Name()); err != nil {
		return nil, err
	}
	return cc.ToLLM(p.Name()), nil
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return readEvents(ctx, resp.Body, p.Name()), nil
}
