package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/automation/basic"
	"github.com/BaSui01/localpilot/automation/diagnostics"
	"github.com/BaSui01/localpilot/automation/enhanced"
	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/config"
	"github.com/BaSui01/localpilot/inference"
	"github.com/BaSui01/localpilot/internal/history"
	"github.com/BaSui01/localpilot/internal/metrics"
)

// components 是 serve 与各命令行子命令共用的对象图
type components struct {
	cfg       *config.Config
	logger    *zap.Logger
	client    *inference.Client
	launcher  browser.Launcher
	artifacts *automation.ArtifactSink
	basic     *basic.Backend
	adapter   *enhanced.Adapter
	registry  *enhanced.Registry
}

// buildComponents 按配置创建推理客户端、浏览器启动器和两个后端。
// collector 为 nil 时不上报指标。
func buildComponents(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) *components {
	var clientOpts []inference.Option
	if collector != nil {
		clientOpts = append(clientOpts, inference.WithObserver(collector))
	}
	client := inference.NewClient(cfg.Inference, logger, clientOpts...)

	artifacts := automation.NewArtifactSink(cfg.Automation.ScreenshotDir)
	launcher := browser.NewChromeDPLauncher(logger)
	registry := enhanced.DefaultRegistry()

	return &components{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		launcher:  launcher,
		artifacts: artifacts,
		basic:     basic.New(launcher, artifacts, basic.WithLogger(logger), basic.WithBrowserConfig(cfg.Browser)),
		adapter:   enhanced.NewAdapter(registry, client, artifacts, cfg.Automation.Enhanced, logger),
		registry:  registry,
	}
}

// orchestrator 创建编排器，extra 追加事件、指标、历史等可选依赖
func (c *components) orchestrator(extra ...automation.Option) *automation.Orchestrator {
	opts := []automation.Option{
		automation.WithEnhanced(c.adapter),
		automation.WithLogger(c.logger),
		automation.WithDemoTargets(c.cfg.Automation.Demo),
		automation.WithBrowserConfig(c.cfg.Browser),
	}
	return automation.New(c.launcher, c.basic, c.artifacts, append(opts, extra...)...)
}

// Diagnose 每次按当前增强后端配置创建 Diagnoser，配置热更新后立即生效
func (c *components) Diagnose(ctx context.Context) diagnostics.Report {
	d := diagnostics.New(c.registry, c.client, c.adapter.Config(), c.logger,
		diagnostics.WithExecPath(c.cfg.Browser.ExecPath),
		diagnostics.WithEndpoint(c.cfg.Inference.BaseURL))
	return d.Diagnose(ctx)
}

// openHistory 打开运行历史库；未启用或打开失败时返回 nil 并记录原因
func openHistory(cfg config.HistoryConfig, logger *zap.Logger, collector *metrics.Collector) *history.Store {
	if !cfg.Enabled {
		logger.Info("run history disabled")
		return nil
	}
	opts := []history.Option{history.WithLogger(logger), history.WithKeep(cfg.Keep)}
	if collector != nil {
		opts = append(opts, history.WithMetrics(collector))
	}
	store, err := history.Open(cfg, opts...)
	if err != nil {
		logger.Warn("run history not available", zap.String("driver", cfg.Driver), zap.Error(err))
		return nil
	}
	return store
}

// optionsSource 保存当前生效的默认运行选项，热更新时整体替换
type optionsSource struct {
	mu   sync.RWMutex
	opts automation.Options
}

func newOptionsSource(cfg *config.Config) *optionsSource {
	return &optionsSource{opts: cfg.Automation.Options(cfg.Browser)}
}

func (s *optionsSource) Get() automation.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

func (s *optionsSource) Set(cfg *config.Config) {
	s.mu.Lock()
	s.opts = cfg.Automation.Options(cfg.Browser)
	s.mu.Unlock()
}
