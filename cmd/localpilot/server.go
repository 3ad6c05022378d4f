package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/api/handlers"
	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/config"
	"github.com/BaSui01/localpilot/internal/events"
	"github.com/BaSui01/localpilot/internal/history"
	"github.com/BaSui01/localpilot/internal/metrics"
	"github.com/BaSui01/localpilot/internal/server"
	"github.com/BaSui01/localpilot/internal/telemetry"
	"github.com/BaSui01/localpilot/types"
)

// historyHealthInterval 是历史库后台健康检查的间隔
const historyHealthInterval = 30 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, level := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			logger.Info("Starting localpilot",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			srv := NewServer(cfg, loader, logger, level)
			if err := srv.Start(cmd.Context()); err != nil {
				srv.Shutdown(context.Background())
				return fmt.Errorf("failed to start server: %w", err)
			}
			err = srv.WaitForShutdown(cmd.Context())
			logger.Info("localpilot stopped")
			return err
		},
	}
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装自动化编排器、推理客户端与 HTTP/Metrics 两个监听端口
type Server struct {
	cfg    *config.Config
	loader *config.Loader
	logger *zap.Logger
	level  zap.AtomicLevel

	httpManager    *server.Manager
	metricsManager *server.Manager

	collector *metrics.Collector
	telemetry *telemetry.Providers
	history   *history.Store
	hub       *events.Hub
	comps     *components
	orch      *automation.Orchestrator
	defaults  *optionsSource
	watcher   *config.Watcher

	// 限流清理、历史健康检查等后台任务
	bgCancel context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, loader *config.Loader, logger *zap.Logger, level zap.AtomicLevel) *Server {
	return &Server{
		cfg:    cfg,
		loader: loader,
		logger: logger,
		level:  level,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖并启动 HTTP 与 Metrics 服务器（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.bgCancel = cancel

	s.collector = metrics.NewCollector("localpilot", s.logger)

	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger, telemetry.WithServiceVersion(Version))
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	s.history = openHistory(s.cfg.History, s.logger, s.collector)
	if s.history != nil {
		s.history.StartHealthCheck(bgCtx, historyHealthInterval)
	}

	s.hub = events.NewHub(events.WithDropRecorder(s.collector), events.WithLogger(s.logger))
	s.comps = buildComponents(s.cfg, s.logger, s.collector)
	s.defaults = newOptionsSource(s.cfg)

	orchOpts := []automation.Option{
		automation.WithEventSink(s.hub),
		automation.WithObserver(s.collector),
	}
	if s.history != nil {
		orchOpts = append(orchOpts, automation.WithRecorder(s.history))
	}
	s.orch = s.comps.orchestrator(orchOpts...)

	if err := s.initWatcher(bgCtx); err != nil {
		return fmt.Errorf("failed to init config watcher: %w", err)
	}

	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("host", s.cfg.Server.Host),
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("history_enabled", s.history != nil),
		zap.Bool("hot_reload_enabled", s.watcher != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initWatcher 监听配置文件；未指定配置文件时跳过
func (s *Server) initWatcher(ctx context.Context) error {
	if s.loader == nil || s.loader.Path() == "" {
		return nil
	}
	w, err := config.NewWatcher(s.loader, s.cfg, config.WithWatcherLogger(s.logger))
	if err != nil {
		return err
	}
	w.OnReload(s.applyConfig)
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// applyConfig 应用无需重启即可生效的配置：日志级别、运行默认选项、增强后端设置。
// 端口、数据库等变更仍需重启。
func (s *Server) applyConfig(old, next *config.Config, changes []config.Change) {
	if old.Log.Level != next.Log.Level {
		s.level.SetLevel(parseLevel(next.Log.Level))
	}
	s.defaults.Set(next)
	s.comps.adapter.SetConfig(next.Automation.Enhanced)

	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	s.logger.Info("Configuration reloaded", zap.Strings("changed", paths))
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册全部 API 路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.AddCheck(handlers.InferenceCheck(s.cfg.Inference.StatusURL(), s.comps.client.IsLive))
	if s.history != nil {
		health.AddCheck(handlers.HistoryCheck(s.history.Ping))
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	auto := handlers.NewAutomationHandler(s.orch, s.defaults.Get, s.logger)
	mux.HandleFunc("POST /api/v1/automation/start", auto.HandleStart)
	mux.HandleFunc("POST /api/v1/automation/prompt", auto.HandlePrompt)
	mux.HandleFunc("POST /api/v1/automation/stop", auto.HandleStop)
	mux.HandleFunc("GET /api/v1/automation/status", auto.HandleStatus)

	inf := handlers.NewInferenceHandler(s.comps.client, s.logger)
	mux.HandleFunc("GET /api/v1/inference/status", inf.HandleStatus)
	mux.HandleFunc("GET /api/v1/inference/probe", inf.HandleProbe)
	mux.HandleFunc("GET /api/v1/models", inf.HandleModels)
	mux.HandleFunc("POST /api/v1/prompt", inf.HandlePrompt)

	diag := handlers.NewDiagnosticsHandler(s.comps, s.logger)
	mux.HandleFunc("GET /api/v1/diagnostics", diag.HandleDiagnose)

	if s.history != nil {
		runs := handlers.NewHistoryHandler(s.history, s.logger)
		mux.HandleFunc("GET /api/v1/runs", runs.HandleList)
		mux.HandleFunc("GET /api/v1/runs/{id}", runs.HandleGet)
	} else {
		disabled := func(w http.ResponseWriter, r *http.Request) {
			handlers.WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "run history is disabled", nil)
		}
		mux.HandleFunc("GET /api/v1/runs", disabled)
		mux.HandleFunc("GET /api/v1/runs/{id}", disabled)
	}

	mux.Handle("GET /api/v1/events", events.Handler(s.hub, s.logger,
		events.WithOriginPatterns(originPatterns(s.cfg.Server.CORSAllowedOrigins)...)))

	return mux
}

// startHTTPServer 构建中间件链并启动 API 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	var auth Middleware
	if s.cfg.JWT.Enabled() {
		auth = JWTAuth(s.cfg.JWT, s.logger)
	} else {
		auth = APIKeyAuth(s.cfg.Server.APIKeys, s.cfg.Server.AllowQueryAPIKey, s.logger)
	}

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		auth,
	)

	s.httpManager = server.NewManager("api", handler, server.FromServerConfig(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)

	// 钩子在监听器关闭后按顺序执行
	s.httpManager.OnShutdown("automation", func(ctx context.Context) error {
		res := s.orch.Stop(ctx)
		if !res.Success {
			return errors.New(res.Error)
		}
		return nil
	})
	s.httpManager.OnShutdown("events", func(context.Context) error {
		s.hub.Close()
		return nil
	})
	if s.history != nil {
		s.httpManager.OnShutdown("history", func(context.Context) error { return s.history.Close() })
	}
	s.httpManager.OnShutdown("telemetry", s.telemetry.Shutdown)

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux, server.FromServerConfig(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// originPatterns 把 CORS 来源转换为 websocket 允许的 host 模式
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if host := hostOf(o); host != "" {
			out = append(out, host)
		}
	}
	return out
}

func hostOf(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Host
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到信号或 ctx 结束，然后关闭全部服务
func (s *Server) WaitForShutdown(ctx context.Context) error {
	var err error
	if s.httpManager != nil {
		err = s.httpManager.WaitForShutdown(ctx)
	}
	s.Shutdown(context.Background())
	return err
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	if s.watcher != nil {
		s.watcher.Stop()
	}

	// API 服务器的钩子会停止浏览器会话、关闭事件流、历史库和遥测
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	} else {
		if s.hub != nil {
			s.hub.Close()
		}
		if s.history != nil {
			_ = s.history.Close()
		}
		_ = s.telemetry.Shutdown(ctx)
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.logger.Info("Graceful shutdown completed")
}
