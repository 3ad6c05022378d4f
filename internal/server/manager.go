package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/config"
)

// Config 是单个监听器的参数。API 与 metrics 两个监听器共用超时设置。
type Config struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"` // 自动化请求同步等待浏览器，需留足时间
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认监听参数
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    3 * time.Minute,
		IdleTimeout:     2 * time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// FromServerConfig 用配置文件的 server 段覆盖默认值；零值保留默认
func FromServerConfig(sc config.ServerConfig, port int) Config {
	cfg := DefaultConfig()
	cfg.Addr = net.JoinHostPort(sc.Host, strconv.Itoa(port))
	for _, o := range []struct {
		dst *time.Duration
		src time.Duration
	}{
		{&cfg.ReadTimeout, sc.ReadTimeout},
		{&cfg.WriteTimeout, sc.WriteTimeout},
		{&cfg.ShutdownTimeout, sc.ShutdownTimeout},
	} {
		if o.src > 0 {
			*o.dst = o.src
		}
	}
	return cfg
}

type state int

const (
	stateIdle state = iota
	stateServing
	stateClosed
)

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager 管理一个 http.Server 的启动与优雅关闭
type Manager struct {
	cfg    Config
	srv    *http.Server
	logger *zap.Logger
	errCh  chan error

	mu    sync.RWMutex
	state state
	ln    net.Listener
	hooks []hook
}

// NewManager 创建管理器。name 只出现在日志里，例如 api 或 metrics。
func NewManager(name string, handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg: cfg,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", name)),
		errCh:  make(chan error, 1),
	}
}

// OnShutdown 注册关闭钩子，监听器停止后按注册顺序执行
func (m *Manager) OnShutdown(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
	m.mu.Unlock()
}

// Start 绑定端口后在后台提供服务，立即返回
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateServing:
		return errors.New("server already started")
	case stateClosed:
		return errors.New("server is closed")
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.cfg.Addr, err)
	}
	m.ln, m.state = ln, stateServing
	m.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	go func() {
		err := m.srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("serve failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}()
	return nil
}

// Shutdown 停止接收请求，等待在途请求完成，再执行关闭钩子。
// 重复调用直接返回 nil。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = stateClosed
	hooks := append([]hook(nil), m.hooks...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Error("graceful shutdown failed", zap.Error(err))
		errs = append(errs, err)
	}
	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			m.logger.Warn("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	m.logger.Info("stopped", zap.Int("hooks", len(hooks)))
	return errors.Join(errs...)
}

// WaitForShutdown 阻塞到 SIGINT/SIGTERM、ctx 结束或服务异常退出，然后调用 Shutdown。
// 服务异常退出时返回该错误。
func (m *Manager) WaitForShutdown(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cause error
	select {
	case <-sigCtx.Done():
		m.logger.Info("shutdown requested", zap.NamedError("reason", context.Cause(sigCtx)))
	case cause = <-m.errCh:
	}
	return errors.Join(cause, m.Shutdown(context.Background()))
}

// Errors 返回 Serve 的异步错误
func (m *Manager) Errors() <-chan error { return m.errCh }

// Addr 返回实际监听地址，未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.cfg.Addr
}

// IsRunning 在 Shutdown 之前返回 true
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state != stateClosed
}
