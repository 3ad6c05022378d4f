package automation

import (
	"context"
	"time"

	"github.com/BaSui01/localpilot/browser"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// session 是编排器持有的浏览器会话。所有字段在持有操作信号量时修改，
// capability 的读取另由 Orchestrator.mu 保护。
type session struct {
	id         string
	browser    browser.Browser
	page       browser.Page
	enhanced   EnhancedBackend
	capability Capability
	createdAt  time.Time
}

// ensureSession 复用已有会话，否则启动浏览器并打开页面
func (o *Orchestrator) ensureSession(ctx context.Context, opts Options, tr *Transcript) (*session, error) {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()
	if s != nil {
		return s, nil
	}

	cfg := opts.BrowserConfig(o.browserCfg)
	b, err := o.launcher.Launch(ctx, cfg)
	if err != nil {
		return nil, LaunchError(err)
	}
	page, err := b.NewPage(ctx)
	if err != nil {
		if cerr := b.Close(); cerr != nil {
			o.logger.Warn("failed to close browser after page error", zap.Error(cerr))
		}
		return nil, LaunchError(err)
	}

	s = &session{
		id:        uuid.NewString(),
		browser:   b,
		page:      page,
		createdAt: time.Now(),
	}
	o.mu.Lock()
	o.session = s
	o.mu.Unlock()

	o.observer.ObserveSession("created")
	tr.Add("Browser launched successfully")
	o.logger.Info("browser session created",
		zap.String("session_id", s.id),
		zap.Bool("headless", cfg.Headless),
		zap.Duration("slow_mo", cfg.SlowMo))
	return s, nil
}

// ensureEnhanced 每个会话只尝试一次初始化增强后端
func (o *Orchestrator) ensureEnhanced(ctx context.Context, s *session, tr *Transcript) {
	if s.capability != CapabilityNotAttempted {
		return
	}
	if o.enhanced == nil {
		o.setCapability(s, CapabilityUnavailable)
		tr.Add("Enhanced backend not configured, using basic automation")
		return
	}

	eb, err := o.enhanced.Init(ctx, s.browser, s.page)
	if err != nil {
		o.setCapability(s, CapabilityUnavailable)
		o.observer.ObserveFallback("init")
		tr.Warnf("Enhanced backend unavailable, using basic automation: %v", err)
		return
	}
	s.enhanced = eb
	o.setCapability(s, CapabilityAvailable)
	tr.Addf("Enhanced backend initialized: %s", eb.Name())
}

func (o *Orchestrator) setCapability(s *session, c Capability) {
	o.mu.Lock()
	s.capability = c
	o.mu.Unlock()
}

// teardown 依次关闭页面、浏览器并释放增强后端。每一步的失败单独记录，
// 返回失败列表。会话无论如何都会被清除。
func (o *Orchestrator) teardown(ctx context.Context, tr *Transcript) []error {
	o.mu.Lock()
	s := o.session
	o.session = nil
	o.mu.Unlock()
	if s == nil {
		return nil
	}

	var errs []error
	step := func(what string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, err)
			tr.Warnf("Error closing %s: %v", what, err)
			return
		}
		tr.Addf("%s closed successfully", what)
	}

	if s.page != nil {
		step("Page", s.page.Close)
	}
	if s.browser != nil {
		step("Browser", s.browser.Close)
	}
	if s.enhanced != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		step("Enhanced backend", func() error { return s.enhanced.Dispose(dctx) })
		cancel()
	}

	o.observer.ObserveSession("closed")
	o.logger.Info("browser session closed",
		zap.String("session_id", s.id),
		zap.Int("failed_steps", len(errs)),
		zap.Duration("age", time.Since(s.createdAt)))
	return errs
}
