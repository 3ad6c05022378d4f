package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeDPLauncher 基于 chromedp 的 Launcher 实现
type ChromeDPLauncher struct {
	logger *zap.Logger
}

// NewChromeDPLauncher 创建 chromedp 启动器
func NewChromeDPLauncher(logger *zap.Logger) *ChromeDPLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeDPLauncher{logger: logger.With(zap.String("component", "chromedp"))}
}

// allocatorOptions 构建 Chrome 启动参数
func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyURL))
	}
	return opts
}

// Launch 启动浏览器进程
// 第一次 chromedp.Run 必须在无超时的上下文上执行，否则超时会连带杀死浏览器
func (l *ChromeDPLauncher) Launch(ctx context.Context, cfg Config) (Browser, error) {
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		def := DefaultConfig()
		cfg.ViewportWidth, cfg.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	var timeout <-chan time.Time
	if cfg.LaunchTimeout > 0 {
		timer := time.NewTimer(cfg.LaunchTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-timeout:
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w after %s", context.DeadlineExceeded, cfg.LaunchTimeout)
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", ctx.Err())
	}

	l.logger.Info("chromedp browser started",
		zap.Bool("headless", cfg.Headless),
		zap.Duration("slow_mo", cfg.SlowMo),
		zap.Int("viewport_w", cfg.ViewportWidth),
		zap.Int("viewport_h", cfg.ViewportHeight))

	return &chromeBrowser{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		cfg:           cfg,
		logger:        l.logger,
	}, nil
}

// chromeBrowser 一个运行中的 Chrome 进程
type chromeBrowser struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	cfg           Config
	logger        *zap.Logger

	mu     sync.Mutex
	closed bool
	first  bool
}

// NewPage 打开新标签页
// chromedp.NewContext 的首个标签页复用浏览器启动时创建的 target
func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	var tabCtx context.Context
	var tabCancel context.CancelFunc
	if !b.first {
		b.first = true
		tabCtx, tabCancel = context.WithCancel(b.browserCtx)
	} else {
		tabCtx, tabCancel = chromedp.NewContext(b.browserCtx)
		if err := chromedp.Run(tabCtx); err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to open page: %w", err)
		}
	}

	p := &chromePage{ctx: tabCtx, cancel: tabCancel, cfg: b.cfg, logger: b.logger}
	if err := p.run(ctx, chromedp.EmulateViewport(int64(b.cfg.ViewportWidth), int64(b.cfg.ViewportHeight))); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}
	return p, nil
}

// Close 关闭浏览器
func (b *chromeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	b.logger.Info("closing chromedp browser")
	b.browserCancel()
	b.allocCancel()
	return nil
}

// chromePage 标签页，取消 ctx 即关闭该标签页
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// run 在标签页上执行动作，调用方 ctx 的取消和截止时间会中断动作
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || p.ctx.Err() != nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.cfg.SlowMo > 0 {
		timer := time.NewTimer(p.cfg.SlowMo)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

// Navigate 导航到 URL 并等待 body 就绪
func (p *chromePage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("navigating", zap.String("url", url))
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Screenshot 截图，quality=100 时 chromedp 输出 PNG
func (p *chromePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Content 获取页面 HTML
func (p *chromePage) Content(ctx context.Context) (string, error) {
	var content string
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		content, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return content, nil
}

// Title 获取页面标题
func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to get title: %w", err)
	}
	return title, nil
}

// URL 获取当前 URL
func (p *chromePage) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to get URL: %w", err)
	}
	return url, nil
}

// Click 点击选择器匹配的第一个元素
func (p *chromePage) Click(ctx context.Context, selector string) error {
	p.logger.Debug("clicking", zap.String("selector", selector))
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Type 清空并输入文本
func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	p.logger.Debug("typing", zap.String("selector", selector), zap.Int("chars", len(text)))
	return p.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// Scroll 滚动页面
func (p *chromePage) Scroll(ctx context.Context, deltaY int) error {
	x := float64(p.cfg.ViewportWidth) / 2
	y := float64(p.cfg.ViewportHeight) / 2
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, x, y).
			WithDeltaX(0).
			WithDeltaY(float64(deltaY)).Do(ctx)
	}))
}

// Close 关闭标签页
func (p *chromePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	return nil
}
