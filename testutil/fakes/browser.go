// Package fakes 提供 browser 包接口的内存实现，供自动化测试使用。
package fakes

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/localpilot/browser"
)

// PNG 是 Screenshot 返回的固定字节
var PNG = []byte("\x89PNG\r\n\x1a\nfake-image")

// --- Launcher ---

// Launcher 记录每次启动并创建 Browser
type Launcher struct {
	mu        sync.Mutex
	launchErr error
	setup     func(*Page)
	browsers  []*Browser
	configs   []browser.Config
}

// NewLauncher 创建新的 Launcher
func NewLauncher() *Launcher {
	return &Launcher{}
}

// WithLaunchError 让每次 Launch 都失败
func (l *Launcher) WithLaunchError(err error) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErr = err
	return l
}

// WithPageSetup 在每个新页面创建后调用 fn
func (l *Launcher) WithPageSetup(fn func(*Page)) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setup = fn
	return l
}

// Launch 实现 browser.Launcher
func (l *Launcher) Launch(ctx context.Context, cfg browser.Config) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs = append(l.configs, cfg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	b := &Browser{setup: l.setup}
	l.browsers = append(l.browsers, b)
	return b, nil
}

// Launches 返回成功启动的浏览器数量
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.browsers)
}

// Browsers 返回所有已启动的浏览器
func (l *Launcher) Browsers() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.browsers...)
}

// Configs 返回每次 Launch 收到的配置
func (l *Launcher) Configs() []browser.Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.Config(nil), l.configs...)
}

// --- Browser ---

// Browser 是内存中的浏览器实例
type Browser struct {
	mu         sync.Mutex
	setup      func(*Page)
	pages      []*Page
	closed     bool
	closeErr   error
	newPageErr error
}

// FailClose 让 Close 返回 err
func (b *Browser) FailClose(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErr = err
}

// FailNewPage 让 NewPage 返回 err
func (b *Browser) FailNewPage(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newPageErr = err
}

// NewPage 实现 browser.Browser
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, browser.ErrClosed
	}
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	p := NewPage()
	if b.setup != nil {
		b.setup(p)
	}
	b.pages = append(b.pages, p)
	return p, nil
}

// Close 实现 browser.Browser
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.closeErr
}

// Closed 报告 Close 是否被调用过
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Pages 返回已创建的页面
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// --- Page ---

// Shot 记录一次截图调用
type Shot struct {
	URL      string
	FullPage bool
}

// Page 是内存中的页面。导航延迟尊重 ctx 的截止时间。
type Page struct {
	mu sync.Mutex

	navErrs    map[string]error
	navDelay   time.Duration
	shotErr    error
	contentErr error
	closeErr   error
	closePanic any
	html       string
	title      string
	actionErr  error
	current    string
	visited    []string
	shots      []Shot
	actions    []string
	closed     bool
}

// NewPage 创建带默认 HTML 的页面
func NewPage() *Page {
	return &Page{
		navErrs: make(map[string]error),
		html:    "<html><head><title>Example Domain</title></head><body><h1>Example Domain</h1><p>This domain is for use in examples.</p></body></html>",
		title:   "Example Domain",
	}
}

// FailNavigation 导航到 url 时返回 err
func (p *Page) FailNavigation(url string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navErrs[url] = err
	return p
}

// WithNavigationDelay 每次导航耗时 d
func (p *Page) WithNavigationDelay(d time.Duration) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navDelay = d
	return p
}

// FailScreenshot 让截图返回 err
func (p *Page) FailScreenshot(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shotErr = err
	return p
}

// FailContent 让 Content 返回 err
func (p *Page) FailContent(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contentErr = err
	return p
}

// FailClose 让 Close 返回 err
func (p *Page) FailClose(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeErr = err
	return p
}

// PanicOnClose 让 Close 以 v panic
func (p *Page) PanicOnClose(v any) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closePanic = v
	return p
}

// FailActions 让 Click / Type / Scroll 返回 err
func (p *Page) FailActions(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actionErr = err
	return p
}

// WithHTML 设置页面内容
func (p *Page) WithHTML(html, title string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
	p.title = title
	return p
}

func (p *Page) check(ctx context.Context) error {
	if p.closed {
		return browser.ErrClosed
	}
	return ctx.Err()
}

// Navigate 实现 browser.Page
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	delay := p.navDelay
	p.visited = append(p.visited, url)
	p.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.navErrs[url]; err != nil {
		return err
	}
	p.current = url
	return nil
}

// Screenshot 实现 browser.Page
func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	p.shots = append(p.shots, Shot{URL: p.current, FullPage: fullPage})
	return append([]byte(nil), PNG...), nil
}

// Content 实现 browser.Page
func (p *Page) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", err
	}
	if p.contentErr != nil {
		return "", p.contentErr
	}
	return p.html, nil
}

// Title 实现 browser.Page
func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", err
	}
	return p.title, nil
}

// URL 实现 browser.Page
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", err
	}
	return p.current, nil
}

func (p *Page) act(ctx context.Context, action string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	if p.actionErr != nil {
		return p.actionErr
	}
	p.actions = append(p.actions, action)
	return nil
}

// Click 实现 browser.Page
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.act(ctx, string(browser.ActionClick)+":"+selector)
}

// Type 实现 browser.Page
func (p *Page) Type(ctx context.Context, selector, text string) error {
	return p.act(ctx, string(browser.ActionType)+":"+selector+"="+text)
}

// Scroll 实现 browser.Page
func (p *Page) Scroll(ctx context.Context, deltaY int) error {
	return p.act(ctx, string(browser.ActionScroll))
}

// Close 实现 browser.Page
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.closePanic != nil {
		panic(p.closePanic)
	}
	return p.closeErr
}

// Visited 返回按顺序尝试导航的 URL
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// Shots 返回截图记录
func (p *Page) Shots() []Shot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Shot(nil), p.shots...)
}

// Actions 返回 Click / Type / Scroll 记录
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Closed 报告 Close 是否被调用过
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ErrBoom 是测试中常用的通用错误
var ErrBoom = errors.New("boom")
