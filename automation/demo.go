package automation

import (
	"context"
	"errors"

	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/types"
)

func (o *Orchestrator) runDemo(ctx context.Context, opts Options, tr *Transcript) *Result {
	tr.Add("Starting browser automation")
	s, err := o.ensureSession(ctx, opts, tr)
	if err != nil {
		tr.Warnf("Browser launch failed: %v", err)
		return Failed(err)
	}
	o.ensureEnhanced(ctx, s, tr)

	var (
		shots   []string
		lastErr error
	)
	if path, err := o.capture(ctx, s.page, o.demo.Primary, ArtifactExample, false, opts, tr); err != nil {
		lastErr = err
	} else {
		shots = append(shots, path)
	}

	enhanced := s.capability == CapabilityAvailable
	target, name := o.demo.Fallback, ArtifactOpenAIPricing
	if enhanced {
		target, name = o.demo.Enhanced, ArtifactFoundry
		tr.Add("Using enhanced backend for intelligent automation")
	} else {
		tr.Add("Using basic automation")
	}
	if path, err := o.capture(ctx, s.page, target, name, true, opts, tr); err != nil {
		lastErr = err
	} else {
		shots = append(shots, path)
	}

	analyzed := o.analyzeContent(ctx, s.page, opts, tr)

	if len(shots) == 0 {
		// 没有任何产出时释放会话，避免留下无用的浏览器
		_ = o.teardown(ctx, tr)
		if lastErr == nil {
			lastErr = errors.New("no screenshots were captured")
		}
		var te *types.Error
		if errors.As(lastErr, &te) {
			return Failed(lastErr)
		}
		return Failed(types.NewError(types.ErrNavigation, "demo captured no screenshots").WithCause(lastErr))
	}

	res := Succeeded("Browser automation completed successfully")
	res.Screenshots = shots
	res.ContentAnalyzed = analyzed
	res.UsingEnhancedBackend = enhanced
	res.Backend = "demo"
	return res
}

// capture 导航到 url 并保存截图。失败只记录警告，由调用方决定是否致命。
func (o *Orchestrator) capture(ctx context.Context, page browser.Page, url, name string, fullPage bool, opts Options, tr *Transcript) (string, error) {
	timeout := opts.NavigationTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tr.Addf("Navigating to: %s", url)
	if err := page.Navigate(ctx, url); err != nil {
		nerr := NavigationError(url, timeout, err)
		tr.Warnf("Could not load %s: %v", url, err)
		return "", nerr
	}
	tr.Addf("Successfully loaded: %s", url)

	data, err := page.Screenshot(ctx, fullPage)
	if err != nil {
		tr.Warnf("Could not capture %s: %v", name, err)
		return "", ScreenshotError(name, err)
	}
	path, err := o.artifacts.Save(name, data)
	if err != nil {
		tr.Warnf("Could not save %s: %v", name, err)
		return "", ScreenshotError(name, err)
	}
	tr.Addf("Screenshot saved: %s", path)
	return path, nil
}

// analyzeContent 读取当前页面的可见文本长度
func (o *Orchestrator) analyzeContent(ctx context.Context, page browser.Page, opts Options, tr *Transcript) bool {
	ctx, cancel := context.WithTimeout(ctx, opts.NavigationTimeout())
	defer cancel()

	html, err := page.Content(ctx)
	if err != nil {
		tr.Warnf("Could not analyze page content: %v", err)
		return false
	}
	text := browser.VisibleText(html)
	tr.Addf("Page content length: %d characters", len([]rune(text)))
	return true
}
