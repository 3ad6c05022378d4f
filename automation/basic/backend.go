package basic

import (
	"context"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Name 是基础后端在结果与指标中的名字
const Name = "basic"

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBrowserConfig sets the base launch config.
func WithBrowserConfig(cfg browser.Config) Option {
	return func(b *Backend) { b.base = cfg }
}

// Backend 是基于规则的后端：每次调用启动独立的浏览器，访问一个页面并整页截图。
// 它不依赖编排器的会话，因此在增强后端出错后仍可使用。
type Backend struct {
	launcher  browser.Launcher
	base      browser.Config
	artifacts *automation.ArtifactSink
	logger    *zap.Logger
}

var _ automation.Backend = (*Backend)(nil)

// New creates a basic backend.
func New(launcher browser.Launcher, artifacts *automation.ArtifactSink, opts ...Option) *Backend {
	b := &Backend{
		launcher:  launcher,
		base:      browser.DefaultConfig(),
		artifacts: artifacts,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("component", "basic_backend"))
	return b
}

// Name implements automation.Backend.
func (b *Backend) Name() string { return Name }

// Run implements automation.Backend.
func (b *Backend) Run(ctx context.Context, prompt string, opts automation.Options) (*automation.Result, error) {
	runID, ok := types.RunID(ctx)
	if !ok {
		runID = uuid.NewString()
	}
	ctx, tr := automation.EnsureTranscript(ctx, runID, b.logger)
	b.logger.Info("processing prompt with basic automation", zap.String("run_id", runID), zap.String("prompt", prompt))

	intent, err := Classify(prompt)
	if err != nil {
		tr.Add(AmbiguousTargetMessage)
		return nil, err
	}

	br, err := b.launcher.Launch(ctx, opts.BrowserConfig(b.base))
	if err != nil {
		return nil, automation.LaunchError(err)
	}
	defer func() {
		if err := br.Close(); err != nil {
			b.logger.Warn("error closing browser", zap.Error(err))
		}
	}()

	page, err := br.NewPage(ctx)
	if err != nil {
		return nil, automation.LaunchError(err)
	}

	timeout := opts.NavigationTimeout()
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !intent.Fallback {
		tr.Addf("Navigating to: %s", intent.URL)
	}
	if err := page.Navigate(navCtx, intent.URL); err != nil {
		return nil, automation.NavigationError(intent.URL, timeout, err)
	}
	if intent.Fallback {
		tr.Add("No clear navigation command found. Navigated to example.com as fallback.")
	} else {
		tr.Addf("Successfully loaded: %s", intent.URL)
	}

	data, err := page.Screenshot(navCtx, true)
	if err != nil {
		return nil, automation.ScreenshotError(automation.ArtifactFallback, err)
	}
	path, err := b.artifacts.Save(automation.ArtifactFallback, data)
	if err != nil {
		return nil, automation.ScreenshotError(automation.ArtifactFallback, err)
	}
	tr.Addf("Screenshot captured: %s", path)

	res := automation.Succeeded("Basic browser automation completed")
	res.Screenshots = []string{path}
	res.Output = tr.Lines()
	res.Backend = Name
	return res, nil
}
