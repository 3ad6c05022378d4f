package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/BaSui01/localpilot/automation/enhanced"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Check names.
const (
	CheckRegistry = "registry"
	CheckExports  = "exports"
	CheckModel    = "language_model"
	CheckChrome   = "chrome"
)

// chromeNames are the executables chromedp can drive, in lookup order.
var chromeNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
	"microsoft-edge",
}

// Check 单项检查结果
type Check struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report 诊断报告
type Report struct {
	Present         bool      `json:"present"`
	Name            string    `json:"name"`
	Version         string    `json:"version,omitempty"`
	ExportsDeclared bool      `json:"exports_declared"`
	Exports         []string  `json:"exports"`
	ImportError     string    `json:"import_error,omitempty"`
	Recommendations []string  `json:"recommendations"`
	Checks          []Check   `json:"checks"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Healthy reports whether the enhanced backend would initialize.
func (r Report) Healthy() bool {
	return r.ImportError == ""
}

// Option configures a Diagnoser.
type Option func(*Diagnoser)

// WithExecPath 指定浏览器可执行文件，覆盖 PATH 查找
func WithExecPath(path string) Option {
	return func(d *Diagnoser) { d.execPath = path }
}

// WithLookPath 替换可执行文件查找，主要用于测试
func WithLookPath(fn func(string) (string, error)) Option {
	return func(d *Diagnoser) { d.lookPath = fn }
}

// WithEndpoint 设置推理服务地址，用于建议文本
func WithEndpoint(url string) Option {
	return func(d *Diagnoser) { d.endpoint = url }
}

// Diagnoser 检查增强后端的可用性
type Diagnoser struct {
	registry *enhanced.Registry
	model    enhanced.LanguageModel
	cfg      enhanced.Config
	execPath string
	endpoint string
	lookPath func(string) (string, error)
	logger   *zap.Logger
}

// New 创建 Diagnoser。registry 为 nil 时使用 enhanced.DefaultRegistry。
func New(registry *enhanced.Registry, model enhanced.LanguageModel, cfg enhanced.Config, logger *zap.Logger, opts ...Option) *Diagnoser {
	if registry == nil {
		registry = enhanced.DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = enhanced.AgenticName
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = enhanced.DefaultConfig().ProbeTimeout
	}
	d := &Diagnoser{
		registry: registry,
		model:    model,
		cfg:      cfg,
		lookPath: exec.LookPath,
		logger:   logger.With(zap.String("component", "diagnostics")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Diagnose 运行全部检查。各项检查并发执行，报告中的顺序固定。
func (d *Diagnoser) Diagnose(ctx context.Context) Report {
	rep := Report{
		Name:      d.cfg.Name,
		Exports:   []string{},
		CheckedAt: time.Now().UTC(),
	}

	desc, found := d.registry.Lookup(d.cfg.Name)
	rep.Present = found
	var missing []string
	if found {
		rep.Version = desc.Version
		rep.ExportsDeclared = len(desc.Exports) > 0
		rep.Exports = append(rep.Exports, desc.Exports...)
		missing = desc.Missing(enhanced.RequiredExports)
	}

	checks := make([]Check, 4)
	checks[0] = timed(CheckRegistry, func() error {
		if !found {
			return fmt.Errorf("backend %q is not registered (available: %s)", d.cfg.Name, strings.Join(d.registry.Names(), ", "))
		}
		return nil
	})
	checks[1] = timed(CheckExports, func() error {
		if !found {
			return errors.New("no descriptor to inspect")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required exports: %s", strings.Join(missing, ", "))
		}
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		checks[2] = timed(CheckModel, func() error { return d.probe(gctx, desc, found) })
		return nil
	})
	g.Go(func() error {
		checks[3] = timed(CheckChrome, func() error {
			path, err := d.findChrome()
			if err == nil {
				d.logger.Debug("browser executable found", zap.String("path", path))
			}
			return err
		})
		return nil
	})
	_ = g.Wait()
	rep.Checks = checks

	switch {
	case !d.cfg.Enabled:
		rep.ImportError = "enhanced backend disabled by configuration"
	case !checks[0].OK:
		rep.ImportError = checks[0].Detail
	case !checks[1].OK:
		rep.ImportError = checks[1].Detail
	case !checks[2].OK:
		rep.ImportError = checks[2].Detail
	}
	rep.Recommendations = d.recommend(rep, missing)

	d.logger.Info("diagnostics finished",
		zap.Bool("present", rep.Present),
		zap.String("version", rep.Version),
		zap.Bool("healthy", rep.Healthy()),
		zap.Int("recommendations", len(rep.Recommendations)))
	return rep
}

func (d *Diagnoser) probe(ctx context.Context, desc enhanced.Descriptor, found bool) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	if found && desc.Probe != nil {
		return desc.Probe(ctx, enhanced.Deps{Model: d.model, Config: d.cfg, Logger: d.logger})
	}
	if d.model == nil {
		return errors.New("no language model configured")
	}
	if !d.model.IsLive(ctx) {
		return errors.New("language model server is not reachable")
	}
	return nil
}

func (d *Diagnoser) findChrome() (string, error) {
	if d.execPath != "" {
		if _, err := os.Stat(d.execPath); err != nil {
			return "", fmt.Errorf("configured browser %s: %w", d.execPath, err)
		}
		return d.execPath, nil
	}
	for _, name := range chromeNames {
		if path, err := d.lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no Chrome or Chromium executable found in PATH (tried %s)", strings.Join(chromeNames, ", "))
}

// recommend 只针对失败项给出建议
func (d *Diagnoser) recommend(rep Report, missing []string) []string {
	recs := []string{}
	if !d.cfg.Enabled {
		recs = append(recs, "Enable the enhanced backend with automation.enhanced.enabled: true")
	}
	if !rep.Present {
		names := d.registry.Names()
		if len(names) > 0 {
			recs = append(recs, fmt.Sprintf("Set automation.enhanced.name to one of: %s", strings.Join(names, ", ")))
		} else {
			recs = append(recs, fmt.Sprintf("Register an enhanced backend named %q", d.cfg.Name))
		}
	}
	if len(missing) > 0 {
		recs = append(recs, fmt.Sprintf("Upgrade the %q backend so it exports: %s", d.cfg.Name, strings.Join(missing, ", ")))
	}
	for _, c := range rep.Checks {
		if c.OK {
			continue
		}
		switch c.Name {
		case CheckModel:
			where := "the local inference server"
			if d.endpoint != "" {
				where = fmt.Sprintf("the local inference server at %s", d.endpoint)
			}
			recs = append(recs, fmt.Sprintf("Start %s and load a model (for example: foundry model run phi-4-mini)", where))
		case CheckChrome:
			recs = append(recs, "Install Google Chrome or Chromium, or set browser.exec_path")
		}
	}
	return recs
}

func timed(name string, fn func() error) Check {
	start := time.Now()
	err := fn()
	c := Check{Name: name, OK: err == nil, Duration: time.Since(start)}
	if err != nil {
		c.Detail = err.Error()
	}
	return c
}
