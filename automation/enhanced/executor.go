package enhanced

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/llm/tokenizer"
	"go.uber.org/zap"
)

// AgenticName 是默认执行器的名字
const AgenticName = "agentic"

// AgenticVersion 是默认执行器的版本
const AgenticVersion = "1.0.0"

// AgenticDescriptor 返回 agentic 执行器的描述
func AgenticDescriptor() Descriptor {
	return Descriptor{
		Name:    AgenticName,
		Version: AgenticVersion,
		Exports: []string{ExportNavigate, ExportClick, ExportType, ExportScroll, ExportScreenshot, ExportDone},
		New:     NewAgentic,
		Probe:   probeModel,
	}
}

func probeModel(ctx context.Context, deps Deps) error {
	if deps.Model == nil {
		return errors.New("no language model configured")
	}
	if !deps.Model.IsLive(ctx) {
		return errors.New("language model server is not reachable")
	}
	return nil
}

// Agentic 是观察-规划-执行循环：每一步读取页面，请模型给出一个动作并执行，
// 直到模型返回 done 或达到 MaxSteps。
type Agentic struct {
	page    browser.Page
	planner *Planner
	tok     tokenizer.Tokenizer
	cfg     Config
	logger  *zap.Logger
}

// NewAgentic 是 agentic 执行器的 Factory
func NewAgentic(deps Deps) (Engine, error) {
	if deps.Page == nil {
		return nil, errors.New("agentic executor needs a page")
	}
	if deps.Model == nil {
		return nil, errors.New("agentic executor needs a language model")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "agentic_executor"))
	cfg := deps.Config.withDefaults()
	tok := deps.Tokenizer
	if tok == nil {
		tok = tokenizer.ForModel(cfg.Model)
	}
	return &Agentic{
		page:    deps.Page,
		planner: NewPlanner(deps.Model, cfg.Model, tok, logger),
		tok:     tok,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Execute 实现 Engine
func (a *Agentic) Execute(ctx context.Context, prompt string) (*RawResult, error) {
	raw := &RawResult{Output: []string{"Goal: " + prompt}}
	var history []string

	for i := 1; i <= a.cfg.MaxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		obs, err := Observe(ctx, a.page, a.tok, a.cfg.ObservationTokens)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		step, err := a.planner.Next(ctx, prompt, obs, history)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		a.logger.Info("executing step",
			zap.Int("step", i),
			zap.String("action", step.Action),
			zap.String("url", obs.URL),
			zap.Int("observation_tokens", obs.Tokens))

		if step.Action == ExportDone {
			raw.Summary = step.Reason
			if raw.Summary != "" {
				raw.Output = append(raw.Output, "Done: "+raw.Summary)
			} else {
				raw.Output = append(raw.Output, "Done")
			}
			return a.finish(ctx, raw)
		}

		if err := a.apply(ctx, step, raw); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		line := step.Describe()
		raw.Output = append(raw.Output, fmt.Sprintf("Step %d: %s", i, line))
		history = append(history, line)
	}

	raw.Output = append(raw.Output, fmt.Sprintf("Stopped after %d steps", a.cfg.MaxSteps))
	return a.finish(ctx, raw)
}

func (a *Agentic) apply(ctx context.Context, step Step, raw *RawResult) error {
	switch step.Action {
	case ExportNavigate:
		u, err := NavigableURL(step.URL)
		if err != nil {
			return err
		}
		return a.page.Navigate(ctx, u)
	case ExportClick:
		return a.page.Click(ctx, step.Selector)
	case ExportType:
		return a.page.Type(ctx, step.Selector, step.Text)
	case ExportScroll:
		return a.page.Scroll(ctx, step.DeltaY)
	case ExportScreenshot:
		return a.screenshot(ctx, step.FullPage, raw)
	}
	return fmt.Errorf("unsupported action %q", step.Action)
}

func (a *Agentic) screenshot(ctx context.Context, fullPage bool, raw *RawResult) error {
	data, err := a.page.Screenshot(ctx, fullPage)
	if err != nil {
		return err
	}
	raw.Images = append(raw.Images, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(data))
	return nil
}

// finish 保证结果至少带一张截图
func (a *Agentic) finish(ctx context.Context, raw *RawResult) (*RawResult, error) {
	if len(raw.Images) > 0 {
		return raw, nil
	}
	if err := a.screenshot(ctx, true, raw); err != nil {
		return nil, fmt.Errorf("final screenshot: %w", err)
	}
	raw.Output = append(raw.Output, "Captured final page state")
	return raw, nil
}

// Close 实现 Engine。页面归编排器所有，这里不做释放。
func (a *Agentic) Close(context.Context) error {
	a.logger.Debug("agentic executor released")
	return nil
}
