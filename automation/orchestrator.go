package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const instrumentationName = "github.com/BaSui01/localpilot/automation"

// DemoTargets are the pages visited by Start.
type DemoTargets struct {
	Primary  string `yaml:"primary" env:"PRIMARY" json:"primary"`
	Enhanced string `yaml:"enhanced" env:"ENHANCED" json:"enhanced"`
	Fallback string `yaml:"fallback" env:"FALLBACK" json:"fallback"`
}

// DefaultDemoTargets returns the built-in demo pages.
func DefaultDemoTargets() DemoTargets {
	return DemoTargets{
		Primary:  "https://example.com",
		Enhanced: "https://microsoft.github.io/foundry",
		Fallback: "https://openai.com/pricing",
	}
}

// Status 是编排器当前状态的快照
type Status struct {
	Active     bool       `json:"active"`
	Busy       bool       `json:"busy"`
	SessionID  string     `json:"session_id,omitempty"`
	Capability Capability `json:"capability"`
	Since      *time.Time `json:"since,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEnhanced sets the enhanced backend initializer.
func WithEnhanced(init EnhancedInitializer) Option {
	return func(o *Orchestrator) { o.enhanced = init }
}

// WithEventSink streams transcript lines to sink.
func WithEventSink(sink EventSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithRecorder persists every Start and RunPrompt outcome.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithObserver sets the metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDemoTargets overrides the demo pages.
func WithDemoTargets(t DemoTargets) Option {
	return func(o *Orchestrator) { o.demo = t }
}

// WithBrowserConfig sets the base launch config; per-run Options overlay it.
func WithBrowserConfig(cfg browser.Config) Option {
	return func(o *Orchestrator) { o.browserCfg = cfg }
}

// Orchestrator 管理单个浏览器会话，并在增强后端与基础后端之间选择。
//
// 同一时刻只允许一个操作：Start 与 RunPrompt 在忙时立即返回 AUTOMATION_BUSY，
// Stop 会取消进行中的操作并排队等待。
type Orchestrator struct {
	launcher   browser.Launcher
	browserCfg browser.Config
	basic      Backend
	enhanced   EnhancedInitializer
	artifacts  *ArtifactSink
	demo       DemoTargets

	sink     EventSink
	recorder Recorder
	observer Observer
	logger   *zap.Logger
	tracer   trace.Tracer
	runs     metric.Int64Counter

	sem *semaphore.Weighted

	mu      sync.Mutex
	session *session
	cancel  context.CancelFunc
}

// New creates an orchestrator. basic must not be nil.
func New(launcher browser.Launcher, basic Backend, artifacts *ArtifactSink, opts ...Option) *Orchestrator {
	if artifacts == nil {
		artifacts = NewArtifactSink("")
	}
	o := &Orchestrator{
		launcher:   launcher,
		browserCfg: browser.DefaultConfig(),
		basic:      basic,
		artifacts:  artifacts,
		demo:       DefaultDemoTargets(),
		observer:   nopObserver{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(instrumentationName),
		sem:        semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))

	runs, err := otel.Meter(instrumentationName).Int64Counter("localpilot.automation.runs",
		metric.WithDescription("Automation operations by kind and outcome"))
	if err != nil {
		o.logger.Warn("failed to create run counter", zap.Error(err))
	}
	o.runs = runs
	return o
}

// Artifacts returns the screenshot sink.
func (o *Orchestrator) Artifacts() *ArtifactSink { return o.artifacts }

// Capability returns the enhanced capability of the current session.
func (o *Orchestrator) Capability() Capability {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return CapabilityNotAttempted
	}
	return o.session.capability
}

// Active reports whether a browser session is open.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session != nil
}

// Status returns a snapshot of the orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{Busy: o.cancel != nil, Capability: CapabilityNotAttempted}
	if s := o.session; s != nil {
		since := s.createdAt
		st.Active = true
		st.SessionID = s.id
		st.Capability = s.capability
		st.Since = &since
	}
	return st
}

// Execute dispatches a request by kind.
func (o *Orchestrator) Execute(ctx context.Context, req Request) *Result {
	if err := req.Validate(); err != nil {
		return Failed(err)
	}
	if req.Kind == KindDemo {
		return o.Start(ctx, req.Options)
	}
	return o.RunPrompt(ctx, req.Prompt, req.Options)
}

// Start 运行演示流程：打开示例页面并截图，再根据增强后端可用性访问第二个页面
func (o *Orchestrator) Start(ctx context.Context, opts Options) *Result {
	return o.run(ctx, KindDemo, "", func(ctx context.Context, tr *Transcript) *Result {
		return o.runDemo(ctx, opts, tr)
	})
}

// RunPrompt 先尝试增强后端，任何失败都回退到基础后端一次
func (o *Orchestrator) RunPrompt(ctx context.Context, prompt string, opts Options) *Result {
	if err := (Request{Kind: KindPrompt, Prompt: prompt}).Validate(); err != nil {
		return Failed(err)
	}
	return o.run(ctx, KindPrompt, prompt, func(ctx context.Context, tr *Transcript) *Result {
		return o.runPrompt(ctx, prompt, opts, tr)
	})
}

// Stop 取消进行中的操作并释放会话。没有会话时直接成功。
func (o *Orchestrator) Stop(ctx context.Context) *Result {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return Failed(types.NewError(types.ErrTimeout, "timed out waiting for the running operation to stop").WithCause(err))
	}
	defer o.sem.Release(1)

	runID := uuid.NewString()
	tr := NewTranscript(runID, o.sink, o.logger)
	ctx, span := o.tracer.Start(ctx, "automation.stop", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	if !o.Active() {
		res := Succeeded("No active automation session")
		res.RunID = runID
		res.Output = tr.Lines()
		return res.Normalize()
	}

	// 释放失败只记为警告；只有 teardown 本身 panic 才算失败
	res := o.safely(ctx, func(ctx context.Context, tr *Transcript) *Result {
		res := Succeeded("Automation stopped")
		if errs := o.teardown(ctx, tr); len(errs) > 0 {
			span.RecordError(CleanupError(errs...))
			res.Message = fmt.Sprintf("Automation stopped with %d cleanup warning(s)", len(errs))
		}
		return res
	}, tr)
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	res.RunID = runID
	res.Output = tr.Lines()
	return res.Normalize()
}

type opFunc func(ctx context.Context, tr *Transcript) *Result

// run 包装一次操作：忙检查、运行 ID、取消、追踪、panic 恢复、指标与历史记录
func (o *Orchestrator) run(ctx context.Context, kind Kind, prompt string, fn opFunc) *Result {
	if !o.sem.TryAcquire(1) {
		o.logger.Warn("rejecting operation while another is running", zap.String("kind", string(kind)))
		return Failed(BusyError())
	}
	defer o.sem.Release(1)

	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(types.WithRunID(ctx, runID))
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
		cancel()
	}()

	tr := NewTranscript(runID, o.sink, o.logger)
	ctx = WithTranscript(ctx, tr)
	ctx, span := o.tracer.Start(ctx, "automation."+string(kind), trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("automation.kind", string(kind)),
	))
	defer span.End()

	start := time.Now()
	res := o.safely(ctx, fn, tr)
	res.RunID = runID
	res.Output = tr.Lines()
	res.Normalize()
	d := time.Since(start)

	backend := res.Backend
	if backend == "" {
		backend = "none"
	}
	span.SetAttributes(attribute.Bool("automation.success", res.Success), attribute.String("automation.backend", backend))
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	if o.runs != nil {
		o.runs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.Bool("success", res.Success)))
	}
	o.observer.ObserveRun(string(kind), backend, res.Success, d)
	o.observer.ObserveScreenshots(len(res.Screenshots))

	o.logger.Info("automation finished",
		zap.String("run_id", runID),
		zap.String("kind", string(kind)),
		zap.String("backend", backend),
		zap.Bool("success", res.Success),
		zap.Int("screenshots", len(res.Screenshots)),
		zap.Duration("duration", d))

	if o.recorder != nil {
		rec := RunRecord{RunID: runID, Kind: kind, Prompt: prompt, Backend: backend, Result: res, StartedAt: start, Duration: d}
		if err := o.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
			o.logger.Warn("failed to record run", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return res
}

// safely 把 fn 中的 panic 转换为失败结果
func (o *Orchestrator) safely(ctx context.Context, fn opFunc, tr *Transcript) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			err := types.Errorf(types.ErrInternalError, "automation panicked: %v", r)
			o.logger.Error("automation panicked", zap.Any("panic", r), zap.Stack("stack"))
			tr.Warnf("Unexpected failure: %v", r)
			res = Failed(err)
		}
	}()
	res = fn(ctx, tr)
	if res == nil {
		res = Failed(errors.New("operation returned no result"))
	}
	return res
}

func (o *Orchestrator) runPrompt(ctx context.Context, prompt string, opts Options, tr *Transcript) *Result {
	tr.Addf("Processing prompt: %s", prompt)
	s, err := o.ensureSession(ctx, opts, tr)
	if err != nil {
		tr.Warnf("Browser launch failed: %v", err)
		return Failed(err)
	}
	o.ensureEnhanced(ctx, s, tr)

	if s.capability == CapabilityAvailable {
		res, err := o.runEnhanced(ctx, s.enhanced, prompt, opts)
		if err == nil {
			res.UsingEnhancedBackend = true
			res.Backend = s.enhanced.Name()
			return res
		}
		o.observer.ObserveFallback("run")
		tr.Warnf("Enhanced backend failed, falling back to basic automation: %v", err)
	}

	res, err := o.basic.Run(ctx, prompt, opts)
	if err != nil {
		tr.Warnf("Basic automation failed: %v", err)
		failed := Failed(err)
		failed.Backend = o.basic.Name()
		return failed
	}
	res.UsingEnhancedBackend = false
	res.Backend = o.basic.Name()
	return res
}

// runEnhanced 在 EnhancedTimeout 内运行增强后端；panic 与失败结果都视为错误
func (o *Orchestrator) runEnhanced(ctx context.Context, eb EnhancedBackend, prompt string, opts Options) (res *Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, opts.EnhancedTimeout())
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("enhanced backend panicked: %v", r)
		}
	}()

	res, err = eb.Run(ctx, prompt, opts)
	switch {
	case err != nil:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, types.Errorf(types.ErrTimeout, "enhanced backend timed out after %s", opts.EnhancedTimeout()).WithCause(err)
		}
		return nil, err
	case res == nil:
		return nil, errors.New("enhanced backend returned no result")
	case !res.Success:
		return nil, errors.New(res.Normalize().Error)
	}
	return res, nil
}
