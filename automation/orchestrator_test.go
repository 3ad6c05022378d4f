package automation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/testutil"
	"github.com/BaSui01/localpilot/testutil/fakes"
	"github.com/BaSui01/localpilot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// --- 测试替身 ---

type stubBackend struct {
	name string

	mu         sync.Mutex
	calls      int
	run        func(ctx context.Context, prompt string) (*Result, error)
	disposed   bool
	disposeErr error
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Run(ctx context.Context, prompt string, _ Options) (*Result, error) {
	b.mu.Lock()
	b.calls++
	fn := b.run
	b.mu.Unlock()
	if tr, ok := TranscriptFrom(ctx); ok {
		tr.Addf("%s handling: %s", b.name, prompt)
	}
	if fn == nil {
		return Succeeded(b.name + " done"), nil
	}
	return fn(ctx, prompt)
}

func (b *stubBackend) Dispose(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed = true
	return b.disposeErr
}

func (b *stubBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *stubBackend) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

type stubInit struct {
	backend *stubBackend
	err     error
	calls   atomic.Int32
}

func (i *stubInit) Init(ctx context.Context, b browser.Browser, p browser.Page) (EnhancedBackend, error) {
	i.calls.Add(1)
	if i.err != nil {
		return nil, i.err
	}
	return i.backend, nil
}

type countingObserver struct {
	mu        sync.Mutex
	runs      []string
	fallbacks []string
	shots     int
	sessions  []string
}

func (o *countingObserver) ObserveRun(kind, backend string, success bool, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, kind+"/"+backend)
}

func (o *countingObserver) ObserveFallback(stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, stage)
}

func (o *countingObserver) ObserveScreenshots(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shots += n
}

func (o *countingObserver) ObserveSession(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions = append(o.sessions, event)
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []RunRecord
}

func (r *memoryRecorder) Record(_ context.Context, rec RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type fixture struct {
	launcher *fakes.Launcher
	basic    *stubBackend
	enhanced *stubBackend
	init     *stubInit
	sink     *recordingSink
	observer *countingObserver
	recorder *memoryRecorder
	dir      string
	orch     *Orchestrator
}

func newFixture(t *testing.T, withEnhanced bool, setup func(*fakes.Page)) *fixture {
	t.Helper()
	f := &fixture{
		launcher: fakes.NewLauncher(),
		basic:    &stubBackend{name: "basic"},
		enhanced: &stubBackend{name: "agentic"},
		sink:     &recordingSink{},
		observer: &countingObserver{},
		recorder: &memoryRecorder{},
		dir:      t.TempDir(),
	}
	if setup != nil {
		f.launcher.WithPageSetup(setup)
	}
	opts := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithEventSink(f.sink),
		WithObserver(f.observer),
		WithRecorder(f.recorder),
	}
	if withEnhanced {
		f.init = &stubInit{backend: f.enhanced}
		opts = append(opts, WithEnhanced(f.init))
	}
	f.orch = New(f.launcher, f.basic, NewArtifactSink(f.dir), opts...)
	return f
}

func (f *fixture) page(t *testing.T) *fakes.Page {
	t.Helper()
	browsers := f.launcher.Browsers()
	require.NotEmpty(t, browsers)
	pages := browsers[len(browsers)-1].Pages()
	require.NotEmpty(t, pages)
	return pages[0]
}

// --- Start ---

func TestStart_BasicOnly(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := testutil.TestContext(t)

	res := f.orch.Start(ctx, Options{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Browser automation completed successfully", res.Message)
	assert.False(t, res.UsingEnhancedBackend)
	assert.True(t, res.ContentAnalyzed)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{
		filepath.Join(f.dir, ArtifactExample),
		filepath.Join(f.dir, ArtifactOpenAIPricing),
	}, res.Screenshots)

	page := f.page(t)
	assert.Equal(t, []string{"https://example.com", "https://openai.com/pricing"}, page.Visited())
	shots := page.Shots()
	require.Len(t, shots, 2)
	assert.False(t, shots[0].FullPage)
	assert.True(t, shots[1].FullPage)

	testutil.AssertLinesContain(t, res.Output, "Navigating to: https://example.com")
	testutil.AssertLinesContain(t, res.Output, "Page content length:")
	assert.True(t, f.orch.Active())
	assert.Equal(t, CapabilityUnavailable, f.orch.Capability())

	cfg := f.launcher.Configs()[0]
	assert.False(t, cfg.Headless)
	assert.Equal(t, DefaultSlowMo, cfg.SlowMo)
}

func TestStart_WithEnhancedBackend(t *testing.T) {
	f := newFixture(t, true, nil)

	res := f.orch.Start(testutil.TestContext(t), Options{Headless: true})
	require.True(t, res.Success, res.Error)
	assert.True(t, res.UsingEnhancedBackend)
	assert.Equal(t, filepath.Join(f.dir, ArtifactFoundry), res.Screenshots[1])
	assert.Equal(t, []string{"https://example.com", "https://microsoft.github.io/foundry"}, f.page(t).Visited())
	assert.Equal(t, CapabilityAvailable, f.orch.Capability())
	assert.True(t, f.launcher.Configs()[0].Headless)
}

func TestStart_FirstNavigationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, false, func(p *fakes.Page) {
		p.FailNavigation("https://example.com", errors.New("net::ERR_CONNECTION_RESET"))
	})

	res := f.orch.Start(testutil.TestContext(t), Options{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{filepath.Join(f.dir, ArtifactOpenAIPricing)}, res.Screenshots)
	testutil.AssertLinesContain(t, res.Output, "Warning: Could not load https://example.com")
}

func TestStart_ContentFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, false, func(p *fakes.Page) { p.FailContent(fakes.ErrBoom) })

	res := f.orch.Start(testutil.TestContext(t), Options{})
	require.True(t, res.Success, res.Error)
	assert.False(t, res.ContentAnalyzed)
	testutil.AssertLinesContain(t, res.Output, "Could not analyze page content")
}

func TestStart_NoScreenshotsFailsAndTearsDown(t *testing.T) {
	f := newFixture(t, false, func(p *fakes.Page) { p.FailScreenshot(fakes.ErrBoom) })

	res := f.orch.Start(testutil.TestContext(t), Options{})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrScreenshot, res.Code)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Screenshots)
	assert.False(t, f.orch.Active())
	assert.True(t, f.launcher.Browsers()[0].Closed())
	assert.True(t, f.page(t).Closed())
}

func TestStart_NavigationTimeout(t *testing.T) {
	f := newFixture(t, false, func(p *fakes.Page) { p.WithNavigationDelay(time.Second) })

	res := f.orch.Start(testutil.TestContext(t), Options{Timeout: 20 * time.Millisecond})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrTimeout, res.Code)
	assert.Contains(t, res.Error, "timed out after 20ms")
}

func TestStart_LaunchFailure(t *testing.T) {
	f := newFixture(t, false, nil)
	f.launcher.WithLaunchError(errors.New("chrome not found"))

	res := f.orch.Start(testutil.TestContext(t), Options{})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrBrowserLaunch, res.Code)
	assert.Contains(t, res.Error, "chrome not found")
	assert.False(t, f.orch.Active())
}

// --- RunPrompt ---

func TestRunPrompt_EnhancedSuccess(t *testing.T) {
	f := newFixture(t, true, nil)

	res := f.orch.RunPrompt(testutil.TestContext(t), "find pricing", Options{})
	require.True(t, res.Success, res.Error)
	assert.True(t, res.UsingEnhancedBackend)
	assert.Equal(t, "agentic", res.Backend)
	assert.Equal(t, 1, f.enhanced.Calls())
	assert.Equal(t, 0, f.basic.Calls())
	testutil.AssertLinesContain(t, res.Output, "agentic handling: find pricing")
}

func TestRunPrompt_FallsBackOnEnhancedError(t *testing.T) {
	f := newFixture(t, true, nil)
	f.enhanced.run = func(context.Context, string) (*Result, error) {
		return nil, errors.New("planner exploded")
	}

	res := f.orch.RunPrompt(testutil.TestContext(t), "go to example.com", Options{})
	require.True(t, res.Success, res.Error)
	assert.False(t, res.UsingEnhancedBackend)
	assert.Equal(t, "basic", res.Backend)
	assert.Equal(t, 1, f.basic.Calls())
	testutil.AssertLinesContain(t, res.Output, "falling back to basic automation: planner exploded")
	assert.Equal(t, []string{"run"}, f.observer.fallbacks)
	// 单次失败不改变会话的能力状态
	assert.Equal(t, CapabilityAvailable, f.orch.Capability())
}

func TestRunPrompt_FallsBackOnFailedResultAndPanic(t *testing.T) {
	f := newFixture(t, true, nil)
	f.enhanced.run = func(context.Context, string) (*Result, error) {
		return &Result{Success: false}, nil
	}
	res := f.orch.RunPrompt(testutil.TestContext(t), "a", Options{})
	require.True(t, res.Success)
	assert.Equal(t, "basic", res.Backend)

	f.enhanced.run = func(context.Context, string) (*Result, error) { panic("nil map") }
	res = f.orch.RunPrompt(testutil.TestContext(t), "b", Options{})
	require.True(t, res.Success)
	testutil.AssertLinesContain(t, res.Output, "enhanced backend panicked: nil map")
}

func TestRunPrompt_EnhancedTimeoutFallsBack(t *testing.T) {
	f := newFixture(t, true, nil)
	f.enhanced.run = func(ctx context.Context, _ string) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	res := f.orch.RunPrompt(testutil.TestContext(t), "slow", Options{Timeout: 10 * time.Millisecond})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "basic", res.Backend)
	testutil.AssertLinesContain(t, res.Output, "enhanced backend timed out after 10ms")
}

func TestRunPrompt_InitFailureAttemptedOncePerSession(t *testing.T) {
	f := newFixture(t, true, nil)
	f.init.err = CapabilityUnavailable("module not installed", nil)

	for range 2 {
		res := f.orch.RunPrompt(testutil.TestContext(t), "go to example.com", Options{})
		require.True(t, res.Success, res.Error)
		assert.False(t, res.UsingEnhancedBackend)
	}
	assert.Equal(t, int32(1), f.init.calls.Load())
	assert.Equal(t, 1, f.launcher.Launches())
	assert.Equal(t, CapabilityUnavailable, f.orch.Capability())
	assert.Equal(t, []string{"init"}, f.observer.fallbacks)
}

func TestRunPrompt_BasicErrorIsTerminal(t *testing.T) {
	f := newFixture(t, false, nil)
	f.basic.run = func(context.Context, string) (*Result, error) {
		return nil, AmbiguousIntent("Could not determine which website to navigate to")
	}

	res := f.orch.RunPrompt(testutil.TestContext(t), "open something", Options{})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrAmbiguousIntent, res.Code)
	assert.Equal(t, "Could not determine which website to navigate to", res.Error)
	assert.Equal(t, "basic", res.Backend)
}

func TestRunPrompt_PanicBecomesFailedResult(t *testing.T) {
	f := newFixture(t, false, nil)
	f.basic.run = func(context.Context, string) (*Result, error) { panic("kaboom") }

	res := f.orch.RunPrompt(testutil.TestContext(t), "x", Options{})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrInternalError, res.Code)
	assert.Contains(t, res.Error, "kaboom")
	assert.NotEmpty(t, res.StackTrace)

	// 信号量已释放
	res = f.orch.Stop(testutil.TestContext(t))
	assert.True(t, res.Success)
}

func TestRunPrompt_EmptyPrompt(t *testing.T) {
	f := newFixture(t, false, nil)
	res := f.orch.RunPrompt(testutil.TestContext(t), "", Options{})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrInvalidRequest, res.Code)
	assert.Zero(t, f.launcher.Launches())
}

func TestRunPrompt_RecordsAndObserves(t *testing.T) {
	f := newFixture(t, false, nil)
	res := f.orch.RunPrompt(testutil.TestContext(t), "go to example.com", Options{})
	require.True(t, res.Success)

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.Equal(t, res.RunID, rec.RunID)
	assert.Equal(t, KindPrompt, rec.Kind)
	assert.Equal(t, "go to example.com", rec.Prompt)
	assert.Equal(t, "basic", rec.Backend)
	assert.Equal(t, []string{"prompt/basic"}, f.observer.runs)
	assert.Equal(t, []string{"created"}, f.observer.sessions)

	events := f.sink.Events()
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, res.RunID, e.RunID)
	}
}

// --- 并发与 Stop ---

func TestOrchestrator_RejectsConcurrentOperations(t *testing.T) {
	f := newFixture(t, false, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	f.basic.run = func(ctx context.Context, _ string) (*Result, error) {
		close(started)
		<-release
		return Succeeded("done"), nil
	}

	done := make(chan *Result, 1)
	go func() { done <- f.orch.RunPrompt(context.Background(), "first", Options{}) }()
	<-started

	res := f.orch.RunPrompt(testutil.TestContext(t), "second", Options{})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrAutomationBusy, res.Code)
	assert.True(t, f.orch.Status().Busy)

	res = f.orch.Start(testutil.TestContext(t), Options{})
	assert.Equal(t, types.ErrAutomationBusy, res.Code)

	close(release)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, 1, f.basic.Calls())
}

func TestStop_CancelsInFlightOperation(t *testing.T) {
	f := newFixture(t, false, nil)
	started := make(chan struct{})
	f.basic.run = func(ctx context.Context, _ string) (*Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	done := make(chan *Result, 1)
	go func() { done <- f.orch.RunPrompt(context.Background(), "hang", Options{}) }()
	<-started

	stop := f.orch.Stop(testutil.TestContext(t))
	assert.True(t, stop.Success, stop.Error)
	assert.Equal(t, "Automation stopped", stop.Message)

	inflight, ok := testutil.WaitForChannel(done, 5*time.Second)
	require.True(t, ok)
	assert.False(t, inflight.Success)
	assert.Contains(t, inflight.Error, "context canceled")
	assert.False(t, f.orch.Active())
}

func TestStop_WithoutSession(t *testing.T) {
	f := newFixture(t, false, nil)
	res := f.orch.Stop(testutil.TestContext(t))
	assert.True(t, res.Success)
	assert.Equal(t, "No active automation session", res.Message)
}

func TestStop_ReleasesEverything(t *testing.T) {
	f := newFixture(t, true, nil)
	require.True(t, f.orch.Start(testutil.TestContext(t), Options{}).Success)

	res := f.orch.Stop(testutil.TestContext(t))
	require.True(t, res.Success, res.Error)
	assert.True(t, f.page(t).Closed())
	assert.True(t, f.launcher.Browsers()[0].Closed())
	assert.True(t, f.enhanced.Disposed())
	testutil.AssertLinesContain(t, res.Output, "Browser closed successfully")
	assert.False(t, f.orch.Active())
	assert.Equal(t, CapabilityNotAttempted, f.orch.Capability())

	// 新会话重新尝试初始化增强后端
	require.True(t, f.orch.Start(testutil.TestContext(t), Options{}).Success)
	assert.Equal(t, int32(2), f.init.calls.Load())
	assert.Equal(t, 2, f.launcher.Launches())
}

func TestStop_TwiceIsIdempotent(t *testing.T) {
	f := newFixture(t, true, nil)
	require.True(t, f.orch.Start(testutil.TestContext(t), Options{}).Success)

	first := f.orch.Stop(testutil.TestContext(t))
	require.True(t, first.Success, first.Error)
	second := f.orch.Stop(testutil.TestContext(t))
	assert.True(t, second.Success)
	assert.Equal(t, "No active automation session", second.Message)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, f.launcher.Browsers(), 1)
}

func TestStop_PartialCleanupFailureStillSucceeds(t *testing.T) {
	f := newFixture(t, false, func(p *fakes.Page) { p.FailClose(errors.New("target closed")) })
	require.True(t, f.orch.Start(testutil.TestContext(t), Options{}).Success)

	res := f.orch.Stop(testutil.TestContext(t))
	assert.True(t, res.Success)
	testutil.AssertLinesContain(t, res.Output, "Error closing Page: target closed")
	assert.True(t, f.launcher.Browsers()[0].Closed())
	assert.False(t, f.orch.Active())
}

func TestStop_AllCleanupStepsFail(t *testing.T) {
	f := newFixture(t, false, func(p *fakes.Page) { p.FailClose(errors.New("page gone")) })
	require.True(t, f.orch.Start(testutil.TestContext(t), Options{}).Success)
	f.launcher.Browsers()[0].FailClose(errors.New("process gone"))

	res := f.orch.Stop(testutil.TestContext(t))
	assert.True(t, res.Success, "release failures are warnings")
	assert.Empty(t, res.Error)
	assert.Empty(t, res.Code)
	assert.Equal(t, "Automation stopped with 2 cleanup warning(s)", res.Message)
	assert.Contains(t, strings.Join(res.Output, "\n"), "page gone")
	assert.Contains(t, strings.Join(res.Output, "\n"), "process gone")
	assert.False(t, f.orch.Active())
}

func TestStop_PanicDuringReleaseFails(t *testing.T) {
	f := newFixture(t, false, func(p *fakes.Page) { p.PanicOnClose("driver crashed") })
	require.True(t, f.orch.Start(testutil.TestContext(t), Options{}).Success)

	res := f.orch.Stop(testutil.TestContext(t))
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrInternalError, res.Code)
	assert.Contains(t, res.Error, "driver crashed")
	assert.False(t, f.orch.Active(), "session is dropped before release begins")

	// 再次 stop 没有会话可释放
	assert.True(t, f.orch.Stop(testutil.TestContext(t)).Success)
}

func TestExecute_Dispatch(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := testutil.TestContext(t)

	res := f.orch.Execute(ctx, Request{Kind: KindPrompt, Prompt: "go to example.com"})
	assert.True(t, res.Success)
	assert.Equal(t, "basic", res.Backend)

	res = f.orch.Execute(ctx, Request{Kind: KindDemo})
	assert.True(t, res.Success)
	assert.Len(t, res.Screenshots, 2)

	res = f.orch.Execute(ctx, Request{Kind: "bogus"})
	assert.Equal(t, types.ErrInvalidRequest, res.Code)
}
