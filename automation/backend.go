package automation

import (
	"context"
	"time"

	"github.com/BaSui01/localpilot/browser"
)

// Backend 执行一条自然语言提示
type Backend interface {
	Name() string
	// Run returns a successful result or an error. Output lines go to the
	// transcript carried by ctx.
	Run(ctx context.Context, prompt string, opts Options) (*Result, error)
}

// EnhancedBackend is a backend bound to the orchestrator's session.
type EnhancedBackend interface {
	Backend
	Dispose(ctx context.Context) error
}

// EnhancedInitializer binds an enhanced backend to a live browser session.
// A returned error means the capability is unavailable for the session.
type EnhancedInitializer interface {
	Init(ctx context.Context, b browser.Browser, p browser.Page) (EnhancedBackend, error)
}

// Observer receives orchestration outcomes for metrics.
type Observer interface {
	ObserveRun(kind string, backend string, success bool, d time.Duration)
	ObserveFallback(stage string)
	ObserveScreenshots(n int)
	ObserveSession(event string)
}

// RunRecord 描述一次已完成的运行，供历史存储使用
type RunRecord struct {
	RunID     string
	Kind      Kind
	Prompt    string
	Backend   string
	Result    *Result
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder persists completed runs.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

type nopObserver struct{}

func (nopObserver) ObserveRun(string, string, bool, time.Duration) {}
func (nopObserver) ObserveFallback(string)                         {}
func (nopObserver) ObserveScreenshots(int)                         {}
func (nopObserver) ObserveSession(string)                          {}
