package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stream 区分输出行与错误行
type Stream string

const (
	StreamOutput Stream = "output"
	StreamError  Stream = "error"
)

// Event 是推送给订阅者的一行运行输出
type Event struct {
	RunID  string    `json:"run_id"`
	Stream Stream    `json:"stream"`
	Line   string    `json:"line"`
	Time   time.Time `json:"time"`
}

// EventSink receives transcript lines as they are produced. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// Transcript 按顺序收集一次运行的输出行，同时写日志并推送事件
type Transcript struct {
	mu     sync.Mutex
	runID  string
	lines  []string
	sink   EventSink
	logger *zap.Logger
}

// NewTranscript creates a transcript. sink and logger may be nil.
func NewTranscript(runID string, sink EventSink, logger *zap.Logger) *Transcript {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcript{
		runID:  runID,
		sink:   sink,
		logger: logger.With(zap.String("run_id", runID)),
	}
}

// RunID returns the run this transcript belongs to.
func (t *Transcript) RunID() string { return t.runID }

// Add records an output line.
func (t *Transcript) Add(line string) {
	t.append(StreamOutput, line)
	t.logger.Info(line)
}

// Addf records a formatted output line.
func (t *Transcript) Addf(format string, args ...any) {
	t.Add(fmt.Sprintf(format, args...))
}

// Warn records a non-fatal problem. It is kept in the output with a
// "Warning: " prefix and published on the error stream.
func (t *Transcript) Warn(line string) {
	t.append(StreamError, "Warning: "+line)
	t.logger.Warn(line)
}

// Warnf records a formatted warning.
func (t *Transcript) Warnf(format string, args ...any) {
	t.Warn(fmt.Sprintf(format, args...))
}

func (t *Transcript) append(stream Stream, line string) {
	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.mu.Unlock()
	if t.sink != nil {
		t.sink.Publish(Event{RunID: t.runID, Stream: stream, Line: line, Time: time.Now().UTC()})
	}
}

// Lines returns a copy of the recorded lines, never nil.
func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

type transcriptKey struct{}

// WithTranscript attaches t to ctx so backends append to the caller's run.
func WithTranscript(ctx context.Context, t *Transcript) context.Context {
	return context.WithValue(ctx, transcriptKey{}, t)
}

// TranscriptFrom returns the transcript attached to ctx.
func TranscriptFrom(ctx context.Context) (*Transcript, bool) {
	t, ok := ctx.Value(transcriptKey{}).(*Transcript)
	return t, ok && t != nil
}

// EnsureTranscript returns the transcript in ctx, or attaches a fresh one.
func EnsureTranscript(ctx context.Context, runID string, logger *zap.Logger) (context.Context, *Transcript) {
	if t, ok := TranscriptFrom(ctx); ok {
		return ctx, t
	}
	t := NewTranscript(runID, nil, logger)
	return WithTranscript(ctx, t), t
}
