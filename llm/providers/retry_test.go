package providers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/localpilot/llm"
)

// flaky 按顺序返回预设的错误，之后成功
type flaky struct {
	calls atomic.Int32
	errs  []error
}

func (f *flaky) next() error {
	i := int(f.calls.Add(1)) - 1
	if i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func (f *flaky) Name() string { return "flaky" }

func (f *flaky) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.Message{Content: "ok"}}}}, nil
}

func (f *flaky) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (f *flaky) ListModels(context.Context) ([]llm.Model, error) {
	return []llm.Model{{ID: "phi-4-mini"}}, nil
}

func (f *flaky) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func quickPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

var (
	loading = &llm.Error{Code: llm.ErrModelLoading, Retryable: true, Message: "loading"}
	badReq  = &llm.Error{Code: llm.ErrInvalidRequest, Message: "bad"}
)

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	inner := &flaky{errs: []error{loading, loading}}
	r := WithRetry(inner, quickPolicy(2), zaptest.NewLogger(t))

	resp, err := r.Completion(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)
	answer, _ := resp.Answer()
	assert.Equal(t, "ok", answer)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetrying_PermanentErrorIsNotRetried(t *testing.T) {
	inner := &flaky{errs: []error{badReq}}
	r := WithRetry(inner, quickPolicy(3), nil)

	_, err := r.Stream(context.Background(), &llm.ChatRequest{})
	assert.Same(t, badReq, errorAs(t, err))
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetrying_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flaky{errs: []error{loading, loading, loading, loading}}
	r := WithRetry(inner, quickPolicy(2), nil)

	_, err := r.Completion(context.Background(), &llm.ChatRequest{})
	assert.Same(t, loading, errorAs(t, err))
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetrying_ZeroRetriesCallsOnce(t *testing.T) {
	inner := &flaky{errs: []error{loading}}
	r := WithRetry(inner, quickPolicy(0), nil)

	_, err := r.Completion(context.Background(), &llm.ChatRequest{})
	assert.ErrorIs(t, err, loading)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetrying_StopsWhenContextEnds(t *testing.T) {
	inner := &flaky{errs: []error{loading, loading, loading}}
	r := WithRetry(inner, RetryPolicy{MaxRetries: 2, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := r.Completion(ctx, &llm.ChatRequest{})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetrying_PassesThroughMetadata(t *testing.T) {
	r := WithRetry(&flaky{}, DefaultRetryPolicy(), nil)
	assert.Equal(t, "flaky", r.Name())
	models, err := r.ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 1)
}

func errorAs(t *testing.T, err error) *llm.Error {
	t.Helper()
	var e *llm.Error
	require.True(t, errors.As(err, &e), "not an llm.Error: %v", err)
	return e
}
