// MockLanguageModel 的推理客户端测试模拟实现。
//
// 支持按顺序返回脚本化回复、错误注入与离线模拟。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/localpilot/inference"
)

// --- MockLanguageModel 结构 ---

// MockLanguageModel 模拟 inference.Client 的 IsLive / Complete
type MockLanguageModel struct {
	mu sync.Mutex

	live      bool
	responses []string
	err       error
	fn        func(ctx context.Context, req inference.CompletionRequest) (*inference.Completion, error)

	calls []inference.CompletionRequest
}

// --- 构造函数和 Builder 方法 ---

// NewMockLanguageModel 创建在线的 MockLanguageModel
func NewMockLanguageModel() *MockLanguageModel {
	return &MockLanguageModel{live: true, responses: []string{"Mock response"}}
}

// WithResponses 设置按顺序返回的回复，用完后重复最后一条
func (m *MockLanguageModel) WithResponses(responses ...string) *MockLanguageModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError 让每次 Complete 返回 err
func (m *MockLanguageModel) WithError(err error) *MockLanguageModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithLive 设置 IsLive 的返回值
func (m *MockLanguageModel) WithLive(live bool) *MockLanguageModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = live
	return m
}

// WithCompleteFunc 使用自定义函数处理请求
func (m *MockLanguageModel) WithCompleteFunc(fn func(ctx context.Context, req inference.CompletionRequest) (*inference.Completion, error)) *MockLanguageModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// --- 接口实现 ---

// IsLive 返回配置的在线状态
func (m *MockLanguageModel) IsLive(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live && ctx.Err() == nil
}

// Complete 记录请求并返回下一条脚本回复
func (m *MockLanguageModel) Complete(ctx context.Context, req inference.CompletionRequest) (*inference.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn, err := m.fn, m.err
	idx := len(m.calls) - 1
	var content string
	if n := len(m.responses); n > 0 {
		content = m.responses[min(idx, n-1)]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &inference.Completion{
		Result:         content,
		Model:          "mock-model",
		ModelRequested: req.Model,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// --- 调用记录 ---

// Calls 返回所有请求
func (m *MockLanguageModel) Calls() []inference.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inference.CompletionRequest(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockLanguageModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
