package providers

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/llm"
)

// RetryPolicy 控制对瞬时错误（超时、模型加载中、5xx）的重试
type RetryPolicy struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	Jitter       float64       `yaml:"jitter" json:"jitter"` // 0 表示固定间隔
}

// DefaultRetryPolicy 适合本机推理服务：失败通常意味着模型仍在加载
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	return b
}

// Retrying 为 Completion 与 Stream 的连接阶段加上指数退避重试。
// 流建立之后的中途错误不会重试，Name/ListModels/HealthCheck 直接透传。
type Retrying struct {
	llm.Provider
	policy RetryPolicy
	logger *zap.Logger
}

var _ llm.Provider = (*Retrying)(nil)

// WithRetry 包装 inner
func WithRetry(inner llm.Provider, policy RetryPolicy, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		Provider: inner,
		policy:   policy,
		logger:   logger.With(zap.String("provider", inner.Name())),
	}
}

func (r *Retrying) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return withBackoff(ctx, r, "completion", func() (*llm.ChatResponse, error) {
		return r.Provider.Completion(ctx, req)
	})
}

func (r *Retrying) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return withBackoff(ctx, r, "stream", func() (<-chan llm.StreamChunk, error) {
		return r.Provider.Stream(ctx, req)
	})
}

func withBackoff[T any](ctx context.Context, r *Retrying, op string, call func() (T, error)) (T, error) {
	if r.policy.MaxRetries <= 0 {
		return call()
	}
	return backoff.Retry(ctx, func() (T, error) {
		v, err := call()
		if err != nil && !llm.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(r.policy.backOff()),
		backoff.WithMaxTries(uint(r.policy.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("inference call failed, retrying",
				zap.String("op", op),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
}
