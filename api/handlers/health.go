package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// readyTimeout 是一次就绪检查的总时限
const readyTimeout = 5 * time.Second

// Check 是一项就绪检查。Optional 检查失败时服务降级但仍可接收请求：
// 推理服务离线时基础后端依然可用。
type Check struct {
	Name     string
	Optional bool
	Run      func(ctx context.Context) error
}

// HealthStatus 是 /health 与 /ready 的响应体
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单项检查结果
type CheckResult struct {
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency"`
	Optional bool   `json:"optional,omitempty"`
}

// HealthHandler 提供存活、就绪与版本端点
type HealthHandler struct {
	logger  *zap.Logger
	started time.Time

	mu     sync.RWMutex
	checks []Check
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger.With(zap.String("handler", "health")), started: time.Now()}
}

// AddCheck 追加一项就绪检查
func (h *HealthHandler) AddCheck(c Check) {
	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// HandleHealth 存活探针：进程能响应即为 healthy
// @Summary 存活检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// HandleReady 并发执行全部检查。必需检查失败返回 503，
// 只有可选检查失败时返回 200 与 degraded。
// @Summary 就绪检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "healthy 或 degraded"
// @Failure 503 {object} HealthStatus "必需依赖不可用"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]Check(nil), h.checks...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = h.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{Status: "healthy", Timestamp: time.Now(), Checks: make(map[string]CheckResult, len(checks))}
	code := http.StatusOK
	for i, c := range checks {
		res := results[i]
		status.Checks[c.Name] = res
		switch {
		case res.Status == "fail":
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		case res.Status == "warn" && status.Status == "healthy":
			status.Status = "degraded"
		}
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, c Check) CheckResult {
	start := time.Now()
	err := c.Run(ctx)
	res := CheckResult{Status: "pass", Latency: time.Since(start).String(), Optional: c.Optional}
	if err == nil {
		return res
	}
	res.Message = err.Error()
	res.Status = "fail"
	if c.Optional {
		res.Status = "warn"
	}
	h.logger.Warn("readiness check failed",
		zap.String("check", c.Name),
		zap.Bool("optional", c.Optional),
		zap.Error(err))
	return res
}

// HandleVersion 返回构建信息
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} Response
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{"version": version, "build_time": buildTime, "git_commit": gitCommit}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// InferenceCheck 检查本地推理服务是否在线；增强后端依赖它，基础后端不依赖
func InferenceCheck(endpoint string, isLive func(ctx context.Context) bool) Check {
	return Check{
		Name:     "inference",
		Optional: true,
		Run: func(ctx context.Context) error {
			if !isLive(ctx) {
				return fmt.Errorf("inference server is not running at %s", endpoint)
			}
			return nil
		},
	}
}

// HistoryCheck 检查运行历史数据库连接
func HistoryCheck(ping func(ctx context.Context) error) Check {
	return Check{Name: "history", Run: ping}
}
