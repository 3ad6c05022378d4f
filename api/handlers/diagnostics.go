package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/localpilot/automation/diagnostics"
	"go.uber.org/zap"
)

// Diagnoser produces an enhanced-backend report.
type Diagnoser interface {
	Diagnose(ctx context.Context) diagnostics.Report
}

// DiagnosticsHandler 诊断接口处理器
type DiagnosticsHandler struct {
	diag   Diagnoser
	logger *zap.Logger
}

// NewDiagnosticsHandler 创建诊断处理器
func NewDiagnosticsHandler(diag Diagnoser, logger *zap.Logger) *DiagnosticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagnosticsHandler{diag: diag, logger: logger.With(zap.String("handler", "diagnostics"))}
}

// HandleDiagnose 返回增强后端诊断报告。报告本身就是结果，
// 即使后端不可用也返回 200。
// @Summary 增强后端诊断
// @Tags 诊断
// @Produce json
// @Success 200 {object} Response "diagnostics.Report"
// @Router /api/v1/diagnostics [get]
func (h *DiagnosticsHandler) HandleDiagnose(w http.ResponseWriter, r *http.Request) {
	report := h.diag.Diagnose(r.Context())
	if !report.Healthy() {
		h.logger.Info("enhanced backend unavailable", zap.String("reason", report.ImportError))
	}
	WriteSuccess(w, report)
}
