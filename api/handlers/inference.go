package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/localpilot/api"
	"github.com/BaSui01/localpilot/inference"
	"github.com/BaSui01/localpilot/llm"
	"go.uber.org/zap"
)

// =============================================================================
// 🧠 本地推理 Handler
// =============================================================================

// InferenceClient is the subset of inference.Client the handler uses.
type InferenceClient interface {
	Status(ctx context.Context) inference.Status
	ListModels(ctx context.Context) ([]llm.Model, error)
	Complete(ctx context.Context, req inference.CompletionRequest) (*inference.Completion, error)
	Candidates() []string
	Probe(ctx context.Context, candidates []string) inference.ProbeReport
	Config() inference.Config
}

// InferenceHandler 推理接口处理器
type InferenceHandler struct {
	client InferenceClient
	logger *zap.Logger
}

// NewInferenceHandler 创建推理处理器
func NewInferenceHandler(client InferenceClient, logger *zap.Logger) *InferenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InferenceHandler{client: client, logger: logger.With(zap.String("handler", "inference"))}
}

// HandleStatus 检查推理服务是否在线
// @Summary 推理服务状态
// @Tags 推理
// @Produce json
// @Success 200 {object} Response "inference.Status"
// @Router /api/v1/inference/status [get]
func (h *InferenceHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.client.Status(r.Context()))
}

// HandleModels 列出已加载的模型
// @Summary 模型列表
// @Tags 推理
// @Produce json
// @Success 200 {object} Response "api.ModelList"
// @Failure 502 {object} Response "推理服务不可达"
// @Router /api/v1/models [get]
func (h *InferenceHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.client.ListModels(r.Context())
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	out := api.ModelList{Models: make([]api.ModelInfo, 0, len(models)), Default: h.client.Config().DefaultModel}
	for _, m := range models {
		out.Models = append(out.Models, api.ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	WriteSuccess(w, out)
}

// HandlePrompt 发送单轮提示
// @Summary 单轮提示
// @Tags 推理
// @Accept json
// @Produce json
// @Param request body api.CompletionRequest true "提示"
// @Success 200 {object} Response "inference.Completion"
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "推理服务不可达"
// @Failure 504 {object} Response "推理超时"
// @Router /api/v1/prompt [post]
func (h *InferenceHandler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.CompletionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	completion, err := h.client.Complete(r.Context(), req.ToInference())
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	WriteSuccess(w, completion)
}

// HandleProbe 探测候选推理端点
// @Summary 端点探测
// @Tags 推理
// @Produce json
// @Success 200 {object} Response "inference.ProbeReport"
// @Router /api/v1/inference/probe [get]
func (h *InferenceHandler) HandleProbe(w http.ResponseWriter, r *http.Request) {
	// 只探测配置推导出的候选地址，不接受请求方提供的 URL
	WriteSuccess(w, h.client.Probe(r.Context(), h.client.Candidates()))
}
