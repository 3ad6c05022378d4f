package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/localpilot/api"
	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🤖 浏览器自动化 Handler
// =============================================================================

// Automator is the orchestrator surface the handler drives.
type Automator interface {
	Start(ctx context.Context, opts automation.Options) *automation.Result
	RunPrompt(ctx context.Context, prompt string, opts automation.Options) *automation.Result
	Stop(ctx context.Context) *automation.Result
	Status() automation.Status
}

// AutomationHandler 自动化接口处理器
type AutomationHandler struct {
	orch     Automator
	defaults func() automation.Options
	logger   *zap.Logger
}

// NewAutomationHandler 创建自动化处理器。defaults 在每次请求时调用，
// 以便配置热更新后立即生效。
func NewAutomationHandler(orch Automator, defaults func() automation.Options, logger *zap.Logger) *AutomationHandler {
	if defaults == nil {
		defaults = func() automation.Options { return automation.Options{} }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutomationHandler{orch: orch, defaults: defaults, logger: logger.With(zap.String("handler", "automation"))}
}

// HandleStart 启动演示会话
// @Summary 启动浏览器演示
// @Tags 自动化
// @Accept json
// @Produce json
// @Param request body api.StartRequest false "运行选项"
// @Success 200 {object} Response "automation.Result"
// @Failure 409 {object} Response "已有操作在进行"
// @Router /api/v1/automation/start [post]
func (h *AutomationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if err := DecodeOptionalJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	opts, ok := h.options(w, req.Options)
	if !ok {
		return
	}
	h.writeResult(w, h.orch.Start(r.Context(), opts))
}

// HandlePrompt 执行自然语言自动化指令
// @Summary 执行自动化指令
// @Tags 自动化
// @Accept json
// @Produce json
// @Param request body api.PromptRequest true "指令"
// @Success 200 {object} Response "automation.Result"
// @Failure 400 {object} Response "无效请求"
// @Failure 422 {object} Response "无法识别的指令"
// @Router /api/v1/automation/prompt [post]
func (h *AutomationHandler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.PromptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	opts, ok := h.options(w, req.Options)
	if !ok {
		return
	}
	h.writeResult(w, h.orch.RunPrompt(r.Context(), req.Prompt, opts))
}

// HandleStop 关闭浏览器会话
// @Summary 停止会话
// @Tags 自动化
// @Produce json
// @Success 200 {object} Response "automation.Result"
// @Router /api/v1/automation/stop [post]
func (h *AutomationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	// 客户端断开也要完成清理
	h.writeResult(w, h.orch.Stop(context.WithoutCancel(r.Context())))
}

// HandleStatus 返回当前会话状态
// @Summary 会话状态
// @Tags 自动化
// @Produce json
// @Success 200 {object} Response "automation.Status"
// @Router /api/v1/automation/status [get]
func (h *AutomationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.orch.Status())
}

func (h *AutomationHandler) options(w http.ResponseWriter, req *api.AutomationOptions) (automation.Options, bool) {
	opts, err := req.Apply(h.defaults())
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()).WithHTTPStatus(http.StatusBadRequest), h.logger)
		return opts, false
	}
	return opts, true
}

// writeResult 成功时返回结果；失败时按错误码映射状态码，并在 data 中附带完整结果
func (h *AutomationHandler) writeResult(w http.ResponseWriter, res *automation.Result) {
	if res.Success {
		WriteSuccess(w, res)
		return
	}
	code := res.Code
	if code == "" {
		code = types.ErrInternalError
	}
	writeFailure(w, types.NewError(code, res.Error), res, h.logger)
}
