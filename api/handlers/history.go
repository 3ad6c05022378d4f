package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BaSui01/localpilot/internal/history"
	"github.com/BaSui01/localpilot/types"
	"go.uber.org/zap"
)

const maxListLimit = 500

// RunStore reads the run history.
type RunStore interface {
	List(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, id string) (*history.Run, error)
}

// HistoryHandler 运行历史处理器
type HistoryHandler struct {
	store  RunStore
	logger *zap.Logger
}

// NewHistoryHandler 创建运行历史处理器
func NewHistoryHandler(store RunStore, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{store: store, logger: logger.With(zap.String("handler", "history"))}
}

// HandleList 列出最近的运行
// @Summary 运行历史
// @Tags 历史
// @Produce json
// @Param limit query int false "条数（默认 50，最大 500）"
// @Success 200 {object} Response "[]history.Run"
// @Router /api/v1/runs [get]
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a positive integer", h.logger)
			return
		}
		limit = min(n, maxListLimit)
	}
	runs, err := h.store.List(r.Context(), limit)
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	WriteSuccess(w, runs)
}

// HandleGet 查询单次运行
// @Summary 运行详情
// @Tags 历史
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} Response "history.Run"
// @Failure 404 {object} Response "不存在"
// @Router /api/v1/runs/{id} [get]
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run id is required", h.logger)
		return
	}
	run, err := h.store.Get(r.Context(), id)
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	WriteSuccess(w, run)
}
