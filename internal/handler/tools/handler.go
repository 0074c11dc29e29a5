package tools

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	toolService "github.com/zhouzirui/enrique/backend/internal/service/tools"
	"github.com/zhouzirui/enrique/backend/pkg/utils"
)

const maxArgumentBytes = 64 << 10

// Handler lists and invokes the agent tools directly.
type Handler struct {
	registry *toolService.Registry
}

// New 创建工具处理器
func New(registry *toolService.Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes 注册工具路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tools", h.handleList)
	r.Post("/tools/{name}", h.handleInvoke)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.registry.Describe())
}

// InvokeResponse 工具执行结果
type InvokeResponse struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

// handleInvoke 请求体即工具参数 JSON，可为空。
func (h *Handler) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.registry.Has(name) {
		utils.RespondError(w, http.StatusNotFound, "unknown tool: "+name)
		return
	}

	args, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArgumentBytes))
	if err != nil {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "arguments too large")
		return
	}

	out, err := h.registry.Invoke(r.Context(), name, string(args))
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, InvokeResponse{Tool: name, Output: out})
	case errors.Is(err, toolService.ErrInvalidArguments):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, toolService.ErrUnknownTool):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	}
}
