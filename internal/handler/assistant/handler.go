package assistant

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/enrique/backend/internal/service/chat"
	"github.com/zhouzirui/enrique/backend/internal/service/orchestrator"
	"github.com/zhouzirui/enrique/backend/pkg/utils"
)

// Replier answers one visitor message.
type Replier interface {
	Reply(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	replier Replier
}

// New 创建助手处理器
func New(replier Replier) *Handler {
	return &Handler{replier: replier}
}

// RegisterRoutes 注册助手路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/assistant/reply", h.handleReply)
}

func (h *Handler) handleReply(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.replier.Reply(r.Context(), req)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, result)
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, "reply failed")
	}
}
