package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	chatService "github.com/zhouzirui/enrique/backend/internal/service/chat"
	"github.com/zhouzirui/enrique/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc      *chatService.Service
	personaStore persona.Store
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, personaStore persona.Store) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		personaStore: personaStore,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Get("/session/{sessionID}/messages", h.handleListMessages)
	r.Post("/messages", h.handleSaveMessage)
}

// handleCreateSession 创建会话；personaId 缺省为 Enrique。
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
		Timezone  string `json:"timezone"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil && !errors.Is(err, utils.ErrEmptyBody) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.PersonaID == "" {
		payload.PersonaID = h.personaStore.Default().ID
	}
	if _, ok := h.personaStore.FindByID(payload.PersonaID); !ok {
		utils.RespondError(w, http.StatusBadRequest, "persona not found")
		return
	}

	zone, ok := timezone.Normalize(payload.Timezone)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "unknown timezone")
		return
	}

	session, err := h.chatSvc.CreateSessionInZone(r.Context(), payload.PersonaID, zone)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleSaveMessage 保存消息
func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Sender    string `json:"sender"`
		Content   string `json:"content"`
		Intent    string `json:"intent"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch payload.Sender {
	case chat.SenderUser, chat.SenderAssistant:
	default:
		utils.RespondError(w, http.StatusBadRequest, "sender must be user or assistant")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	message, err := h.chatSvc.SaveMessage(r.Context(), chat.Message{
		SessionID: payload.SessionID,
		Sender:    payload.Sender,
		Content:   payload.Content,
		Intent:    payload.Intent,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, message)
}

func respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
