package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	"github.com/zhouzirui/enrique/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/enrique/backend/internal/service/chat"
	"github.com/zhouzirui/enrique/backend/internal/service/orchestrator"
	speechsvc "github.com/zhouzirui/enrique/backend/internal/service/speech"
	"github.com/zhouzirui/enrique/backend/pkg/utils"
)

// maxUploadBytes 上传表单大小上限
const maxUploadBytes = 32 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	TranscribeAudio(rCtx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	SynthesizeSpeech(rCtx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
	TranscribeBuffer(rCtx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error)
	SynthesizeToBuffer(rCtx context.Context, sessionID, text, voice string, speed float64) (*speech.TTSResponse, error)
}

// Assistant answers a visitor message; the orchestrator implements it.
type Assistant interface {
	Reply(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// SessionReader resolves the session a request belongs to.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc    SpeechService
	assistant    Assistant
	sessions     SessionReader
	personaStore persona.Store
	logger       *zap.Logger
}

// New 创建语音处理器；assistant 与 sessions 可为空。
func New(speechSvc SpeechService, assistant Assistant, sessions SessionReader, personaStore persona.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		speechSvc:    speechSvc,
		assistant:    assistant,
		sessions:     sessions,
		personaStore: personaStore,
		logger:       logger.Named("speech"),
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router, checkOrigin func(*http.Request) bool) {
	r.Route("/speech", func(speechRouter chi.Router) {
		// ASR 端点
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/transcribe/{sessionID}", h.handleTranscribeWithSession)

		// TTS 端点
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Post("/synthesize/{sessionID}", h.handleSynthesizeWithSession)

		// 语音对话：ASR → 助手 → TTS
		speechRouter.Post("/converse/{sessionID}", h.handleConverse)

		// 健康检查
		speechRouter.Get("/health", h.handleHealth)

		// WebSocket端点 (如果实时语音链路可用)
		if h.websocketAvailable() {
			wsHandler := NewWebSocketHandler(h, checkOrigin)
			wsHandler.RegisterWebSocketRoutes(speechRouter)
		} else {
			speechRouter.Get("/ws/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusNotImplemented, "speech websocket not available")
			})
		}
	})
}

func (h *Handler) websocketAvailable() bool {
	return h.speechSvc != nil && h.assistant != nil && h.sessions != nil && h.personaStore != nil
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	h.processTranscribe(w, r, "")
}

// handleTranscribeWithSession 处理带会话ID的语音转文本请求
func (h *Handler) handleTranscribeWithSession(w http.ResponseWriter, r *http.Request) {
	h.processTranscribe(w, r, chi.URLParam(r, "sessionID"))
}

// handleSynthesize 处理文本转语音请求
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, "")
}

// handleSynthesizeWithSession 处理带会话ID的文本转语音请求
func (h *Handler) handleSynthesizeWithSession(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, chi.URLParam(r, "sessionID"))
}

type uploadedAudio struct {
	data     []byte
	format   string
	language string
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*uploadedAudio, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return nil, false
	}

	return &uploadedAudio{
		data:     data,
		format:   inferAudioFormat(header.Filename),
		language: r.FormValue("language"),
	}, true
}

func (h *Handler) processTranscribe(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	sessionID := overrideSessionID
	if sessionID == "" {
		sessionID = r.FormValue("sessionId")
	}
	if sessionID == "" {
		sessionID = "default"
	}

	resp, err := h.speechSvc.TranscribeBuffer(r.Context(), sessionID, upload.data, upload.format, upload.language)
	if err != nil {
		h.logger.Warn("asr failed", zap.String("session", sessionID), zap.Error(err))
		utils.RespondError(w, statusForSpeechError(err), "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) processSynthesize(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	var req speech.TTSRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if overrideSessionID != "" {
		req.SessionID = overrideSessionID
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}
	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = h.resolveVoiceFromContext(r.Context(), req.SessionID)
	}

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), &req)
	if err != nil {
		h.logger.Warn("tts failed", zap.String("session", req.SessionID), zap.Error(err))
		utils.RespondError(w, statusForSpeechError(err), "speech synthesis failed")
		return
	}

	if len(resp.AudioData) == 0 {
		utils.RespondJSON(w, http.StatusOK, resp)
		return
	}

	format := resp.Format
	if format == "" {
		format = "octet-stream"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		h.logger.Debug("write audio response failed", zap.Error(err))
	}
}

// ConverseResponse is the voice-to-voice result; audio is base64 encoded.
type ConverseResponse struct {
	SessionID   string `json:"sessionId"`
	InputText   string `json:"inputText"`
	OutputText  string `json:"outputText"`
	AudioData   string `json:"audioData"`
	AudioFormat string `json:"audioFormat"`
	ProcessTime int64  `json:"processTime"`
}

func (h *Handler) handleConverse(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "assistant unavailable")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	speed := 0.0
	if raw := r.FormValue("speed"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "speed must be a positive number")
			return
		}
		speed = parsed
	}
	zone := r.FormValue("timezone")

	chain := speechsvc.NewSpeechChain(h.speechSvc, func(ctx context.Context, sid, text string) (string, error) {
		result, err := h.assistant.Reply(ctx, orchestrator.Request{SessionID: sid, Message: text, Timezone: zone})
		return result.Reply, err
	})

	out, err := chain.ProcessVoiceToVoice(r.Context(), &speechsvc.VoiceToVoiceInput{
		SessionID:   sessionID,
		AudioData:   upload.data,
		AudioFormat: upload.format,
		Language:    upload.language,
		Voice:       firstNonEmpty(r.FormValue("voice"), h.resolveVoiceFromContext(r.Context(), sessionID)),
		Speed:       speed,
	})
	if err != nil {
		h.logger.Warn("voice conversation failed", zap.String("session", sessionID), zap.Error(err))
		utils.RespondError(w, statusForSpeechError(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, ConverseResponse{
		SessionID:   out.SessionID,
		InputText:   out.InputText,
		OutputText:  out.OutputText,
		AudioData:   base64.StdEncoding.EncodeToString(out.OutputAudio),
		AudioFormat: out.AudioFormat,
		ProcessTime: out.ProcessTime,
	})
}

// resolveVoiceFromContext 返回会话所绑定人设的声音。
func (h *Handler) resolveVoiceFromContext(ctx context.Context, sessionID string) string {
	if h.sessions == nil || h.personaStore == nil {
		return ""
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ""
	}

	session, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return ""
	}

	personaObj, ok := h.personaStore.FindByID(strings.TrimSpace(session.PersonaID))
	if !ok {
		return ""
	}

	return string(speechsvc.ResolveVoice(personaObj.VoiceID))
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
	})
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if speechsvc.SupportedInputFormat(ext) {
		return ext
	}
	return "wav"
}

func statusForSpeechError(err error) int {
	switch {
	case errors.Is(err, speechsvc.ErrEmptyAudio),
		errors.Is(err, speechsvc.ErrEmptyText),
		errors.Is(err, speechsvc.ErrUnsupportedFormat),
		errors.Is(err, speechsvc.ErrInvalidSpeed),
		errors.Is(err, orchestrator.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
