package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	"github.com/zhouzirui/enrique/backend/internal/service/orchestrator"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	// maxBufferedAudio 单次发言累计音频上限
	maxBufferedAudio = 25 << 20
)

// WebSocketHandler WebSocket语音处理器
type WebSocketHandler struct {
	*Handler
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器；checkOrigin 为空时接受同源与无 Origin 的请求。
func NewWebSocketHandler(h *Handler, checkOrigin func(*http.Request) bool) *WebSocketHandler {
	return &WebSocketHandler{
		Handler: h,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频消息
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	Language   string `json:"language"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language   string   `json:"language"`
	Timezone   string   `json:"timezone"`
	Voice      string   `json:"voice"`
	Speed      *float64 `json:"speed,omitempty"`
	ASREnabled *bool    `json:"asrEnabled,omitempty"`
	TTSEnabled *bool    `json:"ttsEnabled,omitempty"`
	StreamMode *bool    `json:"streamMode,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	persona     *persona.Persona
	language    string
	timezone    string
	voice       string
	speed       float64
	asrEnabled  bool
	ttsEnabled  bool
	streamMode  bool
	audioFormat string
	buffer      bytes.Buffer
}

func newConnectionState(sessionID, zone string, p *persona.Persona) *connectionState {
	return &connectionState{
		sessionID:  sessionID,
		persona:    p,
		timezone:   zone,
		voice:      p.VoiceID,
		speed:      1.0,
		asrEnabled: true,
		ttsEnabled: true,
		streamMode: true,
	}
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	p, ok := h.personaStore.FindByID(session.PersonaID)
	if !ok {
		http.Error(w, "persona not found", http.StatusBadRequest)
		return
	}

	state := newConnectionState(sessionID, session.Timezone, &p)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session", sessionID))
	logger.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.sendInfo(conn, sessionID, map[string]any{
		"type":    "connected",
		"persona": p.ID,
		"opening": p.OpeningLine,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigMessage(conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	if !state.asrEnabled {
		h.sendInfo(conn, state.sessionID, map[string]any{"type": "asr", "enabled": false})
		return
	}

	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if state.buffer.Len()+len(audio.AudioData) > maxBufferedAudio {
		state.buffer.Reset()
		h.sendError(conn, "audio too large")
		return
	}
	state.buffer.Write(audio.AudioData)
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}

	if audio.IsFinal || !state.streamMode {
		h.processBufferedAudio(ctx, conn, state)
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	audioBytes := bytes.Clone(state.buffer.Bytes())
	state.buffer.Reset()

	if len(audioBytes) == 0 {
		return
	}

	format := state.audioFormat
	if format == "" {
		format = "wav"
	}

	h.logger.Debug("transcribing buffered audio",
		zap.String("session", state.sessionID),
		zap.String("format", format),
		zap.Int("bytes", len(audioBytes)))

	asrResp, err := h.speechSvc.TranscribeBuffer(ctx, state.sessionID, audioBytes, format, state.language)
	if err != nil {
		h.sendError(conn, fmt.Sprintf("ASR failed: %v", err))
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "asr",
		"text":    asrResp.Text,
		"isFinal": true,
	})

	if asrResp.Text == "" {
		return
	}

	if err := h.processUserText(ctx, conn, state, asrResp.Text); err != nil {
		h.sendError(conn, err.Error())
	}
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	if text.Text == "" {
		return
	}

	if err := h.processUserText(ctx, conn, state, text.Text); err != nil {
		h.sendError(conn, err.Error())
	}
}

func (h *WebSocketHandler) processUserText(ctx context.Context, conn *websocket.Conn, state *connectionState, userText string) error {
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type": "user",
		"text": userText,
	})

	result, err := h.assistant.Reply(ctx, orchestrator.Request{
		SessionID: state.sessionID,
		Message:   userText,
		Timezone:  state.timezone,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyMessage) {
			return nil
		}
		return fmt.Errorf("reply failed: %w", err)
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "ai",
		"text":    result.Reply,
		"intent":  result.Intent.Category,
		"agent":   result.Agent,
		"source":  result.Source,
		"isFinal": true,
	})

	if state.ttsEnabled && result.Reply != "" {
		h.sendTTS(ctx, conn, state, result.Reply)
	}
	return nil
}

func (h *WebSocketHandler) sendTTS(ctx context.Context, conn *websocket.Conn, state *connectionState, text string) {
	ttsResp, err := h.speechSvc.SynthesizeToBuffer(ctx, state.sessionID, text, state.voice, state.speed)
	if err != nil {
		h.logger.Warn("tts failed", zap.String("session", state.sessionID), zap.Error(err))
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":  "tts",
			"error": "synthesis failed",
		})
		return
	}

	if len(ttsResp.AudioData) == 0 {
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":      "tts",
		"audioData": base64.StdEncoding.EncodeToString(ttsResp.AudioData),
		"format":    ttsResp.Format,
		"isFinal":   true,
	})
}

func (h *WebSocketHandler) handleConfigMessage(conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	if err := applyConfig(state, cfg); err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":       "config",
		"language":   state.language,
		"timezone":   state.timezone,
		"voice":      state.voice,
		"speed":      state.speed,
		"asr":        state.asrEnabled,
		"tts":        state.ttsEnabled,
		"streamMode": state.streamMode,
	})
}

// applyConfig validates the whole message before touching state.
func applyConfig(state *connectionState, cfg ConfigMessage) error {
	if cfg.Speed != nil && *cfg.Speed <= 0 {
		return errors.New("speed must be a positive number")
	}
	zone := state.timezone
	if cfg.Timezone != "" {
		resolved, ok := timezone.Normalize(cfg.Timezone)
		if !ok {
			return fmt.Errorf("unknown timezone %q", cfg.Timezone)
		}
		zone = resolved
	}

	state.timezone = zone
	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.Voice != "" {
		state.voice = cfg.Voice
	}
	if cfg.Speed != nil {
		state.speed = *cfg.Speed
	}
	if cfg.ASREnabled != nil {
		state.asrEnabled = *cfg.ASREnabled
	}
	if cfg.TTSEnabled != nil {
		state.ttsEnabled = *cfg.TTSEnabled
	}
	if cfg.StreamMode != nil {
		state.streamMode = *cfg.StreamMode
	}
	return nil
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
