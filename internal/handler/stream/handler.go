package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	"github.com/zhouzirui/enrique/backend/internal/service/ai"
	chatService "github.com/zhouzirui/enrique/backend/internal/service/chat"
	"github.com/zhouzirui/enrique/backend/internal/service/orchestrator"
	"github.com/zhouzirui/enrique/backend/pkg/utils"
)

// Streamer produces token streams for a briefed turn.
type Streamer interface {
	StreamingEnabled() bool
	StreamResponse(ctx context.Context, p *persona.Persona, messages []chat.Message, userMessage string, briefing *ai.Briefing) (*schema.StreamReader[*schema.Message], error)
}

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	orchestrator *orchestrator.Service
	streamer     Streamer
	logger       *zap.Logger
}

// New creates a new stream handler. streamer may be nil, replies are then sent whole.
func New(orch *orchestrator.Service, streamer Streamer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orchestrator: orch,
		streamer:     streamer,
		logger:       logger.Named("stream"),
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Source    string `json:"source,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RegisterRoutes mounts GET /stream/{sessionID}?message=...
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		userMessage := strings.TrimSpace(r.URL.Query().Get("message"))
		if userMessage == "" {
			utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
			return
		}

		if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage, r.URL.Query().Get("timezone")); err != nil {
			h.logger.Warn("stream request failed", zap.String("session", sessionID), zap.Error(err))
		}
	})
}

// HandleStreamRequest processes streaming AI responses for a chat session
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage, zone string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	turn, err := h.orchestrator.Prepare(ctx, orchestrator.Request{SessionID: sessionID, Message: userMessage, Timezone: zone})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return err
	}

	utils.SetupSSEHeaders(w)

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
		Content:   fmt.Sprintf("%s's assistant is replying:", turn.Persona.Name),
	})
	h.sendSSE(w, flusher, StreamResponse{
		Event:     "intent",
		SessionID: sessionID,
		Intent:    string(turn.Result.Intent.Category),
		Agent:     turn.Result.Agent,
		Content:   turn.Result.Intent.Keyword,
	})

	reply, source := h.dispatch(ctx, w, flusher, turn)

	result, err := h.orchestrator.Complete(ctx, turn, reply, source)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to save conversation: %v", err))
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Agent:     result.Agent,
		Source:    result.Source,
		Finished:  true,
	})

	h.logger.Info("stream completed", zap.String("session", sessionID), zap.String("agent", result.Agent))
	return nil
}

// dispatch streams when possible; any model failure degrades to the fallback reply.
func (h *Handler) dispatch(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, turn *orchestrator.Turn) (string, string) {
	sessionID := turn.Request.SessionID

	if h.streamer != nil && h.streamer.StreamingEnabled() {
		response, err := h.streamAIResponse(ctx, w, flusher, turn)
		if err == nil {
			return response.Content, orchestrator.SourceAI
		}
		h.logger.Warn("stream generation failed, using fallback", zap.Error(err))
		reply := h.orchestrator.Fallback(turn)
		h.sendSSE(w, flusher, StreamResponse{Event: "message", SessionID: sessionID, Content: reply})
		return reply, orchestrator.SourceFallback
	}

	reply, source := h.orchestrator.Generate(ctx, turn)
	h.sendSSE(w, flusher, StreamResponse{Event: "message", SessionID: sessionID, Content: reply, Source: source})
	return reply, source
}

// sendSSE sends a Server-Sent Event
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	if err := utils.SendSSEChunk(w, flusher, response); err != nil {
		h.logger.Debug("sse write failed", zap.String("event", response.Event), zap.Error(err))
	}
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	if err := utils.SendSSEEvent(w, flusher, "error", StreamResponse{Event: "error", Error: errorMsg}); err != nil {
		h.logger.Debug("sse write failed", zap.String("event", "error"), zap.Error(err))
	}
}

func (h *Handler) streamAIResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, turn *orchestrator.Turn) (*schema.Message, error) {
	p := turn.Persona
	stream, err := h.streamer.StreamResponse(ctx, &p, turn.History, turn.Request.Message, turn.Briefing)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	sessionID := turn.Request.SessionID
	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.sendSSE(w, flusher, StreamResponse{
				Event:     "delta",
				SessionID: sessionID,
				Content:   chunk.Content,
			})
		}
	}

	if len(chunks) == 0 {
		return nil, errors.New("empty stream")
	}
	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   response.Content,
		Source:    orchestrator.SourceAI,
	})

	return response, nil
}
