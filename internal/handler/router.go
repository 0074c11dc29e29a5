package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	"github.com/zhouzirui/enrique/backend/internal/config"
	"github.com/zhouzirui/enrique/backend/internal/handler/analysis"
	"github.com/zhouzirui/enrique/backend/internal/handler/assistant"
	calendarHandler "github.com/zhouzirui/enrique/backend/internal/handler/calendar"
	"github.com/zhouzirui/enrique/backend/internal/handler/chat"
	"github.com/zhouzirui/enrique/backend/internal/handler/persona"
	"github.com/zhouzirui/enrique/backend/internal/handler/speech"
	"github.com/zhouzirui/enrique/backend/internal/handler/stream"
	toolsHandler "github.com/zhouzirui/enrique/backend/internal/handler/tools"
	middlewarePkg "github.com/zhouzirui/enrique/backend/internal/middleware"
	personaModel "github.com/zhouzirui/enrique/backend/internal/model/persona"
	aiService "github.com/zhouzirui/enrique/backend/internal/service/ai"
	calendarService "github.com/zhouzirui/enrique/backend/internal/service/calendar"
	chatService "github.com/zhouzirui/enrique/backend/internal/service/chat"
	"github.com/zhouzirui/enrique/backend/internal/service/orchestrator"
	speechService "github.com/zhouzirui/enrique/backend/internal/service/speech"
	toolService "github.com/zhouzirui/enrique/backend/internal/service/tools"
	"github.com/zhouzirui/enrique/backend/pkg/utils"
)

// Deps 路由所需的服务；除 Personas 与 Chat 外均可为空。
type Deps struct {
	Personas     personaModel.Store
	Chat         *chatService.Service
	Orchestrator *orchestrator.Service
	AI           *aiService.Service
	Speech       *speechService.Service
	Calendar     calendarService.Backend
	Tools        *toolService.Registry
	Converter    *timezone.Converter
	Location     *time.Location
	Now          func() time.Time
	HTTP         config.HTTPConfig
	Logger       *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.HTTP.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"ai":       deps.AI != nil,
			"speech":   deps.Speech != nil,
			"calendar": deps.Calendar != nil,
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	limiter := middlewarePkg.NewRateLimiter(deps.HTTP.RateLimitRPS, deps.HTTP.RateLimitBurst)

	r.Route("/api", func(api chi.Router) {
		api.Use(limiter.Middleware)

		persona.New(deps.Personas).RegisterRoutes(api)
		chat.New(deps.Chat, deps.Personas).RegisterRoutes(api)
		if deps.Converter != nil {
			analysis.New(deps.Converter, deps.Now).RegisterRoutes(api)
		}

		if deps.Orchestrator != nil {
			// 避免把空 *Service 包装成非空接口
			var streamer stream.Streamer
			if deps.AI != nil {
				streamer = deps.AI
			}
			stream.New(deps.Orchestrator, streamer, logger).RegisterRoutes(api)
			assistant.New(deps.Orchestrator).RegisterRoutes(api)
		}

		if deps.Calendar != nil {
			calendarHandler.New(deps.Calendar, deps.Location, deps.Now, logger).RegisterRoutes(api)
		}

		if deps.Tools != nil {
			toolsHandler.New(deps.Tools).RegisterRoutes(api)
		}

		// Register speech routes if speech service is available
		if deps.Speech != nil {
			var replier speech.Assistant
			var sessions speech.SessionReader
			if deps.Orchestrator != nil {
				replier = deps.Orchestrator
			}
			if deps.Chat != nil {
				sessions = deps.Chat
			}
			speech.New(deps.Speech, replier, sessions, deps.Personas, logger).
				RegisterRoutes(api, middlewarePkg.OriginChecker(deps.HTTP.AllowedOrigins))
		}
	})

	return r
}
