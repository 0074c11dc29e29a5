// Package app assembles the service graph shared by the API server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	"github.com/zhouzirui/enrique/backend/internal/config"
	"github.com/zhouzirui/enrique/backend/internal/handler"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	"github.com/zhouzirui/enrique/backend/internal/service/ai"
	"github.com/zhouzirui/enrique/backend/internal/service/calendar"
	"github.com/zhouzirui/enrique/backend/internal/service/chat"
	"github.com/zhouzirui/enrique/backend/internal/service/orchestrator"
	"github.com/zhouzirui/enrique/backend/internal/service/speech"
	"github.com/zhouzirui/enrique/backend/internal/service/tools"
)

// App holds every long-lived service. AI and Speech are nil when unconfigured.
type App struct {
	Config       *config.Config
	Location     *time.Location
	Now          func() time.Time
	Personas     *persona.MemoryStore
	Chat         *chat.Service
	Calendar     calendar.Backend
	Tools        *tools.Registry
	Converter    *timezone.Converter
	AI           *ai.Service
	Speech       *speech.Service
	Orchestrator *orchestrator.Service

	redis  *redis.Client
	logger *zap.Logger
}

// Option customises Build.
type Option func(*buildOptions)

type buildOptions struct {
	now     func() time.Time
	backend calendar.Backend
}

// WithClock pins the clock every service reads.
func WithClock(now func() time.Time) Option {
	return func(o *buildOptions) { o.now = now }
}

// WithCalendar replaces the configured calendar backend.
func WithCalendar(backend calendar.Backend) Option {
	return func(o *buildOptions) { o.backend = backend }
}

// Build wires services from cfg. Optional integrations that fail to start are
// logged and skipped.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	loc, err := time.LoadLocation(cfg.Scheduling.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	converter, err := timezone.NewConverter(cfg.Scheduling.Timezone, timezone.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("build converter: %w", err)
	}

	a := &App{
		Config:    cfg,
		Location:  loc,
		Now:       o.now,
		Personas:  persona.NewMemoryStore(persona.Seed()),
		Converter: converter,
		logger:    logger,
	}

	chatOpts := []chat.Option{chat.WithLogger(logger)}
	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, sessions stay in memory", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = a.redis.Close()
			a.redis = nil
		} else {
			chatOpts = append(chatOpts, chat.WithArchive(chat.NewRedisArchive(a.redis, cfg.Redis.HistoryTTL, cfg.Redis.MaxMessages)))
			logger.Info("session archive enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}
	a.Chat = chat.NewService(chatOpts...)

	backend := o.backend
	if backend == nil {
		backend = newBackend(cfg.Scheduling, loc, o.now, logger)
	}
	a.Calendar = calendar.Instrument(backend, logger)

	a.Tools, err = tools.NewRegistry(ctx, logger, []tool.InvokableTool{
		tools.NewPersonaTool(cfg.Scheduling.PersonaFile),
		tools.NewAvailabilityTool(a.Calendar, loc, o.now, logger),
		tools.NewBookingTool(a.Calendar, loc, o.now),
		tools.WordCountTool{},
	}...)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	if cfg.AI.Enabled() {
		a.AI, err = ai.NewService(ctx, a.Personas, cfg.AI, logger, ai.WithToolRunner(a.Tools))
		if err != nil {
			logger.Warn("continuing without AI functionality - 请检查 Ark 模型相关环境变量", zap.Error(err))
			a.AI = nil
		} else {
			logger.Info("AI service initialized", zap.String("model", cfg.AI.Model))
		}
	} else {
		logger.Info("Ark 凭证未配置，使用规则回复")
	}

	if cfg.Speech.Enabled {
		a.Speech = speech.NewService(cfg.Speech.ToModel(), speech.WithLogger(logger))
		logger.Info("speech service initialized", zap.String("stt", cfg.Speech.STTModel), zap.String("tts", cfg.Speech.TTSModel))
	} else {
		logger.Info("语音服务凭证未配置，跳过语音功能初始化")
	}

	deps := orchestrator.Deps{
		Personas:  a.Personas,
		Sessions:  a.Chat,
		Calendar:  a.Calendar,
		Tools:     a.Tools,
		Converter: converter,
		Location:  loc,
		Now:       o.now,
		Logger:    logger,
	}
	if a.AI != nil {
		deps.AI = a.AI
	}
	a.Orchestrator = orchestrator.New(deps)

	return a, nil
}

func newBackend(cfg config.SchedulingConfig, loc *time.Location, now func() time.Time, logger *zap.Logger) calendar.Backend {
	switch cfg.Backend {
	case config.BackendOfficeHours:
		return calendar.NewOfficeHoursBackend(loc, cfg.CalendlyLink, calendar.WithBookingClock(now))
	default:
		return calendar.NewMCPBackend(calendar.MCPOptions{
			ServerURL:    cfg.MCPServerURL,
			CalendlyLink: cfg.CalendlyLink,
			Timeout:      cfg.MCPTimeout,
			Location:     loc,
			Logger:       logger,
			Now:          now,
		})
	}
}

// RouterDeps exposes the app's services to the HTTP router.
func (a *App) RouterDeps() handler.Deps {
	return handler.Deps{
		Personas:     a.Personas,
		Chat:         a.Chat,
		Orchestrator: a.Orchestrator,
		AI:           a.AI,
		Speech:       a.Speech,
		Calendar:     a.Calendar,
		Tools:        a.Tools,
		Converter:    a.Converter,
		Location:     a.Location,
		Now:          a.Now,
		HTTP:         a.Config.HTTP,
		Logger:       a.logger,
	}
}

// Close releases external connections.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
