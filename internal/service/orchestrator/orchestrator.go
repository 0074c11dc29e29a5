package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/enrique/backend/internal/analysis/datehint"
	"github.com/zhouzirui/enrique/backend/internal/analysis/intent"
	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	"github.com/zhouzirui/enrique/backend/internal/metrics"
	"github.com/zhouzirui/enrique/backend/internal/model/agent"
	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	"github.com/zhouzirui/enrique/backend/internal/service/ai"
	calendarService "github.com/zhouzirui/enrique/backend/internal/service/calendar"
	"github.com/zhouzirui/enrique/backend/internal/service/tools"
)

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Reply sources.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// Responder generates a model reply for a briefed turn.
type Responder interface {
	GenerateResponse(ctx context.Context, sessionID string, p *persona.Persona, messages []chat.Message, userMessage string, briefing *ai.Briefing) (*schema.Message, error)
}

// Sessions is the conversation store the orchestrator reads and appends to.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error)
	SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error)
}

// Deps 编排器依赖；除 Personas 外均可为空。
type Deps struct {
	Personas  persona.Store
	Sessions  Sessions
	AI        Responder
	Calendar  calendarService.Backend
	Tools     *tools.Registry
	Converter *timezone.Converter
	Location  *time.Location
	Now       func() time.Time
	Logger    *zap.Logger
}

// Request is one visitor message.
type Request struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
	// Timezone overrides the visitor zone; otherwise the session zone or a
	// zone named in the message is used.
	Timezone string `json:"timezone,omitempty"`
}

// Result is the reply plus everything learned while producing it.
type Result struct {
	Reply        string                     `json:"reply"`
	Intent       intent.Match               `json:"intent"`
	Agent        string                     `json:"agent"`
	Source       string                     `json:"source"`
	VisitorZone  string                     `json:"visitorZone,omitempty"`
	DateHint     *datehint.DateHint         `json:"dateHint,omitempty"`
	Day          *time.Time                 `json:"day,omitempty"`
	Conversion   *timezone.ConversionResult `json:"conversion,omitempty"`
	Slots        []calendarModel.TimeSlot   `json:"slots,omitempty"`
	Alternatives []calendarModel.TimeSlot   `json:"alternatives,omitempty"`
	Facts        []string                   `json:"facts,omitempty"`
}

// Turn is a prepared but not yet answered message.
type Turn struct {
	Request  Request
	Persona  persona.Persona
	History  []chat.Message
	Profile  agent.Profile
	Briefing *ai.Briefing
	Result   Result

	started       time.Time
	personaText   string
	userPersisted bool
}

// Service 把消息分类、补充上下文并交给对应的 agent 回复。
type Service struct {
	deps   Deps
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// New creates the orchestrator.
func New(deps Deps) *Service {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Converter == nil {
		if c, err := timezone.NewConverter(loc.String()); err == nil {
			deps.Converter = c
		}
	}
	return &Service{deps: deps, loc: loc, now: now, logger: logger.Named("orchestrator")}
}

// Reply answers one message end to end.
func (s *Service) Reply(ctx context.Context, req Request) (Result, error) {
	turn, err := s.Prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}

	reply, source := s.Generate(ctx, turn)
	return s.Complete(ctx, turn, reply, source)
}

// Prepare classifies the message and gathers the facts for its agent.
func (s *Service) Prepare(ctx context.Context, req Request) (*Turn, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	match := intent.Explain(req.Message)
	metrics.IntentClassified.WithLabelValues(string(match.Category)).Inc()
	profile := agent.ForIntent(match.Category)

	turn := &Turn{
		Request: req,
		Persona: s.defaultPersona(),
		Profile: profile,
		started: s.now(),
		Result: Result{
			Intent: match,
			Agent:  profile.Name,
		},
	}

	var session chat.Session
	if req.SessionID != "" && s.deps.Sessions != nil {
		var err error
		if session, err = s.deps.Sessions.GetSession(ctx, req.SessionID); err != nil {
			return nil, err
		}
		if p, ok := s.findPersona(session.PersonaID); ok {
			turn.Persona = p
		}
	}

	turn.Result.VisitorZone = s.visitorZone(req, session)
	s.resolveDay(turn, s.visitorNow(turn.Result.VisitorZone))
	s.convertTime(turn)

	g, gctx := errgroup.WithContext(ctx)
	if req.SessionID != "" && s.deps.Sessions != nil {
		g.Go(func() error {
			history, err := s.deps.Sessions.LoadTranscript(gctx, req.SessionID)
			if err != nil {
				return fmt.Errorf("load transcript: %w", err)
			}
			turn.History = history
			return nil
		})
	}
	switch match.Category {
	case intent.Booking:
		g.Go(func() error { s.lookupAlternatives(gctx, turn); return nil })
	case intent.Availability:
		g.Go(func() error { s.lookupSlots(gctx, turn); return nil })
	default:
		g.Go(func() error { s.readPersona(gctx, turn); return nil })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// A client may already have stored the message over REST.
	if n := len(turn.History); n > 0 {
		last := turn.History[n-1]
		if last.Sender == chat.SenderUser && last.Content == req.Message {
			turn.History = turn.History[:n-1]
			turn.userPersisted = true
		}
	}

	turn.Result.Facts = s.facts(turn)
	turn.Briefing = &ai.Briefing{Agent: profile, Intent: match.Category, Facts: turn.Result.Facts}
	return turn, nil
}

// Complete records the exchange and finalizes the result.
func (s *Service) Complete(ctx context.Context, turn *Turn, reply, source string) (Result, error) {
	result := turn.Result
	result.Reply = reply
	result.Source = source

	if turn.Request.SessionID != "" && s.deps.Sessions != nil {
		if !turn.userPersisted {
			if err := s.saveUser(ctx, turn, result); err != nil {
				return Result{}, err
			}
		}
		assistant := chat.Message{
			SessionID: turn.Request.SessionID,
			Sender:    chat.SenderAssistant,
			Content:   reply,
			Intent:    string(result.Intent.Category),
			Agent:     result.Agent,
		}
		if _, err := s.deps.Sessions.SaveMessage(ctx, assistant); err != nil {
			return Result{}, fmt.Errorf("save assistant message: %w", err)
		}
	}

	metrics.ReplyDuration.WithLabelValues(result.Agent, source).Observe(s.now().Sub(turn.started).Seconds())
	s.logger.Info("reply ready",
		zap.String("session", turn.Request.SessionID),
		zap.String("intent", string(result.Intent.Category)),
		zap.String("keyword", result.Intent.Keyword),
		zap.String("agent", result.Agent),
		zap.String("source", source))
	return result, nil
}

func (s *Service) saveUser(ctx context.Context, turn *Turn, result Result) error {
	user := chat.Message{
		SessionID: turn.Request.SessionID,
		Sender:    chat.SenderUser,
		Content:   turn.Request.Message,
		Intent:    string(result.Intent.Category),
		CreatedAt: turn.started.UTC(),
	}
	if _, err := s.deps.Sessions.SaveMessage(ctx, user); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	return nil
}

// Fallback is the deterministic reply used when no model is available.
func (s *Service) Fallback(turn *Turn) string {
	return fallbackReply(turn, s.loc)
}

// Generate asks the model for a reply and falls back to the deterministic one.
func (s *Service) Generate(ctx context.Context, turn *Turn) (string, string) {
	if s.deps.AI == nil {
		return s.Fallback(turn), SourceFallback
	}

	p := turn.Persona
	resp, err := s.deps.AI.GenerateResponse(ctx, turn.Request.SessionID, &p, turn.History, turn.Request.Message, turn.Briefing)
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		s.logger.Warn("ai reply unavailable, using fallback", zap.Error(err))
		return s.Fallback(turn), SourceFallback
	}
	return resp.Content, SourceAI
}

func (s *Service) defaultPersona() persona.Persona {
	if s.deps.Personas == nil {
		return persona.Seed()[0]
	}
	return s.deps.Personas.Default()
}

func (s *Service) findPersona(id string) (persona.Persona, bool) {
	if s.deps.Personas == nil || id == "" {
		return persona.Persona{}, false
	}
	return s.deps.Personas.FindByID(id)
}

func (s *Service) visitorZone(req Request, session chat.Session) string {
	if zone, ok := timezone.Normalize(req.Timezone); ok && zone != "" {
		return zone
	}
	if session.Timezone != "" {
		return session.Timezone
	}
	zone, _ := timezone.Resolve(req.Message)
	return zone
}

// visitorNow is the current time on the visitor's wall clock, so "today" and
// "tomorrow" are the visitor's days.
func (s *Service) visitorNow(zone string) time.Time {
	now := s.now().In(s.loc)
	if zone == "" {
		return now
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return now
	}
	return now.In(loc)
}

// sameDate is midnight in loc on d's calendar date.
func sameDate(d time.Time, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// resolveDay reads the date hint. Availability questions without one are about today.
func (s *Service) resolveDay(turn *Turn, ref time.Time) {
	hint, ok := datehint.Extract(turn.Request.Message)
	if !ok {
		if turn.Result.Intent.Category == intent.Availability {
			today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
			turn.Result.Day = &today
		}
		return
	}
	turn.Result.DateHint = &hint

	day, err := datehint.Resolve(hint, ref)
	if err != nil {
		s.logger.Debug("date hint unresolved", zap.String("hint", hint.Text), zap.Error(err))
		return
	}
	turn.Result.Day = &day
}

// convertTime projects a time the visitor mentioned in their own zone onto the operator zone.
// The date is taken as written, in the visitor's zone.
func (s *Service) convertTime(turn *Turn) {
	zone := turn.Result.VisitorZone
	if zone == "" || s.deps.Converter == nil {
		return
	}
	expr, ok := timezone.FindTimeExpression(turn.Request.Message)
	if !ok {
		return
	}

	var day time.Time
	if turn.Result.Day != nil {
		day = *turn.Result.Day
	}
	conversion, err := s.deps.Converter.Convert(expr, zone, day)
	metrics.TimeConversions.WithLabelValues(metrics.StatusOf(err)).Inc()
	if err != nil {
		s.logger.Debug("time conversion failed", zap.String("expr", expr), zap.String("zone", zone), zap.Error(err))
		return
	}
	turn.Result.Conversion = &conversion
}

func (s *Service) lookupAlternatives(ctx context.Context, turn *Turn) {
	if s.deps.Calendar == nil {
		return
	}

	var preferred time.Time
	switch {
	case turn.Result.Conversion != nil:
		preferred = turn.Result.Conversion.Instant.In(s.loc)
	case turn.Result.Day != nil:
		d := *turn.Result.Day
		preferred = time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, s.loc)
	default:
		return
	}

	slots, err := calendarService.NearestAlternatives(ctx, s.deps.Calendar, preferred, calendarService.DefaultAlternatives)
	if err != nil {
		s.logger.Warn("alternatives lookup failed", zap.Error(err))
		return
	}
	turn.Result.Alternatives = slots
}

func (s *Service) lookupSlots(ctx context.Context, turn *Turn) {
	if s.deps.Calendar == nil || turn.Result.Day == nil {
		return
	}
	slots, err := s.deps.Calendar.CheckAvailability(ctx, sameDate(*turn.Result.Day, s.loc))
	if err != nil {
		s.logger.Warn("availability lookup failed", zap.Error(err))
		return
	}
	turn.Result.Slots = slots
}

func (s *Service) readPersona(ctx context.Context, turn *Turn) {
	if s.deps.Tools == nil || !s.deps.Tools.Has(tools.PersonaToolName) {
		return
	}
	text, err := s.deps.Tools.Invoke(ctx, tools.PersonaToolName, "{}")
	if err != nil {
		return
	}
	turn.personaText = text
}

func (s *Service) facts(turn *Turn) []string {
	var facts []string
	r := turn.Result

	facts = append(facts, "Enrique's timezone: "+timezone.FriendlyName(s.loc.String()))
	if r.VisitorZone != "" {
		facts = append(facts, "Visitor timezone: "+timezone.FriendlyName(r.VisitorZone))
	}
	if r.Day != nil {
		facts = append(facts, "Requested day: "+r.Day.Format("Monday, January 2, 2006"))
	}
	if r.Conversion != nil {
		facts = append(facts, r.Conversion.Message)
	}
	for _, slot := range r.Slots {
		facts = append(facts, "Open slot: "+formatSlot(slot, s.loc))
	}
	for _, slot := range r.Alternatives {
		facts = append(facts, "Nearest open slot: "+formatSlot(slot, s.loc))
	}
	if turn.personaText != "" {
		facts = append(facts, "Persona notes:\n"+turn.personaText)
	}
	return facts
}
