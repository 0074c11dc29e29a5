package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/enrique/backend/internal/analysis/intent"
	"github.com/zhouzirui/enrique/backend/internal/model/agent"
	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	"github.com/zhouzirui/enrique/backend/internal/service/ai"
	calendarService "github.com/zhouzirui/enrique/backend/internal/service/calendar"
	chatService "github.com/zhouzirui/enrique/backend/internal/service/chat"
	"github.com/zhouzirui/enrique/backend/internal/service/tools"
)

type fakeResponder struct {
	mu       sync.Mutex
	briefing *ai.Briefing
	history  []chat.Message
	reply    string
	err      error
}

func (f *fakeResponder) GenerateResponse(_ context.Context, _ string, _ *persona.Persona, messages []chat.Message, _ string, briefing *ai.Briefing) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.briefing = briefing
	f.history = messages
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func newTestService(t *testing.T, deps Deps) *Service {
	t.Helper()
	loc := newYork(t)
	wednesday := time.Date(2025, time.January, 15, 10, 0, 0, 0, loc)

	deps.Location = loc
	deps.Now = func() time.Time { return wednesday }
	deps.Logger = zaptest.NewLogger(t)
	if deps.Personas == nil {
		deps.Personas = persona.NewMemoryStore(persona.Seed())
	}
	if deps.Calendar == nil {
		deps.Calendar = calendarService.NewOfficeHoursBackend(loc, "https://calendly.com/enrique/30min")
	}
	return New(deps)
}

func TestReplyBookingConvertsTimeAndOffersAlternatives(t *testing.T) {
	responder := &fakeResponder{reply: "Thursday at 4:30 PM works."}
	svc := newTestService(t, Deps{AI: responder})

	result, err := svc.Reply(context.Background(), Request{Message: "Can we book a meeting tomorrow at 2pm PST?"})
	require.NoError(t, err)

	assert.Equal(t, intent.Booking, result.Intent.Category)
	assert.Equal(t, agent.SchedulerName, result.Agent)
	assert.Equal(t, SourceAI, result.Source)
	assert.Equal(t, "Thursday at 4:30 PM works.", result.Reply)
	assert.Equal(t, "America/Los_Angeles", result.VisitorZone)

	require.NotNil(t, result.Conversion)
	assert.Equal(t, "I'll convert 2pm Pacific Time to 05:00 PM Eastern Time.", result.Conversion.Message)

	require.Len(t, result.Alternatives, 3)
	loc := newYork(t)
	assert.Equal(t, time.Date(2025, time.January, 16, 16, 30, 0, 0, loc), result.Alternatives[0].Start.In(loc))
	assert.Equal(t, time.Date(2025, time.January, 16, 16, 0, 0, 0, loc), result.Alternatives[1].Start.In(loc))

	require.NotNil(t, responder.briefing)
	assert.Equal(t, agent.SchedulerName, responder.briefing.Agent.Name)
	assert.Contains(t, responder.briefing.Facts, result.Conversion.Message)
	assert.Contains(t, responder.briefing.Facts, "Nearest open slot: Thursday, January 16 at 04:30 PM Eastern Time")
}

func TestReplyBookingFallback(t *testing.T) {
	svc := newTestService(t, Deps{})

	result, err := svc.Reply(context.Background(), Request{Message: "I'd like to schedule a call tomorrow"})
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, result.Source)
	assert.Nil(t, result.Conversion)
	assert.Contains(t, result.Reply, "Here are the closest open slots:\n- Thursday, January 16 at 09:00 AM Eastern Time")
	assert.Contains(t, result.Reply, BookingPrompt)
}

func TestReplyAvailabilityFallbackListsSlots(t *testing.T) {
	svc := newTestService(t, Deps{})

	result, err := svc.Reply(context.Background(), Request{Message: "Is he free on 2025-01-17?"})
	require.NoError(t, err)

	assert.Equal(t, intent.Availability, result.Intent.Category)
	assert.Equal(t, agent.AvailabilityName, result.Agent)
	assert.Len(t, result.Slots, 16)
	assert.Contains(t, result.Reply, "Available slots for Friday, January 17 (Eastern Time):\n- 09:00 AM - 09:30 AM")
}

func TestReplyAvailabilityDefaultsToToday(t *testing.T) {
	svc := newTestService(t, Deps{})

	result, err := svc.Reply(context.Background(), Request{Message: "what times are open?"})
	require.NoError(t, err)

	require.NotNil(t, result.Day)
	assert.Equal(t, 15, result.Day.Day())
	assert.NotEmpty(t, result.Slots)
}

func TestReplyAvailabilityWeekendIsFlexible(t *testing.T) {
	svc := newTestService(t, Deps{})

	result, err := svc.Reply(context.Background(), Request{Message: "are you available saturday?"})
	require.NoError(t, err)

	assert.Empty(t, result.Slots)
	assert.Equal(t, tools.FlexibleCalendar, result.Reply)
}

func TestReplyPersonaRecordsTranscript(t *testing.T) {
	dir := t.TempDir()
	personaFile := filepath.Join(dir, "persona.md")
	require.NoError(t, os.WriteFile(personaFile, []byte("# Enrique\nLoves distributed systems."), 0o600))

	ctx := context.Background()
	registry, err := tools.NewRegistry(ctx, zaptest.NewLogger(t), tools.NewPersonaTool(personaFile))
	require.NoError(t, err)

	sessions := chatService.NewService()
	session, err := sessions.CreateSession(ctx, persona.DefaultID)
	require.NoError(t, err)

	responder := &fakeResponder{reply: "Enrique studies at AI Studio."}
	svc := newTestService(t, Deps{AI: responder, Sessions: sessions, Tools: registry})

	result, err := svc.Reply(ctx, Request{SessionID: session.ID, Message: "Tell me about Enrique"})
	require.NoError(t, err)
	assert.Equal(t, agent.PersonaName, result.Agent)
	assert.Contains(t, result.Facts, "Persona notes:\n# Enrique\nLoves distributed systems.")

	transcript, err := sessions.LoadTranscript(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, chat.SenderUser, transcript[0].Sender)
	assert.Equal(t, "Tell me about Enrique", transcript[0].Content)
	assert.Equal(t, string(intent.Persona), transcript[0].Intent)
	assert.Equal(t, chat.SenderAssistant, transcript[1].Sender)
	assert.Equal(t, agent.PersonaName, transcript[1].Agent)

	// The next turn sees the previous exchange.
	_, err = svc.Reply(ctx, Request{SessionID: session.ID, Message: "hello again"})
	require.NoError(t, err)
	assert.Len(t, responder.history, 2)
}

func TestReplyUsesSessionTimezone(t *testing.T) {
	ctx := context.Background()
	sessions := chatService.NewService()
	session, err := sessions.CreateSessionInZone(ctx, persona.DefaultID, "America/Chicago")
	require.NoError(t, err)

	svc := newTestService(t, Deps{Sessions: sessions})
	result, err := svc.Reply(ctx, Request{SessionID: session.ID, Message: "book a meeting tomorrow at 3pm"})
	require.NoError(t, err)

	assert.Equal(t, "America/Chicago", result.VisitorZone)
	require.NotNil(t, result.Conversion)
	assert.Equal(t, "I'll convert 3pm Central Time to 04:00 PM Eastern Time.", result.Conversion.Message)
}

func TestReplyAcceptsAbbreviatedRequestTimezone(t *testing.T) {
	svc := newTestService(t, Deps{})

	result, err := svc.Reply(context.Background(), Request{Message: "book a meeting tomorrow at 3pm", Timezone: "PST"})
	require.NoError(t, err)

	assert.Equal(t, "America/Los_Angeles", result.VisitorZone)
	require.NotNil(t, result.Conversion)
	assert.Equal(t, "I'll convert 3pm Pacific Time to 06:00 PM Eastern Time.", result.Conversion.Message)
}

func TestReplyResolvesDatesOnVisitorClock(t *testing.T) {
	loc := newYork(t)
	svc := newTestService(t, Deps{})
	// 22:00 on Wednesday in Los Angeles.
	svc.now = func() time.Time { return time.Date(2025, time.January, 16, 1, 0, 0, 0, loc) }

	result, err := svc.Reply(context.Background(), Request{Message: "Can we book a meeting tomorrow at 2pm PST?"})
	require.NoError(t, err)

	require.NotNil(t, result.Day)
	assert.Equal(t, time.January, result.Day.Month())
	assert.Equal(t, 16, result.Day.Day())
	require.NotNil(t, result.Conversion)
	assert.Equal(t, time.Date(2025, time.January, 16, 17, 0, 0, 0, loc), result.Conversion.Instant.In(loc))
}

func TestReplyAvailabilityTodayIsVisitorsToday(t *testing.T) {
	loc := newYork(t)
	svc := newTestService(t, Deps{})
	// Already Thursday in UTC.
	svc.now = func() time.Time { return time.Date(2025, time.January, 15, 22, 0, 0, 0, loc) }

	result, err := svc.Reply(context.Background(), Request{Message: "what times are open today?", Timezone: "UTC"})
	require.NoError(t, err)

	assert.Equal(t, intent.Availability, result.Intent.Category)
	require.NotEmpty(t, result.Slots)
	assert.Equal(t, time.Date(2025, time.January, 16, 9, 0, 0, 0, loc), result.Slots[0].Start.In(loc))
	assert.Contains(t, result.Reply, "Available slots for Thursday, January 16 (Eastern Time):")
}

func TestReplyFallsBackWhenModelFails(t *testing.T) {
	svc := newTestService(t, Deps{AI: &fakeResponder{err: errors.New("model down")}})

	result, err := svc.Reply(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, intent.General, result.Intent.Category)
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, persona.Seed()[0].OpeningLine, result.Reply)
}

func TestReplyErrors(t *testing.T) {
	svc := newTestService(t, Deps{Sessions: chatService.NewService()})

	_, err := svc.Reply(context.Background(), Request{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Reply(context.Background(), Request{SessionID: "missing", Message: "hi"})
	assert.ErrorIs(t, err, chatService.ErrSessionNotFound)
}

func TestReplySkipsMessageAlreadyStored(t *testing.T) {
	ctx := context.Background()
	sessions := chatService.NewService()
	session, err := sessions.CreateSession(ctx, persona.DefaultID)
	require.NoError(t, err)
	_, err = sessions.SaveMessage(ctx, chat.Message{SessionID: session.ID, Sender: chat.SenderUser, Content: "hi there"})
	require.NoError(t, err)

	responder := &fakeResponder{reply: "Hello!"}
	svc := newTestService(t, Deps{AI: responder, Sessions: sessions})
	_, err = svc.Reply(ctx, Request{SessionID: session.ID, Message: "hi there"})
	require.NoError(t, err)

	assert.Empty(t, responder.history)
	transcript, err := sessions.LoadTranscript(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, transcript, 2)
}
