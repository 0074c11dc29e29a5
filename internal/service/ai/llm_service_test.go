package ai

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/enrique/backend/internal/analysis/intent"
	"github.com/zhouzirui/enrique/backend/internal/model/agent"
	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
)

type fakeChatModel struct {
	mu          sync.Mutex
	input       []*schema.Message
	temperature *float32
	reply       string
	err         error
}

func (f *fakeChatModel) record(input []*schema.Message, opts []model.Option) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = input
	f.temperature = model.GetCommonOptions(&model.Options{}, opts...).Temperature
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.record(input, opts)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(input, opts)
	if f.err != nil {
		return nil, f.err
	}
	parts := strings.SplitAfter(f.reply, " ")
	chunks := make([]*schema.Message, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, schema.AssistantMessage(part, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func newTestService(t *testing.T, fake *fakeChatModel, streaming bool) *Service {
	t.Helper()
	svc, err := NewServiceWithModel(context.Background(), fake, persona.NewMemoryStore(persona.Seed()), streaming, zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc
}

func TestGenerateResponseBuildsPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: "Enrique is free Thursday afternoon."}
	svc := newTestService(t, fake, false)

	enrique := persona.Seed()[0]
	history := []chat.Message{
		{Sender: chat.SenderUser, Content: "hi"},
		{Sender: chat.SenderAssistant, Content: "hello!"},
		{Sender: "system", Content: "ignored"},
	}
	briefing := &Briefing{
		Agent:  agent.Availability(),
		Intent: intent.Availability,
		Facts:  []string{"Open slots Thursday: 02:00 PM - 03:00 PM Eastern Time"},
	}

	resp, err := svc.GenerateResponse(context.Background(), "s1", &enrique, history, "is he free thursday?", briefing)
	require.NoError(t, err)
	assert.Equal(t, "Enrique is free Thursday afternoon.", resp.Content)

	require.Len(t, fake.input, 4)
	system := fake.input[0]
	assert.Equal(t, schema.System, system.Role)
	assert.Contains(t, system.Content, "Enrique's personal assistant")
	assert.Contains(t, system.Content, "Calendar Availability Specialist")
	assert.Contains(t, system.Content, "classified as: availability")
	assert.Contains(t, system.Content, "- Open slots Thursday")
	assert.Equal(t, schema.User, fake.input[1].Role)
	assert.Equal(t, schema.Assistant, fake.input[2].Role)
	assert.Equal(t, "is he free thursday?", fake.input[3].Content)

	require.NotNil(t, fake.temperature)
	assert.InDelta(t, 0.3, *fake.temperature, 1e-6)
}

func TestGenerateResponseWithoutBriefing(t *testing.T) {
	fake := &fakeChatModel{reply: "hi"}
	svc := newTestService(t, fake, false)

	_, err := svc.GenerateResponse(context.Background(), "s1", nil, nil, "hello", nil)
	require.NoError(t, err)
	require.Len(t, fake.input, 2)
	assert.Contains(t, fake.input[0].Content, "About Enrique:")
	assert.Nil(t, fake.temperature)
}

func TestGenerateResponseError(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("model down")}
	svc := newTestService(t, fake, false)

	_, err := svc.GenerateResponse(context.Background(), "s1", nil, nil, "hello", nil)
	assert.ErrorContains(t, err, "model down")
}

func TestHistoryLimit(t *testing.T) {
	messages := make([]chat.Message, 0, 15)
	for i := 0; i < 15; i++ {
		messages = append(messages, chat.Message{Sender: chat.SenderUser, Content: string(rune('a' + i))})
	}
	history := buildHistoryMessages(messages)
	require.Len(t, history, historyLimit)
	assert.Equal(t, "f", history[0].Content)
}

func TestStreamResponse(t *testing.T) {
	fake := &fakeChatModel{reply: "one two three"}

	_, err := newTestService(t, fake, false).StreamResponse(context.Background(), nil, nil, "hi", nil)
	assert.ErrorIs(t, err, ErrStreamingDisabled)

	stream, err := newTestService(t, fake, true).StreamResponse(context.Background(), nil, nil, "hi", &Briefing{Agent: agent.Scheduler()})
	require.NoError(t, err)
	defer stream.Close()

	var got strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got.WriteString(chunk.Content)
	}
	assert.Equal(t, "one two three", got.String())
	require.NotNil(t, fake.temperature)
	assert.InDelta(t, 0.2, *fake.temperature, 1e-6)
}

func TestBasicPromptForUnknownPersona(t *testing.T) {
	pm := NewPersonaPromptManager()
	prompt := pm.BuildSystemPrompt(&persona.Persona{ID: "other", Name: "Other", Title: "guest"})
	assert.True(t, strings.HasPrefix(prompt, "You represent Other, guest."))
}

type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	inputs  [][]*schema.Message
	tools   [][]*schema.ToolInfo
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	m.tools = append(m.tools, model.GetCommonOptions(&model.Options{}, opts...).Tools)
	if len(m.replies) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

type invocation struct {
	Name string
	Args string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []invocation
}

func (r *fakeRunner) Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{Name: "read_persona_information", Desc: "persona notes"},
		{Name: "check_calendar_availability", Desc: "open slots"},
		{Name: "book_meeting_slot", Desc: "book a slot"},
	}
}

func (r *fakeRunner) Invoke(_ context.Context, name, args string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invocation{Name: name, Args: args})
	if name == "check_calendar_availability" {
		return "", errors.New("calendar offline")
	}
	return "Booking ID: ENR-20250116140000-ABC123", nil
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func newToolService(t *testing.T, m *scriptedModel, runner ToolRunner, streaming bool) *Service {
	t.Helper()
	svc, err := NewServiceWithModel(context.Background(), m, persona.NewMemoryStore(persona.Seed()), streaming,
		zaptest.NewLogger(t), WithToolRunner(runner))
	require.NoError(t, err)
	return svc
}

func toolNames(infos []*schema.ToolInfo) []string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

func TestGenerateResponseRunsAgentTools(t *testing.T) {
	args := `{"name":"Ada","email":"ada@example.com","start":"tomorrow 2pm"}`
	m := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{toolCall("call-1", "book_meeting_slot", args)}),
		schema.AssistantMessage("You're booked for Thursday at 2 PM.", nil),
	}}
	runner := &fakeRunner{}
	svc := newToolService(t, m, runner, false)

	resp, err := svc.GenerateResponse(context.Background(), "s1", nil, nil, "I'm Ada, ada@example.com, tomorrow 2pm please",
		&Briefing{Agent: agent.Scheduler(), Intent: intent.Booking})
	require.NoError(t, err)
	assert.Equal(t, "You're booked for Thursday at 2 PM.", resp.Content)

	assert.Equal(t, []invocation{{Name: "book_meeting_slot", Args: args}}, runner.calls)

	require.Len(t, m.inputs, 2)
	assert.ElementsMatch(t, []string{"book_meeting_slot", "check_calendar_availability"}, toolNames(m.tools[0]))

	second := m.inputs[1]
	require.Len(t, second, 4)
	assert.Equal(t, schema.Assistant, second[2].Role)
	assert.Len(t, second[2].ToolCalls, 1)
	assert.Equal(t, schema.Tool, second[3].Role)
	assert.Equal(t, "call-1", second[3].ToolCallID)
	assert.Equal(t, "Booking ID: ENR-20250116140000-ABC123", second[3].Content)
}

func TestGenerateResponseReportsToolFailuresToModel(t *testing.T) {
	m := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("call-1", "check_calendar_availability", `{"date":"tomorrow"}`),
			toolCall("call-2", "read_persona_information", `{}`),
		}),
		schema.AssistantMessage("The calendar is unreachable right now.", nil),
	}}
	runner := &fakeRunner{}
	svc := newToolService(t, m, runner, false)

	resp, err := svc.GenerateResponse(context.Background(), "s1", nil, nil, "book me tomorrow",
		&Briefing{Agent: agent.Scheduler()})
	require.NoError(t, err)
	assert.Equal(t, "The calendar is unreachable right now.", resp.Content)

	// Only the scheduler's own tools are run.
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "check_calendar_availability", runner.calls[0].Name)

	second := m.inputs[1]
	require.Len(t, second, 5)
	assert.Equal(t, "Error: calendar offline", second[3].Content)
	assert.Equal(t, "call-2", second[4].ToolCallID)
	assert.Contains(t, second[4].Content, "not available to this agent")
}

func TestGenerateResponseStopsRunawayToolLoop(t *testing.T) {
	m := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{toolCall("again", "check_calendar_availability", `{"date":"today"}`)}),
	}}
	svc := newToolService(t, m, &fakeRunner{}, false)

	_, err := svc.GenerateResponse(context.Background(), "s1", nil, nil, "free today?", &Briefing{Agent: agent.Availability()})
	assert.ErrorIs(t, err, ErrToolLoop)
	assert.Len(t, m.inputs, maxToolRounds)
}

func TestAgentsWithoutToolsUseChain(t *testing.T) {
	m := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("Hello!", nil)}}
	svc := newToolService(t, m, &fakeRunner{}, false)

	resp, err := svc.GenerateResponse(context.Background(), "s1", nil, nil, "hi", &Briefing{Agent: agent.Chat()})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", resp.Content)
	require.Len(t, m.tools, 1)
	assert.Empty(t, m.tools[0])
}

func TestStreamResponseWithToolsSendsFinalReply(t *testing.T) {
	m := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{toolCall("call-1", "book_meeting_slot", `{}`)}),
		schema.AssistantMessage("Booked.", nil),
	}}
	svc := newToolService(t, m, &fakeRunner{}, true)

	stream, err := svc.StreamResponse(context.Background(), nil, nil, "book it", &Briefing{Agent: agent.Scheduler()})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Booked.", chunk.Content)
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
