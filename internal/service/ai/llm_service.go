package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/analysis/intent"
	"github.com/zhouzirui/enrique/backend/internal/config"
	"github.com/zhouzirui/enrique/backend/internal/model/agent"
	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
)

var (
	// ErrStreamingDisabled is returned by StreamResponse when streaming is off.
	ErrStreamingDisabled = errors.New("streaming disabled in configuration")
	// ErrToolLoop 模型在限定轮数内仍在请求工具。
	ErrToolLoop = errors.New("model kept calling tools")
)

const (
	historyLimit  = 10
	maxToolRounds = 4
)

// ToolRunner runs the tools a model asks for.
type ToolRunner interface {
	Infos() []*schema.ToolInfo
	Invoke(ctx context.Context, name, argumentsInJSON string) (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithToolRunner lets each agent call the tools listed in its profile.
func WithToolRunner(runner ToolRunner) Option {
	return func(s *Service) {
		s.tools = runner
	}
}

// Briefing 是编排器交给模型的上下文：负责的 agent、意图以及已查到的事实。
type Briefing struct {
	Agent  agent.Profile
	Intent intent.Category
	Facts  []string
}

// Service encapsulates AI-powered chat functionality
type Service struct {
	chatModel model.BaseChatModel
	personas  persona.Store
	streaming bool
	prompts   *PersonaPromptManager
	logger    *zap.Logger
	template  prompt.ChatTemplate
	chain     compose.Runnable[map[string]any, *schema.Message]
	tools     ToolRunner
}

// NewService creates a new AI service instance backed by the configured ark model.
func NewService(ctx context.Context, personas persona.Store, cfg config.AIConfig, logger *zap.Logger, opts ...Option) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, personas, cfg.StreamResponse, logger, opts...)
}

// NewServiceWithModel builds the chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, personas persona.Store, streaming bool, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	s := &Service{
		chatModel: chatModel,
		personas:  personas,
		streaming: streaming,
		prompts:   NewPersonaPromptManager(),
		logger:    logger.Named("ai"),
		template:  promptTemplate,
		chain:     runnable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.streaming
}

// GenerateResponse generates the assistant reply for one turn.
func (s *Service) GenerateResponse(ctx context.Context, sessionID string, p *persona.Persona, messages []chat.Message, userMessage string, briefing *Briefing) (*schema.Message, error) {
	input := s.buildChainInput(p, messages, userMessage, briefing)

	var (
		response *schema.Message
		err      error
	)
	if infos := s.agentTools(briefing); len(infos) > 0 {
		response, err = s.runWithTools(ctx, input, briefing, infos)
	} else {
		response, err = s.chain.Invoke(ctx, input, s.callOptions(briefing)...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Info("generated response",
		zap.String("session", sessionID),
		zap.String("persona", personaID(p)),
		zap.String("agent", agentName(briefing)),
		zap.Int("length", len(response.Content)))
	return response, nil
}

// StreamResponse streams AI response chunks via the configured chain.
func (s *Service) StreamResponse(ctx context.Context, p *persona.Persona, messages []chat.Message, userMessage string, briefing *Briefing) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, ErrStreamingDisabled
	}

	// 工具调用需要完整的中间结果，这类 agent 一次性返回最终回复。
	if len(s.agentTools(briefing)) > 0 {
		response, err := s.GenerateResponse(ctx, "", p, messages, userMessage, briefing)
		if err != nil {
			return nil, err
		}
		return schema.StreamReaderFromArray([]*schema.Message{response}), nil
	}

	input := s.buildChainInput(p, messages, userMessage, briefing)

	stream, err := s.chain.Stream(ctx, input, s.callOptions(briefing)...)
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}

	return stream, nil
}

// GetChatModel 返回底层的聊天模型
func (s *Service) GetChatModel() model.BaseChatModel {
	return s.chatModel
}

// callOptions applies the agent's sampling temperature to the model node.
func (s *Service) callOptions(briefing *Briefing) []compose.Option {
	opts := modelOptions(briefing)
	if len(opts) == 0 {
		return nil
	}
	return []compose.Option{compose.WithChatModelOption(opts...)}
}

func modelOptions(briefing *Briefing) []model.Option {
	if briefing == nil || briefing.Agent.Temperature <= 0 {
		return nil
	}
	return []model.Option{model.WithTemperature(briefing.Agent.Temperature)}
}

// agentTools returns the registered tools the briefed agent may call.
func (s *Service) agentTools(briefing *Briefing) []*schema.ToolInfo {
	if s.tools == nil || briefing == nil || len(briefing.Agent.Tools) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(briefing.Agent.Tools))
	for _, name := range briefing.Agent.Tools {
		wanted[name] = struct{}{}
	}
	var infos []*schema.ToolInfo
	for _, info := range s.tools.Infos() {
		if _, ok := wanted[info.Name]; ok {
			infos = append(infos, info)
		}
	}
	return infos
}

// runWithTools lets the model call tools until it answers in plain text.
// Tools are passed per call so concurrent turns never share bound tools.
func (s *Service) runWithTools(ctx context.Context, input map[string]any, briefing *Briefing, infos []*schema.ToolInfo) (*schema.Message, error) {
	messages, err := s.template.Format(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}

	allowed := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		allowed[info.Name] = struct{}{}
	}
	opts := append(modelOptions(briefing), model.WithTools(infos))

	for round := 0; round < maxToolRounds; round++ {
		resp, err := s.chatModel.Generate(ctx, messages, opts...)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp, nil
		}

		messages = append(messages, resp)
		for _, call := range resp.ToolCalls {
			messages = append(messages, schema.ToolMessage(s.callTool(ctx, allowed, call), call.ID))
		}
	}
	return nil, fmt.Errorf("%w: %d rounds", ErrToolLoop, maxToolRounds)
}

// callTool returns the tool output, or the error text for the model to read.
func (s *Service) callTool(ctx context.Context, allowed map[string]struct{}, call schema.ToolCall) string {
	name := call.Function.Name
	if _, ok := allowed[name]; !ok {
		s.logger.Warn("model requested unavailable tool", zap.String("tool", name))
		return fmt.Sprintf("Error: tool %q is not available to this agent", name)
	}

	out, err := s.tools.Invoke(ctx, name, call.Function.Arguments)
	if err != nil {
		return "Error: " + err.Error()
	}
	s.logger.Info("model called tool", zap.String("tool", name))
	return out
}

func (s *Service) buildChainInput(p *persona.Persona, messages []chat.Message, userMessage string, briefing *Briefing) map[string]any {
	if p == nil {
		fallback := s.defaultPersona()
		p = &fallback
	}
	return map[string]any{
		"system":  s.buildSystemPrompt(p, briefing),
		"history": buildHistoryMessages(messages),
		"query":   userMessage,
	}
}

func (s *Service) buildSystemPrompt(p *persona.Persona, briefing *Briefing) string {
	base := s.prompts.BuildSystemPrompt(p)
	if briefing == nil {
		return base
	}

	var builder strings.Builder
	builder.WriteString(base)
	if briefing.Agent.Name != "" {
		builder.WriteString("\n\n")
		builder.WriteString(s.prompts.BuildAgentPrompt(briefing.Agent))
	}
	if briefing.Intent != "" {
		builder.WriteString("\n\nThe visitor's message was classified as: ")
		builder.WriteString(string(briefing.Intent))
		builder.WriteString(".")
	}
	if len(briefing.Facts) > 0 {
		builder.WriteString("\n\nFacts gathered for this reply (use them, do not invent others):")
		for _, fact := range briefing.Facts {
			builder.WriteString("\n- ")
			builder.WriteString(fact)
		}
	}
	return builder.String()
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}

func agentName(briefing *Briefing) string {
	if briefing == nil {
		return ""
	}
	return briefing.Agent.Name
}

func (s *Service) defaultPersona() persona.Persona {
	if s.personas == nil {
		return persona.Seed()[0]
	}
	return s.personas.Default()
}

func personaID(p *persona.Persona) string {
	if p == nil {
		return persona.DefaultID
	}
	return p.ID
}
