package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/enrique/backend/internal/model/agent"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
)

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt creates a comprehensive system prompt for the persona
func (pm *PersonaPromptManager) BuildSystemPrompt(p *persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p)
	}

	return fmt.Sprintf(`%s

About %s:
- Title: %s
- Tone: %s
- Background: %s
- Expertise: %s

Personality hints:
- %s

Conversation rules:
- %s

Opening line for reference: %s`,
		template.SystemPrompt,
		p.Name,
		p.Title,
		p.Tone,
		p.Background,
		strings.Join(p.Expertise, ", "),
		strings.Join(template.PersonalityHints, "\n- "),
		strings.Join(template.ContextRules, "\n- "),
		p.OpeningLine,
	)
}

// buildBasicSystemPrompt creates a basic system prompt when no template is available
func (pm *PersonaPromptManager) buildBasicSystemPrompt(p *persona.Persona) string {
	return fmt.Sprintf(`You represent %s, %s.

- Tone: %s
- Hint: %s

Stay consistent with %s's voice in every reply.

Opening line: %s`,
		p.Name,
		p.Title,
		p.Tone,
		p.PromptHint,
		p.Name,
		p.OpeningLine,
	)
}

// BuildAgentPrompt describes the specialist currently answering.
func (pm *PersonaPromptManager) BuildAgentPrompt(profile agent.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are acting as the %s.\nGoal: %s\n\n%s", profile.Role, profile.Goal, profile.Backstory)
	if len(profile.Tools) > 0 {
		fmt.Fprintf(&b, "\n\nTools you may call, whose results may also appear below: %s.", strings.Join(profile.Tools, ", "))
	}
	return b.String()
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates[persona.DefaultID] = &PromptTemplate{
		SystemPrompt: "You are Enrique's personal assistant. You help visitors learn about Enrique " +
			"and book time with him. You are friendly, efficient and always focused on making " +
			"the scheduling process smooth and natural.",
		PersonalityHints: []string{
			"Be warm and concise; two or three short paragraphs at most",
			"Speak about Enrique in the third person",
			"Offer to book a meeting when the visitor wants to go deeper",
		},
		ContextRules: []string{
			"Never invent availability; only offer slots listed in the facts or returned by a tool",
			"Before booking, collect the visitor's name, email and a preferred time, then book with the booking tool when you have it",
			"Quote times with their timezone, converted to Enrique's timezone when the visitor names another one",
			"If a question is outside what you know about Enrique, say so and suggest a meeting",
		},
	}
}
