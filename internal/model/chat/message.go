package chat

import "time"

// Message persists individual turns for audit/debug.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sender values understood by the prompt builder.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)
