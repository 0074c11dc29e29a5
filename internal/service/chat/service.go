package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/model/chat"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Archive 持久化会话，使服务重启后仍能恢复。
type Archive interface {
	SaveSession(ctx context.Context, session chat.Session) error
	AppendMessage(ctx context.Context, message chat.Message) error
	// LoadSession returns ErrSessionNotFound when nothing is archived under id.
	LoadSession(ctx context.Context, id string) (chat.Session, []chat.Message, error)
}

// Option configures the Service.
type Option func(*Service)

// WithArchive mirrors sessions and messages into archive.
func WithArchive(archive Archive) Option {
	return func(s *Service) { s.archive = archive }
}

// WithLogger sets the logger used for archive failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.Named("chat")
		}
	}
}

// Service encapsulates conversation state management.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	archive  Archive
	logger   *zap.Logger
}

// NewService bootstraps the in-memory chat service.
func NewService(opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions an anonymous session bound to a persona.
func (s *Service) CreateSession(ctx context.Context, personaID string) (chat.Session, error) {
	return s.CreateSessionInZone(ctx, personaID, "")
}

// CreateSessionInZone is CreateSession with the visitor's IANA timezone attached.
func (s *Service) CreateSessionInZone(ctx context.Context, personaID, zone string) (chat.Session, error) {
	if personaID == "" {
		return chat.Session{}, ErrPersonaRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		Timezone:  zone,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.SaveSession(ctx, session); err != nil {
			s.logger.Warn("archive session failed", zap.String("session", session.ID), zap.Error(err))
		}
	}

	return session, nil
}

// SaveMessage appends a message to the session history and returns it with
// its assigned id.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}
	if err := s.ensureLoaded(ctx, message.SessionID); err != nil {
		return chat.Message{}, err
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	if _, ok := s.sessions[message.SessionID]; !ok {
		s.mu.Unlock()
		return chat.Message{}, ErrSessionNotFound
	}
	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.AppendMessage(ctx, message); err != nil {
			s.logger.Warn("archive message failed", zap.String("session", message.SessionID), zap.Error(err))
		}
	}
	return message, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	if err := s.ensureLoaded(ctx, sessionID); err != nil {
		return chat.Session{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if err := s.ensureLoaded(ctx, sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// ensureLoaded restores an archived session into memory on first access.
func (s *Service) ensureLoaded(ctx context.Context, sessionID string) error {
	s.mu.RLock()
	_, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return nil
	}
	if s.archive == nil || sessionID == "" {
		return ErrSessionNotFound
	}

	session, messages, err := s.archive.LoadSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.logger.Warn("restore session failed", zap.String("session", sessionID), zap.Error(err))
		}
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = session
		s.messages[sessionID] = append(make([]chat.Message, 0, len(messages)+16), messages...)
		s.logger.Info("session restored from archive", zap.String("session", sessionID), zap.Int("messages", len(messages)))
	}
	return nil
}
