package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/enrique/backend/internal/model/chat"
)

const (
	sessionPrefix      = "session:"
	defaultSessionTTL  = 24 * time.Hour
	defaultMaxMessages = 10
	maxTxRetries       = 3
)

// RedisArchive stores each session as two keys: session:<id>:meta holds the
// session and session:<id> holds the last maxMessages messages as JSON.
type RedisArchive struct {
	rdb         *redis.Client
	ttl         time.Duration
	maxMessages int
}

// NewRedisArchive creates an archive; zero values pick 24h and 10 messages.
func NewRedisArchive(rdb *redis.Client, ttl time.Duration, maxMessages int) *RedisArchive {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &RedisArchive{rdb: rdb, ttl: ttl, maxMessages: maxMessages}
}

func historyKey(id string) string { return sessionPrefix + id }
func metaKey(id string) string    { return sessionPrefix + id + ":meta" }

// SaveSession writes the session metadata.
func (a *RedisArchive) SaveSession(ctx context.Context, session chat.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := a.rdb.Set(ctx, metaKey(session.ID), data, a.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// AppendMessage adds message to the archived history, trimming to the newest
// maxMessages and refreshing both TTLs.
func (a *RedisArchive) AppendMessage(ctx context.Context, message chat.Message) error {
	key := historyKey(message.SessionID)

	txn := func(tx *redis.Tx) error {
		history, err := decodeHistory(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}

		history = append(history, message)
		if len(history) > a.maxMessages {
			history = history[len(history)-a.maxMessages:]
		}
		data, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, a.ttl)
			pipe.Expire(ctx, metaKey(message.SessionID), a.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := a.rdb.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to append message: %w", redis.TxFailedErr)
}

// LoadSession reads the session and its archived history.
func (a *RedisArchive) LoadSession(ctx context.Context, id string) (chat.Session, []chat.Message, error) {
	data, err := a.rdb.Get(ctx, metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return chat.Session{}, nil, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session chat.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return chat.Session{}, nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	history, err := a.LoadHistory(ctx, id)
	if err != nil {
		return chat.Session{}, nil, err
	}
	return session, history, nil
}

// LoadHistory returns the archived messages, empty when none exist.
func (a *RedisArchive) LoadHistory(ctx context.Context, id string) ([]chat.Message, error) {
	return decodeHistory(a.rdb.Get(ctx, historyKey(id)).Bytes())
}

func decodeHistory(data []byte, err error) ([]chat.Message, error) {
	if errors.Is(err, redis.Nil) {
		return []chat.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var history []chat.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return history, nil
}
