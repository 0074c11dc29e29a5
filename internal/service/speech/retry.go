package speech

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAttempts = 3
	baseDelay       = 800 * time.Millisecond
	jitterStep      = 100 * time.Millisecond
)

// backoff 第 n 次失败后的等待时间：0.8s·2^(n-1) + 0.1s·n。
func backoff(attempt int) time.Duration {
	return baseDelay*time.Duration(1<<(attempt-1)) + jitterStep*time.Duration(attempt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetries runs fn up to attempts times and reports how many attempts were made.
func withRetries[T any](ctx context.Context, s *Service, operation string, fn func(context.Context) (T, error)) (T, int, error) {
	attempts := s.cfg.MaxRetries
	if attempts < 1 {
		attempts = defaultAttempts
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := s.attemptContext(ctx)
		result, err := fn(callCtx)
		cancel()
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		s.logger.Warn("speech call failed",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", attempts),
			zap.Error(err))

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, attempt, err
		}
		if attempt < attempts {
			if err := s.sleep(ctx, backoff(attempt)); err != nil {
				return zero, attempt, err
			}
		}
	}
	return zero, attempts, lastErr
}

func (s *Service) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Second)
}
