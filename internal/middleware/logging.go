package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request through zap, in place of chi's
// stdlib-backed middleware.Logger.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return chimiddleware.RequestLogger(&zapFormatter{logger: logger.Named("http")})
}

type zapFormatter struct {
	logger *zap.Logger
}

func (f *zapFormatter) NewLogEntry(r *http.Request) chimiddleware.LogEntry {
	return &zapEntry{logger: f.logger.With(
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote", r.RemoteAddr),
	)}
}

type zapEntry struct {
	logger *zap.Logger
}

func (e *zapEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	fields := []zap.Field{
		zap.Int("status", status),
		zap.Int("bytes", bytes),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case status >= http.StatusInternalServerError:
		e.logger.Error("request", fields...)
	case status >= http.StatusBadRequest:
		e.logger.Warn("request", fields...)
	default:
		e.logger.Info("request", fields...)
	}
}

func (e *zapEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error("panic", zap.Any("panic", v), zap.ByteString("stack", stack))
}
