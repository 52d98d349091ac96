package logging

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// scope holds the request logger. Middleware further down the chain enriches it in
// place, so the completion line carries tenant and actor fields resolved after it began.
type scope struct {
	mu     sync.Mutex
	logger *zap.Logger
}

func (s *scope) current() *zap.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// WithLogger starts a new logging scope on the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &scope{logger: logger})
}

// FromContext retrieves the scoped logger, if present.
func FromContext(ctx context.Context) (*zap.Logger, bool) {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok || s == nil {
		return nil, false
	}
	return s.current(), true
}

// AddFields attaches fields to the logger scope of ctx. It reports false when ctx carries
// no scope.
func AddFields(ctx context.Context, fields ...zap.Field) bool {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok || s == nil {
		return false
	}
	s.mu.Lock()
	s.logger = s.logger.With(fields...)
	s.mu.Unlock()
	return true
}

// FromRequest returns the request-scoped logger, or fallback outside a scope.
func FromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := FromContext(r.Context()); ok {
		return logger
	}
	return fallback
}

// RequestLogger opens a logging scope per request and writes one completion line with the
// matched route pattern, so record and field ids stay out of the route dimension.
// Server errors complete at error level.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger := base.With(
				zap.String("http_method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if requestID := middleware.GetReqID(r.Context()); requestID != "" {
				logger = logger.With(zap.String("request_id", requestID))
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := WithLogger(r.Context(), logger)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := zapcore.InfoLevel
			if status >= http.StatusInternalServerError {
				level = zapcore.ErrorLevel
			}

			final, _ := FromContext(ctx)
			fields := []zap.Field{
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				fields = append(fields, zap.String("route", rc.RoutePattern()))
			}
			final.Log(level, "request completed", fields...)
		})
	}
}
