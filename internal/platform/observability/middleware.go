package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"finitefield.org/arcade/internal/platform/httpx"
	"finitefield.org/arcade/internal/platform/requestctx"
)

// InjectLoggerMiddleware makes logger the request logger for everything downstream.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// UserIDFunc reports the id of the signed-in user, empty when anonymous.
type UserIDFunc func() string

// RequestLoggerMiddleware logs each request twice, on arrival and on
// completion. The completion entry and the server span carry the matched
// route and the catalog coordinates (category, game, page) of the request.
func RequestLoggerMiddleware(currentUser UserIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := requestLogger(r, currentUser)
			r = r.WithContext(requestctx.WithLogger(r.Context(), logger))
			logger.Info("request started", zap.String("path", cleanField(pathOrRoot(r), 180)))

			recorder := newResponseRecorder(w)
			start := time.Now()
			returned := false
			defer func() {
				// A panic skips the assignment below; RecoveryMiddleware answers 500.
				status := recorder.Status()
				if !returned && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				finishRequest(r, logger, status, time.Since(start), recorder.BytesWritten())
			}()

			next.ServeHTTP(recorder, r)
			returned = true
		})
	}
}

func requestLogger(r *http.Request, currentUser UserIDFunc) *zap.Logger {
	ctx := r.Context()
	info, _ := requestctx.Trace(ctx)

	userID := ""
	if currentUser != nil {
		userID = cleanField(currentUser(), 64)
	}
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("method", cleanField(r.Method, 10)),
		zap.String("trace_id", info.TraceID),
		zap.String("user_id", userID),
	}
	if info.ProjectID != "" && info.TraceID != "" {
		fields = append(fields, zap.String("logging.googleapis.com/trace", "projects/"+info.ProjectID+"/traces/"+info.TraceID))
	}
	if ip := remoteIP(r); ip != "" {
		fields = append(fields, zap.String("remote_ip", ip))
	}
	return requestctx.Logger(ctx).With(fields...)
}

func finishRequest(r *http.Request, logger *zap.Logger, status int, latency time.Duration, bytes int64) {
	route := routePattern(r)
	attrs := append(catalogAttributes(r),
		semconv.HTTPRoute(route),
		semconv.HTTPResponseStatusCode(status),
	)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attrs...)
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	level := zapcore.InfoLevel
	switch {
	case status >= http.StatusInternalServerError:
		level = zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		level = zapcore.WarnLevel
	}
	ce := logger.Check(level, "request completed")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("latency", latency),
		zap.Int64("bytes", bytes),
	}
	for _, kv := range catalogAttributes(r) {
		fields = append(fields, zap.Any(string(kv.Key), kv.Value.AsInterface()))
	}
	ce.Write(fields...)
}

// RecoveryMiddleware turns a handler panic into a logged stack trace and a
// JSON 500.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				requestctx.LoggerOr(r.Context(), fallback).Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				httpx.WriteError(r.Context(), w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routePattern prefers the chi pattern so that /categories/{category}/games
// aggregates across categories.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return cleanField(pattern, 180)
		}
	}
	return cleanField(pathOrRoot(r), 180)
}

func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return cleanField(addr, 64)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *responseRecorder) Status() int { return r.status }

func (r *responseRecorder) BytesWritten() int64 { return r.bytes }

// Hijack lets the live search websocket upgrade through the recorder.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observability: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *responseRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
