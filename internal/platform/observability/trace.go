package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"finitefield.org/arcade/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

var tracer = otel.Tracer("finitefield.org/arcade/internal/platform/observability")

// TraceMiddleware continues the caller's Cloud Trace context when present,
// opens a server span per request, and echoes the span back in the response
// header.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := parseCloudTrace(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+pathOrRoot(r),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(pathOrRoot(r)),
					semconv.ServerAddress(r.Host),
				),
			)
			defer span.End()

			sc := span.SpanContext()
			ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{
				TraceID:   sc.TraceID().String(),
				SpanID:    sc.SpanID().String(),
				Sampled:   sc.IsSampled(),
				ProjectID: projectID,
			})
			w.Header().Set(cloudTraceHeader, formatCloudTrace(sc))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseCloudTrace reads TRACE_ID/SPAN_ID;o=FLAG. The span id is decimal; a
// 16 digit hex id is accepted as well because some proxies forward the W3C
// form.
func parseCloudTrace(header string) (trace.SpanContext, bool) {
	traceHex, rest, ok := strings.Cut(strings.TrimSpace(header), "/")
	if !ok {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(strings.TrimSpace(traceHex))
	if err != nil {
		return trace.SpanContext{}, false
	}

	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseCloudSpanID(strings.TrimSpace(spanPart))
	if !ok {
		return trace.SpanContext{}, false
	}

	var flags trace.TraceFlags
	if strings.TrimSpace(options) == "o=1" {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func parseCloudSpanID(value string) (trace.SpanID, bool) {
	if n, err := strconv.ParseUint(value, 10, 64); err == nil && n != 0 {
		var id trace.SpanID
		for i := 7; i >= 0; i-- {
			id[i] = byte(n)
			n >>= 8
		}
		return id, true
	}
	if len(value) == 16 {
		if id, err := trace.SpanIDFromHex(value); err == nil {
			return id, true
		}
	}
	return trace.SpanID{}, false
}

func formatCloudTrace(sc trace.SpanContext) string {
	if !sc.IsValid() {
		return ""
	}
	var span uint64
	for _, b := range sc.SpanID() {
		span = span<<8 | uint64(b)
	}
	sampled := 0
	if sc.IsSampled() {
		sampled = 1
	}
	return fmt.Sprintf("%s/%d;o=%d", sc.TraceID(), span, sampled)
}

// catalogAttributes describes which part of the catalog a request touched.
// Route parameters are only known once chi has matched the route.
func catalogAttributes(r *http.Request) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if category := chi.URLParam(r, "category"); category != "" {
		attrs = append(attrs, attribute.String("arcade.category", cleanField(category, 80)))
	}
	if gameID := chi.URLParam(r, "gameID"); gameID != "" {
		attrs = append(attrs, attribute.String("arcade.game_id", cleanField(gameID, 80)))
	}
	if q := r.URL.Query().Get("q"); q != "" {
		// Length only; search text stays out of traces.
		attrs = append(attrs, attribute.Int("arcade.search.query_length", len(q)))
	}
	if page := r.URL.Query().Get("page"); page != "" {
		if n, err := strconv.Atoi(page); err == nil {
			attrs = append(attrs, attribute.Int("arcade.page", n))
		}
	}
	return attrs
}

func pathOrRoot(r *http.Request) string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}
