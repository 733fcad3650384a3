package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/arcade/internal/platform/requestctx"
)

func TestRequestLoggerMiddlewareLogsCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(
		RequestLoggerMiddleware(func() string { return "uid-1" })(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("short and stout"))
			}),
		),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/home", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected one completion log, got %d", len(completed))
	}
	entry := completed[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 4xx, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("expected status field 418, got %v", fields["status"])
	}
	if fields["user_id"] != "uid-1" {
		t.Fatalf("expected user_id uid-1, got %v", fields["user_id"])
	}
	if fields["bytes"] != int64(len("short and stout")) {
		t.Fatalf("unexpected bytes field %v", fields["bytes"])
	}
}

func TestRequestLoggerMiddlewareRecordsCatalogCoordinates(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware(nil))
	router.Get("/api/v1/categories/{category}/games", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories/Action/games?q=zombie&page=2", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected one completion log, got %d", len(completed))
	}
	fields := completed[0].ContextMap()
	if fields["route"] != "/api/v1/categories/{category}/games" {
		t.Fatalf("expected chi route pattern, got %v", fields["route"])
	}
	if fields["arcade.category"] != "Action" {
		t.Fatalf("expected category field, got %v", fields["arcade.category"])
	}
	if fields["arcade.search.query_length"] != int64(len("zombie")) {
		t.Fatalf("expected query length field, got %v", fields["arcade.search.query_length"])
	}
	if fields["arcade.page"] != int64(2) {
		t.Fatalf("expected page field, got %v", fields["arcade.page"])
	}
	if _, ok := fields["q"]; ok {
		t.Fatalf("search text must not be logged")
	}
}

func TestRequestLoggerMiddlewareReportsPanicAsServerError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RecoveryMiddleware(nil)(InjectLoggerMiddleware(zap.New(core))(
		RequestLoggerMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})),
	))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/home", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 || completed[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error-level completion log, got %+v", completed)
	}
	if completed[0].ContextMap()["status"] != int64(http.StatusInternalServerError) {
		t.Fatalf("expected status 500, got %v", completed[0].ContextMap()["status"])
	}
}

func TestCleanField(t *testing.T) {
	if got := cleanField("a\nb\x00c", 10); got != "abc" {
		t.Fatalf("expected control characters dropped, got %q", got)
	}
	if got := cleanField("ééé", 3); got != "é" {
		t.Fatalf("expected cut on rune boundary, got %q", got)
	}
}

func TestParseCloudTrace(t *testing.T) {
	sc, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/258;o=1")
	if !ok {
		t.Fatal("expected header to parse")
	}
	if sc.SpanID().String() != "0000000000000102" || !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("unexpected span context %+v", sc)
	}
	if got := formatCloudTrace(sc); got != "105445aa7843bc8bf206b12000100000/258;o=1" {
		t.Fatalf("expected round trip, got %q", got)
	}

	for _, header := range []string{"", "nope", "105445aa7843bc8bf206b12000100000/0", "zz/1"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestResponseRecorderHijackRequiresSupport(t *testing.T) {
	recorder := newResponseRecorder(httptest.NewRecorder())
	if _, _, err := recorder.Hijack(); err == nil {
		t.Fatalf("expected hijack error for non-hijackable writer")
	}
}

func TestTraceMiddlewarePropagatesCloudTraceHeader(t *testing.T) {
	var traceID string
	handler := TraceMiddleware("arcade-dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := traceFromRequest(r)
		if !ok {
			t.Fatalf("expected trace info in context")
		}
		traceID = info
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if traceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected remote trace id to be kept, got %q", traceID)
	}
	if rr.Header().Get(cloudTraceHeader) == "" {
		t.Fatalf("expected trace header on response")
	}
}

func traceFromRequest(r *http.Request) (string, bool) {
	info, ok := requestctx.Trace(r.Context())
	return info.TraceID, ok
}
