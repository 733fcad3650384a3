package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	domain "finitefield.org/arcade/internal/domain"
	"finitefield.org/arcade/internal/platform/requestctx"
	"finitefield.org/arcade/internal/repositories"
)

const connectivityCheckName = "connectivity"

// BuildInfo describes the running binary for health responses.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves liveness and readiness checks.
type HealthHandlers struct {
	build  BuildInfo
	repo   repositories.HealthRepository
	online func() bool
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthRepository sets the dependency checks evaluated by /readyz.
func WithHealthRepository(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.repo = repo
	}
}

// WithHealthOnline reports the connectivity flag in /readyz. Being offline
// degrades readiness without failing it.
func WithHealthOnline(online func() bool) HealthOption {
	return func(h *HealthHandlers) {
		h.online = online
	}
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp": formatTime(now),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type readinessCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readinessPayload struct {
	Status      string                           `json:"status"`
	Online      *bool                            `json:"online,omitempty"`
	Checks      map[string]readinessCheckPayload `json:"checks"`
	Details     []string                         `json:"details,omitempty"`
	GeneratedAt string                           `json:"generatedAt"`
}

// Readyz evaluates dependencies. Any check in error yields 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report := h.collect(ctx)

	payload := readinessPayload{
		Status:      report.Status,
		Checks:      make(map[string]readinessCheckPayload, len(report.Checks)),
		GeneratedAt: formatTime(report.GeneratedAt),
	}
	if h.online != nil {
		online := h.online()
		payload.Online = &online
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		payload.Checks[name] = readinessCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			payload.Details = append(payload.Details, fmt.Sprintf("%s: %s", name, check.Error))
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}

func (h *HealthHandlers) collect(ctx context.Context) domain.SystemHealthReport {
	now := h.clock()
	report := domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      map[string]domain.SystemHealthCheck{},
		GeneratedAt: now,
	}

	if h.repo != nil {
		collected, err := h.repo.Collect(ctx)
		if err != nil {
			requestctx.Logger(ctx).Warn("readiness collection failed", zap.Error(err))
			report.Status = domain.HealthStatusError
			report.Checks["health"] = domain.SystemHealthCheck{
				Status:    domain.HealthStatusError,
				Error:     err.Error(),
				CheckedAt: now,
			}
			return report
		}
		report = collected
		if report.Checks == nil {
			report.Checks = map[string]domain.SystemHealthCheck{}
		}
		if report.GeneratedAt.IsZero() {
			report.GeneratedAt = now
		}
	}

	if h.online != nil && !h.online() {
		report.Checks[connectivityCheckName] = domain.SystemHealthCheck{
			Status:    domain.HealthStatusDegraded,
			Detail:    "offline, remote favorites suspended",
			CheckedAt: now,
		}
	}
	return report
}
