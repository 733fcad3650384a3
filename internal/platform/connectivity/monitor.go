// Package connectivity tracks whether the remote backends are reachable.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/arcade/internal/platform/signal"
)

const defaultInterval = 15 * time.Second

// Checker reports nil when the remote side is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

// Check implements Checker.
func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// HTTPCheck issues HEAD requests against a URL; any response below 500 counts as online.
type HTTPCheck struct {
	URL    string
	Client *http.Client
}

// Check implements Checker.
func (p HTTPCheck) Check(ctx context.Context) error {
	if strings.TrimSpace(p.URL) == "" {
		return errors.New("connectivity: check URL is required")
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("connectivity: check status %d", resp.StatusCode)
	}
	return nil
}

// Options configure a Monitor.
type Options struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Monitor publishes check outcomes to an online signal.
type Monitor struct {
	check    Checker
	online   *signal.Value[bool]
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor constructs a Monitor writing to online.
func NewMonitor(check Checker, online *signal.Value[bool], opts Options) (*Monitor, error) {
	if check == nil {
		return nil, errors.New("connectivity: check is required")
	}
	if online == nil {
		return nil, errors.New("connectivity: online signal is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{check: check, online: online, interval: interval, logger: logger}, nil
}

// CheckNow runs one check and publishes the result. A check cut short by ctx
// publishes nothing and reports the last published state.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	err := m.check.Check(ctx)
	if err != nil && ctx.Err() != nil {
		return m.online.Get()
	}
	online := err == nil
	if m.online.Set(online) {
		if online {
			m.logger.Info("connectivity restored")
		} else {
			m.logger.Warn("connectivity lost", zap.Error(err))
		}
	}
	return online
}

// SetOnline overrides the online flag until the next check.
func (m *Monitor) SetOnline(online bool) {
	m.online.Set(online)
}

// Online returns the last published state.
func (m *Monitor) Online() bool {
	return m.online.Get()
}

// Run checks immediately and then on every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CheckNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}
