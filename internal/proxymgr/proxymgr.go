// Package proxymgr rotates the optional proxies download attempts are bound to.
// A proxy that keeps running into bot challenges or network errors is benched with
// exponential backoff; health checks bring it back.
package proxymgr

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"sync"
	"time"

	"tubegrab/internal/config"
	"tubegrab/internal/errs"
	"tubegrab/internal/observability"
)

// ProxyState represents the current state of a proxy.
type ProxyState int

const (
	// ProxyStateAvailable indicates the proxy is available for use.
	ProxyStateAvailable ProxyState = iota
	// ProxyStateFailed indicates the proxy has failed and is in backoff.
	ProxyStateFailed
)

const (
	healthCheckTimeout = 10 * time.Second
	maxBackoff         = time.Hour
)

type proxyInfo struct {
	URL           string
	State         ProxyState
	FailureCount  int
	LastFailure   time.Time
	BackoffUntil  time.Time
	LastHealthChk time.Time
}

// ProxyStats represents statistics for a proxy.
type ProxyStats struct {
	State         ProxyState
	FailureCount  int
	LastFailure   time.Time
	BackoffUntil  time.Time
	LastHealthChk time.Time
}

// Manager manages proxy rotation and health.
type Manager struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics

	mu      sync.Mutex
	proxies map[string]*proxyInfo
	order   []string // insertion order for stable iteration
}

// New creates a new proxy manager from cfg.Proxy.Proxies.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *Manager {
	mgr := &Manager{
		log:     log.With(slog.String("package", "proxymgr")),
		cfg:     cfg,
		metrics: metrics,
		proxies: make(map[string]*proxyInfo),
		order:   make([]string, 0, len(cfg.Proxy.Proxies)),
	}

	for _, proxy := range cfg.Proxy.Proxies {
		if _, dup := mgr.proxies[proxy]; dup {
			continue
		}

		mgr.proxies[proxy] = &proxyInfo{URL: proxy, State: ProxyStateAvailable}
		mgr.order = append(mgr.order, proxy)
	}

	mgr.metrics.SetProxiesAvailable(len(mgr.order))

	return mgr
}

// Pick returns a random available proxy, or false when none is configured or all are benched.
func (m *Manager) Pick() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	available := m.availableLocked(time.Now())
	if len(available) == 0 {
		return "", false
	}

	proxy := available[rand.IntN(len(available))]
	m.metrics.RecordProxyRequest(Label(proxy))

	return proxy, true
}

// Report feeds the result of an attempt made through proxy back into its health.
// Only bot challenges and network errors count against the proxy.
func (m *Manager) Report(proxy string, err error) {
	if proxy == "" {
		return
	}

	switch {
	case err == nil:
		m.MarkSuccess(proxy)
	case errs.Is(err, errs.KindBotChallenge), errs.Is(err, errs.KindNetwork):
		m.MarkFailed(proxy)
	}
}

// MarkFailed records a failure and benches the proxy once MaxFailures is reached.
func (m *Manager) MarkFailed(proxy string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxy]
	if !exists {
		return
	}

	now := time.Now()
	info.FailureCount++
	info.LastFailure = now
	m.metrics.RecordProxyFailure(Label(proxy))

	maxFailures := max(m.cfg.Proxy.MaxFailures, 1)
	if info.FailureCount < maxFailures {
		return
	}

	info.State = ProxyStateFailed

	backoff := maxBackoff
	if shift := info.FailureCount - maxFailures; shift < 16 {
		backoff = min(m.cfg.Proxy.FailureBackoff*time.Duration(1<<shift), maxBackoff)
	}

	info.BackoffUntil = now.Add(backoff)
	m.metrics.SetProxiesAvailable(len(m.availableLocked(now)))

	m.log.Warn("proxy marked as failed",
		slog.String("proxy", Label(proxy)),
		slog.Int("failure_count", info.FailureCount),
		slog.Duration("backoff", backoff))
}

// MarkSuccess resets the failure count of proxy.
func (m *Manager) MarkSuccess(proxy string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxy]
	if !exists {
		return
	}

	info.State = ProxyStateAvailable
	info.FailureCount = 0
	info.BackoffUntil = time.Time{}
	m.metrics.SetProxiesAvailable(len(m.availableLocked(time.Now())))
}

// HealthCheck dials the proxy host and updates its state accordingly.
func (m *Manager) HealthCheck(ctx context.Context, proxy string) error {
	parsed, err := url.Parse(proxy)
	if err != nil {
		return fmt.Errorf("parse proxy URL: %w", err)
	}

	dialer := &net.Dialer{Timeout: healthCheckTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", parsed.Host)
	if err != nil {
		m.MarkFailed(proxy)

		return fmt.Errorf("dial proxy: %w", err)
	}

	_ = conn.Close()

	m.mu.Lock()
	if info, exists := m.proxies[proxy]; exists {
		info.LastHealthChk = time.Now()
	}
	m.mu.Unlock()

	m.MarkSuccess(proxy)

	return nil
}

// StartHealthChecker starts background health checking for all proxies.
func (m *Manager) StartHealthChecker(ctx context.Context) {
	if m.cfg.Proxy.HealthCheckInterval <= 0 || len(m.order) == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.cfg.Proxy.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAll(ctx)
			}
		}
	}()

	m.log.Info("proxy health checker started",
		slog.Duration("interval", m.cfg.Proxy.HealthCheckInterval),
		slog.Int("proxy_count", len(m.order)))
}

// Stats returns current proxy statistics.
func (m *Manager) Stats() map[string]ProxyStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]ProxyStats, len(m.proxies))
	for proxy, info := range m.proxies {
		stats[proxy] = ProxyStats{
			State:         info.State,
			FailureCount:  info.FailureCount,
			LastFailure:   info.LastFailure,
			BackoffUntil:  info.BackoffUntil,
			LastHealthChk: info.LastHealthChk,
		}
	}

	return stats
}

// Count returns the total number of configured proxies.
func (m *Manager) Count() int {
	return len(m.order)
}

// AvailableCount returns the number of currently available proxies.
func (m *Manager) AvailableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.availableLocked(time.Now()))
}

// Label returns the proxy address without credentials, for logs and metrics.
func Label(proxy string) string {
	parsed, err := url.Parse(proxy)
	if err != nil || parsed.Host == "" {
		return "invalid"
	}

	return parsed.Scheme + "://" + parsed.Host
}

func (m *Manager) availableLocked(now time.Time) []string {
	available := make([]string, 0, len(m.order))

	for _, proxy := range m.order {
		info := m.proxies[proxy]
		if info.State == ProxyStateAvailable || now.After(info.BackoffUntil) {
			available = append(available, proxy)
		}
	}

	return available
}

func (m *Manager) checkAll(ctx context.Context) {
	for _, proxy := range m.order {
		if ctx.Err() != nil {
			return
		}

		if err := m.HealthCheck(ctx, proxy); err != nil {
			m.log.Debug("proxy health check failed", slog.String("proxy", Label(proxy)), slog.Any("error", err))
		}
	}
}
