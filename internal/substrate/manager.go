package substrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/provider"
)

// ErrSubstrateUnavailable is returned when every configured provider has been
// tried and failed for one operation, or the request timeout budget ran out.
var ErrSubstrateUnavailable = errors.New("substrate unavailable")

// Defaults for Config zero values.
const (
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultFailureThreshold    = 3
	DefaultRecoveryThreshold   = 2
	DefaultRequestTimeout      = 5 * time.Second
	DefaultWarnLatency         = 1 * time.Second
	DefaultWindowSize          = 100
)

// Config configures the substrate manager.
type Config struct {
	HealthCheckInterval time.Duration
	FailureThreshold    int
	RecoveryThreshold   int
	// RequestTimeout bounds the total time spent across sequential fallback
	// attempts for one logical operation.
	RequestTimeout time.Duration
	// WarnLatency is the average-latency level at which a healthy provider
	// is considered degraded.
	WarnLatency time.Duration
	WindowSize  int
}

func (c Config) withDefaults() Config {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = DefaultRecoveryThreshold
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.WarnLatency <= 0 {
		c.WarnLatency = DefaultWarnLatency
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	return c
}

type managedProvider struct {
	name     string
	provider provider.MemoryProvider
	health   *healthTracker
}

// Manager owns the ordered provider list and routes every operation. The
// first entry is the configured primary; the rest are fallbacks in order.
type Manager struct {
	cfg       Config
	providers []*managedProvider
	byName    map[string]int
	// active is the index of the admin-preferred provider. Swapped atomically
	// by SwitchPrimary; read once per operation.
	active atomic.Int32
	log    *logrus.Logger

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// Entry pairs a name with a provider for Manager construction.
type Entry struct {
	Name     string
	Provider provider.MemoryProvider
}

// NewManager creates a manager over the given providers, primary first.
func NewManager(entries []Entry, cfg Config, log *logrus.Logger) (*Manager, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if log == nil {
		log = logrus.New()
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:    cfg,
		byName: make(map[string]int, len(entries)),
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for i, e := range entries {
		if _, dup := m.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate provider name %q", e.Name)
		}
		m.providers = append(m.providers, &managedProvider{
			name:     e.Name,
			provider: e.Provider,
			health:   newHealthTracker(e.Name, cfg.FailureThreshold, cfg.RecoveryThreshold, cfg.WindowSize, cfg.WarnLatency, log),
		})
		m.byName[e.Name] = i
	}
	return m, nil
}

// Start launches the background health monitor. It runs until Stop.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.started.Store(true)
		go m.monitor()
	})
}

// Stop cancels the health monitor and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.started.Load() {
			<-m.doneCh
		}
	})
}

// Close stops the monitor and closes every provider.
func (m *Manager) Close() error {
	m.Stop()
	var firstErr error
	for _, mp := range m.providers {
		if err := mp.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// monitor probes every provider once per interval. It is the only background
// task; request handling never blocks on it.
func (m *Manager) monitor() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probeAll()
		}
	}
}

func (m *Manager) probeAll() {
	for _, mp := range m.providers {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
		start := time.Now()
		err := mp.provider.HealthCheck(ctx)
		latency := time.Since(start)
		cancel()

		if err != nil {
			mp.health.recordFailure(latency, true)
		} else {
			mp.health.recordSuccess(latency, true)
		}
	}
}

// ProbeNow runs one probe round synchronously. Used by tests and the CLI to
// avoid waiting out the interval.
func (m *Manager) ProbeNow() {
	m.probeAll()
}

// routeOrder returns the providers to try, preferred first. The preferred
// provider is the admin-selected primary while it accepts primary traffic;
// after it was failed away from, the first accepting provider in configured
// order keeps the traffic until the primary is fully HEALTHY again.
// Remaining providers follow in configured order, so one operation tries
// each at most once.
func (m *Manager) routeOrder() []*managedProvider {
	activeIdx := int(m.active.Load())

	preferred := -1
	if m.providers[activeIdx].health.acceptsPrimaryTraffic() {
		preferred = activeIdx
	}
	if preferred < 0 {
		for i, mp := range m.providers {
			if mp.health.acceptsPrimaryTraffic() {
				preferred = i
				break
			}
		}
	}
	if preferred < 0 {
		for i, mp := range m.providers {
			if mp.health.currentStatus() != StatusUnhealthy {
				preferred = i
				break
			}
		}
	}
	if preferred < 0 {
		// Everything looks down; try in configured order anyway.
		preferred = activeIdx
	}

	order := make([]*managedProvider, 0, len(m.providers))
	order = append(order, m.providers[preferred])
	for i, mp := range m.providers {
		if i != preferred {
			order = append(order, mp)
		}
	}
	return order
}

// execute runs one logical operation with bounded sequential failover.
func (m *Manager) execute(ctx context.Context, opName string, op func(ctx context.Context, p provider.MemoryProvider) error) error {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	var lastErr error
	for _, mp := range m.routeOrder() {
		start := time.Now()
		err := op(ctx, mp.provider)
		latency := time.Since(start)

		if err == nil {
			mp.health.recordSuccess(latency, false)
			return nil
		}

		// Caller cancellation is not a provider fault.
		if parent.Err() != nil && errors.Is(err, context.Canceled) {
			return err
		}

		// Validation and not-found are definitive answers, not backend
		// faults: no failover, and the provider interaction succeeded.
		if errors.Is(err, provider.ErrValidation) || errors.Is(err, provider.ErrNotFound) {
			mp.health.recordSuccess(latency, false)
			return err
		}

		mp.health.recordFailure(latency, false)
		lastErr = err
		m.log.WithFields(logrus.Fields{
			"component": "substrate",
			"provider":  mp.name,
			"op":        opName,
		}).WithError(err).Warn("provider operation failed, trying next")

		if ctx.Err() != nil {
			// Request timeout budget exhausted; untried providers stay untried.
			break
		}
	}

	return fmt.Errorf("%s failed on all providers (last: %v): %w", opName, lastErr, ErrSubstrateUnavailable)
}

// Write persists a sanitized item through the active provider, failing over
// as needed, and returns the assigned id.
func (m *Manager) Write(ctx context.Context, item *model.MemoryItem) (string, error) {
	var id string
	err := m.execute(ctx, "write", func(ctx context.Context, p provider.MemoryProvider) error {
		got, err := p.Remember(ctx, item)
		if err == nil {
			id = got
		}
		return err
	})
	return id, err
}

// Read queries the active provider with the same routing as writes.
func (m *Manager) Read(ctx context.Context, p provider.RecallParams) ([]model.MemoryItem, error) {
	var items []model.MemoryItem
	err := m.execute(ctx, "read", func(ctx context.Context, pr provider.MemoryProvider) error {
		got, err := pr.Recall(ctx, p)
		if err == nil {
			items = got
		}
		return err
	})
	return items, err
}

// List enumerates items for an owner through the routing layer.
func (m *Manager) List(ctx context.Context, p provider.ListParams) ([]model.MemoryItem, error) {
	var items []model.MemoryItem
	err := m.execute(ctx, "list", func(ctx context.Context, pr provider.MemoryProvider) error {
		got, err := pr.List(ctx, p)
		if err == nil {
			items = got
		}
		return err
	})
	return items, err
}

// Delete removes an item through the routing layer.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := m.execute(ctx, "delete", func(ctx context.Context, pr provider.MemoryProvider) error {
		got, err := pr.Delete(ctx, id)
		if err == nil {
			deleted = got
		}
		return err
	})
	return deleted, err
}

// SwitchPrimary atomically repoints the active provider. It takes effect for
// the next operation; in-flight operations are never redirected.
func (m *Manager) SwitchPrimary(name string) error {
	idx, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	m.providers[idx].health.clearTrip()
	m.active.Store(int32(idx))
	m.log.WithFields(logrus.Fields{
		"component": "substrate",
		"provider":  name,
	}).Info("primary switched")
	return nil
}

// ActiveProvider returns the name of the provider new operations will try
// first.
func (m *Manager) ActiveProvider() string {
	return m.routeOrder()[0].name
}

// HealthSnapshot returns the current health of every provider, in configured
// order.
func (m *Manager) HealthSnapshot() []Health {
	out := make([]Health, 0, len(m.providers))
	for _, mp := range m.providers {
		out = append(out, mp.health.snapshot())
	}
	return out
}

// MetricsSnapshot returns per-provider rolling counters.
func (m *Manager) MetricsSnapshot() map[string]Metrics {
	out := make(map[string]Metrics, len(m.providers))
	for _, mp := range m.providers {
		out[mp.name] = mp.health.metrics()
	}
	return out
}
