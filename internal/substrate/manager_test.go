package substrate

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/provider"
)

// fakeProvider is a scriptable in-memory backend.
type fakeProvider struct {
	mu           sync.Mutex
	failWith     error
	healthErr    error
	delay        time.Duration
	remembers    int
	recalls      int
	healthChecks int
	items        []model.MemoryItem
}

func (f *fakeProvider) setFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
	f.healthErr = err
}

func (f *fakeProvider) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *fakeProvider) Remember(ctx context.Context, item *model.MemoryItem) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	f.remembers++
	stored := *item
	stored.ID = "fake-id"
	f.items = append(f.items, stored)
	return stored.ID, nil
}

func (f *fakeProvider) Recall(ctx context.Context, p provider.RecallParams) ([]model.MemoryItem, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]model.MemoryItem(nil), f.items...), nil
}

func (f *fakeProvider) List(ctx context.Context, p provider.ListParams) ([]model.MemoryItem, error) {
	return f.Recall(ctx, provider.RecallParams{})
}

func (f *fakeProvider) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return false, f.failWith
	}
	return false, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthChecks++
	return f.healthErr
}

func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) rememberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remembers
}

func (f *fakeProvider) recallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recalls
}

func (f *fakeProvider) healthCheckCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthChecks
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeProvider, *fakeProvider) {
	t.Helper()
	primary := &fakeProvider{}
	fallback := &fakeProvider{}
	m, err := NewManager([]Entry{
		{Name: "primary", Provider: primary},
		{Name: "fallback", Provider: fallback},
	}, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { m.Stop() })
	return m, primary, fallback
}

func testItem() *model.MemoryItem {
	return &model.MemoryItem{
		OwnerID:         "u",
		Scope:           "personal",
		Content:         "note",
		SensitivityTier: model.TierPublic,
	}
}

func TestWriteRoutesToPrimary(t *testing.T) {
	m, primary, fallback := newTestManager(t, Config{})

	id, err := m.Write(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, "fake-id", id)
	assert.Equal(t, 1, primary.rememberCount())
	assert.Equal(t, 0, fallback.rememberCount())
}

func TestFailoverToFallback(t *testing.T) {
	m, primary, fallback := newTestManager(t, Config{})
	primary.setFailure(provider.ErrUnavailable)

	// The caller never observes the primary's failure.
	id, err := m.Write(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, "fake-id", id)
	assert.Equal(t, 1, fallback.rememberCount())
}

func TestThreeConsecutiveFailuresMarkUnhealthy(t *testing.T) {
	m, primary, _ := newTestManager(t, Config{})
	primary.setFailure(provider.ErrUnavailable)

	for i := 0; i < 3; i++ {
		_, err := m.Write(context.Background(), testItem())
		require.NoError(t, err)
	}

	health := m.HealthSnapshot()
	assert.Equal(t, StatusUnhealthy, health[0].Status)
	// New operations now route to the fallback directly.
	assert.Equal(t, "fallback", m.ActiveProvider())
}

func TestFailBackAfterRecovery(t *testing.T) {
	m, primary, _ := newTestManager(t, Config{})
	primary.setFailure(provider.ErrUnavailable)

	for i := 0; i < 3; i++ {
		m.Write(context.Background(), testItem())
	}
	require.Equal(t, "fallback", m.ActiveProvider())

	// Primary comes back. One good probe makes it DEGRADED, but live
	// traffic stays on the fallback until full recovery.
	primary.setFailure(nil)
	m.ProbeNow()
	assert.Equal(t, StatusDegraded, m.HealthSnapshot()[0].Status)
	assert.Equal(t, "fallback", m.ActiveProvider())

	interim := primary.rememberCount()
	_, err := m.Write(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, interim, primary.rememberCount())

	// Second successful probe completes recovery and fails back.
	m.ProbeNow()

	health := m.HealthSnapshot()
	assert.Equal(t, StatusHealthy, health[0].Status)
	assert.Equal(t, "primary", m.ActiveProvider())

	before := primary.rememberCount()
	_, err = m.Write(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, before+1, primary.rememberCount())
}

func TestDegradedProviderKeepsTraffic(t *testing.T) {
	m, primary, fallback := newTestManager(t, Config{})
	primary.setFailure(provider.ErrUnavailable)

	// One failed write degrades the primary without an outage.
	_, err := m.Write(context.Background(), testItem())
	require.NoError(t, err)
	require.Equal(t, StatusDegraded, m.HealthSnapshot()[0].Status)
	primary.setFailure(nil)

	// DEGRADED without an UNHEALTHY episode keeps its traffic.
	assert.Equal(t, "primary", m.ActiveProvider())
	_, err = m.Write(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, 1, primary.rememberCount())
	assert.Equal(t, 1, fallback.rememberCount())
}

func TestRequestTimeoutBudget(t *testing.T) {
	m, primary, fallback := newTestManager(t, Config{RequestTimeout: 50 * time.Millisecond})
	primary.setDelay(5 * time.Second)

	_, err := m.Write(context.Background(), testItem())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubstrateUnavailable))

	// The budget ran out on the primary; the fallback stays untried.
	assert.Equal(t, 0, primary.rememberCount())
	assert.Equal(t, 0, fallback.rememberCount())
}

func TestAllProvidersFail(t *testing.T) {
	m, primary, fallback := newTestManager(t, Config{})
	primary.setFailure(provider.ErrUnavailable)
	fallback.setFailure(provider.ErrTimeout)

	_, err := m.Write(context.Background(), testItem())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubstrateUnavailable), "expected ErrSubstrateUnavailable, got %v", err)
}

func TestNotFoundDoesNotFailOver(t *testing.T) {
	m, primary, fallback := newTestManager(t, Config{})
	primary.setFailure(provider.ErrNotFound)

	_, err := m.Read(context.Background(), provider.RecallParams{OwnerID: "u"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrNotFound))
	// Definitive answer: the fallback is never consulted and the primary is
	// not penalized.
	assert.Equal(t, 0, fallback.recallCount())
	assert.Equal(t, StatusHealthy, m.HealthSnapshot()[0].Status)
}

func TestCallerCancelNotCountedAsFailure(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Write(ctx, testItem())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	for _, h := range m.HealthSnapshot() {
		assert.Equal(t, 0, h.ConsecutiveFailures)
		assert.Equal(t, StatusHealthy, h.Status)
	}
}

func TestSwitchPrimary(t *testing.T) {
	m, primary, fallback := newTestManager(t, Config{})

	require.NoError(t, m.SwitchPrimary("fallback"))
	assert.Equal(t, "fallback", m.ActiveProvider())

	_, err := m.Write(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.rememberCount())
	assert.Equal(t, 0, primary.rememberCount())

	assert.Error(t, m.SwitchPrimary("nope"))
}

func TestMetricsSnapshot(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})

	for i := 0; i < 4; i++ {
		_, err := m.Write(context.Background(), testItem())
		require.NoError(t, err)
	}

	metrics := m.MetricsSnapshot()
	assert.Equal(t, int64(4), metrics["primary"].Requests)
	assert.Equal(t, int64(0), metrics["primary"].Errors)
	assert.Equal(t, int64(0), metrics["fallback"].Requests)
}

func TestHealthMonitorProbes(t *testing.T) {
	m, primary, fallback := newTestManager(t, Config{HealthCheckInterval: 10 * time.Millisecond})

	m.Start()
	assert.Eventually(t, func() bool {
		return primary.healthCheckCount() >= 2 && fallback.healthCheckCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	// Monitor is stopped: probe counts settle.
	settled := primary.healthCheckCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, primary.healthCheckCount())
}

func TestConcurrentWrites(t *testing.T) {
	m, primary, _ := newTestManager(t, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Write(context.Background(), testItem())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, primary.rememberCount())
	assert.Equal(t, int64(20), m.MetricsSnapshot()["primary"].Requests)
}
