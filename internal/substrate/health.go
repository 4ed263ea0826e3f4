// Package substrate routes memory operations across an ordered set of
// providers, probing their health and failing over and back automatically.
package substrate

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the health state of one provider.
type Status string

const (
	StatusHealthy   Status = "HEALTHY"
	StatusDegraded  Status = "DEGRADED"
	StatusUnhealthy Status = "UNHEALTHY"
)

// Transition thresholds. Degrading and recovering use different cutoffs so a
// flapping provider settles instead of oscillating.
const (
	degradeErrorRate   = 0.01
	unhealthyErrorRate = 0.20

	// minRateSamples gates rate-based transitions: a near-empty window makes
	// the error rate meaningless (one failure would read as 100%).
	minRateSamples = 10
)

// Health is a point-in-time snapshot of one provider's state.
type Health struct {
	ProviderName         string    `json:"provider_name"`
	Status               Status    `json:"status"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	ErrorRate            float64   `json:"error_rate"`
	AvgResponseMs        float64   `json:"avg_response_ms"`
	LastCheckedAt        time.Time `json:"last_checked_at"`
}

// Metrics are per-provider rolling counters.
type Metrics struct {
	Requests       int64   `json:"requests"`
	Errors         int64   `json:"errors"`
	TotalLatencyMs float64 `json:"total_latency_ms"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}

type outcome struct {
	failed  bool
	latency time.Duration
}

// healthTracker owns the mutable health state for one provider. Live request
// outcomes and scheduled probes feed the same counters, so all updates are
// serialized under one mutex.
type healthTracker struct {
	mu sync.Mutex

	name              string
	status            Status
	// tripped records an UNHEALTHY episode. It stays set through DEGRADED
	// until the provider is fully HEALTHY again, so routing does not send
	// live traffic back after a single good probe.
	tripped           bool
	consecFailures    int
	consecSuccesses   int
	lastChecked       time.Time
	window            []outcome
	windowNext        int
	windowCount       int
	failureThreshold  int
	recoveryThreshold int
	warnLatency       time.Duration

	requests     int64
	reqErrors    int64
	totalLatency time.Duration

	log *logrus.Logger
}

func newHealthTracker(name string, failureThreshold, recoveryThreshold, windowSize int, warnLatency time.Duration, log *logrus.Logger) *healthTracker {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &healthTracker{
		name:              name,
		status:            StatusHealthy, // optimistic until first probe
		window:            make([]outcome, windowSize),
		failureThreshold:  failureThreshold,
		recoveryThreshold: recoveryThreshold,
		warnLatency:       warnLatency,
		log:               log,
	}
}

func (h *healthTracker) recordSuccess(latency time.Duration, probe bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.push(outcome{latency: latency})
	h.consecSuccesses++
	h.consecFailures = 0
	if probe {
		h.lastChecked = time.Now()
	} else {
		h.requests++
		h.totalLatency += latency
	}
	h.evaluate(true)
}

func (h *healthTracker) recordFailure(latency time.Duration, probe bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.push(outcome{failed: true, latency: latency})
	h.consecFailures++
	h.consecSuccesses = 0
	if probe {
		h.lastChecked = time.Now()
	} else {
		h.requests++
		h.reqErrors++
		h.totalLatency += latency
	}
	h.evaluate(false)
}

func (h *healthTracker) push(o outcome) {
	h.window[h.windowNext] = o
	h.windowNext = (h.windowNext + 1) % len(h.window)
	if h.windowCount < len(h.window) {
		h.windowCount++
	}
}

// errorRateLocked and avgLatencyLocked compute over the rolling window.
func (h *healthTracker) errorRateLocked() float64 {
	if h.windowCount == 0 {
		return 0
	}
	failed := 0
	for i := 0; i < h.windowCount; i++ {
		if h.window[i].failed {
			failed++
		}
	}
	return float64(failed) / float64(h.windowCount)
}

func (h *healthTracker) avgLatencyLocked() time.Duration {
	if h.windowCount == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < h.windowCount; i++ {
		total += h.window[i].latency
	}
	return total / time.Duration(h.windowCount)
}

// evaluate applies the state machine after an outcome is recorded. A single
// bad outcome can cascade HEALTHY -> DEGRADED -> UNHEALTHY, so transitions
// are applied until the state is stable.
func (h *healthTracker) evaluate(lastOK bool) {
	for {
		prev := h.status
		rate := h.errorRateLocked()
		rateReliable := h.windowCount >= minRateSamples

		switch h.status {
		case StatusHealthy:
			if h.consecFailures > 0 ||
				(rateReliable && rate > degradeErrorRate) ||
				(h.warnLatency > 0 && h.windowCount > 0 && h.avgLatencyLocked() > h.warnLatency) {
				h.status = StatusDegraded
			}
		case StatusDegraded:
			if (rateReliable && rate >= unhealthyErrorRate) || h.consecFailures >= h.failureThreshold {
				h.status = StatusUnhealthy
			} else if h.consecSuccesses >= h.recoveryThreshold && (!rateReliable || rate < degradeErrorRate) {
				h.status = StatusHealthy
			}
		case StatusUnhealthy:
			if lastOK {
				h.status = StatusDegraded
				// Fresh window: recovery is judged on post-outage outcomes,
				// not on the failures that caused the outage.
				h.resetWindowLocked()
			}
		}

		if h.status == prev {
			return
		}
		switch h.status {
		case StatusUnhealthy:
			h.tripped = true
		case StatusHealthy:
			h.tripped = false
		}
		h.log.WithFields(logrus.Fields{
			"component": "substrate",
			"provider":  h.name,
			"from":      prev,
			"to":        h.status,
		}).Warn("provider health transition")
	}
}

func (h *healthTracker) resetWindowLocked() {
	h.windowNext = 0
	h.windowCount = 0
}

func (h *healthTracker) currentStatus() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// acceptsPrimaryTraffic reports whether new operations may prefer this
// provider: HEALTHY, or DEGRADED without a preceding UNHEALTHY episode.
// A provider that degraded in place keeps its traffic; one that was failed
// away from gets it back only once fully recovered.
func (h *healthTracker) acceptsPrimaryTraffic() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.status {
	case StatusHealthy:
		return true
	case StatusDegraded:
		return !h.tripped
	default:
		return false
	}
}

// clearTrip forgets a past UNHEALTHY episode. Used when an admin manually
// repoints the primary: the switch overrides routing stickiness.
func (h *healthTracker) clearTrip() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tripped = false
}

func (h *healthTracker) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Health{
		ProviderName:         h.name,
		Status:               h.status,
		ConsecutiveFailures:  h.consecFailures,
		ConsecutiveSuccesses: h.consecSuccesses,
		ErrorRate:            h.errorRateLocked(),
		AvgResponseMs:        float64(h.avgLatencyLocked().Microseconds()) / 1000.0,
		LastCheckedAt:        h.lastChecked,
	}
}

func (h *healthTracker) metrics() Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := Metrics{
		Requests:       h.requests,
		Errors:         h.reqErrors,
		TotalLatencyMs: float64(h.totalLatency.Microseconds()) / 1000.0,
	}
	if h.requests > 0 {
		m.AvgLatencyMs = m.TotalLatencyMs / float64(h.requests)
	}
	return m
}
