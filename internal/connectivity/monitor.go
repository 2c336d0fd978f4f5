// Package connectivity tracks whether the remote store is reachable.
// The rest of the application consults the monitor instead of probing
// the database itself, so a flapping link is observed in one place.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bantayph/bantay/internal/metrics"
	"github.com/bantayph/bantay/internal/store"
	"github.com/bantayph/bantay/pkg/utils"
)

// MonitorConfig holds connectivity monitor configuration.
type MonitorConfig struct {
	ProbeInterval    time.Duration `json:"probe_interval"`
	ProbeTimeout     time.Duration `json:"probe_timeout"`
	FailureThreshold int           `json:"failure_threshold"`
	StartOnline      bool          `json:"start_online"`
}

// Monitor probes the remote store on an interval and exposes the
// current online/offline verdict. A single failed probe does not flip
// the state: only FailureThreshold consecutive failures mark the store
// offline, while one successful probe marks it online again.
type Monitor struct {
	store   store.Store
	config  *MonitorConfig
	logger  *logrus.Logger
	metrics *metrics.Manager

	mu           sync.RWMutex
	online       bool
	forced       bool
	failures     int
	lastProbe    time.Time
	lastOnlineAt time.Time
	probeCount   uint64
	errorCount   uint64

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a connectivity monitor. StartOnline sets the
// verdict reported before the first probe completes.
func NewMonitor(s store.Store, config *MonitorConfig, manager *metrics.Manager) *Monitor {
	return &Monitor{
		store:   s,
		config:  config,
		logger:  utils.GetLogger(),
		metrics: manager,
		online:  config.StartOnline,
	}
}

// Start launches the probe loop. Calling Start on a running monitor is
// a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}

	probeCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"probe_interval":    m.config.ProbeInterval,
		"failure_threshold": m.config.FailureThreshold,
	}).Info("Starting connectivity monitor")

	go m.probeLoop(probeCtx)
	return nil
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.logger.Info("Connectivity monitor stopped")
	return nil
}

// IsOnline reports the current verdict.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// ForceOffline pins the monitor offline regardless of probe results,
// used by field teams who know the uplink is about to drop. ForceOffline(false)
// returns control to the probe loop.
func (m *Monitor) ForceOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.forced = offline
	if offline {
		m.online = false
		m.logger.Warn("Connectivity forced offline")
	} else {
		m.logger.Info("Connectivity override cleared, resuming probes")
	}

	m.recordGauge()
}

// Probe runs a single reachability check immediately and updates the
// verdict. It is also the body of the periodic loop.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	err := m.store.PingContext(probeCtx)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.probeCount++
	m.lastProbe = time.Now()

	if m.metrics != nil {
		result := "success"
		if err != nil {
			result = "error"
		}
		m.metrics.GetPrometheusMetrics().RecordConnectivityProbe(result)
	}

	if err != nil {
		m.errorCount++
		m.failures++

		if m.failures >= m.config.FailureThreshold && m.online && !m.forced {
			m.online = false
			m.logger.WithFields(logrus.Fields{
				"failures": m.failures,
				"error":    err.Error(),
			}).Warn("Remote store unreachable, switching to offline mode")
		}

		m.recordGauge()
		return false
	}

	m.failures = 0
	m.lastOnlineAt = time.Now()

	if !m.online && !m.forced {
		m.online = true
		m.logger.Info("Remote store reachable again, back online")
	}

	m.recordGauge()
	return m.online
}

// GetStats returns monitor statistics.
func (m *Monitor) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"online":         m.online,
		"forced_offline": m.forced,
		"probe_count":    m.probeCount,
		"error_count":    m.errorCount,
		"failures":       m.failures,
		"last_probe":     m.lastProbe,
		"last_online_at": m.lastOnlineAt,
	}
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	m.Probe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// recordGauge pushes the online verdict to metrics. Caller holds m.mu.
func (m *Monitor) recordGauge() {
	if m.metrics != nil {
		m.metrics.GetPrometheusMetrics().UpdateOnline(m.online)
	}
}
