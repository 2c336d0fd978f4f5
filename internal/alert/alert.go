// Package alert raises notifications when a resident's resolved status
// changes to one that demands responder attention.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bantayph/bantay/internal/metrics"
	"github.com/bantayph/bantay/internal/models"
	"github.com/bantayph/bantay/pkg/utils"
)

// Alerter defines the alert dispatch interface.
type Alerter interface {
	Start(ctx context.Context) error
	Stop() error
	IsHealthy() bool

	// NotifyStatusChanges inspects freshly recorded log entries and
	// dispatches alerts for the critical ones.
	NotifyStatusChanges(ctx context.Context, event *models.DisasterEvent, entries []*models.StatusLogEntry)

	GetStats() *AlertStats
}

// ManagerConfig holds alert manager configuration.
type ManagerConfig struct {
	Enabled        bool          `json:"enabled"`
	WebhookURL     string        `json:"webhook_url"`
	WebhookTimeout time.Duration `json:"webhook_timeout"`
	RetryAttempts  int           `json:"retry_attempts"`
	RetryDelay     time.Duration `json:"retry_delay"`
}

// Alert is a single dispatched notification.
type Alert struct {
	ID         string             `json:"id"`
	ResidentID string             `json:"resident_id"`
	EventID    string             `json:"event_id"`
	EventName  string             `json:"event_name"`
	Status     models.StatusValue `json:"status"`
	ReportedBy string             `json:"reported_by"`
	RecordedAt time.Time          `json:"recorded_at"`
	CreatedAt  time.Time          `json:"created_at"`
}

// AlertStats provides alert dispatch statistics.
type AlertStats struct {
	TotalAlertsSent   uint64     `json:"total_alerts_sent"`
	TotalAlertsFailed uint64     `json:"total_alerts_failed"`
	LastAlertTime     *time.Time `json:"last_alert_time,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	LastErrorTime     *time.Time `json:"last_error_time,omitempty"`
}

// Manager implements Alerter. It always logs critical statuses and
// additionally posts to a webhook when one is configured.
type Manager struct {
	config  *ManagerConfig
	logger  *logrus.Logger
	metrics *metrics.Manager
	webhook *WebhookSender

	mu      sync.RWMutex
	running bool
	stats   *AlertStats
}

// NewManager creates an alert manager.
func NewManager(config *ManagerConfig, manager *metrics.Manager) *Manager {
	m := &Manager{
		config:  config,
		logger:  utils.GetLogger(),
		metrics: manager,
		stats:   &AlertStats{},
	}

	if config.WebhookURL != "" {
		m.webhook = NewWebhookSender(config)
	}

	return m
}

// Start starts the alert manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Alert manager already running", "")
	}

	m.running = true
	m.logger.WithFields(logrus.Fields{
		"enabled":     m.config.Enabled,
		"has_webhook": m.webhook != nil,
	}).Info("Alert manager started")

	return nil
}

// Stop stops the alert manager.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	m.logger.Info("Alert manager stopped")
	return nil
}

// IsHealthy returns whether the alert manager is running.
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// NotifyStatusChanges dispatches an alert for every entry whose status
// is Missing or Deceased. Dispatch failures are logged and counted but
// never surfaced to the caller: a down webhook must not block status
// recording.
func (m *Manager) NotifyStatusChanges(ctx context.Context, event *models.DisasterEvent, entries []*models.StatusLogEntry) {
	if !m.config.Enabled {
		return
	}

	for _, entry := range entries {
		if !isCritical(entry.Status) {
			continue
		}

		alert := &Alert{
			ID:         entry.ID,
			ResidentID: entry.ResidentID,
			EventID:    entry.EventID,
			Status:     entry.Status,
			ReportedBy: entry.ReportedBy,
			RecordedAt: entry.RecordedAt,
			CreatedAt:  time.Now(),
		}
		if event != nil {
			alert.EventName = event.Name
		}

		m.dispatch(ctx, alert)
	}
}

// GetStats returns a copy of the dispatch statistics.
func (m *Manager) GetStats() *AlertStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := *m.stats
	return &stats
}

func (m *Manager) dispatch(ctx context.Context, alert *Alert) {
	m.logger.WithFields(logrus.Fields{
		"resident_id": alert.ResidentID,
		"event_id":    alert.EventID,
		"status":      alert.Status,
		"reported_by": alert.ReportedBy,
	}).Warn("Critical resident status reported")

	m.recordSent("log", alert)

	if m.webhook == nil {
		return
	}

	if err := m.webhook.Send(ctx, alert); err != nil {
		m.recordFailure("webhook", alert, err)
		m.logger.WithFields(logrus.Fields{
			"resident_id": alert.ResidentID,
			"error":       err.Error(),
		}).Error("Failed to deliver alert webhook")
		return
	}

	m.recordSent("webhook", alert)
}

func (m *Manager) recordSent(channel string, alert *Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.stats.TotalAlertsSent++
	m.stats.LastAlertTime = &now

	if m.metrics != nil {
		m.metrics.GetPrometheusMetrics().RecordAlertSent(channel, string(alert.Status))
	}
}

func (m *Manager) recordFailure(channel string, alert *Alert, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	errMsg := err.Error()
	m.stats.TotalAlertsFailed++
	m.stats.LastError = &errMsg
	m.stats.LastErrorTime = &now

	if m.metrics != nil {
		m.metrics.GetPrometheusMetrics().RecordAlertFailure(channel, string(alert.Status))
	}
}

func isCritical(status models.StatusValue) bool {
	return status == models.StatusMissing || status == models.StatusDeceased
}
