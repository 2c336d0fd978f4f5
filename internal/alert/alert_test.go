package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bantayph/bantay/internal/models"
	"github.com/bantayph/bantay/pkg/utils"
)

func testEvent() *models.DisasterEvent {
	return &models.DisasterEvent{ID: "event-1", Name: "Typhoon Ambo", Active: true}
}

func logEntry(residentID string, status models.StatusValue) *models.StatusLogEntry {
	return &models.StatusLogEntry{
		ID:         residentID + "-entry",
		ResidentID: residentID,
		EventID:    "event-1",
		Status:     status,
		ReportedBy: "bhw-01",
		RecordedAt: time.Now(),
	}
}

func newTestManager(t *testing.T, webhookURL string) *Manager {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	m := NewManager(&ManagerConfig{
		Enabled:        true,
		WebhookURL:     webhookURL,
		WebhookTimeout: 2 * time.Second,
		RetryAttempts:  2,
		RetryDelay:     10 * time.Millisecond,
	}, nil)

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop() })

	return m
}

func TestNotifyStatusChangesFiltersCritical(t *testing.T) {
	var mu sync.Mutex
	received := []WebhookPayload{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		mu.Lock()
		received = append(received, payload)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)

	entries := []*models.StatusLogEntry{
		logEntry("r1", models.StatusSafe),
		logEntry("r2", models.StatusMissing),
		logEntry("r3", models.StatusEvacuated),
		logEntry("r4", models.StatusDeceased),
	}

	m.NotifyStatusChanges(context.Background(), testEvent(), entries)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, received, 2, "only missing and deceased trigger webhooks")
	assert.Equal(t, "r2", received[0].Alert.ResidentID)
	assert.Equal(t, models.StatusMissing, received[0].Alert.Status)
	assert.Equal(t, "Typhoon Ambo", received[0].Alert.EventName)
	assert.Equal(t, "r4", received[1].Alert.ResidentID)

	stats := m.GetStats()
	assert.Equal(t, uint64(4), stats.TotalAlertsSent, "two log channel sends plus two webhook sends")
}

func TestNotifyStatusChangesDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Webhook must not be called when alerts are disabled")
	}))
	defer srv.Close()

	utils.InitLogger("error", "text", "stdout", "")
	m := NewManager(&ManagerConfig{Enabled: false, WebhookURL: srv.URL}, nil)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	m.NotifyStatusChanges(context.Background(), testEvent(), []*models.StatusLogEntry{
		logEntry("r1", models.StatusMissing),
	})

	assert.Equal(t, uint64(0), m.GetStats().TotalAlertsSent)
}

func TestNotifyStatusChangesWebhookFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)

	// Must not panic or block; the failure lands in stats only.
	m.NotifyStatusChanges(context.Background(), testEvent(), []*models.StatusLogEntry{
		logEntry("r1", models.StatusMissing),
	})

	stats := m.GetStats()
	assert.Equal(t, uint64(1), stats.TotalAlertsFailed)
	require.NotNil(t, stats.LastError)
	t.Logf("✓ Webhook failure recorded without surfacing: %s", *stats.LastError)
}

func TestWebhookSenderRetries(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws := NewWebhookSender(&ManagerConfig{
		WebhookURL:     srv.URL,
		WebhookTimeout: 2 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     10 * time.Millisecond,
	})

	err := ws.Send(context.Background(), &Alert{ResidentID: "r1", Status: models.StatusMissing})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts, "server error retried once then succeeded")
}

func TestWebhookSenderDoesNotRetryClientErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ws := NewWebhookSender(&ManagerConfig{
		WebhookURL:     srv.URL,
		WebhookTimeout: 2 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     10 * time.Millisecond,
	})

	err := ws.Send(context.Background(), &Alert{ResidentID: "r1", Status: models.StatusMissing})
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts, "client errors are not retried")
}
