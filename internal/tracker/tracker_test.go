package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bantayph/bantay/internal/alert"
	"github.com/bantayph/bantay/internal/cache"
	"github.com/bantayph/bantay/internal/connectivity"
	"github.com/bantayph/bantay/internal/models"
	"github.com/bantayph/bantay/internal/store"
	"github.com/bantayph/bantay/pkg/utils"
)

// mockStore is an in-memory store.Store for tracker tests.
type mockStore struct {
	residents []*models.Resident
	centers   []*models.EvacCenter
	event     *models.DisasterEvent
	log       []*models.StatusLogEntry

	fetchErr  error
	appendErr error
	appended  []*models.StatusLogEntry
	nextSeq   int64
}

func (m *mockStore) Connect() error                     { return nil }
func (m *mockStore) Close() error                       { return nil }
func (m *mockStore) Ping() error                        { return nil }
func (m *mockStore) PingContext(ctx context.Context) error { return nil }
func (m *mockStore) Migrate() error                     { return nil }

func (m *mockStore) FetchResidents(ctx context.Context, scope models.ScopeFilter) ([]*models.Resident, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	filtered := make([]*models.Resident, 0, len(m.residents))
	for _, r := range m.residents {
		if scope.Municipality != "" && r.Municipality != scope.Municipality {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (m *mockStore) GetResident(ctx context.Context, id string) (*models.Resident, error) {
	for _, r := range m.residents {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, utils.NewAppError(utils.ErrCodeNotFound, "Resident not found", id)
}

func (m *mockStore) SaveResident(ctx context.Context, resident *models.Resident) error {
	m.residents = append(m.residents, resident)
	return nil
}

func (m *mockStore) FetchEvacCenters(ctx context.Context) ([]*models.EvacCenter, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.centers, nil
}

func (m *mockStore) SaveEvacCenter(ctx context.Context, center *models.EvacCenter) error {
	m.centers = append(m.centers, center)
	return nil
}

func (m *mockStore) FetchActiveEvent(ctx context.Context) (*models.DisasterEvent, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.event, nil
}

func (m *mockStore) SaveEvent(ctx context.Context, event *models.DisasterEvent) error {
	m.event = event
	return nil
}

func (m *mockStore) FetchStatusLog(ctx context.Context, filter models.StatusLogFilter) ([]*models.StatusLogEntry, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	entries := make([]*models.StatusLogEntry, 0, len(m.log))
	for _, e := range m.log {
		if filter.EventID != "" && e.EventID != filter.EventID {
			continue
		}
		if len(filter.ResidentIDs) > 0 && !containsID(filter.ResidentIDs, e.ResidentID) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func (m *mockStore) AppendStatusLog(ctx context.Context, entries []*models.StatusLogEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}

	for _, e := range entries {
		m.nextSeq++
		e.Seq = m.nextSeq
		m.log = append(m.log, e)
		m.appended = append(m.appended, e)
	}
	return nil
}

func (m *mockStore) GetStats(ctx context.Context) (*store.StoreStats, error) {
	return &store.StoreStats{}, nil
}

func (m *mockStore) GetHealth() *store.StoreHealth {
	return &store.StoreHealth{Healthy: true}
}

// recordingAlerter captures alert notifications.
type recordingAlerter struct {
	notified []*models.StatusLogEntry
}

func (a *recordingAlerter) Start(ctx context.Context) error { return nil }
func (a *recordingAlerter) Stop() error                     { return nil }
func (a *recordingAlerter) IsHealthy() bool                 { return true }
func (a *recordingAlerter) GetStats() *alert.AlertStats     { return &alert.AlertStats{} }

func (a *recordingAlerter) NotifyStatusChanges(ctx context.Context, event *models.DisasterEvent, entries []*models.StatusLogEntry) {
	for _, e := range entries {
		if e.Status == models.StatusMissing || e.Status == models.StatusDeceased {
			a.notified = append(a.notified, e)
		}
	}
}

type fixture struct {
	tracker *Tracker
	store   *mockStore
	cache   cache.Cache
	monitor *connectivity.Monitor
	alerter *recordingAlerter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	ms := &mockStore{
		event: &models.DisasterEvent{ID: "event-1", Name: "Typhoon Ambo", Active: true},
	}

	c := cache.NewSQLiteCache(&cache.CacheConfig{
		Path:           filepath.Join(t.TempDir(), "offline.db"),
		MaxConnections: 4,
		MaxIdleTime:    time.Minute,
	})
	require.NoError(t, c.Open())
	require.NoError(t, c.Migrate())
	t.Cleanup(func() { c.Close() })

	monitor := connectivity.NewMonitor(ms, &connectivity.MonitorConfig{
		ProbeInterval:    time.Minute,
		ProbeTimeout:     time.Second,
		FailureThreshold: 3,
		StartOnline:      true,
	}, nil)

	alerter := &recordingAlerter{}

	return &fixture{
		tracker: New(ms, c, monitor, alerter, nil),
		store:   ms,
		cache:   c,
		monitor: monitor,
		alerter: alerter,
	}
}

func resident(id, municipality string) *models.Resident {
	return &models.Resident{ID: id, Municipality: municipality, Barangay: "Poblacion"}
}

func TestLoadDashboardOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{resident("r1", "San Isidro"), resident("r2", "San Isidro")}
	f.store.centers = []*models.EvacCenter{{ID: "c1", Name: "Poblacion Gym", Capacity: 10, Active: true}}

	centerID := "c1"
	f.store.log = []*models.StatusLogEntry{
		{Seq: 1, ResidentID: "r1", EventID: "event-1", Status: models.StatusEvacuated, EvacCenterID: &centerID, RecordedAt: time.Now()},
	}

	dashboard, err := f.tracker.LoadDashboard(ctx, models.ScopeFilter{})
	require.NoError(t, err)

	assert.False(t, dashboard.Offline)
	assert.Empty(t, dashboard.Warning)
	require.NotNil(t, dashboard.Event)
	assert.Equal(t, "event-1", dashboard.Event.ID)

	require.Len(t, dashboard.Residents, 2)
	assert.Equal(t, models.StatusEvacuated, dashboard.Residents[0].Status)
	assert.Equal(t, models.StatusUnknown, dashboard.Residents[1].Status)

	require.Len(t, dashboard.CenterStats, 1)
	assert.Equal(t, 1, dashboard.CenterStats[0].Occupancy)
}

func TestLoadDashboardOfflineDegradation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{resident("r1", "San Isidro")}
	f.store.log = []*models.StatusLogEntry{
		{Seq: 1, ResidentID: "r1", EventID: "event-1", Status: models.StatusSafe, RecordedAt: time.Now()},
	}

	_, err := f.tracker.DownloadForOffline(ctx, "San Isidro")
	require.NoError(t, err)

	f.monitor.ForceOffline(true)

	dashboard, err := f.tracker.LoadDashboard(ctx, models.ScopeFilter{})
	require.NoError(t, err)

	assert.True(t, dashboard.Offline)
	assert.NotEmpty(t, dashboard.Warning)
	require.Len(t, dashboard.Residents, 1)
	assert.Equal(t, models.StatusUnknown, dashboard.Residents[0].Status,
		"cached statuses are never reused, residents degrade to unknown")
	t.Logf("✓ Offline dashboard degrades to unknown statuses with a warning")
}

func TestLoadDashboardFallsBackWhenFetchFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{resident("r1", "San Isidro")}

	_, err := f.tracker.DownloadForOffline(ctx, "San Isidro")
	require.NoError(t, err)

	// Store dies between the probe and the request.
	f.store.fetchErr = utils.NewAppError(utils.ErrCodeRemoteFetchFailed, "connection refused", "")

	dashboard, err := f.tracker.LoadDashboard(ctx, models.ScopeFilter{})
	require.NoError(t, err)

	assert.True(t, dashboard.Offline)
	require.Len(t, dashboard.Residents, 1)
	assert.Equal(t, models.StatusUnknown, dashboard.Residents[0].Status)
}

func TestLoadDashboardOfflineScopeFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{
		resident("r1", "San Isidro"),
		resident("r2", "San Isidro"),
	}
	f.store.residents[1].Barangay = "Malinta"

	_, err := f.tracker.DownloadForOffline(ctx, "San Isidro")
	require.NoError(t, err)

	f.monitor.ForceOffline(true)

	dashboard, err := f.tracker.LoadDashboard(ctx, models.ScopeFilter{Barangay: "Malinta"})
	require.NoError(t, err)
	require.Len(t, dashboard.Residents, 1)
	assert.Equal(t, "r2", dashboard.Residents[0].ID)
}

func TestRecordStatusUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updates := []*models.StatusLogEntry{
		{ResidentID: "r1", Status: models.StatusSafe},
		{ResidentID: "r2", Status: models.StatusMissing},
	}

	err := f.tracker.RecordStatusUpdates(ctx, updates)
	require.NoError(t, err)

	require.Len(t, f.store.appended, 2)
	assert.Equal(t, "event-1", f.store.appended[0].EventID, "event id is filled from the active event")
	assert.False(t, f.store.appended[0].RecordedAt.IsZero())

	require.Len(t, f.alerter.notified, 1)
	assert.Equal(t, "r2", f.alerter.notified[0].ResidentID)
	t.Logf("✓ Critical status triggers an alert, routine status does not")
}

func TestRecordStatusUpdatesRejectedOffline(t *testing.T) {
	f := newFixture(t)
	f.monitor.ForceOffline(true)

	err := f.tracker.RecordStatusUpdates(context.Background(), []*models.StatusLogEntry{
		{ResidentID: "r1", Status: models.StatusSafe},
	})

	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeRemoteFetchFailed))
	assert.Empty(t, f.store.appended)
}

func TestRecordStatusUpdatesRequiresActiveEvent(t *testing.T) {
	f := newFixture(t)
	f.store.event = nil

	err := f.tracker.RecordStatusUpdates(context.Background(), []*models.StatusLogEntry{
		{ResidentID: "r1", Status: models.StatusSafe},
	})

	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeInvalidScope))
}

func TestRecordStatusUpdatesRejectsInactiveEvent(t *testing.T) {
	f := newFixture(t)

	err := f.tracker.RecordStatusUpdates(context.Background(), []*models.StatusLogEntry{
		{ResidentID: "r1", EventID: "event-0", Status: models.StatusSafe},
	})

	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))
}

func TestDownloadForOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{
		resident("r1", "San Isidro"),
		resident("r2", "San Isidro"),
		resident("r3", "Santa Rosa"),
	}
	f.store.centers = []*models.EvacCenter{{ID: "c1", Name: "Poblacion Gym", Capacity: 10}}

	result, err := f.tracker.DownloadForOffline(ctx, "San Isidro")
	require.NoError(t, err)

	assert.Equal(t, "San Isidro", result.Municipality)
	assert.Equal(t, 2, result.Residents, "only the requested municipality is downloaded")
	assert.Equal(t, 1, result.EvacCenters)

	status, err := f.tracker.GetOfflineStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Downloaded)
	assert.Equal(t, "San Isidro", status.Municipality)
	assert.Equal(t, int64(2), status.Residents)
}

func TestDownloadForOfflineReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{
		resident("r1", "San Isidro"),
		resident("r2", "Santa Rosa"),
	}

	_, err := f.tracker.DownloadForOffline(ctx, "San Isidro")
	require.NoError(t, err)

	_, err = f.tracker.DownloadForOffline(ctx, "Santa Rosa")
	require.NoError(t, err)

	status, err := f.tracker.GetOfflineStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Santa Rosa", status.Municipality)
	assert.Equal(t, int64(1), status.Residents, "a new download replaces the previous snapshot")
}

func TestDownloadForOfflineValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.tracker.DownloadForOffline(context.Background(), "")
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))

	f.monitor.ForceOffline(true)
	_, err = f.tracker.DownloadForOffline(context.Background(), "San Isidro")
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeRemoteFetchFailed))
}

func TestClearOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{resident("r1", "San Isidro")}
	_, err := f.tracker.DownloadForOffline(ctx, "San Isidro")
	require.NoError(t, err)

	require.NoError(t, f.tracker.ClearOffline(ctx))

	status, err := f.tracker.GetOfflineStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Downloaded)
	assert.Equal(t, int64(0), status.Residents)
}

func TestGetResidentResolvesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{resident("r1", "San Isidro"), resident("r2", "San Isidro")}

	centerID := "c1"
	f.store.log = []*models.StatusLogEntry{
		{Seq: 1, ResidentID: "r1", EventID: "event-1", Status: models.StatusEvacuated, EvacCenterID: &centerID, RecordedAt: time.Now().Add(-time.Hour)},
		{Seq: 2, ResidentID: "r1", EventID: "event-1", Status: models.StatusSafe, RecordedAt: time.Now()},
	}

	resolved, err := f.tracker.GetResident(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", resolved.ID)
	assert.Equal(t, models.StatusSafe, resolved.Status)

	// No log entry yet for r2.
	resolved, err = f.tracker.GetResident(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, resolved.Status)

	_, err = f.tracker.GetResident(ctx, "r999")
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeNotFound))
	t.Logf("✓ Single-resident lookup resolves from the status log")
}

func TestGetResidentOfflineFallsBackToCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.residents = []*models.Resident{resident("r1", "San Isidro")}
	f.store.log = []*models.StatusLogEntry{
		{Seq: 1, ResidentID: "r1", EventID: "event-1", Status: models.StatusSafe, RecordedAt: time.Now()},
	}

	_, err := f.tracker.DownloadForOffline(ctx, "San Isidro")
	require.NoError(t, err)

	f.monitor.ForceOffline(true)

	resolved, err := f.tracker.GetResident(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, resolved.Status, "cached lookup cannot know the live status")

	_, err = f.tracker.GetResident(ctx, "r2")
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeNotFound))
}

func TestImportRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch := &ImportBatch{
		Residents: []*models.Resident{resident("r1", "San Isidro"), resident("r2", "San Isidro")},
		EvacCenters: []*models.EvacCenter{
			{ID: "c1", Name: "Poblacion Gym", Municipality: "San Isidro", Capacity: 100, Active: true},
		},
		Events: []*models.DisasterEvent{
			{ID: "event-2", Name: "Typhoon Butchoy", Active: true},
		},
	}

	result, err := f.tracker.ImportRecords(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Residents)
	assert.Equal(t, 1, result.EvacCenters)
	assert.Equal(t, 1, result.Events)

	assert.Len(t, f.store.residents, 2)
	assert.Len(t, f.store.centers, 1)
	assert.Equal(t, "event-2", f.store.event.ID)
	t.Logf("✓ Import upserts master records into the remote store")
}

func TestImportRecordsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.ImportRecords(ctx, &ImportBatch{})
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))

	_, err = f.tracker.ImportRecords(ctx, &ImportBatch{
		Residents: []*models.Resident{{Municipality: "San Isidro"}},
	})
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation), "resident without id is rejected")
}

func TestImportRecordsRejectedOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.monitor.ForceOffline(true)

	_, err := f.tracker.ImportRecords(ctx, &ImportBatch{
		Residents: []*models.Resident{resident("r1", "San Isidro")},
	})
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeRemoteFetchFailed))
	assert.Empty(t, f.store.residents)
}
