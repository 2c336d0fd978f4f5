// Package tracker coordinates the remote store, the offline cache, the
// resolution engine, and alerting into the operations the CLI and HTTP
// API expose.
package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bantayph/bantay/internal/alert"
	"github.com/bantayph/bantay/internal/cache"
	"github.com/bantayph/bantay/internal/connectivity"
	"github.com/bantayph/bantay/internal/metrics"
	"github.com/bantayph/bantay/internal/models"
	"github.com/bantayph/bantay/internal/resolve"
	"github.com/bantayph/bantay/internal/store"
	"github.com/bantayph/bantay/pkg/utils"
)

// Tracker is the application core. All methods are safe for concurrent
// use; the tracker itself holds no mutable state beyond its components.
type Tracker struct {
	store   store.Store
	cache   cache.Cache
	monitor *connectivity.Monitor
	alerter alert.Alerter
	logger  *logrus.Logger
	metrics *metrics.Manager
}

// Dashboard is the full situational picture for one resolution pass.
type Dashboard struct {
	Event       *models.DisasterEvent      `json:"event,omitempty"`
	Residents   []models.ResolvedResident  `json:"residents"`
	Counts      map[models.StatusValue]int `json:"counts"`
	CenterStats []models.CenterStats       `json:"center_stats"`
	Offline     bool                       `json:"offline"`
	Warning     string                     `json:"warning,omitempty"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// DownloadResult summarizes one offline download.
type DownloadResult struct {
	Municipality string    `json:"municipality"`
	Residents    int       `json:"residents"`
	EvacCenters  int       `json:"evac_centers"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// OfflineStatus reports what the offline cache currently holds.
type OfflineStatus struct {
	Downloaded   bool       `json:"downloaded"`
	Municipality string     `json:"municipality,omitempty"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	Residents    int64      `json:"residents"`
	EvacCenters  int64      `json:"evac_centers"`
}

const offlineWarning = "Remote store unreachable: statuses degraded to unknown from offline cache"

// New creates a tracker over its components. The alerter may be nil
// when alerting is disabled.
func New(s store.Store, c cache.Cache, m *connectivity.Monitor, a alert.Alerter, mm *metrics.Manager) *Tracker {
	return &Tracker{
		store:   s,
		cache:   c,
		monitor: m,
		alerter: a,
		logger:  utils.GetLogger(),
		metrics: mm,
	}
}

// IsOnline reports the connectivity verdict the tracker acts on.
func (t *Tracker) IsOnline() bool {
	return t.monitor.IsOnline()
}

// LoadDashboard produces the current situational picture for the given
// scope. Online it resolves statuses from the remote log; offline, or
// when the remote fetch fails mid-request, it degrades to the cached
// roster with every status Unknown and an explanatory warning.
func (t *Tracker) LoadDashboard(ctx context.Context, scope models.ScopeFilter) (*Dashboard, error) {
	if t.monitor.IsOnline() {
		dashboard, err := t.loadOnline(ctx, scope)
		if err == nil {
			return dashboard, nil
		}

		if !utils.HasCode(err, utils.ErrCodeRemoteFetchFailed) {
			return nil, err
		}

		t.logger.WithField("error", err.Error()).Warn("Remote fetch failed, degrading to offline cache")
	}

	return t.loadOffline(ctx, scope)
}

func (t *Tracker) loadOnline(ctx context.Context, scope models.ScopeFilter) (*Dashboard, error) {
	start := time.Now()

	residents, err := t.store.FetchResidents(ctx, scope)
	if err != nil {
		return nil, err
	}

	centers, err := t.store.FetchEvacCenters(ctx)
	if err != nil {
		return nil, err
	}

	event, err := t.store.FetchActiveEvent(ctx)
	if err != nil {
		return nil, err
	}

	var log []*models.StatusLogEntry
	eventID := ""
	if event != nil {
		eventID = event.ID
		log, err = t.store.FetchStatusLog(ctx, models.StatusLogFilter{EventID: eventID})
		if err != nil {
			return nil, err
		}
	}

	result, err := resolve.Resolve(residents, log, eventID)
	if err != nil {
		t.recordResolution("online", "error", len(residents), start)
		return nil, err
	}

	t.recordResolution("online", "success", len(residents), start)
	t.updateStatusGauges(result)

	return &Dashboard{
		Event:       event,
		Residents:   resolve.ResolvedView(residents, result),
		Counts:      result.Counts,
		CenterStats: resolve.BuildCenterStats(centers, result),
		GeneratedAt: time.Now(),
	}, nil
}

func (t *Tracker) loadOffline(ctx context.Context, scope models.ScopeFilter) (*Dashboard, error) {
	start := time.Now()

	residents, err := t.cachedResidents(ctx, scope)
	if err != nil {
		return nil, err
	}

	centers, err := t.cachedEvacCenters(ctx)
	if err != nil {
		return nil, err
	}

	result := resolve.ResolveOffline(residents)
	t.recordResolution("offline", "success", len(residents), start)

	return &Dashboard{
		Residents:   resolve.ResolvedView(residents, result),
		Counts:      result.Counts,
		CenterStats: resolve.BuildCenterStats(centers, result),
		Offline:     true,
		Warning:     offlineWarning,
		GeneratedAt: time.Now(),
	}, nil
}

// GetResident looks up one resident and resolves their current status
// against the active event's log. Offline it falls back to the cached
// roster, where every status is Unknown.
func (t *Tracker) GetResident(ctx context.Context, id string) (*models.ResolvedResident, error) {
	if id == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Resident id is required", "")
	}

	if !t.monitor.IsOnline() {
		return t.cachedResident(ctx, id)
	}

	resident, err := t.store.GetResident(ctx, id)
	if err != nil {
		if utils.HasCode(err, utils.ErrCodeRemoteFetchFailed) {
			t.logger.WithField("error", err.Error()).Warn("Remote fetch failed, looking up resident in offline cache")
			return t.cachedResident(ctx, id)
		}
		return nil, err
	}

	event, err := t.store.FetchActiveEvent(ctx)
	if err != nil {
		return nil, err
	}

	var log []*models.StatusLogEntry
	eventID := ""
	if event != nil {
		eventID = event.ID
		log, err = t.store.FetchStatusLog(ctx, models.StatusLogFilter{
			EventID:     eventID,
			ResidentIDs: []string{id},
		})
		if err != nil {
			return nil, err
		}
	}

	result, err := resolve.Resolve([]*models.Resident{resident}, log, eventID)
	if err != nil {
		return nil, err
	}

	view := resolve.ResolvedView([]*models.Resident{resident}, result)
	return &view[0], nil
}

func (t *Tracker) cachedResident(ctx context.Context, id string) (*models.ResolvedResident, error) {
	residents, err := t.cachedResidents(ctx, models.ScopeFilter{})
	if err != nil {
		return nil, err
	}

	for _, resident := range residents {
		if resident.ID == id {
			return &models.ResolvedResident{Resident: *resident, Status: models.StatusUnknown}, nil
		}
	}

	return nil, utils.NewAppError(utils.ErrCodeNotFound, "Resident not found", id)
}

// ImportBatch is a set of master records to upsert into the remote
// store, used by the seed command to load rosters and centers.
type ImportBatch struct {
	Residents   []*models.Resident      `json:"residents"`
	EvacCenters []*models.EvacCenter    `json:"evac_centers"`
	Events      []*models.DisasterEvent `json:"events"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Residents   int `json:"residents"`
	EvacCenters int `json:"evac_centers"`
	Events      int `json:"events"`
}

// ImportRecords upserts master records into the remote store. Like the
// status-log write path it requires connectivity; the cache holds only
// downloaded snapshots, never locally authored records.
func (t *Tracker) ImportRecords(ctx context.Context, batch *ImportBatch) (*ImportResult, error) {
	if batch == nil || (len(batch.Residents) == 0 && len(batch.EvacCenters) == 0 && len(batch.Events) == 0) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Import batch is empty", "")
	}
	if !t.monitor.IsOnline() {
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed,
			"Cannot import records while offline", "")
	}

	result := &ImportResult{}

	for _, resident := range batch.Residents {
		if resident.ID == "" {
			return result, utils.NewAppError(utils.ErrCodeValidation, "Resident requires an id", "")
		}
		if err := t.store.SaveResident(ctx, resident); err != nil {
			return result, err
		}
		result.Residents++
	}

	for _, center := range batch.EvacCenters {
		if center.ID == "" {
			return result, utils.NewAppError(utils.ErrCodeValidation, "Evacuation center requires an id", "")
		}
		if err := t.store.SaveEvacCenter(ctx, center); err != nil {
			return result, err
		}
		result.EvacCenters++
	}

	for _, event := range batch.Events {
		if event.ID == "" {
			return result, utils.NewAppError(utils.ErrCodeValidation, "Disaster event requires an id", "")
		}
		if err := t.store.SaveEvent(ctx, event); err != nil {
			return result, err
		}
		result.Events++
	}

	t.logger.WithFields(logrus.Fields{
		"residents":    result.Residents,
		"evac_centers": result.EvacCenters,
		"events":       result.Events,
	}).Info("Records imported")

	return result, nil
}

// RecordStatusUpdates appends entries to the remote status log. Writes
// require connectivity: the append-only log lives only in the remote
// store, so offline reporting is rejected rather than silently queued.
func (t *Tracker) RecordStatusUpdates(ctx context.Context, entries []*models.StatusLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	if !t.monitor.IsOnline() {
		return utils.NewAppError(utils.ErrCodeRemoteFetchFailed,
			"Cannot record status updates while offline", "")
	}

	event, err := t.store.FetchActiveEvent(ctx)
	if err != nil {
		return err
	}
	if event == nil {
		return utils.NewAppError(utils.ErrCodeInvalidScope,
			"Cannot record status updates without an active disaster event", "")
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.EventID == "" {
			entry.EventID = event.ID
		}
		if entry.EventID != event.ID {
			return utils.NewAppError(utils.ErrCodeValidation,
				"Status update targets an inactive disaster event", entry.EventID)
		}
		if entry.RecordedAt.IsZero() {
			entry.RecordedAt = now
		}
	}

	if err := t.store.AppendStatusLog(ctx, entries); err != nil {
		return err
	}

	if t.metrics != nil {
		for _, entry := range entries {
			t.metrics.GetPrometheusMetrics().RecordStatusUpdate(string(entry.Status))
		}
	}

	t.logger.WithFields(logrus.Fields{
		"entries":  len(entries),
		"event_id": event.ID,
	}).Info("Status updates recorded")

	if t.alerter != nil {
		t.alerter.NotifyStatusChanges(ctx, event, entries)
	}

	return nil
}

// DownloadForOffline snapshots the roster and evacuation centers for a
// municipality into the local cache, replacing whatever was cached
// before. The replace happens in one transaction per collection so a
// crash never leaves a mixed snapshot.
func (t *Tracker) DownloadForOffline(ctx context.Context, municipality string) (*DownloadResult, error) {
	if municipality == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Municipality is required", "")
	}
	if !t.monitor.IsOnline() {
		return nil, utils.NewAppError(utils.ErrCodeRemoteFetchFailed,
			"Cannot download offline data while offline", "")
	}

	residents, err := t.store.FetchResidents(ctx, models.ScopeFilter{Municipality: municipality})
	if err != nil {
		return nil, err
	}

	centers, err := t.store.FetchEvacCenters(ctx)
	if err != nil {
		return nil, err
	}

	residentRecords, err := cache.EncodeRecords(residents, func(r *models.Resident) string { return r.ID })
	if err != nil {
		return nil, err
	}
	centerRecords, err := cache.EncodeRecords(centers, func(c *models.EvacCenter) string { return c.ID })
	if err != nil {
		return nil, err
	}

	if err := t.cache.PutCollection(ctx, cache.CollectionResidents, residentRecords); err != nil {
		return nil, err
	}
	if err := t.cache.PutCollection(ctx, cache.CollectionEvacCenters, centerRecords); err != nil {
		return nil, err
	}

	scope := models.OfflineScope{Municipality: municipality, DownloadedAt: time.Now()}
	scopeJSON, err := cache.EncodeMetadata(scope)
	if err != nil {
		return nil, err
	}
	if err := t.cache.SetMetadata(ctx, models.MetaKeyOfflineScope, scopeJSON); err != nil {
		return nil, err
	}

	if t.metrics != nil {
		t.metrics.GetPrometheusMetrics().UpdateCachedRecords(cache.CollectionResidents, len(residents))
		t.metrics.GetPrometheusMetrics().UpdateCachedRecords(cache.CollectionEvacCenters, len(centers))
	}

	t.logger.WithFields(logrus.Fields{
		"municipality": municipality,
		"residents":    len(residents),
		"evac_centers": len(centers),
	}).Info("Offline data downloaded")

	return &DownloadResult{
		Municipality: municipality,
		Residents:    len(residents),
		EvacCenters:  len(centers),
		DownloadedAt: scope.DownloadedAt,
	}, nil
}

// ClearOffline wipes the offline cache entirely.
func (t *Tracker) ClearOffline(ctx context.Context) error {
	if err := t.cache.ClearAll(ctx); err != nil {
		return err
	}

	if t.metrics != nil {
		t.metrics.GetPrometheusMetrics().UpdateCachedRecords(cache.CollectionResidents, 0)
		t.metrics.GetPrometheusMetrics().UpdateCachedRecords(cache.CollectionEvacCenters, 0)
	}

	t.logger.Info("Offline cache cleared")
	return nil
}

// GetOfflineStatus reports what the cache currently holds.
func (t *Tracker) GetOfflineStatus(ctx context.Context) (*OfflineStatus, error) {
	status := &OfflineStatus{}

	raw, found, err := t.cache.GetMetadata(ctx, models.MetaKeyOfflineScope)
	if err != nil {
		return nil, err
	}
	if found {
		var scope models.OfflineScope
		if err := cache.DecodeMetadata(raw, &scope); err != nil {
			return nil, err
		}
		status.Downloaded = true
		status.Municipality = scope.Municipality
		status.DownloadedAt = &scope.DownloadedAt
	}

	status.Residents, err = t.cache.CountCollection(ctx, cache.CollectionResidents)
	if err != nil {
		return nil, err
	}
	status.EvacCenters, err = t.cache.CountCollection(ctx, cache.CollectionEvacCenters)
	if err != nil {
		return nil, err
	}

	return status, nil
}

func (t *Tracker) cachedResidents(ctx context.Context, scope models.ScopeFilter) ([]*models.Resident, error) {
	records, err := t.cache.GetCollection(ctx, cache.CollectionResidents)
	if err != nil {
		return nil, err
	}

	residents, err := cache.DecodeRecords[*models.Resident](records)
	if err != nil {
		return nil, err
	}

	return filterResidents(residents, scope), nil
}

func (t *Tracker) cachedEvacCenters(ctx context.Context) ([]*models.EvacCenter, error) {
	records, err := t.cache.GetCollection(ctx, cache.CollectionEvacCenters)
	if err != nil {
		return nil, err
	}

	return cache.DecodeRecords[*models.EvacCenter](records)
}

// filterResidents applies the scope filter to a cached roster. The
// remote store filters in SQL; the cache filters in memory.
func filterResidents(residents []*models.Resident, scope models.ScopeFilter) []*models.Resident {
	filtered := make([]*models.Resident, 0, len(residents))
	for _, r := range residents {
		if scope.Municipality != "" && r.Municipality != scope.Municipality {
			continue
		}
		if scope.Barangay != "" && r.Barangay != scope.Barangay {
			continue
		}
		filtered = append(filtered, r)
	}

	if scope.Offset > 0 {
		if scope.Offset >= len(filtered) {
			return []*models.Resident{}
		}
		filtered = filtered[scope.Offset:]
	}
	if scope.Limit > 0 && scope.Limit < len(filtered) {
		filtered = filtered[:scope.Limit]
	}

	return filtered
}

func (t *Tracker) recordResolution(mode, status string, entities int, start time.Time) {
	if t.metrics != nil {
		t.metrics.GetPrometheusMetrics().RecordResolution(mode, status, entities, time.Since(start))
	}
}

func (t *Tracker) updateStatusGauges(result *resolve.Result) {
	if t.metrics == nil {
		return
	}

	counts := make(map[string]int, len(result.Counts))
	for status, count := range result.Counts {
		counts[string(status)] = count
	}
	t.metrics.GetPrometheusMetrics().UpdateResidentsByStatus(counts)
}
