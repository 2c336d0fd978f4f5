// Package server exposes the tracker over HTTP for command posts and
// field tablets on the local network.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bantayph/bantay/internal/alert"
	"github.com/bantayph/bantay/internal/cache"
	"github.com/bantayph/bantay/internal/connectivity"
	"github.com/bantayph/bantay/internal/metrics"
	"github.com/bantayph/bantay/internal/models"
	"github.com/bantayph/bantay/internal/store"
	"github.com/bantayph/bantay/internal/tracker"
	"github.com/bantayph/bantay/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	tracker        *tracker.Tracker
	store          store.Store
	cache          cache.Cache
	monitor        *connectivity.Monitor
	alerter        alert.Alerter
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	trk *tracker.Tracker,
	s store.Store,
	c cache.Cache,
	monitor *connectivity.Monitor,
	alerter alert.Alerter,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         config,
		tracker:        trk,
		store:          s,
		cache:          c,
		monitor:        monitor,
		alerter:        alerter,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Dashboard and resident endpoints
	api.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")
	api.HandleFunc("/residents", s.listResidentsHandler).Methods("GET")
	api.HandleFunc("/residents/{id}", s.getResidentHandler).Methods("GET")
	api.HandleFunc("/centers/stats", s.centerStatsHandler).Methods("GET")

	// Status log endpoints
	api.HandleFunc("/status-updates", s.recordStatusUpdatesHandler).Methods("POST")

	// Offline cache endpoints
	api.HandleFunc("/offline/download", s.offlineDownloadHandler).Methods("POST")
	api.HandleFunc("/offline/status", s.offlineStatusHandler).Methods("GET")
	api.HandleFunc("/offline", s.offlineClearHandler).Methods("DELETE")

	// Connectivity endpoints
	api.HandleFunc("/connectivity", s.connectivityStatusHandler).Methods("GET")
	api.HandleFunc("/connectivity/force-offline", s.forceOfflineHandler).Methods("POST")
	api.HandleFunc("/connectivity/resume", s.resumeOnlineHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err.Error()).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before reporting success
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
		s.updateComponentMetrics()
	}
}

func (s *HTTPServer) updateComponentMetrics() {
	pm := s.metricsManager.GetPrometheusMetrics()

	if s.store != nil {
		pm.UpdateComponentHealth("store", s.store.GetHealth().Healthy)
	}
	if s.cache != nil {
		pm.UpdateComponentHealth("cache", s.cache.GetHealth().Healthy)
	}
	if s.monitor != nil {
		pm.UpdateComponentHealth("connectivity", s.monitor.IsOnline())
	}
	if s.alerter != nil {
		pm.UpdateComponentHealth("alert", s.alerter.IsHealthy())
	}
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   "1.0.0",
		"online":    s.monitor.IsOnline(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns detailed health status
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   "1.0.0",
		"online":    s.monitor.IsOnline(),
		"components": map[string]interface{}{
			"store":        s.store.GetHealth(),
			"cache":        s.cache.GetHealth(),
			"connectivity": s.monitor.GetStats(),
		},
	}

	if s.alerter != nil {
		health["components"].(map[string]interface{})["alert"] = s.alerter.IsHealthy()
	}
	if s.metricsManager != nil {
		health["uptime_seconds"] = int64(s.metricsManager.Uptime().Seconds())
	}

	s.writeJSON(w, http.StatusOK, health)
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":    time.Now(),
		"connectivity": s.monitor.GetStats(),
	}

	if s.monitor.IsOnline() {
		storeStats, err := s.store.GetStats(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve store stats", err)
			return
		}
		stats["store"] = storeStats
	}

	if offline, err := s.tracker.GetOfflineStatus(r.Context()); err == nil {
		stats["offline_cache"] = offline
	}

	if s.alerter != nil {
		stats["alerts"] = s.alerter.GetStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Dashboard Handlers

// dashboardHandler returns the resolved situational picture
func (s *HTTPServer) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	scope := parseScope(r)

	dashboard, err := s.tracker.LoadDashboard(r.Context(), scope)
	if err != nil {
		s.writeAppError(w, "Failed to load dashboard", err)
		return
	}

	s.writeJSON(w, http.StatusOK, dashboard)
}

// listResidentsHandler lists residents with their resolved status
func (s *HTTPServer) listResidentsHandler(w http.ResponseWriter, r *http.Request) {
	scope := parseScope(r)
	statusFilter := r.URL.Query().Get("status")

	dashboard, err := s.tracker.LoadDashboard(r.Context(), scope)
	if err != nil {
		s.writeAppError(w, "Failed to load residents", err)
		return
	}

	residents := dashboard.Residents
	if statusFilter != "" {
		status := models.StatusValue(statusFilter)
		if !status.Valid() {
			s.writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
			return
		}

		filtered := make([]models.ResolvedResident, 0, len(residents))
		for _, resident := range residents {
			if resident.Status == status {
				filtered = append(filtered, resident)
			}
		}
		residents = filtered
	}

	response := map[string]interface{}{
		"residents": residents,
		"total":     len(residents),
		"offline":   dashboard.Offline,
	}
	if dashboard.Warning != "" {
		response["warning"] = dashboard.Warning
	}

	s.writeJSON(w, http.StatusOK, response)
}

// getResidentHandler gets a single resident with resolved status
func (s *HTTPServer) getResidentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	resident, err := s.tracker.GetResident(r.Context(), id)
	if err != nil {
		s.writeAppError(w, "Failed to load resident", err)
		return
	}

	s.writeJSON(w, http.StatusOK, resident)
}

// centerStatsHandler returns evacuation center occupancy statistics
func (s *HTTPServer) centerStatsHandler(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.tracker.LoadDashboard(r.Context(), parseScope(r))
	if err != nil {
		s.writeAppError(w, "Failed to load center stats", err)
		return
	}

	response := map[string]interface{}{
		"center_stats": dashboard.CenterStats,
		"offline":      dashboard.Offline,
		"timestamp":    dashboard.GeneratedAt,
	}

	s.writeJSON(w, http.StatusOK, response)
}

// Status Log Handlers

type statusUpdateRequest struct {
	Updates []*models.StatusLogEntry `json:"updates"`
}

// recordStatusUpdatesHandler appends a batch of status updates
func (s *HTTPServer) recordStatusUpdatesHandler(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if len(req.Updates) == 0 {
		s.writeError(w, http.StatusBadRequest, "At least one update is required", nil)
		return
	}

	for _, update := range req.Updates {
		if update.ResidentID == "" {
			s.writeError(w, http.StatusBadRequest, "Each update requires a resident_id", nil)
			return
		}
		if !update.Status.Valid() {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid status value: %s", update.Status), nil)
			return
		}
	}

	if err := s.tracker.RecordStatusUpdates(r.Context(), req.Updates); err != nil {
		s.writeAppError(w, "Failed to record status updates", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Status updates recorded",
		"recorded": len(req.Updates),
	})
}

// Offline Cache Handlers

type offlineDownloadRequest struct {
	Municipality string `json:"municipality"`
}

// offlineDownloadHandler snapshots a municipality into the offline cache
func (s *HTTPServer) offlineDownloadHandler(w http.ResponseWriter, r *http.Request) {
	var req offlineDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := s.tracker.DownloadForOffline(r.Context(), req.Municipality)
	if err != nil {
		s.writeAppError(w, "Failed to download offline data", err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// offlineStatusHandler reports what the offline cache holds
func (s *HTTPServer) offlineStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.tracker.GetOfflineStatus(r.Context())
	if err != nil {
		s.writeAppError(w, "Failed to read offline status", err)
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

// offlineClearHandler wipes the offline cache
func (s *HTTPServer) offlineClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ClearOffline(r.Context()); err != nil {
		s.writeAppError(w, "Failed to clear offline cache", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Offline cache cleared",
	})
}

// Connectivity Handlers

// connectivityStatusHandler reports the connectivity verdict
func (s *HTTPServer) connectivityStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.GetStats())
}

// forceOfflineHandler pins the tracker offline
func (s *HTTPServer) forceOfflineHandler(w http.ResponseWriter, r *http.Request) {
	s.monitor.ForceOffline(true)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Connectivity forced offline",
	})
}

// resumeOnlineHandler clears a forced-offline override
func (s *HTTPServer) resumeOnlineHandler(w http.ResponseWriter, r *http.Request) {
	s.monitor.ForceOffline(false)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Connectivity override cleared",
	})
}

// Utility Methods

func parseScope(r *http.Request) models.ScopeFilter {
	query := r.URL.Query()

	scope := models.ScopeFilter{
		Municipality: query.Get("municipality"),
		Barangay:     query.Get("barangay"),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			scope.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			scope.Offset = offset
		}
	}

	return scope
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}

// writeAppError maps application error codes to HTTP statuses.
func (s *HTTPServer) writeAppError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError

	switch {
	case utils.HasCode(err, utils.ErrCodeValidation), utils.HasCode(err, utils.ErrCodeInvalidScope):
		status = http.StatusBadRequest
	case utils.HasCode(err, utils.ErrCodeNotFound):
		status = http.StatusNotFound
	case utils.HasCode(err, utils.ErrCodeRemoteFetchFailed):
		status = http.StatusServiceUnavailable
	case utils.HasCode(err, utils.ErrCodeStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	s.writeError(w, status, message, err)
}
