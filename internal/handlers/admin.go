package handlers

import (
	"log/slog"
	"net/http"

	"github.com/afikmenashe/alert-distribution/pkg/metrics"
)

// PurgeResponse reports how many alerts were deleted.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// PurgeTestData deletes alerts created before the cutoff, with their deliveries.
// DELETE /admin/test-data?before=RFC3339
func (h *Handlers) PurgeTestData(w http.ResponseWriter, r *http.Request) {
	if h.purger == nil {
		writeError(w, http.StatusServiceUnavailable, CodeNotConfigured, "purge is not configured")
		return
	}
	before, ok := parseTime(w, r, "before")
	if !ok {
		return
	}

	n, err := h.purger.PurgeAlerts(r.Context(), before)
	if err != nil {
		handleError(w, err, "purge")
		return
	}
	slog.Info("Purged alerts", "before", before, "deleted", n)
	writeJSON(w, http.StatusOK, PurgeResponse{Deleted: n})
}

// ServiceMetricsResponse wraps service metrics with known service list.
type ServiceMetricsResponse struct {
	Services      map[string]*metrics.ServiceMetrics `json:"services"`
	KnownServices []string                           `json:"known_services"`
}

// GetServiceMetrics returns metrics for all services from Redis.
// GET /api/v1/services/metrics
func (h *Handlers) GetServiceMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metricsReader == nil {
		writeError(w, http.StatusServiceUnavailable, CodeNotConfigured, "service metrics are not configured")
		return
	}
	ctx := r.Context()

	if serviceName := r.URL.Query().Get("service"); serviceName != "" {
		serviceMetrics, err := h.metricsReader.GetServiceMetrics(ctx, serviceName)
		if err != nil {
			slog.Warn("Failed to get service metrics", "service", serviceName, "error", err)
			serviceMetrics = &metrics.ServiceMetrics{
				ServiceName: serviceName,
				Status:      metrics.StatusOffline,
			}
		}
		writeJSON(w, http.StatusOK, serviceMetrics)
		return
	}

	allMetrics, err := h.metricsReader.GetAllServiceMetrics(ctx)
	if err != nil {
		slog.Error("Failed to get all service metrics", "error", err)
		writeError(w, http.StatusServiceUnavailable, CodeDownstreamUnavailable, "Failed to retrieve service metrics")
		return
	}

	// Include known services that might be offline
	for _, name := range metrics.ServiceNames {
		if _, exists := allMetrics[name]; !exists {
			allMetrics[name] = &metrics.ServiceMetrics{
				ServiceName: name,
				Status:      metrics.StatusOffline,
			}
		}
	}

	writeJSON(w, http.StatusOK, ServiceMetricsResponse{
		Services:      allMetrics,
		KnownServices: metrics.ServiceNames,
	})
}

// Health reports liveness.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
