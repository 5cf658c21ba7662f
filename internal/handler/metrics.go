package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/driveline/driveline/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
//
// GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "driveline_chat_requests_total", "method", snap.ChatRequests)
	writeMetric(w, "driveline_chat_rejected_total %d\n", snap.ChatRejected)
	writeMetric(w, "driveline_chat_duration_seconds_count %d\n", snap.ChatDurationCount)
	writeMetric(w, "driveline_chat_duration_seconds_sum %.6f\n", float64(snap.ChatDurationTotalNs)/1e9)

	writeLabeled(w, "driveline_llm_calls_total", "status", snap.LLMCalls)

	writeMetric(w, "driveline_vin_decode_cache_hits_total %d\n", snap.VINDecodeCacheHits)
	writeMetric(w, "driveline_vin_decode_cache_misses_total %d\n", snap.VINDecodeCacheMiss)

	writeMetric(w, "driveline_scans_started_total %d\n", snap.ScansStarted)
	writeLabeled(w, "driveline_scans_finished_total", "status", snap.ScansFinished)

	writeMetric(w, "driveline_magic_links_requested_total %d\n", snap.MagicLinksRequested)
	writeLabeled(w, "driveline_magic_links_verified_total", "status", snap.MagicLinksVerified)

	writeLabeled(w, "driveline_history_events_published_total", "status", snap.HistoryPublished)
	writeLabeled(w, "driveline_history_events_processed_total", "status", snap.HistoryProcessed)
	writeMetric(w, "driveline_history_batches_total %d\n", snap.HistoryBatchCount)
	writeMetric(w, "driveline_history_batch_records_total %d\n", snap.HistoryBatchTotal)
	writeMetric(w, "driveline_history_queue_depth %d\n", snap.HistoryQueueDepth)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// writeLabeled emits one line per label value in stable order.
func writeLabeled(w http.ResponseWriter, name, label string, counters map[string]uint64) {
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "%s{%s=%q} %d\n", name, label, k, counters[k])
	}
}
