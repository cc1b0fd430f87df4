package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Log writer metrics, labelled by log name ("tool_calls", "sessions").
	EventsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_activity_events_written_total",
		Help: "Lines appended to an activity log",
	}, []string{"log"})
	WriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_activity_write_failures_total",
		Help: "Appends dropped because of a marshal or I/O error",
	}, []string{"log", "stage"})

	// Reader metrics
	MalformedLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_activity_malformed_lines_total",
		Help: "Unparseable lines skipped during a scan",
	}, []string{"log"})
	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcp_activity_scan_duration_seconds",
		Help:    "Full linear scan duration",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"log"})

	// Tool call metrics
	ToolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcp_activity_tool_call_duration_seconds",
		Help:    "Recorded tool call duration",
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
	}, []string{"mcp", "tool"})
	ToolCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_activity_tool_call_errors_total",
		Help: "Recorded tool calls that ended in an error",
	}, []string{"mcp", "tool"})

	// Orphan detection
	OrphanSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcp_activity_orphan_sessions",
		Help: "Suspected orphan sessions found by the last detection run",
	})

	// Mirror sinks
	MirrorDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_activity_mirror_dropped_total",
		Help: "Events dropped by a mirror sink because its buffer was full",
	}, []string{"sink"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
