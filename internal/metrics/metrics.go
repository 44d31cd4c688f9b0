package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection pool metrics
	ConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointwatch_connections_open",
			Help: "Number of pool connections currently open",
		},
	)

	ConnectionsConfigured = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointwatch_connections_configured",
			Help: "Number of configured connection slots",
		},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pointwatch_reconnects_total",
			Help: "Total number of reconnection attempts across all slots",
		},
	)

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointwatch_messages_total",
			Help: "Total number of inbound frames by kind (points, other, malformed)",
		},
		[]string{"kind"},
	)

	PingsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pointwatch_pings_total",
			Help: "Total number of heartbeat frames sent",
		},
	)

	// Points metrics
	PointsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointwatch_points_total",
			Help: "Last server-reported total points",
		},
	)

	PointsToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointwatch_points_today",
			Help: "Last server-reported points earned today",
		},
	)

	PotentialPoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pointwatch_potential_points",
			Help: "Estimated points accrued in the current reward cycle",
		},
	)

	// History archive metrics
	HistoryRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pointwatch_history_rows_total",
			Help: "Total point updates archived to the history database",
		},
	)

	HistoryDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pointwatch_history_dropped_total",
			Help: "Total point updates dropped due to archive backpressure or errors",
		},
	)
)

// Register registers all metrics with the default Prometheus registry.
// Safe to call once at startup.
func Register() {
	prometheus.MustRegister(
		ConnectionsOpen,
		ConnectionsConfigured,
		ReconnectsTotal,
		MessagesTotal,
		PingsTotal,
		PointsTotal,
		PointsToday,
		PotentialPoints,
		HistoryRowsTotal,
		HistoryDroppedTotal,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
