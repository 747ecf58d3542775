package health

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gmanldn/actifix/internal/ticketstore"
)

var Info = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "actifix",
		Name:      "info",
		Help:      "Build and version information, always 1.",
	},
	[]string{"version"},
)

var TicketsTotal = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "actifix",
		Subsystem: "tickets",
		Name:      "total",
		Help:      "Total number of tickets ever created.",
	},
)

var TicketsOpen = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "actifix",
		Subsystem: "tickets",
		Name:      "open",
		Help:      "Number of tickets currently open.",
	},
)

var TicketsCompleted = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "actifix",
		Subsystem: "tickets",
		Name:      "completed",
		Help:      "Number of tickets currently completed.",
	},
)

var TicketsByPriority = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "actifix",
		Subsystem: "tickets",
		Name:      "by_priority",
		Help:      "Number of open tickets by priority.",
	},
	[]string{"priority"},
)

var HealthStatus = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "actifix",
		Name:      "health_status",
		Help:      "Overall health status: 0=healthy, 1=warning, 2=critical.",
	},
)

var GeneratedAtSeconds = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "actifix",
		Name:      "health_generated_at_seconds",
		Help:      "Unix timestamp of the last health snapshot generation.",
	},
)

// All returns every Actifix metric for registration with a Prometheus registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		Info,
		TicketsTotal,
		TicketsOpen,
		TicketsCompleted,
		TicketsByPriority,
		HealthStatus,
		GeneratedAtSeconds,
	}
}

// Observe pushes a Snapshot's counts and a ticket store's stats into the
// registered Prometheus gauges. Call this before each /metrics scrape.
func Observe(snap Snapshot, stats ticketstore.Stats, version string) {
	Info.WithLabelValues(version).Set(1)
	TicketsTotal.Set(float64(stats.Total))
	TicketsOpen.Set(float64(snap.OpenCount))
	TicketsCompleted.Set(float64(snap.CompletedCount))

	for priority, count := range stats.ByPriority {
		TicketsByPriority.WithLabelValues(string(priority)).Set(float64(count))
	}

	switch snap.Status {
	case StatusHealthy:
		HealthStatus.Set(0)
	case StatusWarning:
		HealthStatus.Set(1)
	case StatusCritical:
		HealthStatus.Set(2)
	}

	GeneratedAtSeconds.Set(float64(snap.GeneratedAt.Unix()))
}
