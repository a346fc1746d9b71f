// Package telemetry registers the Prometheus collectors for the engine.
// Metrics are served by the admin HTTP listener via promhttp.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"colloquy/pkg/store"
)

var (
	// ProviderCalls counts provider round-trips by model and outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "colloquy_provider_calls_total",
		Help: "Provider round-trips by model and outcome.",
	}, []string{"model", "outcome"})

	// ProviderLatency observes provider call duration in seconds.
	ProviderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "colloquy_provider_latency_seconds",
		Help:    "Provider call latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// ToolDispatches counts tool invocations by tool and outcome.
	ToolDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "colloquy_tool_dispatches_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	// HydrationPasses counts message-hydration passes.
	HydrationPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "colloquy_hydration_passes_total",
		Help: "Hydration passes over interaction logs.",
	})

	// MigrationSteps counts migration step outcomes.
	MigrationSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "colloquy_migration_steps_total",
		Help: "Schema migration steps by target version and outcome.",
	}, []string{"version", "outcome"})

	// Saves counts persistence saves by outcome.
	Saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "colloquy_saves_total",
		Help: "Interaction saves by outcome.",
	}, []string{"outcome"})
)

func init() {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "colloquy_store_disk_bytes",
		Help: "On-disk size of the pebble store.",
	}, func() float64 {
		return float64(store.GetMetrics().DiskBytes)
	})
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "colloquy_store_wal_bytes",
		Help: "Pebble WAL size in bytes.",
	}, func() float64 {
		return float64(store.GetMetrics().WALBytes)
	})
}
