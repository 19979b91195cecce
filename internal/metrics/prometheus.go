package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/shardcoord/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing
// a collector that is never exercised leaves the registerer untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	registryOnline    prometheus.Gauge
	registryNewUsers  prometheus.Gauge
	registryNewUrls   prometheus.Gauge
	registryCorrupted prometheus.Counter
	registryDropped   prometheus.Counter
	fleetShards       *prometheus.GaugeVec

	lifecycleTransitions *prometheus.CounterVec
	lifecycleState       prometheus.Gauge
	entryCleanups        *prometheus.CounterVec

	electionEvents *prometheus.CounterVec
	electionLeader *prometheus.GaugeVec

	directoryLatency   *prometheus.HistogramVec
	directoryFailures  *prometheus.CounterVec
	directoryConnected prometheus.Gauge
}

var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace ("shardcoord" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "shardcoord"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.registryOnline = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "online_shards",
			Help:      "Number of shards currently registered in the directory.",
		})
		p.registryNewUsers = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "new_user_shards",
			Help:      "Number of shards accepting new users.",
		})
		p.registryNewUrls = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "new_url_shards",
			Help:      "Number of shards accepting new URLs.",
		})
		p.registryCorrupted = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "corrupted_listings_total",
			Help:      "Directory listings rejected because an entry could not be parsed.",
		})
		p.registryDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "dropped_events_total",
			Help:      "Registry events dropped for slow subscribers.",
		})

		p.fleetShards = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "fleet",
			Name:      "shards",
			Help:      "Online shards by lifecycle state, published by the election leader.",
		}, []string{"state"})

		p.lifecycleTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Completed lifecycle transitions by source and target state.",
		}, []string{"from", "to"})
		p.lifecycleState = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "lifecycle",
			Name:      "state",
			Help:      "Current lifecycle state (0 uninitialized, 1 read-write, 2 write-urls-only, 3 read-only).",
		})
		p.entryCleanups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lifecycle",
			Name:      "entry_cleanups_total",
			Help:      "Old directory entry deletion attempts by result.",
		}, []string{"result"})

		p.electionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "events_total",
			Help:      "Election events by group and event.",
		}, []string{"group", "event"})
		p.electionLeader = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "is_leader",
			Help:      "1 when this instance leads the group, 0 otherwise.",
		}, []string{"group"})

		p.directoryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "directory",
			Name:      "operation_duration_seconds",
			Help:      "Latency of coordination directory operations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"op"})
		p.directoryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "directory",
			Name:      "operation_failures_total",
			Help:      "Failed coordination directory operations.",
		}, []string{"op"})
		p.directoryConnected = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "directory",
			Name:      "connected",
			Help:      "1 when the coordination connection is up.",
		})

		p.reg.MustRegister(
			p.registryOnline,
			p.registryNewUsers,
			p.registryNewUrls,
			p.registryCorrupted,
			p.registryDropped,
			p.fleetShards,
			p.lifecycleTransitions,
			p.lifecycleState,
			p.entryCleanups,
			p.electionEvents,
			p.electionLeader,
			p.directoryLatency,
			p.directoryFailures,
			p.directoryConnected,
		)
	})
}

// RecordRegistrySnapshot sets the registry gauges.
func (p *PrometheusCollector) RecordRegistrySnapshot(online, newUsers, newUrls int) {
	p.ensureRegistered()
	p.registryOnline.Set(float64(online))
	p.registryNewUsers.Set(float64(newUsers))
	p.registryNewUrls.Set(float64(newUrls))
}

// RecordRegistryCorruption increments the corrupted listing counter.
func (p *PrometheusCollector) RecordRegistryCorruption() {
	p.ensureRegistered()
	p.registryCorrupted.Inc()
}

// RecordRegistryEventDropped increments the dropped event counter.
func (p *PrometheusCollector) RecordRegistryEventDropped() {
	p.ensureRegistered()
	p.registryDropped.Inc()
}

// RecordFleetStates sets the per-state shard gauges. States missing from
// counts are reported as zero.
func (p *PrometheusCollector) RecordFleetStates(counts map[types.LifecycleState]int) {
	p.ensureRegistered()
	for _, state := range []types.LifecycleState{types.StateReadWrite, types.StateWriteUrlsOnly, types.StateReadOnly} {
		p.fleetShards.WithLabelValues(state.String()).Set(float64(counts[state]))
	}
}

// RecordLifecycleTransition counts the transition and sets the state gauge.
func (p *PrometheusCollector) RecordLifecycleTransition(from, to types.LifecycleState) {
	p.ensureRegistered()
	p.lifecycleTransitions.WithLabelValues(from.String(), to.String()).Inc()
	p.lifecycleState.Set(float64(to))
}

// RecordEntryCleanup counts a deletion attempt outcome.
func (p *PrometheusCollector) RecordEntryCleanup(result string) {
	p.ensureRegistered()
	p.entryCleanups.WithLabelValues(result).Inc()
}

// RecordElectionEvent counts an election event.
func (p *PrometheusCollector) RecordElectionEvent(group string, event types.ElectionEvent) {
	p.ensureRegistered()
	p.electionEvents.WithLabelValues(group, event.String()).Inc()
}

// RecordLeadershipChange sets the leader gauge for group.
func (p *PrometheusCollector) RecordLeadershipChange(group string, isLeader bool) {
	p.ensureRegistered()
	p.electionLeader.WithLabelValues(group).Set(boolToFloat(isLeader))
}

// RecordDirectoryOperation observes latency and counts failures.
func (p *PrometheusCollector) RecordDirectoryOperation(operation string, duration float64, success bool) {
	p.ensureRegistered()
	p.directoryLatency.WithLabelValues(operation).Observe(duration)
	if !success {
		p.directoryFailures.WithLabelValues(operation).Inc()
	}
}

// RecordConnectionState sets the connection gauge.
func (p *PrometheusCollector) RecordConnectionState(connected bool) {
	p.ensureRegistered()
	p.directoryConnected.Set(boolToFloat(connected))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
