package metrics

import "github.com/arloliu/shardcoord/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. It is the default for every component.
type NopMetrics struct{}

var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// OrNop returns collector, or a no-op collector when collector is nil.
func OrNop(collector types.MetricsCollector) types.MetricsCollector {
	if collector == nil {
		return NewNop()
	}

	return collector
}

// RegistryMetrics implementation

func (n *NopMetrics) RecordRegistrySnapshot(_, _, _ int) {}
func (n *NopMetrics) RecordRegistryCorruption()          {}
func (n *NopMetrics) RecordRegistryEventDropped()        {}

func (n *NopMetrics) RecordFleetStates(_ map[types.LifecycleState]int) {}

// LifecycleMetrics implementation

func (n *NopMetrics) RecordLifecycleTransition(_, _ types.LifecycleState) {}
func (n *NopMetrics) RecordEntryCleanup(_ string)                        {}

// ElectionMetrics implementation

func (n *NopMetrics) RecordElectionEvent(_ string, _ types.ElectionEvent) {}
func (n *NopMetrics) RecordLeadershipChange(_ string, _ bool)             {}

// DirectoryMetrics implementation

func (n *NopMetrics) RecordDirectoryOperation(_ string, _ float64, _ bool) {}
func (n *NopMetrics) RecordConnectionState(_ bool)                        {}
