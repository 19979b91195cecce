package main

import (
	"context"

	"github.com/arloliu/shardcoord"
)

// publishFleetStates returns the leader task that exports per-state shard
// counts from the router's snapshot. Running it on one process keeps the
// fleet gauges free of duplicate series across shards.
func publishFleetStates(router *shardcoord.Router, collector shardcoord.MetricsCollector) func(context.Context) error {
	return func(context.Context) error {
		collector.RecordFleetStates(router.StateCounts())
		return nil
	}
}
