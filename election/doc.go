// Package election provides LeaderElector, a per-group leader election
// participant that survives coordination connection loss.
//
// An Elector joins the election at <electionPath>/<group> on Initialize,
// leaves it when the directory reports a disconnect, and rejoins on
// reconnect. IsMaster asks the election primitive who leads and compares the
// answer with this instance's identity; IsHealthy reflects the last event
// observed from the primitive.
//
// Example:
//
//	e := election.New(dir, "/election", "aggregator", hostname,
//	    election.WithLogger(logger))
//	if err := e.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer e.Close(context.Background())
//
//	if isMaster, _ := e.IsMaster(ctx); isMaster {
//	    runSingletonWork(ctx)
//	}
package election
