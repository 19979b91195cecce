package election

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/shardcoord/types"
)

// Task is singleton background work run only by the group leader.
type Task func(ctx context.Context) error

// RunWhileMaster runs task immediately and then every interval, skipping
// every round in which this instance is not the leader. Leadership is
// checked with IsMaster right before each round, so a follower never runs
// task even if its local view of the election lags.
//
// Task errors are logged and do not stop the loop.
//
// Returns:
//   - error: nil when ctx is done, types.ErrElectionStopped once the elector
//     is closed, types.ErrInvalidArgument for a bad interval or nil task
func (e *Elector) RunWhileMaster(ctx context.Context, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", types.ErrInvalidArgument, interval)
	}
	if task == nil {
		return fmt.Errorf("%w: task is nil", types.ErrInvalidArgument)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.ctx.Done():
			return types.ErrElectionStopped
		default:
		}

		e.runIfMaster(ctx, task)

		select {
		case <-ctx.Done():
			return nil
		case <-e.ctx.Done():
			return types.ErrElectionStopped
		case <-ticker.C:
		}
	}
}

func (e *Elector) runIfMaster(ctx context.Context, task Task) {
	master, err := e.IsMaster(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("leader check failed, skipping round", "election_path", e.groupPath, "error", err)
		}

		return
	}
	if !master {
		return
	}

	if err := task(ctx); err != nil && ctx.Err() == nil {
		e.logger.Warn("leader task failed", "election_path", e.groupPath, "error", err)
	}
}
