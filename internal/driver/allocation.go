package driver

import (
	"context"

	"github.com/skewsched/coredriver/internal/coretypes"
	derrors "github.com/skewsched/coredriver/pkg/errors"
)

// requestExecutors implements SPEC_FULL.md §4.3's request_executors(delta):
// numPendingExecutors += delta, then delegate the recomputed target.
func (e *Endpoint) requestExecutors(ctx context.Context, delta int) error {
	if delta < 0 {
		return derrors.ErrInvalidArgument.GenWithStackByArgs("request_executors: delta must be >= 0")
	}
	pending := e.registry.AdjustPendingExecutors(delta)
	return e.doRequestTotal(ctx, pending)
}

// requestTotalExecutors implements SPEC_FULL.md §4.3's
// request_total_executors(n): numPendingExecutors = max(n - existing +
// |pending_remove|, 0).
func (e *Endpoint) requestTotalExecutors(ctx context.Context, n int) error {
	if n < 0 {
		return derrors.ErrInvalidArgument.GenWithStackByArgs("request_total_executors: n must be >= 0")
	}
	existing := int(e.registry.TotalRegisteredExecutors())
	pendingRemove := e.registry.PendingToRemoveCount()
	target := n - existing + pendingRemove
	pending := e.registry.SetPendingExecutors(target)
	return e.doRequestTotal(ctx, pending)
}

// killExecutors implements SPEC_FULL.md §4.3's kill_executors(ids): filter
// to registered ids, recompute the total around the kill, mark them
// pending-remove, then delegate both the total and the kill.
func (e *Endpoint) killExecutors(ctx context.Context, ids []coretypes.ExecutorID) error {
	if ids == nil {
		return derrors.ErrInvalidArgument.GenWithStackByArgs("kill_executors: ids must not be nil")
	}

	filtered := make([]coretypes.ExecutorID, 0, len(ids))
	for _, id := range ids {
		if e.registry.Exists(id) {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	existing := int(e.registry.TotalRegisteredExecutors())
	pending := e.registry.NumPendingExecutors()
	pendingRemove := e.registry.PendingToRemoveCount()
	newTotal := existing + pending - pendingRemove - len(filtered)
	if newTotal < 0 {
		newTotal = 0
	}

	if err := e.cluster.DoRequestTotalExecutors(ctx, newTotal); err != nil {
		return err
	}

	e.registry.MarkPendingToRemove(filtered)

	return e.doKillExecutors(ctx, filtered)
}

func (e *Endpoint) doRequestTotal(ctx context.Context, pending int) error {
	existing := int(e.registry.TotalRegisteredExecutors())
	pendingRemove := e.registry.PendingToRemoveCount()
	total := existing + pending - pendingRemove
	if total < 0 {
		total = 0
	}
	return e.cluster.DoRequestTotalExecutors(ctx, total)
}

func (e *Endpoint) doKillExecutors(ctx context.Context, ids []coretypes.ExecutorID) error {
	return e.cluster.DoKillExecutors(ctx, ids)
}

// defaultParallelism implements SPEC_FULL.md §4.6's
// default_parallelism() = max(total_core_count, 2), unless the
// default_parallelism config key overrides it.
func (e *Endpoint) defaultParallelism() int64 {
	if e.cfg.DefaultParallelism > 0 {
		return int64(e.cfg.DefaultParallelism)
	}
	if n := e.registry.TotalCoreCount(); n > 2 {
		return n
	}
	return 2
}

// numExistingExecutors returns the registry's current executor count.
func (e *Endpoint) numExistingExecutors() int64 {
	return e.registry.TotalRegisteredExecutors()
}
