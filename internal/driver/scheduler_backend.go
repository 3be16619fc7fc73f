package driver

import (
	"context"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/internal/rpcutil"
)

// SchedulerBackend is the external task scheduler's view of the driver
// (SPEC_FULL.md §4.6): start/stop lifecycle, task kill, parallelism and
// executor-count queries, the executor-allocation API, and the readiness
// gate. Every ask-style method retries with bounded backoff via
// internal/rpcutil and surfaces ErrSchedulerAskFailed on exhaustion.
type SchedulerBackend struct {
	e      *Endpoint
	policy rpcutil.BackoffPolicy
}

// NewSchedulerBackend wraps an Endpoint with the SchedulerBackend API.
func NewSchedulerBackend(e *Endpoint) *SchedulerBackend {
	return &SchedulerBackend{e: e, policy: rpcutil.DefaultBackoffPolicy()}
}

// Start launches the underlying DriverEndpoint.
func (s *SchedulerBackend) Start(ctx context.Context) error {
	return s.e.Start(ctx)
}

// Stop tears down the underlying DriverEndpoint.
func (s *SchedulerBackend) Stop() error {
	return s.e.Stop()
}

// StopExecutors broadcasts StopExecutor to every registered executor
// without tearing down the driver itself.
func (s *SchedulerBackend) StopExecutors() {
	s.e.Post(message.StopExecutors{})
}

// ReviveOffers enqueues a self-addressed ReviveOffers, the same trigger the
// revive timer posts periodically.
func (s *SchedulerBackend) ReviveOffers() {
	s.e.Post(message.ReviveOffers{})
}

// KillTask enqueues a KillTask for the executor currently running taskID;
// the mailbox serializes it with every other handler turn.
func (s *SchedulerBackend) KillTask(executorID coretypes.ExecutorID, taskID coretypes.TaskID, interrupt bool) {
	s.e.Post(message.KillTask{TaskID: taskID, ExecutorID: executorID, Interrupt: interrupt})
}

// DefaultParallelism returns max(total_core_count, 2).
func (s *SchedulerBackend) DefaultParallelism() int64 {
	return s.e.defaultParallelism()
}

// NumExistingExecutors returns the registry's current executor count.
func (s *SchedulerBackend) NumExistingExecutors() int64 {
	return s.e.numExistingExecutors()
}

// IsReady reports the driver's readiness gate.
func (s *SchedulerBackend) IsReady() bool {
	return s.e.isReady()
}

// RequestExecutors asks the cluster manager to grow the pending-executor
// count by delta.
func (s *SchedulerBackend) RequestExecutors(ctx context.Context, delta int) error {
	_, err := rpcutil.AskWithRetry[struct{}](ctx, "cluster-manager", s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.e.requestExecutors(ctx, delta)
	})
	return err
}

// RequestTotalExecutors asks the cluster manager to converge to a total of
// n executors.
func (s *SchedulerBackend) RequestTotalExecutors(ctx context.Context, n int) error {
	_, err := rpcutil.AskWithRetry[struct{}](ctx, "cluster-manager", s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.e.requestTotalExecutors(ctx, n)
	})
	return err
}

// KillExecutors asks the cluster manager to kill the named executors.
func (s *SchedulerBackend) KillExecutors(ctx context.Context, ids []coretypes.ExecutorID) error {
	_, err := rpcutil.AskWithRetry[struct{}](ctx, "cluster-manager", s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.e.killExecutors(ctx, ids)
	})
	return err
}

// RemoveExecutor is a request-reply ask for acknowledgment that an
// executor was removed from the registry.
func (s *SchedulerBackend) RemoveExecutor(ctx context.Context, id coretypes.ExecutorID, reason string) error {
	_, err := rpcutil.AskWithRetry[struct{}](ctx, string(id), s.policy, func(ctx context.Context) (struct{}, error) {
		return s.e.removeExecutorSync(ctx, id, reason)
	})
	return err
}
