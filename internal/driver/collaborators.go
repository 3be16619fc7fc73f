// Package driver implements DriverEndpoint and the SchedulerBackend API
// (SPEC_FULL.md §4.3, §4.6): the single-consumer actor that holds executor
// registrations, makes resource offers, dispatches tasks, and reaps status
// updates and SkewTune reports. Its event-queue shape is grounded on the
// teacher's lib/master.WorkerManager (an eventQueue-driven manager with
// callbacks and a background checker goroutine), generalized from
// worker-management to executor/task-offer management.
package driver

import (
	"context"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/internal/registry"
)

// TaskScheduler is the external task-set manager collaborator named
// out-of-scope by SPEC_FULL.md §1: priority, locality, and speculation
// internals live entirely on the other side of this interface, the way
// servermaster/scheduler.CapacityProvider narrows an out-of-scope
// collaborator to the handful of methods the in-scope code actually calls.
type TaskScheduler interface {
	// ResourceOffers receives a snapshot of (executor, host, free_cores)
	// offers and returns task descriptions to launch, already bound to an
	// executor id and still carrying opaque serialized task bytes.
	ResourceOffers(offers []Offer) []coretypes.TaskDescription

	// StatusUpdate forwards one executor's task status report.
	StatusUpdate(taskID coretypes.TaskID, state coretypes.TaskState, data []byte)

	// ExecutorLost notifies the scheduler that an executor is gone and why.
	ExecutorLost(executorID coretypes.ExecutorID, reason string)

	// AbortTaskSet is called when launchTasks finds a task whose serialized
	// size reaches the frame-size budget; dispatch never happens for that
	// task.
	AbortTaskSet(taskSetID coretypes.TaskSetID, reason string)
}

// Offer is the (id, host, free_cores) tuple handed to the task scheduler's
// resourceOffers, re-exported here so callers of this package don't need to
// import internal/registry just to read offers back.
type Offer struct {
	ExecutorID coretypes.ExecutorID
	Host       string
	FreeCores  int
}

// TaskCodec serializes a TaskDescription's opaque payload. LaunchTask's
// bytes are produced by this codec and never re-serialized by the
// transport, per SPEC_FULL.md §4.1.
type TaskCodec interface {
	Encode(desc coretypes.TaskDescription) ([]byte, error)
}

// ExecutorTransport sends one envelope to a specific executor's endpoint,
// resolved through the RPC environment (SPEC_FULL.md §9's addressable
// handle design note). Implementations should treat an unknown executor id
// as a no-op-with-log, matching the UNKNOWN_EXECUTOR error kind.
type ExecutorTransport interface {
	SendToExecutor(ctx context.Context, executorID coretypes.ExecutorID, env message.Envelope) error
	BroadcastToAllExecutors(ctx context.Context, env message.Envelope) error
}

// ClusterManager is the cluster-manager-specific executor provisioning
// collaborator named out-of-scope by SPEC_FULL.md §1 (YARN/Mesos/Standalone
// differ here); DriverEndpoint only ever asks it to converge to a total.
type ClusterManager interface {
	DoRequestTotalExecutors(ctx context.Context, total int) error
	DoKillExecutors(ctx context.Context, ids []coretypes.ExecutorID) error
}

// LifecycleEvent is published on the lifecycle event bus. ExecutorData is
// populated for ExecutorAdded and nil for ExecutorRemoved; Reason is
// populated for ExecutorRemoved and empty for ExecutorAdded.
type LifecycleEvent struct {
	Kind         LifecycleEventKind
	ExecutorID   coretypes.ExecutorID
	Timestamp    int64
	ExecutorData *registry.ExecutorData
	Reason       string
}

// LifecycleEventKind discriminates LifecycleEvent variants.
type LifecycleEventKind int

const (
	ExecutorAdded LifecycleEventKind = iota
	ExecutorRemoved
)
