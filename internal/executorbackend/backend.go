// Package executorbackend implements ExecutorBackend (SPEC_FULL.md §4.4):
// the per-executor endpoint that owns a task executor and the per-task fetch
// iterators that SkewTune rebalances out of band. It mirrors the teacher's
// split between executor/server.go (the gRPC-facing registration/heartbeat
// loop) and executor/runtime.Runtime (the task-running loop), folded into
// one single-consumer actor per SPEC_FULL.md §5.
package executorbackend

import (
	"sync"

	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	derrors "github.com/skewsched/coredriver/pkg/errors"
	"github.com/skewsched/coredriver/pkg/log"
)

// State is the ExecutorBackend's lifecycle state machine:
// Connecting -> Registered -> Running -> Stopping -> Stopped.
type State int32

const (
	StateConnecting State = iota
	StateRegistered
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateRegistered:
		return "Registered"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// DriverClient is the narrow surface ExecutorBackend needs on the driver
// connection: sending executor->driver messages. Registration is not part
// of it.
type DriverClient interface {
	Send(env message.Envelope) error
}

// Backend is one executor process's message handler. Mailbox delivery
// guarantees per-sender FIFO order (SPEC_FULL.md §5); callers are expected
// to invoke the Handle* methods from a single goroutine draining that
// mailbox.
type Backend struct {
	mu sync.Mutex

	executorID coretypes.ExecutorID
	state      State

	taskExecutor TaskExecutor
	driver       DriverClient

	iterators map[coretypes.TaskID]*FetchIterator
	lockState map[coretypes.TaskID]bool

	// onUnlock, when set, is invoked after HandleUnlockTask clears a task's
	// lock so a cooperative runner can requeue the parked task.
	onUnlock func(taskID coretypes.TaskID)

	stopOnce sync.Once
	stopFn   func()
}

// New returns a backend in the Connecting state. stopFn is invoked exactly
// once by HandleStopExecutor to shut down the RPC environment.
func New(executorID coretypes.ExecutorID, driver DriverClient, stopFn func()) *Backend {
	return &Backend{
		executorID: executorID,
		state:      StateConnecting,
		driver:     driver,
		iterators:  make(map[coretypes.TaskID]*FetchIterator),
		lockState:  make(map[coretypes.TaskID]bool),
		stopFn:     stopFn,
	}
}

// SetRegistered transitions Connecting -> Registered and installs the task
// executor that will run LaunchTask payloads. Registration failure is
// handled by the caller terminating the process (SPEC_FULL.md §4.4); this
// method only records the successful case.
func (b *Backend) SetRegistered(exec TaskExecutor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taskExecutor = exec
	b.state = StateRegistered
}

// SetRunning transitions Registered -> Running once the backend starts
// accepting LaunchTask messages.
func (b *Backend) SetRunning() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateRunning
}

// CurrentState returns the backend's lifecycle state.
func (b *Backend) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Backend) iterator(taskID coretypes.TaskID) (*FetchIterator, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.iterators[taskID]
	return it, ok
}

// RegisterTaskIterator installs a fresh FetchIterator for a newly-launched
// task, seeded with its initial block list.
func (b *Backend) RegisterTaskIterator(taskID coretypes.TaskID, initial []coretypes.SkewTuneBlockInfo) *FetchIterator {
	b.mu.Lock()
	defer b.mu.Unlock()
	it := NewFetchIterator(taskID, initial)
	b.iterators[taskID] = it
	return it
}

// HandleLaunchTask deserializes and hands a task off to the task executor
// (SPEC_FULL.md §4.4). Absence of a task executor is fatal to the process;
// the caller is expected to exit non-zero on a non-nil error of this kind.
func (b *Backend) HandleLaunchTask(desc coretypes.TaskDescription) error {
	b.mu.Lock()
	exec := b.taskExecutor
	b.mu.Unlock()
	if exec == nil {
		return derrors.ErrTaskExecutorAbsent.GenWithStackByArgs(desc.TaskID)
	}
	return exec.LaunchTask(desc)
}

// HandleKillTask delegates to the task executor. Absence of a task executor
// is fatal, matching HandleLaunchTask.
func (b *Backend) HandleKillTask(taskID coretypes.TaskID, interrupt bool) error {
	b.mu.Lock()
	exec := b.taskExecutor
	it := b.iterators[taskID]
	b.mu.Unlock()
	if exec == nil {
		return derrors.ErrTaskExecutorAbsent.GenWithStackByArgs(taskID)
	}
	if it != nil {
		it.Kill()
	}
	return exec.KillTask(taskID, interrupt)
}

// HandleStopExecutor stops the task executor, then the backend itself, then
// shuts down the RPC environment via stopFn (SPEC_FULL.md §4.4).
func (b *Backend) HandleStopExecutor() {
	b.mu.Lock()
	exec := b.taskExecutor
	b.state = StateStopping
	b.mu.Unlock()

	if exec != nil {
		exec.Stop()
	}

	b.mu.Lock()
	b.state = StateStopped
	b.mu.Unlock()

	b.stopOnce.Do(func() {
		if b.stopFn != nil {
			b.stopFn()
		}
	})
}

// HandleRemoveFetchCommand removes the named pending fetches from a task's
// iterator and, if any were actually removed, reports them to the driver via
// TransferRemovedFetch so they can be re-queued on the receiving task.
func (b *Backend) HandleRemoveFetchCommand(cmd message.RemoveFetchCommand) error {
	it, ok := b.iterator(cmd.TaskID)
	if !ok {
		log.L().Warn("RemoveFetchCommand for unknown task", zap.Int64("task_id", int64(cmd.TaskID)))
		return nil
	}

	var ids []coretypes.BlockID
	for _, blocks := range cmd.BlocksByHost {
		ids = append(ids, blocks...)
	}
	removed := it.RemoveFetchRequests(ids)
	if len(removed) == 0 {
		return nil
	}

	byHost := make(message.BlocksWithSizeByHost)
	for _, b := range removed {
		byHost[b.HostBlockMgr] = append(byHost[b.HostBlockMgr], b)
	}

	return b.driver.Send(message.TransferRemovedFetch{
		NextExecutorID:       cmd.NextExecutorID,
		NextTaskID:           cmd.NextTaskID,
		BlocksWithSizeByHost: byHost,
	})
}

// HandleAddFetchCommand enqueues additional fetches on the named task's
// iterator.
func (b *Backend) HandleAddFetchCommand(cmd message.AddFetchCommand) {
	it, ok := b.iterator(cmd.TaskID)
	if !ok {
		log.L().Warn("AddFetchCommand for unknown task", zap.Int64("task_id", int64(cmd.TaskID)))
		return
	}
	var blocks []coretypes.SkewTuneBlockInfo
	for _, bs := range cmd.BlocksWithSizeByHost {
		blocks = append(blocks, bs...)
	}
	it.AddFetchRequests(blocks)
}

// HandleRemoveAndAddResultCommand moves already-fetched block results from
// the from_task iterator to the to_task iterator, skipping blocks absent
// from the source.
func (b *Backend) HandleRemoveAndAddResultCommand(cmd message.RemoveAndAddResultCommand) {
	from, ok := b.iterator(cmd.FromTask)
	if !ok {
		log.L().Warn("RemoveAndAddResultCommand: unknown from_task", zap.Int64("task_id", int64(cmd.FromTask)))
		return
	}
	to, ok := b.iterator(cmd.ToTask)
	if !ok {
		log.L().Warn("RemoveAndAddResultCommand: unknown to_task", zap.Int64("task_id", int64(cmd.ToTask)))
		return
	}
	moved := from.RemoveFetchResults(cmd.BlockIDs)
	to.AddFetchResults(moved)
}

// HandleLockTask sets is_locked on the named task's iterator and mirrors it
// in the per-executor lock-status table.
func (b *Backend) HandleLockTask(taskID coretypes.TaskID) {
	it, ok := b.iterator(taskID)
	if !ok {
		log.L().Warn("LockTask for unknown task", zap.Int64("task_id", int64(taskID)))
		return
	}
	it.Lock()
	b.mu.Lock()
	b.lockState[taskID] = true
	b.mu.Unlock()
}

// HandleUnlockTask clears is_locked on the named task's iterator, waking any
// consumer blocked in WaitWhileLocked.
func (b *Backend) HandleUnlockTask(taskID coretypes.TaskID) {
	it, ok := b.iterator(taskID)
	if !ok {
		log.L().Warn("UnlockTask for unknown task", zap.Int64("task_id", int64(taskID)))
		return
	}
	it.Unlock()
	b.mu.Lock()
	b.lockState[taskID] = false
	hook := b.onUnlock
	b.mu.Unlock()
	if hook != nil {
		hook(taskID)
	}
}

// SetUnlockHook installs the callback HandleUnlockTask fires after clearing
// a task's lock.
func (b *Backend) SetUnlockHook(hook func(taskID coretypes.TaskID)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUnlock = hook
}

// IsTaskLocked reports the mirrored per-executor lock status for a task.
func (b *Backend) IsTaskLocked(taskID coretypes.TaskID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lockState[taskID]
}

// RemoveTaskIterator drops a finished task's iterator and lock-status entry.
func (b *Backend) RemoveTaskIterator(taskID coretypes.TaskID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.iterators, taskID)
	delete(b.lockState, taskID)
}
