// Package skewtune implements SkewTuneMaster (SPEC_FULL.md §4.5): one
// instance per active task-set, tracking per-task block inventories and
// speeds, and deciding — at each RegisterNewTask call — whether to split
// work between the currently slowest and fastest tasks. The bookkeeping
// style (plain maps guarded by one mutex, float64 running means) is
// grounded on the teacher's master/cluster.ExecutorManager and
// pkg/notifier.Notifier, neither of which has SkewTune's domain but both of
// which show the same "small mutable maps behind one lock, no extra
// machinery" texture for per-entity state.
package skewtune

import (
	"sync"

	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/pkg/log"
)

// networkKey identifies one directed executor pair for network_speed.
type networkKey struct {
	from coretypes.ExecutorID
	to   coretypes.ExecutorID
}

// Config exposes the knobs SPEC_FULL.md §9 asks implementers to surface
// instead of hard-coding.
type Config struct {
	// MinActiveTasksToSplit is the secondary split-trigger threshold: below
	// this many active tasks, compute_and_split declines even if the
	// cap-based trigger fired. Default 3.
	MinActiveTasksToSplit int
}

// DefaultConfig returns SPEC_FULL.md §9's chosen defaults.
func DefaultConfig() Config {
	return Config{MinActiveTasksToSplit: 3}
}

// CapacityProvider is the narrow collaborator SkewTuneMaster needs from the
// driver: the current Σ total_cores across registered executors.
type CapacityProvider interface {
	TotalCoreCount() int64
}

// Dispatcher is the narrow collaborator SkewTuneMaster needs to actually
// deliver commands: send one envelope to the executor owning a task, dropping
// (and logging) if that executor is no longer registered.
type Dispatcher interface {
	SendToExecutor(executorID coretypes.ExecutorID, env message.Envelope) error
}

// Master is one task-set's SkewTune controller.
type Master struct {
	mu sync.Mutex

	cfg      Config
	cap      CapacityProvider
	dispatch Dispatcher

	registeredTasks map[coretypes.TaskID]coretypes.ExecutorID
	taskBlocks      map[coretypes.TaskID][]coretypes.SkewTuneBlockInfo
	taskResults     map[coretypes.TaskID]map[coretypes.BlockID]struct{}
	taskComputeSpeed map[coretypes.TaskID]float64
	networkSpeed     map[networkKey]float64

	activeTasks map[coretypes.TaskID]struct{}
	finishedOrRunningCount int

	// demonTasks is modeled as an ordered slice plus a membership set: tasks
	// are appended at the back and removed by id, with FIFO unlock order
	// when every demon task is released at once.
	demonTasks     []coretypes.TaskID
	demonTasksSet  map[coretypes.TaskID]struct{}

	unlockedTaskID *coretypes.TaskID

	// pendingTasksInSet counts down to zero as the task-set manager informs
	// us this was the last outstanding task to register; it is supplied by
	// the caller (the task-set manager's own accounting is out of scope).
	pendingTasksInSet int
}

// New returns an empty SkewTuneMaster for one task-set.
func New(cap CapacityProvider, dispatch Dispatcher, cfg Config) *Master {
	return &Master{
		cfg:              cfg,
		cap:              cap,
		dispatch:         dispatch,
		registeredTasks:  make(map[coretypes.TaskID]coretypes.ExecutorID),
		taskBlocks:       make(map[coretypes.TaskID][]coretypes.SkewTuneBlockInfo),
		taskResults:      make(map[coretypes.TaskID]map[coretypes.BlockID]struct{}),
		taskComputeSpeed: make(map[coretypes.TaskID]float64),
		networkSpeed:     make(map[networkKey]float64),
		activeTasks:      make(map[coretypes.TaskID]struct{}),
		demonTasksSet:    make(map[coretypes.TaskID]struct{}),
	}
}

// SetPendingTasksInSet records how many tasks of this set have not yet
// registered, used to compute is_last_task. Called by the driver as it
// learns this count from the (out-of-scope) task-set manager.
func (m *Master) SetPendingTasksInSet(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingTasksInSet = n
}

func (m *Master) cardinality() int64 {
	if m.cap == nil {
		return 0
	}
	return m.cap.TotalCoreCount()
}

// RegisterNewTask implements the RegisterNewTask handler of SPEC_FULL.md
// §4.5: record the mapping if new, install the block list, mark active,
// then evaluate the split trigger.
func (m *Master) RegisterNewTask(taskID coretypes.TaskID, executorID coretypes.ExecutorID, blocks []coretypes.SkewTuneBlockInfo) {
	m.mu.Lock()

	if _, ok := m.registeredTasks[taskID]; !ok {
		m.registeredTasks[taskID] = executorID
		m.taskBlocks[taskID] = append([]coretypes.SkewTuneBlockInfo(nil), blocks...)
		m.activeTasks[taskID] = struct{}{}
		m.finishedOrRunningCount++
	}

	cap := m.cardinality()
	isLast := m.pendingTasksInSet == 0

	if cap > 0 && int64(m.finishedOrRunningCount) >= cap {
		m.mu.Unlock()
		m.computeAndSplit(taskID, isLast)
		return
	}

	queued := false
	if len(m.demonTasks) < int(cap)-1 {
		m.demonTasks = append(m.demonTasks, taskID)
		m.demonTasksSet[taskID] = struct{}{}
		queued = true
	}

	if isLast {
		toUnlock := append([]coretypes.TaskID(nil), m.demonTasks...)
		m.demonTasks = nil
		m.demonTasksSet = make(map[coretypes.TaskID]struct{})
		m.mu.Unlock()
		for _, t := range toUnlock {
			m.sendUnlock(t)
		}
		return
	}

	m.mu.Unlock()

	// A demon task waits locked until a split plan or the last-task flush
	// releases it.
	if queued {
		m.sendLock(taskID)
	}
}

func (m *Master) sendLock(taskID coretypes.TaskID) {
	m.mu.Lock()
	executorID, ok := m.registeredTasks[taskID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := m.dispatch.SendToExecutor(executorID, message.LockTask{TaskID: taskID}); err != nil {
		log.L().Warn("skewtune: failed to send LockTask",
			zap.Int64("task_id", int64(taskID)), zap.Error(err))
	}
}

func (m *Master) sendUnlock(taskID coretypes.TaskID) {
	m.mu.Lock()
	executorID, ok := m.registeredTasks[taskID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := m.dispatch.SendToExecutor(executorID, message.UnlockTask{TaskID: taskID}); err != nil {
		log.L().Warn("skewtune: failed to send UnlockTask",
			zap.Int64("task_id", int64(taskID)), zap.Error(err))
	}
}

// PurgeExecutor drops the bookkeeping for every task registered on a
// removed executor: the tasks leave the active and demon sets (their
// executor can no longer act on an unlock), and the unlocked-task marker is
// cleared if it pointed at one of them. Called by the driver's
// RemoveExecutor handler.
func (m *Master) PurgeExecutor(executorID coretypes.ExecutorID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for taskID, owner := range m.registeredTasks {
		if owner != executorID {
			continue
		}
		if _, ok := m.activeTasks[taskID]; ok {
			delete(m.activeTasks, taskID)
			if m.finishedOrRunningCount > 0 {
				m.finishedOrRunningCount--
			}
		}
		if _, ok := m.demonTasksSet[taskID]; ok {
			delete(m.demonTasksSet, taskID)
			m.demonTasks = removeTaskID(m.demonTasks, taskID)
		}
		if m.unlockedTaskID != nil && *m.unlockedTaskID == taskID {
			m.unlockedTaskID = nil
		}
	}
}

// ReportTaskFinished implements SPEC_FULL.md §4.5's ReportTaskFinished
// handler: decrement liveness counters and remove the task from
// active/demon sets, clearing unlockedTaskID if it pointed at this task.
func (m *Master) ReportTaskFinished(taskID coretypes.TaskID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.activeTasks[taskID]; ok {
		delete(m.activeTasks, taskID)
		if m.finishedOrRunningCount > 0 {
			m.finishedOrRunningCount--
		}
	}
	if _, ok := m.demonTasksSet[taskID]; ok {
		delete(m.demonTasksSet, taskID)
		m.demonTasks = removeTaskID(m.demonTasks, taskID)
	}
	if m.unlockedTaskID != nil && *m.unlockedTaskID == taskID {
		m.unlockedTaskID = nil
	}
}

// ReportBlockStatuses implements SPEC_FULL.md §4.5's ReportBlockStatuses
// handler: apply per-block state transitions (pending->fetched,
// fetched->consumed, reassigned) to task_blocks/task_results.
func (m *Master) ReportBlockStatuses(taskID coretypes.TaskID, updates []coretypes.BlockStatusUpdate, newOwner *coretypes.TaskID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.taskResults[taskID] == nil {
		m.taskResults[taskID] = make(map[coretypes.BlockID]struct{})
	}

	for _, u := range updates {
		switch u.Status {
		case coretypes.BlockStatusFetched:
			blocks := m.taskBlocks[taskID]
			for i, b := range blocks {
				if b.BlockID == u.BlockID {
					m.taskBlocks[taskID] = append(blocks[:i], blocks[i+1:]...)
					m.taskResults[taskID][u.BlockID] = struct{}{}
					break
				}
			}
		case coretypes.BlockStatusConsumed:
			delete(m.taskResults[taskID], u.BlockID)
		case coretypes.BlockStatusPending:
			// no-op: block is already pending by default.
		}
	}

	if newOwner != nil {
		for _, u := range updates {
			if _, ok := m.taskResults[taskID][u.BlockID]; ok {
				delete(m.taskResults[taskID], u.BlockID)
				if m.taskResults[*newOwner] == nil {
					m.taskResults[*newOwner] = make(map[coretypes.BlockID]struct{})
				}
				m.taskResults[*newOwner][u.BlockID] = struct{}{}
			}
		}
	}
}

// ReportTaskComputeSpeed overwrites task_compute_speed[t].
func (m *Master) ReportTaskComputeSpeed(taskID coretypes.TaskID, speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskComputeSpeed[taskID] = speed
}

// ReportBlockDownloadSpeed updates network_speed[(from,to)] to the average
// of its previous value and the new sample, initializing with the first
// sample when absent. Later samples therefore weigh more than earlier ones.
func (m *Master) ReportBlockDownloadSpeed(from, to coretypes.ExecutorID, speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := networkKey{from: from, to: to}
	if prev, ok := m.networkSpeed[key]; ok {
		m.networkSpeed[key] = (prev + speed) / 2
	} else {
		m.networkSpeed[key] = speed
	}
}

func removeTaskID(s []coretypes.TaskID, id coretypes.TaskID) []coretypes.TaskID {
	for i, t := range s {
		if t == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
