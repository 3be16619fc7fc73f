package skewtune

import (
	"sort"

	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	derrors "github.com/skewsched/coredriver/pkg/errors"
	"github.com/skewsched/coredriver/pkg/log"
)

// speedFloor avoids division by zero before any speed sample has arrived
// (SPEC_FULL.md §4.5's weight-estimation formula).
const speedFloor = 1e-6

// plan is the (fetch_commands, result_commands, large, small) tuple
// compute_and_split returns on success.
type plan struct {
	fetchRemovals []fetchRemoval
	resultMoves   []message.RemoveAndAddResultCommand
	large         coretypes.TaskID
	small         coretypes.TaskID
}

// fetchRemoval pairs one RemoveFetchCommand with its matching
// AddFetchCommand, both produced from the same donor-prefix.
type fetchRemoval struct {
	fromTask     coretypes.TaskID
	fromExecutor coretypes.ExecutorID
	toTask       coretypes.TaskID
	toExecutor   coretypes.ExecutorID
	blocks       []coretypes.SkewTuneBlockInfo
}

// weight estimates a task's remaining-byte cost as
// Σ block.size/compute_speed + network_time_estimate, excluding unmeasured
// (size==0) blocks per SPEC_FULL.md §9's open-question decision.
func (m *Master) weightLocked(taskID coretypes.TaskID) float64 {
	computeSpeed := m.taskComputeSpeed[taskID]
	if computeSpeed <= 0 {
		computeSpeed = speedFloor
	}
	executorID := m.registeredTasks[taskID]

	var total float64
	for _, b := range m.taskBlocks[taskID] {
		if b.Unmeasured() {
			continue
		}
		total += float64(b.SizeBytes) / computeSpeed
		netSpeed := m.networkSpeed[networkKey{from: coretypes.ExecutorID(b.HostBlockMgr), to: executorID}]
		if netSpeed <= 0 {
			netSpeed = speedFloor
		}
		total += float64(b.SizeBytes) / netSpeed
	}
	return total
}

// computeAndSplit implements SPEC_FULL.md §4.5's compute_and_split. When it
// declines to split it dispatches no fetch or result commands; it sends only
// UnlockTask(trigger), and only when the demon set is full.
func (m *Master) computeAndSplit(trigger coretypes.TaskID, isLast bool) {
	m.mu.Lock()

	activeIDs := make([]coretypes.TaskID, 0, len(m.activeTasks))
	for t := range m.activeTasks {
		activeIDs = append(activeIDs, t)
	}

	if len(activeIDs) < m.cfg.MinActiveTasksToSplit {
		declined := int64(len(m.demonTasks)) >= m.cardinality()-1
		m.mu.Unlock()
		log.L().Info("skewtune: declined to split",
			zap.Int("active_tasks", len(activeIDs)),
			zap.Int("min_active_tasks", m.cfg.MinActiveTasksToSplit))
		if declined {
			m.sendUnlock(trigger)
		}
		return
	}

	sort.Slice(activeIDs, func(i, j int) bool { return activeIDs[i] < activeIDs[j] })

	large := activeIDs[0]
	largeWeight := m.weightLocked(large)
	small := activeIDs[0]
	smallWeight := largeWeight
	for _, t := range activeIDs[1:] {
		w := m.weightLocked(t)
		if w > largeWeight {
			large, largeWeight = t, w
		}
		if w < smallWeight {
			small, smallWeight = t, w
		}
	}

	if large == small {
		declined := int64(len(m.demonTasks)) >= m.cardinality()-1
		m.mu.Unlock()
		log.L().Info("skewtune: declined to split, no distinct large/small task")
		// Same progress rule as the min-active decline: a None plan while
		// the demon set is full must not strand the trigger locked.
		if declined {
			m.sendUnlock(trigger)
		}
		return
	}

	removals, moved := m.buildFetchPrefixLocked(large, small, largeWeight, smallWeight, isLast)

	demonSnapshot := append([]coretypes.TaskID(nil), m.demonTasks...)
	_, smallInDemon := m.demonTasksSet[small]

	m.mu.Unlock()

	for _, r := range removals {
		m.dispatchFetchRemoval(r)
	}
	for _, rc := range moved {
		m.dispatchResultMove(rc)
	}

	switch {
	case small == trigger:
		m.sendUnlock(small)
	case smallInDemon:
		m.sendUnlock(small)
		m.mu.Lock()
		delete(m.demonTasksSet, small)
		m.demonTasks = removeTaskID(m.demonTasks, small)
		m.demonTasks = append(m.demonTasks, trigger)
		m.demonTasksSet[trigger] = struct{}{}
		m.mu.Unlock()
		// The trigger takes the released slot and waits locked in its place.
		m.sendLock(trigger)
	default:
		log.L().Info("skewtune: split plan's small task is no longer eligible for unlock",
			zap.Int64("small_task_id", int64(small)),
			zap.Int64s("demon_tasks", taskIDsToInt64(demonSnapshot)))
	}
}

// buildFetchPrefixLocked walks large's pending fetch queue in order,
// accumulating a prefix to move to small, stopping before the first block
// whose move would leave small's projected weight above large's remaining
// weight (SPEC_FULL.md §4.5). It
// must be called with m.mu held, and does not mutate task_blocks itself —
// the mutation happens on the executor side once RemoveFetchCommand /
// AddFetchCommand round-trip through TransferRemovedFetch /
// ReportBlockStatuses.
func (m *Master) buildFetchPrefixLocked(
	large, small coretypes.TaskID,
	largeWeight, smallWeight float64,
	isLast bool,
) ([]fetchRemoval, []message.RemoveAndAddResultCommand) {
	computeSpeedLarge := m.taskComputeSpeed[large]
	if computeSpeedLarge <= 0 {
		computeSpeedLarge = speedFloor
	}
	largeExecutor := m.registeredTasks[large]
	smallExecutor := m.registeredTasks[small]

	var movedBlocks []coretypes.SkewTuneBlockInfo
	remainingLarge := largeWeight
	projectedSmall := smallWeight

	for _, b := range m.taskBlocks[large] {
		if b.Unmeasured() {
			continue
		}
		netSpeed := m.networkSpeed[networkKey{from: coretypes.ExecutorID(b.HostBlockMgr), to: largeExecutor}]
		if netSpeed <= 0 {
			netSpeed = speedFloor
		}
		blockCost := float64(b.SizeBytes)/computeSpeedLarge + float64(b.SizeBytes)/netSpeed

		if remainingLarge-blockCost < projectedSmall+blockCost {
			// Moving this block would leave small heavier than large; stop
			// extending the prefix here.
			break
		}

		movedBlocks = append(movedBlocks, b)
		remainingLarge -= blockCost
		projectedSmall += blockCost
	}

	if len(movedBlocks) == 0 {
		return nil, nil
	}

	removal := fetchRemoval{
		fromTask:     large,
		fromExecutor: largeExecutor,
		toTask:       small,
		toExecutor:   smallExecutor,
		blocks:       movedBlocks,
	}

	var resultMoves []message.RemoveAndAddResultCommand
	if remainingLarge <= 0 {
		if ids := blockIDsWithResults(m.taskResults[large]); len(ids) > 0 {
			resultMoves = append(resultMoves, message.RemoveAndAddResultCommand{
				BlockIDs: ids,
				FromTask: large,
				ToTask:   small,
			})
		}
	}

	return []fetchRemoval{removal}, resultMoves
}

func blockIDsWithResults(set map[coretypes.BlockID]struct{}) []coretypes.BlockID {
	ids := make([]coretypes.BlockID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Master) dispatchFetchRemoval(r fetchRemoval) {
	byHost := make(message.BlocksByHost)
	sizedByHost := make(message.BlocksWithSizeByHost)
	for _, b := range r.blocks {
		byHost[b.HostBlockMgr] = append(byHost[b.HostBlockMgr], b.BlockID)
		sizedByHost[b.HostBlockMgr] = append(sizedByHost[b.HostBlockMgr], b)
	}

	if err := m.dispatch.SendToExecutor(r.fromExecutor, message.RemoveFetchCommand{
		NextExecutorID: r.toExecutor,
		NextTaskID:     r.toTask,
		TaskID:         r.fromTask,
		BlocksByHost:   byHost,
	}); err != nil {
		log.L().Warn("skewtune: RemoveFetchCommand send failed",
			zap.Int64("task_id", int64(r.fromTask)), zap.Error(err))
	}

	if err := m.dispatch.SendToExecutor(r.toExecutor, message.AddFetchCommand{
		TaskID:               r.toTask,
		BlocksWithSizeByHost: sizedByHost,
	}); err != nil {
		log.L().Warn("skewtune: AddFetchCommand send failed",
			zap.Int64("task_id", int64(r.toTask)), zap.Error(err))
	}
}

func (m *Master) dispatchResultMove(rc message.RemoveAndAddResultCommand) {
	m.mu.Lock()
	fromExecutor := m.registeredTasks[rc.FromTask]
	m.mu.Unlock()
	if err := m.dispatch.SendToExecutor(fromExecutor, rc); err != nil {
		log.L().Warn("skewtune: RemoveAndAddResultCommand send failed",
			zap.Int64("from_task", int64(rc.FromTask)), zap.Error(err))
	}
}

func taskIDsToInt64(ids []coretypes.TaskID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// PlanDeclined wraps a non-fatal planning outcome as the normalized error
// used purely for logging call sites that want a typed reason.
func PlanDeclined(taskSetID coretypes.TaskSetID, reason string) error {
	return derrors.ErrSkewTunePlanDeclined.GenWithStackByArgs(taskSetID, reason)
}
