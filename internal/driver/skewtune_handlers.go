package driver

import (
	"context"

	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/pkg/log"
)

// handleRegisterNewTask routes to the owning task set's SkewTuneMaster
// (SPEC_FULL.md §4.5).
func (e *Endpoint) handleRegisterNewTask(m message.RegisterNewTask) {
	sm := e.skewMasterFor(m.TaskSetID)
	sm.SetPendingTasksInSet(m.PendingTasksInSet)
	sm.RegisterNewTask(m.TaskID, m.ExecutorID, m.Blocks)
}

func (e *Endpoint) handleReportBlockStatuses(m message.ReportBlockStatuses) {
	sm := e.skewMasterFor(m.TaskSetID)
	sm.ReportBlockStatuses(m.TaskID, m.Updates, m.NewTaskID)
}

func (e *Endpoint) handleReportTaskFinished(m message.ReportTaskFinished) {
	sm := e.skewMasterFor(m.TaskSetID)
	sm.ReportTaskFinished(m.TaskID)
}

func (e *Endpoint) handleReportTaskComputeSpeed(m message.ReportTaskComputeSpeed) {
	sm := e.skewMasterFor(m.TaskSetID)
	sm.ReportTaskComputeSpeed(m.TaskID, m.BytesPerMilli)
}

func (e *Endpoint) handleReportBlockDownloadSpeed(m message.ReportBlockDownloadSpeed) {
	sm := e.skewMasterFor(m.TaskSetID)
	sm.ReportBlockDownloadSpeed(m.FromExecutorID, m.ToExecutorID, m.BytesPerMilli)
}

// handleTransferRemovedFetch re-queues blocks an executor removed from one
// task's fetch iterator onto the receiving task/executor's AddFetchCommand
// path (SPEC_FULL.md §4.4's executor->driver leg of the RemoveFetchCommand
// round trip).
func (e *Endpoint) handleTransferRemovedFetch(ctx context.Context, m message.TransferRemovedFetch) {
	if len(m.BlocksWithSizeByHost) == 0 {
		return
	}
	if err := e.transport.SendToExecutor(ctx, m.NextExecutorID, message.AddFetchCommand{
		TaskID:               m.NextTaskID,
		BlocksWithSizeByHost: m.BlocksWithSizeByHost,
	}); err != nil {
		log.L().Warn("driver: failed to forward TransferRemovedFetch",
			zap.String("next_executor_id", string(m.NextExecutorID)), zap.Error(err))
	}
}
