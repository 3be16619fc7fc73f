// Package message defines the closed tagged union of messages exchanged
// between the driver, the executors, and the cluster manager (SPEC_FULL.md
// §4.1). Every variant is a plain struct implementing Envelope; handlers are
// expected to switch exhaustively over Kind() and reject unknown kinds via
// pkg/errors.ErrUnknownMessageKind.
package message

import "github.com/skewsched/coredriver/internal/coretypes"

// Kind discriminates the tagged union's variants on the wire.
type Kind string

const (
	KindLaunchTask               Kind = "LaunchTask"
	KindKillTask                 Kind = "KillTask"
	KindStopExecutor             Kind = "StopExecutor"
	KindRemoveFetchCommand       Kind = "RemoveFetchCommand"
	KindAddFetchCommand          Kind = "AddFetchCommand"
	KindRemoveAndAddResult       Kind = "RemoveAndAddResultCommand"
	KindLockTask                 Kind = "LockTask"
	KindUnlockTask               Kind = "UnlockTask"

	KindRegisterExecutor          Kind = "RegisterExecutor"
	KindRegisterExecutorFailed    Kind = "RegisterExecutorFailed"
	KindRegisteredExecutor        Kind = "RegisteredExecutor"
	KindStatusUpdate              Kind = "StatusUpdate"
	KindRegisterNewTask           Kind = "RegisterNewTask"
	KindReportBlockStatuses       Kind = "ReportBlockStatuses"
	KindReportTaskFinished        Kind = "ReportTaskFinished"
	KindReportTaskComputeSpeed    Kind = "ReportTaskComputeSpeed"
	KindReportBlockDownloadSpeed  Kind = "ReportBlockDownloadSpeed"
	KindTransferRemovedFetch      Kind = "TransferRemovedFetch"

	KindReviveOffers       Kind = "ReviveOffers"
	KindStopDriver         Kind = "StopDriver"
	KindStopExecutors      Kind = "StopExecutors"
	KindRemoveExecutor     Kind = "RemoveExecutor"
	KindOnDisconnected     Kind = "OnDisconnected"

	KindRegisterClusterManager Kind = "RegisterClusterManager"
	KindRequestExecutors       Kind = "RequestExecutors"
	KindKillExecutors          Kind = "KillExecutors"
	KindRetrieveSparkProps     Kind = "RetrieveSparkProps"
)

// Envelope is implemented by every message variant.
type Envelope interface {
	Kind() Kind
}

// --- Driver -> Executor ---

type LaunchTask struct {
	TaskID         coretypes.TaskID
	SerializedTask []byte
}

func (LaunchTask) Kind() Kind { return KindLaunchTask }

// KillTask carries the owning executor's id so the driver mailbox can route
// the kill without its own task-to-executor bookkeeping; the executor side
// ignores the field.
type KillTask struct {
	TaskID     coretypes.TaskID
	ExecutorID coretypes.ExecutorID
	Interrupt  bool
}

func (KillTask) Kind() Kind { return KindKillTask }

type StopExecutor struct{}

func (StopExecutor) Kind() Kind { return KindStopExecutor }

// BlocksByHost groups pending-fetch block ids by the host currently serving
// them, matching how a fetch iterator batches remote requests per host.
type BlocksByHost map[coretypes.BlockManagerID][]coretypes.BlockID

// BlocksWithSizeByHost is the AddFetchCommand analogue of BlocksByHost: it
// carries size information so the receiving iterator can account for the
// newly queued work without waiting on a size report.
type BlocksWithSizeByHost map[coretypes.BlockManagerID][]coretypes.SkewTuneBlockInfo

type RemoveFetchCommand struct {
	NextExecutorID coretypes.ExecutorID
	NextTaskID     coretypes.TaskID
	TaskID         coretypes.TaskID
	BlocksByHost   BlocksByHost
}

func (RemoveFetchCommand) Kind() Kind { return KindRemoveFetchCommand }

type AddFetchCommand struct {
	TaskID               coretypes.TaskID
	BlocksWithSizeByHost BlocksWithSizeByHost
}

func (AddFetchCommand) Kind() Kind { return KindAddFetchCommand }

type RemoveAndAddResultCommand struct {
	BlockIDs []coretypes.BlockID
	FromTask coretypes.TaskID
	ToTask   coretypes.TaskID
}

func (RemoveAndAddResultCommand) Kind() Kind { return KindRemoveAndAddResult }

type LockTask struct {
	TaskID coretypes.TaskID
}

func (LockTask) Kind() Kind { return KindLockTask }

type UnlockTask struct {
	TaskID coretypes.TaskID
}

func (UnlockTask) Kind() Kind { return KindUnlockTask }

// --- Executor -> Driver ---

type RegisterExecutor struct {
	ExecutorID coretypes.ExecutorID
	Address    string
	Host       string
	TotalCores int
	LogURLs    map[string]string
}

func (RegisterExecutor) Kind() Kind { return KindRegisterExecutor }

type RegisterExecutorFailed struct {
	Reason string
}

func (RegisterExecutorFailed) Kind() Kind { return KindRegisterExecutorFailed }

type RegisteredExecutor struct{}

func (RegisteredExecutor) Kind() Kind { return KindRegisteredExecutor }

type StatusUpdate struct {
	ExecutorID coretypes.ExecutorID
	TaskID     coretypes.TaskID
	State      coretypes.TaskState
	Data       []byte
}

func (StatusUpdate) Kind() Kind { return KindStatusUpdate }

type RegisterNewTask struct {
	TaskSetID  coretypes.TaskSetID
	TaskID     coretypes.TaskID
	ExecutorID coretypes.ExecutorID
	Blocks     []coretypes.SkewTuneBlockInfo
	// PendingTasksInSet is the task-set manager's current count of tasks
	// not yet registered, forwarded so the SkewTune master can compute
	// is_last_task without its own out-of-scope bookkeeping.
	PendingTasksInSet int
}

func (RegisterNewTask) Kind() Kind { return KindRegisterNewTask }

type ReportBlockStatuses struct {
	TaskSetID coretypes.TaskSetID
	TaskID    coretypes.TaskID
	Updates   []coretypes.BlockStatusUpdate
	NewTaskID *coretypes.TaskID
	SizeBytes *int64
}

func (ReportBlockStatuses) Kind() Kind { return KindReportBlockStatuses }

type ReportTaskFinished struct {
	TaskSetID coretypes.TaskSetID
	TaskID    coretypes.TaskID
}

func (ReportTaskFinished) Kind() Kind { return KindReportTaskFinished }

type ReportTaskComputeSpeed struct {
	TaskSetID     coretypes.TaskSetID
	TaskID        coretypes.TaskID
	ExecutorID    coretypes.ExecutorID
	BytesPerMilli float64
}

func (ReportTaskComputeSpeed) Kind() Kind { return KindReportTaskComputeSpeed }

type ReportBlockDownloadSpeed struct {
	TaskSetID      coretypes.TaskSetID
	FromExecutorID coretypes.ExecutorID
	ToExecutorID   coretypes.ExecutorID
	BytesPerMilli  float64
}

func (ReportBlockDownloadSpeed) Kind() Kind { return KindReportBlockDownloadSpeed }

type TransferRemovedFetch struct {
	NextExecutorID       coretypes.ExecutorID
	NextTaskID           coretypes.TaskID
	BlocksWithSizeByHost BlocksWithSizeByHost
}

func (TransferRemovedFetch) Kind() Kind { return KindTransferRemovedFetch }

// --- Driver-internal ---

type ReviveOffers struct{}

func (ReviveOffers) Kind() Kind { return KindReviveOffers }

type StopDriver struct{}

func (StopDriver) Kind() Kind { return KindStopDriver }

type StopExecutors struct{}

func (StopExecutors) Kind() Kind { return KindStopExecutors }

type RemoveExecutor struct {
	ExecutorID coretypes.ExecutorID
	Reason     string
}

func (RemoveExecutor) Kind() Kind { return KindRemoveExecutor }

type OnDisconnected struct {
	RemoteAddress string
}

func (OnDisconnected) Kind() Kind { return KindOnDisconnected }

// --- Cluster manager <-> driver ---

type RegisterClusterManager struct {
	Address string
}

func (RegisterClusterManager) Kind() Kind { return KindRegisterClusterManager }

type RequestExecutors struct {
	Total int
}

func (RequestExecutors) Kind() Kind { return KindRequestExecutors }

type KillExecutors struct {
	ExecutorIDs []coretypes.ExecutorID
}

func (KillExecutors) Kind() Kind { return KindKillExecutors }

type RetrieveSparkProps struct{}

func (RetrieveSparkProps) Kind() Kind { return KindRetrieveSparkProps }
