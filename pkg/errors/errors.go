// Package errors defines the normalized error codes shared by the driver,
// the executor backend, and the skew-tune controller. Every error kind named
// in the coordinator's error-handling design is declared here as a
// *errors.Error built with errors.Normalize, so call sites attach stacks and
// arguments uniformly and tests can match on the RFC code.
package errors

import (
	"github.com/pingcap/errors"
)

// Re-exported so callers don't need a second import for Trace/Annotate/Cause.
var (
	Trace    = errors.Trace
	Annotate = errors.Annotate
	Cause    = errors.Cause
	New      = errors.New
	Errorf   = errors.Errorf
)

var (
	// ErrDuplicateExecutor is returned when RegisterExecutor names an
	// executor id already present in the registry.
	ErrDuplicateExecutor = errors.Normalize(
		"executor %s has already registered",
		errors.RFCCodeText("ERR_DUPLICATE_EXECUTOR"),
	)

	// ErrUnknownExecutor is logged and the triggering message dropped.
	ErrUnknownExecutor = errors.Normalize(
		"executor %s is not registered",
		errors.RFCCodeText("ERR_UNKNOWN_EXECUTOR"),
	)

	// ErrFrameSizeExceeded aborts a task-set at dispatch time.
	ErrFrameSizeExceeded = errors.Normalize(
		"serialized size of task %d (index %d) is %d bytes, which exceeds "+
			"the frame size limit %d (reserved %d)",
		errors.RFCCodeText("ERR_FRAME_SIZE_EXCEEDED"),
	)

	// ErrInvalidArgument is raised synchronously to the caller of the
	// executor-allocation API on a negative count.
	ErrInvalidArgument = errors.Normalize(
		"invalid argument: %s",
		errors.RFCCodeText("ERR_INVALID_ARGUMENT"),
	)

	// ErrSchedulerAskFailed is surfaced after an ask-style RPC exhausts its
	// retry budget.
	ErrSchedulerAskFailed = errors.Normalize(
		"scheduler backend communication with %s failed after %d attempts",
		errors.RFCCodeText("ERR_SCHEDULER_ASK_FAILED"),
	)

	// ErrExecutorDisconnected marks an executor whose RPC endpoint
	// disassociated; promoted to RemoveExecutor/executorLost.
	ErrExecutorDisconnected = errors.Normalize(
		"executor %s disconnected: %s",
		errors.RFCCodeText("ERR_EXECUTOR_DISCONNECTED"),
	)

	// ErrRegistrationFailed causes the executor process to exit non-zero.
	ErrRegistrationFailed = errors.Normalize(
		"executor registration with driver %s failed: %s",
		errors.RFCCodeText("ERR_REGISTRATION_FAILED"),
	)

	// ErrDriverDisconnected causes the executor process to exit non-zero.
	ErrDriverDisconnected = errors.Normalize(
		"lost connection to driver %s",
		errors.RFCCodeText("ERR_DRIVER_DISCONNECTED"),
	)

	// ErrSkewTunePlanDeclined is non-fatal: callers log it and continue
	// without a split.
	ErrSkewTunePlanDeclined = errors.Normalize(
		"skew-tune declined to split task-set %s: %s",
		errors.RFCCodeText("ERR_SKEWTUNE_PLAN_DECLINED"),
	)

	// ErrTaskExecutorAbsent is fatal to the executor process: LaunchTask or
	// KillTask arrived before (or after) the task executor existed.
	ErrTaskExecutorAbsent = errors.Normalize(
		"no task executor is available to handle task %d",
		errors.RFCCodeText("ERR_TASK_EXECUTOR_ABSENT"),
	)

	// ErrUnknownMessageKind is returned by the wire codec on an
	// unrecognized tagged-union discriminator.
	ErrUnknownMessageKind = errors.Normalize(
		"unknown message kind %q",
		errors.RFCCodeText("ERR_UNKNOWN_MESSAGE_KIND"),
	)

	// ErrEtcdCreateSessionFail wraps a failure to open the etcd session
	// backing driver leader election.
	ErrEtcdCreateSessionFail = errors.Normalize(
		"failed to create etcd session",
		errors.RFCCodeText("ERR_ETCD_CREATE_SESSION_FAIL"),
	)

	// ErrElectionCampaignFail wraps a failed or canceled driver leadership
	// campaign.
	ErrElectionCampaignFail = errors.Normalize(
		"driver leadership campaign failed",
		errors.RFCCodeText("ERR_ELECTION_CAMPAIGN_FAIL"),
	)
)
