package driver

import (
	"context"

	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	derrors "github.com/skewsched/coredriver/pkg/errors"
	"github.com/skewsched/coredriver/pkg/log"
)

// makeOffers implements SPEC_FULL.md §4.3's makeOffers: gather current
// (executor, host, free_cores) offers — scoped to a single just-freed
// executor when only is non-nil, or the whole registry otherwise — hand
// them to the task scheduler, and launch whatever it returns.
func (e *Endpoint) makeOffers(ctx context.Context, only *coretypes.ExecutorID) {
	var offers []Offer
	if only != nil {
		offer, ok := e.registry.SnapshotOffer(*only)
		if !ok {
			return
		}
		offers = []Offer{{ExecutorID: offer.ExecutorID, Host: offer.Host, FreeCores: offer.FreeCores}}
	} else {
		for _, o := range e.registry.SnapshotOffers() {
			offers = append(offers, Offer{ExecutorID: o.ExecutorID, Host: o.Host, FreeCores: o.FreeCores})
		}
	}

	if len(offers) == 0 {
		return
	}

	descs := e.scheduler.ResourceOffers(offers)
	if len(descs) == 0 {
		return
	}

	e.launchTasks(ctx, descs)
}

// launchTasks implements SPEC_FULL.md §4.3's launchTasks: encode each
// task's payload, reject any whose encoded size reaches the frame-size
// budget (MaxFrameSize - Reserved) by aborting its task set rather than
// dispatching it, decrement the
// owning executor's free cores, and send LaunchTask.
func (e *Endpoint) launchTasks(ctx context.Context, descs []coretypes.TaskDescription) {
	limit := e.cfg.MaxFrameSize - e.cfg.Reserved

	for _, desc := range descs {
		payload := desc.SerializedTask
		if e.codec != nil {
			encoded, err := e.codec.Encode(desc)
			if err != nil {
				log.L().Warn("driver: failed to encode task, aborting its task set",
					zap.Int64("task_id", int64(desc.TaskID)), zap.Error(err))
				e.scheduler.AbortTaskSet(desc.TaskSetID, err.Error())
				continue
			}
			payload = encoded
		}

		if limit > 0 && int64(len(payload)) >= limit {
			reason := derrors.ErrFrameSizeExceeded.GenWithStackByArgs(
				desc.TaskID, desc.Index, int64(len(payload)), e.cfg.MaxFrameSize, e.cfg.Reserved).Error()
			e.scheduler.AbortTaskSet(desc.TaskSetID, reason)
			continue
		}

		if err := e.registry.AdjustFreeCores(desc.ExecutorID, -e.cfg.CPUsPerTask); err != nil {
			log.L().Warn("driver: launchTasks: executor vanished before dispatch",
				zap.String("executor_id", string(desc.ExecutorID)), zap.Error(err))
			continue
		}

		if err := e.transport.SendToExecutor(ctx, desc.ExecutorID, message.LaunchTask{
			TaskID:         desc.TaskID,
			SerializedTask: payload,
		}); err != nil {
			log.L().Warn("driver: failed to send LaunchTask",
				zap.Int64("task_id", int64(desc.TaskID)), zap.Error(err))
		}
	}
}
